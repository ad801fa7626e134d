package group0

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dd0wney/cluso-metaraft/pkg/raft"
	"github.com/dd0wney/cluso-metaraft/pkg/rpc"
)

// twoNodeGroup bootstraps a leader and joins a second node through it,
// then passes both through the WaitForRaft gate
func twoNodeGroup(t *testing.T) (*raft.InMemCluster, *testNode, *testNode) {
	t.Helper()
	cluster := raft.NewInMemCluster()
	network := rpc.NewLoopbackNetwork()

	a := startTestNode(t, "tcp://a:7000", cluster, network, nodeOptions{})
	if err := a.orch.SetupGroup0(context.Background(), nil, nil); err != nil {
		t.Fatalf("leader setup failed: %v", err)
	}

	b := startTestNode(t, "tcp://b:7000", cluster, network, nodeOptions{})
	if err := b.orch.SetupGroup0(context.Background(), []string{"tcp://a:7000"}, nil); err != nil {
		t.Fatalf("joiner setup failed: %v", err)
	}
	if err := b.orch.FinishSetupAfterJoin(context.Background()); err != nil {
		t.Fatalf("joiner promotion failed: %v", err)
	}

	for _, n := range []*testNode{a, b} {
		ok, err := n.orch.WaitForRaft(context.Background())
		if err != nil || !ok {
			t.Fatalf("WaitForRaft on %s: ok=%v err=%v", n.addr, ok, err)
		}
	}
	return cluster, a, b
}

func serverID(t *testing.T, n *testNode) raft.ServerID {
	t.Helper()
	srv, err := n.orch.Group0Server()
	if err != nil {
		t.Fatalf("no server on %s: %v", n.addr, err)
	}
	return srv.ID()
}

func TestJoinerPromotedToVoter(t *testing.T) {
	_, a, b := twoNodeGroup(t)

	bID := serverID(t, b)
	if !a.orch.IsMember(bID, true) {
		t.Fatal("joiner is not a voter after FinishSetupAfterJoin")
	}
	srv, _ := a.orch.Group0Server()
	voters, nonvoters := srv.Configuration().CountVoters()
	if voters != 2 || nonvoters != 0 {
		t.Fatalf("expected 2 voters, got %d voters %d nonvoters", voters, nonvoters)
	}
}

func TestMutationBeforeWaitForRaftRejected(t *testing.T) {
	cluster := raft.NewInMemCluster()
	node := startTestNode(t, "tcp://a:7000", cluster, rpc.NewLoopbackNetwork(), nodeOptions{})
	if err := node.orch.SetupGroup0(context.Background(), nil, nil); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if err := node.orch.BecomeNonvoter(context.Background()); !errors.Is(err, ErrRaftUnavailable) {
		t.Fatalf("BecomeNonvoter: expected ErrRaftUnavailable, got %v", err)
	}
	if err := node.orch.MakeNonvoter(context.Background(), "some-id"); !errors.Is(err, ErrRaftUnavailable) {
		t.Fatalf("MakeNonvoter: expected ErrRaftUnavailable, got %v", err)
	}
	if err := node.orch.LeaveGroup0(context.Background()); !errors.Is(err, ErrRaftUnavailable) {
		t.Fatalf("LeaveGroup0: expected ErrRaftUnavailable, got %v", err)
	}
	if err := node.orch.RemoveFromGroup0(context.Background(), "some-id"); !errors.Is(err, ErrRaftUnavailable) {
		t.Fatalf("RemoveFromGroup0: expected ErrRaftUnavailable, got %v", err)
	}
}

func TestMutationBeforeSetupRejected(t *testing.T) {
	cluster := raft.NewInMemCluster()
	node := startTestNode(t, "tcp://a:7000", cluster, rpc.NewLoopbackNetwork(), nodeOptions{})

	if err := node.orch.BecomeNonvoter(context.Background()); !errors.Is(err, ErrSetupNotRun) {
		t.Fatalf("expected ErrSetupNotRun, got %v", err)
	}
	if err := node.orch.FinishSetupAfterJoin(context.Background()); !errors.Is(err, ErrSetupNotRun) {
		t.Fatalf("expected ErrSetupNotRun, got %v", err)
	}
}

func TestMakeNonvoterDemotes(t *testing.T) {
	_, a, b := twoNodeGroup(t)
	bID := serverID(t, b)

	if err := a.orch.MakeNonvoter(context.Background(), bID); err != nil {
		t.Fatalf("demote failed: %v", err)
	}
	if a.orch.IsMember(bID, true) {
		t.Fatal("demoted member still counted as voter")
	}
	if !a.orch.IsMember(bID, false) {
		t.Fatal("demoted member dropped from configuration")
	}
}

func TestBecomeNonvoterDemotesSelf(t *testing.T) {
	_, _, b := twoNodeGroup(t)
	bID := serverID(t, b)

	if err := b.orch.BecomeNonvoter(context.Background()); err != nil {
		t.Fatalf("self-demote failed: %v", err)
	}
	if b.orch.IsMember(bID, true) {
		t.Fatal("still a voter after BecomeNonvoter")
	}
}

func TestRetryConvergesUnderUnknownCommit(t *testing.T) {
	cluster, a, b := twoNodeGroup(t)
	bID := serverID(t, b)

	// Every change applies, but the first two report an unknown commit
	// status. Removal of a non-member is a no-op, so the retries must
	// converge to the same configuration as a single successful call.
	cluster.InjectCommitStatusUnknown(2)

	if err := a.orch.RemoveFromGroup0(context.Background(), bID); err != nil {
		t.Fatalf("removal did not converge: %v", err)
	}
	if a.orch.IsMember(bID, false) {
		t.Fatal("member still present after removal")
	}
	srv, _ := a.orch.Group0Server()
	voters, _ := srv.Configuration().CountVoters()
	if voters != 1 {
		t.Fatalf("expected 1 voter, got %d", voters)
	}
}

func TestDemoteRetryUnderUnknownCommit(t *testing.T) {
	cluster, a, b := twoNodeGroup(t)
	bID := serverID(t, b)

	cluster.InjectCommitStatusUnknown(1)
	if err := a.orch.MakeNonvoter(context.Background(), bID); err != nil {
		t.Fatalf("demote did not converge: %v", err)
	}
	if a.orch.IsMember(bID, true) {
		t.Fatal("member still a voter after retried demote")
	}
}

func TestLeaveGroup0(t *testing.T) {
	_, a, b := twoNodeGroup(t)
	bID := serverID(t, b)

	if err := b.orch.LeaveGroup0(context.Background()); err != nil {
		t.Fatalf("leave failed: %v", err)
	}

	// IsMember answers from the locally cached configuration; the read
	// barrier brings a's cache up to the committed state.
	if ok, err := a.orch.WaitForRaft(context.Background()); err != nil || !ok {
		t.Fatalf("WaitForRaft on a: ok=%v err=%v", ok, err)
	}
	if a.orch.IsMember(bID, false) {
		t.Fatal("member still present after leave")
	}
}

func TestLeaveTwiceStalls(t *testing.T) {
	_, _, b := twoNodeGroup(t)

	if err := b.orch.LeaveGroup0(context.Background()); err != nil {
		t.Fatalf("first leave failed: %v", err)
	}

	// A node that already left is no longer a member and cannot find a
	// leader to forward the second entry; the call stalls until the
	// caller gives up. Documented limitation of the leave protocol.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := b.orch.LeaveGroup0(ctx)
	if err == nil {
		t.Fatal("second leave unexpectedly succeeded")
	}
	if !errors.Is(err, raft.ErrNoLeader) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a stall, got %v", err)
	}
}

func TestRemoveFromRaftConfigIdempotent(t *testing.T) {
	_, a, b := twoNodeGroup(t)
	bID := serverID(t, b)

	if err := a.orch.RemoveFromRaftConfig(context.Background(), bID); err != nil {
		t.Fatalf("removal failed: %v", err)
	}
	// Removing an already-removed member is a no-op
	if err := a.orch.RemoveFromRaftConfig(context.Background(), bID); err != nil {
		t.Fatalf("repeat removal failed: %v", err)
	}
	if a.orch.IsMember(bID, false) {
		t.Fatal("member still present")
	}
}
