package group0

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-metaraft/pkg/logging"
	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

// configChangeRetryInterval paces retries of entries whose commit
// status came back unknown
const configChangeRetryInterval = 500 * time.Millisecond

// BecomeNonvoter demotes this node to a non-voting member. Requires a
// prior successful WaitForRaft.
func (o *Orchestrator) BecomeNonvoter(ctx context.Context) error {
	srv, err := o.membershipServer()
	if err != nil {
		return err
	}
	return o.makeRaftConfigNonvoter(ctx, srv.ID())
}

// MakeNonvoter demotes another member to non-voter. Requires a prior
// successful WaitForRaft.
func (o *Orchestrator) MakeNonvoter(ctx context.Context, id raft.ServerID) error {
	if _, err := o.membershipServer(); err != nil {
		return err
	}
	return o.makeRaftConfigNonvoter(ctx, id)
}

// makeRaftConfigNonvoter is the shared retry wrapper behind
// BecomeNonvoter and MakeNonvoter. Demoting an already-non-voting
// member converges to the same configuration, so retrying on an
// unknown commit outcome is safe.
func (o *Orchestrator) makeRaftConfigNonvoter(ctx context.Context, id raft.ServerID) error {
	ctx, cancel := o.opContext(ctx)
	defer cancel()

	o.log.Info("demoting member to non-voter", logging.ServerID(string(id)))
	err := o.retryConfigChange(ctx, "set_nonvoter", []raft.ConfigChange{
		{Kind: raft.SetNonvoter, Member: raft.Member{ID: id}},
	})
	if err != nil {
		return fmt.Errorf("failed to demote %s: %w", id, err)
	}
	o.updateMemberMetrics()
	return nil
}

// RemoveFromGroup0 removes a member from the group 0 configuration.
// Requires a prior successful WaitForRaft.
func (o *Orchestrator) RemoveFromGroup0(ctx context.Context, id raft.ServerID) error {
	if _, err := o.membershipServer(); err != nil {
		return err
	}
	ctx, cancel := o.opContext(ctx)
	defer cancel()
	return o.removeFromRaftConfig(ctx, id)
}

// RemoveFromRaftConfig removes id from the configuration, retrying on
// unknown commit outcomes. Removal of a non-member is a no-op, which is
// what makes the retry safe. Shared by the removenode, decommission and
// replace flows.
func (o *Orchestrator) RemoveFromRaftConfig(ctx context.Context, id raft.ServerID) error {
	ctx, cancel := o.opContext(ctx)
	defer cancel()
	return o.removeFromRaftConfig(ctx, id)
}

func (o *Orchestrator) removeFromRaftConfig(ctx context.Context, id raft.ServerID) error {
	o.log.Info("removing member from group 0", logging.ServerID(string(id)))
	err := o.retryConfigChange(ctx, "remove_member", []raft.ConfigChange{
		{Kind: raft.RemoveMember, Member: raft.Member{ID: id}},
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", id, err)
	}
	o.addrs.Remove(id)
	o.updateMemberMetrics()
	return nil
}

// LeaveGroup0 removes this node from the group 0 configuration as part
// of decommission. Requires a prior successful WaitForRaft.
//
// Known limitation: if the first call is disrupted mid-flight after the
// removal committed, a second call is submitted by a node that is no
// longer a member and can stall indefinitely searching for a leader.
// Callers must not invoke LeaveGroup0 again after a failure; the
// surviving members remove this node with RemoveFromGroup0 instead.
func (o *Orchestrator) LeaveGroup0(ctx context.Context) error {
	srv, err := o.membershipServer()
	if err != nil {
		return err
	}
	ctx, cancel := o.opContext(ctx)
	defer cancel()

	id := srv.ID()
	o.log.Info("leaving group 0", logging.ServerID(string(id)))
	err = o.retryConfigChange(ctx, "leave", []raft.ConfigChange{
		{Kind: raft.RemoveMember, Member: raft.Member{ID: id}},
	})
	if err != nil {
		return fmt.Errorf("failed to leave group 0: %w", err)
	}
	o.updateMemberMetrics()
	return nil
}

// membershipServer enforces the preconditions shared by every
// membership-mutating operation: setup completed and a successful
// WaitForRaft call happened beforehand.
func (o *Orchestrator) membershipServer() (raft.Server, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.aborted:
		return nil, ErrAborted
	case !o.setupDone:
		return nil, ErrSetupNotRun
	case !o.raftAvailable:
		return nil, ErrRaftUnavailable
	case o.server == nil:
		return nil, raft.ErrServerNotStarted
	}
	return o.server, nil
}

// retryConfigChange submits changes and retries while the commit status
// is unknown. Every caller's change set is idempotent at the
// configuration level; a retry that re-applies an already-committed
// entry converges to the same configuration. Other errors, and
// cancellation, propagate.
func (o *Orchestrator) retryConfigChange(ctx context.Context, operation string, changes []raft.ConfigChange) error {
	o.mu.Lock()
	srv := o.server
	o.mu.Unlock()
	if srv == nil {
		return raft.ErrServerNotStarted
	}

	for {
		err := srv.ModifyConfig(ctx, changes)
		switch {
		case err == nil:
			o.reg.RecordConfigChange(operation, "ok")
			return nil
		case errors.Is(err, raft.ErrCommitStatusUnknown):
			o.reg.RecordConfigChangeRetry(operation)
			o.log.Warn("configuration change outcome unknown, retrying",
				logging.Operation(operation), logging.Error(err))
		default:
			o.reg.RecordConfigChange(operation, "error")
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(configChangeRetryInterval):
		}
	}
}
