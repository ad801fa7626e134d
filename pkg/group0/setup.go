package group0

import (
	"context"
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-metaraft/pkg/discovery"
	"github.com/dd0wney/cluso-metaraft/pkg/features"
	"github.com/dd0wney/cluso-metaraft/pkg/logging"
	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

// SetupGroup0 is the single entry point for establishing group 0
// membership at boot. Exactly one of three paths runs, chosen by
// durable state read at call time:
//
//   - a previously persisted group id restarts the local server without
//     rediscovery;
//   - a cluster without consensus support records this node as pending
//     upgrade and creates nothing;
//   - otherwise discovery runs against contactNodes, and this node
//     either creates the group (leader) or joins it as a non-voter.
//
// Called at most once per process lifetime. On the bootstrap and
// restart paths JoinedGroup0 is true afterwards.
func (o *Orchestrator) SetupGroup0(ctx context.Context, contactNodes []string, replace *ReplaceInfo) error {
	o.mu.Lock()
	switch {
	case o.aborted:
		o.mu.Unlock()
		return ErrAborted
	case !o.started:
		o.mu.Unlock()
		return ErrNotStarted
	case o.setupDone:
		o.mu.Unlock()
		return ErrSetupAlreadyRun
	}
	o.mu.Unlock()

	ctx, cancel := o.opContext(ctx)
	defer cancel()

	err := o.setupGroup0(ctx, contactNodes, replace)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.setupDone = true
	o.publishStatusLocked()
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) setupGroup0(ctx context.Context, contactNodes []string, replace *ReplaceInfo) error {
	if !o.deps.Registry.IsEnabled() {
		o.log.Info("consensus engine disabled, skipping group 0 setup")
		return nil
	}

	if gid, ok := o.deps.Store.LoadGroup0ID(); ok {
		o.log.Info("restarting previously joined group 0", logging.GroupID(string(gid)))
		return o.startServerForGroup0(ctx, gid)
	}

	if !o.deps.Features.IsEnabled(features.FeatureSupportsRaft) {
		// Legacy cluster: group 0 comes later, through the upgrade
		// procedure, once every node supports it.
		o.log.Info("cluster does not support metadata consensus yet, pending upgrade")
		o.mu.Lock()
		o.upgradePending = true
		o.upgradeDone = make(chan struct{})
		o.mu.Unlock()
		return nil
	}

	return o.joinGroup0(ctx, contactNodes, replace, false)
}

// FinishSetupAfterJoin runs after the node is fully admitted to cluster
// membership. A freshly bootstrapped node is promoted to voter here. A
// node pending upgrade arms the upgrade trigger: resumed immediately if
// a previous run crashed mid-upgrade, otherwise fired when the
// cluster-wide consensus feature becomes enabled.
func (o *Orchestrator) FinishSetupAfterJoin(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.aborted:
		o.mu.Unlock()
		return ErrAborted
	case !o.setupDone:
		o.mu.Unlock()
		return ErrSetupNotRun
	}
	pending := o.upgradePending
	bootstrapped := o.bootstrapped
	myID := o.myIDLocked()
	o.mu.Unlock()

	if pending {
		o.armUpgrade()
		return nil
	}

	if !bootstrapped {
		return nil
	}

	ctx, cancel := o.opContext(ctx)
	defer cancel()

	o.log.Info("promoting self to voter", logging.ServerID(string(myID)))
	if err := o.retryConfigChange(ctx, "set_voter", []raft.ConfigChange{
		{Kind: raft.SetVoter, Member: raft.Member{ID: myID}},
	}); err != nil {
		return fmt.Errorf("failed to promote self to voter: %w", err)
	}

	o.updateMemberMetrics()
	return nil
}

func (o *Orchestrator) myIDLocked() raft.ServerID {
	if o.server != nil {
		return o.server.ID()
	}
	id, _ := o.deps.Store.LoadIdentity()
	return id
}

// joinGroup0 runs discovery, then either creates the group (leader
// outcome) or joins the existing one through its leader. The group id
// is persisted only after the consensus engine confirms the
// configuration entry committed: a crash before persistence restarts
// discovery on the next boot and never double-joins under a stale id.
func (o *Orchestrator) joinGroup0(ctx context.Context, contactNodes []string, replace *ReplaceInfo, asVoter bool) error {
	myID, err := o.ensureIdentity()
	if err != nil {
		return err
	}

	outcome, err := o.discoverGroup0(ctx, contactNodes, replace)
	if err != nil {
		return err
	}

	self := raft.Member{ID: myID, Address: o.cfg.Address, Voter: true}

	var srv raft.Server
	var gid raft.GroupID
	if outcome.IsLeader {
		gid = raft.NewGroupID()
		o.log.Info("creating group 0", logging.GroupID(string(gid)))
		srv, err = o.createServerForGroup0(ctx, func(ctx context.Context) (raft.Server, error) {
			return o.deps.Registry.CreateGroup(ctx, gid, self)
		})
	} else {
		gid = outcome.Info.GroupID
		leader := outcome.Info.Leader
		self.Voter = asVoter
		o.log.Info("joining existing group 0",
			logging.GroupID(string(gid)),
			logging.Peer(leader.Address),
			logging.Voter(asVoter))
		o.addrs.Set(leader.ID, leader.Address)
		srv, err = o.createServerForGroup0(ctx, func(ctx context.Context) (raft.Server, error) {
			return o.deps.Registry.JoinGroup(ctx, gid, leader.Address, self)
		})
	}
	if err != nil {
		if errors.Is(err, raft.ErrCommitStatusUnknown) {
			// The join entry may have committed, but without the
			// persisted id this node simply rediscovers on restart.
			return fmt.Errorf("group 0 join outcome unknown, will rediscover on restart: %w", err)
		}
		return err
	}

	if err := o.deps.Store.SaveGroup0ID(gid); err != nil {
		return fmt.Errorf("failed to persist group 0 id: %w", err)
	}

	o.addrs.Set(myID, o.cfg.Address)
	o.mu.Lock()
	o.state = establishedState(gid)
	o.server = srv
	o.bootstrapped = !outcome.IsLeader && !asVoter
	o.mu.Unlock()
	o.updateMemberMetrics()

	if replace != nil && replace.ID != "" {
		o.log.Info("removing replaced node from group 0", logging.ServerID(string(replace.ID)))
		if err := o.removeFromRaftConfig(ctx, replace.ID); err != nil {
			return fmt.Errorf("failed to remove replaced node: %w", err)
		}
	}
	return nil
}

// discoverGroup0 constructs the discovery session, publishes it so
// inbound exchanges can participate, and drives it to its terminal
// outcome. At most one session exists at a time.
func (o *Orchestrator) discoverGroup0(ctx context.Context, contactNodes []string, replace *ReplaceInfo) (discovery.Outcome, error) {
	self := discovery.Peer{Address: o.cfg.Address}

	var seeds discovery.PeerList
	for _, addr := range contactNodes {
		if addr == o.cfg.Address {
			continue
		}
		if replace != nil && addr == replace.Address {
			// The node being replaced is gone; never wait on it.
			continue
		}
		seeds = append(seeds, discovery.Peer{Address: addr})
	}

	pd, err := discovery.NewPersistentDiscovery(self, seeds, o.deps.Store, o.log)
	if err != nil {
		return discovery.Outcome{}, fmt.Errorf("failed to construct discovery: %w", err)
	}

	o.mu.Lock()
	o.state = discoveringState(pd)
	o.mu.Unlock()

	outcome, err := pd.Run(ctx, o.deps.Exchanger)
	if err != nil {
		return discovery.Outcome{}, fmt.Errorf("discovery failed: %w", err)
	}
	return outcome, nil
}

// startServerForGroup0 resumes an already-joined group without
// rediscovery, using only the persisted group id and identity.
func (o *Orchestrator) startServerForGroup0(ctx context.Context, gid raft.GroupID) error {
	myID, ok := o.deps.Store.LoadIdentity()
	if !ok {
		// A persisted group id without an identity cannot happen through
		// this code path; treat it as a corrupt data directory.
		return fmt.Errorf("%w: group 0 id persisted without identity", ErrNoIdentity)
	}

	self := raft.Member{ID: myID, Address: o.cfg.Address}
	srv, err := o.createServerForGroup0(ctx, func(ctx context.Context) (raft.Server, error) {
		return o.deps.Registry.StartServer(ctx, gid, self)
	})
	if err != nil {
		return fmt.Errorf("failed to start group 0 server: %w", err)
	}

	o.addrs.Set(myID, o.cfg.Address)
	o.mu.Lock()
	o.state = establishedState(gid)
	o.server = srv
	o.mu.Unlock()
	o.updateMemberMetrics()
	return nil
}

// createServerForGroup0 is the single initialization seam for the local
// group 0 server: it allocates the server through the registry and
// wires the migration manager and CDC generation service to it.
func (o *Orchestrator) createServerForGroup0(ctx context.Context, start func(context.Context) (raft.Server, error)) (raft.Server, error) {
	srv, err := start(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.deps.Migration.AttachGroup0(ctx, srv); err != nil {
		return nil, fmt.Errorf("failed to attach migration manager: %w", err)
	}
	if err := o.deps.CDC.AttachGroup0(ctx, srv); err != nil {
		return nil, fmt.Errorf("failed to attach cdc generation service: %w", err)
	}
	return srv, nil
}

// ensureIdentity loads this node's durable identity, generating and
// persisting one on first boot
func (o *Orchestrator) ensureIdentity() (raft.ServerID, error) {
	if id, ok := o.deps.Store.LoadIdentity(); ok {
		return id, nil
	}
	id := raft.NewServerID()
	if err := o.deps.Store.SaveIdentity(id); err != nil {
		return "", fmt.Errorf("failed to persist identity: %w", err)
	}
	o.log.Info("established node identity", logging.ServerID(string(id)))
	return id, nil
}

func (o *Orchestrator) updateMemberMetrics() {
	o.mu.Lock()
	srv := o.server
	o.mu.Unlock()
	if srv == nil {
		return
	}
	voters, nonvoters := srv.Configuration().CountVoters()
	o.reg.UpdateMemberMetrics(voters, nonvoters)
}
