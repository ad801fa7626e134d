// Package group0 establishes and maintains the cluster-wide metadata
// consensus group. The Orchestrator is a crash-recoverable state machine
// layered on the discovery protocol and the consensus engine: it finds
// or creates group 0 at boot, drives the legacy-cluster upgrade, and
// exposes the membership operations (voter transitions, leave, remove)
// that cluster administration flows call for the rest of the node's life.
package group0

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-metaraft/pkg/discovery"
	"github.com/dd0wney/cluso-metaraft/pkg/features"
	"github.com/dd0wney/cluso-metaraft/pkg/gossip"
	"github.com/dd0wney/cluso-metaraft/pkg/logging"
	"github.com/dd0wney/cluso-metaraft/pkg/metrics"
	"github.com/dd0wney/cluso-metaraft/pkg/migration"
	"github.com/dd0wney/cluso-metaraft/pkg/raft"
	"github.com/dd0wney/cluso-metaraft/pkg/rpc"
	"github.com/dd0wney/cluso-metaraft/pkg/sysstore"
)

// HandlerRegistrar installs the orchestrator as the handler of the
// node-to-node discovery verbs. Satisfied by *rpc.Server.
type HandlerRegistrar interface {
	RegisterHandler(rpc.Handler)
}

// Dependencies are the external collaborators the orchestrator consumes.
// Store, Registry, Features, Gossiper, Migration, CDC and Exchanger are
// required; RPC may be nil when the caller registers handlers itself.
type Dependencies struct {
	Store     *sysstore.Store
	Registry  raft.Registry
	Features  *features.Service
	Gossiper  gossip.Gossiper
	Migration migration.Manager
	CDC       migration.CDCGenerationService
	Exchanger discovery.Exchanger
	RPC       HandlerRegistrar
	Logger    logging.Logger
}

// ReplaceInfo identifies a dead node this node is replacing. The
// replaced node's address is treated as already gone during discovery,
// and its server is removed from the configuration once this node joins.
type ReplaceInfo struct {
	Address string
	ID      raft.ServerID
}

// Orchestrator owns the group 0 lifecycle on this node. All public
// operations except the RPC handlers must be called from the node's
// startup/administration flow; Start must complete before anything else.
type Orchestrator struct {
	cfg  Config
	deps Dependencies
	log  logging.Logger
	reg  *metrics.Registry

	addrs *AddressMap
	tasks *taskGate

	// shutdownCtx is the shared cancellation signal: Abort cancels it,
	// and every suspension point in discovery, join and upgrade flows
	// observes it.
	shutdownCtx    context.Context
	cancelShutdown context.CancelFunc

	mu            sync.Mutex
	state         lifecycleState
	started       bool
	aborted       bool
	setupDone     bool
	bootstrapped  bool // joined as non-voter during this boot; promote later
	server        raft.Server
	raftAvailable bool // a WaitForRaft call succeeded

	upgradePending bool
	upgradeStarted bool
	upgradeDone    chan struct{} // closed when the upgrade task finishes
	listener       *features.ListenerRegistration
}

// NewOrchestrator wires the orchestrator and registers its metrics.
// The caller still has to invoke Start.
func NewOrchestrator(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:            cfg,
		deps:           deps,
		log:            deps.Logger.With(logging.Component("group0")),
		reg:            metrics.DefaultRegistry(),
		addrs:          NewAddressMap(),
		tasks:          &taskGate{},
		shutdownCtx:    ctx,
		cancelShutdown: cancel,
		state:          absentState(),
	}
	o.publishStatus()
	return o, nil
}

// Start registers the RPC handlers for the discovery verbs and seeds
// the address map from gossip. Must complete before any other operation.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.aborted {
		return ErrAborted
	}
	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true

	o.loadInitialRaftAddressMap()
	if o.deps.RPC != nil {
		o.deps.RPC.RegisterHandler(o)
	}

	o.log.Info("orchestrator started", logging.Address(o.cfg.Address))
	return nil
}

// loadInitialRaftAddressMap seeds the address map from currently known
// cluster membership, before any discovery traffic. Callers hold o.mu.
func (o *Orchestrator) loadInitialRaftAddressMap() {
	for _, ep := range o.deps.Gossiper.LiveEndpoints() {
		o.addrs.Set(ep.ServerID, ep.Address)
	}
}

// IsRaftEnabled reports whether the consensus engine is enabled locally
func (o *Orchestrator) IsRaftEnabled() bool {
	return o.deps.Registry.IsEnabled()
}

// JoinedGroup0 reports whether group 0 is established and the local
// server is running
func (o *Orchestrator) JoinedGroup0() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.kind == stateEstablished && o.server != nil
}

// Group0Server returns the running group 0 server. Valid only after
// SetupGroup0 (or the upgrade procedure) completed.
func (o *Orchestrator) Group0Server() (raft.Server, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.server == nil {
		return nil, raft.ErrServerNotStarted
	}
	return o.server, nil
}

// AddressMap returns the server-identity-to-address map
func (o *Orchestrator) AddressMap() *AddressMap {
	return o.addrs
}

// LoadMyID returns this node's durable identity. A node whose identity
// was never established cannot proceed; callers abort startup on error.
func (o *Orchestrator) LoadMyID() (raft.ServerID, error) {
	id, ok := o.deps.Store.LoadIdentity()
	if !ok {
		return "", ErrNoIdentity
	}
	return id, nil
}

// IsMember reports whether id is part of the locally cached group 0
// configuration. With votersOnly set, only voting members count.
// Requires JoinedGroup0.
func (o *Orchestrator) IsMember(id raft.ServerID, votersOnly bool) bool {
	o.mu.Lock()
	srv := o.server
	o.mu.Unlock()
	if srv == nil {
		return false
	}
	return srv.Configuration().IsMember(id, votersOnly)
}

// WaitForRaft gates membership-mutating operations. It returns false
// immediately when the consensus engine is disabled or the node is
// still pending upgrade; otherwise it waits for any in-flight upgrade,
// performs a linearizing read barrier so the caller observes every
// configuration committed up to this call, and returns true.
func (o *Orchestrator) WaitForRaft(ctx context.Context) (bool, error) {
	if !o.deps.Registry.IsEnabled() {
		return false, nil
	}

	o.mu.Lock()
	pending := o.upgradePending
	started := o.upgradeStarted
	done := o.upgradeDone
	o.mu.Unlock()

	if pending && !started {
		// Upgrade not yet triggered; group 0 does not exist here.
		return false, nil
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	o.mu.Lock()
	srv := o.server
	o.mu.Unlock()
	if srv == nil {
		return false, nil
	}

	start := time.Now()
	if err := srv.ReadBarrier(ctx); err != nil {
		return false, fmt.Errorf("read barrier failed: %w", err)
	}
	o.reg.Group0ReadBarrierDuration.Observe(time.Since(start).Seconds())

	o.mu.Lock()
	o.raftAvailable = true
	o.mu.Unlock()
	return true, nil
}

// Abort cancels in-flight discovery, join and upgrade work, closes the
// task gate so no new background work starts, and waits for outstanding
// work to finish. Must be called before the orchestrator is discarded.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	if o.aborted {
		o.mu.Unlock()
		return
	}
	o.aborted = true
	listener := o.listener
	var pd *discovery.PersistentDiscovery
	if o.state.kind == stateDiscovering {
		pd = o.state.discovery
	}
	o.mu.Unlock()

	o.cancelShutdown()
	listener.Cancel()
	if pd != nil {
		pd.Stop()
	}
	o.tasks.closeAndWait()

	o.mu.Lock()
	o.publishStatusLocked()
	o.mu.Unlock()
	o.log.Info("orchestrator aborted")
}

// MonitoringStatus derives the operational status from the lifecycle
// and feature state. Observation only, never authoritative.
func (o *Orchestrator) MonitoringStatus() MonitoringStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

func (o *Orchestrator) statusLocked() MonitoringStatus {
	switch {
	case o.aborted:
		return StatusAborted
	case !o.deps.Registry.IsEnabled():
		return StatusDisabled
	default:
		return StatusNormal
	}
}

func (o *Orchestrator) publishStatus() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.publishStatusLocked()
}

func (o *Orchestrator) publishStatusLocked() {
	o.reg.SetGroup0Status(float64(o.statusLocked()))
}

// opContext derives a context cancelled by either the caller or Abort
func (o *Orchestrator) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(o.shutdownCtx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// spawn runs fn as a gate-tracked background task under the shared
// cancellation signal. Returns false if the gate is already closed.
func (o *Orchestrator) spawn(name string, fn func(ctx context.Context)) bool {
	if !o.tasks.enter() {
		return false
	}
	go func() {
		defer o.tasks.leave()
		o.log.Debug("background task started", logging.Operation(name))
		fn(o.shutdownCtx)
		o.log.Debug("background task finished", logging.Operation(name))
	}()
	return true
}
