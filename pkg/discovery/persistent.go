package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-metaraft/pkg/logging"
	"github.com/dd0wney/cluso-metaraft/pkg/metrics"
	"github.com/dd0wney/cluso-metaraft/pkg/sysstore"
)

// ErrRunInProgress is returned when Run is invoked while another Run is
// still active on the same instance.
var ErrRunInProgress = errors.New("discovery run already in progress")

// ExchangeResult is a remote's answer to a peer exchange: an existing
// group, a peer list, or neither (the remote isn't ready; retry later).
type ExchangeResult struct {
	Group *GroupInfo
	Peers *PeerList
}

// Exchanger sends a peer-exchange request to a remote node. Implemented
// by the rpc package; faked in tests.
type Exchanger interface {
	Exchange(ctx context.Context, addr string, peers PeerList) (ExchangeResult, error)
}

// PersistentDiscovery wraps Engine with durable peer storage: every
// newly learned peer is written to the system store before the exchange
// is acknowledged, so a restart resumes from the same knowledge.
type PersistentDiscovery struct {
	engine *Engine
	store  *sysstore.Store
	log    logging.Logger
	reg    *metrics.Registry

	tickInterval time.Duration

	mu      sync.Mutex
	running bool
	stopped chan struct{} // closed when an active Run returns
}

// NewPersistentDiscovery constructs a discovery session for self. Seeds
// are unioned with previously persisted peers; persisted identity
// information takes precedence over seed entries for the same address.
func NewPersistentDiscovery(self Peer, seeds PeerList, store *sysstore.Store, log logging.Logger) (*PersistentDiscovery, error) {
	// Persisted peers are merged first so their identities take
	// precedence: the engine never replaces a known identity, so a peer
	// confirmed in an earlier run cannot be "forgotten" by a seed entry.
	engine := NewEngine(self, persistedPeers(store))
	engine.Request(seeds)

	pd := &PersistentDiscovery{
		engine:       engine,
		store:        store,
		log:          log.With(logging.Component("discovery")),
		reg:          metrics.DefaultRegistry(),
		tickInterval: time.Second,
	}

	// Seeds themselves are persisted so restarts do not depend on the
	// caller supplying the same contact points.
	for _, p := range engine.KnownPeers() {
		if p.Address == self.Address {
			continue
		}
		if err := store.SavePeer(sysstore.Peer{Address: p.Address, ServerID: p.ID}); err != nil {
			return nil, fmt.Errorf("failed to persist seed peer: %w", err)
		}
	}

	return pd, nil
}

func persistedPeers(store *sysstore.Store) PeerList {
	var out PeerList
	for _, p := range store.Peers() {
		out = append(out, Peer{Address: p.Address, ID: p.ServerID})
	}
	return out
}

// Run drives the algorithm to completion: tick, send outstanding
// requests, apply responses, persist newly learned peers. It terminates
// when a peer reveals an existing group or this node wins the leader
// tie-break. Unreachable peers are retried forever; cancellation is the
// only early exit. Must not be invoked concurrently with itself.
func (pd *PersistentDiscovery) Run(ctx context.Context, ex Exchanger) (Outcome, error) {
	pd.mu.Lock()
	if pd.running {
		pd.mu.Unlock()
		return Outcome{}, ErrRunInProgress
	}
	pd.running = true
	pd.stopped = make(chan struct{})
	pd.mu.Unlock()

	defer func() {
		pd.mu.Lock()
		pd.running = false
		close(pd.stopped)
		pd.mu.Unlock()
	}()

	start := time.Now()
	pd.log.Info("discovery started",
		logging.Address(pd.engine.Self().Address),
		logging.Count(len(pd.engine.KnownPeers())-1))

	for {
		out := pd.tick()
		if out.Terminal != nil {
			pd.reg.DiscoveryDuration.Observe(time.Since(start).Seconds())
			if out.Terminal.IsLeader {
				pd.log.Info("discovery finished: elected leader, group 0 does not exist yet")
			} else {
				pd.log.Info("discovery finished: found existing group 0",
					logging.GroupID(string(out.Terminal.Info.GroupID)),
					logging.Peer(out.Terminal.Info.Leader.Address))
			}
			return *out.Terminal, nil
		}

		for _, req := range out.Requests {
			if err := ctx.Err(); err != nil {
				return Outcome{}, err
			}
			result, err := ex.Exchange(ctx, req.To.Address, req.Peers)
			if err != nil {
				// Unreachable peers are not fatal; retry next tick.
				pd.reg.RecordDiscoveryRequest("outbound", "error")
				pd.log.Debug("peer exchange failed", logging.Peer(req.To.Address), logging.Error(err))
				continue
			}
			pd.reg.RecordDiscoveryRequest("outbound", "ok")

			switch {
			case result.Group != nil:
				outcome := &Outcome{Info: result.Group}
				pd.engine.Finish(outcome)
				pd.reg.DiscoveryDuration.Observe(time.Since(start).Seconds())
				pd.log.Info("discovery finished: peer reported existing group 0",
					logging.Peer(req.To.Address),
					logging.GroupID(string(result.Group.GroupID)))
				return *outcome, nil
			case result.Peers != nil:
				learned := pd.engine.Response(req.To, *result.Peers)
				if err := pd.persist(learned); err != nil {
					return Outcome{}, err
				}
			default:
				// Remote not ready; try again on a later tick.
			}
		}

		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-time.After(pd.tickInterval):
		}
	}
}

func (pd *PersistentDiscovery) tick() TickOutput {
	out := pd.engine.Tick()
	pd.reg.DiscoveryRoundsTotal.Inc()
	pd.reg.DiscoveryPeersKnown.Set(float64(len(pd.engine.KnownPeers()) - 1))
	return out
}

// Request handles an inbound peer exchange, persisting newly learned
// peers before acknowledging. Returns ok=false when the session already
// terminated or was never started; the remote should retry elsewhere.
// Safe to call concurrently with Run and Stop.
func (pd *PersistentDiscovery) Request(peers PeerList) (PeerList, bool, error) {
	response, learned, ok := pd.engine.Request(peers)
	if !ok {
		return nil, false, nil
	}
	if err := pd.persist(learned); err != nil {
		return nil, false, err
	}
	pd.reg.RecordDiscoveryRequest("inbound", "ok")
	return response, true, nil
}

func (pd *PersistentDiscovery) persist(learned PeerList) error {
	for _, p := range learned {
		if err := pd.store.SavePeer(sysstore.Peer{Address: p.Address, ServerID: p.ID}); err != nil {
			return fmt.Errorf("failed to persist peer %s: %w", p.Address, err)
		}
	}
	return nil
}

// Stop waits for an in-flight Run to observe cancellation and return.
// The caller cancels the context passed to Run before calling Stop.
// Must not be called concurrently with Run itself; safe with Request.
func (pd *PersistentDiscovery) Stop() {
	pd.mu.Lock()
	stopped := pd.stopped
	running := pd.running
	pd.mu.Unlock()

	if running && stopped != nil {
		<-stopped
	}
}
