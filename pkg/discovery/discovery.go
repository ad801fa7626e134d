// Package discovery implements the group 0 bootstrap algorithm: a
// peer-exchange protocol that converges on either "join the existing
// group" or "this node is the leader, create the group". The engine in
// this file is pure state; PersistentDiscovery wraps it with durable
// peer storage and the RPC-driven run loop.
package discovery

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Engine is the pure discovery algorithm. All methods are safe for
// concurrent use. Tick drives the retry logic; Request and Response
// apply remote knowledge.
//
// Leadership tie-break: when every known peer has answered our requests
// and nobody reported an existing group, the node with the lowest
// address wins and creates group 0.
type Engine struct {
	mu        sync.Mutex
	self      Peer
	peers     map[string]Peer // known peers, excluding self
	responded map[string]bool // peers that answered since the last poll round
	done      bool
	outcome   *Outcome
}

// NewEngine constructs a discovery session for self seeded with the
// given peers. Self's address must be stable across restarts.
func NewEngine(self Peer, seeds PeerList) *Engine {
	e := &Engine{
		self:      self,
		peers:     make(map[string]Peer),
		responded: make(map[string]bool),
	}
	e.merge(seeds)
	return e
}

// Self returns this node's discovery identity
func (e *Engine) Self() Peer {
	return e.self
}

// KnownPeers returns every peer this session knows about, self included,
// sorted by address
func (e *Engine) KnownPeers() PeerList {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.knownPeersLocked()
}

func (e *Engine) knownPeersLocked() PeerList {
	list := maps.Values(e.peers)
	list = append(list, e.self)
	slices.SortFunc(list, func(a, b Peer) int {
		switch {
		case a.Address < b.Address:
			return -1
		case a.Address > b.Address:
			return 1
		default:
			return 0
		}
	})
	return list
}

// merge folds remote knowledge into the peer set and reports the peers
// that carried new information (a new address, or an identity for a
// previously anonymous peer). A peer's identity, once known, is never
// replaced.
func (e *Engine) merge(peers PeerList) PeerList {
	var learned PeerList
	for _, p := range peers {
		if p.Address == "" || p.Address == e.self.Address {
			continue
		}
		existing, ok := e.peers[p.Address]
		if !ok {
			e.peers[p.Address] = p
			learned = append(learned, p)
			continue
		}
		if existing.ID == "" && p.ID != "" {
			existing.ID = p.ID
			e.peers[p.Address] = existing
			learned = append(learned, existing)
		}
	}
	return learned
}

// Request handles an inbound peer exchange: merges the remote's peers
// and returns our own knowledge, plus the newly learned peers so the
// caller can persist them before acknowledging. ok is false when the
// session already terminated; the remote should retry elsewhere.
func (e *Engine) Request(peers PeerList) (response PeerList, learned PeerList, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return nil, nil, false
	}
	learned = e.merge(peers)
	return e.knownPeersLocked(), learned, true
}

// Response applies a peer's answer to one of our requests and returns
// the newly learned peers for persistence.
func (e *Engine) Response(from Peer, peers PeerList) PeerList {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.responded[from.Address] = true
	learned := e.merge(peers)
	if from.ID != "" {
		learned = append(learned, e.merge(PeerList{from})...)
	}
	return learned
}

// Tick is one step of the retry logic. It either produces the terminal
// leader outcome, or the requests to send before the next tick. A node
// that is not the leader keeps polling so it eventually learns the group
// id from whoever creates it.
func (e *Engine) Tick() TickOutput {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return TickOutput{Terminal: e.outcome}
	}

	pending := make([]Peer, 0, len(e.peers))
	for addr, p := range e.peers {
		if !e.responded[addr] {
			pending = append(pending, p)
		}
	}

	if len(pending) == 0 {
		// Every known peer answered and nobody reported a group.
		if e.isLowestAddressLocked() {
			e.done = true
			e.outcome = &Outcome{IsLeader: true}
			return TickOutput{Terminal: e.outcome}
		}
		// Not the leader: start a fresh poll round.
		e.responded = make(map[string]bool)
		pending = maps.Values(e.peers)
	}

	slices.SortFunc(pending, func(a, b Peer) int {
		switch {
		case a.Address < b.Address:
			return -1
		case a.Address > b.Address:
			return 1
		default:
			return 0
		}
	})

	known := e.knownPeersLocked()
	requests := make([]Request, 0, len(pending))
	for _, p := range pending {
		requests = append(requests, Request{To: p, Peers: known})
	}
	return TickOutput{Requests: requests}
}

// Finish marks the session terminated with the given outcome, typically
// after a peer revealed an existing group. Subsequent inbound requests
// are refused so remotes retry against the orchestrator instead.
func (e *Engine) Finish(outcome *Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.done {
		e.done = true
		e.outcome = outcome
	}
}

func (e *Engine) isLowestAddressLocked() bool {
	for addr := range e.peers {
		if addr < e.self.Address {
			return false
		}
	}
	return true
}
