// Package gossip exposes the narrow slice of the gossip subsystem this
// module consumes: the set of currently known live cluster members, used
// to seed the consensus address map before any discovery traffic.
package gossip

import (
	"sync"

	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

// Endpoint is a cluster member as seen by the gossiper. The server id
// may be empty when the member's consensus identity is not yet known.
type Endpoint struct {
	Address  string
	ServerID raft.ServerID
}

// Gossiper provides the currently known live cluster members
type Gossiper interface {
	LiveEndpoints() []Endpoint
}

// StaticGossiper is a Gossiper over a fixed endpoint set, used at
// startup and in tests
type StaticGossiper struct {
	mu        sync.RWMutex
	endpoints []Endpoint
}

// NewStaticGossiper creates a gossiper with a fixed initial member set
func NewStaticGossiper(endpoints ...Endpoint) *StaticGossiper {
	return &StaticGossiper{endpoints: endpoints}
}

// LiveEndpoints returns the current member set
func (g *StaticGossiper) LiveEndpoints() []Endpoint {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Endpoint, len(g.endpoints))
	copy(out, g.endpoints)
	return out
}

// SetEndpoints replaces the member set
func (g *StaticGossiper) SetEndpoints(endpoints []Endpoint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endpoints = endpoints
}
