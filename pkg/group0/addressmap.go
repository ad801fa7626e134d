package group0

import (
	"sync"

	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

// AddressMap maps consensus server identities to node network
// addresses. Seeded from gossip at startup, then kept current by the
// orchestrator as members join and leave.
type AddressMap struct {
	mu    sync.RWMutex
	addrs map[raft.ServerID]string
}

// NewAddressMap creates an empty map
func NewAddressMap() *AddressMap {
	return &AddressMap{addrs: make(map[raft.ServerID]string)}
}

// Set records or updates the address for id. Empty ids are ignored.
func (m *AddressMap) Set(id raft.ServerID, addr string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addrs[id] = addr
}

// Address returns the known address for id
func (m *AddressMap) Address(id raft.ServerID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.addrs[id]
	return addr, ok
}

// Remove forgets id
func (m *AddressMap) Remove(id raft.ServerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.addrs, id)
}

// Entries returns a copy of the current mapping
func (m *AddressMap) Entries() map[raft.ServerID]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[raft.ServerID]string, len(m.addrs))
	for id, addr := range m.addrs {
		out[id] = addr
	}
	return out
}
