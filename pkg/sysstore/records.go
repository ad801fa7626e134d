package sysstore

import (
	"fmt"

	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

// LoadIdentity returns this node's persisted server identity
func (s *Store) LoadIdentity() (raft.ServerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.identity != ""
}

// SaveIdentity persists this node's server identity. Saving the same
// identity again is a no-op; a different identity is rejected since it
// must be stable for the lifetime of the data directory.
func (s *Store) SaveIdentity(id raft.ServerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity != "" {
		if s.identity == id {
			return nil
		}
		return fmt.Errorf("%w: have %s, got %s", ErrIdentityMismatch, s.identity, id)
	}

	if err := s.appendRecord(kindIdentity, id); err != nil {
		return err
	}
	s.identity = id
	return nil
}

// Peers returns all persisted discovery peers
func (s *Store) Peers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	return peers
}

// SavePeer upserts a discovery peer keyed by address. Identity attached
// to a persisted peer is never dropped by a later record without one.
func (s *Store) SavePeer(p Peer) error {
	if p.Address == "" {
		return ErrInvalidPeer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.peers[p.Address]; ok {
		if p.ServerID == "" || existing.ServerID == p.ServerID {
			return nil // nothing new to learn
		}
	}

	if err := s.appendRecord(kindPeer, p); err != nil {
		return err
	}
	s.mergePeer(p)
	return nil
}

// LoadGroup0ID returns the persisted group 0 id
func (s *Store) LoadGroup0ID() (raft.GroupID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group0ID, s.group0ID != ""
}

// SaveGroup0ID persists the group 0 id. Written once; it is never
// overwritten with a different value for the lifetime of the data
// directory.
func (s *Store) SaveGroup0ID(gid raft.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.group0ID != "" {
		if s.group0ID == gid {
			return nil
		}
		return fmt.Errorf("%w: have %s, got %s", ErrGroup0IDMismatch, s.group0ID, gid)
	}

	if err := s.appendRecord(kindGroup0ID, gid); err != nil {
		return err
	}
	s.group0ID = gid
	return nil
}

// LoadUpgradePhase returns the persisted upgrade phase, or "" if the
// upgrade never started
func (s *Store) LoadUpgradePhase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SaveUpgradePhase persists the upgrade phase. Phase ordering is owned
// by the upgrade driver; the store only records the latest value.
func (s *Store) SaveUpgradePhase(phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == phase {
		return nil
	}

	if err := s.appendRecord(kindUpgradePhase, phase); err != nil {
		return err
	}
	s.phase = phase
	return nil
}
