package raft

import (
	"github.com/google/uuid"
)

// ServerID uniquely identifies a consensus server across the cluster.
// IDs are generated once per node and persist for the node's lifetime.
type ServerID string

// GroupID identifies a consensus group. Group 0 is the cluster-wide
// metadata group.
type GroupID string

// NewServerID generates a fresh server identity
func NewServerID() ServerID {
	return ServerID(uuid.NewString())
}

// NewGroupID generates a fresh group identity
func NewGroupID() GroupID {
	return GroupID(uuid.NewString())
}

// Member describes one member of a group configuration
type Member struct {
	ID      ServerID `json:"id"`
	Address string   `json:"address"` // host:port reachable by other members
	Voter   bool     `json:"voter"`   // counts toward commit quorum
}

// Configuration is a point-in-time group membership snapshot
type Configuration struct {
	Members map[ServerID]Member `json:"members"`
}

// NewConfiguration returns an empty configuration
func NewConfiguration() Configuration {
	return Configuration{Members: make(map[ServerID]Member)}
}

// IsMember reports whether id is part of the configuration.
// With votersOnly set, only voting members count.
func (c Configuration) IsMember(id ServerID, votersOnly bool) bool {
	m, ok := c.Members[id]
	if !ok {
		return false
	}
	if votersOnly {
		return m.Voter
	}
	return true
}

// CountVoters returns the number of voting and non-voting members
func (c Configuration) CountVoters() (voters, nonvoters int) {
	for _, m := range c.Members {
		if m.Voter {
			voters++
		} else {
			nonvoters++
		}
	}
	return voters, nonvoters
}

// Clone returns a deep copy of the configuration
func (c Configuration) Clone() Configuration {
	out := NewConfiguration()
	for id, m := range c.Members {
		out.Members[id] = m
	}
	return out
}

// ConfigChangeKind enumerates configuration-change entry types
type ConfigChangeKind int

const (
	// AddMember adds a new member with the given voter flag
	AddMember ConfigChangeKind = iota
	// RemoveMember removes a member; removing a non-member is a no-op
	RemoveMember
	// SetVoter promotes a member to voter; promoting a voter is a no-op
	SetVoter
	// SetNonvoter demotes a member to non-voter; demoting a non-voter is a no-op
	SetNonvoter
)

// String returns the string representation of a ConfigChangeKind
func (k ConfigChangeKind) String() string {
	switch k {
	case AddMember:
		return "add_member"
	case RemoveMember:
		return "remove_member"
	case SetVoter:
		return "set_voter"
	case SetNonvoter:
		return "set_nonvoter"
	default:
		return "unknown"
	}
}

// ConfigChange is a single configuration-change entry submitted to the
// consensus log. Changes of kind RemoveMember, SetVoter and SetNonvoter
// are idempotent: re-applying one converges to the same configuration.
type ConfigChange struct {
	Kind   ConfigChangeKind `json:"kind"`
	Member Member           `json:"member"`
}
