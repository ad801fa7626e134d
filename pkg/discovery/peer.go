package discovery

import (
	"github.com/dd0wney/cluso-metaraft/pkg/raft"
)

// Peer is a node participating in discovery. The address uniquely
// identifies a peer; the server id is attached once learned from a
// response and never changed afterwards.
type Peer struct {
	Address string        `json:"address"`
	ID      raft.ServerID `json:"id,omitempty"`
}

// PeerList is a set of peers keyed by address; ordering is irrelevant
type PeerList []Peer

// GroupInfo describes an existing group 0: its id and the peer that
// created or currently fronts it
type GroupInfo struct {
	GroupID raft.GroupID `json:"group_id"`
	Leader  Peer         `json:"leader"`
}

// Outcome is the terminal result of a discovery run: either this node
// was elected to create group 0, or an existing group was found
type Outcome struct {
	IsLeader bool
	Info     *GroupInfo // set when joining an existing group
}

// Request is an outstanding peer-exchange request produced by Tick
type Request struct {
	To    Peer
	Peers PeerList // our current knowledge, shared with the remote
}

// TickOutput is a single step of the algorithm: either the terminal
// outcome, or the set of requests to send before the next tick
type TickOutput struct {
	Terminal *Outcome
	Requests []Request
}
