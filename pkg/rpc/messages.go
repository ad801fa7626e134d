package rpc

import (
	"encoding/json"

	"github.com/dd0wney/cluso-metaraft/pkg/discovery"
)

// Verbs exchanged between nodes during group 0 bootstrap
const (
	VerbDiscover     = "discover"
	VerbPeerExchange = "peer_exchange"
)

// envelope frames every request on the wire
type envelope struct {
	Verb    string          `json:"verb"`
	Payload json.RawMessage `json:"payload"`
}

// reply frames every response
type reply struct {
	Status  string          `json:"status"` // "ok" or "error"
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DiscoverRequest carries the sender's peer knowledge
type DiscoverRequest struct {
	Peers discovery.PeerList `json:"peers"`
}

// DiscoverResponse returns the receiver's peer knowledge, or Found=false
// when the receiver's discovery session is not accepting exchanges
type DiscoverResponse struct {
	Found bool               `json:"found"`
	Peers discovery.PeerList `json:"peers,omitempty"`
}

// PeerExchangeRequest carries the sender's peer knowledge
type PeerExchangeRequest struct {
	Peers discovery.PeerList `json:"peers"`
}

// Peer-exchange result kinds
const (
	ExchangeRetry  = "retry"  // receiver not ready; try again later
	ExchangePeers  = "peers"  // here is what the receiver knows
	ExchangeGroup0 = "group0" // the receiver already has a group
)

// PeerExchangeResponse answers a peer exchange with exactly one of:
// a retry indication, the receiver's peer list, or the existing group
type PeerExchangeResponse struct {
	Kind  string               `json:"kind"`
	Peers discovery.PeerList   `json:"peers,omitempty"`
	Group *discovery.GroupInfo `json:"group,omitempty"`
}
