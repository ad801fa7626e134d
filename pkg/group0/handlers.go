package group0

import (
	"github.com/dd0wney/cluso-metaraft/pkg/discovery"
	"github.com/dd0wney/cluso-metaraft/pkg/rpc"
)

// The orchestrator is the handler for the node-to-node discovery verbs.
// Handlers run on the RPC receive path and may interleave with an
// in-flight discovery run; the discovery session serializes internally.

// HandleDiscover answers a DISCOVER exchange: merge the remote's peers,
// return what this node knows. ok=false when no discovery session is
// accepting exchanges, telling the remote to retry elsewhere.
func (o *Orchestrator) HandleDiscover(peers discovery.PeerList) (discovery.PeerList, bool, error) {
	o.mu.Lock()
	state := o.state
	o.mu.Unlock()

	if state.kind != stateDiscovering {
		return nil, false, nil
	}
	return state.discovery.Request(peers)
}

// HandlePeerExchange answers a PEER_EXCHANGE request. An established
// node reveals the group so the remote joins instead of discovering; a
// discovering node trades peer knowledge; an absent node asks the
// remote to retry later.
func (o *Orchestrator) HandlePeerExchange(peers discovery.PeerList) (rpc.PeerExchangeResponse, error) {
	o.mu.Lock()
	state := o.state
	srv := o.server
	o.mu.Unlock()

	switch state.kind {
	case stateEstablished:
		info := &discovery.GroupInfo{
			GroupID: state.groupID,
			Leader:  discovery.Peer{Address: o.cfg.Address},
		}
		if srv != nil {
			info.Leader.ID = srv.ID()
		}
		return rpc.PeerExchangeResponse{Kind: rpc.ExchangeGroup0, Group: info}, nil

	case stateDiscovering:
		response, ok, err := state.discovery.Request(peers)
		if err != nil {
			return rpc.PeerExchangeResponse{}, err
		}
		if !ok {
			return rpc.PeerExchangeResponse{Kind: rpc.ExchangeRetry}, nil
		}
		return rpc.PeerExchangeResponse{Kind: rpc.ExchangePeers, Peers: response}, nil

	default:
		return rpc.PeerExchangeResponse{Kind: rpc.ExchangeRetry}, nil
	}
}
