package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-metaraft/pkg/discovery"
)

// LoopbackNetwork routes verbs between in-process nodes without sockets.
// Used by tests and single-process demos. It implements
// discovery.Exchanger for every registered address.
type LoopbackNetwork struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	down     map[string]bool
}

// NewLoopbackNetwork creates an empty in-process network
func NewLoopbackNetwork() *LoopbackNetwork {
	return &LoopbackNetwork{
		handlers: make(map[string]Handler),
		down:     make(map[string]bool),
	}
}

// Register attaches a handler at addr
func (n *LoopbackNetwork) Register(addr string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[addr] = h
}

// SetDown simulates an unreachable node
func (n *LoopbackNetwork) SetDown(addr string, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[addr] = down
}

func (n *LoopbackNetwork) handler(addr string) (Handler, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.down[addr] {
		return nil, fmt.Errorf("peer %s unreachable", addr)
	}
	h, ok := n.handlers[addr]
	if !ok {
		return nil, fmt.Errorf("peer %s unreachable", addr)
	}
	return h, nil
}

// Exchange delivers a PEER_EXCHANGE directly to the target handler
func (n *LoopbackNetwork) Exchange(ctx context.Context, addr string, peers discovery.PeerList) (discovery.ExchangeResult, error) {
	if err := ctx.Err(); err != nil {
		return discovery.ExchangeResult{}, err
	}

	h, err := n.handler(addr)
	if err != nil {
		return discovery.ExchangeResult{}, err
	}

	resp, err := h.HandlePeerExchange(peers)
	if err != nil {
		return discovery.ExchangeResult{}, err
	}
	switch resp.Kind {
	case ExchangeGroup0:
		return discovery.ExchangeResult{Group: resp.Group}, nil
	case ExchangePeers:
		return discovery.ExchangeResult{Peers: &resp.Peers}, nil
	default:
		return discovery.ExchangeResult{}, nil
	}
}

// Discover delivers a DISCOVER directly to the target handler
func (n *LoopbackNetwork) Discover(ctx context.Context, addr string, peers discovery.PeerList) (discovery.PeerList, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	h, err := n.handler(addr)
	if err != nil {
		return nil, false, err
	}
	return h.HandleDiscover(peers)
}
