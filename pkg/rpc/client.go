package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-metaraft/pkg/discovery"
)

// ErrRemote wraps an error reported by the remote side
var ErrRemote = errors.New("remote error")

const defaultExchangeTimeout = 5 * time.Second

// Client sends discovery verbs to remote nodes. One request/reply socket
// is dialed per call so unreachable peers never wedge a shared socket.
// Client implements discovery.Exchanger.
type Client struct {
	factory SocketFactory
	timeout time.Duration
}

// NewClient creates a client over the given socket factory
func NewClient(factory SocketFactory) *Client {
	return &Client{factory: factory, timeout: defaultExchangeTimeout}
}

// Exchange sends a PEER_EXCHANGE request, mapping the reply onto a
// discovery exchange result
func (c *Client) Exchange(ctx context.Context, addr string, peers discovery.PeerList) (discovery.ExchangeResult, error) {
	var resp PeerExchangeResponse
	if err := c.call(ctx, addr, VerbPeerExchange, PeerExchangeRequest{Peers: peers}, &resp); err != nil {
		return discovery.ExchangeResult{}, err
	}

	switch resp.Kind {
	case ExchangeGroup0:
		return discovery.ExchangeResult{Group: resp.Group}, nil
	case ExchangePeers:
		return discovery.ExchangeResult{Peers: &resp.Peers}, nil
	default:
		return discovery.ExchangeResult{}, nil // retry later
	}
}

// Discover sends a DISCOVER request. ok=false means the remote session
// is not accepting exchanges.
func (c *Client) Discover(ctx context.Context, addr string, peers discovery.PeerList) (discovery.PeerList, bool, error) {
	var resp DiscoverResponse
	if err := c.call(ctx, addr, VerbDiscover, DiscoverRequest{Peers: peers}, &resp); err != nil {
		return nil, false, err
	}
	return resp.Peers, resp.Found, nil
}

func (c *Client) call(ctx context.Context, addr, verb string, request, response any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sock, err := c.factory.NewReqSocket()
	if err != nil {
		return fmt.Errorf("failed to create request socket: %w", err)
	}
	defer sock.Close()

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	sock.SetSendDeadline(timeout)
	sock.SetRecvDeadline(timeout)

	if err := sock.Dial(addr); err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	data, err := json.Marshal(envelope{Verb: verb, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := sock.Send(data); err != nil {
		return fmt.Errorf("failed to send to %s: %w", addr, err)
	}

	raw, err := sock.Recv()
	if err != nil {
		return fmt.Errorf("failed to receive from %s: %w", addr, err)
	}

	var rep reply
	if err := json.Unmarshal(raw, &rep); err != nil {
		return fmt.Errorf("malformed reply from %s: %w", addr, err)
	}
	if rep.Status != "ok" {
		return fmt.Errorf("%w: %s", ErrRemote, rep.Error)
	}

	if err := json.Unmarshal(rep.Payload, response); err != nil {
		return fmt.Errorf("malformed reply payload from %s: %w", addr, err)
	}
	return nil
}
