package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-metaraft/pkg/discovery"
	"github.com/dd0wney/cluso-metaraft/pkg/logging"
	"github.com/dd0wney/cluso-metaraft/pkg/metrics"
)

var (
	ErrAlreadyStarted = errors.New("rpc server already started")
	ErrUnknownVerb    = errors.New("unknown rpc verb")
)

// Handler serves the discovery verbs. Implemented by the group 0
// orchestrator; handlers run on the server's receive loop and may be
// invoked concurrently with the orchestrator's own discovery run.
type Handler interface {
	// HandleDiscover answers a DISCOVER exchange. ok=false means the
	// local session is not accepting exchanges (terminated or absent).
	HandleDiscover(peers discovery.PeerList) (discovery.PeerList, bool, error)

	// HandlePeerExchange answers a PEER_EXCHANGE request with one of
	// retry / peer list / existing group.
	HandlePeerExchange(peers discovery.PeerList) (PeerExchangeResponse, error)
}

// Server answers discovery verbs on a reply socket. Requests received
// before a handler is registered get a retry indication.
type Server struct {
	factory SocketFactory
	addr    string
	log     logging.Logger
	reg     *metrics.Registry

	mu      sync.Mutex
	handler Handler
	sock    ListenSocket
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewServer creates a server listening on addr once started
func NewServer(factory SocketFactory, addr string, log logging.Logger) *Server {
	return &Server{
		factory: factory,
		addr:    addr,
		log:     log.With(logging.Component("rpc")),
		reg:     metrics.DefaultRegistry(),
	}
}

// RegisterHandler installs the verb handler; called by the orchestrator
// during its start sequence
func (s *Server) RegisterHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Start binds the reply socket and begins serving
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	sock, err := s.factory.NewRepSocket()
	if err != nil {
		return fmt.Errorf("failed to create reply socket: %w", err)
	}
	if err := sock.Listen(s.addr); err != nil {
		sock.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.sock = sock
	s.started = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.serve()
	s.log.Info("rpc server started", logging.Address(s.addr))
	return nil
}

// Stop shuts the server down and waits for the serve loop to exit
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopCh)
	sock := s.sock
	done := s.doneCh
	s.mu.Unlock()

	err := sock.Close()
	<-done
	s.log.Info("rpc server stopped")
	return err
}

func (s *Server) serve() {
	defer close(s.doneCh)

	// Short receive deadline so shutdown is observed promptly
	s.sock.SetRecvDeadline(500 * time.Millisecond)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		data, err := s.sock.Recv()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				continue // receive timeout or transient error
			}
		}

		resp := s.dispatch(data)
		if err := s.sock.Send(resp); err != nil {
			s.log.Warn("failed to send rpc reply", logging.Error(err))
		}
	}
}

func (s *Server) dispatch(data []byte) []byte {
	start := time.Now()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.reg.RecordRPCRequest("invalid", "error", time.Since(start))
		return mustReply(reply{Status: "error", Error: "malformed envelope"})
	}

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	var (
		payload any
		err     error
	)
	switch env.Verb {
	case VerbDiscover:
		var req DiscoverRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			payload, err = s.discover(handler, req)
		}
	case VerbPeerExchange:
		var req PeerExchangeRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			payload, err = s.peerExchange(handler, req)
		}
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownVerb, env.Verb)
	}

	if err != nil {
		s.reg.RecordRPCRequest(env.Verb, "error", time.Since(start))
		s.log.Warn("rpc request failed", logging.String("verb", env.Verb), logging.Error(err))
		return mustReply(reply{Status: "error", Error: err.Error()})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.reg.RecordRPCRequest(env.Verb, "error", time.Since(start))
		return mustReply(reply{Status: "error", Error: "failed to marshal response"})
	}

	s.reg.RecordRPCRequest(env.Verb, "ok", time.Since(start))
	return mustReply(reply{Status: "ok", Payload: raw})
}

func (s *Server) discover(handler Handler, req DiscoverRequest) (DiscoverResponse, error) {
	if handler == nil {
		return DiscoverResponse{Found: false}, nil
	}
	peers, ok, err := handler.HandleDiscover(req.Peers)
	if err != nil {
		return DiscoverResponse{}, err
	}
	return DiscoverResponse{Found: ok, Peers: peers}, nil
}

func (s *Server) peerExchange(handler Handler, req PeerExchangeRequest) (PeerExchangeResponse, error) {
	if handler == nil {
		return PeerExchangeResponse{Kind: ExchangeRetry}, nil
	}
	return handler.HandlePeerExchange(req.Peers)
}

func mustReply(r reply) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		// reply contains only strings and raw JSON; this cannot fail
		return []byte(`{"status":"error","error":"internal"}`)
	}
	return data
}
