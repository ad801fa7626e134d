// Package rpc carries the node-to-node verbs used while establishing
// group 0: DISCOVER and PEER_EXCHANGE. Requests are JSON envelopes over
// a request/reply socket pair; the socket layer is pluggable (NNG by
// default, ZMQ behind the zmq build tag, in-memory for tests).
package rpc

import (
	"io"
	"time"
)

// Socket is a messaging socket that can send and receive framed messages
type Socket interface {
	io.Closer
	Send([]byte) error
	Recv() ([]byte, error)
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
}

// ListenSocket binds to an address and serves requests
type ListenSocket interface {
	Socket
	Listen(addr string) error
}

// DialSocket connects to a remote address
type DialSocket interface {
	Socket
	Dial(addr string) error
}

// SocketFactory creates request/reply socket pairs. Implementations
// provide real NNG or ZMQ sockets, or in-memory mocks for testing.
type SocketFactory interface {
	NewReqSocket() (DialSocket, error)
	NewRepSocket() (ListenSocket, error)
}
