//go:build zmq
// +build zmq

package rpc

import (
	"time"

	zmq "github.com/pebbe/zmq4"
)

// zmqSocket wraps a zmq4 socket to implement our Socket interface.
type zmqSocket struct {
	sock *zmq.Socket
}

func (s *zmqSocket) Send(data []byte) error {
	_, err := s.sock.SendBytes(data, 0)
	return err
}

func (s *zmqSocket) Recv() ([]byte, error) {
	return s.sock.RecvBytes(0)
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}

func (s *zmqSocket) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetRcvtimeo(d)
}

func (s *zmqSocket) SetSendDeadline(d time.Duration) error {
	return s.sock.SetSndtimeo(d)
}

func (s *zmqSocket) Listen(addr string) error {
	return s.sock.Bind(addr)
}

func (s *zmqSocket) Dial(addr string) error {
	return s.sock.Connect(addr)
}

// ZMQSocketFactory creates ZeroMQ request and reply sockets.
type ZMQSocketFactory struct{}

// NewZMQSocketFactory creates a new ZMQ socket factory.
func NewZMQSocketFactory() *ZMQSocketFactory {
	return &ZMQSocketFactory{}
}

func (f *ZMQSocketFactory) NewReqSocket() (DialSocket, error) {
	sock, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

func (f *ZMQSocketFactory) NewRepSocket() (ListenSocket, error) {
	sock, err := zmq.NewSocket(zmq.REP)
	if err != nil {
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}
