package rpcapi

import (
	"net"
	"net/rpc"
)

// Server listens for net/rpc connections and serves RateLimiterService
// over encoding/gob, the default net/rpc wire codec.
type Server struct {
	listener net.Listener
	rpcSrv   *rpc.Server
}

// Listen binds addr and registers svc under the name "RateLimiterService"
// (spec.md §6's service name).
func Listen(addr string, svc *RateLimiterService) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName("RateLimiterService", svc); err != nil {
		_ = listener.Close()
		return nil, err
	}

	return &Server{listener: listener, rpcSrv: rpcSrv}, nil
}

// Addr returns the bound address, useful when Listen was given ":0".
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until the listener is closed, serving each
// one on its own goroutine. It blocks; callers typically run it via `go`.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.rpcSrv.ServeConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}
