// Package tcpserver owns a listening socket, its accept loop and the table of
// live connections. Protocol behavior is supplied by a NewConnFunc.
package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/safemap"
)

// acceptBackoff is the pause after a non-fatal accept error.
const acceptBackoff = 50 * time.Millisecond

// TCPServer accepts connections and delegates each one to a Conn created by
// NewConn. Live connections are tracked by ID until their Handle returns.
type TCPServer struct {
	Logger  logger.Logger
	Name    string
	Addr    string
	NewConn NewConnFunc

	listener net.Listener
	conns    *safemap.SafeMap[uint32, Conn]
	running  atomic.Bool
	nextID   atomic.Uint32
	wg       sync.WaitGroup
}

// New creates a server that will listen on addr once started.
//
// Parameters:
//   - name: Label used in log messages
//   - addr: Listen address, e.g. "0.0.0.0:2121" or "127.0.0.1:0"
//   - log: Logger for lifecycle and accept errors
//   - newConn: Factory for per-connection handlers
//
// Returns:
//   - A stopped TCPServer
func New(name, addr string, log logger.Logger, newConn NewConnFunc) *TCPServer {
	return &TCPServer{
		Logger:  log,
		Name:    name,
		Addr:    addr,
		NewConn: newConn,
		conns:   safemap.NewSafeMap[uint32, Conn](),
	}
}

// Start binds Addr and runs the accept loop in a goroutine.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Start() error {
	if s.running.Load() {
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.listener = ln
	s.running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})
	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// ListenAddr returns the bound address, or nil before Start.
func (s *TCPServer) ListenAddr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Stop closes the listener and every live connection, then waits for all
// connection handlers to return. Safe to call when the server is not running.
func (s *TCPServer) Stop() {
	if !s.running.Swap(false) {
		return
	}

	_ = s.listener.Close()
	s.conns.Range(func(_ uint32, c Conn) bool {
		_ = c.Close()
		return true
	})
	s.wg.Wait()

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// Len returns the number of live connections.
func (s *TCPServer) Len() int {
	return s.conns.Len()
}

func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		nc, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Field{Key: "error", Value: err})
			time.Sleep(acceptBackoff)
			continue
		}

		id := s.nextID.Add(1)
		c := s.NewConn(id, nc)
		s.conns.Store(id, c)
		if !s.running.Load() {
			_ = c.Close()
		}

		s.wg.Add(1)
		go s.serve(id, c)
	}
}

func (s *TCPServer) serve(id uint32, c Conn) {
	defer s.wg.Done()
	defer s.conns.Delete(id)
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error(fmt.Sprintf("%s connection handler panicked", s.Name),
				logger.Field{Key: "conn_id", Value: id},
				logger.Field{Key: "panic", Value: fmt.Sprint(r)})
		}
		_ = c.Close()
	}()

	c.Handle()
}
