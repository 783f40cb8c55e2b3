// Package ftpserver is the camera-facing FTP front end. It authenticates
// tenants, confines each session to its tenant sandbox, receives uploads over
// passive data channels and hands completed uploads to the work queue.
package ftpserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/queue"
	"github.com/cyberinferno/camingest/session"
	"github.com/cyberinferno/camingest/tcpserver"
	"github.com/cyberinferno/camingest/tenant"
)

// Enqueuer receives completed uploads.
type Enqueuer interface {
	Push(ctx context.Context, job queue.Job)
}

// Options configures the server.
type Options struct {
	// Addr is the control listener address.
	Addr string
	// Root is the main storage root; tenant sandboxes live in Root/<tenant id>.
	Root string
	// PublicHost overrides the IPv4 address advertised in PASV replies.
	PublicHost string
	// PassivePortStart and PassivePortEnd bound passive listener ports. Zero
	// means an ephemeral port.
	PassivePortStart int
	PassivePortEnd   int
	// DataAcceptTimeout bounds the wait for the client's data connection.
	DataAcceptTimeout time.Duration
	// IdleTimeout closes control connections idle for longer. Zero disables it.
	IdleTimeout time.Duration
	// Welcome is the text of the 220 greeting.
	Welcome string
	// Now is the clock used for working-hours decisions. Defaults to time.Now.
	Now func() time.Time
}

// Server is the FTP protocol server.
type Server struct {
	opts     Options
	tenants  *tenant.Directory
	sessions *session.Manager
	queue    Enqueuer
	logger   logger.Logger
	ports    *portRange
	tcp      *tcpserver.TCPServer
}

// New builds a server. Nothing is bound until Start.
//
// Parameters:
//   - opts: Listener, storage and timing options
//   - tenants: Immutable tenant directory used for USER/PASS
//   - sessions: Shared session table
//   - q: Destination for completed uploads
//   - log: Base logger; connections derive scoped loggers from it
//
// Returns:
//   - The server
func New(opts Options, tenants *tenant.Directory, sessions *session.Manager, q Enqueuer, log logger.Logger) *Server {
	if opts.DataAcceptTimeout <= 0 {
		opts.DataAcceptTimeout = 30 * time.Second
	}
	if opts.Welcome == "" {
		opts.Welcome = "Welcome to FTP server"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		opts:     opts,
		tenants:  tenants,
		sessions: sessions,
		queue:    q,
		logger:   log,
		ports:    newPortRange(opts.PassivePortStart, opts.PassivePortEnd),
	}
	s.tcp = tcpserver.New("ftp", opts.Addr, log, s.newConn)

	return s
}

// PrepareDirectories creates the main root and every tenant sandbox.
func (s *Server) PrepareDirectories() error {
	if err := os.MkdirAll(s.opts.Root, 0755); err != nil {
		return fmt.Errorf("create storage root: %w", err)
	}

	for _, t := range s.tenants.All() {
		dir := t.Root(s.opts.Root)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create sandbox for %s: %w", t.ID, err)
		}
		s.logger.Info("tenant directory ready",
			logger.Field{Key: "tenant", Value: t.ID},
			logger.Field{Key: "dir", Value: dir})
	}

	return nil
}

// Start binds the control listener and begins accepting connections.
func (s *Server) Start() error {
	return s.tcp.Start()
}

// Stop closes the listener and every control connection.
func (s *Server) Stop() {
	s.tcp.Stop()
}

// Addr returns the bound control address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.tcp.ListenAddr()
}

// Connections returns the number of open control connections.
func (s *Server) Connections() int {
	return s.tcp.Len()
}

func (s *Server) newConn(id uint32, nc net.Conn) tcpserver.Conn {
	return newConn(s, id, nc)
}
