package ftpserver

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/session"
	"github.com/cyberinferno/camingest/tenant"
)

type connState uint8

const (
	stateNew connState = iota
	stateAwaitingPassword
	stateAuthenticated
)

// conn is the per-connection protocol state. It is owned by the goroutine
// running Handle; only Close may be called from elsewhere.
type conn struct {
	id       uint32
	srv      *Server
	nc       net.Conn
	tp       *textproto.Conn
	logger   logger.Logger
	remoteIP string

	state       connState
	pendingUser string
	tenant      tenant.Config
	sess        *session.Session
	sandbox     Sandbox

	cwd        string
	binary     bool
	restOffset int64
	renameFrom string
	utf8       bool
	quit       bool

	// dataMu guards the data channel, which Close tears down from another
	// goroutine.
	dataMu   sync.Mutex
	pasv     *passive
	dataConn net.Conn
	closed   bool

	closeOnce sync.Once
}

func newConn(srv *Server, id uint32, nc net.Conn) *conn {
	remoteIP := nc.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(remoteIP); err == nil {
		remoteIP = host
	}

	return &conn{
		id:       id,
		srv:      srv,
		nc:       nc,
		tp:       textproto.NewConn(nc),
		remoteIP: remoteIP,
		cwd:      "/",
		binary:   true,
		logger: srv.logger.With(
			logger.Field{Key: "conn_id", Value: id},
			logger.Field{Key: "remote", Value: nc.RemoteAddr().String()},
		),
	}
}

// ID implements tcpserver.Conn.
func (c *conn) ID() uint32 {
	return c.id
}

// Close implements tcpserver.Conn.
func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.dataMu.Lock()
		c.closed = true
		if c.pasv != nil {
			c.pasv.close()
		}
		if c.dataConn != nil {
			_ = c.dataConn.Close()
		}
		c.dataMu.Unlock()

		err = c.tp.Close()
	})

	return err
}

// Handle implements tcpserver.Conn. It runs the command loop until QUIT, a
// failed login, a read error or the idle timeout.
func (c *conn) Handle() {
	c.logger.Info("client connected")
	defer c.cleanup()

	c.reply(220, c.srv.opts.Welcome)

	for !c.quit {
		if c.srv.opts.IdleTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.srv.opts.IdleTimeout))
		}

		line, err := c.tp.ReadLine()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.reply(421, "Timeout, closing control connection")
				c.logger.Info("idle timeout")
			}
			return
		}

		c.dispatch(line)
	}
}

func (c *conn) cleanup() {
	c.setPassive(nil)
	if c.sess != nil && c.srv.sessions.Logout(c.sess) {
		c.logger.Info("session closed")
	}

	c.logger.Info("client disconnected")
}

// setPassive replaces the pending passive listener, closing the previous
// one. It reports false and closes p when the connection is already closed.
func (c *conn) setPassive(p *passive) bool {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()

	if c.pasv != nil {
		c.pasv.close()
	}
	c.pasv = nil
	if p == nil {
		return true
	}
	if c.closed {
		p.close()
		return false
	}

	c.pasv = p
	return true
}

// setDataConn records the open data connection so Close can abort it.
// It reports false and closes dc when the connection is already closed.
func (c *conn) setDataConn(dc net.Conn) bool {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()

	if dc != nil && c.closed {
		_ = dc.Close()
		return false
	}

	c.dataConn = dc
	return true
}

// dispatch runs one command. A panic in a handler is answered with 500 and
// the loop continues.
func (c *conn) dispatch(line string) {
	cmd, verb, arg := parseCommand(line)
	c.touchSession(verb, arg)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("command handler panicked",
				logger.Field{Key: "command", Value: verb},
				logger.Field{Key: "panic", Value: fmt.Sprint(r)})
			c.reply(500, "Error")
		}
	}()

	if cmd == cmdUnknown {
		if verb == "" {
			c.reply(500, "Syntax error, command unrecognized")
			return
		}
		c.logger.Warn("unimplemented command", logger.Field{Key: "command", Value: verb})
		c.reply(502, "Command not implemented")
		return
	}

	entry := commandTable[cmd]
	if !entry.preAuth && c.state != stateAuthenticated {
		c.reply(530, "Please login with USER and PASS")
		return
	}
	if entry.needsArg && strings.TrimSpace(arg) == "" {
		c.reply(501, "Syntax error in parameters")
		return
	}

	// RNTO must directly follow RNFR.
	if cmd != cmdRNTO && cmd != cmdRNFR {
		c.renameFrom = ""
	}

	entry.handle(c, arg)
}

// touchSession records the command on the user's current session, noting
// client addresses other than the one used at login.
func (c *conn) touchSession(verb, arg string) {
	if verb == "PASS" {
		arg = "****"
	}

	if c.state != stateAuthenticated {
		c.logger.Debug("command received", logger.Field{Key: "command", Value: verb}, logger.Field{Key: "arg", Value: arg})
		return
	}

	cur, ok := c.srv.sessions.Get(c.tenant.ID)
	if !ok {
		cur = c.sess
	}
	if cur.Touch(c.remoteIP, c.srv.opts.Now()) {
		c.logger.Info("command from additional address",
			logger.Field{Key: "user", Value: cur.User},
			logger.Field{Key: "main_addr", Value: cur.MainAddr},
			logger.Field{Key: "command", Value: verb})
	}

	c.logger.Debug("command received", logger.Field{Key: "command", Value: verb}, logger.Field{Key: "arg", Value: arg})
}

// resolve maps a client path to its virtual and on-disk form. Sandbox
// violations are logged.
func (c *conn) resolve(arg string) (string, string, error) {
	virtual, full, err := c.sandbox.Resolve(c.cwd, arg)
	if err != nil {
		c.logger.Warn("path rejected",
			logger.Field{Key: "cwd", Value: c.cwd},
			logger.Field{Key: "path", Value: arg},
			logger.Field{Key: "error", Value: err})
	}

	return virtual, full, err
}
