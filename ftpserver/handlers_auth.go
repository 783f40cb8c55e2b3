package ftpserver

import (
	"os"

	"github.com/cyberinferno/camingest/logger"
)

func (c *conn) handleUSER(arg string) {
	if c.state == stateAuthenticated {
		c.reply(503, "Already logged in")
		return
	}

	if _, ok := c.srv.tenants.Lookup(arg); !ok {
		c.state = stateNew
		c.pendingUser = ""
		c.logger.Warn("login failed: unknown user", logger.Field{Key: "user", Value: arg})
		c.reply(530, "User not found")
		return
	}

	c.pendingUser = arg
	c.state = stateAwaitingPassword
	c.reply(331, "User name okay, need password")
}

func (c *conn) handlePASS(arg string) {
	switch c.state {
	case stateAuthenticated:
		c.reply(503, "Already logged in")
		return
	case stateNew:
		c.reply(503, "Login with USER first")
		return
	}

	t, ok := c.srv.tenants.Lookup(c.pendingUser)
	if !ok || !t.CheckSecret(arg) {
		c.logger.Warn("login failed: incorrect password", logger.Field{Key: "user", Value: c.pendingUser})
		c.reply(530, "Login incorrect")
		c.quit = true
		return
	}

	root := t.Root(c.srv.opts.Root)
	if err := os.MkdirAll(root, 0755); err != nil {
		c.logger.Error("failed to prepare sandbox", logger.Field{Key: "dir", Value: root}, logger.Field{Key: "error", Value: err})
		c.reply(550, "User directory unavailable")
		return
	}

	c.tenant = t
	c.sandbox = Sandbox{Root: root}
	c.cwd = "/"
	c.state = stateAuthenticated
	c.pendingUser = ""

	sess, replaced := c.srv.sessions.Login(t.ID, c.remoteIP, c.srv.opts.Now())
	c.sess = sess
	c.logger = c.logger.With(logger.Field{Key: "tenant", Value: t.ID})
	c.logger.Info("user logged in",
		logger.Field{Key: "user", Value: t.User},
		logger.Field{Key: "replaced_session", Value: replaced})

	c.reply(230, "User logged in, proceed")
}

func (c *conn) handleQUIT(string) {
	c.reply(221, "Goodbye")
	c.quit = true
}
