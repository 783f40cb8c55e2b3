package ftpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/queue"
	"github.com/cyberinferno/camingest/utils"
)

func (c *conn) openPassive() (*passive, bool) {
	c.setPassive(nil)

	ip := net.IPv4zero
	if addr, ok := c.nc.LocalAddr().(*net.TCPAddr); ok {
		ip = addr.IP
	}

	ln, err := c.srv.ports.listen(ip)
	if err != nil {
		c.logger.Error("passive listen failed", logger.Field{Key: "error", Value: err})
		c.reply(425, "Can't open data connection")
		return nil, false
	}

	return &passive{ln: ln}, true
}

func (c *conn) handlePASV(string) {
	p, ok := c.openPassive()
	if !ok {
		return
	}

	ip := p.ln.Addr().(*net.TCPAddr).IP
	if c.srv.opts.PublicHost != "" {
		ip = net.ParseIP(c.srv.opts.PublicHost)
	} else if addr, ok := c.nc.LocalAddr().(*net.TCPAddr); ok {
		ip = addr.IP
	}

	text, err := pasvReply(ip, p.port())
	if err != nil {
		p.close()
		c.logger.Warn("pasv unavailable", logger.Field{Key: "error", Value: err})
		c.reply(425, "Can't open data connection")
		return
	}

	if !c.setPassive(p) {
		return
	}
	c.logger.Debug("passive listener opened", logger.Field{Key: "port", Value: p.port()})
	c.reply(227, text)
}

func (c *conn) handleEPSV(string) {
	p, ok := c.openPassive()
	if !ok {
		return
	}

	if !c.setPassive(p) {
		return
	}
	c.logger.Debug("passive listener opened", logger.Field{Key: "port", Value: p.port()})
	c.replyf(229, "Entering Extended Passive Mode (|||%d|)", p.port())
}

// resetTransfer drops the passive listener and the restart offset. It runs
// after every data command whatever its outcome.
func (c *conn) resetTransfer() {
	c.setPassive(nil)
	c.restOffset = 0
}

// requirePassive answers 425 and resets the transfer state when no passive
// listener is pending.
func (c *conn) requirePassive() bool {
	if c.pasv != nil {
		return true
	}

	c.resetTransfer()
	c.reply(425, "Use PASV or EPSV first")
	return false
}

// transfer opens the data channel and hands it to run, which returns the
// final reply. The channel is closed before the final reply is written.
func (c *conn) transfer(run func(dc net.Conn) (int, string)) {
	defer c.resetTransfer()

	c.reply(150, "Opening data connection")

	dc, err := c.pasv.accept(c.srv.opts.DataAcceptTimeout)
	if err != nil {
		c.logger.Warn("data connection failed", logger.Field{Key: "error", Value: err})
		c.reply(425, "Can't open data connection")
		return
	}

	if !c.setDataConn(dc) {
		return
	}

	code, text := run(dc)
	c.setDataConn(nil)
	_ = dc.Close()
	c.reply(code, text)
}

func (c *conn) handleLIST(arg string) {
	c.list(formatLIST, arg)
}

func (c *conn) handleMLSD(arg string) {
	c.list(formatMLSD, arg)
}

func (c *conn) handleNLST(arg string) {
	c.list(formatNLST, arg)
}

// listArg drops ls-style flags such as "-la" that some clients send.
func listArg(arg string) string {
	var kept []string
	for _, field := range strings.Fields(arg) {
		if strings.HasPrefix(field, "-") {
			continue
		}
		kept = append(kept, field)
	}

	return strings.Join(kept, " ")
}

func (c *conn) list(format listFormat, arg string) {
	if !c.requirePassive() {
		return
	}

	target := listArg(arg)
	if target == "" {
		target = c.cwd
	}

	_, full, err := c.resolve(target)
	if err != nil {
		c.resetTransfer()
		c.reply(550, "Directory not found")
		return
	}

	info, err := os.Stat(full)
	if err != nil {
		c.resetTransfer()
		c.reply(550, "Directory not found")
		return
	}

	entries := []os.FileInfo{info}
	if info.IsDir() {
		entries, err = readDirNative(full)
		if err != nil {
			c.logger.Error("list failed", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
			c.resetTransfer()
			c.reply(550, "Failed to list directory")
			return
		}
	}

	now := c.srv.opts.Now()
	c.transfer(func(dc net.Conn) (int, string) {
		for _, e := range entries {
			if _, err := fmt.Fprintf(dc, "%s\r\n", formatEntry(format, e, now)); err != nil {
				c.logger.Warn("listing aborted", logger.Field{Key: "error", Value: err})
				return 426, "Connection closed; transfer aborted"
			}
		}
		return 226, "Transfer complete"
	})
}

func (c *conn) handleRETR(arg string) {
	if !c.requirePassive() {
		return
	}

	_, full, err := c.resolve(arg)
	if err != nil {
		c.resetTransfer()
		c.reply(550, "File not found")
		return
	}

	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		c.resetTransfer()
		c.reply(550, "File not found")
		return
	}

	offset := c.restOffset
	c.transfer(func(dc net.Conn) (int, string) {
		f, err := os.Open(full)
		if err != nil {
			c.logger.Error("open failed", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
			return 550, "File not found"
		}
		defer f.Close()

		if offset > 0 {
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				return 550, "Invalid restart position"
			}
		}

		n, err := io.Copy(dc, f)
		if err != nil {
			c.logger.Warn("download aborted",
				logger.Field{Key: "path", Value: full},
				logger.Field{Key: "bytes", Value: n},
				logger.Field{Key: "error", Value: err})
			return 426, "Connection closed; transfer aborted"
		}

		c.logger.Info("file sent",
			logger.Field{Key: "path", Value: full},
			logger.Field{Key: "offset", Value: offset},
			logger.Field{Key: "bytes", Value: n})
		return 226, "Transfer complete"
	})
}

func (c *conn) handleSTOR(arg string) {
	if !c.requirePassive() {
		return
	}

	_, full, err := c.resolve(arg)
	if err != nil {
		c.resetTransfer()
		c.reply(553, "Could not create file")
		return
	}

	if info, err := os.Stat(full); err == nil && info.IsDir() {
		c.resetTransfer()
		c.reply(550, "Is a directory")
		return
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		c.logger.Error("failed to create parent directories", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
		c.resetTransfer()
		c.reply(550, "Could not create file")
		return
	}

	offset := c.restOffset
	c.transfer(func(dc net.Conn) (int, string) {
		flags := os.O_WRONLY | os.O_CREATE
		if offset == 0 {
			flags |= os.O_TRUNC
		}

		f, err := os.OpenFile(full, flags, 0644)
		if err != nil {
			c.logger.Error("create failed", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
			return 553, "Could not create file"
		}
		defer f.Close()

		if offset > 0 {
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				return 550, "Invalid restart position"
			}
		}

		n, err := io.Copy(f, dc)
		if err != nil {
			c.logger.Warn("upload aborted",
				logger.Field{Key: "path", Value: full},
				logger.Field{Key: "bytes", Value: n},
				logger.Field{Key: "error", Value: err})
			return 426, "Connection closed; transfer aborted"
		}
		if err := f.Close(); err != nil {
			c.logger.Error("close failed", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
			return 451, "Requested action aborted: local error in processing"
		}

		c.logger.Info("file received",
			logger.Field{Key: "path", Value: full},
			logger.Field{Key: "offset", Value: offset},
			logger.Field{Key: "bytes", Value: n})
		return c.afterUpload(full)
	})
}

// afterUpload enqueues the stored file when the tenant's working hours
// include the present time and deletes it otherwise.
func (c *conn) afterUpload(full string) (int, string) {
	if c.tenant.WithinWorkingHours(c.srv.opts.Now()) {
		c.srv.queue.Push(context.Background(), queue.Job{Path: full, Tenant: c.tenant})
		return 226, "Transfer complete, file queued for processing"
	}

	if err := utils.RemoveFileAndEmptyParents(full, c.sandbox.Root); err != nil {
		c.logger.Error("failed to discard upload", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
	} else {
		c.logger.Info("upload discarded outside working hours", logger.Field{Key: "path", Value: full})
	}

	return 226, "Transfer complete (file deleted - outside working hours)"
}
