package ftpserver

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cyberinferno/camingest/logger"
)

// mdtmLayout is the RFC 3659 time-val format, always UTC.
const mdtmLayout = "20060102150405"

func (c *conn) handleDELE(arg string) {
	full, _, ok := c.statFile(arg)
	if !ok {
		return
	}

	if err := os.Remove(full); err != nil {
		c.logger.Error("delete failed", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
		c.reply(550, "Failed to delete file")
		return
	}

	c.logger.Info("file deleted", logger.Field{Key: "path", Value: full})
	c.reply(250, "File deleted")
}

func (c *conn) handleSIZE(arg string) {
	_, info, ok := c.statFile(arg)
	if !ok {
		return
	}

	c.replyf(213, "%d", info.Size())
}

func (c *conn) handleMDTM(arg string) {
	_, info, ok := c.statFile(arg)
	if !ok {
		return
	}

	c.reply(213, info.ModTime().UTC().Format(mdtmLayout))
}

func (c *conn) handleMFMT(arg string) {
	stamp, name, found := strings.Cut(strings.TrimSpace(arg), " ")
	if !found || name == "" {
		c.reply(501, "Invalid MFMT command")
		return
	}

	mtime, err := time.ParseInLocation(mdtmLayout, stamp, time.UTC)
	if err != nil {
		c.reply(501, "Invalid MFMT command")
		return
	}

	full, _, ok := c.statFile(name)
	if !ok {
		return
	}

	if err := os.Chtimes(full, mtime, mtime); err != nil {
		c.logger.Error("mfmt failed", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
		c.reply(550, "Could not modify file time")
		return
	}

	c.replyf(213, "Modify=%s; %s", stamp, name)
}

func (c *conn) handleREST(arg string) {
	offset, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || offset < 0 {
		c.logger.Warn("invalid restart offset", logger.Field{Key: "arg", Value: arg})
		c.reply(501, "Invalid REST position")
		return
	}

	c.restOffset = offset
	c.replyf(350, "Restarting at %d", offset)
}

func (c *conn) handleRNFR(arg string) {
	c.renameFrom = ""
	_, full, _, ok := c.statExisting(arg)
	if !ok {
		return
	}

	c.renameFrom = full
	c.reply(350, "Ready for RNTO")
}

func (c *conn) handleRNTO(arg string) {
	from := c.renameFrom
	c.renameFrom = ""
	if from == "" {
		c.reply(503, "Bad sequence of commands")
		return
	}

	_, to, err := c.resolve(arg)
	if err != nil {
		c.reply(553, "Rename failed")
		return
	}

	if err := os.Rename(from, to); err != nil {
		c.logger.Error("rename failed",
			logger.Field{Key: "from", Value: from},
			logger.Field{Key: "to", Value: to},
			logger.Field{Key: "error", Value: err})
		c.reply(553, "Rename failed")
		return
	}

	c.logger.Info("file renamed", logger.Field{Key: "from", Value: from}, logger.Field{Key: "to", Value: to})
	c.reply(250, "Rename successful")
}

func (c *conn) handleSITE(arg string) {
	sub, rest, _ := strings.Cut(strings.TrimSpace(arg), " ")
	if !strings.EqualFold(sub, "CHMOD") {
		c.reply(504, "SITE command not implemented")
		return
	}

	mode, name, found := strings.Cut(strings.TrimSpace(rest), " ")
	if !found || name == "" {
		c.reply(501, "Invalid SITE CHMOD command")
		return
	}

	perm, err := strconv.ParseUint(mode, 8, 32)
	if err != nil || perm > 0o777 {
		c.reply(501, "Invalid SITE CHMOD command")
		return
	}

	_, full, _, ok := c.statExisting(name)
	if !ok {
		return
	}

	if err := os.Chmod(full, os.FileMode(perm)); err != nil {
		c.logger.Error("chmod failed", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
		c.reply(550, "CHMOD command failed")
		return
	}

	c.reply(200, "CHMOD command successful")
}
