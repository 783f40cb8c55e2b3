package ftpserver

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/cyberinferno/camingest/logger"
)

func quotePath(p string) string {
	return `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
}

func (c *conn) handlePWD(string) {
	c.replyf(257, "%s is current directory", quotePath(c.cwd))
}

func (c *conn) handleCWD(arg string) {
	c.changeDir(arg)
}

func (c *conn) handleCDUP(string) {
	c.changeDir("..")
}

func (c *conn) changeDir(arg string) {
	virtual, full, err := c.resolve(arg)
	if err != nil {
		c.reply(550, "Failed to change directory")
		return
	}

	info, err := os.Stat(full)
	if err != nil || !info.IsDir() {
		c.logger.Warn("directory change failed", logger.Field{Key: "path", Value: virtual})
		c.reply(550, "Failed to change directory")
		return
	}

	c.cwd = virtual
	c.reply(250, "Directory successfully changed")
}

func (c *conn) handleMKD(arg string) {
	virtual, full, err := c.resolve(arg)
	if err != nil {
		c.reply(550, "Failed to create directory")
		return
	}

	if _, err := os.Stat(full); err == nil {
		c.reply(550, "Directory already exists")
		return
	}

	if err := os.MkdirAll(full, 0755); err != nil {
		c.logger.Error("mkdir failed", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
		c.reply(550, "Failed to create directory")
		return
	}

	c.logger.Info("directory created", logger.Field{Key: "path", Value: full})
	c.replyf(257, "%s directory created", quotePath(virtual))
}

func (c *conn) handleRMD(arg string) {
	virtual, full, err := c.resolve(arg)
	if err != nil || virtual == "/" {
		c.reply(550, "Directory not found")
		return
	}

	info, err := os.Stat(full)
	if err != nil || !info.IsDir() {
		c.reply(550, "Directory not found")
		return
	}

	if err := os.Remove(full); err != nil {
		c.logger.Error("rmdir failed", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
		c.reply(550, "Failed to remove directory")
		return
	}

	// Keep the working directory valid.
	if c.cwd == virtual || strings.HasPrefix(c.cwd, virtual+"/") {
		c.cwd = "/"
	}

	c.logger.Info("directory removed", logger.Field{Key: "path", Value: full})
	c.reply(250, "Directory removed")
}

// statExisting resolves arg and stats it. It replies 550 "File not found"
// and returns false when the path is rejected or missing.
func (c *conn) statExisting(arg string) (string, string, fs.FileInfo, bool) {
	virtual, full, err := c.resolve(arg)
	if err != nil {
		c.reply(550, "File not found")
		return "", "", nil, false
	}

	info, err := os.Stat(full)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("stat failed", logger.Field{Key: "path", Value: full}, logger.Field{Key: "error", Value: err})
		}
		c.reply(550, "File not found")
		return "", "", nil, false
	}

	return virtual, full, info, true
}

// statFile is statExisting restricted to regular files.
func (c *conn) statFile(arg string) (string, fs.FileInfo, bool) {
	_, full, info, ok := c.statExisting(arg)
	if !ok {
		return "", nil, false
	}
	if !info.Mode().IsRegular() {
		c.reply(550, "File not found")
		return "", nil, false
	}

	return full, info, true
}
