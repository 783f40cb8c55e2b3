package ftpserver

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cyberinferno/camingest/logger"
)

// reply writes a single "<code> <text>" line.
func (c *conn) reply(code int, text string) {
	c.writeLine(fmt.Sprintf("%d %s", code, text))
}

// replyf is reply with formatting.
func (c *conn) replyf(code int, format string, args ...any) {
	c.reply(code, fmt.Sprintf(format, args...))
}

// replyMulti writes a multi-line reply: "<code>-<first>", the body lines as
// given, then "<code> <last>".
func (c *conn) replyMulti(code int, first string, body []string, last string) {
	c.writeLine(fmt.Sprintf("%d-%s", code, first))
	for _, line := range body {
		c.writeLine(line)
	}
	c.writeLine(fmt.Sprintf("%d %s", code, last))
}

func (c *conn) writeLine(line string) {
	if !c.utf8 {
		line = toASCII(line)
	}

	if err := c.tp.PrintfLine("%s", line); err != nil {
		c.logger.Debug("reply write failed", logger.Field{Key: "error", Value: err})
	}
}

// toASCII replaces every non-ASCII rune with '?' for clients that have not
// enabled UTF-8.
func toASCII(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= utf8.RuneSelf {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}
