package ftpserver

import "strings"

var features = []string{
	" PASV",
	" EPSV",
	" UTF8",
	" MLSD",
	" SIZE",
	" REST STREAM",
	" MDTM",
	" MFMT",
	" TVFS",
}

var helpLines = []string{
	" USER PASS QUIT SYST FEAT PWD CWD CDUP TYPE",
	" PASV EPSV LIST MLSD NLST STOR RETR MKD RMD DELE",
	" SIZE REST RNFR RNTO OPTS MDTM MFMT SITE HELP NOOP",
}

func (c *conn) handleSYST(string) {
	c.reply(215, "UNIX Type: L8")
}

func (c *conn) handleFEAT(string) {
	c.replyMulti(211, "Features:", features, "End")
}

func (c *conn) handleHELP(string) {
	c.replyMulti(214, "The following commands are recognized:", helpLines, "Help OK.")
}

func (c *conn) handleNOOP(string) {
	c.reply(200, "NOOP ok")
}

func (c *conn) handleOPTS(arg string) {
	name, value, _ := strings.Cut(strings.TrimSpace(arg), " ")
	if !strings.EqualFold(name, "UTF8") || value == "" {
		c.reply(501, "Option not supported")
		return
	}

	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ON":
		c.utf8 = true
		c.reply(200, "UTF8 set to on")
	case "OFF":
		c.utf8 = false
		c.reply(200, "UTF8 set to off")
	default:
		c.reply(501, "Invalid UTF8 option")
	}
}

func (c *conn) handleTYPE(arg string) {
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "A":
		c.binary = false
		c.reply(200, "Type set to A")
	case "I":
		c.binary = true
		c.reply(200, "Type set to I")
	default:
		c.reply(504, "Command not implemented for that parameter")
	}
}
