package ftpserver

import "strings"

// Command identifies a control-channel verb.
type Command uint8

const (
	cmdUnknown Command = iota
	cmdUSER
	cmdPASS
	cmdQUIT
	cmdSYST
	cmdFEAT
	cmdHELP
	cmdNOOP
	cmdOPTS
	cmdPWD
	cmdCWD
	cmdCDUP
	cmdTYPE
	cmdPASV
	cmdEPSV
	cmdLIST
	cmdMLSD
	cmdNLST
	cmdRETR
	cmdSTOR
	cmdMKD
	cmdRMD
	cmdDELE
	cmdSIZE
	cmdMDTM
	cmdMFMT
	cmdREST
	cmdRNFR
	cmdRNTO
	cmdSITE
)

var commandVerbs = [...]string{
	cmdUnknown: "UNKNOWN",
	cmdUSER:    "USER",
	cmdPASS:    "PASS",
	cmdQUIT:    "QUIT",
	cmdSYST:    "SYST",
	cmdFEAT:    "FEAT",
	cmdHELP:    "HELP",
	cmdNOOP:    "NOOP",
	cmdOPTS:    "OPTS",
	cmdPWD:     "PWD",
	cmdCWD:     "CWD",
	cmdCDUP:    "CDUP",
	cmdTYPE:    "TYPE",
	cmdPASV:    "PASV",
	cmdEPSV:    "EPSV",
	cmdLIST:    "LIST",
	cmdMLSD:    "MLSD",
	cmdNLST:    "NLST",
	cmdRETR:    "RETR",
	cmdSTOR:    "STOR",
	cmdMKD:     "MKD",
	cmdRMD:     "RMD",
	cmdDELE:    "DELE",
	cmdSIZE:    "SIZE",
	cmdMDTM:    "MDTM",
	cmdMFMT:    "MFMT",
	cmdREST:    "REST",
	cmdRNFR:    "RNFR",
	cmdRNTO:    "RNTO",
	cmdSITE:    "SITE",
}

// commandAliases maps the RFC 775 X-variants onto their modern verbs.
var commandAliases = map[string]Command{
	"XPWD": cmdPWD,
	"XCWD": cmdCWD,
	"XCUP": cmdCDUP,
	"XMKD": cmdMKD,
	"XRMD": cmdRMD,
}

var commandNames = func() map[string]Command {
	m := make(map[string]Command, len(commandVerbs)+len(commandAliases))
	for i, verb := range commandVerbs {
		if Command(i) != cmdUnknown {
			m[verb] = Command(i)
		}
	}
	for verb, cmd := range commandAliases {
		m[verb] = cmd
	}
	return m
}()

// commandEntry describes how a command is dispatched.
type commandEntry struct {
	handle func(c *conn, arg string)
	// preAuth commands are accepted before login.
	preAuth bool
	// needsArg commands reply 501 when called without an argument.
	needsArg bool
}

var commandTable [cmdSITE + 1]commandEntry

func init() {
	commandTable = [...]commandEntry{
		cmdUSER: {handle: (*conn).handleUSER, preAuth: true, needsArg: true},
		cmdPASS: {handle: (*conn).handlePASS, preAuth: true},
		cmdQUIT: {handle: (*conn).handleQUIT, preAuth: true},
		cmdSYST: {handle: (*conn).handleSYST, preAuth: true},
		cmdFEAT: {handle: (*conn).handleFEAT, preAuth: true},
		cmdHELP: {handle: (*conn).handleHELP, preAuth: true},
		cmdNOOP: {handle: (*conn).handleNOOP, preAuth: true},
		cmdOPTS: {handle: (*conn).handleOPTS, preAuth: true, needsArg: true},
		cmdPWD:  {handle: (*conn).handlePWD},
		cmdCWD:  {handle: (*conn).handleCWD, needsArg: true},
		cmdCDUP: {handle: (*conn).handleCDUP},
		cmdTYPE: {handle: (*conn).handleTYPE, needsArg: true},
		cmdPASV: {handle: (*conn).handlePASV},
		cmdEPSV: {handle: (*conn).handleEPSV},
		cmdLIST: {handle: (*conn).handleLIST},
		cmdMLSD: {handle: (*conn).handleMLSD},
		cmdNLST: {handle: (*conn).handleNLST},
		cmdRETR: {handle: (*conn).handleRETR, needsArg: true},
		cmdSTOR: {handle: (*conn).handleSTOR, needsArg: true},
		cmdMKD:  {handle: (*conn).handleMKD, needsArg: true},
		cmdRMD:  {handle: (*conn).handleRMD, needsArg: true},
		cmdDELE: {handle: (*conn).handleDELE, needsArg: true},
		cmdSIZE: {handle: (*conn).handleSIZE, needsArg: true},
		cmdMDTM: {handle: (*conn).handleMDTM, needsArg: true},
		cmdMFMT: {handle: (*conn).handleMFMT, needsArg: true},
		cmdREST: {handle: (*conn).handleREST, needsArg: true},
		cmdRNFR: {handle: (*conn).handleRNFR, needsArg: true},
		cmdRNTO: {handle: (*conn).handleRNTO, needsArg: true},
		cmdSITE: {handle: (*conn).handleSITE},
	}
}

// String returns the canonical verb.
func (c Command) String() string {
	if int(c) < len(commandVerbs) {
		return commandVerbs[c]
	}

	return "UNKNOWN"
}

// parseCommand splits a control line into its verb and argument. The verb is
// case-insensitive; the argument is returned verbatim so file names may
// contain spaces.
func parseCommand(line string) (Command, string, string) {
	verb, arg, _ := strings.Cut(line, " ")
	verb = strings.ToUpper(strings.TrimSpace(verb))

	return commandNames[verb], verb, arg
}
