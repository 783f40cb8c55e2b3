package ftpserver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		cmd  Command
		verb string
		arg  string
	}{
		{line: "USER alice", cmd: cmdUSER, verb: "USER", arg: "alice"},
		{line: "stor file name.jpg", cmd: cmdSTOR, verb: "STOR", arg: "file name.jpg"},
		{line: "PWD", cmd: cmdPWD, verb: "PWD", arg: ""},
		{line: "XPWD", cmd: cmdPWD, verb: "XPWD", arg: ""},
		{line: "xmkd day1", cmd: cmdMKD, verb: "XMKD", arg: "day1"},
		{line: "ABOR", cmd: cmdUnknown, verb: "ABOR", arg: ""},
		{line: "", cmd: cmdUnknown, verb: "", arg: ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, verb, arg := parseCommand(tt.line)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.verb, verb)
			assert.Equal(t, tt.arg, arg)
		})
	}
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "RNTO", cmdRNTO.String())
	assert.Equal(t, "UNKNOWN", cmdUnknown.String())
	assert.Equal(t, "UNKNOWN", Command(200).String())
}

func TestCommandTable(t *testing.T) {
	for i := cmdUSER; i <= cmdSITE; i++ {
		assert.NotNil(t, commandTable[i].handle, "missing handler for %s", i)
	}

	preAuth := []Command{cmdUSER, cmdPASS, cmdQUIT, cmdSYST, cmdFEAT, cmdHELP, cmdNOOP, cmdOPTS}
	for i := cmdUSER; i <= cmdSITE; i++ {
		want := false
		for _, p := range preAuth {
			if p == i {
				want = true
			}
		}
		assert.Equal(t, want, commandTable[i].preAuth, i.String())
	}
}

func TestToASCII(t *testing.T) {
	assert.Equal(t, "plain", toASCII("plain"))
	assert.Equal(t, `"/caf?" is current directory`, toASCII(`"/café" is current directory`))
}

func TestPasvReply(t *testing.T) {
	text, err := pasvReply([]byte{192, 168, 1, 10}, 50001)
	require.NoError(t, err)
	assert.Equal(t, "Entering Passive Mode (192,168,1,10,195,81)", text)

	_, err = pasvReply([]byte{0: 0xfe, 1: 0x80, 15: 1}, 21)
	assert.Error(t, err)
}

func TestListArg(t *testing.T) {
	assert.Equal(t, "", listArg("-la"))
	assert.Equal(t, "day1", listArg("-a day1"))
	assert.Equal(t, "my dir", listArg("my dir"))
}

func TestFormatEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.jpg")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0644))
	mtime := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "day1"), 0755))

	file, err := os.Stat(path)
	require.NoError(t, err)
	sub, err := os.Stat(filepath.Join(dir, "day1"))
	require.NoError(t, err)

	t.Run("MLSD", func(t *testing.T) {
		assert.Equal(t, "type=file;size=5;modify=20240305143000; snap.jpg", formatEntry(formatMLSD, file, mtime))
		assert.True(t, strings.HasPrefix(formatEntry(formatMLSD, sub, mtime), "type=dir;"))
	})

	t.Run("NLST", func(t *testing.T) {
		assert.Equal(t, "snap.jpg", formatEntry(formatNLST, file, mtime))
	})

	t.Run("LIST", func(t *testing.T) {
		line := formatEntry(formatLIST, file, mtime.Add(time.Hour))
		fields := strings.Fields(line)
		require.Len(t, fields, 9)
		assert.Equal(t, "-rw-r--r--", fields[0])
		assert.Equal(t, "5", fields[4])
		assert.Equal(t, "snap.jpg", fields[8])
		assert.Contains(t, line, mtime.Local().Format("Jan _2 15:04"))

		old := formatEntry(formatLIST, file, mtime.AddDate(1, 0, 0))
		assert.Contains(t, old, mtime.Local().Format("Jan _2  2006"))

		assert.True(t, strings.HasPrefix(formatEntry(formatLIST, sub, mtime), "d"))
	})
}
