package ftpserver

import (
	"fmt"
	"io/fs"
	"os"
	"time"
)

type listFormat uint8

const (
	formatLIST listFormat = iota
	formatMLSD
	formatNLST
)

// recentWindow decides between "Jan _2 15:04" and "Jan _2  2006" in LIST
// output, as ls does.
const recentWindow = 180 * 24 * time.Hour

// readDirNative returns the entries of dir in the order the filesystem
// yields them.
func readDirNative(dir string) ([]fs.FileInfo, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	infos := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// formatEntry renders one listing line without the trailing CRLF.
func formatEntry(format listFormat, info fs.FileInfo, now time.Time) string {
	switch format {
	case formatMLSD:
		kind := "file"
		if info.IsDir() {
			kind = "dir"
		}
		return fmt.Sprintf("type=%s;size=%d;modify=%s; %s",
			kind, info.Size(), info.ModTime().UTC().Format(mdtmLayout), info.Name())
	case formatNLST:
		return info.Name()
	default:
		mod := info.ModTime()
		stamp := mod.Format("Jan _2 15:04")
		if now.Sub(mod) > recentWindow || mod.Sub(now) > recentWindow {
			stamp = mod.Format("Jan _2  2006")
		}
		return fmt.Sprintf("%s 1 owner group %12d %s %s", listMode(info), info.Size(), stamp, info.Name())
	}
}

// listMode renders the ls-style permission string.
func listMode(info fs.FileInfo) string {
	perm := info.Mode().Perm().String()
	switch {
	case info.IsDir():
		return "d" + perm[1:]
	case info.Mode()&fs.ModeSymlink != 0:
		return "l" + perm[1:]
	default:
		return "-" + perm[1:]
	}
}
