package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cyberinferno/camingest/tenant"
)

// archiveTimeLayout prefixes archived file names.
const archiveTimeLayout = "20060102_150405"

// archive copies the image at path to <dir>/<ftp user>/<timestamp>_<name>,
// keeping its modification time.
func archive(dir string, t tenant.Config, path string, now time.Time) (string, error) {
	userDir := filepath.Join(dir, t.User)
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", err
	}

	dst := filepath.Join(userDir, now.Format(archiveTimeLayout)+"_"+filepath.Base(path))
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())

	return dst, nil
}
