package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/queue"
	"github.com/cyberinferno/camingest/tenant"
)

// Enqueuer receives recovered files.
type Enqueuer interface {
	Push(ctx context.Context, job queue.Job)
}

// SweepLeftovers walks every tenant sandbox under root and enqueues each file
// whose extension is in exts (case-insensitive) with DeleteAfter set.
// Annotated copies ("*_marked.*") are skipped. A missing sandbox is skipped.
//
// Parameters:
//   - ctx: Cancels the walk
//   - root: Main storage root
//   - tenants: Tenants whose sandboxes are swept
//   - exts: Extensions to recover, e.g. ".jpg"
//   - q: Destination queue
//   - log: Logger
//
// Returns:
//   - The number of files enqueued
//   - An error if a sandbox cannot be walked or ctx is cancelled
func SweepLeftovers(ctx context.Context, root string, tenants []tenant.Config, exts []string, q Enqueuer, log logger.Logger) (int, error) {
	wanted := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		wanted[ext] = struct{}{}
	}

	total := 0
	for _, t := range tenants {
		dir := t.Root(root)
		count := 0
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir && errors.Is(err, fs.ErrNotExist) {
					return fs.SkipDir
				}
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !d.Type().IsRegular() {
				return nil
			}

			name := d.Name()
			if _, ok := wanted[strings.ToLower(filepath.Ext(name))]; !ok {
				return nil
			}
			if strings.Contains(name, "_marked.") {
				return nil
			}

			q.Push(ctx, queue.Job{Path: path, Tenant: t, DeleteAfter: true})
			count++
			return nil
		})
		if err != nil {
			return total, err
		}

		if count > 0 {
			log.Info("re-queued leftover files",
				logger.Field{Key: "tenant", Value: t.ID},
				logger.Field{Key: "count", Value: count})
		}
		total += count
	}

	return total, nil
}
