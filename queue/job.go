// Package queue implements the durable work queue between the FTP server and
// the worker pool: a bounded in-memory tier that spills to a sqlite table when
// full.
package queue

import (
	"time"

	"github.com/cyberinferno/camingest/tenant"
)

// Job is one uploaded file awaiting processing. A Job is immutable once
// pushed. Two Jobs may reference the same Path.
type Job struct {
	// Path is the absolute path of the stored file.
	Path string `json:"path"`
	// Tenant is a snapshot of the owner's configuration at enqueue time.
	Tenant tenant.Config `json:"tenant"`
	// DeleteAfter requests removal of Path once processing finishes.
	DeleteAfter bool `json:"delete_after"`
	// TraceID correlates log lines for this job. It is not an identity.
	TraceID string `json:"trace_id"`
	// EnqueuedAt is set by Push.
	EnqueuedAt time.Time `json:"enqueued_at"`
}
