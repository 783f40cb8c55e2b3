// Package pipeline is the processing entry point run by the workers for
// each queued upload, and the startup sweep that re-queues files left behind
// by a previous run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cyberinferno/camingest/armed"
	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/notify"
	"github.com/cyberinferno/camingest/queue"
	"github.com/cyberinferno/camingest/utils"
)

// Processor runs one job through the armed check, working-hours check,
// detection and notification.
type Processor struct {
	root       string
	archiveDir string
	armed      armed.Store
	detector   Detector
	notifier   notify.Notifier
	now        func() time.Time
	logger     logger.Logger
}

// NewProcessor creates a processor.
//
// Parameters:
//   - root: Main storage root; cleanup never climbs above a tenant's sandbox in it
//   - store: Armed-state store
//   - detector: Object detector
//   - notifier: Alert destination
//   - now: Clock, time.Now when nil
//   - log: Logger
//
// Returns:
//   - The processor
func NewProcessor(root string, store armed.Store, detector Detector, notifier notify.Notifier, now func() time.Time, log logger.Logger) *Processor {
	if now == nil {
		now = time.Now
	}

	return &Processor{
		root:     root,
		armed:    store,
		detector: detector,
		notifier: notifier,
		now:      now,
		logger:   log.With(logger.Field{Key: "component", Value: "pipeline"}),
	}
}

// WithArchive enables copying images with relevant detections into
// dir/<ftp user>/. An empty dir disables the archive.
func (p *Processor) WithArchive(dir string) *Processor {
	p.archiveDir = dir
	return p
}

// Process handles one job. Images of disarmed tenants and images processed
// outside working hours are deleted without detection. A detector failure
// deletes the image and is returned.
func (p *Processor) Process(ctx context.Context, job queue.Job) error {
	log := p.logger.With(
		logger.Field{Key: "tenant", Value: job.Tenant.ID},
		logger.Field{Key: "path", Value: job.Path},
		logger.Field{Key: "trace_id", Value: job.TraceID})

	isArmed, err := p.armed.IsArmed(ctx, job.Tenant)
	if err != nil {
		return fmt.Errorf("armed state: %w", err)
	}
	if !isArmed {
		log.Info("tenant disarmed, discarding image")
		p.discard(log, job)
		return nil
	}

	if !job.Tenant.WithinWorkingHours(p.now()) {
		log.Info("outside working hours, discarding image")
		p.discard(log, job)
		return nil
	}

	detections, err := p.detector.Detect(ctx, job.Path, job.Tenant.Detection)
	if err != nil {
		p.discard(log, job)
		return fmt.Errorf("detect: %w", err)
	}

	if classes := Classify(detections, job.Tenant.Detection); len(classes) > 0 {
		if p.archiveDir != "" {
			if dst, err := archive(p.archiveDir, job.Tenant, job.Path, p.now()); err != nil {
				log.Error("failed to archive image", logger.Field{Key: "error", Value: err})
			} else {
				log.Info("image archived", logger.Field{Key: "archive_path", Value: dst})
			}
		}

		caption := "Detected: " + strings.Join(classes, ", ")
		if err := p.notifier.Notify(ctx, job.Tenant.ChatID, job.Path, caption); err != nil {
			log.Error("notification failed", logger.Field{Key: "error", Value: err})
		}
		log.Info(caption)
	} else {
		log.Debug("no relevant objects detected")
	}

	if job.DeleteAfter {
		p.discard(log, job)
	}

	return nil
}

func (p *Processor) discard(log logger.Logger, job queue.Job) {
	if err := utils.RemoveFileAndEmptyParents(job.Path, job.Tenant.Root(p.root)); err != nil {
		log.Error("failed to delete image", logger.Field{Key: "error", Value: err})
		return
	}

	log.Debug("image deleted")
}
