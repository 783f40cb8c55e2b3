package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const dateLayout = "2006-01-02"

// DailyFileWriter is an io.Writer that writes to a log file that rotates
// daily. File names are {service}_{date}.log. Rotation happens on the first
// write of a new day and from an hourly background check; files older than
// the retention window are removed whenever a new file is opened. Safe for
// concurrent use.
type DailyFileWriter struct {
	service   string
	dir       string
	retention int
	mu        sync.RWMutex
	file      *os.File
	currDate  string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	now       func() time.Time
}

// NewDailyFileWriter creates a DailyFileWriter in logDir. The directory must
// already exist.
//
// Parameters:
//   - service: Service name used in log file names
//   - logDir: Directory path for log files
//   - retentionDays: Number of daily files to keep; 0 disables pruning
//
// Returns:
//   - The new DailyFileWriter, or an error if the initial file could not be opened
func NewDailyFileWriter(service string, logDir string, retentionDays int) (*DailyFileWriter, error) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &DailyFileWriter{
		service:   service,
		dir:       logDir,
		retention: retentionDays,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}

	if err := w.rotate(); err != nil {
		cancel()
		return nil, fmt.Errorf("initial rotation failed: %w", err)
	}

	w.wg.Add(1)
	go w.autoRotate()
	return w, nil
}

// Close stops the background rotator and closes the current log file.
// Subsequent writes return an error. It is safe to call multiple times.
func (w *DailyFileWriter) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}

	return nil
}

// autoRotate runs in a goroutine and performs hourly rotation checks.
func (w *DailyFileWriter) autoRotate() {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if w.closed.Load() {
				return
			}

			w.mu.Lock()
			if w.needsRotation() {
				_ = w.rotateInternal()
			}
			w.mu.Unlock()
		}
	}
}

func (w *DailyFileWriter) rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateInternal()
}

// rotateInternal opens the file for the current date; caller must hold w.mu.
func (w *DailyFileWriter) rotateInternal() error {
	if w.closed.Load() {
		return fmt.Errorf("writer is closed")
	}

	date := w.now().Format(dateLayout)

	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	filename := w.fileName(date)
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", filename, err)
	}

	w.file = file
	w.currDate = date
	w.prune()
	return nil
}

// prune removes the oldest {service}_{date}.log files beyond the retention
// window. Errors are ignored; a stale log file is not worth failing a write.
func (w *DailyFileWriter) prune() {
	if w.retention <= 0 {
		return
	}

	matches, err := filepath.Glob(filepath.Join(w.dir, w.service+"_*.log"))
	if err != nil {
		return
	}

	var dated []string
	for _, m := range matches {
		date := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), w.service+"_"), ".log")
		if _, err := time.Parse(dateLayout, date); err == nil {
			dated = append(dated, m)
		}
	}

	if len(dated) <= w.retention {
		return
	}

	// Date-stamped names sort chronologically.
	sort.Strings(dated)
	for _, old := range dated[:len(dated)-w.retention] {
		_ = os.Remove(old)
	}
}

// Write implements io.Writer.
func (w *DailyFileWriter) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, fmt.Errorf("writer is closed")
	}

	w.mu.RLock()
	needsRotation := w.needsRotation()
	w.mu.RUnlock()

	if needsRotation {
		w.mu.Lock()
		if w.needsRotation() {
			if err := w.rotateInternal(); err != nil {
				w.mu.Unlock()
				return 0, fmt.Errorf("rotation failed: %w", err)
			}
		}
		w.mu.Unlock()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.file == nil {
		return 0, fmt.Errorf("log file is not open")
	}

	return w.file.Write(p)
}

func (w *DailyFileWriter) needsRotation() bool {
	if w.file == nil {
		return true
	}

	return w.now().Format(dateLayout) != w.currDate
}

// CurrentLogFile returns the full path of the log file currently being
// written to, or "" if none is open.
func (w *DailyFileWriter) CurrentLogFile() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.file == nil {
		return ""
	}

	return w.fileName(w.currDate)
}

func (w *DailyFileWriter) fileName(date string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, date))
}
