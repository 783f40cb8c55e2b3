package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cyberinferno/camingest/tenant"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the disk-backed overflow tier. Rows are read oldest-first and
// deleted in the same statement, so two consumers never receive the same row.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the sqlite database at path.
//
// Parameters:
//   - path: Database file path
//
// Returns:
//   - The Store
//   - An error if the database cannot be opened or the schema created
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS job_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path TEXT NOT NULL,
		config TEXT NOT NULL,
		delete_after INTEGER NOT NULL DEFAULT 0,
		trace_id TEXT NOT NULL DEFAULT '',
		enqueued_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_job_queue_enqueued_at ON job_queue(enqueued_at, id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create queue schema: %w", err)
	}

	return nil
}

// Put appends job to the table.
func (s *Store) Put(ctx context.Context, job Job) error {
	cfg, err := json.Marshal(job.Tenant)
	if err != nil {
		return fmt.Errorf("encode tenant snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_queue (file_path, config, delete_after, trace_id, enqueued_at) VALUES (?, ?, ?, ?, ?)`,
		job.Path, string(cfg), job.DeleteAfter, job.TraceID, job.EnqueuedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

// PopOldest removes and returns the oldest row.
//
// Returns:
//   - The job and true, or a zero Job and false when the table is empty
//   - An error if the read or decode fails
func (s *Store) PopOldest(ctx context.Context) (Job, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM job_queue
		WHERE id = (SELECT id FROM job_queue ORDER BY enqueued_at, id LIMIT 1)
		RETURNING file_path, config, delete_after, trace_id, enqueued_at`)

	var (
		job        Job
		cfg        string
		enqueuedAt int64
	)
	if err := row.Scan(&job.Path, &cfg, &job.DeleteAfter, &job.TraceID, &enqueuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, false, nil
		}
		return Job{}, false, fmt.Errorf("pop job: %w", err)
	}

	var t tenant.Config
	if err := json.Unmarshal([]byte(cfg), &t); err != nil {
		return Job{}, false, fmt.Errorf("decode tenant snapshot for %s: %w", job.Path, err)
	}
	job.Tenant = t
	job.EnqueuedAt = time.Unix(0, enqueuedAt)

	return job, true, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}

	return n, nil
}
