// Package jobstore keeps finished subtitles on disk for a limited time so a
// client can download them by job ID. SRT bytes live in <dir>/<id>.srt and
// metadata in a SQLite index next to them.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/forPelevin/subtle/internal/platform/logger"
)

const (
	DefaultExpiry        = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute

	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

var (
	ErrNotFound  = errors.New("subtitles not found or expired")
	ErrExists    = errors.New("job already stored")
	ErrInvalidID = errors.New("invalid job id")
)

type Meta struct {
	OriginalFilename string    `json:"originalFilename"`
	DetectedLanguage string    `json:"detectedLanguage"`
	Duration         float64   `json:"duration"`
	CreatedAt        time.Time `json:"createdAt"`
}

type Entry struct {
	ID string `json:"id"`
	Meta
}

type Store struct {
	db     *sql.DB
	dir    string
	expiry time.Duration
	lock   *flock.Flock
	log    *logger.Logger
	now    func() time.Time
}

// Open creates dir when needed and opens the metadata index in it.
func Open(dir string, expiry time.Duration, log *logger.Logger) (*Store, error) {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if log == nil {
		log = logger.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "jobs.db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		original_filename TEXT NOT NULL DEFAULT '',
		detected_language TEXT NOT NULL DEFAULT '',
		duration REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{
		db:     db,
		dir:    dir,
		expiry: expiry,
		lock:   flock.New(filepath.Join(dir, "sweep.lock")),
		log:    log,
		now:    time.Now,
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ValidID reports whether id is a UUID, the only form accepted as a file name.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// Save stores srt under id. An id is written once; a second Save fails with
// ErrExists and leaves the first copy alone.
func (s *Store) Save(ctx context.Context, id, srt string, meta Meta) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	created := s.now().UTC()
	err := s.retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO jobs (id, original_filename, detected_language, duration, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, meta.OriginalFilename, meta.DetectedLanguage, meta.Duration, created.UnixMilli(),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save %s: %w", id, ErrExists)
		}
		return fmt.Errorf("save %s: %w", id, err)
	}
	if err := writeFileAtomic(s.srtPath(id), []byte(srt)); err != nil {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
		return fmt.Errorf("save %s: %w", id, err)
	}
	return nil
}

// Get returns the stored subtitles and metadata, or ErrNotFound when the job
// is unknown or older than the expiry.
func (s *Store) Get(ctx context.Context, id string) (string, Meta, error) {
	if !ValidID(id) {
		return "", Meta{}, ErrInvalidID
	}
	var (
		meta    Meta
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT original_filename, detected_language, duration, created_at FROM jobs WHERE id = ?`, id,
	).Scan(&meta.OriginalFilename, &meta.DetectedLanguage, &meta.Duration, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return "", Meta{}, ErrNotFound
	}
	if err != nil {
		return "", Meta{}, fmt.Errorf("get %s: %w", id, err)
	}
	meta.CreatedAt = time.UnixMilli(created).UTC()
	if s.expired(meta.CreatedAt) {
		return "", Meta{}, ErrNotFound
	}
	b, err := os.ReadFile(s.srtPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return "", Meta{}, ErrNotFound
	}
	if err != nil {
		return "", Meta{}, fmt.Errorf("get %s: %w", id, err)
	}
	return string(b), meta, nil
}

// List returns the jobs that have not expired, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	cutoff := s.now().Add(-s.expiry).UnixMilli()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, original_filename, detected_language, duration, created_at FROM jobs WHERE created_at >= ? ORDER BY created_at DESC, id`, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.OriginalFilename, &e.DetectedLanguage, &e.Duration, &created); err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	if err := s.retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
		return err
	}); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if err := os.Remove(s.srtPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// SweepExpired removes every job created before now minus the expiry and
// returns how many were removed.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.expiry).UnixMilli()
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM jobs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("sweep: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}

	removed := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			s.log.Warn("sweep delete failed", "job", id, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// RunSweeper sweeps expired jobs every interval until ctx is done. A file
// lock in the storage dir keeps concurrent processes from sweeping at once.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s.log.Info("cleanup job started", "interval", interval.String(), "expiry", s.expiry.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Store) sweepOnce(ctx context.Context) {
	ok, err := s.lock.TryLock()
	if err != nil {
		s.log.Warn("sweep lock failed", "error", err)
		return
	}
	if !ok {
		s.log.Debug("sweep skipped, another process holds the lock")
		return
	}
	defer func() { _ = s.lock.Unlock() }()

	n, err := s.SweepExpired(ctx, s.now())
	if err != nil {
		s.log.Warn("sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("deleted expired subtitles", "count", n)
	}
}

func (s *Store) expired(created time.Time) bool {
	return s.now().Sub(created) > s.expiry
}

func (s *Store) srtPath(id string) string {
	return filepath.Join(s.dir, id+".srt")
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *Store) retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// DownloadName is the attachment name for a job: the original file name with
// its extension swapped for .srt.
func DownloadName(original string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(original), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return "subtitles.srt"
	}
	base = strings.ReplaceAll(base, `"`, "")
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" {
		return "subtitles.srt"
	}
	return base + ".srt"
}
