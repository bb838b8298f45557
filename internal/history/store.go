// Package history keeps a local record of update checks for diagnostics.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	apperrors "upcheck/internal/errors"
	"upcheck/internal/update"
)

// DefaultFileName is the database file created under the user's upcheck directory.
const DefaultFileName = "history.db"

// DirName is the per-user directory holding the database.
const DirName = ".upcheck"

const schema = `
CREATE TABLE IF NOT EXISTS checks (
	id              TEXT PRIMARY KEY,
	channel         TEXT NOT NULL,
	running_version TEXT NOT NULL,
	latest_version  TEXT NOT NULL DEFAULT '',
	download_url    TEXT NOT NULL DEFAULT '',
	content_hash    TEXT NOT NULL DEFAULT '',
	outdated        INTEGER NOT NULL DEFAULT 0,
	error_code      TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	started_at      INTEGER NOT NULL,
	finished_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS checks_finished_at ON checks (finished_at DESC);
`

// Entry is one recorded check.
type Entry struct {
	ID             string    `json:"id" yaml:"id" toml:"id"`
	Channel        string    `json:"channel" yaml:"channel" toml:"channel"`
	RunningVersion string    `json:"running_version" yaml:"running_version" toml:"running_version"`
	LatestVersion  string    `json:"latest_version,omitempty" yaml:"latest_version,omitempty" toml:"latest_version,omitempty"`
	DownloadURL    string    `json:"download_url,omitempty" yaml:"download_url,omitempty" toml:"download_url,omitempty"`
	ContentHash    string    `json:"content_hash,omitempty" yaml:"content_hash,omitempty" toml:"content_hash,omitempty"`
	Outdated       bool      `json:"outdated" yaml:"outdated" toml:"outdated"`
	ErrorCode      string    `json:"error_code,omitempty" yaml:"error_code,omitempty" toml:"error_code,omitempty"`
	Error          string    `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	StartedAt      time.Time `json:"started_at" yaml:"started_at" toml:"started_at"`
	FinishedAt     time.Time `json:"finished_at" yaml:"finished_at" toml:"finished_at"`
}

// Failed reports whether the check ended in an error.
func (e Entry) Failed() bool {
	return e.ErrorCode != "" || e.Error != ""
}

// Store is a SQLite-backed check log. It implements update.Recorder.
type Store struct {
	db   *sql.DB
	path string
}

var _ update.Recorder = (*Store)(nil)

// DefaultPath returns ~/.upcheck/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, DirName, DefaultFileName), nil
}

// buildDSN creates a WAL DSN for the given path.
func buildDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Open opens or creates the store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, apperrors.New(apperrors.CodeConfigurationError, "history path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", buildDSN(trimmed))
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db, path: trimmed}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordCheck stores one finished attempt.
func (s *Store) RecordCheck(ctx context.Context, a update.Attempt) error {
	e := Entry{
		ID:             uuid.NewString(),
		Channel:        string(a.Channel),
		RunningVersion: a.Running.Version,
		Outdated:       a.Outdated,
		StartedAt:      a.StartedAt,
		FinishedAt:     a.FinishedAt,
	}
	if a.Latest != nil {
		e.LatestVersion = a.Latest.Version
		e.DownloadURL = a.Latest.DownloadURL
		e.ContentHash = a.Latest.Hash()
	}
	if a.Err != nil {
		e.ErrorCode = string(apperrors.CodeOf(a.Err))
		e.Error = a.Err.Error()
	}
	return s.Insert(ctx, e)
}

// Insert stores e, assigning an ID when it has none.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checks (
			id, channel, running_version, latest_version, download_url, content_hash,
			outdated, error_code, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Channel, e.RunningVersion, e.LatestVersion, e.DownloadURL, e.ContentHash,
		boolToInt(e.Outdated), e.ErrorCode, e.Error, e.StartedAt.UnixMilli(), e.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert check %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, running_version, latest_version, download_url, content_hash,
			outdated, error_code, error, started_at, finished_at
		FROM checks
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			outdated          int
			started, finished int64
		)
		if err := rows.Scan(&e.ID, &e.Channel, &e.RunningVersion, &e.LatestVersion, &e.DownloadURL,
			&e.ContentHash, &outdated, &e.ErrorCode, &e.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		e.Outdated = outdated != 0
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes all but the newest keep entries and returns how many were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM checks WHERE id NOT IN (
			SELECT id FROM checks ORDER BY finished_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune checks: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
