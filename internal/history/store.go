package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Status is the outcome of a download attempt.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry is one row of download history.
type Entry struct {
	EpisodeID     string    `json:"episode_id"`
	SeriesTitle   string    `json:"series_title"`
	EpisodeTitle  string    `json:"episode_title"`
	SeasonNumber  int       `json:"season_number"`
	EpisodeNumber int       `json:"episode_number"`
	OutputPath    string    `json:"output_path,omitempty"`
	Status        Status    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Attempts      int       `json:"attempts"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store persists download history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
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

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record upserts the outcome for an episode.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.EpisodeID) == "" {
		return errors.New("history entry is missing episode id")
	}
	if entry.Status == "" {
		entry.Status = StatusCompleted
	}
	timestamp := s.now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO downloads (
            episode_id, series_title, episode_title, season_number, episode_number,
            output_path, status, error_message, correlation_id, attempts, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
        ON CONFLICT(episode_id) DO UPDATE SET
            series_title = excluded.series_title,
            episode_title = excluded.episode_title,
            season_number = excluded.season_number,
            episode_number = excluded.episode_number,
            output_path = excluded.output_path,
            status = excluded.status,
            error_message = excluded.error_message,
            correlation_id = excluded.correlation_id,
            attempts = downloads.attempts + 1,
            updated_at = excluded.updated_at`,
		entry.EpisodeID,
		nullableString(entry.SeriesTitle),
		nullableString(entry.EpisodeTitle),
		entry.SeasonNumber,
		entry.EpisodeNumber,
		nullableString(entry.OutputPath),
		string(entry.Status),
		nullableString(entry.ErrorMessage),
		nullableString(entry.CorrelationID),
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}

// Completed reports whether the episode has a completed download on record.
func (s *Store) Completed(ctx context.Context, episodeID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM downloads WHERE episode_id = ? AND status = ?`,
		episodeID,
		string(StatusCompleted),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check download: %w", err)
	}
	return count > 0, nil
}

// Get returns the entry for an episode, or nil when none exists.
func (s *Store) Get(ctx context.Context, episodeID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM downloads WHERE episode_id = ?`, episodeID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get download: %w", err)
	}
	return entry, nil
}

// List returns the most recently updated entries first. A limit <= 0 returns all rows.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM downloads ORDER BY updated_at DESC, episode_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate downloads: %w", err)
	}
	return entries, nil
}

// Remove deletes the entry for an episode. Missing entries are not an error.
func (s *Store) Remove(ctx context.Context, episodeID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE episode_id = ?`, episodeID); err != nil {
		return fmt.Errorf("remove download: %w", err)
	}
	return nil
}
