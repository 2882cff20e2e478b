package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clipforge/clipforge-go/internal/statuschannel"
)

// ErrNotFound is returned when no snapshot exists for a project
var ErrNotFound = errors.New("not found")

// Snapshot is the last known processing state persisted for one project.
// It lets the watch service present stale-but-displayable data across
// restarts and disconnects.
type Snapshot struct {
	ProjectID   string                      `json:"project_id"`
	Status      statuschannel.ProjectStatus `json:"status"`
	Progress    float64                     `json:"progress"`
	CurrentStep string                      `json:"current_step,omitempty"`
	StepDetails map[string]any              `json:"step_details,omitempty"`
	LastError   string                      `json:"last_error,omitempty"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// Store persists project snapshots in a local SQLite database
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the snapshot database at path and
// applies pending migrations
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertSnapshot writes the snapshot for its project, replacing any prior one
func (s *Store) UpsertSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.ProjectID == "" {
		return fmt.Errorf("snapshot missing project id")
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}

	var details any
	if snap.StepDetails != nil {
		encoded, err := json.Marshal(snap.StepDetails)
		if err != nil {
			return fmt.Errorf("marshal step details: %w", err)
		}
		details = string(encoded)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO project_snapshots(project_id, status, progress, current_step, step_details_json, last_error, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(project_id) DO UPDATE SET
	status=excluded.status,
	progress=excluded.progress,
	current_step=excluded.current_step,
	step_details_json=excluded.step_details_json,
	last_error=excluded.last_error,
	updated_at=excluded.updated_at`,
		snap.ProjectID, string(snap.Status), snap.Progress, snap.CurrentStep, details, snap.LastError, ts(snap.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot for a project, or ErrNotFound
func (s *Store) GetSnapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT project_id, status, progress, current_step, step_details_json, last_error, updated_at
FROM project_snapshots WHERE project_id = ?`, projectID)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns all snapshots ordered by project id
func (s *Store) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT project_id, status, progress, current_step, step_details_json, last_error, updated_at
FROM project_snapshots ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshots, nil
}

// DeleteSnapshot removes the snapshot for a project if present
func (s *Store) DeleteSnapshot(ctx context.Context, projectID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM project_snapshots WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var status, updatedAt string
	var details sql.NullString

	if err := row.Scan(&snap.ProjectID, &status, &snap.Progress, &snap.CurrentStep, &details, &snap.LastError, &updatedAt); err != nil {
		return nil, err
	}

	snap.Status = statuschannel.ProjectStatus(status)
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &snap.StepDetails); err != nil {
			return nil, fmt.Errorf("decode step details: %w", err)
		}
	}

	parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	snap.UpdatedAt = parsed
	return &snap, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
