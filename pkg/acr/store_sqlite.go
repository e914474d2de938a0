package acr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists ACRs in SQLite. The full record is kept as JSON in
// `data`; the remaining columns exist for filtering and ordering.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteStore wraps db and applies the schema.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS acrs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		commit_sha TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		decided_at TEXT,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_acrs_status_created ON acrs (status, created_at, id);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate acr store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, a *ACR) error {
	data, err := encodeACR(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO acrs (id, status, commit_sha, branch, created_at, decided_at, data) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Status), a.CommitSHA, a.Branch, formatTime(a.CreatedAt), formatDecided(a.DecidedAt), data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert acr: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*ACR, error) {
	a, err := scanData(s.db.QueryRowContext(ctx, `SELECT data FROM acrs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrACRNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get acr: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) Update(ctx context.Context, a *ACR) error {
	data, err := encodeACR(a)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE acrs SET status = ?, decided_at = ?, data = ? WHERE id = ?`,
		string(a.Status), formatDecided(a.DecidedAt), data, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update acr: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update acr: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrACRNotFound, a.ID)
	}
	return nil
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, statuses ...Status) ([]*ACR, error) {
	if len(statuses) == 0 {
		return []*ACR{}, nil
	}
	args := make([]any, len(statuses))
	marks := make([]string, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
		marks[i] = "?"
	}
	query := `SELECT data FROM acrs WHERE status IN (` + strings.Join(marks, ", ") + `) ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list acrs: %w", err)
	}
	return collect(rows)
}
