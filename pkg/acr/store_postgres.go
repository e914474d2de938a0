package acr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// PostgresSchema creates the acrs table. Apply it with Migrate or an external
// migration tool.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS acrs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	commit_sha TEXT NOT NULL DEFAULT '',
	branch TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	decided_at TIMESTAMPTZ,
	data JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_acrs_status_created ON acrs (status, created_at, id);`

// PostgresStore persists ACRs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies PostgresSchema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to migrate acr store: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, a *ACR) error {
	data, err := encodeACR(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO acrs (id, status, commit_sha, branch, created_at, decided_at, data) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		a.ID, string(a.Status), a.CommitSHA, a.Branch, a.CreatedAt.UTC(), nullTime(a), data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert acr: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*ACR, error) {
	a, err := scanData(s.db.QueryRowContext(ctx, "SELECT data FROM acrs WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrACRNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get acr: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Update(ctx context.Context, a *ACR) error {
	data, err := encodeACR(a)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE acrs SET status = $1, decided_at = $2, data = $3 WHERE id = $4",
		string(a.Status), nullTime(a), data, a.ID,
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

func (s *PostgresStore) ListByStatus(ctx context.Context, statuses ...Status) ([]*ACR, error) {
	if len(statuses) == 0 {
		return []*ACR{}, nil
	}
	args := make([]any, len(statuses))
	marks := make([]string, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	query := "SELECT data FROM acrs WHERE status IN (" + strings.Join(marks, ", ") + ") ORDER BY created_at, id"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list acrs: %w", err)
	}
	return collect(rows)
}

func nullTime(a *ACR) sql.NullTime {
	if a.DecidedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: a.DecidedAt.UTC(), Valid: true}
}
