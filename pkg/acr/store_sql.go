package acr

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// sortableTime is a fixed-width UTC layout so that text columns order
// chronologically.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sortableTime)
}

func formatDecided(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func encodeACR(a *ACR) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode acr %s: %w", a.ID, err)
	}
	return string(data), nil
}

func decodeACR(data string) (*ACR, error) {
	var a ACR
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("failed to decode acr: %w", err)
	}
	return &a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanData(row rowScanner) (*ACR, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		return nil, err
	}
	return decodeACR(data)
}

func collect(rows *sql.Rows) ([]*ACR, error) {
	defer func() { _ = rows.Close() }()
	out := []*ACR{}
	for rows.Next() {
		a, err := scanData(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
