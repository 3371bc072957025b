package sync

import (
	"database/sql"
	"fmt"
	"time"
)

// RunStatus is the recorded outcome of the most recent run per adapter.
type RunStatus struct {
	Adapter   string `json:"adapter"`
	Status    string `json:"status"` // running, success, error
	StartedAt int64  `json:"started_at"`
	UpdatedAt int64  `json:"updated_at"`
	LastError string `json:"last_error,omitempty"`
	Messages  int    `json:"messages"`
	Days      int    `json:"days"`
	Misdated  int    `json:"misdated,omitempty"`
}

func ensureRunsTable(db *sql.DB) error {
	// Existing installs may not have re-run init; create on demand.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_runs (
			adapter TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			last_error TEXT,
			messages INTEGER NOT NULL DEFAULT 0,
			days INTEGER NOT NULL DEFAULT 0,
			misdated INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure sync_runs table: %w", err)
	}
	return nil
}

func recordRunStart(db *sql.DB, adapter string) error {
	if err := ensureRunsTable(db); err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO sync_runs (adapter, status, started_at, updated_at, last_error, messages, days, misdated)
		VALUES (?, 'running', ?, ?, NULL, 0, 0, 0)
		ON CONFLICT(adapter) DO UPDATE SET
			status = 'running',
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			last_error = NULL
	`, adapter, now, now)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

func recordRunFinish(db *sql.DB, adapter string, result Result, runErr error) error {
	if err := ensureRunsTable(db); err != nil {
		return err
	}
	status := "success"
	var lastErr sql.NullString
	if runErr != nil {
		status = "error"
		lastErr = sql.NullString{String: runErr.Error(), Valid: true}
	} else if !result.OK {
		status = "error"
		lastErr = sql.NullString{String: "one or more day records failed to write", Valid: true}
	}
	_, err := db.Exec(`
		UPDATE sync_runs SET
			status = ?,
			updated_at = ?,
			last_error = ?,
			messages = ?,
			days = ?,
			misdated = ?
		WHERE adapter = ?
	`, status, time.Now().Unix(), lastErr, result.Messages, len(result.Days), result.Misdated, adapter)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// LastRuns returns recorded run outcomes, most recently updated first.
func LastRuns(db *sql.DB) ([]RunStatus, error) {
	if err := ensureRunsTable(db); err != nil {
		return nil, err
	}
	rows, err := db.Query(`
		SELECT adapter, status, started_at, updated_at, last_error, messages, days, misdated
		FROM sync_runs
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunStatus
	for rows.Next() {
		var rs RunStatus
		var lastErr sql.NullString
		if err := rows.Scan(&rs.Adapter, &rs.Status, &rs.StartedAt, &rs.UpdatedAt, &lastErr, &rs.Messages, &rs.Days, &rs.Misdated); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		rs.LastError = lastErr.String
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating run rows: %w", err)
	}
	return out, nil
}
