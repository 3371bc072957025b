// Package state tracks per-adapter sync bookkeeping in the local database.
// The output records are rebuilt from scratch on every run, so nothing here
// affects correctness; it only answers "when did this last run".
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func ensureTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS adapter_state (
			adapter TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (adapter, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure adapter_state table: %w", err)
	}
	return nil
}

func get(db *sql.DB, adapter, key string) (string, bool, error) {
	if err := ensureTable(db); err != nil {
		return "", false, err
	}
	var v string
	err := db.QueryRow(`SELECT value FROM adapter_state WHERE adapter = ? AND key = ?`, adapter, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get adapter state: %w", err)
	}
	return v, true, nil
}

func set(db *sql.DB, adapter, key, value string) error {
	if err := ensureTable(db); err != nil {
		return err
	}
	_, err := db.Exec(`
		INSERT INTO adapter_state (adapter, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(adapter, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, adapter, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set adapter state: %w", err)
	}
	return nil
}

// LastSynced returns the completion time of the adapter's last successful
// run, or false when it has never run.
func LastSynced(db *sql.DB, adapter string) (time.Time, bool, error) {
	v, ok, err := get(db, adapter, "last_synced")
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse last_synced: %w", err)
	}
	return t, true, nil
}

// LastRunID returns the id recorded by the adapter's last successful run.
func LastRunID(db *sql.DB, adapter string) (string, bool, error) {
	return get(db, adapter, "last_run_id")
}

// TouchSynced records a completed run: the current time plus a unique run id.
func TouchSynced(db *sql.DB, adapter string) error {
	if err := set(db, adapter, "last_synced", time.Now().Format(time.RFC3339)); err != nil {
		return err
	}
	return set(db, adapter, "last_run_id", uuid.New().String())
}
