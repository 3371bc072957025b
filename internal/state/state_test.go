package state

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLastSyncedEmpty(t *testing.T) {
	db := openTestDB(t)

	if _, ok, err := LastSynced(db, "imessage"); err != nil || ok {
		t.Fatalf("LastSynced on empty state: ok=%v err=%v", ok, err)
	}
	if _, ok, err := LastRunID(db, "imessage"); err != nil || ok {
		t.Fatalf("LastRunID on empty state: ok=%v err=%v", ok, err)
	}
}

func TestTouchSynced(t *testing.T) {
	db := openTestDB(t)

	before := time.Now().Add(-time.Second)
	if err := TouchSynced(db, "imessage"); err != nil {
		t.Fatal(err)
	}

	synced, ok, err := LastSynced(db, "imessage")
	if err != nil || !ok {
		t.Fatalf("LastSynced: ok=%v err=%v", ok, err)
	}
	if synced.Before(before) {
		t.Fatalf("last_synced %v predates the run", synced)
	}

	runID, ok, _ := LastRunID(db, "imessage")
	if !ok || runID == "" {
		t.Fatal("last_run_id not recorded")
	}

	if err := TouchSynced(db, "imessage"); err != nil {
		t.Fatal(err)
	}
	second, _, _ := LastRunID(db, "imessage")
	if second == runID {
		t.Fatal("run id did not change across runs")
	}
}

func TestAdaptersTrackedIndependently(t *testing.T) {
	db := openTestDB(t)

	if err := TouchSynced(db, "imessage"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := LastSynced(db, "other"); ok {
		t.Fatal("state leaked across adapters")
	}
}
