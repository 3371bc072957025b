package sync

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Napageneral/chronicle/internal/appletime"
	"github.com/Napageneral/chronicle/internal/chatdb"
	"github.com/Napageneral/chronicle/internal/state"
)

func buildFixtureStore(t *testing.T, now time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sqlx.Connect("sqlite3", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	schema := `
		CREATE TABLE message (
			ROWID INTEGER PRIMARY KEY,
			text TEXT,
			attributedBody BLOB,
			is_from_me INTEGER NOT NULL DEFAULT 0,
			date INTEGER,
			associated_message_type INTEGER NOT NULL DEFAULT 0,
			service TEXT,
			handle_id INTEGER
		);
		CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT);
		CREATE TABLE chat (ROWID INTEGER PRIMARY KEY, chat_identifier TEXT, display_name TEXT, style INTEGER);
		CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatal(err)
	}

	ns := func(ts time.Time) int64 {
		return (ts.Unix() - appletime.CoreDataEpoch) * int64(time.Second)
	}

	if _, err := db.Exec(`INSERT INTO handle (ROWID, id) VALUES (1, '+15551234567'), (2, '+15559999999')`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO message (ROWID, text, is_from_me, date, service, handle_id) VALUES
		(1, 'Morning!', 0, ?, 'iMessage', 1),
		(2, 'Lunch today?', 0, ?, 'iMessage', 1),
		(3, 'You won a prize', 0, ?, 'iMessage', 2)`,
		ns(now.Add(-4*time.Hour)), ns(now.Add(-3*time.Hour)), ns(now.Add(-2*time.Hour))); err != nil {
		t.Fatal(err)
	}
	return path
}

func buildVault(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	peopleDir := filepath.Join(root, "profile", "people")
	if err := os.MkdirAll(peopleDir, 0755); err != nil {
		t.Fatal(err)
	}
	profile := "---\nname: Alice Smith\nphone: '+15551234567'\n---\n"
	if err := os.WriteFile(filepath.Join(peopleDir, "alice.md"), []byte(profile), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestRunEndToEnd(t *testing.T) {
	now := time.Date(2026, 2, 17, 12, 0, 0, 0, time.Local)
	storePath := buildFixtureStore(t, now)
	vaultRoot := buildVault(t)

	result, err := Run(context.Background(), nil, Options{
		VaultPath:  vaultRoot,
		Days:       1,
		ChatDBPath: storePath,
		Now:        now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.OK {
		t.Fatalf("result not OK: %+v", result)
	}
	if result.Contacts != 1 || result.Messages != 3 {
		t.Fatalf("contacts=%d messages=%d want 1/3", result.Contacts, result.Messages)
	}
	if len(result.Days) != 1 || result.Days[0].Date != "2026-02-17" {
		t.Fatalf("days=%+v", result.Days)
	}

	raw, err := os.ReadFile(filepath.Join(vaultRoot, "data", "messages", "2026-02-17.md"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(raw)

	for _, want := range []string{
		"known_contact_conversations: 1",
		"conversation_count: 2",
		"message_count: 3",
		"Alice Smith",
		"Morning!",
		"Lunch today?",
		"1 other conversation(s) with 1 message(s)",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("output missing %q:\n%s", want, content)
		}
	}
	for _, leak := range []string{"You won a prize", "+15559999999"} {
		if strings.Contains(content, leak) {
			t.Fatalf("unknown-sender content leaked %q:\n%s", leak, content)
		}
	}
}

func TestRunEmitsEmptyDays(t *testing.T) {
	now := time.Date(2026, 2, 17, 12, 0, 0, 0, time.Local)
	storePath := buildFixtureStore(t, now)
	vaultRoot := buildVault(t)

	result, err := Run(context.Background(), nil, Options{
		VaultPath:  vaultRoot,
		Days:       3,
		ChatDBPath: storePath,
		Now:        now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Days) != 3 {
		t.Fatalf("days=%d want 3", len(result.Days))
	}

	raw, err := os.ReadFile(filepath.Join(vaultRoot, "data", "messages", "2026-02-15.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "No messages for this day.") {
		t.Fatalf("empty day record wrong:\n%s", raw)
	}
}

func TestRunRecordsOutcome(t *testing.T) {
	now := time.Date(2026, 2, 17, 12, 0, 0, 0, time.Local)
	storePath := buildFixtureStore(t, now)
	vaultRoot := buildVault(t)

	stateDB, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer stateDB.Close()

	if _, err := Run(context.Background(), stateDB, Options{
		VaultPath:  vaultRoot,
		Days:       1,
		ChatDBPath: storePath,
		Now:        now,
	}); err != nil {
		t.Fatal(err)
	}

	runs, err := LastRuns(stateDB)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs=%d want 1", len(runs))
	}
	if runs[0].Adapter != "imessage" || runs[0].Status != "success" {
		t.Fatalf("run record wrong: %+v", runs[0])
	}
	if runs[0].Messages != 3 || runs[0].Days != 1 {
		t.Fatalf("run counts wrong: %+v", runs[0])
	}
	if _, ok, _ := state.LastSynced(stateDB, "imessage"); !ok {
		t.Fatal("last_synced not recorded")
	}
}

func TestRunRecordsFailure(t *testing.T) {
	vaultRoot := buildVault(t)
	stateDB, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer stateDB.Close()

	if _, err := Run(context.Background(), stateDB, Options{
		VaultPath:  vaultRoot,
		Days:       1,
		ChatDBPath: filepath.Join(t.TempDir(), "chat.db"),
	}); err == nil {
		t.Fatal("Run succeeded with a missing store")
	}

	runs, err := LastRuns(stateDB)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != "error" || runs[0].LastError == "" {
		t.Fatalf("failure not recorded: %+v", runs)
	}
}

func TestRunStoreMissingIsFatal(t *testing.T) {
	vaultRoot := buildVault(t)
	_, err := Run(context.Background(), nil, Options{
		VaultPath:  vaultRoot,
		Days:       1,
		ChatDBPath: filepath.Join(t.TempDir(), "chat.db"),
	})
	if !errors.Is(err, chatdb.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestRunMissingVaultIsFatal(t *testing.T) {
	_, err := Run(context.Background(), nil, Options{
		VaultPath: filepath.Join(t.TempDir(), "no-vault"),
		Days:      1,
	})
	if err == nil {
		t.Fatal("Run succeeded with a missing vault")
	}
}
