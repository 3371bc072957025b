// Package chatdb reads the macOS iMessage database.
//
// chat.db is opened strictly read-only for the duration of one extraction run
// and closed afterward; no write lock is ever requested.
package chatdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Napageneral/chronicle/internal/appletime"
	"github.com/Napageneral/chronicle/internal/archive"
)

var (
	// ErrNotFound means chat.db does not exist at the given path.
	ErrNotFound = errors.New("chat.db not found")

	// ErrAccessDenied means chat.db exists but could not be read. On macOS
	// this is almost always a missing Full Disk Access grant.
	ErrAccessDenied = errors.New("chat.db access denied")
)

// groupChatStyle is the chat.style value that marks a group conversation.
const groupChatStyle = 43

// Message is one unit of communication pulled from the store. Immutable after
// construction.
type Message struct {
	HandleID        string
	Text            string
	IsFromMe        bool
	Timestamp       *time.Time // nil when the store value is absent or corrupt
	Service         string
	ChatID          string
	ChatDisplayName string
	IsGroup         bool
}

// DefaultPath returns the standard chat.db location for the current user.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

// Open opens chat.db read-only and verifies it is queryable. Missing path and
// unreadable path fail with distinct errors so the caller can give the right
// remediation.
func Open(path string) (*sqlx.DB, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w at %s (requires macOS with iMessage configured)", ErrNotFound, path)
	}

	db, err := sqlx.Connect("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, classifyOpenError(path, err)
	}

	// Sanity probe: macOS TCC denials surface on the first query, not on open.
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM message LIMIT 1"); err != nil {
		db.Close()
		return nil, classifyOpenError(path, err)
	}

	return db, nil
}

func classifyOpenError(path string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unable to open") ||
		strings.Contains(msg, "authorization denied") ||
		strings.Contains(msg, "permission denied") {
		return fmt.Errorf("%w: cannot read %s\n"+
			"Full Disk Access is required. Grant it to your terminal app:\n"+
			"  System Settings > Privacy & Security > Full Disk Access\n"+
			"then restart the terminal and try again", ErrAccessDenied, path)
	}
	return fmt.Errorf("failed to open chat.db: %w", err)
}

// messageRow mirrors one row of the extraction query.
type messageRow struct {
	Text            sql.NullString `db:"text"`
	AttributedBody  []byte         `db:"attributed_body"`
	IsFromMe        int            `db:"is_from_me"`
	Date            sql.NullInt64  `db:"msg_date"`
	Service         sql.NullString `db:"service"`
	HandleID        sql.NullString `db:"handle_id"`
	ChatID          sql.NullString `db:"chat_identifier"`
	ChatDisplayName sql.NullString `db:"chat_display_name"`
	ChatStyle       sql.NullInt64  `db:"chat_style"`
}

const fetchQuery = `
	SELECT
		m.text,
		m.attributedBody AS attributed_body,
		m.is_from_me,
		m.date AS msg_date,
		m.service,
		h.id AS handle_id,
		c.chat_identifier,
		c.display_name AS chat_display_name,
		c.style AS chat_style
	FROM message m
	LEFT JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
	LEFT JOIN chat c ON c.ROWID = cmj.chat_id
	LEFT JOIN handle h ON h.ROWID = m.handle_id
	WHERE m.date > ?
	  AND m.associated_message_type = 0
	ORDER BY m.date ASC
`

// FetchOptions control a single extraction run.
type FetchOptions struct {
	Days          int
	Now           time.Time // zero means time.Now()
	DenylistExtra []string  // extra structural tags for the blob decoder
}

// FetchMessages returns every message in the lookback window, oldest first.
// Rows flagged as reactions are excluded by the query, and rows with no
// extractable text are dropped locally; they carry nothing reconstructible.
func FetchMessages(db *sqlx.DB, opts FetchOptions) ([]Message, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	days := opts.Days
	if days <= 0 {
		days = 1
	}
	cutoff := (now.AddDate(0, 0, -days).Unix() - appletime.CoreDataEpoch) * int64(time.Second)

	var rows []messageRow
	if err := db.Select(&rows, fetchQuery, cutoff); err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		text := strings.TrimSpace(row.Text.String)
		if text == "" {
			text = strings.TrimSpace(archive.DecodeWithDenylist(row.AttributedBody, opts.DenylistExtra))
		}
		if text == "" {
			continue
		}

		msg := Message{
			HandleID:        row.HandleID.String,
			Text:            text,
			IsFromMe:        row.IsFromMe != 0,
			Service:         row.Service.String,
			ChatID:          row.ChatID.String,
			ChatDisplayName: row.ChatDisplayName.String,
			IsGroup:         row.ChatStyle.Valid && row.ChatStyle.Int64 == groupChatStyle,
		}
		if msg.Service == "" {
			msg.Service = "iMessage"
		}
		if row.Date.Valid {
			if ts, ok := appletime.Convert(row.Date.Int64); ok {
				msg.Timestamp = &ts
			}
		}

		messages = append(messages, msg)
	}

	return messages, nil
}
