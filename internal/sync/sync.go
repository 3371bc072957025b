// Package sync drives one extraction run: contacts, store, daily records,
// vault. The pipeline is single-threaded and read-only against the store.
package sync

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	"github.com/Napageneral/chronicle/internal/chatdb"
	"github.com/Napageneral/chronicle/internal/contacts"
	"github.com/Napageneral/chronicle/internal/daily"
	"github.com/Napageneral/chronicle/internal/state"
	"github.com/Napageneral/chronicle/internal/vault"
)

// Options configure one extraction run.
type Options struct {
	VaultPath     string
	Days          int
	ChatDBPath    string // empty means the standard chat.db location
	DenylistExtra []string
	Now           time.Time // zero means time.Now(); fixed in tests
	Logf          func(format string, args ...any)
}

// DayResult reports the outcome of one day's record write.
type DayResult struct {
	Date         string `json:"date"`
	MessageCount int    `json:"message_count"`
	Path         string `json:"path,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Result reports a full run.
type Result struct {
	OK       bool        `json:"ok"`
	Contacts int         `json:"contacts"`
	Messages int         `json:"messages"`
	Misdated int         `json:"misdated,omitempty"`
	Days     []DayResult `json:"days,omitempty"`
}

// Run executes the pipeline. Store failures are terminal. A sink failure on
// one day is recorded in its DayResult and the remaining days still get
// written; days already on disk are never corrupted by a later failure.
func Run(ctx context.Context, stateDB *sql.DB, opts Options) (result Result, runErr error) {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	days := opts.Days
	if days <= 0 {
		days = 1
	}

	result = Result{OK: true}

	if stateDB != nil {
		if err := recordRunStart(stateDB, "imessage"); err != nil {
			logf("Warning: failed to record run start: %v", err)
		}
		defer func() {
			if err := recordRunFinish(stateDB, "imessage", result, runErr); err != nil {
				logf("Warning: failed to record run outcome: %v", err)
			}
		}()
	}

	writer, err := vault.New(opts.VaultPath)
	if err != nil {
		return result, err
	}

	dir, err := contacts.Load(filepath.Join(writer.Root(), "profile", "people"))
	if err != nil {
		return result, err
	}
	result.Contacts = len(dir)
	if len(dir) > 0 {
		logf("Loaded %d known contact identifier(s)", len(dir))
	} else {
		logf("No known contacts found in profile/people/")
	}

	chatPath := opts.ChatDBPath
	if chatPath == "" {
		chatPath = chatdb.DefaultPath()
	}

	logf("Fetching iMessage conversations for past %d day(s)", days)
	store, err := chatdb.Open(chatPath)
	if err != nil {
		return result, err
	}
	defer store.Close()

	messages, err := chatdb.FetchMessages(store, chatdb.FetchOptions{
		Days:          days,
		Now:           now,
		DenylistExtra: opts.DenylistExtra,
	})
	if err != nil {
		return result, err
	}
	result.Messages = len(messages)
	for _, msg := range messages {
		if msg.Timestamp == nil {
			result.Misdated++
		}
	}
	logf("Fetched %d messages", len(messages))
	if result.Misdated > 0 {
		// These land on today's record; see daily.BucketByDay.
		logf("Warning: %d message(s) had unresolvable timestamps", result.Misdated)
	}

	for _, record := range daily.BuildWindow(messages, days, dir, now) {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		dayResult := DayResult{
			Date:         record.Date,
			MessageCount: record.Frontmatter.MessageCount,
		}
		path, err := writer.WriteDataFile("messages", record.Date+".md", record.Frontmatter, record.Body)
		if err != nil {
			dayResult.Error = err.Error()
			result.OK = false
		} else {
			dayResult.Path = path
			logf("Wrote %s (%d messages)", path, dayResult.MessageCount)
		}
		result.Days = append(result.Days, dayResult)
	}

	if stateDB != nil && result.OK {
		if err := state.TouchSynced(stateDB, "imessage"); err != nil {
			logf("Warning: failed to record sync state: %v", err)
		}
	}

	return result, nil
}
