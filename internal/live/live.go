// Package live re-runs the extraction pipeline whenever chat.db changes.
package live

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Napageneral/chronicle/internal/sync"
)

// Options control the watch loop.
type Options struct {
	ChatDBPath      string
	DebounceSeconds int
	Logf            func(format string, args ...any)
}

// Watch blocks until ctx is cancelled, re-running sync whenever the message
// store changes. Writes to chat.db arrive in bursts (main db, -wal, -shm), so
// events are debounced before a sync fires.
func Watch(ctx context.Context, stateDB *sql.DB, syncOpts sync.Options, opts Options) error {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	debounce := time.Duration(opts.DebounceSeconds) * time.Second
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	chatDBDir := filepath.Dir(opts.ChatDBPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(chatDBDir); err != nil {
		return fmt.Errorf("watch %s: %w", chatDBDir, err)
	}

	logf("Watching for iMessage changes in %s (debounce: %s)", chatDBDir, debounce)
	logf("Press Ctrl+C to stop")

	runSync := func() {
		result, err := sync.Run(ctx, stateDB, syncOpts)
		if err != nil {
			logf("watch sync error: %v", err)
			return
		}
		logf("[%s] Synced %d message(s) into %d day record(s)",
			time.Now().Format("15:04:05"), result.Messages, len(result.Days))
	}

	logf("[%s] Running initial sync...", time.Now().Format("15:04:05"))
	runSync()

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.Contains(event.Name, "chat.db") {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, runSync)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logf("watch error: %v", err)
		}
	}
}
