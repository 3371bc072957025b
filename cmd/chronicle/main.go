package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Napageneral/chronicle/internal/chatdb"
	"github.com/Napageneral/chronicle/internal/config"
	"github.com/Napageneral/chronicle/internal/contacts"
	"github.com/Napageneral/chronicle/internal/db"
	"github.com/Napageneral/chronicle/internal/live"
	"github.com/Napageneral/chronicle/internal/state"
	"github.com/Napageneral/chronicle/internal/sync"
	"github.com/Napageneral/chronicle/internal/vault"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chronicle",
		Short: "Privacy-filtered daily records from local iMessage history",
		Long: `Chronicle reads the local iMessage database read-only and writes
one markdown record per day into your vault. Conversations with
known contacts get full detail; everyone else appears only as a
count.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(contactsCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(liveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("chronicle %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize chronicle config and bookkeeping database",
		Run: func(cmd *cobra.Command, args []string) {
			configDir, err := config.GetConfigDir()
			if err != nil {
				fatal("Failed to get config directory: %v", err)
			}
			dataDir, err := config.GetDataDir()
			if err != nil {
				fatal("Failed to get data directory: %v", err)
			}
			if err := os.MkdirAll(configDir, 0755); err != nil {
				fatal("Failed to create config directory: %v", err)
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				fatal("Failed to create data directory: %v", err)
			}
			if err := db.Init(); err != nil {
				fatal("Failed to initialize database: %v", err)
			}
			dbPath, err := db.GetPath()
			if err != nil {
				fatal("Failed to get database path: %v", err)
			}

			if jsonOutput {
				printJSON(map[string]any{
					"ok":         true,
					"config_dir": configDir,
					"data_dir":   dataDir,
					"db_path":    dbPath,
				})
				return
			}
			fmt.Printf("✓ Config directory: %s\n", configDir)
			fmt.Printf("✓ Data directory: %s\n", dataDir)
			fmt.Printf("✓ Database: %s\n", dbPath)
		},
	}
}

func syncCmd() *cobra.Command {
	var days int
	var vaultPath string
	var chatDBPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Extract recent messages and write daily records to the vault",
		Run: func(cmd *cobra.Command, args []string) {
			opts := buildSyncOptions(days, vaultPath, chatDBPath)

			stateDB := openStateDB(opts.Logf)
			if stateDB != nil {
				defer stateDB.Close()
			}

			result, err := sync.Run(context.Background(), stateDB, opts)
			if err != nil {
				reportRunError(err)
			}

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("Done. %d day record(s) written.\n", len(result.Days))
			if !result.OK {
				for _, day := range result.Days {
					if day.Error != "" {
						fmt.Fprintf(os.Stderr, "  %s: %s\n", day.Date, day.Error)
					}
				}
				os.Exit(1)
			}
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Days to look back (default 1, or config)")
	cmd.Flags().StringVar(&vaultPath, "vault", "", "Vault path (default from config)")
	cmd.Flags().StringVar(&chatDBPath, "chat-db", "", "Override chat.db path")
	return cmd
}

func contactsCmd() *cobra.Command {
	var vaultPath string

	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Show the known-contact directory loaded from the vault",
		Run: func(cmd *cobra.Command, args []string) {
			opts := buildSyncOptions(0, vaultPath, "")

			writer, err := vault.New(opts.VaultPath)
			if err != nil {
				fatal("%v", err)
			}
			dir, err := contacts.Load(filepath.Join(writer.Root(), "profile", "people"))
			if err != nil {
				fatal("%v", err)
			}

			if jsonOutput {
				printJSON(map[string]any{"count": len(dir), "contacts": dir})
				return
			}
			fmt.Printf("%d known contact identifier(s)\n", len(dir))
			keys := make([]string, 0, len(dir))
			for k := range dir {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %s -> %s\n", k, dir[k])
			}
		},
	}

	cmd.Flags().StringVar(&vaultPath, "vault", "", "Vault path (default from config)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the most recent sync runs",
		Run: func(cmd *cobra.Command, args []string) {
			stateDB, err := db.Open()
			if err != nil {
				fatal("Failed to open bookkeeping database: %v", err)
			}
			defer stateDB.Close()

			runs, err := sync.LastRuns(stateDB)
			if err != nil {
				fatal("%v", err)
			}

			if jsonOutput {
				printJSON(map[string]any{"runs": runs})
				return
			}
			if len(runs) == 0 {
				fmt.Println("No sync runs recorded yet.")
				return
			}
			for _, run := range runs {
				fmt.Printf("%s: %s (updated %s)\n", run.Adapter, run.Status,
					time.Unix(run.UpdatedAt, 0).Format(time.RFC3339))
				fmt.Printf("  %d message(s) across %d day record(s)\n", run.Messages, run.Days)
				if run.Misdated > 0 {
					fmt.Printf("  %d message(s) with unresolvable timestamps\n", run.Misdated)
				}
				if run.LastError != "" {
					fmt.Printf("  last error: %s\n", run.LastError)
				}
				if synced, ok, _ := state.LastSynced(stateDB, run.Adapter); ok {
					fmt.Printf("  last successful sync: %s\n", synced.Format(time.RFC3339))
				}
			}
		},
	}
}

func liveCmd() *cobra.Command {
	var days int
	var vaultPath string
	var chatDBPath string
	var debounce int

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Watch chat.db and re-sync on changes",
		Run: func(cmd *cobra.Command, args []string) {
			opts := buildSyncOptions(days, vaultPath, chatDBPath)

			cfg, _ := config.Load()
			debounceSec := debounce
			if debounceSec <= 0 && cfg != nil {
				if liveCfg := cfg.IMessage().Live; liveCfg != nil {
					debounceSec = liveCfg.DebounceSeconds
				}
			}

			stateDB := openStateDB(opts.Logf)
			if stateDB != nil {
				defer stateDB.Close()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			chatPath := opts.ChatDBPath
			if chatPath == "" {
				chatPath = chatdb.DefaultPath()
			}
			err := live.Watch(ctx, stateDB, opts, live.Options{
				ChatDBPath:      chatPath,
				DebounceSeconds: debounceSec,
				Logf:            opts.Logf,
			})
			if err != nil {
				fatal("%v", err)
			}
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Days to look back on each sync")
	cmd.Flags().StringVar(&vaultPath, "vault", "", "Vault path (default from config)")
	cmd.Flags().StringVar(&chatDBPath, "chat-db", "", "Override chat.db path")
	cmd.Flags().IntVar(&debounce, "debounce", 0, "Debounce seconds between change and sync")
	return cmd
}

// buildSyncOptions merges command-line flags over the config file.
func buildSyncOptions(days int, vaultPath, chatDBPath string) sync.Options {
	opts := sync.Options{
		Days:       days,
		VaultPath:  vaultPath,
		ChatDBPath: chatDBPath,
		Logf: func(format string, args ...any) {
			fmt.Printf(format+"\n", args...)
		},
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		cfg = &config.Config{}
	}

	imessage := cfg.IMessage()
	if opts.Days <= 0 {
		opts.Days = imessage.Days
	}
	if opts.VaultPath == "" {
		opts.VaultPath = cfg.VaultPath
	}
	if opts.VaultPath == "" {
		opts.VaultPath = config.DefaultVaultPath
	}
	if opts.ChatDBPath == "" {
		opts.ChatDBPath = imessage.ChatDB
	}
	opts.DenylistExtra = imessage.DenylistExtra

	return opts
}

// openStateDB opens the bookkeeping database. Sync still works without it;
// only the last-run marker is lost.
func openStateDB(logf func(string, ...any)) *sql.DB {
	stateDB, err := db.Open()
	if err != nil {
		logf("Warning: bookkeeping database unavailable: %v", err)
		return nil
	}
	return stateDB
}

// reportRunError prints a fatal pipeline error with remediation and exits.
func reportRunError(err error) {
	if jsonOutput {
		printJSON(map[string]any{"ok": false, "error": err.Error()})
		os.Exit(1)
	}
	switch {
	case errors.Is(err, chatdb.ErrNotFound):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "This tool only works on macOS with iMessage configured.")
	case errors.Is(err, chatdb.ErrAccessDenied):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func fatal(format string, args ...any) {
	if jsonOutput {
		printJSON(map[string]any{"ok": false, "error": fmt.Sprintf(format, args...)})
	} else {
		fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	}
	os.Exit(1)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
