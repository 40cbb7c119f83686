// ABOUTME: Entry point for the roomstate daemon
// ABOUTME: Syncs room membership from a Matrix homeserver into the state store

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/fatih/color"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/roomstate/internal/config"
	"github.com/2389/roomstate/internal/roomsync"
	"github.com/2389/roomstate/internal/store"
)

const banner = `
    ╭────────────────────────────────╮
    │                                │
    │   ┏━┓┏━┓┏━┓┏┳┓┏━┓╺┳╸┏━┓╺┳╸┏━╸  │
    │   ┣┳┛┃ ┃┃ ┃┃┃┃┗━┓ ┃ ┣━┫ ┃ ┣╸   │
    │   ╹┗╸┗━┛┗━┛╹ ╹┗━┛ ╹ ╹ ╹ ╹ ┗━╸  │
    │                                │
    │     room state sync daemon     │
    │                                │
    ╰────────────────────────────────╯
`

// getConfigPath returns the path to the daemon config file.
// Priority: ROOMSTATE_CONFIG env var > XDG_CONFIG_HOME/roomstate/config.yaml > ~/.config/roomstate/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ROOMSTATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "roomstate", "config.yaml")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Database.Path)
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer st.Close()

	driver := roomsync.New(st, logger)

	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, id.UserID(cfg.Matrix.UserID), cfg.Matrix.AccessToken)
	if err != nil {
		return fmt.Errorf("creating matrix client: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	syncer, ok := client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", client.Syncer)
	}

	syncer.OnEventType(event.StateMember, func(ctx context.Context, evt *event.Event) {
		if !roomAllowed(cfg.Matrix.AllowedRooms, evt.RoomID) {
			return
		}
		member, ok := roomsync.MemberEventFromEvent(evt)
		if !ok {
			return
		}
		if _, err := driver.HandleMemberEvent(ctx, member); err != nil {
			logger.Error("failed to handle member event",
				"event_id", evt.ID,
				"room_id", evt.RoomID,
				"error", err,
			)
		}
	})

	// Commit the previous cycle's batch at each sync response boundary.
	syncer.OnSync(func(ctx context.Context, resp *mautrix.RespSync, since string) bool {
		if _, err := driver.Flush(ctx); err != nil {
			logger.Error("failed to commit sync cycle", "error", err)
		}
		return true
	})

	logger.Info("starting sync", "homeserver", cfg.Matrix.Homeserver, "user_id", cfg.Matrix.UserID)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- client.SyncWithContext(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-syncErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("matrix sync failed: %w", err)
		}
	}

	// Final commit of whatever the last response left pending.
	if _, err := driver.Flush(context.Background()); err != nil {
		logger.Error("failed to commit final sync cycle", "error", err)
	}
	return nil
}

// roomAllowed reports whether the room passes the allow list. An empty list
// allows all rooms.
func roomAllowed(allowed []string, roomID id.RoomID) bool {
	if len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, string(roomID))
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
