// ABOUTME: SQLite implementation of the StateStore interface using modernc.org/sqlite
// ABOUTME: Persists member events and profiles with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the StateStore interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS member_events (
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			membership TEXT NOT NULL,
			displayname TEXT,
			PRIMARY KEY (room_id, user_id)
		);

		CREATE INDEX IF NOT EXISTS idx_member_events_membership
			ON member_events(room_id, membership);

		CREATE TABLE IF NOT EXISTS profiles (
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			displayname TEXT,
			avatar_url TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (room_id, user_id)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// GetMemberEvent retrieves the stored member event for (room, user).
// Returns nil if no membership is known.
func (s *SQLiteStore) GetMemberEvent(ctx context.Context, roomID id.RoomID, userID id.UserID) (*MemberEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, sender, membership, displayname
		FROM member_events
		WHERE room_id = ? AND user_id = ?`,
		roomID, userID)

	evt := &MemberEvent{RoomID: roomID, UserID: userID}
	var displayname sql.NullString
	err := row.Scan(&evt.EventID, &evt.Sender, &evt.Membership, &displayname)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying member event: %w", err)
	}
	if displayname.Valid {
		evt.Displayname = &displayname.String
	}
	return evt, nil
}

// GetProfile retrieves the stored profile for (room, user).
// Returns nil if no profile is known.
func (s *SQLiteStore) GetProfile(ctx context.Context, roomID id.RoomID, userID id.UserID) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT displayname, avatar_url
		FROM profiles
		WHERE room_id = ? AND user_id = ?`,
		roomID, userID)

	var profile Profile
	var displayname sql.NullString
	err := row.Scan(&displayname, &profile.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	if displayname.Valid {
		profile.Displayname = &displayname.String
	}
	return &profile, nil
}

// GetUsersWithDisplayName returns the joined or invited members of a room
// whose resolved display name matches displayName. Resolution happens in Go
// rather than SQL so the localpart fallback matches the read path exactly.
func (s *SQLiteStore) GetUsersWithDisplayName(ctx context.Context, roomID id.RoomID, displayName string) ([]id.UserID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.user_id, m.displayname, p.displayname
		FROM member_events m
		LEFT JOIN profiles p ON p.room_id = m.room_id AND p.user_id = m.user_id
		WHERE m.room_id = ? AND m.membership IN (?, ?)`,
		roomID, event.MembershipJoin, event.MembershipInvite)
	if err != nil {
		return nil, fmt.Errorf("querying members: %w", err)
	}
	defer rows.Close()

	var users []id.UserID
	for rows.Next() {
		var userID id.UserID
		var memberName, profileName sql.NullString
		if err := rows.Scan(&userID, &memberName, &profileName); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}

		var evtName *string
		if memberName.Valid {
			evtName = &memberName.String
		}
		var profile *Profile
		if profileName.Valid {
			profile = &Profile{Displayname: &profileName.String}
		}

		if ResolveDisplayName(userID, evtName, profile) == displayName {
			users = append(users, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating members: %w", err)
	}
	return users, nil
}

// SaveStateChanges persists a pending change batch in a single transaction.
func (s *SQLiteStore) SaveStateChanges(ctx context.Context, changes *StateChanges) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, room := range changes.Members {
		for _, evt := range room {
			var displayname sql.NullString
			if evt.Displayname != nil {
				displayname = sql.NullString{String: *evt.Displayname, Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO member_events (room_id, user_id, event_id, sender, membership, displayname)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (room_id, user_id) DO UPDATE SET
					event_id = excluded.event_id,
					sender = excluded.sender,
					membership = excluded.membership,
					displayname = excluded.displayname`,
				evt.RoomID, evt.UserID, evt.EventID, evt.Sender, evt.Membership, displayname)
			if err != nil {
				return fmt.Errorf("saving member event %s: %w", evt.EventID, err)
			}
		}
	}

	for roomID, room := range changes.Profiles {
		for userID, profile := range room {
			var displayname sql.NullString
			if profile.Displayname != nil {
				displayname = sql.NullString{String: *profile.Displayname, Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO profiles (room_id, user_id, displayname, avatar_url)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (room_id, user_id) DO UPDATE SET
					displayname = excluded.displayname,
					avatar_url = excluded.avatar_url`,
				roomID, userID, displayname, profile.AvatarURL)
			if err != nil {
				return fmt.Errorf("saving profile for %s: %w", userID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
