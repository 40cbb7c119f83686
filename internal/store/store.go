// ABOUTME: Store interfaces for room state persistence
// ABOUTME: StateReader is the read side consumed by the ambiguity cache, StateStore adds commits

package store

import (
	"context"

	"maunium.net/go/mautrix/id"
)

// StateReader is the read-only view of room state. Absence is reported as a
// nil result with a nil error; errors are reserved for storage failures.
//
// GetUsersWithDisplayName resolves each joined or invited member's current
// display name (profile name first, then the member event's own name, then
// the localpart of the user id) and returns the users whose resolved name
// matches.
type StateReader interface {
	GetMemberEvent(ctx context.Context, roomID id.RoomID, userID id.UserID) (*MemberEvent, error)
	GetProfile(ctx context.Context, roomID id.RoomID, userID id.UserID) (*Profile, error)
	GetUsersWithDisplayName(ctx context.Context, roomID id.RoomID, displayName string) ([]id.UserID, error)
}

// StateStore is the full store contract: the read side plus the commit path
// used by the sync driver to persist a completed change batch.
type StateStore interface {
	StateReader

	// SaveStateChanges persists every member event and profile in the batch
	// atomically. Later events for the same (room, user) pair replace
	// earlier ones.
	SaveStateChanges(ctx context.Context, changes *StateChanges) error

	// Close releases any resources held by the store.
	Close() error
}

// ResolveDisplayName applies the display-name precedence shared by every
// store implementation: profile name, then the member event's embedded name,
// then the localpart of the user id.
func ResolveDisplayName(userID id.UserID, memberName *string, profile *Profile) string {
	if profile != nil && profile.Displayname != nil {
		return *profile.Displayname
	}
	if memberName != nil {
		return *memberName
	}
	return Localpart(userID)
}

// Localpart returns the local part of a Matrix user id, falling back to the
// full id when it does not parse.
func Localpart(userID id.UserID) string {
	local, _, err := userID.Parse()
	if err != nil {
		return string(userID)
	}
	return local
}
