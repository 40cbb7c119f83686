// ABOUTME: In-memory StateStore implementation
// ABOUTME: Used by tests and ephemeral runs that don't need a database file

package store

import (
	"context"
	"sync"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

type memberKey struct {
	roomID id.RoomID
	userID id.UserID
}

// MemoryStore is a mutex-guarded in-memory StateStore.
type MemoryStore struct {
	mu       sync.RWMutex
	members  map[memberKey]*MemberEvent
	profiles map[memberKey]*Profile
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:  make(map[memberKey]*MemberEvent),
		profiles: make(map[memberKey]*Profile),
	}
}

// GetMemberEvent retrieves the stored member event for (room, user), or nil.
func (m *MemoryStore) GetMemberEvent(ctx context.Context, roomID id.RoomID, userID id.UserID) (*MemberEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	evt, ok := m.members[memberKey{roomID, userID}]
	if !ok {
		return nil, nil
	}

	// Return a copy to avoid external modification
	result := *evt
	return &result, nil
}

// GetProfile retrieves the stored profile for (room, user), or nil.
func (m *MemoryStore) GetProfile(ctx context.Context, roomID id.RoomID, userID id.UserID) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profile, ok := m.profiles[memberKey{roomID, userID}]
	if !ok {
		return nil, nil
	}

	result := *profile
	return &result, nil
}

// GetUsersWithDisplayName returns the joined or invited members of a room
// whose resolved display name matches displayName.
func (m *MemoryStore) GetUsersWithDisplayName(ctx context.Context, roomID id.RoomID, displayName string) ([]id.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []id.UserID
	for key, evt := range m.members {
		if key.roomID != roomID {
			continue
		}
		if evt.Membership != event.MembershipJoin && evt.Membership != event.MembershipInvite {
			continue
		}
		if ResolveDisplayName(key.userID, evt.Displayname, m.profiles[key]) == displayName {
			users = append(users, key.userID)
		}
	}
	return users, nil
}

// SaveStateChanges applies a pending change batch.
func (m *MemoryStore) SaveStateChanges(ctx context.Context, changes *StateChanges) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for roomID, room := range changes.Members {
		for userID, evt := range room {
			e := *evt
			m.members[memberKey{roomID, userID}] = &e
		}
	}
	for roomID, room := range changes.Profiles {
		for userID, profile := range room {
			p := *profile
			m.profiles[memberKey{roomID, userID}] = &p
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
