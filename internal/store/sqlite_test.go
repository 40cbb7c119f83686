// ABOUTME: Tests for the SQLite StateStore implementation
// ABOUTME: Covers round trips, upserts, and display-name resolution in member queries

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string {
	return &s
}

const (
	testRoom  = id.RoomID("!room:example.org")
	testAlice = id.UserID("@alice:example.org")
	testBob   = id.UserID("@bob:example.org")
)

func saveBatch(t *testing.T, s StateStore, changes *StateChanges) {
	t.Helper()
	require.NoError(t, s.SaveStateChanges(context.Background(), changes))
}

func TestSQLiteStore_MemberEventRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	changes := NewStateChanges()
	changes.AddMemberEvent(&MemberEvent{
		EventID:     id.EventID("$1"),
		RoomID:      testRoom,
		Sender:      testAlice,
		UserID:      testAlice,
		Membership:  event.MembershipJoin,
		Displayname: strPtr("Alice"),
	})
	saveBatch(t, s, changes)

	evt, err := s.GetMemberEvent(ctx, testRoom, testAlice)
	require.NoError(t, err)
	require.NotNil(t, evt)
	assert.Equal(t, id.EventID("$1"), evt.EventID)
	assert.Equal(t, testAlice, evt.Sender)
	assert.Equal(t, event.MembershipJoin, evt.Membership)
	require.NotNil(t, evt.Displayname)
	assert.Equal(t, "Alice", *evt.Displayname)
}

func TestSQLiteStore_MemberEvent_Unknown(t *testing.T) {
	s := setupTestStore(t)

	evt, err := s.GetMemberEvent(context.Background(), testRoom, testAlice)
	require.NoError(t, err)
	assert.Nil(t, evt)
}

func TestSQLiteStore_MemberEvent_NilDisplayname(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	changes := NewStateChanges()
	changes.AddMemberEvent(&MemberEvent{
		EventID:    id.EventID("$1"),
		RoomID:     testRoom,
		Sender:     testAlice,
		UserID:     testAlice,
		Membership: event.MembershipJoin,
	})
	saveBatch(t, s, changes)

	evt, err := s.GetMemberEvent(ctx, testRoom, testAlice)
	require.NoError(t, err)
	require.NotNil(t, evt)
	assert.Nil(t, evt.Displayname)
}

func TestSQLiteStore_MemberEvent_Upsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := NewStateChanges()
	first.AddMemberEvent(&MemberEvent{
		EventID:     id.EventID("$1"),
		RoomID:      testRoom,
		Sender:      testAlice,
		UserID:      testAlice,
		Membership:  event.MembershipJoin,
		Displayname: strPtr("Alice"),
	})
	saveBatch(t, s, first)

	second := NewStateChanges()
	second.AddMemberEvent(&MemberEvent{
		EventID:    id.EventID("$2"),
		RoomID:     testRoom,
		Sender:     testAlice,
		UserID:     testAlice,
		Membership: event.MembershipLeave,
	})
	saveBatch(t, s, second)

	evt, err := s.GetMemberEvent(ctx, testRoom, testAlice)
	require.NoError(t, err)
	require.NotNil(t, evt)
	assert.Equal(t, id.EventID("$2"), evt.EventID)
	assert.Equal(t, event.MembershipLeave, evt.Membership)
	assert.Nil(t, evt.Displayname)
}

func TestSQLiteStore_ProfileRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	changes := NewStateChanges()
	changes.AddProfile(testRoom, testAlice, &Profile{
		Displayname: strPtr("Alice"),
		AvatarURL:   "mxc://example.org/abc",
	})
	saveBatch(t, s, changes)

	profile, err := s.GetProfile(ctx, testRoom, testAlice)
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.NotNil(t, profile.Displayname)
	assert.Equal(t, "Alice", *profile.Displayname)
	assert.Equal(t, "mxc://example.org/abc", profile.AvatarURL)
}

func TestSQLiteStore_Profile_Unknown(t *testing.T) {
	s := setupTestStore(t)

	profile, err := s.GetProfile(context.Background(), testRoom, testAlice)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestSQLiteStore_UsersWithDisplayName(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	changes := NewStateChanges()
	changes.AddMemberEvent(&MemberEvent{
		EventID: "$1", RoomID: testRoom, Sender: testAlice, UserID: testAlice,
		Membership: event.MembershipJoin, Displayname: strPtr("Bob"),
	})
	changes.AddMemberEvent(&MemberEvent{
		EventID: "$2", RoomID: testRoom, Sender: testBob, UserID: testBob,
		Membership: event.MembershipInvite, Displayname: strPtr("Bob"),
	})
	changes.AddMemberEvent(&MemberEvent{
		EventID: "$3", RoomID: testRoom, Sender: "@carol:example.org", UserID: "@carol:example.org",
		Membership: event.MembershipLeave, Displayname: strPtr("Bob"),
	})
	saveBatch(t, s, changes)

	users, err := s.GetUsersWithDisplayName(ctx, testRoom, "Bob")
	require.NoError(t, err)

	// Joined and invited members count; the departed carol does not
	assert.ElementsMatch(t, []id.UserID{testAlice, testBob}, users)
}

func TestSQLiteStore_UsersWithDisplayName_ProfileWins(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	changes := NewStateChanges()
	changes.AddMemberEvent(&MemberEvent{
		EventID: "$1", RoomID: testRoom, Sender: testAlice, UserID: testAlice,
		Membership: event.MembershipJoin, Displayname: strPtr("Alice"),
	})
	changes.AddProfile(testRoom, testAlice, &Profile{Displayname: strPtr("Bob")})
	saveBatch(t, s, changes)

	users, err := s.GetUsersWithDisplayName(ctx, testRoom, "Bob")
	require.NoError(t, err)
	assert.Equal(t, []id.UserID{testAlice}, users)

	users, err = s.GetUsersWithDisplayName(ctx, testRoom, "Alice")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestSQLiteStore_UsersWithDisplayName_LocalpartFallback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	changes := NewStateChanges()
	changes.AddMemberEvent(&MemberEvent{
		EventID: "$1", RoomID: testRoom, Sender: testAlice, UserID: testAlice,
		Membership: event.MembershipJoin,
	})
	saveBatch(t, s, changes)

	users, err := s.GetUsersWithDisplayName(ctx, testRoom, "alice")
	require.NoError(t, err)
	assert.Equal(t, []id.UserID{testAlice}, users)
}

func TestSQLiteStore_UsersWithDisplayName_RoomIsolation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	otherRoom := id.RoomID("!other:example.org")
	changes := NewStateChanges()
	changes.AddMemberEvent(&MemberEvent{
		EventID: "$1", RoomID: testRoom, Sender: testAlice, UserID: testAlice,
		Membership: event.MembershipJoin, Displayname: strPtr("Bob"),
	})
	changes.AddMemberEvent(&MemberEvent{
		EventID: "$2", RoomID: otherRoom, Sender: testBob, UserID: testBob,
		Membership: event.MembershipJoin, Displayname: strPtr("Bob"),
	})
	saveBatch(t, s, changes)

	users, err := s.GetUsersWithDisplayName(ctx, testRoom, "Bob")
	require.NoError(t, err)
	assert.Equal(t, []id.UserID{testAlice}, users)
}
