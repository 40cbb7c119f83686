// ABOUTME: Data types for room state: member events, profiles, and the pending change batch
// ABOUTME: Defines MemberEvent, Profile and StateChanges consumed by the ambiguity cache

package store

import (
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MemberEvent is an immutable membership state event for one (room, user)
// pair. UserID is the event's state key, the user the membership applies to.
// Sender is the user who authored the event; the two differ for invites,
// kicks and bans. Displayname is the self-declared name carried in the event
// content, nil when the content omitted it.
type MemberEvent struct {
	EventID     id.EventID
	RoomID      id.RoomID
	Sender      id.UserID
	UserID      id.UserID
	Membership  event.Membership
	Displayname *string
}

// Profile is the most recently set per-room profile for a user, independent
// of membership changes. Displayname is nil when the profile never set one;
// an empty string is a legal (cleared) name.
type Profile struct {
	Displayname *string
	AvatarURL   string
}

// StateChanges collects the not-yet-persisted room state accumulated during
// one sync cycle: member events and profile updates keyed by room, then by
// user. The sync driver fills it while processing a response and commits it
// to the store at the end of the cycle. Readers treat it as the first tier
// of state resolution, ahead of the durable store.
type StateChanges struct {
	Members  map[id.RoomID]map[id.UserID]*MemberEvent
	Profiles map[id.RoomID]map[id.UserID]*Profile
}

// NewStateChanges returns an empty change batch.
func NewStateChanges() *StateChanges {
	return &StateChanges{
		Members:  make(map[id.RoomID]map[id.UserID]*MemberEvent),
		Profiles: make(map[id.RoomID]map[id.UserID]*Profile),
	}
}

// AddMemberEvent records a member event in the batch, replacing any earlier
// event for the same (room, user) pair.
func (c *StateChanges) AddMemberEvent(evt *MemberEvent) {
	room, ok := c.Members[evt.RoomID]
	if !ok {
		room = make(map[id.UserID]*MemberEvent)
		c.Members[evt.RoomID] = room
	}
	room[evt.UserID] = evt
}

// AddProfile records a profile update in the batch.
func (c *StateChanges) AddProfile(roomID id.RoomID, userID id.UserID, profile *Profile) {
	room, ok := c.Profiles[roomID]
	if !ok {
		room = make(map[id.UserID]*Profile)
		c.Profiles[roomID] = room
	}
	room[userID] = profile
}

// Member returns the pending member event for (room, user), or nil.
func (c *StateChanges) Member(roomID id.RoomID, userID id.UserID) *MemberEvent {
	if c == nil {
		return nil
	}
	return c.Members[roomID][userID]
}

// Profile returns the pending profile for (room, user), or nil.
func (c *StateChanges) Profile(roomID id.RoomID, userID id.UserID) *Profile {
	if c == nil {
		return nil
	}
	return c.Profiles[roomID][userID]
}
