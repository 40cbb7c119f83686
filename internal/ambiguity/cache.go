// ABOUTME: Display-name ambiguity cache driven by membership events during sync
// ABOUTME: Computes per-event deltas of who became ambiguous or unique in a room

package ambiguity

import (
	"context"
	"log/slog"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/roomstate/internal/store"
)

// Change is the delta one membership event caused in a room's display-name
// groups. DisambiguatedMember is the user who became the unique holder of
// their name, AmbiguatedMember the user who lost uniqueness to the event's
// subject; either may be empty. MemberAmbiguous reports whether the subject
// user shares their resolved name with anyone after the event.
type Change struct {
	DisambiguatedMember id.UserID
	AmbiguatedMember    id.UserID
	MemberAmbiguous     bool
}

// IsEmpty reports whether the change carries no signal at all.
func (c Change) IsEmpty() bool {
	return c.DisambiguatedMember == "" && c.AmbiguatedMember == "" && !c.MemberAmbiguous
}

// Cache tracks, per room, which joined or invited members share a display
// name. It is a read-through cache over a StateReader: the first reference
// to a (room, name) pair seeds the group from the store, after which the
// cache is authoritative for the rest of its lifetime.
//
// The cache provides no internal locking. The sync driver owns one instance
// per sync cycle and serializes HandleEvent calls within a room; calls for
// different rooms must not share an instance concurrently.
type Cache struct {
	store  store.StateReader
	logger *slog.Logger

	// cache is room -> display name -> users asserting that name.
	// Entries whose user set drains to empty are kept, matching the
	// groups the store would report after the batch commits.
	cache map[id.RoomID]map[string]map[id.UserID]struct{}

	// changes is the idempotency ledger: room -> event id -> computed
	// delta. Sync responses can carry the same event in both the state
	// and timeline sections; recomputing against already-updated groups
	// would yield a wrong second delta, so replays return the recorded
	// one.
	changes map[id.RoomID]map[id.EventID]Change
}

// NewCache creates an ambiguity cache reading through to the given store.
func NewCache(st store.StateReader) *Cache {
	return &Cache{
		store:   st,
		logger:  slog.Default().With("component", "ambiguity"),
		cache:   make(map[id.RoomID]map[string]map[id.UserID]struct{}),
		changes: make(map[id.RoomID]map[id.EventID]Change),
	}
}

// Changes returns the ledger of deltas computed so far, keyed by room and
// event id. The sync driver attaches these to the events it hands to
// downstream consumers. The returned maps are the cache's own; callers must
// not mutate them.
func (c *Cache) Changes() map[id.RoomID]map[id.EventID]Change {
	return c.changes
}

// HandleEvent processes one membership event against the room's current
// display-name groups and returns the resulting delta. Events must arrive
// in event-log order within a room. pending is the current sync cycle's
// uncommitted change batch; it is consulted ahead of the store and never
// mutated.
//
// A store failure aborts the event with no cache mutation and no ledger
// entry, so a retry behaves as a fresh attempt.
func (c *Cache) HandleEvent(ctx context.Context, pending *store.StateChanges, roomID id.RoomID, evt *store.MemberEvent) (Change, error) {
	if recorded, ok := c.changes[roomID][evt.EventID]; ok {
		return recorded, nil
	}

	oldGroup, newGroup, err := c.resolve(ctx, pending, roomID, evt)
	if err != nil {
		return Change{}, err
	}

	// Same resolved name on both sides means no group moves at all. The
	// no-op is still recorded so a replay of this event stays a no-op.
	if oldGroup != nil && newGroup != nil && oldGroup.displayName == newGroup.displayName {
		change := Change{}
		c.record(roomID, evt.EventID, change)
		return change, nil
	}

	var change Change
	if oldGroup != nil {
		change.DisambiguatedMember = oldGroup.remove(evt.UserID)
	}
	if newGroup != nil {
		change.AmbiguatedMember = newGroup.add(evt.UserID)
		change.MemberAmbiguous = newGroup.isAmbiguous()
	}

	c.commit(roomID, oldGroup)
	c.commit(roomID, newGroup)
	c.record(roomID, evt.EventID, change)

	c.logger.Debug("handled display name ambiguity",
		"room_id", roomID,
		"user_id", evt.UserID,
		"disambiguated", change.DisambiguatedMember,
		"ambiguated", change.AmbiguatedMember,
		"member_ambiguous", change.MemberAmbiguous,
	)

	return change, nil
}

// resolve computes the groups the event's subject leaves and joins. Either
// side is nil when the corresponding membership is not Join or Invite.
func (c *Cache) resolve(ctx context.Context, pending *store.StateChanges, roomID id.RoomID, evt *store.MemberEvent) (oldGroup, newGroup *nameGroup, err error) {
	oldEvent := pending.Member(roomID, evt.UserID)
	if oldEvent == nil {
		oldEvent, err = c.store.GetMemberEvent(ctx, roomID, evt.UserID)
		if err != nil {
			return nil, nil, err
		}
	}

	var oldName *string
	if oldEvent != nil && joinedOrInvited(oldEvent.Membership) {
		name, err := c.resolveOldName(ctx, pending, roomID, oldEvent)
		if err != nil {
			return nil, nil, err
		}
		oldName = &name
	}

	if oldName != nil {
		oldGroup, err = c.groupFor(ctx, roomID, *oldName)
		if err != nil {
			return nil, nil, err
		}
	}

	if joinedOrInvited(evt.Membership) {
		newName := store.Localpart(evt.UserID)
		if evt.Displayname != nil {
			newName = *evt.Displayname
		}

		// Only the subject user may assert their own display name. A
		// third party's claim is not trusted over a previously known
		// name.
		if evt.Sender != evt.UserID && oldName != nil {
			newName = *oldName
		}

		newGroup, err = c.groupFor(ctx, roomID, newName)
		if err != nil {
			return nil, nil, err
		}
	}

	return oldGroup, newGroup, nil
}

// resolveOldName determines what the subject user was called before this
// event: pending profile, then stored profile, then the prior member
// event's own name, then the localpart of the user id.
func (c *Cache) resolveOldName(ctx context.Context, pending *store.StateChanges, roomID id.RoomID, oldEvent *store.MemberEvent) (string, error) {
	if p := pending.Profile(roomID, oldEvent.UserID); p != nil && p.Displayname != nil {
		return *p.Displayname, nil
	}

	p, err := c.store.GetProfile(ctx, roomID, oldEvent.UserID)
	if err != nil {
		return "", err
	}
	if p != nil && p.Displayname != nil {
		return *p.Displayname, nil
	}

	if oldEvent.Displayname != nil {
		return *oldEvent.Displayname, nil
	}
	return store.Localpart(oldEvent.UserID), nil
}

// groupFor returns the group for (room, name), reading through to the store
// on a cache miss. The miss seeds the room's entry with the store's own
// answer, so it stays consistent even if a later read in the same event
// fails. The returned group works on a copy of the set; commit writes the
// mutated set back.
func (c *Cache) groupFor(ctx context.Context, roomID id.RoomID, name string) (*nameGroup, error) {
	room, ok := c.cache[roomID]
	if !ok {
		room = make(map[string]map[id.UserID]struct{})
		c.cache[roomID] = room
	}

	users, ok := room[name]
	if !ok {
		list, err := c.store.GetUsersWithDisplayName(ctx, roomID, name)
		if err != nil {
			return nil, err
		}
		users = make(map[id.UserID]struct{}, len(list))
		for _, user := range list {
			users[user] = struct{}{}
		}
		room[name] = users
	}

	working := make(map[id.UserID]struct{}, len(users))
	for user := range users {
		working[user] = struct{}{}
	}
	return &nameGroup{displayName: name, users: working}, nil
}

// commit stores a group's user set back under its display name. Empty sets
// are kept rather than pruned.
func (c *Cache) commit(roomID id.RoomID, group *nameGroup) {
	if group == nil {
		return
	}
	c.cache[roomID][group.displayName] = group.users
}

func (c *Cache) record(roomID id.RoomID, eventID id.EventID, change Change) {
	room, ok := c.changes[roomID]
	if !ok {
		room = make(map[id.EventID]Change)
		c.changes[roomID] = room
	}
	room[eventID] = change
}

func joinedOrInvited(m event.Membership) bool {
	return m == event.MembershipJoin || m == event.MembershipInvite
}
