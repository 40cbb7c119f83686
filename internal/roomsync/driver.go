// ABOUTME: Sync driver applying membership events to the ambiguity cache and store
// ABOUTME: Owns the per-cycle pending batch and commits it when a cycle ends

package roomsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/roomstate/internal/ambiguity"
	"github.com/2389/roomstate/internal/store"
)

// Driver feeds membership events through the ambiguity cache and
// accumulates them in a pending StateChanges batch. Flush commits the batch
// to the store and starts a fresh cycle with a new cache, so each cycle's
// cache lifetime is bounded by the batch it resolves against.
//
// The mutex serializes event application, which gives the per-room ordering
// the cache requires.
type Driver struct {
	store  store.StateStore
	logger *slog.Logger

	mu      sync.Mutex
	cycleID string
	pending *store.StateChanges
	cache   *ambiguity.Cache
}

// New creates a driver with an empty first cycle.
func New(st store.StateStore, logger *slog.Logger) *Driver {
	d := &Driver{
		store:  st,
		logger: logger.With("component", "roomsync"),
	}
	d.resetLocked()
	return d
}

// resetLocked starts a new sync cycle. Must be called with mu held (or
// before the driver is shared).
func (d *Driver) resetLocked() {
	d.cycleID = uuid.NewString()
	d.pending = store.NewStateChanges()
	d.cache = ambiguity.NewCache(d.store)
}

// HandleMemberEvent applies one membership event: the ambiguity cache
// computes the delta against the pending batch and the store, then the
// event joins the batch. Self-authored joins and invites also refresh the
// user's pending profile, so later events in the same cycle resolve the
// name without a store round trip.
//
// On a store failure the event is not added to the batch and the cache is
// left untouched, so the caller may retry the event.
func (d *Driver) HandleMemberEvent(ctx context.Context, evt *store.MemberEvent) (ambiguity.Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	change, err := d.cache.HandleEvent(ctx, d.pending, evt.RoomID, evt)
	if err != nil {
		return ambiguity.Change{}, fmt.Errorf("handling member event %s: %w", evt.EventID, err)
	}

	d.pending.AddMemberEvent(evt)
	if evt.Sender == evt.UserID && joinedOrInvited(evt.Membership) {
		d.pending.AddProfile(evt.RoomID, evt.UserID, &store.Profile{Displayname: evt.Displayname})
	}

	if !change.IsEmpty() {
		d.logger.Info("display name ambiguity changed",
			"cycle_id", d.cycleID,
			"room_id", evt.RoomID,
			"user_id", evt.UserID,
			"disambiguated", change.DisambiguatedMember,
			"ambiguated", change.AmbiguatedMember,
			"member_ambiguous", change.MemberAmbiguous,
		)
	}

	return change, nil
}

// Flush commits the pending batch and starts a new cycle. Returns the
// ambiguity deltas the finished cycle computed, keyed by room and event id.
// An empty cycle commits nothing and is not an error.
func (d *Driver) Flush(ctx context.Context) (map[id.RoomID]map[id.EventID]ambiguity.Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	changes := d.cache.Changes()
	if len(d.pending.Members) == 0 && len(d.pending.Profiles) == 0 {
		d.resetLocked()
		return changes, nil
	}

	if err := d.store.SaveStateChanges(ctx, d.pending); err != nil {
		return nil, fmt.Errorf("committing sync cycle %s: %w", d.cycleID, err)
	}

	d.logger.Debug("committed sync cycle",
		"cycle_id", d.cycleID,
		"rooms", len(d.pending.Members),
	)
	d.resetLocked()
	return changes, nil
}

// MemberEventFromEvent converts a mautrix state member event into a store
// MemberEvent. Returns false for events that are not m.room.member state or
// lack a state key.
func MemberEventFromEvent(evt *event.Event) (*store.MemberEvent, bool) {
	if evt.Type != event.StateMember || evt.StateKey == nil {
		return nil, false
	}
	content, ok := evt.Content.Parsed.(*event.MemberEventContent)
	if !ok {
		return nil, false
	}

	member := &store.MemberEvent{
		EventID:    evt.ID,
		RoomID:     evt.RoomID,
		Sender:     evt.Sender,
		UserID:     id.UserID(*evt.StateKey),
		Membership: content.Membership,
	}
	if content.Displayname != "" {
		name := content.Displayname
		member.Displayname = &name
	}
	return member, true
}

func joinedOrInvited(m event.Membership) bool {
	return m == event.MembershipJoin || m == event.MembershipInvite
}
