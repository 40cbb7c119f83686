// Package store persists client-side room state: the member event and
// profile each room currently knows for each user.
//
// # Architecture
//
// Two interfaces split the contract:
//
//   - StateReader: the read-only view consumed by the ambiguity cache
//   - StateStore: StateReader plus the transactional commit path used by
//     the sync driver
//
// SQLiteStore is the durable implementation (modernc.org/sqlite, WAL mode);
// MemoryStore backs tests and ephemeral runs. Both implement the full
// StateStore interface.
//
// # Data Models
//
//   - MemberEvent: membership state for one (room, user) pair, including
//     the self-declared display name from the event content
//   - Profile: the most recently set per-room profile, independent of
//     membership churn
//   - StateChanges: the pending, not-yet-durable batch accumulated over one
//     sync cycle; the first tier of state resolution ahead of the store
//
// # Display name resolution
//
// A member's current display name is resolved with a fixed precedence:
// profile displayname, then the member event's embedded displayname, then
// the localpart of the user id. ResolveDisplayName implements this and both
// stores' GetUsersWithDisplayName use it, so cache seeding and event
// handling agree on what a user is currently called.
package store
