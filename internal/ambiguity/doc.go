// Package ambiguity maintains an incremental index of display-name
// collisions among the joined and invited members of each room.
//
// Matrix identifies users by id, but clients render display names, and
// nothing stops two members of a room from picking the same one. UIs need
// to know when a rendered name is ambiguous so they can append the user id.
// Recomputing that over a room's full member list on every sync is too
// expensive, so Cache keeps per-name groups up to date one membership event
// at a time and emits a Change describing exactly who gained or lost
// uniqueness.
//
// The cache resolves state through two tiers: the sync cycle's uncommitted
// StateChanges batch first, then the durable store. Groups are seeded
// lazily from the store on first reference. Duplicate event deliveries
// (the same event can appear in both the state and timeline sections of a
// sync response) are absorbed by a per-room, per-event ledger of computed
// deltas.
package ambiguity
