// Package roomsync drives room-state processing for one sync connection.
//
// Driver sits between the transport (a mautrix syncer) and the state
// layers: each incoming m.room.member event is converted with
// MemberEventFromEvent, run through the ambiguity cache, and accumulated in
// a pending StateChanges batch. When the caller ends the cycle with Flush,
// the batch is committed to the store in one transaction and the computed
// ambiguity deltas are handed back for downstream consumers.
package roomsync
