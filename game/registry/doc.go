// Package registry owns the table of active rooms and serializes every
// mutation against it.
//
// The registry is the broker's single writer: room creation, joins,
// readiness signals, move and promotion relay, game-over handling, and
// departures all run under one lock. Commands address participants by the
// opaque id assigned at connection start; the registry never sees a
// network connection, only the room.Outbox each participant carries.
//
// Delivery semantics:
//   - Frames for a command are pushed to occupant outboxes while the lock
//     is held, so each occupant observes effects in command order.
//   - Outboxes must not block. A refused frame is logged and dropped; one
//     stalled client cannot wedge matchmaking for everyone else.
//   - Relays go to the other occupant only, never back to the sender.
//
// Room lifecycle:
//   - Join codes are drawn uniformly from the uint16 space and are unique
//     among active rooms.
//   - A room emptied by departures is deleted at once, freeing its code.
//   - Finished and idle rooms are reclaimed by a background sweep.
package registry
