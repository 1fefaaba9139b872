// Package room holds the passive room entity paired participants share.
package room

import (
	"errors"
	"time"
)

var (
	ErrRoomFull  = errors.New("room is full")
	ErrNotInRoom = errors.New("participant not in room")
)

// Outbox delivers one encoded frame to a participant's connection. Delivery
// must never block; implementations report whether the frame was accepted.
// The registry holds outboxes by reference only and never touches the
// underlying connection.
type Outbox interface {
	Deliver(frame []byte) bool
}

// Participant is one connected client as the registry sees it: an opaque id
// assigned at connection start, an optional display name, and an outbox for
// addressed delivery.
type Participant struct {
	ID     string
	Name   string
	Outbox Outbox
}

// Room pairs up to two participants under one join code. The creator holds
// slot A for the room's lifetime; slot B is empty until someone joins. Rooms
// are passive values owned by the registry: no method here performs I/O or
// locking, and all mutation happens under the registry's lock.
type Room struct {
	Code uint16

	creator *Participant
	joiner  *Participant

	// turn is the id of the participant allowed to submit the next move.
	// It is meaningless until the room is full.
	turn string

	finished   bool
	createdAt  time.Time
	lastActive time.Time
}

// New creates a room with the creator in slot A and the turn on the creator.
func New(code uint16, creator *Participant) *Room {
	now := time.Now()
	return &Room{
		Code:       code,
		creator:    creator,
		turn:       creator.ID,
		createdAt:  now,
		lastActive: now,
	}
}

// AddJoiner fills slot B. A room never holds more than two occupants; a
// third join is rejected, never silently dropped.
func (r *Room) AddJoiner(p *Participant) error {
	if r.joiner != nil {
		return ErrRoomFull
	}
	r.joiner = p
	r.lastActive = time.Now()
	return nil
}

// Creator returns the slot-A occupant, or nil after the creator left.
func (r *Room) Creator() *Participant { return r.creator }

// Joiner returns the slot-B occupant, or nil while the slot is empty.
func (r *Room) Joiner() *Participant { return r.joiner }

// Full reports whether both slots are occupied.
func (r *Room) Full() bool { return r.creator != nil && r.joiner != nil }

// Empty reports whether no occupant remains.
func (r *Room) Empty() bool { return r.creator == nil && r.joiner == nil }

// Occupant returns the occupant with the given id, or nil.
func (r *Room) Occupant(id string) *Participant {
	if r.creator != nil && r.creator.ID == id {
		return r.creator
	}
	if r.joiner != nil && r.joiner.ID == id {
		return r.joiner
	}
	return nil
}

// Other returns the occupant opposite the given id, or nil when the peer is
// absent. Relays always target the other occupant, never the sender.
func (r *Room) Other(id string) *Participant {
	switch {
	case r.creator != nil && r.creator.ID == id:
		return r.joiner
	case r.joiner != nil && r.joiner.ID == id:
		return r.creator
	}
	return nil
}

// HasTurn reports whether the given id currently holds the turn.
func (r *Room) HasTurn(id string) bool { return r.turn == id }

// Turn returns the id of the participant allowed to move next.
func (r *Room) Turn() string { return r.turn }

// PassTurn hands the turn to the occupant opposite the given id.
func (r *Room) PassTurn(from string) error {
	other := r.Other(from)
	if other == nil {
		return ErrNotInRoom
	}
	r.turn = other.ID
	r.lastActive = time.Now()
	return nil
}

// Remove clears the slot held by the given id.
func (r *Room) Remove(id string) error {
	switch {
	case r.creator != nil && r.creator.ID == id:
		r.creator = nil
	case r.joiner != nil && r.joiner.ID == id:
		r.joiner = nil
	default:
		return ErrNotInRoom
	}
	r.lastActive = time.Now()
	return nil
}

// Finish marks the room's game as over so the sweep collects it promptly.
func (r *Room) Finish() { r.finished = true }

// Finished reports whether the room's game has ended.
func (r *Room) Finished() bool { return r.finished }

// Touch records activity, deferring idle expiry.
func (r *Room) Touch() { r.lastActive = time.Now() }

// CreatedAt returns the room's creation time.
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// LastActive returns the time of the room's most recent activity.
func (r *Room) LastActive() time.Time { return r.lastActive }

// Expired reports whether the room should be swept: finished games and rooms
// idle beyond maxIdle both qualify.
func (r *Room) Expired(maxIdle time.Duration) bool {
	if r.finished {
		return true
	}
	return time.Since(r.lastActive) > maxIdle
}
