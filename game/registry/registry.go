package registry

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/chessmatch/game/protocol"
	"github.com/wricardo/chessmatch/game/room"
)

var (
	ErrRoomNotFound = errors.New("no room found")
	ErrRoomFull     = errors.New("room is full")
	ErrRoomNotReady = errors.New("room not full")
	ErrNotInRoom    = errors.New("you are not in room")
	ErrNotYourTurn  = errors.New("not your turn")
)

const (
	// DefaultIdleTimeout is how long a room may sit without activity before
	// the sweep removes it.
	DefaultIdleTimeout = 30 * time.Minute

	defaultSweepInterval = time.Minute

	// codeSpace is the number of distinct join codes (uint16 address space).
	codeSpace = 1 << 16
)

// Registry is the single owner of all active rooms. Every room-table
// mutation runs under one lock, so two concurrent joins against the same
// code are linearized and at most one fills slot B. Delivery to occupants
// goes through their outboxes while the lock is held, which keeps each
// occupant's message stream FIFO relative to the command order.
type Registry struct {
	mu    sync.Mutex
	rooms map[uint16]*room.Room
	// byParticipant maps an occupant id to its room code, for disconnects.
	byParticipant map[string]uint16

	idleTimeout time.Duration
	logger      *zap.Logger
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithIdleTimeout overrides the idle window after which rooms are swept.
func WithIdleTimeout(d time.Duration) Option {
	return func(g *Registry) { g.idleTimeout = d }
}

// New creates a registry and starts its background sweep.
func New(logger *zap.Logger, opts ...Option) *Registry {
	g := &Registry{
		rooms:         make(map[uint16]*room.Room),
		byParticipant: make(map[string]uint16),
		idleTimeout:   DefaultIdleTimeout,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.wg.Add(1)
	go g.sweepLoop()

	return g
}

// Stop terminates the background sweep. Active rooms are left in place; the
// process owns their lifetime.
func (g *Registry) Stop() {
	g.stopOnce.Do(func() { close(g.stopCh) })
	g.wg.Wait()
}

// CreateRoom allocates a fresh unique join code, creates a room with the
// participant in slot A, and sends the creator the GetCode reply. A creator
// already occupying a room abandons it first, so one participant never holds
// two rooms. It cannot fail short of code-space exhaustion, which is treated
// as a systemic fault.
//
// The display name is applied under the registry lock; callers must not
// mutate the participant after handing it over.
func (g *Registry) CreateRoom(p *room.Participant, name string) uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.detachLocked(p.ID)
	p.Name = name

	code := g.allocateCode()
	r := room.New(code, p)
	g.rooms[code] = r
	g.byParticipant[p.ID] = code

	g.logger.Info("room created",
		zap.Uint16("code", code),
		zap.String("participant", p.ID))

	g.deliver(p, protocol.EventGetCode, protocol.CodeIssued{ID: p.ID, Code: code})
	return code
}

// JoinRoom fills slot B of the room with the given code and introduces the
// two occupants to each other. The creator keeps the turn. A joiner already
// occupying another room abandons it first; joining the room they are
// already in is rejected, a room never holds the same participant twice.
//
// The display name is applied under the registry lock; callers must not
// mutate the participant after handing it over.
func (g *Registry) JoinRoom(p *room.Participant, code uint16, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	if prev, ok := g.byParticipant[p.ID]; ok && prev == code {
		return ErrRoomFull
	}
	if r.Full() {
		return ErrRoomFull
	}

	g.detachLocked(p.ID)
	p.Name = name
	if err := r.AddJoiner(p); err != nil {
		return ErrRoomFull
	}
	g.byParticipant[p.ID] = code

	g.logger.Info("room paired",
		zap.Uint16("code", code),
		zap.String("creator", r.Creator().ID),
		zap.String("joiner", p.ID))

	// Mutual introduction: each side learns the other's identity, never
	// its own.
	creator := r.Creator()
	g.deliver(creator, protocol.EventConnectWith, protocol.Peer{ID: p.ID, Name: p.Name})
	g.deliver(p, protocol.EventConnectWith, protocol.Peer{ID: creator.ID, Name: creator.Name})
	return nil
}

// SignalReady notifies the caller's peer that the caller is set to play.
func (g *Registry) SignalReady(participantID string, code uint16) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	if !r.Full() {
		return ErrRoomNotReady
	}
	if r.Occupant(participantID) == nil {
		return ErrNotInRoom
	}

	r.Touch()
	g.deliver(r.Other(participantID), protocol.EventOppReady, participantID)
	return nil
}

// SubmitMove validates a move structurally, enforces turn order, flips the
// turn, and relays the move to the other occupant. The mover gets no echo.
func (g *Registry) SubmitMove(participantID string, code uint16, mv protocol.MovePayload) error {
	if err := protocol.ValidateMove(mv); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	if r.Occupant(participantID) == nil {
		return ErrNotInRoom
	}
	if !r.Full() {
		return ErrRoomNotReady
	}
	if !r.HasTurn(participantID) {
		return ErrNotYourTurn
	}

	if err := r.PassTurn(participantID); err != nil {
		return ErrRoomNotReady
	}
	g.deliver(r.Other(participantID), protocol.EventMove,
		protocol.MoveRelay{I: mv.I, J: mv.J, K: mv.K, L: mv.L})
	return nil
}

// RequestPromotion validates a pawn promotion structurally, enforces turn
// order, flips the turn, and relays the promotion to the other occupant.
func (g *Registry) RequestPromotion(participantID string, code uint16, pr protocol.PromotePayload) error {
	if err := protocol.ValidatePromotion(pr); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	if r.Occupant(participantID) == nil {
		return ErrNotInRoom
	}
	if !r.Full() {
		return ErrRoomNotReady
	}
	if !r.HasTurn(participantID) {
		return ErrNotYourTurn
	}

	if err := r.PassTurn(participantID); err != nil {
		return ErrRoomNotReady
	}
	g.deliver(r.Other(participantID), protocol.EventPromote,
		protocol.PromoteRelay{I: pr.I, J: pr.J, Value: pr.PromoteTo})
	return nil
}

// GameOver relays the end of the game to the caller's peer and marks the
// room finished so the sweep collects it.
func (g *Registry) GameOver(participantID string, code uint16) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	if r.Occupant(participantID) == nil {
		return ErrNotInRoom
	}

	r.Finish()
	if other := r.Other(participantID); other != nil {
		g.deliver(other, protocol.EventGameOver, participantID)
	}

	g.logger.Info("game over", zap.Uint16("code", code))
	return nil
}

// Leave removes a disconnected participant from its room. Emptied rooms are
// deleted immediately, which frees their join code for reuse; half-empty
// rooms stay until the sweep collects them.
func (g *Registry) Leave(participantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detachLocked(participantID)
}

// detachLocked withdraws a participant from whatever room the bookkeeping
// maps them to, deleting the room once empty. The caller must hold g.mu.
func (g *Registry) detachLocked(participantID string) {
	code, ok := g.byParticipant[participantID]
	if !ok {
		return
	}
	delete(g.byParticipant, participantID)

	r, ok := g.rooms[code]
	if !ok {
		return
	}
	if err := r.Remove(participantID); err != nil {
		return
	}

	g.logger.Info("participant left",
		zap.Uint16("code", code),
		zap.String("participant", participantID))

	if r.Empty() {
		delete(g.rooms, code)
		g.logger.Info("room removed", zap.Uint16("code", code))
	}
}

// Stats is a point-in-time snapshot of registry occupancy.
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
	Paired       int `json:"paired"`
}

// Stats reports current occupancy.
func (g *Registry) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Stats{Rooms: len(g.rooms), Participants: len(g.byParticipant)}
	for _, r := range g.rooms {
		if r.Full() {
			s.Paired++
		}
	}
	return s
}

// OccupantInfo describes one occupant in a room snapshot.
type OccupantInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// RoomInfo is a read-only snapshot of one room for the admin surfaces.
type RoomInfo struct {
	Code       uint16         `json:"code"`
	Occupants  []OccupantInfo `json:"occupants"`
	Turn       string         `json:"turn"`
	Full       bool           `json:"full"`
	Finished   bool           `json:"finished"`
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
}

// Rooms snapshots every active room.
func (g *Registry) Rooms() []RoomInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	infos := make([]RoomInfo, 0, len(g.rooms))
	for _, r := range g.rooms {
		infos = append(infos, snapshot(r))
	}
	return infos
}

// Room snapshots a single room by code.
func (g *Registry) Room(code uint16) (RoomInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[code]
	if !ok {
		return RoomInfo{}, false
	}
	return snapshot(r), true
}

func snapshot(r *room.Room) RoomInfo {
	info := RoomInfo{
		Code:       r.Code,
		Turn:       r.Turn(),
		Full:       r.Full(),
		Finished:   r.Finished(),
		CreatedAt:  r.CreatedAt(),
		LastActive: r.LastActive(),
	}
	if p := r.Creator(); p != nil {
		info.Occupants = append(info.Occupants, OccupantInfo{ID: p.ID, Name: p.Name})
	}
	if p := r.Joiner(); p != nil {
		info.Occupants = append(info.Occupants, OccupantInfo{ID: p.ID, Name: p.Name})
	}
	return info
}

// Cleanup removes expired rooms and returns how many were swept. Exported
// so tests can trigger a sweep deterministically.
func (g *Registry) Cleanup() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for code, r := range g.rooms {
		if !r.Expired(g.idleTimeout) {
			continue
		}
		// A mapping may already point elsewhere; only forget occupants
		// this room still accounts for.
		if p := r.Creator(); p != nil && g.byParticipant[p.ID] == code {
			delete(g.byParticipant, p.ID)
		}
		if p := r.Joiner(); p != nil && g.byParticipant[p.ID] == code {
			delete(g.byParticipant, p.ID)
		}
		delete(g.rooms, code)
		removed++
		g.logger.Info("room swept", zap.Uint16("code", code))
	}
	return removed
}

func (g *Registry) sweepLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := g.Cleanup(); removed > 0 {
				g.logger.Info("sweep finished", zap.Int("removed", removed))
			}
		case <-g.stopCh:
			return
		}
	}
}

// allocateCode rejection-samples the uint16 code space until it finds a code
// no active room holds. The caller must hold g.mu. Exhaustion of the code
// space is unrecoverable and crashes loudly rather than spinning.
func (g *Registry) allocateCode() uint16 {
	if len(g.rooms) >= codeSpace {
		g.logger.Fatal("room code space exhausted", zap.Int("rooms", len(g.rooms)))
	}

	for {
		var buf [2]byte
		if _, err := rand.Read(buf[:]); err != nil {
			g.logger.Fatal("random source failed", zap.Error(err))
		}
		code := binary.BigEndian.Uint16(buf[:])
		if _, taken := g.rooms[code]; !taken {
			return code
		}
	}
}

// deliver encodes and sends one frame to a participant's outbox. Delivery is
// non-blocking; a refused frame is logged and dropped so one slow client
// cannot stall matchmaking for everyone else.
func (g *Registry) deliver(p *room.Participant, event protocol.Event, payload any) {
	if p == nil || p.Outbox == nil {
		return
	}
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		g.logger.Error("encode outbound frame",
			zap.String("event", string(event)), zap.Error(err))
		return
	}
	if !p.Outbox.Deliver(frame) {
		g.logger.Warn("outbox refused frame, dropping",
			zap.String("participant", p.ID),
			zap.String("event", string(event)))
	}
}
