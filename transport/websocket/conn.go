package websocket

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wricardo/chessmatch/game/protocol"
	"github.com/wricardo/chessmatch/game/registry"
	"github.com/wricardo/chessmatch/game/room"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	// Outbound frames buffered per connection before delivery is refused.
	sendBuffer = 256
)

// Connection lifecycle states. Registry commands are only dispatched while
// the connection is active.
const (
	stateConnecting int32 = iota
	stateActive
	stateClosed
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The game client is served from a different origin in development.
		return true
	},
}

// Handler accepts WebSocket sessions and runs one Conn per client.
type Handler struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewHandler creates a WebSocket handler backed by the given registry.
func NewHandler(reg *registry.Registry, logger *zap.Logger) *Handler {
	return &Handler{registry: reg, logger: logger}
}

// ServeHTTP upgrades the request and starts the connection's pumps. Each
// accepted session gets a fresh participant id and an immediate Start event
// so the client can correlate everything that follows.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Conn{
		id:       uuid.NewString(),
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		registry: h.registry,
	}
	c.state.Store(stateConnecting)
	c.participant = &room.Participant{ID: c.id, Outbox: c}
	c.logger = h.logger.With(zap.String("participant", c.id))

	c.logger.Info("connection established", zap.String("remote", r.RemoteAddr))

	go c.writePump()
	go c.readPump()
}

// Conn owns one client session: it decodes inbound frames into registry
// commands and renders outbound frames onto its own transport. The registry
// only ever sees the Conn through the Outbox interface; the websocket itself
// never leaves this package.
type Conn struct {
	id          string
	ws          *websocket.Conn
	send        chan []byte
	done        chan struct{}
	state       atomic.Int32
	participant *room.Participant
	registry    *registry.Registry
	logger      *zap.Logger
}

// Deliver implements room.Outbox. It never blocks: frames for a closed or
// saturated connection are refused and the caller decides what to do.
func (c *Conn) Deliver(frame []byte) bool {
	if c.state.Load() == stateClosed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// readPump pumps frames from the websocket into registry commands. On exit
// the participant is withdrawn from its room and the write pump stopped.
func (c *Conn) readPump() {
	defer func() {
		c.close()
		c.registry.Leave(c.id)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// The Start event activates the connection; it must be the first frame
	// the client sees.
	c.start()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		c.dispatch(data)
	}
}

// start pushes the Start event carrying the fresh participant id and marks
// the connection active.
func (c *Conn) start() {
	frame, err := protocol.Encode(protocol.EventStart, c.id)
	if err != nil {
		c.logger.Error("encode start frame", zap.Error(err))
		return
	}
	select {
	case c.send <- frame:
	default:
	}
	c.state.CompareAndSwap(stateConnecting, stateActive)
}

// close transitions to the terminal state; the outbox refuses everything
// afterwards.
func (c *Conn) close() {
	if c.state.Swap(stateClosed) != stateClosed {
		close(c.done)
		c.logger.Info("connection closed")
	}
}

// dispatch decodes one inbound frame and issues the matching registry
// command. Every failure is answered on this connection only; the frame is
// dropped and the session stays open.
func (c *Conn) dispatch(data []byte) {
	if c.state.Load() != stateActive {
		return
	}

	in, err := protocol.DecodeInbound(data)
	if errors.Is(err, protocol.ErrUnknownEvent) {
		c.sendError(protocol.KindParseError, "Error While Parsing Event")
		return
	}
	if err != nil {
		c.sendError(protocol.KindParseError, "Error parsing json")
		return
	}

	switch in.Event {
	case protocol.EventGetCode:
		c.handleGetCode(in.Msg)
	case protocol.EventConnectWith:
		c.handleConnectWith(in.Msg)
	case protocol.EventOppReady:
		c.handleOppReady(in.Msg)
	case protocol.EventMove:
		c.handleMove(in.Msg)
	case protocol.EventPromote:
		c.handlePromote(in.Msg)
	case protocol.EventGameOver:
		c.handleGameOver(in.Msg)
	default:
		// Start is server-originated; a client echoing it is ignored.
		c.logger.Debug("ignoring client frame", zap.String("event", string(in.Event)))
	}
}

func (c *Conn) handleGetCode(msg string) {
	// The payload is the creator's display name. The registry applies it
	// under its own lock; the participant is never written here.
	c.registry.CreateRoom(c.participant, msg)
}

func (c *Conn) handleConnectWith(msg string) {
	var join protocol.JoinPayload
	if err := protocol.DecodePayload(msg, &join); err != nil {
		c.sendError(protocol.KindParseError, "Error parsing json")
		return
	}
	code, err := protocol.ParseRoomCode(join.RoomCode)
	if err != nil {
		c.sendError(protocol.KindInvalidCode, "Invalid room code")
		return
	}

	c.report(c.registry.JoinRoom(c.participant, code, join.Name))
}

func (c *Conn) handleOppReady(msg string) {
	code, err := protocol.ParseRoomCode(msg)
	if err != nil {
		c.sendError(protocol.KindInvalidCode, "Invalid room code")
		return
	}
	c.report(c.registry.SignalReady(c.id, code))
}

func (c *Conn) handleMove(msg string) {
	var mv protocol.MovePayload
	if err := protocol.DecodePayload(msg, &mv); err != nil {
		c.sendError(protocol.KindParseError, "Error parsing json")
		return
	}
	code, err := protocol.ParseRoomCode(mv.RoomCode)
	if err != nil {
		c.sendError(protocol.KindInvalidCode, "Invalid room code")
		return
	}
	c.report(c.registry.SubmitMove(c.id, code, mv))
}

func (c *Conn) handlePromote(msg string) {
	var pr protocol.PromotePayload
	if err := protocol.DecodePayload(msg, &pr); err != nil {
		c.sendError(protocol.KindParseError, "Error parsing json")
		return
	}
	code, err := protocol.ParseRoomCode(pr.RoomCode)
	if err != nil {
		c.sendError(protocol.KindInvalidCode, "Invalid room code")
		return
	}
	c.report(c.registry.RequestPromotion(c.id, code, pr))
}

func (c *Conn) handleGameOver(msg string) {
	code, err := protocol.ParseRoomCode(msg)
	if err != nil {
		c.sendError(protocol.KindInvalidCode, "Invalid room code")
		return
	}
	c.report(c.registry.GameOver(c.id, code))
}

// report translates a registry error into the wire error taxonomy and
// answers it on this connection. No registry error closes the session.
func (c *Conn) report(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, registry.ErrRoomNotFound):
		c.sendError(protocol.KindInvalidCode, "No room found")
	case errors.Is(err, registry.ErrRoomFull):
		c.sendError(protocol.KindRoomFull, "Room Full")
	case errors.Is(err, registry.ErrRoomNotReady):
		c.sendError(protocol.KindRoomFull, "room not full")
	case errors.Is(err, registry.ErrNotInRoom):
		c.sendError(protocol.KindRoomFull, "You are not in room")
	case errors.Is(err, registry.ErrNotYourTurn):
		c.sendError(protocol.KindRoomFull, "Not your turn")
	case errors.Is(err, protocol.ErrInvalidMove):
		c.sendError(protocol.KindParseError, "Invalid Move")
	case errors.Is(err, protocol.ErrInvalidPromotion):
		c.sendError(protocol.KindParseError, "Invalid Promotion")
	default:
		c.logger.Error("registry command failed", zap.Error(err))
		c.sendError(protocol.KindParseError, "Internal Error")
	}
}

func (c *Conn) sendError(kind protocol.ErrorKind, message string) {
	frame, err := protocol.EncodeError(kind, message)
	if err != nil {
		c.logger.Error("encode error frame", zap.Error(err))
		return
	}
	c.Deliver(frame)
}

// writePump pumps frames from the send channel onto the websocket and keeps
// the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
