// Package protocol defines the wire format shared by the broker and its
// clients: the {event, msg} envelope, the event and error taxonomies, and
// the per-event payload shapes with their structural validation.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// BoardSize is the side length of the chess board. All move coordinates are
// zero-based and must fall in [0, BoardSize).
const BoardSize = 8

var (
	ErrMalformedEnvelope = errors.New("malformed message envelope")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrBadPayload        = errors.New("malformed event payload")
	ErrInvalidMove       = errors.New("invalid move")
	ErrInvalidPromotion  = errors.New("invalid promotion")
	ErrInvalidRoomCode   = errors.New("invalid room code")
)

// Event identifies one message kind on the wire. The same set is used in
// both directions; see the per-event payload types below for the shapes.
type Event string

const (
	EventStart       Event = "Start"
	EventGetCode     Event = "GetCode"
	EventConnectWith Event = "ConnectWith"
	EventOppReady    Event = "OppReady"
	EventMove        Event = "Move"
	EventPromote     Event = "Promote"
	EventGameOver    Event = "GameOver"
)

// ParseEvent maps a wire event string to a known Event.
func ParseEvent(s string) (Event, error) {
	switch Event(s) {
	case EventStart, EventGetCode, EventConnectWith, EventOppReady,
		EventMove, EventPromote, EventGameOver:
		return Event(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}

// ErrorKind identifies one error event kind on the wire. Error frames use
// the same envelope as regular events, with the kind in the event slot and
// a human-readable string payload.
type ErrorKind string

const (
	// KindParseError covers malformed envelopes, unknown events, malformed
	// inner payloads, and structurally invalid moves/promotions.
	KindParseError ErrorKind = "ParseError"
	// KindInvalidCode covers room codes that do not parse as a uint16 and
	// codes that do not name an active room.
	KindInvalidCode ErrorKind = "InvalidCode"
	// KindRoomFull covers occupancy and turn-policy violations: room already
	// paired, room not yet paired, caller not an occupant, not caller's turn.
	KindRoomFull ErrorKind = "RoomFull"
)

// envelope is the outer wire structure shared by every message:
//
//	{"event": <string>, "msg": <string | structured>}
type envelope struct {
	Event string          `json:"event"`
	Msg   json.RawMessage `json:"msg"`
}

// Inbound is a decoded client frame: the recognized event plus the raw inner
// payload string, which each handler decodes into its expected shape.
type Inbound struct {
	Event Event
	Msg   string
}

// DecodeInbound parses a client frame. The inner msg slot must be a JSON
// string on inbound frames; nested payloads arrive as JSON text inside it.
func DecodeInbound(data []byte) (Inbound, error) {
	var env struct {
		Event string `json:"event"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	event, err := ParseEvent(env.Event)
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{Event: event, Msg: env.Msg}, nil
}

// Encode renders an outbound frame. A string payload that is itself valid
// JSON is embedded as structured data rather than re-quoted, so relayed
// payloads stay structured for the client.
func Encode(event Event, payload any) ([]byte, error) {
	return encode(string(event), payload)
}

// EncodeError renders an outbound error frame carrying a human-readable
// description.
func EncodeError(kind ErrorKind, message string) ([]byte, error) {
	return encode(string(kind), message)
}

func encode(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if s, ok := payload.(string); ok && json.Valid([]byte(s)) {
		raw = json.RawMessage(s)
	} else {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		raw = data
	}
	return json.Marshal(envelope{Event: event, Msg: raw})
}

// JoinPayload is the inbound ConnectWith payload.
type JoinPayload struct {
	RoomCode string `json:"room_code"`
	Name     string `json:"name"`
}

// MovePayload is the inbound Move payload. (I,J) is the origin square and
// (K,L) the destination.
type MovePayload struct {
	RoomCode string `json:"room_code"`
	I        int    `json:"i"`
	J        int    `json:"j"`
	K        int    `json:"k"`
	L        int    `json:"l"`
}

// PromotePayload is the inbound Promote payload. (I,J) is the promotion
// square and PromoteTo the requested piece.
type PromotePayload struct {
	RoomCode  string `json:"room_code"`
	I         int    `json:"i"`
	J         int    `json:"j"`
	PromoteTo string `json:"promote_to"`
}

// CodeIssued is the GetCode reply sent to a room creator.
type CodeIssued struct {
	ID   string `json:"id"`
	Code uint16 `json:"code"`
}

// Peer is the ConnectWith introduction each occupant receives about the
// other.
type Peer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MoveRelay is the Move payload forwarded to the non-moving occupant.
type MoveRelay struct {
	I int `json:"i"`
	J int `json:"j"`
	K int `json:"k"`
	L int `json:"l"`
}

// PromoteRelay is the Promote payload forwarded to the non-moving occupant.
type PromoteRelay struct {
	I     int    `json:"i"`
	J     int    `json:"j"`
	Value string `json:"value"`
}

// DecodePayload parses an inner payload string into the given shape.
func DecodePayload(msg string, v any) error {
	if err := json.Unmarshal([]byte(msg), v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// ParseRoomCode parses the textual room code clients send.
func ParseRoomCode(s string) (uint16, error) {
	code, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRoomCode, s)
	}
	return uint16(code), nil
}

// ValidateMove checks coordinate bounds and rejects null moves. Game
// legality beyond that is the clients' business.
func ValidateMove(mv MovePayload) error {
	for _, c := range []int{mv.I, mv.J, mv.K, mv.L} {
		if c < 0 || c >= BoardSize {
			return fmt.Errorf("%w: coordinate %d out of range", ErrInvalidMove, c)
		}
	}
	if mv.I == mv.K && mv.J == mv.L {
		return fmt.Errorf("%w: origin equals destination", ErrInvalidMove)
	}
	return nil
}

// promotionPieces are the pieces a pawn may become.
var promotionPieces = map[string]bool{
	"knight": true,
	"bishop": true,
	"rook":   true,
	"queen":  true,
}

// ValidatePromotion checks the promotion square and requested piece. Pawns
// promote only on the first or last rank.
func ValidatePromotion(pr PromotePayload) error {
	if !promotionPieces[pr.PromoteTo] {
		return fmt.Errorf("%w: cannot promote to %q", ErrInvalidPromotion, pr.PromoteTo)
	}
	if pr.I != 0 && pr.I != BoardSize-1 {
		return fmt.Errorf("%w: rank %d is not a promotion rank", ErrInvalidPromotion, pr.I)
	}
	if pr.J < 0 || pr.J >= BoardSize {
		return fmt.Errorf("%w: file %d out of range", ErrInvalidPromotion, pr.J)
	}
	return nil
}
