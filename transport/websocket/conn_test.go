package websocket

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wricardo/chessmatch/game/registry"
)

// testClient wraps one websocket session against the broker.
type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()

	reg := registry.New(zap.NewNop())
	t.Cleanup(reg.Stop)

	handler := NewHandler(reg, zap.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return srv, reg
}

// dial connects a client and consumes the Start event.
func dial(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &testClient{t: t, conn: conn}
	event, msg := c.read()
	require.Equal(t, "Start", event)
	require.NoError(t, json.Unmarshal(msg, &c.id))
	require.NotEmpty(t, c.id)
	return c
}

// send writes one client frame with the inner payload as a JSON string.
func (c *testClient) send(event, msg string) {
	c.t.Helper()
	frame, err := json.Marshal(map[string]string{"event": event, "msg": msg})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, frame))
}

// sendRaw writes an arbitrary frame.
func (c *testClient) sendRaw(frame string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// read returns the next frame's event name and raw payload.
func (c *testClient) read() (string, json.RawMessage) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)

	var env struct {
		Event string          `json:"event"`
		Msg   json.RawMessage `json:"msg"`
	}
	require.NoError(c.t, json.Unmarshal(data, &env))
	return env.Event, env.Msg
}

// expect asserts the next frame's event and decodes its payload into v.
func (c *testClient) expect(event string, v any) {
	c.t.Helper()
	got, msg := c.read()
	require.Equal(c.t, event, got)
	if v != nil {
		require.NoError(c.t, json.Unmarshal(msg, v))
	}
}

// createRoom performs GetCode and returns the issued join code.
func (c *testClient) createRoom(name string) string {
	c.t.Helper()
	c.send("GetCode", name)

	var issued struct {
		ID   string `json:"id"`
		Code uint16 `json:"code"`
	}
	c.expect("GetCode", &issued)
	require.Equal(c.t, c.id, issued.ID)
	return fmt.Sprintf("%d", issued.Code)
}

func joinPayload(code, name string) string {
	return fmt.Sprintf(`{"room_code":%q,"name":%q}`, code, name)
}

func movePayload(code string, i, j, k, l int) string {
	return fmt.Sprintf(`{"room_code":%q,"i":%d,"j":%d,"k":%d,"l":%d}`, code, i, j, k, l)
}

func TestStartAssignsFreshIDs(t *testing.T) {
	srv, _ := newTestServer(t)

	a := dial(t, srv)
	b := dial(t, srv)
	assert.NotEqual(t, a.id, b.id)
}

func TestMatchmakingFlow(t *testing.T) {
	srv, reg := newTestServer(t)

	alice := dial(t, srv)
	bob := dial(t, srv)

	// Scenario A: creating a room yields a code and a single-occupant room.
	code := alice.createRoom("Alice")
	assert.Equal(t, 1, reg.Stats().Rooms)

	// Scenario B: joining introduces both sides to each other.
	bob.send("ConnectWith", joinPayload(code, "Bob"))

	var peer struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	alice.expect("ConnectWith", &peer)
	assert.Equal(t, bob.id, peer.ID)
	assert.Equal(t, "Bob", peer.Name)

	bob.expect("ConnectWith", &peer)
	assert.Equal(t, alice.id, peer.ID)
	assert.Equal(t, "Alice", peer.Name)

	// Readiness is relayed to the other occupant only.
	bob.send("OppReady", code)
	var readyID string
	alice.expect("OppReady", &readyID)
	assert.Equal(t, bob.id, readyID)

	// Scenario C: the creator moves first; the move relays to Bob only.
	alice.send("Move", movePayload(code, 1, 0, 2, 0))
	var relay struct{ I, J, K, L int }
	bob.expect("Move", &relay)
	assert.Equal(t, 1, relay.I)
	assert.Equal(t, 2, relay.K)

	// Scenario D: the turn is Bob's; Alice moving again is rejected.
	alice.send("Move", movePayload(code, 2, 0, 3, 0))
	var errMsg string
	alice.expect("RoomFull", &errMsg)
	assert.Equal(t, "Not your turn", errMsg)

	bob.send("Move", movePayload(code, 6, 0, 5, 0))
	alice.expect("Move", &relay)
	assert.Equal(t, 6, relay.I)

	// Scenario E: a third client cannot enter the paired room.
	carol := dial(t, srv)
	carol.send("ConnectWith", joinPayload(code, "Carol"))
	carol.expect("RoomFull", &errMsg)
	assert.Equal(t, "Room Full", errMsg)

	info, ok := reg.Room(mustCode(t, code))
	require.True(t, ok)
	assert.Len(t, info.Occupants, 2)
}

func TestPromotionFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv)
	bob := dial(t, srv)
	code := alice.createRoom("Alice")
	bob.send("ConnectWith", joinPayload(code, "Bob"))
	alice.expect("ConnectWith", nil)
	bob.expect("ConnectWith", nil)

	alice.send("Promote", fmt.Sprintf(`{"room_code":%q,"i":7,"j":4,"promote_to":"queen"}`, code))

	var relay struct {
		I     int    `json:"i"`
		J     int    `json:"j"`
		Value string `json:"value"`
	}
	bob.expect("Promote", &relay)
	assert.Equal(t, 7, relay.I)
	assert.Equal(t, "queen", relay.Value)

	// The turn passed to Bob with the promotion.
	alice.send("Move", movePayload(code, 1, 0, 2, 0))
	var errMsg string
	alice.expect("RoomFull", &errMsg)
	assert.Equal(t, "Not your turn", errMsg)
}

func TestProtocolErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name      string
		run       func(c *testClient)
		wantEvent string
		wantMsg   string
	}{
		{
			name:      "malformed envelope",
			run:       func(c *testClient) { c.sendRaw(`{"event":`) },
			wantEvent: "ParseError",
			wantMsg:   "Error parsing json",
		},
		{
			name:      "unknown event",
			run:       func(c *testClient) { c.sendRaw(`{"event":"Dance","msg":""}`) },
			wantEvent: "ParseError",
			wantMsg:   "Error While Parsing Event",
		},
		{
			name:      "unparseable room code",
			run:       func(c *testClient) { c.send("OppReady", "not-a-number") },
			wantEvent: "InvalidCode",
			wantMsg:   "Invalid room code",
		},
		{
			name:      "unknown room",
			run:       func(c *testClient) { c.send("OppReady", "12345") },
			wantEvent: "InvalidCode",
			wantMsg:   "No room found",
		},
		{
			name:      "malformed move payload",
			run:       func(c *testClient) { c.send("Move", "{") },
			wantEvent: "ParseError",
			wantMsg:   "Error parsing json",
		},
		{
			name: "out of bounds move",
			run: func(c *testClient) {
				code := c.createRoom("Solo")
				c.send("Move", movePayload(code, 1, 0, 9, 0))
			},
			wantEvent: "ParseError",
			wantMsg:   "Invalid Move",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, srv)
			tt.run(c)

			var msg string
			c.expect(tt.wantEvent, &msg)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestErrorsKeepConnectionOpen(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dial(t, srv)

	c.sendRaw("not json at all")
	c.expect("ParseError", nil)

	// The session survives the bad frame.
	code := c.createRoom("Resilient")
	assert.NotEmpty(t, code)
}

func TestRepeatedGetCodeReplacesRoom(t *testing.T) {
	srv, reg := newTestServer(t)

	c := dial(t, srv)
	first := c.createRoom("Retry")
	second := c.createRoom("Retry")
	require.Equal(t, 1, reg.Stats().Rooms, "a client holds at most one room")

	peer := dial(t, srv)
	if first != second {
		// The abandoned code no longer names a room. The allocator may
		// reissue the freed code, in which case there is nothing to probe.
		peer.send("ConnectWith", joinPayload(first, "Peer"))
		var msg string
		peer.expect("InvalidCode", &msg)
		assert.Equal(t, "No room found", msg)
	}

	peer.send("ConnectWith", joinPayload(second, "Peer"))
	peer.expect("ConnectWith", nil)
	c.expect("ConnectWith", nil)

	c.conn.Close()
	peer.conn.Close()
	require.Eventually(t, func() bool {
		return reg.Stats().Rooms == 0
	}, 2*time.Second, 10*time.Millisecond, "replacement room is freed on disconnect")
}

func TestDisconnectFreesRoom(t *testing.T) {
	srv, reg := newTestServer(t)

	c := dial(t, srv)
	c.createRoom("Leaver")
	require.Equal(t, 1, reg.Stats().Rooms)

	c.conn.Close()

	require.Eventually(t, func() bool {
		return reg.Stats().Rooms == 0
	}, 2*time.Second, 10*time.Millisecond, "room should be freed when its last occupant disconnects")
}

func mustCode(t *testing.T, s string) uint16 {
	t.Helper()
	var code uint16
	_, err := fmt.Sscanf(s, "%d", &code)
	require.NoError(t, err)
	return code
}
