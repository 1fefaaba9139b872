package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	t.Run("valid frame", func(t *testing.T) {
		in, err := DecodeInbound([]byte(`{"event":"GetCode","msg":"Alice"}`))
		require.NoError(t, err)
		assert.Equal(t, EventGetCode, in.Event)
		assert.Equal(t, "Alice", in.Msg)
	})

	t.Run("nested payload stays raw", func(t *testing.T) {
		in, err := DecodeInbound([]byte(`{"event":"ConnectWith","msg":"{\"room_code\":\"1234\",\"name\":\"Bob\"}"}`))
		require.NoError(t, err)

		var join JoinPayload
		require.NoError(t, DecodePayload(in.Msg, &join))
		assert.Equal(t, "1234", join.RoomCode)
		assert.Equal(t, "Bob", join.Name)
	})

	t.Run("malformed envelope", func(t *testing.T) {
		_, err := DecodeInbound([]byte(`{"event":`))
		assert.ErrorIs(t, err, ErrMalformedEnvelope)
	})

	t.Run("non-string msg", func(t *testing.T) {
		_, err := DecodeInbound([]byte(`{"event":"Move","msg":{"i":1}}`))
		assert.ErrorIs(t, err, ErrMalformedEnvelope)
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := DecodeInbound([]byte(`{"event":"Dance","msg":""}`))
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})
}

func TestEncode(t *testing.T) {
	t.Run("struct payload", func(t *testing.T) {
		frame, err := Encode(EventGetCode, CodeIssued{ID: "abc", Code: 4242})
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"GetCode","msg":{"id":"abc","code":4242}}`, string(frame))
	})

	t.Run("plain string payload", func(t *testing.T) {
		frame, err := Encode(EventStart, "participant-1")
		require.NoError(t, err)

		var env struct {
			Event string `json:"event"`
			Msg   string `json:"msg"`
		}
		require.NoError(t, json.Unmarshal(frame, &env))
		assert.Equal(t, "Start", env.Event)
		assert.Equal(t, "participant-1", env.Msg)
	})

	t.Run("json-shaped string embeds structured", func(t *testing.T) {
		frame, err := Encode(EventMove, `{"i":1,"j":0,"k":2,"l":0}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"Move","msg":{"i":1,"j":0,"k":2,"l":0}}`, string(frame))
	})

	t.Run("error frame", func(t *testing.T) {
		frame, err := EncodeError(KindRoomFull, "Room Full")
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"RoomFull","msg":"Room Full"}`, string(frame))
	})
}

func TestParseRoomCode(t *testing.T) {
	code, err := ParseRoomCode("65535")
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), code)

	for _, bad := range []string{"", "abc", "-1", "65536", "12.5"} {
		_, err := ParseRoomCode(bad)
		assert.ErrorIs(t, err, ErrInvalidRoomCode, "code %q", bad)
	}
}

func TestValidateMove(t *testing.T) {
	tests := []struct {
		name    string
		mv      MovePayload
		wantErr bool
	}{
		{name: "valid", mv: MovePayload{I: 1, J: 0, K: 2, L: 0}},
		{name: "corner to corner", mv: MovePayload{I: 0, J: 0, K: 7, L: 7}},
		{name: "origin equals destination", mv: MovePayload{I: 3, J: 3, K: 3, L: 3}, wantErr: true},
		{name: "negative coordinate", mv: MovePayload{I: -1, J: 0, K: 2, L: 0}, wantErr: true},
		{name: "coordinate past board", mv: MovePayload{I: 1, J: 0, K: 8, L: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMove(tt.mv)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMove)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePromotion(t *testing.T) {
	tests := []struct {
		name    string
		pr      PromotePayload
		wantErr bool
	}{
		{name: "queen on last rank", pr: PromotePayload{I: 7, J: 4, PromoteTo: "queen"}},
		{name: "knight on first rank", pr: PromotePayload{I: 0, J: 0, PromoteTo: "knight"}},
		{name: "king not allowed", pr: PromotePayload{I: 7, J: 4, PromoteTo: "king"}, wantErr: true},
		{name: "middle rank", pr: PromotePayload{I: 4, J: 4, PromoteTo: "rook"}, wantErr: true},
		{name: "file out of range", pr: PromotePayload{I: 0, J: 8, PromoteTo: "bishop"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePromotion(tt.pr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPromotion)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
