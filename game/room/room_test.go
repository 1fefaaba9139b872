package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	creator := &Participant{ID: "p1", Name: "Alice"}
	r := New(4242, creator)

	assert.Equal(t, uint16(4242), r.Code)
	assert.Same(t, creator, r.Creator())
	assert.Nil(t, r.Joiner())
	assert.False(t, r.Full())
	assert.False(t, r.Empty())
	assert.True(t, r.HasTurn("p1"), "turn starts on the creator")
}

func TestRoom_AddJoiner(t *testing.T) {
	r := New(1, &Participant{ID: "p1"})

	require.NoError(t, r.AddJoiner(&Participant{ID: "p2"}))
	assert.True(t, r.Full())
	assert.True(t, r.HasTurn("p1"), "joining must not move the turn")

	err := r.AddJoiner(&Participant{ID: "p3"})
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, "p2", r.Joiner().ID, "occupants unchanged after rejected join")
}

func TestRoom_Other(t *testing.T) {
	r := New(1, &Participant{ID: "p1"})
	require.NoError(t, r.AddJoiner(&Participant{ID: "p2"}))

	assert.Equal(t, "p2", r.Other("p1").ID)
	assert.Equal(t, "p1", r.Other("p2").ID)
	assert.Nil(t, r.Other("stranger"))

	require.NoError(t, r.Remove("p2"))
	assert.Nil(t, r.Other("p1"), "no peer after the joiner left")
}

func TestRoom_PassTurn(t *testing.T) {
	r := New(1, &Participant{ID: "p1"})
	require.NoError(t, r.AddJoiner(&Participant{ID: "p2"}))

	require.NoError(t, r.PassTurn("p1"))
	assert.True(t, r.HasTurn("p2"))

	require.NoError(t, r.PassTurn("p2"))
	assert.True(t, r.HasTurn("p1"))

	assert.ErrorIs(t, r.PassTurn("stranger"), ErrNotInRoom)
	assert.True(t, r.HasTurn("p1"), "turn unchanged after rejected pass")
}

func TestRoom_Remove(t *testing.T) {
	r := New(1, &Participant{ID: "p1"})
	require.NoError(t, r.AddJoiner(&Participant{ID: "p2"}))

	assert.ErrorIs(t, r.Remove("stranger"), ErrNotInRoom)

	require.NoError(t, r.Remove("p1"))
	assert.Nil(t, r.Creator())
	assert.False(t, r.Empty())

	require.NoError(t, r.Remove("p2"))
	assert.True(t, r.Empty())
}

func TestRoom_Expired(t *testing.T) {
	r := New(1, &Participant{ID: "p1"})

	assert.False(t, r.Expired(time.Hour))

	time.Sleep(2 * time.Millisecond)
	assert.True(t, r.Expired(time.Millisecond))

	r.Touch()
	assert.False(t, r.Expired(time.Hour))

	r.Finish()
	assert.True(t, r.Expired(time.Hour), "finished rooms expire regardless of activity")
}
