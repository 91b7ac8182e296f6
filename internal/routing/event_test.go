package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClickEvent(t *testing.T) {
	t.Parallel()

	ev := NewClickEvent("room-42", "https://chat.example.com")

	assert.Equal(t, EventKindNotificationClicked, ev.Kind)
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "room-42", ev.RoomID)
	assert.Equal(t, "/chat/room-42", ev.TargetPath)
	assert.Equal(t, "https://chat.example.com/chat/room-42", ev.AbsoluteURL)
	assert.Positive(t, ev.EmittedAt)
}

func TestNewClickEvent_UniqueIDs(t *testing.T) {
	t.Parallel()

	a := NewClickEvent("room-1", "")
	b := NewClickEvent("room-1", "")
	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestTargetPathForRoom(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/chat/room-7", TargetPathForRoom("room-7"))
	assert.Equal(t, "/chat", TargetPathForRoom(""))
}

func TestClickEvent_EncodeDecode(t *testing.T) {
	t.Parallel()

	ev := NewClickEvent("room-9", "https://chat.example.com")
	payload, err := ev.Encode()
	require.NoError(t, err)

	got, err := DecodeClickEvent(payload)
	require.NoError(t, err)
	assert.True(t, got.Valid())
	assert.Equal(t, ev.EventID, got.EventID)
	assert.Equal(t, ev.RoomID, got.RoomID)
	assert.Equal(t, ev.TargetPath, got.TargetPath)
}

func TestClickEvent_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		valid   bool
	}{
		{"click event", `{"type":"NOTIFICATION_CLICKED","roomId":"r1"}`, true},
		{"unrelated message", `{"type":"PRESENCE_UPDATE","userId":"u1"}`, false},
		{"missing type", `{"roomId":"r1"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, err := DecodeClickEvent([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, ev.Valid())
		})
	}
}

func TestDecodeClickEvent_Malformed(t *testing.T) {
	t.Parallel()

	_, err := DecodeClickEvent([]byte("not json"))
	require.Error(t, err)
}
