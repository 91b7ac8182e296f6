package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moachat/pushkit/internal/conf"
)

func testDefaults() conf.NotificationDefaults {
	return conf.NotificationDefaults{
		Title: "새 메시지",
		Body:  "새로운 메시지가 도착했습니다.",
		Icon:  "/icons/icon-192.png",
		Badge: "/icons/badge-72.png",
	}
}

func TestDecodePayload_FullPayload(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"title": "Alice",
		"body": "hi",
		"icon": "/alice.png",
		"badge": "/badge.png",
		"data": {"roomId": "room-42", "messageId": "m1"}
	}`)

	d, outcome := DecodePayload(raw, testDefaults())
	assert.Equal(t, DecodeOutcomeOK, outcome)
	assert.Equal(t, "Alice", d.Title)
	assert.Equal(t, "hi", d.Body)
	assert.Equal(t, "/alice.png", d.Icon)
	assert.Equal(t, "room-42", d.GroupKey, "roomId drives grouping")
	assert.Equal(t, "room-42", d.RoomID())
	assert.Equal(t, "m1", d.Data["messageId"])
}

func TestDecodePayload_EmptyBody(t *testing.T) {
	t.Parallel()

	d, outcome := DecodePayload(nil, testDefaults())
	assert.Equal(t, DecodeOutcomeEmpty, outcome)
	assert.Equal(t, "새 메시지", d.Title)
	assert.Equal(t, "새로운 메시지가 도착했습니다.", d.Body)
	assert.Equal(t, conf.DefaultGroupKey, d.GroupKey)
	assert.Empty(t, d.RoomID())
}

func TestDecodePayload_MalformedJSON(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"not json", "{", `[]`, `"plain string"`} {
		d, outcome := DecodePayload([]byte(raw), testDefaults())
		assert.Equal(t, DecodeOutcomeMalformed, outcome, "input %q", raw)
		assert.Equal(t, "새 메시지", d.Title, "input %q", raw)
		assert.Equal(t, conf.DefaultGroupKey, d.GroupKey, "input %q", raw)
	}
}

func TestDecodePayload_GroupKeyResolutionOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"roomId wins over tag", `{"tag":"t1","data":{"roomId":"room-7"}}`, "room-7"},
		{"tag when no roomId", `{"tag":"t1","data":{"other":"x"}}`, "t1"},
		{"tag when no data", `{"tag":"t1"}`, "t1"},
		{"sentinel when neither", `{"title":"hey"}`, conf.DefaultGroupKey},
		{"empty roomId falls through to tag", `{"tag":"t1","data":{"roomId":""}}`, "t1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, outcome := DecodePayload([]byte(tt.raw), testDefaults())
			require.Equal(t, DecodeOutcomeOK, outcome)
			assert.Equal(t, tt.want, d.GroupKey)
		})
	}
}

func TestDecodePayload_PartialPayloadKeepsDefaults(t *testing.T) {
	t.Parallel()

	d, outcome := DecodePayload([]byte(`{"title":"Bob"}`), testDefaults())
	require.Equal(t, DecodeOutcomeOK, outcome)
	assert.Equal(t, "Bob", d.Title)
	assert.Equal(t, "새로운 메시지가 도착했습니다.", d.Body, "missing body uses default")
	assert.Equal(t, "/icons/icon-192.png", d.Icon)
}
