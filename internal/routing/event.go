// Package routing carries notification-click events from the background
// worker to live page contexts over redundant channels. Delivery is
// at-least-once and unordered; every consumer must be idempotent.
package routing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventKindNotificationClicked is the discriminant every listener must check
// before acting. The channels are shared with unrelated traffic.
const EventKindNotificationClicked = "NOTIFICATION_CLICKED"

const (
	// chatPathPrefix is the room-scoped navigation target.
	chatPathPrefix = "/chat/"
	// landingPath is the generic target for pushes without a room.
	landingPath = "/chat"
)

// ClickEvent is the message shape carried across every signal channel. It is
// created once by the fan-out dispatcher and copied verbatim everywhere; the
// EventID lets receivers drop the duplicate copies.
type ClickEvent struct {
	Kind        string `json:"type"`
	EventID     string `json:"eventId"`
	RoomID      string `json:"roomId"`
	TargetPath  string `json:"urlToOpen"`
	AbsoluteURL string `json:"absoluteUrl,omitempty"`
	// EmittedAt is unix milliseconds at creation time.
	EmittedAt int64 `json:"timestamp"`
}

// NewClickEvent builds a routed click event for the given room. roomID may
// be empty for pushes that are not room-scoped.
func NewClickEvent(roomID, baseURL string) *ClickEvent {
	path := TargetPathForRoom(roomID)
	return &ClickEvent{
		Kind:        EventKindNotificationClicked,
		EventID:     uuid.New().String(),
		RoomID:      roomID,
		TargetPath:  path,
		AbsoluteURL: baseURL + path,
		EmittedAt:   time.Now().UnixMilli(),
	}
}

// TargetPathForRoom derives the relative navigation target for a room.
func TargetPathForRoom(roomID string) string {
	if roomID == "" {
		return landingPath
	}
	return chatPathPrefix + roomID
}

// Valid reports whether the event carries the click discriminant.
func (e *ClickEvent) Valid() bool {
	return e != nil && e.Kind == EventKindNotificationClicked
}

// Encode serializes the event to its wire form.
func (e *ClickEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeClickEvent parses a raw channel payload. Callers must still check
// Valid(); unrelated traffic on a shared channel is not an error.
func DecodeClickEvent(payload []byte) (*ClickEvent, error) {
	var ev ClickEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
