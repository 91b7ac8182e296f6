// Package notify turns raw push payloads into presented, tag-grouped
// notifications.
package notify

import (
	"encoding/json"

	"github.com/antonholmquist/jason"

	"github.com/moachat/pushkit/internal/conf"
)

// Decode outcomes, used as the metrics label for payload intake.
const (
	DecodeOutcomeOK        = "ok"
	DecodeOutcomeEmpty     = "empty"
	DecodeOutcomeMalformed = "malformed"
)

// DataKeyRoomID is the payload data key carrying the conversation identifier.
// Click routing only works when the sender populates it.
const DataKeyRoomID = "roomId"

// Descriptor is the normalized form of one incoming push. Constructed once
// per push event and handed to the Presenter; never mutated afterwards.
type Descriptor struct {
	Title string
	Body  string
	Icon  string
	Badge string
	// GroupKey is the conversation identifier used for tag-based grouping.
	// It must be stable per conversation so repeated pushes coalesce.
	GroupKey string
	// Data carries the opaque payload data verbatim.
	Data map[string]any
}

// RoomID returns the room identifier from the payload data, or "" when the
// push is not room-scoped.
func (d *Descriptor) RoomID() string {
	if d.Data == nil {
		return ""
	}
	if id, ok := d.Data[DataKeyRoomID].(string); ok {
		return id
	}
	return ""
}

// defaultDescriptor builds the fallback shown for absent or unparseable
// payloads.
func defaultDescriptor(defaults conf.NotificationDefaults) *Descriptor {
	return &Descriptor{
		Title:    defaults.Title,
		Body:     defaults.Body,
		Icon:     defaults.Icon,
		Badge:    defaults.Badge,
		GroupKey: conf.DefaultGroupKey,
	}
}

// DecodePayload parses a raw push payload into a Descriptor. A missing or
// malformed payload falls back to the configured defaults; decode problems
// must never prevent a notification from being shown. The second return
// value is the decode outcome for metrics.
//
// GroupKey resolution order: data.roomId, then the top-level tag, then the
// default sentinel. The ordering keeps grouping per-conversation even when
// the payload shape varies between senders.
func DecodePayload(raw []byte, defaults conf.NotificationDefaults) (*Descriptor, string) {
	if len(raw) == 0 {
		return defaultDescriptor(defaults), DecodeOutcomeEmpty
	}

	obj, err := jason.NewObjectFromBytes(raw)
	if err != nil {
		return defaultDescriptor(defaults), DecodeOutcomeMalformed
	}

	d := defaultDescriptor(defaults)
	if title, err := obj.GetString("title"); err == nil && title != "" {
		d.Title = title
	}
	if body, err := obj.GetString("body"); err == nil && body != "" {
		d.Body = body
	}
	if icon, err := obj.GetString("icon"); err == nil && icon != "" {
		d.Icon = icon
	}
	if badge, err := obj.GetString("badge"); err == nil && badge != "" {
		d.Badge = badge
	}

	if dataObj, err := obj.GetObject("data"); err == nil {
		data := make(map[string]any)
		for key, value := range dataObj.Map() {
			var v any
			if b, err := value.Marshal(); err == nil {
				_ = json.Unmarshal(b, &v)
			}
			data[key] = v
		}
		d.Data = data
	}

	if roomID, err := obj.GetString("data", DataKeyRoomID); err == nil && roomID != "" {
		d.GroupKey = roomID
	} else if tag, err := obj.GetString("tag"); err == nil && tag != "" {
		d.GroupKey = tag
	}

	return d, DecodeOutcomeOK
}
