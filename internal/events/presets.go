package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// PresetsUpdatedName is the event name used on the wire and in SSE streams.
const PresetsUpdatedName = "stylePresetsUpdated"

// PresetsUpdated notifies that a preset collection changed. It carries no
// data: subscribers re-load the collection.
type PresetsUpdated struct {
	Collection string    `json:"collection"`
	Origin     string    `json:"origin"`
	At         time.Time `json:"at"`
}

// PresetBus is the process-wide bus for preset change notifications.
type PresetBus = Bus[PresetsUpdated]

// EncodeNotice renders the relay payload for e.
func EncodeNotice(e PresetsUpdated) string {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DecodeNotice parses a relay payload.
func DecodeNotice(payload string) (PresetsUpdated, error) {
	var e PresetsUpdated
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return PresetsUpdated{}, fmt.Errorf("decode preset notice: %w", err)
	}
	if e.Collection == "" {
		return PresetsUpdated{}, fmt.Errorf("decode preset notice: collection missing")
	}
	return e, nil
}
