package relay

import (
	"encoding/json"
	"fmt"
)

// Wire events. Inbound names match what the mobile clients emit; outbound
// names match what they subscribe to.
const (
	EventUpdateLocation      = "updateLocation"
	EventRequestAllLocations = "requestAllLocations"

	EventAllLocations     = "allLocations"
	EventLocationUpdate   = "locationUpdate"
	EventUserDisconnected = "userDisconnected"
)

// Frame is one inbound client message: an event name plus a free-form JSON
// object payload. Payload decoding into typed structs happens per event.
type Frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

func ParseFrameJSON(raw []byte) (*Frame, error) {
	frame := &Frame{}
	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if frame.Event == "" {
		return nil, fmt.Errorf("frame has no event")
	}
	return frame, nil
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	b, err := json.Marshal(outFrame{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame failed: %w", event, err)
	}
	return b, nil
}

// ---- server-built frames ----

func EncodeLocationUpdate(uid string, loc Location) ([]byte, error) {
	return encodeFrame(EventLocationUpdate, MemberLocation{UID: uid, Location: loc})
}

func EncodeAllLocations(locations []MemberLocation) ([]byte, error) {
	if locations == nil {
		locations = []MemberLocation{}
	}
	return encodeFrame(EventAllLocations, locations)
}

func EncodeUserDisconnected(uid string) ([]byte, error) {
	return encodeFrame(EventUserDisconnected, map[string]string{"uid": uid})
}
