package relay

import (
	"encoding/json"
	"fmt"

	"heliotrack-server/internal/control"
)

// Wire event names, shared with the control-panel frontend.
const (
	EventUpdateConfig = "UPDATE_CONFIG"
	EventUpdateState  = "UPDATE_STATE"
	EventFakeData     = "FAKE_DATA"
)

// Envelope is the only message shape accepted on the control channel.
// Payload stays raw so state snapshots can be relayed verbatim.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evConfigUpdate
	evStateUpdate
	evStartSimulator
	evUnknown
	evIngest // server-originated snapshot, e.g. from the MQTT bridge
)

// event is one unit of work for the hub loop. client is nil for evIngest.
type event struct {
	kind   eventKind
	client *Client
	name   string // original wire event for evUnknown
	update control.ConfigUpdate
	raw    json.RawMessage
}

// decodeFrame parses an inbound text frame into the closed event set.
// A malformed envelope or payload is an error; an unrecognized event name is
// not (it decodes to evUnknown and is dropped later).
func decodeFrame(c *Client, data []byte) (event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return event{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return event{}, fmt.Errorf("envelope missing event")
	}

	switch env.Event {
	case EventUpdateConfig:
		var update control.ConfigUpdate
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &update); err != nil {
				return event{}, fmt.Errorf("decode %s payload: %w", env.Event, err)
			}
		}
		return event{kind: evConfigUpdate, client: c, update: update}, nil
	case EventUpdateState:
		return event{kind: evStateUpdate, client: c, raw: env.Payload}, nil
	case EventFakeData:
		return event{kind: evStartSimulator, client: c}, nil
	default:
		return event{kind: evUnknown, client: c, name: env.Event}, nil
	}
}

func encodeEnvelope(name string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return json.Marshal(Envelope{Event: name, Payload: raw})
}
