package ws

import "encoding/json"

// Envelope is the wire format for realtime events in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
