// ABOUTME: Executor protocol message type definitions
// ABOUTME: Defines the envelope, command and event payloads and payload decoding
package protocol

import (
	"encoding/json"
	"fmt"
)

// Commands sent to an executor
const (
	TypeInit  = "init"
	TypeStart = "start"
	TypeStop  = "stop"
	TypeSync  = "sync"
)

// Events emitted by an executor
const (
	TypeTick   = "tick"
	TypeSynced = "synced"
	TypeError  = "error"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewMessage builds a message of the given type
func NewMessage(msgType string, payload interface{}) Message {
	return Message{Type: msgType, Payload: payload}
}

// RetryPayload mirrors retry.Config with the interval in milliseconds
type RetryPayload struct {
	Times      int   `json:"times"`
	IntervalMs int64 `json:"interval_ms"`
	Backoff    bool  `json:"backoff"`
}

// InitPayload carries the serializable part of a client configuration.
// Selector extractors and custom parse functions cannot cross a transport.
type InitPayload struct {
	URLs           []string     `json:"urls"`
	Strategy       string       `json:"strategy"`
	SyncIntervalMs int64        `json:"sync_interval_ms"` // <= 0 disables periodic sync
	TickIntervalMs int64        `json:"tick_interval_ms"` // <= 0 disables ticks
	TimeField      string       `json:"time_field,omitempty"`
	TimeFormat     string       `json:"time_format"`
	Retry          RetryPayload `json:"retry"`
	OfflineMode    string       `json:"offline_mode"`
}

// TickPayload reports the corrected time
type TickPayload struct {
	Time   int64   `json:"time"`   // Unix milliseconds, corrected
	Offset float64 `json:"offset"` // Milliseconds
}

// SyncedPayload reports a completed round
type SyncedPayload struct {
	Offset     float64 `json:"offset"`
	ServerTime int64   `json:"server_time"`
}

// ErrorPayload reports a failure inside the executor
type ErrorPayload struct {
	Message string `json:"message"`
}

// DecodePayload converts msg.Payload into v. Payloads that arrived over JSON
// are generic maps, so the value is re-marshaled into the typed struct.
func DecodePayload(msg Message, v interface{}) error {
	if msg.Payload == nil {
		return fmt.Errorf("%s message has no payload", msg.Type)
	}

	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", msg.Type, err)
	}
	if err := json.Unmarshal(payloadBytes, v); err != nil {
		return fmt.Errorf("failed to parse %s payload: %w", msg.Type, err)
	}
	return nil
}
