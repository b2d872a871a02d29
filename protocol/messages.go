package protocol

import (
	"encoding/json"
	"time"
)

// MessageType enumerates all control-plane message types.
type MessageType string

const (
	// Client -> UI
	MsgRegister  MessageType = "register"
	MsgHeartbeat MessageType = "heartbeat"
	MsgStatus    MessageType = "status"
	MsgLog       MessageType = "log"

	// UI -> Client
	MsgConfigUpdate MessageType = "config_update"
	MsgCancelAll    MessageType = "cancel_all"
	MsgShutdown     MessageType = "shutdown"
	MsgAck          MessageType = "ack"
)

// Envelope is the outer JSON wrapper for all WebSocket messages.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Client -> UI payloads ---

// RegisterPayload is sent once immediately after connecting.
type RegisterPayload struct {
	ClientID  string    `json:"client_id"`
	Version   string    `json:"version,omitempty"`
	Services  []string  `json:"services,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HeartbeatPayload is sent periodically to keep the connection alive and
// mirror the orchestrator's load counters.
type HeartbeatPayload struct {
	ClientID     string    `json:"client_id"`
	Timestamp    time.Time `json:"timestamp"`
	ActiveCalls  int       `json:"active_calls"`
	QueuedCalls  int       `json:"queued_calls"`
	CacheEntries int       `json:"cache_entries"`
}

// StatusPayload carries the per-service health picture from the last probe
// cycle.
type StatusPayload struct {
	ClientID string          `json:"client_id"`
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth is the probe result for one backend service.
type ServiceHealth struct {
	Service   string    `json:"service"`
	Healthy   bool      `json:"healthy"`
	Endpoint  string    `json:"endpoint"`
	CheckedAt time.Time `json:"checked_at"`
}

// LogPayload carries a single structured log record.
type LogPayload struct {
	ClientID string                 `json:"client_id"`
	Level    string                 `json:"level"`
	Message  string                 `json:"msg"`
	Attrs    map[string]interface{} `json:"attrs,omitempty"`
	Time     time.Time              `json:"ts"`
}

// --- UI -> Client payloads ---

// ConfigUpdatePayload pushes new settings to the client. Endpoints maps a
// service name to an explicit base URL override; an empty string clears the
// override for that service.
type ConfigUpdatePayload struct {
	Endpoints map[string]string `json:"endpoints,omitempty"`
	TTSModel  string            `json:"tts_model,omitempty"`
	TTSVoice  string            `json:"tts_voice,omitempty"`
}

// CancelAllPayload requests the client to abort every in-flight call.
type CancelAllPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ShutdownPayload requests the client to shut down gracefully.
type ShutdownPayload struct {
	Reason       string `json:"reason,omitempty"`
	GraceSeconds int    `json:"grace_seconds,omitempty"`
}

// AckPayload acknowledges a received message.
type AckPayload struct {
	AckedType MessageType `json:"acked_type"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
}
