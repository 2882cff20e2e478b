package statuschannel

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the kind of frame carried on the status stream
type MessageType string

const (
	// MessageTypeUpdate carries a project processing status update
	MessageTypeUpdate MessageType = "project_update"

	// MessageTypeError carries a backend-reported error description
	MessageTypeError MessageType = "error"

	// MessageTypePong acknowledges a liveness probe sent by the client
	MessageTypePong MessageType = "pong"
)

// pingFrame is the outbound liveness probe; the backend answers with a pong
var pingFrame = []byte(`{"type":"ping"}`)

// ProjectStatus is the processing state reported for a project
type ProjectStatus string

const (
	StatusQueued     ProjectStatus = "queued"
	StatusProcessing ProjectStatus = "processing"
	StatusCompleted  ProjectStatus = "completed"
	StatusFailed     ProjectStatus = "failed"
)

// IsCompleted reports whether the status is a successful terminal state.
// The backend has emitted "done" and "succeeded" for completed projects
// across API versions, so those are accepted as aliases.
func (s ProjectStatus) IsCompleted() bool {
	switch s {
	case StatusCompleted, "done", "succeeded":
		return true
	}
	return false
}

// IsFailed reports whether the status is the failed terminal state
func (s ProjectStatus) IsFailed() bool {
	return s == StatusFailed
}

// IsTerminal reports whether no further updates are expected for this status
func (s ProjectStatus) IsTerminal() bool {
	return s.IsCompleted() || s.IsFailed()
}

// StatusMessage is one parsed frame received from the status stream.
// The populated fields depend on Type: update frames carry the project
// fields, error frames carry Error, and pong frames carry nothing.
type StatusMessage struct {
	Type MessageType `json:"type"`

	// Fields populated for MessageTypeUpdate
	ProjectID    string         `json:"project_id,omitempty"`
	Status       ProjectStatus  `json:"status,omitempty"`
	Progress     float64        `json:"progress,omitempty"`
	CurrentStep  string         `json:"current_step,omitempty"`
	StepDetails  map[string]any `json:"step_details,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`

	// Field populated for MessageTypeError
	Error string `json:"error,omitempty"`
}

// Processing reports whether the message is an update for a project that has
// not yet reached a terminal state
func (m *StatusMessage) Processing() bool {
	return m != nil && m.Type == MessageTypeUpdate && !m.Status.IsTerminal()
}

// Completed reports whether the message is an update for a successfully
// finished project
func (m *StatusMessage) Completed() bool {
	return m != nil && m.Type == MessageTypeUpdate && m.Status.IsCompleted()
}

// Failed reports whether the message is an update for a failed project
func (m *StatusMessage) Failed() bool {
	return m != nil && m.Type == MessageTypeUpdate && m.Status.IsFailed()
}

// ParseMessage decodes one inbound frame.
// Returns an error for invalid JSON, a missing type tag, or a type the
// client does not recognize; callers treat such frames as diagnostics and
// leave channel state untouched.
func ParseMessage(data []byte) (*StatusMessage, error) {
	var msg StatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid status frame: %w", err)
	}

	switch msg.Type {
	case MessageTypeUpdate, MessageTypeError, MessageTypePong:
		return &msg, nil
	case "":
		return nil, fmt.Errorf("status frame missing type tag")
	default:
		return nil, fmt.Errorf("unknown status frame type: %s", msg.Type)
	}
}
