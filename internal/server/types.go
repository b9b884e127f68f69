// Package server defines the inbound wire format and utility helpers that are
// reused across client, hub, and lifecycle logic.
package server

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Tyrowin/lanchat/internal/router"
)

// Inbound event types. Message event names match their outbound counterparts.
const (
	EventRegister      = "register"
	EventPublicMessage = router.EventPublicMessage
	EventDirectMessage = router.EventDirectMessage
	EventGroupMessage  = router.EventGroupMessage
	EventFileMessage   = router.EventFileMessage
	EventGroupJoin     = "group-join"
)

// Inbound event errors. They are logged and the event is dropped.
var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// InboundFrame is the JSON frame a client sends over the WebSocket.
type InboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RegisterPayload finalizes a connection's identity. Both fields are optional.
type RegisterPayload struct {
	Name   string `json:"name,omitempty"`
	Device string `json:"deviceName,omitempty"`
}

// TextPayload is the body of a public message.
type TextPayload struct {
	Text string `json:"text"`
}

// DirectPayload addresses a single peer.
type DirectPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// GroupMessagePayload addresses a group.
type GroupMessagePayload struct {
	GroupID string `json:"groupId"`
	Text    string `json:"text"`
}

// FilePayload references a previously uploaded file. An empty To means the
// file is shared publicly.
type FilePayload struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	To       string `json:"to,omitempty"`
}

// GroupJoinPayload joins (and possibly creates) a group.
type GroupJoinPayload struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name,omitempty"`
}

// decodePayload unmarshals a frame's payload into v.
func decodePayload(frame InboundFrame, v any) error {
	if len(frame.Payload) == 0 {
		return ErrMalformedEvent
	}
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}
	return nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
