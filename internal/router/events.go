package router

import (
	"encoding/json"

	"github.com/Tyrowin/lanchat/internal/registry"
)

// Outbound event types.
const (
	EventRosterUpdate  = "roster-update"
	EventGroupUpdate   = "group-update"
	EventPublicMessage = "public-message"
	EventDirectMessage = "direct-message"
	EventGroupMessage  = "group-message"
	EventFileMessage   = "file-message"
)

// Envelope is the JSON frame written to a connection.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// PublicMessage is delivered to every live connection.
type PublicMessage struct {
	From      registry.Identity `json:"from"`
	Text      string            `json:"text"`
	Timestamp int64             `json:"timestamp"`
}

// DirectMessage is delivered to the sender and one peer.
type DirectMessage struct {
	From      registry.Identity `json:"from"`
	To        string            `json:"to"`
	Text      string            `json:"text"`
	Timestamp int64             `json:"timestamp"`
}

// GroupMessage is delivered to the members of a group.
type GroupMessage struct {
	From      registry.Identity `json:"from"`
	GroupID   string            `json:"groupId"`
	Text      string            `json:"text"`
	Timestamp int64             `json:"timestamp"`
}

// FileMessage carries a reference to a previously uploaded file. Private is
// set when the message was routed to a single peer.
type FileMessage struct {
	From      registry.Identity `json:"from"`
	FileURL   string            `json:"fileUrl"`
	FileName  string            `json:"fileName"`
	Private   bool              `json:"private"`
	To        string            `json:"to,omitempty"`
	GroupID   string            `json:"groupId,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

func encode(eventType string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Type: eventType, Payload: payload})
}
