// Package protocol defines the versioned wire events exchanged with
// clients and the correlation rules for message delivery.
package protocol

import (
	"encoding/json"

	"github.com/parleychat/parley/internal/domain"
	"github.com/parleychat/parley/internal/presence"
)

// Version stamps every outbound event.
const Version = 1

const (
	TypeMessageSend = "client/message.send"

	TypePresence   = "server/presence"
	TypeMessageNew = "server/message.new"
	TypeError      = "server/error"
)

// ServerEvent is a closed sum of outbound events. The marker method keeps
// the set exhaustive at every consumption site.
type ServerEvent interface {
	serverEvent()
}

type PresenceEvent struct {
	Type     string            `json:"type"`
	V        int               `json:"v"`
	Snapshot presence.Snapshot `json:"snapshot"`
}

func (PresenceEvent) serverEvent() {}

func NewPresenceEvent(snap presence.Snapshot) PresenceEvent {
	return PresenceEvent{Type: TypePresence, V: Version, Snapshot: snap}
}

// MessageNewEvent delivers one chat message. The sender variant carries
// the client-assigned correlation id; the public variant never does.
type MessageNewEvent struct {
	Type            string             `json:"type"`
	V               int                `json:"v"`
	Message         domain.ChatMessage `json:"message"`
	ClientMessageID string             `json:"clientMessageId,omitempty"`
}

func (MessageNewEvent) serverEvent() {}

// Soft-notice error codes. A distinct event type so a notice can never be
// confused with a broadcast message.
const (
	CodeRateLimited    = "rate_limited"
	CodeMessageBlocked = "message_blocked"
	CodeInvalidPayload = "invalid_payload"
)

type ErrorEvent struct {
	Type    string `json:"type"`
	V       int    `json:"v"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (ErrorEvent) serverEvent() {}

func NewErrorEvent(code, message string) ErrorEvent {
	return ErrorEvent{Type: TypeError, V: Version, Code: code, Message: message}
}

// Encode serializes an event for the wire.
func Encode(ev ServerEvent) ([]byte, error) {
	return json.Marshal(ev)
}
