package domain

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// ChatMessage is an accepted inbound chat submission. Immutable after
// construction; the correlation id stays out of it on purpose, it belongs
// to the delivery layer, not the message.
type ChatMessage struct {
	ID     string    `json:"id"`
	Sender Identity  `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

func NewChatMessage(sender Identity, text string) ChatMessage {
	return ChatMessage{
		ID:     ulid.Make().String(),
		Sender: sender,
		Text:   text,
		SentAt: time.Now().UTC(),
	}
}
