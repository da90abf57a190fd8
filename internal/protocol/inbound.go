package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
)

// MessageSend is the payload of a client/message.send frame.
type MessageSend struct {
	Text            string `json:"text"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// ClientFrame is a closed sum of inbound frames.
type ClientFrame interface {
	clientFrame()
}

func (MessageSend) clientFrame() {}

// DecodeClientFrame peeks at the envelope type, then decodes the typed
// payload. A frame with no recognizable type, invalid JSON, or an empty
// text is a protocol error.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedFrame
	}
	switch gjson.GetBytes(data, "type").String() {
	case TypeMessageSend:
		var f MessageSend
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, ErrMalformedFrame
		}
		if strings.TrimSpace(f.Text) == "" {
			return nil, ErrMalformedFrame
		}
		return f, nil
	default:
		return nil, ErrUnknownType
	}
}
