package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientStart  MessageType = "start"
	TypeClientAnswer MessageType = "answer"
	TypeClientPing   MessageType = "ping"
	TypeClientEnd    MessageType = "end"

	TypeSessionInfo MessageType = "session_info"
	TypeQuestion    MessageType = "question"
	TypeComplete    MessageType = "complete"
	TypePong        MessageType = "pong"
	TypeErrorEvent  MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientStart requests the first (or pending) question for the connection's
// session.
type ClientStart struct {
	Type MessageType `json:"type"`
}

// ClientAnswer submits the answer to the pending question.
type ClientAnswer struct {
	Type       MessageType `json:"type"`
	QuestionID int         `json:"question_id"`
	AnswerText string      `json:"answer_text"`
}

type ClientPing struct {
	Type MessageType `json:"type"`
	TSMs int64       `json:"ts_ms"`
}

type ClientEnd struct {
	Type MessageType `json:"type"`
}

// ServerEnvelope wraps every outbound message with its type; Payload holds
// the type-specific body.
type ServerEnvelope struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

type Pong struct {
	Type MessageType `json:"type"`
	TSMs int64       `json:"ts_ms"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientStart:
		var msg ClientStart
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClientAnswer:
		var msg ClientAnswer
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.QuestionID <= 0 || msg.AnswerText == "" {
			return nil, errors.New("invalid answer")
		}
		return msg, nil
	case TypeClientPing:
		var msg ClientPing
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClientEnd:
		var msg ClientEnd
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
