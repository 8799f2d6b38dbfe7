package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType represents the type of message being sent.
type MessageType string

const (
	// MessageTypeRequest is a command sent to a coordinator
	MessageTypeRequest MessageType = "request"
	// MessageTypeResponse answers a request
	MessageTypeResponse MessageType = "response"
	// MessageTypeStatus is a periodic state report
	MessageTypeStatus MessageType = "status"
	// MessageTypeEvent is an unsolicited notification
	MessageTypeEvent MessageType = "event"
)

// Message is the envelope for everything published on the bus.
type Message struct {
	// ID is a unique identifier for this message
	ID string `json:"id"`
	// Type indicates the message type
	Type MessageType `json:"type"`
	// Source identifies the sender (e.g., "coordinator:starbook")
	Source string `json:"source"`
	// Timestamp when the message was created
	Timestamp time.Time `json:"timestamp"`
	// CorrelationID links a response to its request
	CorrelationID string `json:"correlation_id,omitempty"`
	// Payload contains the message body as JSON
	Payload json.RawMessage `json:"payload"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(msgType MessageType, source string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return &Message{
		ID:        GenerateMessageID(),
		Type:      msgType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

// NewResponse creates a response envelope correlated to request. A nil request
// produces an uncorrelated response.
func NewResponse(source string, request *Message, response ResponseMessage) (*Message, error) {
	msg, err := NewMessage(MessageTypeResponse, source, response)
	if err != nil {
		return nil, err
	}
	if request != nil {
		msg.CorrelationID = request.ID
	}
	return msg, nil
}

// ParseMessage decodes an envelope. Bare JSON objects without an envelope are
// accepted and treated as the payload of an anonymous request.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if msg.Payload == nil {
		return &Message{Type: MessageTypeRequest, Payload: json.RawMessage(data)}, nil
	}
	return &msg, nil
}

// UnmarshalPayload deserializes the payload into v.
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// ResponseMessage is the payload of a response.
type ResponseMessage struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// GenerateMessageID returns a random UUID.
func GenerateMessageID() string {
	return uuid.NewString()
}
