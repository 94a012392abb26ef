package queue

import (
	"encoding/json"
	"time"

	"bought/internal/transport"
)

// InboundEvent is the queued form of one inbound chat message. The
// consumer re-dispatches it through the session controller.
type InboundEvent struct {
	From      string    `json:"from"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	MediaID   string    `json:"mediaId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInboundEvent wraps a transport message for queueing.
func NewInboundEvent(msg transport.InboundMessage) *InboundEvent {
	return &InboundEvent{
		From:      msg.From,
		Kind:      string(msg.Kind),
		Text:      msg.Text,
		MediaID:   msg.MediaID,
		Timestamp: time.Now(),
	}
}

// Message converts the event back into a transport message.
func (e *InboundEvent) Message() transport.InboundMessage {
	return transport.InboundMessage{
		From:    e.From,
		Kind:    transport.MessageKind(e.Kind),
		Text:    e.Text,
		MediaID: e.MediaID,
	}
}

func (e *InboundEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func InboundEventFromJSON(data []byte) (*InboundEvent, error) {
	var event InboundEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
