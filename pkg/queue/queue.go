package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher enqueues typed messages.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload any) error
}

// Message is the envelope stored in the list.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode unmarshals the payload of m into T.
func Decode[T any](m Message) (*T, error) {
	var out T
	if len(m.Payload) == 0 {
		return nil, fmt.Errorf("message %s: empty payload", m.ID)
	}
	if err := json.Unmarshal(m.Payload, &out); err != nil {
		return nil, fmt.Errorf("message %s: decode %s: %w", m.ID, m.Type, err)
	}
	return &out, nil
}
