package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NatsSink publishes Events as JSON to a fixed NATS subject.
type NatsSink struct {
	conn    *nats.Conn
	subject string
}

// NewNatsSink connects to url and returns a Sink publishing to subject.
// The connection is owned by the returned sink; call Close on shutdown.
func NewNatsSink(url, subject string) (*NatsSink, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to NATS: %w", err)
	}
	return &NatsSink{conn: conn, subject: subject}, nil
}

// Publish marshals event and publishes it to the configured subject. ctx
// is accepted for interface symmetry; nats.Conn.Publish has no context
// parameter of its own.
func (s *NatsSink) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	return s.conn.Publish(s.subject, payload)
}

// Close releases the underlying NATS connection.
func (s *NatsSink) Close() {
	s.conn.Close()
}
