// Package notify defines the Sink boundary the decision layer
// publishes severity changes through, plus a NATS-backed implementation.
// Alert routing (what subscribes, email/SMS/whatever) is explicitly out
// of scope; the sink only publishes.
package notify

import (
	"context"

	"github.com/ghostwatch/ghostwatchd/internal/device"
)

// Event is one severity-change notification.
type Event struct {
	Identity device.Identity `json:"identity"`
	OSName   string          `json:"os_name"`
	Status   device.Status   `json:"status"`
	Reasons  []string        `json:"reasons"`
}

// Sink publishes Events. It must not block the scan engine's decision
// path for long; implementations should treat publish failures as
// best-effort and never propagate them into GDC or scoring state.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// NoopSink discards every event. It is the default sink when no
// notification transport is configured.
type NoopSink struct{}

func (NoopSink) Publish(context.Context, Event) error { return nil }
