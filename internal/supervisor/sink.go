package supervisor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Sink receives every status report.
type Sink interface {
	Publish(ctx context.Context, st Status) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, st Status) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, st Status) error { return f(ctx, st) }

// StatusChannel is the pub/sub channel a strategy's reports go to.
func StatusChannel(strategy string) string {
	return "updown:status:" + strategy
}

// StatusStream is the durable stream every report is appended to.
const StatusStream = "updown:status"

// BusSink publishes reports as JSON on a SignalBus channel and appends them
// to the status stream.
type BusSink struct {
	bus domain.SignalBus
}

// NewBusSink creates a BusSink.
func NewBusSink(bus domain.SignalBus) *BusSink {
	return &BusSink{bus: bus}
}

// Publish sends st.
func (b *BusSink) Publish(ctx context.Context, st Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("supervisor: encode status: %w", err)
	}
	if err := b.bus.Publish(ctx, StatusChannel(st.Strategy), payload); err != nil {
		return err
	}
	return b.bus.StreamAppend(ctx, StatusStream, payload)
}
