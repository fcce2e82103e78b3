// Package notify delivers operator alerts (fills, exits, stuck positions,
// halts) to Telegram and Discord. Delivery runs on its own goroutine so a slow
// chat API never stalls the trading loop.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// defaultQueueSize bounds the number of undelivered alerts.
const defaultQueueSize = 64

// drainTimeout bounds delivery of queued alerts after shutdown.
const drainTimeout = 5 * time.Second

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type note struct {
	event   string
	title   string
	message string
}

// Notifier filters alerts by event type and fans them out to every sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan note
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan note, defaultQueueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify queues an alert. It never blocks; when the queue is full the alert is
// dropped and logged.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	select {
	case n.queue <- note{event: event, title: title, message: message}:
	default:
		n.logger.WarnContext(ctx, "alert queue full, dropping", slog.String("event", event), slog.String("title", title))
	}
	return nil
}

// Run delivers queued alerts until ctx is cancelled, then flushes what is
// left within drainTimeout.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n.drain()
			return ctx.Err()
		case m := <-n.queue:
			_ = n.dispatch(ctx, m.title, m.message)
		}
	}
}

func (n *Notifier) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case m := <-n.queue:
			_ = n.dispatch(ctx, m.title, m.message)
		default:
			return
		}
	}
}

// dispatch sends to every sender; one failing sender does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent", slog.String("sender", s.Name()), slog.String("title", title))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

var _ domain.Alerter = (*Notifier)(nil)
