package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
)

// NATSMirror forwards broadcast events onto a NATS subject as JSON, letting
// external consumers (dashboards, agents) follow generation progress without
// holding an HTTP event stream open. It is an ordinary subscriber: when it
// falls behind it loses events exactly like any other.
type NATSMirror struct {
	conn    *nats.Conn
	subject string
}

// NewNATSMirror connects to the given NATS URL.
func NewNATSMirror(url, subject string) (*NATSMirror, error) {
	if subject == "" {
		return nil, ferrors.ValidationError("nats subject is required").Build()
	}
	conn, err := nats.Connect(url, nats.Name("autodoc-event-mirror"))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "connect to nats").
			WithContext("url", url).Build()
	}
	return &NATSMirror{conn: conn, subject: subject}, nil
}

// Run subscribes to the broadcaster and forwards events until ctx is
// cancelled. Blocking; callers run it in its own goroutine.
func (m *NATSMirror) Run(ctx context.Context, b *Broadcaster) {
	sub := b.Subscribe(DefaultBuffer)
	defer sub.Unsubscribe()

	slog.Info("NATS event mirror started", "subject", m.subject)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			m.forward(evt)
		}
	}
}

func (m *NATSMirror) forward(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("Failed to encode event for NATS", "error", err)
		return
	}
	if err := m.conn.Publish(m.subject, payload); err != nil {
		slog.Warn("Failed to publish event to NATS", "subject", m.subject, "error", err)
	}
}

// Close drains and closes the NATS connection.
func (m *NATSMirror) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
