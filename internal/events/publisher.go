package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing lifecycle events to
// NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// Connect dials NATS, ensures the events stream exists and returns a
// ready Publisher.
func Connect(ctx context.Context, url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamEvents,
		Subjects:  []string{"memcore.events.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating stream %s: %w", StreamEvents, err)
	}

	slog.Info("connected to NATS", "url", url)
	return &Publisher{conn: nc, js: js}, nil
}

// MemorySaved publishes a saved event.
func (p *Publisher) MemorySaved(ctx context.Context, memoryID, ownerID string, emotions []string) error {
	return p.publish(ctx, SubjectMemorySaved, MemorySavedEvent{
		MemoryID:  memoryID,
		OwnerID:   ownerID,
		Emotions:  emotions,
		Timestamp: time.Now().UTC(),
	})
}

// MemoryDeleted publishes a deleted event.
func (p *Publisher) MemoryDeleted(ctx context.Context, memoryID string) error {
	return p.publish(ctx, SubjectMemoryDeleted, MemoryDeletedEvent{
		MemoryID:  memoryID,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Healthy reports whether the NATS connection is active.
func (p *Publisher) Healthy() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		slog.Warn("draining NATS connection", "error", err)
	}
}
