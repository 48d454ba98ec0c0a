// Package events announces admissions and changes to whoever is listening:
// the log, a Redis channel and an optional signed webhook.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Type string

const (
	TypeAdmit  Type = "admit"
	TypeChange Type = "change"
)

// Event carries the serialised episode before and after the action. Pre is
// nil for admissions.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Pre       map[string]interface{} `json:"pre,omitempty"`
	Post      map[string]interface{} `json:"post"`
	Timestamp time.Time              `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) Publish(_ context.Context, e Event) error {
	evt := p.Logger.Info().
		Str("event_id", e.ID).
		Str("event_type", string(e.Type)).
		Time("timestamp", e.Timestamp)
	if id, ok := e.Post["id"]; ok {
		evt = evt.Interface("episode_id", id)
	}
	evt.Msg("domain event")
	return nil
}

// Observer is told about every publish attempt.
type Observer interface {
	EventPublished(eventType string, err error)
}

// Bus is what request handlers use. Publishing failures are logged and never
// returned.
type Bus struct {
	pub      Publisher
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
}

func NewBus(pub Publisher, logger zerolog.Logger, observer Observer) *Bus {
	return &Bus{pub: pub, logger: logger, observer: observer, now: time.Now}
}

func (b *Bus) Admit(ctx context.Context, post map[string]interface{}) {
	b.publish(ctx, TypeAdmit, nil, post)
}

func (b *Bus) Change(ctx context.Context, pre, post map[string]interface{}) {
	b.publish(ctx, TypeChange, pre, post)
}

func (b *Bus) publish(ctx context.Context, t Type, pre, post map[string]interface{}) {
	if b == nil || b.pub == nil {
		return
	}
	e := Event{
		ID:        uuid.NewString(),
		Type:      t,
		Pre:       pre,
		Post:      post,
		Timestamp: b.now().UTC(),
	}
	err := b.pub.Publish(ctx, e)
	if err != nil {
		b.logger.Error().Err(err).Str("event_id", e.ID).Str("event_type", string(t)).Msg("failed to publish event")
	}
	if b.observer != nil {
		b.observer.EventPublished(string(t), err)
	}
}
