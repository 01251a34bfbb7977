// Package notify fans lifecycle events out to subscribers.
//
// The subscriber table is built once at startup with a Builder and then
// frozen; components that publish receive the Notifier by injection. Publish
// runs subscribers synchronously in registration order and never fails the
// caller: errors and panics are logged and the next subscriber runs.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ahrav/go-assess/internal/domain"
)

// Publisher is implemented by anything that accepts lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event domain.NotificationEvent)
}

// Subscriber handles one event.
type Subscriber interface {
	Handle(ctx context.Context, event domain.NotificationEvent) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event domain.NotificationEvent) error

// Handle implements Subscriber.
func (f SubscriberFunc) Handle(ctx context.Context, event domain.NotificationEvent) error {
	return f(ctx, event)
}

type registration struct {
	name string
	sub  Subscriber
}

// Builder collects registrations before the table is frozen.
type Builder struct {
	table map[domain.EventTag][]registration
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{table: make(map[domain.EventTag][]registration)}
}

// On registers sub under name for tag. Subscribers for one tag run in the
// order they were registered.
func (b *Builder) On(tag domain.EventTag, name string, sub Subscriber) *Builder {
	b.table[tag] = append(b.table[tag], registration{name: name, sub: sub})
	return b
}

// OnAll registers sub for every tag in tags.
func (b *Builder) OnAll(tags []domain.EventTag, name string, sub Subscriber) *Builder {
	for _, tag := range tags {
		b.On(tag, name, sub)
	}
	return b
}

// Build freezes the table into a Notifier.
func (b *Builder) Build(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	table := make(map[domain.EventTag][]registration, len(b.table))
	for tag, regs := range b.table {
		table[tag] = slices.Clone(regs)
	}
	return &Notifier{table: table, logger: logger.With("component", "notifier")}
}

// Notifier dispatches events using an immutable subscriber table.
type Notifier struct {
	table  map[domain.EventTag][]registration
	logger *slog.Logger
}

var _ Publisher = (*Notifier)(nil)

// Publish calls every subscriber registered for the event's tag.
func (n *Notifier) Publish(ctx context.Context, event domain.NotificationEvent) {
	if n == nil || event == nil {
		return
	}
	for _, reg := range n.table[event.Tag()] {
		if err := n.invoke(ctx, reg, event); err != nil {
			n.logger.Warn("subscriber failed",
				"subscriber", reg.name,
				"event", event.Tag(),
				"subject_id", event.SubjectID(),
				"error", err)
		}
	}
}

func (n *Notifier) invoke(ctx context.Context, reg registration, event domain.NotificationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return reg.sub.Handle(ctx, event)
}

// Subscribers lists subscriber names registered for tag, in order.
func (n *Notifier) Subscribers(tag domain.EventTag) []string {
	regs := n.table[tag]
	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.name
	}
	return names
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.NotificationEvent) {}

// Nop returns a Publisher that discards events.
func Nop() Publisher { return nopPublisher{} }
