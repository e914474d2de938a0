package acr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// EventType names an ACR lifecycle event.
type EventType string

const (
	EventCreated  EventType = "created"
	EventReviewed EventType = "reviewed"
)

// Event is published after an ACR is created or reviewed.
type Event struct {
	Type       EventType `json:"type"`
	ACR        *ACR      `json:"acr"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier receives lifecycle events. Delivery failures never fail the
// workflow operation that produced them.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Publisher is the subset of *nats.Conn used by NATSNotifier.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes events as JSON on "<prefix>.<type>".
type NATSNotifier struct {
	pub    Publisher
	prefix string
}

// DefaultSubjectPrefix is the subject prefix used when none is configured.
const DefaultSubjectPrefix = "archgate.acr"

// NewNATSNotifier publishes through pub.
func NewNATSNotifier(pub Publisher, prefix string) *NATSNotifier {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSNotifier{pub: pub, prefix: prefix}
}

// ConnectNATS dials url and returns a notifier together with the connection,
// which the caller must close.
func ConnectNATS(url, prefix string) (*NATSNotifier, *nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("archgate"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSNotifier(conn, prefix), conn, nil
}

// Subject returns the subject an event type is published on.
func (n *NATSNotifier) Subject(t EventType) string {
	return n.prefix + "." + string(t)
}

func (n *NATSNotifier) Notify(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode acr event: %w", err)
	}
	if err := n.pub.Publish(n.Subject(ev.Type), data); err != nil {
		return fmt.Errorf("publish acr event: %w", err)
	}
	return nil
}

// Notifiers fans an event out to every notifier, joining their errors.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }
