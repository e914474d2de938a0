package acr

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestNATSNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATSNotifier(pub, "")

	a := sampleACR("ACR-1", StatusApproved, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, n.Notify(context.Background(), Event{Type: EventReviewed, ACR: a}))

	require.Equal(t, []string{"archgate.acr.reviewed"}, pub.subjects)
	var ev Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &ev))
	assert.Equal(t, EventReviewed, ev.Type)
	assert.Equal(t, "ACR-1", ev.ACR.ID)
	assert.Equal(t, StatusApproved, ev.ACR.Status)
}

func TestNATSNotifier_PublishError(t *testing.T) {
	n := NewNATSNotifier(&fakePublisher{err: errors.New("nats: connection closed")}, "gov.acr")
	assert.Equal(t, "gov.acr.created", n.Subject(EventCreated))

	err := n.Notify(context.Background(), Event{Type: EventCreated, ACR: &ACR{ID: "ACR-1"}})
	assert.ErrorContains(t, err, "connection closed")
}

func TestNotifiers_FanOut(t *testing.T) {
	var seen []EventType
	record := NotifierFunc(func(_ context.Context, ev Event) error {
		seen = append(seen, ev.Type)
		return nil
	})
	broken := NewNATSNotifier(&fakePublisher{err: errors.New("down")}, "")

	err := Notifiers{record, broken, record}.Notify(context.Background(), Event{Type: EventCreated, ACR: &ACR{ID: "ACR-1"}})
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, []EventType{EventCreated, EventCreated}, seen)
}
