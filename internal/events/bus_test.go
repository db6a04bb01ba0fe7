package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/events"
)

type captureStore struct {
	events []events.Event
	err    error
}

func (s *captureStore) InsertEvent(_ context.Context, ev events.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	store := &captureStore{}
	notifier := &captureNotifier{}
	fixed := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
		Now:       func() time.Time { return fixed },
	}

	ev, err := bus.Emit(context.Background(), events.TopicBillCreated, "42", map[string]any{"billNumber": "SB/2026/00001"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, ev.ID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.JSONEq(t, `{"billNumber":"SB/2026/00001"}`, string(ev.Payload))
	require.Len(t, store.events, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, ev.ID, notifier.events[0].ID)

	var decoded struct {
		BillNumber string `json:"billNumber"`
	}
	require.NoError(t, ev.Decode(&decoded))
	require.Equal(t, "SB/2026/00001", decoded.BillNumber)
}

func TestEmitWithoutStoreStillNotifies(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), events.TopicBillDeleted, "7", nil)
	require.NoError(t, err)
	require.Len(t, notifier.events, 1)
	require.JSONEq(t, `{}`, string(notifier.events[0].Payload))
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), " ", "1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicBillCreated, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicBillCreated, "1", "not json")
	require.Error(t, err)
}

func TestEmitStoreFailureStopsFanOut(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &captureStore{err: errors.New("db down")}, Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), events.TopicBillUpdated, "1", nil)
	require.Error(t, err)
	require.Empty(t, notifier.events)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{
		events.NotifierFunc(func(context.Context, events.Event) error { return boom }),
		ok,
	}}
	ev, err := bus.Emit(context.Background(), events.TopicBillCreated, "1", nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, events.TopicBillCreated, ev.Topic)
	require.Len(t, ok.events, 1)
}
