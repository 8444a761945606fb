package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func TestDispatcherDeliversInBackground(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, time.Second)

	d.Dispatch(
		Event{Type: EventRequestAssigned, SlotID: 1},
		Event{Type: EventRequestWaitlisted, SlotID: 1},
	)
	d.Wait()

	require.Len(t, rec.events, 2)
	assert.Equal(t, EventRequestAssigned, rec.events[0].Type)
}

func TestDispatcherSwallowsErrors(t *testing.T) {
	failing := &recorder{err: errors.New("broker down")}
	ok := &recorder{}
	d := NewDispatcher(Multi{failing, ok}, time.Second)

	d.Dispatch(Event{Type: EventBookingCancelled, SlotID: 3})
	d.Wait()

	assert.Len(t, ok.events, 1, "one failing sink does not stop the others")
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() { d.Dispatch(Event{Type: EventSlotCancelled}) })
}

type fakeSender struct {
	sent map[int64]string
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	u := to.(*tele.User)
	f.sent[u.ID] = what.(string)
	return &tele.Message{}, nil
}

type fakeDirectory map[int64]int64

func (f fakeDirectory) TelegramIDs(_ context.Context, ids []int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, id := range ids {
		if tg, ok := f[id]; ok {
			out[id] = tg
		}
	}
	return out, nil
}

func TestTelegramNotifierSkipsUnlinkedUsers(t *testing.T) {
	sender := &fakeSender{sent: map[int64]string{}}
	n := NewTelegramNotifier(sender, fakeDirectory{1: 1001})

	err := n.Notify(context.Background(), Event{
		Type:      EventRequestAssigned,
		SlotID:    5,
		BookingID: 9,
		SlotStart: time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC),
		UserIDs:   []int64{1, 2},
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[1001], "booking #9")
	assert.Contains(t, sender.sent[1001], "Mon 07 Jan 09:00 UTC")
}
