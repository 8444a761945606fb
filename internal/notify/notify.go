// Package notify delivers scheduling events to users and other systems.
// Delivery is fire-and-forget: failures are logged and never change the
// outcome of the operation that produced the event.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType names a scheduling event. Values double as AMQP routing keys.
type EventType string

const (
	EventRequestAssigned   EventType = "slot.request.assigned"
	EventRequestWaitlisted EventType = "slot.request.waitlisted"
	EventRequestRejected   EventType = "slot.request.rejected"
	EventRequestCancelled  EventType = "slot.request.cancelled"
	EventBookingCancelled  EventType = "slot.booking.cancelled"
	EventSlotCancelled     EventType = "slot.cancelled"
)

// Event is one notification. UserIDs are the users to inform.
type Event struct {
	Type       EventType `json:"type"`
	GameID     int64     `json:"gameId"`
	SlotID     int64     `json:"slotId"`
	SlotStart  time.Time `json:"slotStart"`
	RequestID  int64     `json:"requestId,omitempty"`
	BookingID  int64     `json:"bookingId,omitempty"`
	UserIDs    []int64   `json:"userIds"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Notifier delivers a single event.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Multi fans an event out to several notifiers and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher sends events in the background.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Each delivery gets its own
// timeout, detached from the caller's context.
func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	return &Dispatcher{notifier: n, timeout: timeout}
}

// Dispatch queues events for delivery and returns immediately.
func (d *Dispatcher) Dispatch(events ...Event) {
	if d == nil || d.notifier == nil || len(events) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Recovered from panic in notifier")
			}
		}()

		for _, e := range events {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := d.notifier.Notify(ctx, e); err != nil {
				log.Error().Err(err).
					Str("event", string(e.Type)).
					Int64("slot_id", e.SlotID).
					Msg("Failed to deliver notification")
			}
			cancel()
		}
	}()
}

// Wait blocks until queued deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
