package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogNotifier writes events to the application log.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, e Event) error {
	log.Info().
		Str("event", string(e.Type)).
		Int64("game_id", e.GameID).
		Int64("slot_id", e.SlotID).
		Int64("request_id", e.RequestID).
		Int64("booking_id", e.BookingID).
		Ints64("user_ids", e.UserIDs).
		Msg("Scheduling event")
	return nil
}
