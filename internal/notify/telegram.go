package notify

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"
)

// Sender is the part of *tele.Bot used for direct messages.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// ChatDirectory resolves users to linked Telegram accounts.
type ChatDirectory interface {
	TelegramIDs(ctx context.Context, userIDs []int64) (map[int64]int64, error)
}

// TelegramNotifier sends a direct message to every linked user of an
// event. Unlinked users are skipped.
type TelegramNotifier struct {
	sender    Sender
	directory ChatDirectory
}

// NewTelegramNotifier creates a TelegramNotifier.
func NewTelegramNotifier(sender Sender, directory ChatDirectory) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, directory: directory}
}

// Notify implements Notifier.
func (n *TelegramNotifier) Notify(ctx context.Context, e Event) error {
	if len(e.UserIDs) == 0 {
		return nil
	}

	chats, err := n.directory.TelegramIDs(ctx, e.UserIDs)
	if err != nil {
		return err
	}

	text := Message(e)
	var errs []error
	for _, uid := range e.UserIDs {
		chatID, ok := chats[uid]
		if !ok {
			continue
		}
		if _, err := n.sender.Send(&tele.User{ID: chatID}, text); err != nil {
			errs = append(errs, fmt.Errorf("send to user %d: %w", uid, err))
		}
	}
	return errors.Join(errs...)
}

// Message renders the user-facing text for an event.
func Message(e Event) string {
	when := e.SlotStart.UTC().Format("Mon 02 Jan 15:04 UTC")

	switch e.Type {
	case EventRequestAssigned:
		return fmt.Sprintf("✅ You're in! Slot #%d on %s is booked (booking #%d).", e.SlotID, when, e.BookingID)
	case EventRequestWaitlisted:
		return fmt.Sprintf("⏳ Slot #%d on %s is full. Request #%d is on the waitlist.", e.SlotID, when, e.RequestID)
	case EventRequestRejected:
		return fmt.Sprintf("❌ Request #%d for slot #%d was rejected: everyone is already seated.", e.RequestID, e.SlotID)
	case EventRequestCancelled:
		return fmt.Sprintf("🚫 Request #%d for slot #%d on %s was cancelled.", e.RequestID, e.SlotID, when)
	case EventBookingCancelled:
		return fmt.Sprintf("🚫 Booking #%d for slot #%d on %s was cancelled.", e.BookingID, e.SlotID, when)
	case EventSlotCancelled:
		return fmt.Sprintf("🚫 Slot #%d on %s was cancelled by HR.", e.SlotID, when)
	default:
		return fmt.Sprintf("Slot #%d: %s", e.SlotID, e.Type)
	}
}
