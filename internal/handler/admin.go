package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-slot-scheduler/internal/model"
)

// AdminHandler handles HR commands. Access is checked by the bot's
// admin middleware.
type AdminHandler struct {
	users    Users
	games    Games
	slots    Slots
	bookings Bookings
	loc      *time.Location
	now      func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(users Users, games Games, slots Slots, bookings Bookings, loc *time.Location, now func() time.Time) *AdminHandler {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &AdminHandler{
		users:    users,
		games:    games,
		slots:    slots,
		bookings: bookings,
		loc:      loc,
		now:      now,
	}
}

// HandleLink handles /link <user_id> <telegram_id>.
func (h *AdminHandler) HandleLink(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 2 {
		return c.Reply("❌ Usage: /link <user_id> <telegram_id>\nExample: /link 12 123456789")
	}
	ids, err := parseIDs(args)
	if err != nil {
		return c.Reply(err.Error())
	}

	if err := h.users.LinkTelegram(ctx, ids[0], ids[1]); err != nil {
		return replyErr(c, err)
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("user_id", ids[0]).
		Int64("telegram_id", ids[1]).
		Str("operation", "link").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf("✅ Employee #%d linked to Telegram %d", ids[0], ids[1]))
}

// HandleGenerate handles /generate <game> <from> [to].
func (h *AdminHandler) HandleGenerate(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	name, dates, err := splitTrailingDates(c.Args(), 2, h.loc)
	if err == nil && len(dates) == 0 {
		err = fmt.Errorf("❌ Please give a start date")
	}
	if err != nil {
		return c.Reply(err.Error() + "\nUsage: /generate <game> <YYYY-MM-DD> [YYYY-MM-DD]")
	}
	from, to := dates[0], dates[len(dates)-1]

	game, err := h.games.GetByName(ctx, name)
	if err != nil {
		return replyErr(c, err)
	}
	slots, err := h.slots.GenerateSlots(ctx, game.ID, from, to)
	if err != nil {
		return replyErr(c, err)
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("game_id", game.ID).
		Time("from", from).
		Time("to", to).
		Int("slots", len(slots)).
		Str("operation", "generate").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf("✅ %s has %d slots from %s to %s",
		game.Name, len(slots), from.Format(time.DateOnly), to.Format(time.DateOnly)))
}

// HandleLockSlot handles /lockslot <slot>.
func (h *AdminHandler) HandleLockSlot(c tele.Context) error {
	return h.slotOp(c, "lock", func(ctx context.Context, id int64) (string, error) {
		slot, err := h.bookings.LockSlot(ctx, id, h.now())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("🔒 Slot #%d is locked. New requests wait until it is unlocked.", slot.ID), nil
	})
}

// HandleUnlockSlot handles /unlockslot <slot>.
func (h *AdminHandler) HandleUnlockSlot(c tele.Context) error {
	return h.slotOp(c, "unlock", func(ctx context.Context, id int64) (string, error) {
		slot, res, err := h.bookings.UnlockSlot(ctx, id, h.now())
		if err != nil {
			return "", err
		}
		msg := fmt.Sprintf("🔓 Slot #%d is %s.", slot.ID, slot.Status)
		if res != nil && len(res.AssignedRequests) > 0 {
			msg += fmt.Sprintf(" %d waiting request(s) seated.", len(res.AssignedRequests))
		}
		return msg, nil
	})
}

// HandleCancelSlot handles /cancelslot <slot>.
func (h *AdminHandler) HandleCancelSlot(c tele.Context) error {
	return h.slotOp(c, "cancel", func(ctx context.Context, id int64) (string, error) {
		slot, err := h.bookings.CancelSlot(ctx, id, h.now())
		if err != nil {
			return "", err
		}
		if slot.Status != model.SlotCancelled {
			return "", fmt.Errorf("slot %d still %s", slot.ID, slot.Status)
		}
		return fmt.Sprintf("⚫ Slot #%d cancelled. Players were notified.", slot.ID), nil
	})
}

func (h *AdminHandler) slotOp(c tele.Context, op string, fn func(ctx context.Context, id int64) (string, error)) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply(fmt.Sprintf("❌ Usage: /%sslot <slot>", op))
	}
	id, err := parseID(args[0])
	if err != nil {
		return c.Reply(err.Error())
	}

	msg, err := fn(ctx, id)
	if err != nil {
		return replyErr(c, err)
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("slot_id", id).
		Str("operation", op+"_slot").
		Msg("Admin operation executed")

	return c.Reply(msg)
}
