package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/service"
)

// Users resolves chat senders to employees.
type Users interface {
	ByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	LinkTelegram(ctx context.Context, userID, telegramID int64) error
}

// Games looks games up by name.
type Games interface {
	GetByName(ctx context.Context, name string) (*model.Game, error)
	List(ctx context.Context) ([]*model.Game, error)
}

// Interests records interest flags.
type Interests interface {
	SetInterest(ctx context.Context, userID, gameID int64, interested bool) (*model.UserGameInterest, error)
}

// Slots generates and lists slots.
type Slots interface {
	GenerateSlots(ctx context.Context, gameID int64, startDate, endDate time.Time) ([]*model.GameSlot, error)
	GetSlot(ctx context.Context, slotID int64) (*model.SlotAvailability, error)
	GetSlotsForDate(ctx context.Context, gameID int64, date time.Time) ([]*model.SlotAvailability, error)
}

// Bookings runs requests, cancellations and slot holds.
type Bookings interface {
	RequestSlot(ctx context.Context, in service.RequestSlotInput) (*service.RequestSlotResult, error)
	CancelRequest(ctx context.Context, requestID, callerID int64, now time.Time) (*service.CancelResult, error)
	CancelBooking(ctx context.Context, bookingID, callerID int64, now time.Time) (*service.CancelResult, error)
	LockSlot(ctx context.Context, slotID int64, now time.Time) (*model.GameSlot, error)
	UnlockSlot(ctx context.Context, slotID int64, now time.Time) (*model.GameSlot, *model.AllocationResult, error)
	CancelSlot(ctx context.Context, slotID int64, now time.Time) (*model.GameSlot, error)
	GetMyBookings(ctx context.Context, userID int64, from, to time.Time) ([]*model.GameBooking, error)
	GetMyRequests(ctx context.Context, userID int64, from, to time.Time) ([]*model.GameSlotRequest, error)
}

// listWindow is how far ahead /mybookings and /myrequests look.
const listWindow = 30 * 24 * time.Hour

const notLinkedText = "🔗 Your Telegram account is not linked to an employee yet. Ask HR to link it."

// ScheduleHandler handles the employee-facing commands.
type ScheduleHandler struct {
	users     Users
	games     Games
	interests Interests
	slots     Slots
	bookings  Bookings
	loc       *time.Location
	now       func() time.Time
}

// NewScheduleHandler creates a new ScheduleHandler. now defaults to
// time.Now and loc to UTC.
func NewScheduleHandler(users Users, games Games, interests Interests, slots Slots, bookings Bookings, loc *time.Location, now func() time.Time) *ScheduleHandler {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleHandler{
		users:     users,
		games:     games,
		interests: interests,
		slots:     slots,
		bookings:  bookings,
		loc:       loc,
		now:       now,
	}
}

// replyErr renders a service error for the chat.
func replyErr(c tele.Context, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		log.Error().Err(err).Str("command", c.Text()).Msg("Command failed")
	}
	return c.Reply("❌ " + apperr.PublicMessage(err))
}

// caller resolves the sender. A nil user with a nil error means the
// sender was already answered.
func (h *ScheduleHandler) caller(ctx context.Context, c tele.Context) (*model.User, error) {
	sender := c.Sender()
	if sender == nil {
		return nil, nil
	}
	u, err := h.users.ByTelegramID(ctx, sender.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, c.Reply(notLinkedText)
	}
	if err != nil {
		return nil, replyErr(c, err)
	}
	return u, nil
}

// HandleStart handles /start and /help.
func (h *ScheduleHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	u, err := h.users.ByTelegramID(ctx, sender.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return c.Reply(fmt.Sprintf("👋 Hi! Your Telegram ID is %d.\n%s\n\n%s", sender.ID, notLinkedText, helpText))
	}
	if err != nil {
		return replyErr(c, err)
	}
	return c.Reply(fmt.Sprintf("👋 Hi %s! You are employee #%d.\n\n%s", u.Name, u.ID, helpText))
}

// HandleGames handles /games.
func (h *ScheduleHandler) HandleGames(c tele.Context) error {
	games, err := h.games.List(context.Background())
	if err != nil {
		return replyErr(c, err)
	}
	return c.Reply(FormatGames(games))
}

// HandleInterest handles /interest <game> on|off.
func (h *ScheduleHandler) HandleInterest(c tele.Context) error {
	ctx := context.Background()
	u, err := h.caller(ctx, c)
	if u == nil {
		return err
	}

	name, on, err := splitToggle(c.Args())
	if err != nil {
		return c.Reply(err.Error() + "\nUsage: /interest <game> on|off")
	}
	game, err := h.games.GetByName(ctx, name)
	if err != nil {
		return replyErr(c, err)
	}
	if _, err := h.interests.SetInterest(ctx, u.ID, game.ID, on); err != nil {
		return replyErr(c, err)
	}

	if on {
		return c.Reply(fmt.Sprintf("✅ You are now interested in %s", game.Name))
	}
	return c.Reply(fmt.Sprintf("👌 You are no longer interested in %s", game.Name))
}

// HandleSlots handles /slots <game> [YYYY-MM-DD].
func (h *ScheduleHandler) HandleSlots(c tele.Context) error {
	ctx := context.Background()

	name, dates, err := splitTrailingDates(c.Args(), 1, h.loc)
	if err != nil {
		return c.Reply(err.Error() + "\nUsage: /slots <game> [YYYY-MM-DD]")
	}
	day := h.now().In(h.loc)
	if len(dates) == 1 {
		day = dates[0]
	}

	game, err := h.games.GetByName(ctx, name)
	if err != nil {
		return replyErr(c, err)
	}
	slots, err := h.slots.GetSlotsForDate(ctx, game.ID, day)
	if err != nil {
		return replyErr(c, err)
	}
	return c.Reply(FormatSlots(game, day, slots, h.loc))
}

// HandleRequest handles /request <slot> [user ...].
func (h *ScheduleHandler) HandleRequest(c tele.Context) error {
	ctx := context.Background()
	u, err := h.caller(ctx, c)
	if u == nil {
		return err
	}

	args := c.Args()
	if len(args) == 0 {
		return c.Reply("❌ Usage: /request <slot> [user ...]")
	}
	ids, err := parseIDs(args)
	if err != nil {
		return c.Reply(err.Error())
	}

	slot, err := h.slots.GetSlot(ctx, ids[0])
	if err != nil {
		return replyErr(c, err)
	}
	res, err := h.bookings.RequestSlot(ctx, service.RequestSlotInput{
		GameID:         slot.GameID,
		SlotID:         slot.ID,
		RequesterID:    u.ID,
		ParticipantIDs: ids[1:],
		Now:            h.now(),
	})
	if err != nil {
		return replyErr(c, err)
	}
	return c.Reply(FormatRequestResult(res.Request, res.Allocation))
}

// HandleCancelRequest handles /cancelrequest <id>.
func (h *ScheduleHandler) HandleCancelRequest(c tele.Context) error {
	return h.cancel(c, "request", h.bookings.CancelRequest)
}

// HandleCancelBooking handles /cancelbooking <id>.
func (h *ScheduleHandler) HandleCancelBooking(c tele.Context) error {
	return h.cancel(c, "booking", h.bookings.CancelBooking)
}

type cancelFunc func(ctx context.Context, id, callerID int64, now time.Time) (*service.CancelResult, error)

func (h *ScheduleHandler) cancel(c tele.Context, what string, fn cancelFunc) error {
	ctx := context.Background()
	u, err := h.caller(ctx, c)
	if u == nil {
		return err
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply(fmt.Sprintf("❌ Usage: /cancel%s <id>", what))
	}
	id, err := parseID(args[0])
	if err != nil {
		return c.Reply(err.Error())
	}

	res, err := fn(ctx, id, u.ID, h.now())
	if err != nil {
		return replyErr(c, err)
	}

	msg := fmt.Sprintf("🚫 %s #%d cancelled.", capitalize(what), id)
	if res.Allocation != nil && len(res.Allocation.AssignedRequests) > 0 {
		msg += fmt.Sprintf(" Seats went to %d waiting request(s).", len(res.Allocation.AssignedRequests))
	}
	return c.Reply(msg)
}

// HandleMyBookings handles /mybookings.
func (h *ScheduleHandler) HandleMyBookings(c tele.Context) error {
	ctx := context.Background()
	u, err := h.caller(ctx, c)
	if u == nil {
		return err
	}
	from := h.now()
	bookings, err := h.bookings.GetMyBookings(ctx, u.ID, from, from.Add(listWindow))
	if err != nil {
		return replyErr(c, err)
	}
	return c.Reply(FormatBookings(bookings))
}

// HandleMyRequests handles /myrequests.
func (h *ScheduleHandler) HandleMyRequests(c tele.Context) error {
	ctx := context.Background()
	u, err := h.caller(ctx, c)
	if u == nil {
		return err
	}
	from := h.now()
	reqs, err := h.bookings.GetMyRequests(ctx, u.ID, from, from.Add(listWindow))
	if err != nil {
		return replyErr(c, err)
	}
	return c.Reply(FormatRequests(reqs))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
