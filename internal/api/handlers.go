package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/service"
)

// defaultWindow is the span of /me listings when no bounds are given.
const defaultWindow = 30 * 24 * time.Hour

type gameRequest struct {
	Name                string `json:"name" binding:"required"`
	OperatingStart      string `json:"operatingStart" binding:"required"`
	OperatingEnd        string `json:"operatingEnd" binding:"required"`
	SlotDurationMinutes int    `json:"slotDurationMinutes" binding:"required"`
	MaxPlayersPerSlot   int    `json:"maxPlayersPerSlot" binding:"required"`
}

func (g gameRequest) input() (service.GameInput, error) {
	start, err := parseClock(g.OperatingStart)
	if err != nil {
		return service.GameInput{}, err
	}
	end, err := parseClock(g.OperatingEnd)
	if err != nil {
		return service.GameInput{}, err
	}
	return service.GameInput{
		Name:                g.Name,
		OperatingStart:      start,
		OperatingEnd:        end,
		SlotDurationMinutes: g.SlotDurationMinutes,
		MaxPlayersPerSlot:   g.MaxPlayersPerSlot,
	}, nil
}

type gameResponse struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	OperatingStart      string    `json:"operatingStart"`
	OperatingEnd        string    `json:"operatingEnd"`
	SlotDurationMinutes int       `json:"slotDurationMinutes"`
	MaxPlayersPerSlot   int       `json:"maxPlayersPerSlot"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func toGameResponse(g *model.Game) gameResponse {
	return gameResponse{
		ID:                  g.ID,
		Name:                g.Name,
		OperatingStart:      clock(g.OperatingStart),
		OperatingEnd:        clock(g.OperatingEnd),
		SlotDurationMinutes: g.SlotDurationMinutes,
		MaxPlayersPerSlot:   g.MaxPlayersPerSlot,
		CreatedAt:           g.CreatedAt,
		UpdatedAt:           g.UpdatedAt,
	}
}

func (r *Router) registerUser(c *gin.Context) {
	var body struct {
		Name       string `json:"name" binding:"required"`
		Email      string `json:"email"`
		TelegramID *int64 `json:"telegramId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, apperr.Invalid("invalid body: %v", err))
		return
	}
	u, err := r.svc.Users.Register(c.Request.Context(), body.Name, body.Email, body.TelegramID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (r *Router) getUser(c *gin.Context) {
	id, err := pathID(c, "userID")
	if err != nil {
		fail(c, err)
		return
	}
	u, err := r.svc.Users.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (r *Router) linkTelegram(c *gin.Context) {
	id, err := pathID(c, "userID")
	if err != nil {
		fail(c, err)
		return
	}
	var body struct {
		TelegramID int64 `json:"telegramId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, apperr.Invalid("invalid body: %v", err))
		return
	}
	if err := r.svc.Users.LinkTelegram(c.Request.Context(), id, body.TelegramID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) bindGame(c *gin.Context) (service.GameInput, bool) {
	var req gameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Invalid("invalid body: %v", err))
		return service.GameInput{}, false
	}
	in, err := req.input()
	if err != nil {
		fail(c, err)
		return service.GameInput{}, false
	}
	return in, true
}

func (r *Router) createGame(c *gin.Context) {
	in, ok := r.bindGame(c)
	if !ok {
		return
	}
	g, err := r.svc.Games.Create(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toGameResponse(g))
}

func (r *Router) updateGame(c *gin.Context) {
	id, err := pathID(c, "gameID")
	if err != nil {
		fail(c, err)
		return
	}
	in, ok := r.bindGame(c)
	if !ok {
		return
	}
	g, err := r.svc.Games.Update(c.Request.Context(), id, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toGameResponse(g))
}

func (r *Router) getGame(c *gin.Context) {
	id, err := pathID(c, "gameID")
	if err != nil {
		fail(c, err)
		return
	}
	g, err := r.svc.Games.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toGameResponse(g))
}

func (r *Router) listGames(c *gin.Context) {
	games, err := r.svc.Games.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gameResponse, len(games))
	for i, g := range games {
		out[i] = toGameResponse(g)
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) setInterest(c *gin.Context) {
	gameID, err := pathID(c, "gameID")
	if err != nil {
		fail(c, err)
		return
	}
	var body struct {
		Interested *bool `json:"interested" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, apperr.Invalid("invalid body: %v", err))
		return
	}
	in, err := r.svc.Interests.SetInterest(c.Request.Context(), callerID(c), gameID, *body.Interested)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, in)
}

func (r *Router) generateSlots(c *gin.Context) {
	gameID, err := pathID(c, "gameID")
	if err != nil {
		fail(c, err)
		return
	}
	var body struct {
		StartDate string `json:"startDate" binding:"required"`
		EndDate   string `json:"endDate" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, apperr.Invalid("invalid body: %v", err))
		return
	}
	start, err := parseDate(body.StartDate, r.loc)
	if err != nil {
		fail(c, err)
		return
	}
	end, err := parseDate(body.EndDate, r.loc)
	if err != nil {
		fail(c, err)
		return
	}

	slots, err := r.svc.Slots.GenerateSlots(c.Request.Context(), gameID, start, end)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

func (r *Router) slotsForDate(c *gin.Context) {
	gameID, err := pathID(c, "gameID")
	if err != nil {
		fail(c, err)
		return
	}
	date := r.now().In(r.loc)
	if q := c.Query("date"); q != "" {
		if date, err = parseDate(q, r.loc); err != nil {
			fail(c, err)
			return
		}
	}
	slots, err := r.svc.Slots.GetSlotsForDate(c.Request.Context(), gameID, date)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

func (r *Router) upcomingSlots(c *gin.Context) {
	gameID, err := pathID(c, "gameID")
	if err != nil {
		fail(c, err)
		return
	}
	from, to, err := r.window(c)
	if err != nil {
		fail(c, err)
		return
	}
	slots, err := r.svc.Slots.GetUpcomingSlots(c.Request.Context(), gameID, from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

func (r *Router) getSlot(c *gin.Context) {
	slotID, err := pathID(c, "slotID")
	if err != nil {
		fail(c, err)
		return
	}
	slot, err := r.svc.Slots.GetSlot(c.Request.Context(), slotID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

func (r *Router) requestSlot(c *gin.Context) {
	gameID, err := pathID(c, "gameID")
	if err != nil {
		fail(c, err)
		return
	}
	slotID, err := pathID(c, "slotID")
	if err != nil {
		fail(c, err)
		return
	}
	var body struct {
		ParticipantIDs []int64 `json:"participantIds"`
	}
	// Chunked bodies report ContentLength -1, so only an absent or empty
	// body means "requester alone".
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			fail(c, apperr.Invalid("invalid body: %v", err))
			return
		}
	}

	res, err := r.svc.Bookings.RequestSlot(c.Request.Context(), service.RequestSlotInput{
		GameID:         gameID,
		SlotID:         slotID,
		RequesterID:    callerID(c),
		ParticipantIDs: body.ParticipantIDs,
		Now:            r.now(),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (r *Router) cancelRequest(c *gin.Context) {
	id, err := pathID(c, "requestID")
	if err != nil {
		fail(c, err)
		return
	}
	res, err := r.svc.Bookings.CancelRequest(c.Request.Context(), id, callerID(c), r.now())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) cancelBooking(c *gin.Context) {
	id, err := pathID(c, "bookingID")
	if err != nil {
		fail(c, err)
		return
	}
	res, err := r.svc.Bookings.CancelBooking(c.Request.Context(), id, callerID(c), r.now())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) lockSlot(c *gin.Context) {
	r.slotAction(c, func(c *gin.Context, id int64) (any, error) {
		return r.svc.Bookings.LockSlot(c.Request.Context(), id, r.now())
	})
}

func (r *Router) unlockSlot(c *gin.Context) {
	r.slotAction(c, func(c *gin.Context, id int64) (any, error) {
		slot, res, err := r.svc.Bookings.UnlockSlot(c.Request.Context(), id, r.now())
		if err != nil {
			return nil, err
		}
		return gin.H{"slot": slot, "allocation": res}, nil
	})
}

func (r *Router) cancelSlot(c *gin.Context) {
	r.slotAction(c, func(c *gin.Context, id int64) (any, error) {
		return r.svc.Bookings.CancelSlot(c.Request.Context(), id, r.now())
	})
}

func (r *Router) reallocate(c *gin.Context) {
	r.slotAction(c, func(c *gin.Context, id int64) (any, error) {
		return r.svc.Bookings.Reallocate(c.Request.Context(), id, r.now())
	})
}

func (r *Router) slotAction(c *gin.Context, fn func(c *gin.Context, slotID int64) (any, error)) {
	id, err := pathID(c, "slotID")
	if err != nil {
		fail(c, err)
		return
	}
	out, err := fn(c, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) myBookings(c *gin.Context) {
	from, to, err := r.window(c)
	if err != nil {
		fail(c, err)
		return
	}
	list, err := r.svc.Bookings.GetMyBookings(c.Request.Context(), callerID(c), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (r *Router) myRequests(c *gin.Context) {
	from, to, err := r.window(c)
	if err != nil {
		fail(c, err)
		return
	}
	list, err := r.svc.Bookings.GetMyRequests(c.Request.Context(), callerID(c), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (r *Router) myHistory(c *gin.Context) {
	at, err := parseInstant(c.Query("at"), r.now())
	if err != nil {
		fail(c, err)
		return
	}
	list, err := r.svc.History.ListForUser(c.Request.Context(), callerID(c), at)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// window reads ?from=&to=, defaulting to the next thirty days.
func (r *Router) window(c *gin.Context) (time.Time, time.Time, error) {
	now := r.now()
	from, err := parseInstant(c.Query("from"), now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseInstant(c.Query("to"), from.Add(defaultWindow))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
