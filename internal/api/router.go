// Package api exposes the scheduler over HTTP with gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/service"
)

// UserAPI registers employees.
type UserAPI interface {
	Register(ctx context.Context, name, email string, telegramID *int64) (*model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	LinkTelegram(ctx context.Context, userID, telegramID int64) error
}

// GameAPI is the game catalogue used by the handlers.
type GameAPI interface {
	Create(ctx context.Context, in service.GameInput) (*model.Game, error)
	Update(ctx context.Context, id int64, in service.GameInput) (*model.Game, error)
	Get(ctx context.Context, id int64) (*model.Game, error)
	List(ctx context.Context) ([]*model.Game, error)
}

// InterestAPI records interest flags.
type InterestAPI interface {
	SetInterest(ctx context.Context, userID, gameID int64, interested bool) (*model.UserGameInterest, error)
}

// SlotAPI generates and lists slots.
type SlotAPI interface {
	GenerateSlots(ctx context.Context, gameID int64, startDate, endDate time.Time) ([]*model.GameSlot, error)
	GetSlot(ctx context.Context, slotID int64) (*model.SlotAvailability, error)
	GetSlotsForDate(ctx context.Context, gameID int64, date time.Time) ([]*model.SlotAvailability, error)
	GetUpcomingSlots(ctx context.Context, gameID int64, from, to time.Time) ([]*model.SlotAvailability, error)
}

// BookingAPI handles requests, bookings and slot holds.
type BookingAPI interface {
	RequestSlot(ctx context.Context, in service.RequestSlotInput) (*service.RequestSlotResult, error)
	CancelRequest(ctx context.Context, requestID, callerID int64, now time.Time) (*service.CancelResult, error)
	CancelBooking(ctx context.Context, bookingID, callerID int64, now time.Time) (*service.CancelResult, error)
	Reallocate(ctx context.Context, slotID int64, now time.Time) (*model.AllocationResult, error)
	LockSlot(ctx context.Context, slotID int64, now time.Time) (*model.GameSlot, error)
	UnlockSlot(ctx context.Context, slotID int64, now time.Time) (*model.GameSlot, *model.AllocationResult, error)
	CancelSlot(ctx context.Context, slotID int64, now time.Time) (*model.GameSlot, error)
	GetMyBookings(ctx context.Context, userID int64, from, to time.Time) ([]*model.GameBooking, error)
	GetMyRequests(ctx context.Context, userID int64, from, to time.Time) ([]*model.GameSlotRequest, error)
}

// HistoryAPI reports play history.
type HistoryAPI interface {
	ListForUser(ctx context.Context, userID int64, at time.Time) ([]*model.GameHistory, error)
}

// Services bundles the use cases served over HTTP.
type Services struct {
	Users     UserAPI
	Games     GameAPI
	Interests InterestAPI
	Slots     SlotAPI
	Bookings  BookingAPI
	History   HistoryAPI
}

// Options configures the router.
type Options struct {
	Mode           string
	AllowedOrigins []string
	// Location interprets calendar dates such as ?date=2030-01-07.
	Location *time.Location
	// Now is read once per request. Defaults to time.Now.
	Now func() time.Time
	// Health reports readiness for /healthz.
	Health func(ctx context.Context) error
}

// Router serves the REST API.
type Router struct {
	engine *gin.Engine
	svc    Services
	loc    *time.Location
	now    func() time.Time
	health func(ctx context.Context) error
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(svc Services, opts Options) *Router {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	engine := gin.New()
	engine.Use(RequestID(), Logger(), Recovery())
	if len(opts.AllowedOrigins) > 0 {
		cfg := cors.DefaultConfig()
		cfg.AllowOrigins = opts.AllowedOrigins
		cfg.AllowHeaders = append(cfg.AllowHeaders, HeaderUserID, HeaderRequestID)
		engine.Use(cors.New(cfg))
	}

	r := &Router{
		engine: engine,
		svc:    svc,
		loc:    opts.Location,
		now:    opts.Now,
		health: opts.Health,
	}
	r.setupRoutes()
	return r
}

// Handler returns the http.Handler to serve.
func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) setupRoutes() {
	r.engine.GET("/healthz", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		users := v1.Group("/users")
		{
			users.POST("", r.registerUser)
			users.GET("/:userID", r.getUser)
			users.PUT("/:userID/telegram", r.linkTelegram)
		}

		games := v1.Group("/games")
		{
			games.POST("", r.createGame)
			games.GET("", r.listGames)
			games.GET("/:gameID", r.getGame)
			games.PUT("/:gameID", r.updateGame)
			games.PUT("/:gameID/interest", RequireCaller(), r.setInterest)
			games.POST("/:gameID/slots/generate", r.generateSlots)
			games.GET("/:gameID/slots", r.slotsForDate)
			games.GET("/:gameID/slots/upcoming", r.upcomingSlots)
			games.POST("/:gameID/slots/:slotID/requests", RequireCaller(), r.requestSlot)
		}

		slots := v1.Group("/slots/:slotID")
		{
			slots.GET("", r.getSlot)
			slots.POST("/lock", r.lockSlot)
			slots.POST("/unlock", r.unlockSlot)
			slots.POST("/cancel", r.cancelSlot)
			slots.POST("/reallocate", r.reallocate)
		}

		v1.DELETE("/requests/:requestID", RequireCaller(), r.cancelRequest)
		v1.DELETE("/bookings/:bookingID", RequireCaller(), r.cancelBooking)

		me := v1.Group("/me", RequireCaller())
		{
			me.GET("/bookings", r.myBookings)
			me.GET("/requests", r.myRequests)
			me.GET("/history", r.myHistory)
		}
	}
}

func (r *Router) healthCheck(c *gin.Context) {
	if r.health != nil {
		if err := r.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
