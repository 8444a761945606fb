// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"game-slot-scheduler/internal/config"
	"game-slot-scheduler/internal/handler"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config
}

// Dependencies holds the handlers served by the bot.
type Dependencies struct {
	Schedule *handler.ScheduleHandler
	Admin    *handler.AdminHandler
}

// New creates the telebot instance. Handlers are attached with Register
// once the services exist, so the same instance can deliver notifications.
func New(cfg *config.Config) (*Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Telegram handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{bot: teleBot, cfg: cfg}, nil
}

// Register installs middleware and command handlers.
func (b *Bot) Register(deps *Dependencies) {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())

	s := deps.Schedule
	b.bot.Handle("/start", s.HandleStart)
	b.bot.Handle("/help", s.HandleStart)
	b.bot.Handle("/games", s.HandleGames)
	b.bot.Handle("/interest", s.HandleInterest)
	b.bot.Handle("/slots", s.HandleSlots)
	b.bot.Handle("/request", s.HandleRequest)
	b.bot.Handle("/cancelrequest", s.HandleCancelRequest)
	b.bot.Handle("/cancelbooking", s.HandleCancelBooking)
	b.bot.Handle("/mybookings", s.HandleMyBookings)
	b.bot.Handle("/myrequests", s.HandleMyRequests)

	// HR commands
	a := deps.Admin
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/link", a.HandleLink)
	adminGroup.Handle("/generate", a.HandleGenerate)
	adminGroup.Handle("/lockslot", a.HandleLockSlot)
	adminGroup.Handle("/unlockslot", a.HandleUnlockSlot)
	adminGroup.Handle("/cancelslot", a.HandleCancelSlot)
}

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
