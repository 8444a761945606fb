// Package main is the entry point for the game slot scheduler.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"game-slot-scheduler/internal/api"
	"game-slot-scheduler/internal/bot"
	"game-slot-scheduler/internal/config"
	"game-slot-scheduler/internal/game/cycle"
	"game-slot-scheduler/internal/handler"
	"game-slot-scheduler/internal/notify"
	"game-slot-scheduler/internal/pkg/db"
	"game-slot-scheduler/internal/pkg/lock"
	"game-slot-scheduler/internal/pkg/logger"
	"game-slot-scheduler/internal/pkg/obs"
	"game-slot-scheduler/internal/repository"
	"game-slot-scheduler/internal/service"
	"game-slot-scheduler/internal/worker"
)

// notifyTimeout bounds each notification delivery.
const notifyTimeout = 10 * time.Second

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Setup(cfg.Log)
	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	loc, _ := cfg.Scheduling.Location()
	weekStart, _ := cfg.Scheduling.WeekStartDay()
	cycles, err := cycle.New(cfg.Scheduling.Cycle, weekStart, loc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure play cycle")
	}

	repos := repository.New(dbPool.Pool)

	locker, closeLocker := newLocker(cfg)
	defer closeLocker()

	// The bot is created before the services so it can also deliver
	// notifications; handlers are registered once the services exist.
	var telegramBot *bot.Bot
	if cfg.Bot.Token != "" {
		telegramBot, err = bot.New(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
	}

	notifier, closeNotifier := newNotifier(cfg, telegramBot, repos.Users)
	defer closeNotifier()
	events := notify.NewDispatcher(notifier, notifyTimeout)

	users := service.NewUserService(repos.Users)
	games := service.NewGameService(repos.Games)
	interests := service.NewInterestService(repos)
	history := service.NewHistoryService(repos.Histories, cycles)
	slots := service.NewSlotService(dbPool, repos, loc, cfg.Scheduling.MaxGenerationDays)
	bookings := service.NewBookingService(dbPool, repos, locker, history, events)

	router := api.NewRouter(api.Services{
		Users:     users,
		Games:     games,
		Interests: interests,
		Slots:     slots,
		Bookings:  bookings,
		History:   history,
	}, api.Options{
		Mode:           cfg.HTTP.Mode,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Location:       loc,
		Health:         dbPool.HealthCheck,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	if telegramBot != nil {
		telegramBot.Register(&bot.Dependencies{
			Schedule: handler.NewScheduleHandler(users, games, interests, slots, bookings, loc, nil),
			Admin:    handler.NewAdminHandler(users, games, slots, bookings, loc, nil),
		})
		go telegramBot.Start()
	}

	jobs := worker.New(slots, bookings, worker.Config{
		HorizonDays:        cfg.Scheduling.GenerationHorizonDays,
		GenerationInterval: cfg.Scheduling.GenerationInterval,
		CompletionInterval: cfg.Scheduling.CompletionInterval,
	}, nil)
	jobs.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if telegramBot != nil {
		telegramBot.Stop()
	}
	jobs.Wait()
	events.Wait()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Tracer shutdown failed")
	}
	log.Info().Msg("Scheduler stopped gracefully")
}

// newLocker builds the per-slot lock backend.
func newLocker(cfg *config.Config) (lock.Locker, func()) {
	if cfg.Lock.Backend != "redis" {
		log.Info().Dur("timeout", cfg.Scheduling.LockTimeout).Msg("Using in-process slot locks")
		return lock.NewKeyLock(cfg.Scheduling.LockTimeout), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis slot locks")
	return lock.NewRedisLock(client, "slot-lock:", cfg.Lock.TTL, cfg.Scheduling.LockTimeout), func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}

// newNotifier fans notifications out to every configured channel.
func newNotifier(cfg *config.Config, telegramBot *bot.Bot, directory notify.ChatDirectory) (notify.Notifier, func()) {
	var (
		all     notify.Multi
		closers []func()
	)

	if cfg.Notify.Log {
		all = append(all, notify.LogNotifier{})
	}
	if cfg.Notify.AMQPURL != "" {
		n, err := notify.NewAMQPNotifier(cfg.Notify.AMQPURL, cfg.Notify.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to AMQP broker")
		}
		all = append(all, n)
		closers = append(closers, func() {
			if err := n.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close AMQP connection")
			}
		})
	}
	if cfg.Notify.Telegram && telegramBot != nil {
		all = append(all, notify.NewTelegramNotifier(telegramBot.GetBot(), directory))
	}

	log.Info().Int("channels", len(all)).Msg("Notifications configured")
	return all, func() {
		for _, c := range closers {
			c()
		}
	}
}
