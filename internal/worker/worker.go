// Package worker runs the periodic scheduling chores: generating slots
// ahead of time and completing bookings whose slots have ended.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Generator creates missing slots for every game.
type Generator interface {
	GenerateAhead(ctx context.Context, now time.Time, horizonDays int) (int, error)
}

// Completer marks elapsed bookings Completed.
type Completer interface {
	CompleteElapsed(ctx context.Context, now time.Time) (int64, error)
}

// Config holds the worker intervals. A non-positive interval disables
// that job.
type Config struct {
	HorizonDays        int
	GenerationInterval time.Duration
	CompletionInterval time.Duration
}

// Runner owns the background jobs.
type Runner struct {
	gen  Generator
	comp Completer
	cfg  Config
	now  func() time.Time
	wg   sync.WaitGroup
}

// New creates a Runner. now defaults to time.Now.
func New(gen Generator, comp Completer, cfg Config, now func() time.Time) *Runner {
	if now == nil {
		now = time.Now
	}
	return &Runner{gen: gen, comp: comp, cfg: cfg, now: now}
}

// Start launches the jobs. Each runs once immediately and then on its
// interval until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if r.cfg.GenerationInterval > 0 {
		r.every(ctx, "generate_ahead", r.cfg.GenerationInterval, r.generate)
	}
	if r.cfg.CompletionInterval > 0 {
		r.every(ctx, "complete_elapsed", r.cfg.CompletionInterval, r.complete)
	}
}

// Wait blocks until every job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) every(ctx context.Context, name string, interval time.Duration, job func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				log.Error().Interface("panic", p).Str("job", name).Msg("Recovered from panic in worker")
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			job(ctx)
			select {
			case <-ctx.Done():
				log.Debug().Str("job", name).Msg("Worker stopped")
				return
			case <-ticker.C:
			}
		}
	}()
}

func (r *Runner) generate(ctx context.Context) {
	n, err := r.gen.GenerateAhead(ctx, r.now(), r.cfg.HorizonDays)
	if err != nil {
		log.Error().Err(err).Msg("Slot generation failed")
	}
	if n > 0 {
		log.Info().Int("slots", n).Int("horizon_days", r.cfg.HorizonDays).Msg("Slots generated ahead")
	}
}

func (r *Runner) complete(ctx context.Context) {
	n, err := r.comp.CompleteElapsed(ctx, r.now())
	if err != nil {
		log.Error().Err(err).Msg("Completing elapsed bookings failed")
		return
	}
	if n > 0 {
		log.Info().Int64("bookings", n).Msg("Elapsed bookings completed")
	}
}
