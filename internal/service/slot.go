package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"game-slot-scheduler/internal/game/slotgen"
	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/pkg/obs"
	"game-slot-scheduler/internal/repository"
)

// SlotService generates slots and answers availability queries.
type SlotService struct {
	tx      TxRunner
	repos   *repository.Repositories
	loc     *time.Location
	maxDays int
	tracer  trace.Tracer
}

// NewSlotService creates a new SlotService instance. Calendar dates are
// interpreted in loc; maxDays bounds one generation call.
func NewSlotService(tx TxRunner, repos *repository.Repositories, loc *time.Location, maxDays int) *SlotService {
	if loc == nil {
		loc = time.UTC
	}
	return &SlotService{
		tx:      tx,
		repos:   repos,
		loc:     loc,
		maxDays: maxDays,
		tracer:  obs.Tracer(),
	}
}

// GenerateSlots creates the missing slots of a game for every calendar
// day in [startDate, endDate] and returns all slots covering the range.
// Concurrent calls for one game serialize on the game row.
func (s *SlotService) GenerateSlots(ctx context.Context, gameID int64, startDate, endDate time.Time) ([]*model.GameSlot, error) {
	slots, _, err := s.generate(ctx, gameID, startDate, endDate)
	return slots, err
}

// generate is GenerateSlots that also reports how many slots were new.
func (s *SlotService) generate(ctx context.Context, gameID int64, startDate, endDate time.Time) ([]*model.GameSlot, int, error) {
	ctx, span := s.tracer.Start(ctx, "SlotService.GenerateSlots",
		trace.WithAttributes(attribute.Int64("game.id", gameID)))
	defer span.End()

	from := slotgen.Day(startDate, s.loc)
	to := slotgen.Day(endDate, s.loc).AddDate(0, 0, 1)

	var (
		slots   []*model.GameSlot
		created int
	)
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		r := s.repos.WithTx(tx)

		game, err := r.Games.GetForUpdate(ctx, gameID)
		if err != nil {
			if errors.Is(err, repository.ErrGameNotFound) {
				return apperr.Invalid("game %d does not exist", gameID)
			}
			return err
		}

		hours := slotgen.Hours{
			Start:        game.OperatingStart,
			End:          game.OperatingEnd,
			SlotDuration: game.SlotDuration(),
		}
		windows, err := slotgen.Windows(hours, startDate, endDate, s.loc, s.maxDays)
		if err != nil {
			return apperr.Invalid("%v", err)
		}

		existing, err := r.Slots.ListOverlapping(ctx, gameID, from, to)
		if err != nil {
			return err
		}
		fresh := slotgen.WithoutExisting(windows, windowsOf(existing))

		if created, err = r.Slots.CreateBatch(ctx, gameID, fresh); err != nil {
			return err
		}

		slots, err = r.Slots.ListOverlapping(ctx, gameID, from, to)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, 0, apperr.Wrap(err, "failed to generate slots")
	}

	span.SetAttributes(attribute.Int("slots.created", created))
	log.Info().
		Int64("game_id", gameID).
		Time("from", from).
		Time("to", to).
		Int("created", created).
		Int("total", len(slots)).
		Msg("Slots generated")
	return slots, created, nil
}

func windowsOf(slots []*model.GameSlot) []slotgen.Window {
	out := make([]slotgen.Window, len(slots))
	for i, sl := range slots {
		out[i] = slotgen.Window{Start: sl.StartTime, End: sl.EndTime}
	}
	return out
}

// GenerateAhead generates slots for every game from now's date through
// now plus horizonDays and returns how many were created. Failures of one
// game do not stop the others.
func (s *SlotService) GenerateAhead(ctx context.Context, now time.Time, horizonDays int) (int, error) {
	games, err := s.repos.Games.List(ctx)
	if err != nil {
		return 0, apperr.Wrap(err, "failed to list games")
	}

	end := now.AddDate(0, 0, horizonDays)
	var (
		total int
		errs  []error
	)
	for _, g := range games {
		_, created, err := s.generate(ctx, g.ID, now, end)
		if err != nil {
			log.Error().Err(err).Int64("game_id", g.ID).Msg("Failed to generate slots ahead")
			errs = append(errs, err)
			continue
		}
		total += created
	}
	return total, errors.Join(errs...)
}

// GetSlot returns one slot with its seat usage.
func (s *SlotService) GetSlot(ctx context.Context, slotID int64) (*model.SlotAvailability, error) {
	slot, err := s.repos.Slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, translate(err, "slot", slotID)
	}
	list, err := s.availability(ctx, slot.GameID, []*model.GameSlot{slot})
	if err != nil {
		return nil, err
	}
	return list[0], nil
}

// GetSlotsForDate returns the slots of a game starting on the calendar
// day of date.
func (s *SlotService) GetSlotsForDate(ctx context.Context, gameID int64, date time.Time) ([]*model.SlotAvailability, error) {
	day := slotgen.Day(date, s.loc)
	return s.listStarting(ctx, gameID, day, day.AddDate(0, 0, 1), true)
}

// GetUpcomingSlots returns the non-cancelled slots of a game starting in
// [from, to).
func (s *SlotService) GetUpcomingSlots(ctx context.Context, gameID int64, from, to time.Time) ([]*model.SlotAvailability, error) {
	if !to.After(from) {
		return nil, apperr.Invalid("to must be after from")
	}
	return s.listStarting(ctx, gameID, from, to, false)
}

func (s *SlotService) listStarting(ctx context.Context, gameID int64, from, to time.Time, withCancelled bool) ([]*model.SlotAvailability, error) {
	if _, err := s.repos.Games.GetByID(ctx, gameID); err != nil {
		return nil, translate(err, "game", gameID)
	}

	slots, err := s.repos.Slots.ListStartingBetween(ctx, gameID, from, to)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list slots")
	}
	if !withCancelled {
		kept := slots[:0]
		for _, sl := range slots {
			if sl.Status != model.SlotCancelled {
				kept = append(kept, sl)
			}
		}
		slots = kept
	}
	return s.availability(ctx, gameID, slots)
}

func (s *SlotService) availability(ctx context.Context, gameID int64, slots []*model.GameSlot) ([]*model.SlotAvailability, error) {
	out := make([]*model.SlotAvailability, 0, len(slots))
	if len(slots) == 0 {
		return out, nil
	}

	game, err := s.repos.Games.GetByID(ctx, gameID)
	if err != nil {
		return nil, translate(err, "game", gameID)
	}

	ids := make([]int64, len(slots))
	for i, sl := range slots {
		ids[i] = sl.ID
	}
	counts, err := s.repos.Slots.SeatCounts(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to count seats")
	}

	for _, sl := range slots {
		seated := counts[sl.ID]
		free := game.MaxPlayersPerSlot - seated
		if free < 0 || sl.Status == model.SlotCancelled {
			free = 0
		}
		out = append(out, &model.SlotAvailability{GameSlot: *sl, SeatedCount: seated, FreeSeats: free})
	}
	return out, nil
}
