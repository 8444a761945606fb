package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"game-slot-scheduler/internal/game/allocation"
	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/notify"
	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/pkg/lock"
	"game-slot-scheduler/internal/pkg/obs"
	"game-slot-scheduler/internal/repository"
)

// RequestSlotInput is a request for seats on one slot.
type RequestSlotInput struct {
	GameID         int64
	SlotID         int64
	RequesterID    int64
	ParticipantIDs []int64
	Now            time.Time
}

// RequestSlotResult is the stored request, in its post-allocation
// status, and the pass it triggered.
type RequestSlotResult struct {
	Request    *model.GameSlotRequest  `json:"request"`
	Allocation *model.AllocationResult `json:"allocation"`
}

// CancelResult reports what a cancellation changed and the backfill
// pass that followed.
type CancelResult struct {
	Request    *model.GameSlotRequest  `json:"request,omitempty"`
	Booking    *model.GameBooking      `json:"booking,omitempty"`
	Allocation *model.AllocationResult `json:"allocation"`
}

// BookingService runs request intake, allocation, booking
// materialization and cancellation. Every mutation of a slot happens
// inside that slot's critical section.
type BookingService struct {
	tx      TxRunner
	repos   *repository.Repositories
	locker  lock.Locker
	history *HistoryService
	events  *notify.Dispatcher
	tracer  trace.Tracer
}

// NewBookingService creates a new BookingService instance. events may be
// nil to disable notifications.
func NewBookingService(
	tx TxRunner,
	repos *repository.Repositories,
	locker lock.Locker,
	history *HistoryService,
	events *notify.Dispatcher,
) *BookingService {
	return &BookingService{
		tx:      tx,
		repos:   repos,
		locker:  locker,
		history: history,
		events:  events,
		tracer:  obs.Tracer(),
	}
}

// slotFunc runs inside a slot's critical section with repositories bound
// to the open transaction and the slot row locked.
type slotFunc func(ctx context.Context, r *repository.Repositories, slot *model.GameSlot) error

// inSlot serializes fn with every other mutation of slotID: it holds the
// slot lock, opens a transaction and locks the slot row first.
func (s *BookingService) inSlot(ctx context.Context, slotID int64, fn slotFunc) error {
	err := s.locker.WithLock(ctx, slotID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx pgx.Tx) error {
			r := s.repos.WithTx(tx)
			slot, err := r.Slots.GetForUpdate(ctx, slotID)
			if err != nil {
				return err
			}
			return fn(ctx, r, slot)
		})
	})
	return translate(err, "slot", slotID)
}

func (s *BookingService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "BookingService."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.PublicMessage(err))
	}
	span.End()
}

// RequestSlot validates and stores a request, then runs the allocation
// pass of the slot. The returned request is Assigned or Waitlisted.
func (s *BookingService) RequestSlot(ctx context.Context, in RequestSlotInput) (res *RequestSlotResult, err error) {
	ctx, span := s.startSpan(ctx, "RequestSlot",
		attribute.Int64("slot.id", in.SlotID),
		attribute.Int64("user.id", in.RequesterID))
	defer func() { endSpan(span, err) }()

	if in.GameID <= 0 || in.SlotID <= 0 || in.RequesterID <= 0 {
		return nil, apperr.Invalid("game, slot and requester are required")
	}
	for _, id := range in.ParticipantIDs {
		if id <= 0 {
			return nil, apperr.Invalid("invalid participant id %d", id)
		}
	}
	participants := participantSet(in.RequesterID, in.ParticipantIDs)

	var events []notify.Event
	err = s.inSlot(ctx, in.SlotID, func(ctx context.Context, r *repository.Repositories, slot *model.GameSlot) error {
		if slot.GameID != in.GameID {
			return apperr.Invalid("slot %d does not belong to game %d", slot.ID, in.GameID)
		}
		if slot.Status == model.SlotCancelled {
			return apperr.Invalid("slot %d is cancelled", slot.ID)
		}
		if slot.Started(in.Now) {
			return apperr.Invalid("slot %d has already started", slot.ID)
		}

		game, err := r.Games.GetByID(ctx, slot.GameID)
		if err != nil {
			return translate(err, "game", slot.GameID)
		}
		if len(participants) > game.MaxPlayersPerSlot {
			return apperr.Invalid("%d participants exceed the limit of %d per slot", len(participants), game.MaxPlayersPerSlot)
		}

		if err := checkParticipants(ctx, r, game, slot, participants); err != nil {
			return err
		}

		req, err := r.Requests.Create(ctx, slot.ID, game.ID, in.RequesterID, participants, in.Now)
		if err != nil {
			return translate(err, "request", 0)
		}
		log.Info().
			Int64("request_id", req.ID).
			Int64("slot_id", slot.ID).
			Int64("requested_by", req.RequestedBy).
			Ints64("participants", participants).
			Msg("Slot request created")

		pass, err := s.allocate(ctx, r, slot, game, in.Now, req.ID)
		if err != nil {
			return err
		}
		events = pass.events

		if req, err = r.Requests.GetByID(ctx, req.ID); err != nil {
			return err
		}
		res = &RequestSlotResult{Request: req, Allocation: pass.result}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("request.status", string(res.Request.Status)))
	s.events.Dispatch(events...)
	return res, nil
}

// checkParticipants enforces that every participant exists, opted in to
// the game and is not already active on the slot.
func checkParticipants(ctx context.Context, r *repository.Repositories, game *model.Game, slot *model.GameSlot, participants []int64) error {
	existing, err := r.Users.ExistingIDs(ctx, participants)
	if err != nil {
		return err
	}
	if unknown := missing(participants, existing); len(unknown) > 0 {
		return apperr.Invalid("unknown users %v", unknown)
	}

	interested, err := r.Interests.InterestedAmong(ctx, game.ID, participants)
	if err != nil {
		return err
	}
	if notInterested := missing(participants, interested); len(notInterested) > 0 {
		return apperr.Invalid("users %v are not interested in %s", notInterested, game.Name)
	}

	active, err := r.Requests.ActiveParticipantsAmong(ctx, slot.ID, participants)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return apperr.Invalid("users %v already have an active request on slot %d", active, slot.ID)
	}

	seated, err := r.Bookings.SeatedUserIDs(ctx, slot.ID)
	if err != nil {
		return err
	}
	if taken := missing(participants, missing(participants, seated)); len(taken) > 0 {
		return apperr.Invalid("users %v are already seated on slot %d", taken, slot.ID)
	}
	return nil
}

// pass is the outcome of one allocation pass.
type pass struct {
	result *model.AllocationResult
	events []notify.Event
}

// allocate runs the allocation engine over the slot's contending
// requests and materializes its decisions. trigger is the request that
// caused the pass, zero for cancellations and explicit re-runs.
func (s *BookingService) allocate(ctx context.Context, r *repository.Repositories, slot *model.GameSlot, game *model.Game, now time.Time, trigger int64) (*pass, error) {
	seated, err := r.Bookings.SeatedUserIDs(ctx, slot.ID)
	if err != nil {
		return nil, err
	}
	contenders, err := r.Requests.ListBySlot(ctx, slot.ID, model.RequestPending, model.RequestWaitlisted)
	if err != nil {
		return nil, err
	}

	requesters := make([]int64, 0, len(contenders))
	for _, req := range contenders {
		if !slices.Contains(requesters, req.RequestedBy) {
			requesters = append(requesters, req.RequestedBy)
		}
	}
	plays, err := s.history.PlaysThisCycle(ctx, r.Histories, game.ID, requesters, slot.StartTime)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*model.GameSlotRequest, len(contenders))
	candidates := make([]allocation.Candidate, 0, len(contenders))
	for _, req := range contenders {
		byID[req.ID] = req
		candidates = append(candidates, allocation.Candidate{
			RequestID:      req.ID,
			RequestedBy:    req.RequestedBy,
			RequestedAt:    req.RequestedAt,
			Participants:   req.Participants,
			PlaysThisCycle: plays[req.RequestedBy],
		})
	}

	decided := allocation.Allocate(allocation.Input{
		Capacity:   game.MaxPlayersPerSlot,
		Seated:     seated,
		Candidates: candidates,
		Hold:       slot.Status == model.SlotLocked || slot.Status == model.SlotCancelled || slot.Started(now),
	})

	p := &pass{result: &model.AllocationResult{
		SlotID:             slot.ID,
		AssignedUserIDs:    []int64{},
		AssignedRequests:   []int64{},
		WaitlistedRequests: []int64{},
	}}
	if req, ok := byID[trigger]; ok {
		p.result.RequestedBy = req.RequestedBy
	}

	event := func(t notify.EventType, req *model.GameSlotRequest, bookingID int64, users []int64) notify.Event {
		return notify.Event{
			Type:       t,
			GameID:     game.ID,
			SlotID:     slot.ID,
			SlotStart:  slot.StartTime,
			RequestID:  req.ID,
			BookingID:  bookingID,
			UserIDs:    users,
			OccurredAt: now,
		}
	}

	for _, o := range decided.Outcomes {
		req := byID[o.RequestID]

		switch o.Decision {
		case allocation.Assigned:
			if err := r.Requests.UpdateStatus(ctx, req.ID, model.RequestAssigned); err != nil {
				return nil, err
			}
			booking, err := r.Bookings.Create(ctx, slot.ID, game.ID, req.ID, req.RequestedBy, o.Seated)
			if err != nil {
				return nil, err
			}
			if err := s.history.RecordPlay(ctx, r.Histories, o.Seated, game.ID, slot.StartTime); err != nil {
				return nil, err
			}

			p.result.AssignedRequests = append(p.result.AssignedRequests, req.ID)
			p.result.BookingsCreated = append(p.result.BookingsCreated, booking.ID)
			if req.ID == trigger {
				p.result.AssignedUserIDs = o.Seated
			}
			p.events = append(p.events, event(notify.EventRequestAssigned, req, booking.ID, o.Seated))

			log.Info().
				Int64("request_id", req.ID).
				Int64("booking_id", booking.ID).
				Int64("slot_id", slot.ID).
				Ints64("seated", o.Seated).
				Msg("Request assigned")

		case allocation.Waitlisted:
			if req.Status != model.RequestWaitlisted {
				if err := r.Requests.UpdateStatus(ctx, req.ID, model.RequestWaitlisted); err != nil {
					return nil, err
				}
				p.events = append(p.events, event(notify.EventRequestWaitlisted, req, 0, req.Participants))
				log.Info().Int64("request_id", req.ID).Int64("slot_id", slot.ID).Msg("Request waitlisted")
			}
			p.result.WaitlistedRequests = append(p.result.WaitlistedRequests, req.ID)

		case allocation.Rejected:
			if err := r.Requests.UpdateStatus(ctx, req.ID, model.RequestRejected); err != nil {
				return nil, err
			}
			p.result.RejectedRequests = append(p.result.RejectedRequests, req.ID)
			p.events = append(p.events, event(notify.EventRequestRejected, req, 0, req.Participants))
			log.Info().Int64("request_id", req.ID).Int64("slot_id", slot.ID).Msg("Request rejected")
		}
	}

	next := slot.Status
	switch {
	case slot.Status == model.SlotOpen && decided.FreeSeats == 0:
		next = model.SlotBooked
	case slot.Status == model.SlotBooked && decided.FreeSeats > 0 && !slot.Started(now):
		next = model.SlotOpen
	}
	if next != slot.Status {
		if err := r.Slots.UpdateStatus(ctx, slot.ID, next); err != nil {
			return nil, err
		}
		log.Info().
			Int64("slot_id", slot.ID).
			Str("from", string(slot.Status)).
			Str("to", string(next)).
			Msg("Slot status changed")
		slot.Status = next
	}
	p.result.SlotStatus = slot.Status

	return p, nil
}

// CancelRequest withdraws a request on behalf of its requester. An
// assigned request also cancels its booking. Freed seats are backfilled.
func (s *BookingService) CancelRequest(ctx context.Context, requestID, callerID int64, now time.Time) (res *CancelResult, err error) {
	ctx, span := s.startSpan(ctx, "CancelRequest",
		attribute.Int64("request.id", requestID),
		attribute.Int64("user.id", callerID))
	defer func() { endSpan(span, err) }()

	req, err := s.repos.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, translate(err, "request", requestID)
	}

	var events []notify.Event
	err = s.inSlot(ctx, req.SlotID, func(ctx context.Context, r *repository.Repositories, slot *model.GameSlot) error {
		req, err := r.Requests.GetByID(ctx, requestID)
		if err != nil {
			return translate(err, "request", requestID)
		}
		if req.RequestedBy != callerID {
			return apperr.Invalid("only the requester can cancel request %d", requestID)
		}
		if !req.Status.Active() {
			return apperr.Invalid("request %d is already %s", requestID, req.Status)
		}
		if slot.Started(now) {
			return apperr.Invalid("slot %d has already started", slot.ID)
		}

		res = &CancelResult{}
		if req.Status == model.RequestAssigned {
			booking, err := r.Bookings.GetBookedByRequest(ctx, req.ID)
			switch {
			case errors.Is(err, repository.ErrBookingNotFound):
			case err != nil:
				return err
			default:
				if err := r.Bookings.Cancel(ctx, booking.ID); err != nil {
					return err
				}
				booking.Status = model.BookingCancelled
				res.Booking = booking
			}
		}
		if err := r.Requests.UpdateStatus(ctx, req.ID, model.RequestCancelled); err != nil {
			return err
		}
		req.Status = model.RequestCancelled
		res.Request = req

		log.Info().Int64("request_id", req.ID).Int64("slot_id", slot.ID).Msg("Request cancelled")

		game, err := r.Games.GetByID(ctx, slot.GameID)
		if err != nil {
			return err
		}
		pass, err := s.allocate(ctx, r, slot, game, now, 0)
		if err != nil {
			return err
		}
		res.Allocation = pass.result

		events = append(events, notify.Event{
			Type:       notify.EventRequestCancelled,
			GameID:     game.ID,
			SlotID:     slot.ID,
			SlotStart:  slot.StartTime,
			RequestID:  req.ID,
			UserIDs:    req.Participants,
			OccurredAt: now,
		})
		events = append(events, pass.events...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Dispatch(events...)
	return res, nil
}

// CancelBooking cancels a live booking on behalf of one of its
// participants or its creator. History is left untouched.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, callerID int64, now time.Time) (res *CancelResult, err error) {
	ctx, span := s.startSpan(ctx, "CancelBooking",
		attribute.Int64("booking.id", bookingID),
		attribute.Int64("user.id", callerID))
	defer func() { endSpan(span, err) }()

	b, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, translate(err, "booking", bookingID)
	}

	var events []notify.Event
	err = s.inSlot(ctx, b.SlotID, func(ctx context.Context, r *repository.Repositories, slot *model.GameSlot) error {
		b, err := r.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return translate(err, "booking", bookingID)
		}
		if b.CreatedBy != callerID && !b.HasParticipant(callerID) {
			return apperr.Invalid("user %d is not part of booking %d", callerID, bookingID)
		}
		if b.Status != model.BookingBooked {
			return apperr.Invalid("booking %d is already %s", bookingID, b.Status)
		}
		if slot.Started(now) {
			return apperr.Invalid("slot %d has already started", slot.ID)
		}

		if err := r.Bookings.Cancel(ctx, b.ID); err != nil {
			return err
		}
		if err := r.Requests.UpdateStatus(ctx, b.RequestID, model.RequestCancelled); err != nil && !errors.Is(err, repository.ErrRequestNotFound) {
			return err
		}
		b.Status = model.BookingCancelled
		res = &CancelResult{Booking: b}

		log.Info().Int64("booking_id", b.ID).Int64("slot_id", slot.ID).Int64("by", callerID).Msg("Booking cancelled")

		game, err := r.Games.GetByID(ctx, slot.GameID)
		if err != nil {
			return err
		}
		pass, err := s.allocate(ctx, r, slot, game, now, 0)
		if err != nil {
			return err
		}
		res.Allocation = pass.result

		events = append(events, notify.Event{
			Type:       notify.EventBookingCancelled,
			GameID:     game.ID,
			SlotID:     slot.ID,
			SlotStart:  slot.StartTime,
			RequestID:  b.RequestID,
			BookingID:  b.ID,
			UserIDs:    b.Participants,
			OccurredAt: now,
		})
		events = append(events, pass.events...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Dispatch(events...)
	return res, nil
}

// Reallocate re-runs the allocation pass of a slot. With nothing
// contending it changes nothing.
func (s *BookingService) Reallocate(ctx context.Context, slotID int64, now time.Time) (res *model.AllocationResult, err error) {
	ctx, span := s.startSpan(ctx, "Reallocate", attribute.Int64("slot.id", slotID))
	defer func() { endSpan(span, err) }()

	var events []notify.Event
	err = s.inSlot(ctx, slotID, func(ctx context.Context, r *repository.Repositories, slot *model.GameSlot) error {
		game, err := r.Games.GetByID(ctx, slot.GameID)
		if err != nil {
			return err
		}
		pass, err := s.allocate(ctx, r, slot, game, now, 0)
		if err != nil {
			return err
		}
		res, events = pass.result, pass.events
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Dispatch(events...)
	return res, nil
}

// LockSlot puts a slot on hold. Requests are still accepted but nobody
// is seated until the slot is unlocked.
func (s *BookingService) LockSlot(ctx context.Context, slotID int64, now time.Time) (*model.GameSlot, error) {
	var out *model.GameSlot
	err := s.inSlot(ctx, slotID, func(ctx context.Context, r *repository.Repositories, slot *model.GameSlot) error {
		if slot.Status == model.SlotCancelled {
			return apperr.Invalid("slot %d is cancelled", slot.ID)
		}
		if slot.Started(now) {
			return apperr.Invalid("slot %d has already started", slot.ID)
		}
		if slot.Status != model.SlotLocked {
			if err := r.Slots.UpdateStatus(ctx, slot.ID, model.SlotLocked); err != nil {
				return err
			}
			log.Info().Int64("slot_id", slot.ID).Str("from", string(slot.Status)).Msg("Slot locked")
			slot.Status = model.SlotLocked
		}
		out = slot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UnlockSlot releases a hold and seats waiting requests.
func (s *BookingService) UnlockSlot(ctx context.Context, slotID int64, now time.Time) (*model.GameSlot, *model.AllocationResult, error) {
	var (
		out    *model.GameSlot
		result *model.AllocationResult
		events []notify.Event
	)
	err := s.inSlot(ctx, slotID, func(ctx context.Context, r *repository.Repositories, slot *model.GameSlot) error {
		if slot.Status != model.SlotLocked {
			return apperr.Invalid("slot %d is not locked", slot.ID)
		}
		if err := r.Slots.UpdateStatus(ctx, slot.ID, model.SlotOpen); err != nil {
			return err
		}
		slot.Status = model.SlotOpen
		log.Info().Int64("slot_id", slot.ID).Msg("Slot unlocked")

		game, err := r.Games.GetByID(ctx, slot.GameID)
		if err != nil {
			return err
		}
		pass, err := s.allocate(ctx, r, slot, game, now, 0)
		if err != nil {
			return err
		}
		out, result, events = slot, pass.result, pass.events
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.events.Dispatch(events...)
	return out, result, nil
}

// CancelSlot withdraws a slot with every live booking and request on it.
func (s *BookingService) CancelSlot(ctx context.Context, slotID int64, now time.Time) (*model.GameSlot, error) {
	var (
		out    *model.GameSlot
		events []notify.Event
	)
	err := s.inSlot(ctx, slotID, func(ctx context.Context, r *repository.Repositories, slot *model.GameSlot) error {
		if slot.Status == model.SlotCancelled {
			return apperr.Invalid("slot %d is already cancelled", slot.ID)
		}
		if slot.Started(now) {
			return apperr.Invalid("slot %d has already started", slot.ID)
		}

		affected := map[int64]struct{}{}

		bookings, err := r.Bookings.ListBookedBySlot(ctx, slot.ID)
		if err != nil {
			return err
		}
		for _, b := range bookings {
			if err := r.Bookings.Cancel(ctx, b.ID); err != nil {
				return err
			}
			for _, id := range b.Participants {
				affected[id] = struct{}{}
			}
		}

		reqs, err := r.Requests.ListBySlot(ctx, slot.ID, model.RequestPending, model.RequestWaitlisted, model.RequestAssigned)
		if err != nil {
			return err
		}
		for _, req := range reqs {
			if err := r.Requests.UpdateStatus(ctx, req.ID, model.RequestCancelled); err != nil {
				return err
			}
			for _, id := range req.Participants {
				affected[id] = struct{}{}
			}
		}

		if err := r.Slots.UpdateStatus(ctx, slot.ID, model.SlotCancelled); err != nil {
			return err
		}
		slot.Status = model.SlotCancelled
		out = slot

		log.Info().
			Int64("slot_id", slot.ID).
			Int("bookings", len(bookings)).
			Int("requests", len(reqs)).
			Msg("Slot cancelled")

		events = append(events, notify.Event{
			Type:       notify.EventSlotCancelled,
			GameID:     slot.GameID,
			SlotID:     slot.ID,
			SlotStart:  slot.StartTime,
			UserIDs:    slices.Sorted(maps.Keys(affected)),
			OccurredAt: now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Dispatch(events...)
	return out, nil
}

// CompleteElapsed marks bookings of finished slots Completed.
func (s *BookingService) CompleteElapsed(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repos.Bookings.CompleteElapsed(ctx, now)
	if err != nil {
		return 0, apperr.Wrap(err, "failed to complete bookings")
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("Bookings completed")
	}
	return n, nil
}

// GetMyBookings returns bookings seating the user with slots starting in
// [from, to).
func (s *BookingService) GetMyBookings(ctx context.Context, userID int64, from, to time.Time) ([]*model.GameBooking, error) {
	if !to.After(from) {
		return nil, apperr.Invalid("to must be after from")
	}
	list, err := s.repos.Bookings.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list bookings")
	}
	return list, nil
}

// GetMyRequests returns requests the user takes part in with slots
// starting in [from, to).
func (s *BookingService) GetMyRequests(ctx context.Context, userID int64, from, to time.Time) ([]*model.GameSlotRequest, error) {
	if !to.After(from) {
		return nil, apperr.Invalid("to must be after from")
	}
	list, err := s.repos.Requests.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list requests")
	}
	return list, nil
}
