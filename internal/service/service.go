// Package service implements the scheduling use cases on top of the
// repositories, the pure engines and the per-slot lock.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/pkg/lock"
	"game-slot-scheduler/internal/repository"
)

// TxRunner runs fn in one database transaction. *db.Pool implements it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// translate maps repository and lock failures onto the apperr taxonomy.
// entity and id name the object the caller asked for.
func translate(err error, entity string, id int64) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrGameNotFound),
		errors.Is(err, repository.ErrSlotNotFound),
		errors.Is(err, repository.ErrRequestNotFound),
		errors.Is(err, repository.ErrBookingNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return apperr.NotFound(entity, id)
	case errors.Is(err, repository.ErrDuplicateGameName):
		return apperr.Invalid("game name already exists")
	case errors.Is(err, repository.ErrTelegramLinked):
		return apperr.Invalid("telegram account is already linked to another user")
	case errors.Is(err, repository.ErrParticipantConflict):
		return apperr.Invalid("a participant already has an active request on this slot")
	case errors.Is(err, repository.ErrSeatConflict):
		return apperr.Invalid("a participant is already seated on this slot")
	case errors.Is(err, lock.ErrLockTimeout):
		return apperr.Internal("slot busy", err)
	default:
		return apperr.Wrap(err, fmt.Sprintf("failed to process %s %d", entity, id))
	}
}

// participantSet returns requester followed by the distinct other
// participants, in first-seen order.
func participantSet(requester int64, others []int64) []int64 {
	out := []int64{requester}
	for _, id := range others {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// missing returns the ids of want that are absent from have.
func missing(want, have []int64) []int64 {
	var out []int64
	for _, id := range want {
		if !slices.Contains(have, id) {
			out = append(out, id)
		}
	}
	return out
}
