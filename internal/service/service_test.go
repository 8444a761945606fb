package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/pkg/lock"
	"game-slot-scheduler/internal/repository"
)

func TestGameInputValidate(t *testing.T) {
	valid := GameInput{
		Name:                "Chess",
		OperatingStart:      9 * time.Hour,
		OperatingEnd:        17 * time.Hour,
		SlotDurationMinutes: 60,
		MaxPlayersPerSlot:   2,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*GameInput)
	}{
		{"blank name", func(g *GameInput) { g.Name = "  " }},
		{"end before start", func(g *GameInput) { g.OperatingEnd = 8 * time.Hour }},
		{"end past midnight", func(g *GameInput) { g.OperatingEnd = 25 * time.Hour }},
		{"zero duration", func(g *GameInput) { g.SlotDurationMinutes = 0 }},
		{"zero players", func(g *GameInput) { g.MaxPlayersPerSlot = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			assert.ErrorIs(t, in.Validate(), apperr.ErrInvalidArgument)
		})
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		err  error
		want apperr.Kind
	}{
		{fmt.Errorf("wrapped: %w", repository.ErrSlotNotFound), apperr.KindNotFound},
		{repository.ErrBookingNotFound, apperr.KindNotFound},
		{repository.ErrParticipantConflict, apperr.KindInvalidArgument},
		{repository.ErrDuplicateGameName, apperr.KindInvalidArgument},
		{lock.ErrLockTimeout, apperr.KindInternal},
		{errors.New("connection reset"), apperr.KindInternal},
		{apperr.Invalid("bad"), apperr.KindInvalidArgument},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, apperr.KindOf(translate(tt.err, "slot", 1)), tt.err.Error())
	}
	assert.NoError(t, translate(nil, "slot", 1))
}

func TestParticipantSetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		requester := rapid.Int64Range(1, 20).Draw(t, "requester")
		others := rapid.SliceOf(rapid.Int64Range(1, 20)).Draw(t, "others")

		set := participantSet(requester, others)

		if set[0] != requester {
			t.Fatalf("requester must come first, got %v", set)
		}
		seen := map[int64]bool{}
		for _, id := range set {
			if seen[id] {
				t.Fatalf("duplicate %d in %v", id, set)
			}
			seen[id] = true
		}
		for _, id := range others {
			if !seen[id] {
				t.Fatalf("participant %d dropped from %v", id, set)
			}
		}
		if len(missing(set, set)) != 0 {
			t.Fatalf("missing(set, set) must be empty")
		}
	})
}
