package handler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/service"
)

// fakeContext records replies. Methods the handlers do not call panic
// through the nil embedded interface.
type fakeContext struct {
	tele.Context
	sender  *tele.User
	args    []string
	replies []string
}

func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Args() []string     { return f.args }
func (f *fakeContext) Text() string       { return "/cmd " + strings.Join(f.args, " ") }
func (f *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	f.replies = append(f.replies, what.(string))
	return nil
}

func (f *fakeContext) last() string {
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func newContext(telegramID int64, args ...string) *fakeContext {
	return &fakeContext{sender: &tele.User{ID: telegramID}, args: args}
}

type fakeUsers struct {
	byTelegram map[int64]*model.User
	linked     [][2]int64
}

func (f *fakeUsers) ByTelegramID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := f.byTelegram[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("telegram account", id)
}

func (f *fakeUsers) LinkTelegram(_ context.Context, userID, telegramID int64) error {
	f.linked = append(f.linked, [2]int64{userID, telegramID})
	return nil
}

type fakeGames struct{ games []*model.Game }

func (f *fakeGames) GetByName(_ context.Context, name string) (*model.Game, error) {
	for _, g := range f.games {
		if strings.EqualFold(g.Name, name) {
			return g, nil
		}
	}
	return nil, apperr.Invalid("unknown game %q", name)
}

func (f *fakeGames) List(context.Context) ([]*model.Game, error) { return f.games, nil }

type fakeInterests struct{ calls []model.UserGameInterest }

func (f *fakeInterests) SetInterest(_ context.Context, userID, gameID int64, on bool) (*model.UserGameInterest, error) {
	i := model.UserGameInterest{UserID: userID, GameID: gameID, IsInterested: on}
	f.calls = append(f.calls, i)
	return &i, nil
}

type fakeSlots struct {
	slot      *model.SlotAvailability
	forDate   time.Time
	generated [2]time.Time
}

func (f *fakeSlots) GenerateSlots(_ context.Context, _ int64, from, to time.Time) ([]*model.GameSlot, error) {
	f.generated = [2]time.Time{from, to}
	return []*model.GameSlot{{ID: 1}, {ID: 2}}, nil
}

func (f *fakeSlots) GetSlot(_ context.Context, id int64) (*model.SlotAvailability, error) {
	if f.slot == nil || f.slot.ID != id {
		return nil, apperr.NotFound("slot", id)
	}
	return f.slot, nil
}

func (f *fakeSlots) GetSlotsForDate(_ context.Context, _ int64, date time.Time) ([]*model.SlotAvailability, error) {
	f.forDate = date
	if f.slot == nil {
		return nil, nil
	}
	return []*model.SlotAvailability{f.slot}, nil
}

type fakeBookings struct {
	Bookings
	request  service.RequestSlotInput
	cancelBy int64
	err      error
}

func (f *fakeBookings) RequestSlot(_ context.Context, in service.RequestSlotInput) (*service.RequestSlotResult, error) {
	f.request = in
	if f.err != nil {
		return nil, f.err
	}
	return &service.RequestSlotResult{
		Request:    &model.GameSlotRequest{ID: 7, SlotID: in.SlotID, Status: model.RequestAssigned},
		Allocation: &model.AllocationResult{AssignedUserIDs: append([]int64{in.RequesterID}, in.ParticipantIDs...)},
	}, nil
}

func (f *fakeBookings) CancelRequest(_ context.Context, _, callerID int64, _ time.Time) (*service.CancelResult, error) {
	f.cancelBy = callerID
	return &service.CancelResult{Allocation: &model.AllocationResult{AssignedRequests: []int64{9}}}, f.err
}

func (f *fakeBookings) LockSlot(_ context.Context, id int64, _ time.Time) (*model.GameSlot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.GameSlot{ID: id, Status: model.SlotLocked}, nil
}

var (
	employee    = &model.User{ID: 3, Name: "Ada"}
	tableTennis = &model.Game{ID: 1, Name: "Table Tennis", OperatingStart: 9 * time.Hour, OperatingEnd: 11 * time.Hour, SlotDurationMinutes: 30, MaxPlayersPerSlot: 2}
	fixedNow    = time.Date(2030, 1, 6, 12, 0, 0, 0, time.UTC)
)

func newSchedule(b *fakeBookings, s *fakeSlots, i *fakeInterests) *ScheduleHandler {
	users := &fakeUsers{byTelegram: map[int64]*model.User{100: employee}}
	return NewScheduleHandler(users, &fakeGames{games: []*model.Game{tableTennis}}, i, s, b, time.UTC,
		func() time.Time { return fixedNow })
}

func TestUnlinkedSenderIsTold(t *testing.T) {
	h := newSchedule(&fakeBookings{}, &fakeSlots{}, &fakeInterests{})
	c := newContext(555)

	require.NoError(t, h.HandleMyBookings(c))
	assert.Equal(t, notLinkedText, c.last())
}

func TestInterestAcceptsMultiWordGame(t *testing.T) {
	interests := &fakeInterests{}
	h := newSchedule(&fakeBookings{}, &fakeSlots{}, interests)
	c := newContext(100, "table", "tennis", "on")

	require.NoError(t, h.HandleInterest(c))
	require.Len(t, interests.calls, 1)
	assert.Equal(t, int64(3), interests.calls[0].UserID)
	assert.True(t, interests.calls[0].IsInterested)
	assert.Contains(t, c.last(), "Table Tennis")
}

func TestInterestRejectsBadToggle(t *testing.T) {
	interests := &fakeInterests{}
	h := newSchedule(&fakeBookings{}, &fakeSlots{}, interests)
	c := newContext(100, "Table", "Tennis", "maybe")

	require.NoError(t, h.HandleInterest(c))
	assert.Empty(t, interests.calls)
	assert.Contains(t, c.last(), "on or off")
}

func TestSlotsDefaultsToToday(t *testing.T) {
	slots := &fakeSlots{}
	h := newSchedule(&fakeBookings{}, slots, &fakeInterests{})

	c := newContext(100, "Table", "Tennis")
	require.NoError(t, h.HandleSlots(c))
	assert.Equal(t, fixedNow, slots.forDate)
	assert.Contains(t, c.last(), "No slots")

	c = newContext(100, "Table", "Tennis", "2030-01-07")
	require.NoError(t, h.HandleSlots(c))
	assert.Equal(t, time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC), slots.forDate)
}

func TestRequestResolvesGameFromSlot(t *testing.T) {
	bookings := &fakeBookings{}
	slots := &fakeSlots{slot: &model.SlotAvailability{GameSlot: model.GameSlot{ID: 42, GameID: 1}}}
	h := newSchedule(bookings, slots, &fakeInterests{})
	c := newContext(100, "#42", "5")

	require.NoError(t, h.HandleRequest(c))
	assert.Equal(t, service.RequestSlotInput{
		GameID:         1,
		SlotID:         42,
		RequesterID:    3,
		ParticipantIDs: []int64{5},
		Now:            fixedNow,
	}, bookings.request)
	assert.Equal(t, "✅ Request #7 assigned. Seated: 3, 5", c.last())
}

func TestRequestRendersServiceErrors(t *testing.T) {
	bookings := &fakeBookings{err: apperr.Invalid("slot has already started")}
	slots := &fakeSlots{slot: &model.SlotAvailability{GameSlot: model.GameSlot{ID: 42, GameID: 1}}}
	h := newSchedule(bookings, slots, &fakeInterests{})

	c := newContext(100, "42")
	require.NoError(t, h.HandleRequest(c))
	assert.Equal(t, "❌ slot has already started", c.last())

	c = newContext(100, "43")
	require.NoError(t, h.HandleRequest(c))
	assert.Equal(t, "❌ slot 43 not found", c.last())
}

func TestCancelRequestReportsBackfill(t *testing.T) {
	bookings := &fakeBookings{}
	h := newSchedule(bookings, &fakeSlots{}, &fakeInterests{})
	c := newContext(100, "8")

	require.NoError(t, h.HandleCancelRequest(c))
	assert.Equal(t, int64(3), bookings.cancelBy)
	assert.Equal(t, "🚫 Request #8 cancelled. Seats went to 1 waiting request(s).", c.last())
}

func TestAdminGenerateAndLink(t *testing.T) {
	users := &fakeUsers{}
	slots := &fakeSlots{}
	h := NewAdminHandler(users, &fakeGames{games: []*model.Game{tableTennis}}, slots, &fakeBookings{}, time.UTC,
		func() time.Time { return fixedNow })

	c := newContext(1, "Table", "Tennis", "2030-01-07", "2030-01-09")
	require.NoError(t, h.HandleGenerate(c))
	assert.Equal(t, time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC), slots.generated[0])
	assert.Equal(t, time.Date(2030, 1, 9, 0, 0, 0, 0, time.UTC), slots.generated[1])
	assert.Contains(t, c.last(), "2 slots")

	c = newContext(1, "Table", "Tennis")
	require.NoError(t, h.HandleGenerate(c))
	assert.Contains(t, c.last(), "start date")

	c = newContext(1, "12", "123456789")
	require.NoError(t, h.HandleLink(c))
	assert.Equal(t, [][2]int64{{12, 123456789}}, users.linked)
}

func TestAdminLockSlot(t *testing.T) {
	bookings := &fakeBookings{}
	h := NewAdminHandler(&fakeUsers{}, &fakeGames{}, &fakeSlots{}, bookings, time.UTC, nil)

	c := newContext(1, "4")
	require.NoError(t, h.HandleLockSlot(c))
	assert.Contains(t, c.last(), "Slot #4 is locked")

	c = newContext(1)
	require.NoError(t, h.HandleLockSlot(c))
	assert.Equal(t, "❌ Usage: /lockslot <slot>", c.last())

	bookings.err = apperr.Internal("slot busy", nil)
	c = newContext(1, "4")
	require.NoError(t, h.HandleLockSlot(c))
	assert.Equal(t, "❌ internal error", c.last())
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"#42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitTrailingDatesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfN(rapid.StringMatching(`[A-Za-z]{1,8}`), 1, 4).Draw(t, "words")
		n := rapid.IntRange(0, 2).Draw(t, "dates")
		args := append([]string{}, words...)
		for i := 0; i < n; i++ {
			args = append(args, time.Date(2030, 1, 1+i, 0, 0, 0, 0, time.UTC).Format(time.DateOnly))
		}

		name, dates, err := splitTrailingDates(args, 2, time.UTC)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != strings.Join(words, " ") {
			t.Fatalf("name = %q, want %q", name, strings.Join(words, " "))
		}
		if len(dates) != n {
			t.Fatalf("got %d dates, want %d", len(dates), n)
		}
	})
}
