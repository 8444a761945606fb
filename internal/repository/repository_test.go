// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"game-slot-scheduler/internal/game/slotgen"
	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestDB creates a PostgreSQL container, applies the schema and
// returns a pool. Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

type fixture struct {
	repos *Repositories
	game  *model.Game
	users []*model.User
}

func newFixture(t *testing.T, pool *pgxpool.Pool, users int) *fixture {
	ctx := context.Background()
	repos := New(pool)

	game, err := repos.Games.Create(ctx, &model.Game{
		Name:                "Table Tennis",
		OperatingStart:      9 * time.Hour,
		OperatingEnd:        11 * time.Hour,
		SlotDurationMinutes: 30,
		MaxPlayersPerSlot:   2,
	})
	require.NoError(t, err)

	f := &fixture{repos: repos, game: game}
	for i := 0; i < users; i++ {
		u, err := repos.Users.Create(ctx, "player", "", nil)
		require.NoError(t, err)
		f.users = append(f.users, u)
	}
	return f
}

func (f *fixture) slot(t *testing.T, start time.Time) *model.GameSlot {
	ctx := context.Background()
	_, err := f.repos.Slots.CreateBatch(ctx, f.game.ID, []slotgen.Window{{Start: start, End: start.Add(30 * time.Minute)}})
	require.NoError(t, err)

	slots, err := f.repos.Slots.ListStartingBetween(ctx, f.game.ID, start, start.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	return slots[0]
}

func TestGameRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := newFixture(t, pool, 0)

	t.Run("operating hours round trip", func(t *testing.T) {
		got, err := f.repos.Games.GetByID(ctx, f.game.ID)
		require.NoError(t, err)
		assert.Equal(t, 9*time.Hour, got.OperatingStart)
		assert.Equal(t, 11*time.Hour, got.OperatingEnd)
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := f.repos.Games.Create(ctx, &model.Game{
			Name: "Table Tennis", OperatingStart: time.Hour, OperatingEnd: 2 * time.Hour,
			SlotDurationMinutes: 15, MaxPlayersPerSlot: 4,
		})
		assert.ErrorIs(t, err, ErrDuplicateGameName)
	})

	t.Run("by name ignores case", func(t *testing.T) {
		got, err := f.repos.Games.GetByName(ctx, "table tennis")
		require.NoError(t, err)
		assert.Equal(t, f.game.ID, got.ID)
	})

	t.Run("missing game", func(t *testing.T) {
		_, err := f.repos.Games.GetByID(ctx, 999999)
		assert.ErrorIs(t, err, ErrGameNotFound)
	})
}

func TestSlotRepositoryCreateBatchSkipsExisting(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := newFixture(t, pool, 0)

	day := time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)
	windows, err := slotgen.Windows(slotgen.Hours{Start: 9 * time.Hour, End: 11 * time.Hour, SlotDuration: 30 * time.Minute}, day, day, time.UTC, 0)
	require.NoError(t, err)

	n, err := f.repos.Slots.CreateBatch(ctx, f.game.ID, windows)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = f.repos.Slots.CreateBatch(ctx, f.game.ID, windows)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	slots, err := f.repos.Slots.ListOverlapping(ctx, f.game.ID, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, slots, 4)
	for _, s := range slots {
		assert.Equal(t, model.SlotOpen, s.Status)
	}
}

func TestRequestRepositoryExclusivity(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := newFixture(t, pool, 3)
	slot := f.slot(t, time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC))
	a, b, c := f.users[0].ID, f.users[1].ID, f.users[2].ID
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	req, err := f.repos.Requests.Create(ctx, slot.ID, f.game.ID, a, []int64{a, b}, now)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, req.Status)

	_, err = f.repos.Requests.Create(ctx, slot.ID, f.game.ID, c, []int64{c, b}, now)
	assert.ErrorIs(t, err, ErrParticipantConflict)

	active, err := f.repos.Requests.ActiveParticipantsAmong(ctx, slot.ID, []int64{a, b, c})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a, b}, active)

	require.NoError(t, f.repos.Requests.UpdateStatus(ctx, req.ID, model.RequestCancelled))

	active, err = f.repos.Requests.ActiveParticipantsAmong(ctx, slot.ID, []int64{a, b, c})
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = f.repos.Requests.Create(ctx, slot.ID, f.game.ID, c, []int64{c, b}, now)
	assert.NoError(t, err, "cancelled participation no longer blocks")
}

func TestBookingRepositoryLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := newFixture(t, pool, 2)
	start := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	slot := f.slot(t, start)
	a, b := f.users[0].ID, f.users[1].ID

	req, err := f.repos.Requests.Create(ctx, slot.ID, f.game.ID, a, []int64{a, b}, start.Add(-time.Hour))
	require.NoError(t, err)

	booking, err := f.repos.Bookings.Create(ctx, slot.ID, f.game.ID, req.ID, a, []int64{a, b})
	require.NoError(t, err)
	assert.Equal(t, model.BookingBooked, booking.Status)

	seated, err := f.repos.Bookings.SeatedUserIDs(ctx, slot.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a, b}, seated)

	counts, err := f.repos.Slots.SeatCounts(ctx, []int64{slot.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, counts[slot.ID])

	mine, err := f.repos.Bookings.ListByUser(ctx, b, start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, booking.ID, mine[0].ID)

	require.NoError(t, f.repos.Bookings.Cancel(ctx, booking.ID))

	seated, err = f.repos.Bookings.SeatedUserIDs(ctx, slot.ID)
	require.NoError(t, err)
	assert.Empty(t, seated)

	_, err = f.repos.Bookings.GetBookedByRequest(ctx, req.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestBookingRepositoryCompleteElapsed(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := newFixture(t, pool, 1)
	start := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	slot := f.slot(t, start)
	a := f.users[0].ID

	req, err := f.repos.Requests.Create(ctx, slot.ID, f.game.ID, a, []int64{a}, start.Add(-time.Hour))
	require.NoError(t, err)
	booking, err := f.repos.Bookings.Create(ctx, slot.ID, f.game.ID, req.ID, a, []int64{a})
	require.NoError(t, err)

	n, err := f.repos.Bookings.CompleteElapsed(ctx, start.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n, "slot still running")

	n, err = f.repos.Bookings.CompleteElapsed(ctx, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.repos.Bookings.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, got.Status)
}

func TestHistoryRepositoryIncrement(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := newFixture(t, pool, 2)
	a, b := f.users[0].ID, f.users[1].ID

	cycleStart := time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)
	cycleEnd := cycleStart.AddDate(0, 0, 7)

	require.NoError(t, f.repos.Histories.Increment(ctx, []int64{a, b}, f.game.ID, cycleStart, cycleEnd, cycleStart.Add(9*time.Hour)))
	require.NoError(t, f.repos.Histories.Increment(ctx, []int64{a}, f.game.ID, cycleStart, cycleEnd, cycleStart.Add(8*time.Hour)))

	counts, err := f.repos.Histories.PlayCounts(ctx, []int64{a, b}, f.game.ID, cycleStart, cycleEnd)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[a])
	assert.Equal(t, 1, counts[b])

	rows, err := f.repos.Histories.ListByUserInCycle(ctx, a, cycleStart, cycleEnd)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].LastPlayedDate.Equal(cycleStart.Add(9*time.Hour)), "last played never moves backwards")
}

func TestInterestRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	f := newFixture(t, pool, 2)
	a, b := f.users[0].ID, f.users[1].ID

	_, err := f.repos.Interests.Set(ctx, a, f.game.ID, true)
	require.NoError(t, err)
	_, err = f.repos.Interests.Set(ctx, b, f.game.ID, true)
	require.NoError(t, err)
	_, err = f.repos.Interests.Set(ctx, b, f.game.ID, false)
	require.NoError(t, err)

	ids, err := f.repos.Interests.InterestedAmong(ctx, f.game.ID, []int64{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, ids)

	ok, err := f.repos.Interests.IsInterested(ctx, b, f.game.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := f.repos.Users.ExistingIDs(ctx, []int64{a, 424242})
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, found)
}
