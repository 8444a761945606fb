package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "users table",
		sql: `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL DEFAULT '',
			telegram_id BIGINT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	},
	{
		name: "games table",
		sql: `
		CREATE TABLE IF NOT EXISTS games (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			operating_start TIME NOT NULL,
			operating_end TIME NOT NULL,
			slot_duration_minutes INT NOT NULL CHECK (slot_duration_minutes > 0),
			max_players_per_slot INT NOT NULL CHECK (max_players_per_slot > 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	},
	{
		name: "game_slots table",
		sql: `
		CREATE TABLE IF NOT EXISTS game_slots (
			id BIGSERIAL PRIMARY KEY,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'Open',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (end_time > start_time),
			UNIQUE (game_id, start_time)
		);
		CREATE INDEX IF NOT EXISTS idx_game_slots_game_window ON game_slots(game_id, start_time, end_time);`,
	},
	{
		name: "user_game_interests table",
		sql: `
		CREATE TABLE IF NOT EXISTS user_game_interests (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			is_interested BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, game_id)
		);`,
	},
	{
		name: "game_slot_requests tables",
		sql: `
		CREATE TABLE IF NOT EXISTS game_slot_requests (
			id BIGSERIAL PRIMARY KEY,
			slot_id BIGINT NOT NULL REFERENCES game_slots(id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			requested_by BIGINT NOT NULL REFERENCES users(id),
			status VARCHAR(20) NOT NULL DEFAULT 'Pending',
			requested_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_requests_slot_status ON game_slot_requests(slot_id, status, requested_at);
		CREATE INDEX IF NOT EXISTS idx_requests_requested_by ON game_slot_requests(requested_by);

		CREATE TABLE IF NOT EXISTS game_slot_request_participants (
			request_id BIGINT NOT NULL REFERENCES game_slot_requests(id) ON DELETE CASCADE,
			slot_id BIGINT NOT NULL REFERENCES game_slots(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id),
			active BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (request_id, user_id)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_request_participant_active
			ON game_slot_request_participants(slot_id, user_id) WHERE active;
		CREATE INDEX IF NOT EXISTS idx_request_participants_user ON game_slot_request_participants(user_id);`,
	},
	{
		name: "game_bookings tables",
		sql: `
		CREATE TABLE IF NOT EXISTS game_bookings (
			id BIGSERIAL PRIMARY KEY,
			slot_id BIGINT NOT NULL REFERENCES game_slots(id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			request_id BIGINT NOT NULL REFERENCES game_slot_requests(id),
			created_by BIGINT NOT NULL REFERENCES users(id),
			status VARCHAR(20) NOT NULL DEFAULT 'Booked',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_bookings_slot_status ON game_bookings(slot_id, status);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_bookings_request ON game_bookings(request_id);

		CREATE TABLE IF NOT EXISTS game_booking_participants (
			booking_id BIGINT NOT NULL REFERENCES game_bookings(id) ON DELETE CASCADE,
			slot_id BIGINT NOT NULL REFERENCES game_slots(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id),
			active BOOLEAN NOT NULL DEFAULT TRUE,
			PRIMARY KEY (booking_id, user_id)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_booking_participant_active
			ON game_booking_participants(slot_id, user_id) WHERE active;
		CREATE INDEX IF NOT EXISTS idx_booking_participants_user ON game_booking_participants(user_id);`,
	},
	{
		name: "game_histories table",
		sql: `
		CREATE TABLE IF NOT EXISTS game_histories (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			cycle_start TIMESTAMPTZ NOT NULL,
			cycle_end TIMESTAMPTZ NOT NULL,
			slots_played INT NOT NULL DEFAULT 0,
			last_played_date TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, game_id, cycle_start, cycle_end)
		);`,
	},
}

// Migrate applies the schema. Every statement is idempotent so it runs
// on each start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
