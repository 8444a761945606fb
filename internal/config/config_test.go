package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "weekly", cfg.Scheduling.Cycle)
	assert.Equal(t, "memory", cfg.Lock.Backend)
	assert.Equal(t, 5*time.Second, cfg.Scheduling.LockTimeout)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	day, err := cfg.Scheduling.WeekStartDay()
	require.NoError(t, err)
	assert.Equal(t, time.Monday, day)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
scheduling:
  timezone: Europe/Madrid
  cycle: monthly
lock:
  backend: redis
redis:
  addr: localhost:6379
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("DATABASE_HOST", "db.internal")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "monthly", cfg.Scheduling.Cycle)
	assert.Equal(t, "redis", cfg.Lock.Backend)

	loc, err := cfg.Scheduling.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Madrid", loc.String())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Scheduling: SchedulingConfig{Timezone: "UTC", Cycle: "weekly", WeekStart: "monday", MaxGenerationDays: 31},
			Lock:       LockConfig{Backend: "memory"},
		}
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Scheduling.Cycle = "fortnightly"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Lock.Backend = "redis"
	assert.Error(t, cfg.Validate(), "redis backend needs an address")

	cfg = valid()
	cfg.Scheduling.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Notify.Telegram = true
	assert.Error(t, cfg.Validate(), "telegram notifications need a bot token")

	cfg = valid()
	cfg.Scheduling.GenerationHorizonDays = 30
	assert.NoError(t, cfg.Validate(), "today plus 30 days fits in 31")
	cfg.Scheduling.GenerationHorizonDays = 31
	assert.Error(t, cfg.Validate(), "horizon must leave room for today")
}

func TestIsChatAllowed(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.IsChatAllowed(42), "empty whitelist allows all")

	cfg.Bot.Chats = []int64{1, 2}
	assert.True(t, cfg.IsChatAllowed(2))
	assert.False(t, cfg.IsChatAllowed(3))
}
