// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Bot        BotConfig        `mapstructure:"bot"`
	Log        LogConfig        `mapstructure:"log"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Lock       LockConfig       `mapstructure:"lock"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// HTTPConfig holds the REST API listener configuration.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BotConfig holds Telegram bot configuration. An empty token disables
// the chat transport.
type BotConfig struct {
	Token    string  `mapstructure:"token"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
	Chats    []int64 `mapstructure:"chats"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console or json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SchedulingConfig holds slot generation and allocation settings.
type SchedulingConfig struct {
	Timezone              string        `mapstructure:"timezone"`
	Cycle                 string        `mapstructure:"cycle"` // weekly or monthly
	WeekStart             string        `mapstructure:"week_start"`
	GenerationHorizonDays int           `mapstructure:"generation_horizon_days"`
	GenerationInterval    time.Duration `mapstructure:"generation_interval"`
	CompletionInterval    time.Duration `mapstructure:"completion_interval"`
	MaxGenerationDays     int           `mapstructure:"max_generation_days"`
	LockTimeout           time.Duration `mapstructure:"lock_timeout"`
}

// LockConfig selects the per-slot lock backend.
type LockConfig struct {
	Backend string        `mapstructure:"backend"` // memory or redis
	TTL     time.Duration `mapstructure:"ttl"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NotifyConfig holds notification dispatch configuration.
type NotifyConfig struct {
	Log      bool   `mapstructure:"log"`
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
	Telegram bool   `mapstructure:"telegram"`
}

// TracingConfig holds OpenTelemetry exporter configuration. An empty
// endpoint disables tracing.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Location resolves the configured scheduling timezone.
func (s *SchedulingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduling timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// WeekStartDay parses WeekStart into a time.Weekday.
func (s *SchedulingConfig) WeekStartDay() (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s.WeekStart) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid week_start %q", s.WeekStart)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, SCHEDULING_TIMEZONE, REDIS_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Scheduling.Location(); err != nil {
		errs = append(errs, err)
	}
	switch c.Scheduling.Cycle {
	case "weekly":
		if _, err := c.Scheduling.WeekStartDay(); err != nil {
			errs = append(errs, err)
		}
	case "monthly":
	default:
		errs = append(errs, fmt.Errorf("invalid scheduling cycle %q", c.Scheduling.Cycle))
	}
	if c.Scheduling.MaxGenerationDays <= 0 {
		errs = append(errs, errors.New("scheduling.max_generation_days must be positive"))
	}
	if c.Scheduling.GenerationHorizonDays < 0 {
		errs = append(errs, errors.New("scheduling.generation_horizon_days must not be negative"))
	}
	// Generating ahead covers today plus the horizon.
	if c.Scheduling.MaxGenerationDays > 0 && c.Scheduling.GenerationHorizonDays+1 > c.Scheduling.MaxGenerationDays {
		errs = append(errs, fmt.Errorf("scheduling.generation_horizon_days (%d) must be below scheduling.max_generation_days (%d)",
			c.Scheduling.GenerationHorizonDays, c.Scheduling.MaxGenerationDays))
	}
	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis lock backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid lock backend %q", c.Lock.Backend))
	}
	if c.Notify.Telegram && c.Bot.Token == "" {
		errs = append(errs, errors.New("notify.telegram requires bot.token"))
	}

	return errors.Join(errs...)
}

// IsAdmin checks if a Telegram user ID is in the admin list.
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.Bot.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Bot.Chats) == 0 {
		return true
	}
	for _, id := range c.Bot.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "scheduler")
	v.SetDefault("database.name", "scheduler")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// HTTP defaults
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	// Scheduling defaults
	v.SetDefault("scheduling.timezone", "UTC")
	v.SetDefault("scheduling.cycle", "weekly")
	v.SetDefault("scheduling.week_start", "Monday")
	v.SetDefault("scheduling.generation_horizon_days", 7)
	v.SetDefault("scheduling.generation_interval", "1h")
	v.SetDefault("scheduling.completion_interval", "5m")
	v.SetDefault("scheduling.max_generation_days", 62)
	v.SetDefault("scheduling.lock_timeout", "5s")

	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.ttl", "30s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("notify.log", true)
	v.SetDefault("notify.exchange", "game-slots")

	v.SetDefault("tracing.service_name", "game-slot-scheduler")
	v.SetDefault("tracing.environment", "dev")
}
