package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/herodraft/draft-server/internal/engine"
)

// Config holds draft-server configuration, loaded from the environment.
type Config struct {
	AppEnv   string // APP_ENV
	AppHost  string // APP_HOST
	HTTPPort string // APP_PORT or HTTP_PORT
	LogLevel string // LOG_LEVEL

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	// Draft timing. All delays in milliseconds on the wire.
	BanTimer   time.Duration // BAN_TIMER_MS
	PickTimer  time.Duration // PICK_TIMER_MS
	GraceDelay time.Duration // GRACE_DELAY_MS: both captains ready -> coin window
	FlipDelay  time.Duration // FLIP_DELAY_MS: both chosen -> flip

	// TurnPattern is the W/L ban-pick token string resolved against the
	// coin-toss winner; see engine.ParsePattern.
	TurnPattern string // TURN_PATTERN
}

// Load reads the environment (.env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		AppHost:     getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:    firstEnv("APP_PORT", "HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		BanTimer:    msEnv("BAN_TIMER_MS", 30_000),
		PickTimer:   msEnv("PICK_TIMER_MS", 30_000),
		GraceDelay:  msEnv("GRACE_DELAY_MS", 2_000),
		FlipDelay:   msEnv("FLIP_DELAY_MS", 1_500),
		TurnPattern: getEnv("TURN_PATTERN", engine.DefaultPattern),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "draft_server")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

// Validate checks required fields and production safety.
func (c *Config) Validate() error {
	if c.DB.Host == "" {
		return errors.New("config: DB_HOST is required")
	}
	if c.DB.User == "" {
		return errors.New("config: DB_USER is required")
	}
	if c.DB.Database == "" {
		return errors.New("config: DB_DATABASE is required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.BanTimer <= 0 || c.PickTimer <= 0 {
		return errors.New("config: BAN_TIMER_MS and PICK_TIMER_MS must be positive")
	}
	if _, err := engine.ParsePattern(c.TurnPattern); err != nil {
		return fmt.Errorf("config: TURN_PATTERN: %w", err)
	}
	return nil
}

// Pattern returns the parsed turn pattern. Call Validate first.
func (c *Config) Pattern() []engine.PatternStep {
	p, _ := engine.ParsePattern(c.TurnPattern)
	return p
}

// DSN returns the PostgreSQL connection string for GORM.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func msEnv(key string, def int64) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(def) * time.Millisecond
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Duration(def) * time.Millisecond
	}
	return time.Duration(n) * time.Millisecond
}
