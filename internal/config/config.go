package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Telegram     TelegramConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Subscription SubscriptionConfig
	Logging      LoggingConfig

	// Storage selects the backend: "postgres" or "memory".
	Storage     string
	MetricsAddr string
}

type TelegramConfig struct {
	BotToken string
}

type PostgresConfig struct {
	// DSN may be empty, then the store builds one from POSTGRES_* variables.
	DSN string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type SubscriptionConfig struct {
	MainAdminID       int64
	PriceStars        int
	InvoicePayload    string
	BonusChannel      string
	DeleteNotifyDelay time.Duration
	SweepInterval     time.Duration
}

type LoggingConfig struct {
	Level  string
	Pretty bool
}

// Load reads envPath (missing file is fine) and then the process environment.
// Variables already set in the environment win over the file.
func Load(envPath string) (*Config, error) {
	if path := strings.TrimSpace(envPath); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	mainAdmin, err := getInt64("MAIN_ADMIN_ID", 0)
	if err != nil {
		return nil, err
	}
	price, err := getInt("SUB_PRICE_STARS", 49)
	if err != nil {
		return nil, err
	}
	delayMs, err := getInt("DELETE_NOTIFY_DELAY_MS", 500)
	if err != nil {
		return nil, err
	}
	sweepMin, err := getInt("SWEEP_INTERVAL_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	ttlHours, err := getInt("CONNECTION_CACHE_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			BotToken: getEnv("BOT_TOKEN", ""),
		},
		Postgres: PostgresConfig{
			DSN: getEnv("POSTGRES_DSN", ""),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			Prefix:   getEnv("REDIS_PREFIX", "bizwatch"),
			TTL:      time.Duration(ttlHours) * time.Hour,
		},
		Subscription: SubscriptionConfig{
			MainAdminID:       mainAdmin,
			PriceStars:        price,
			InvoicePayload:    getEnv("SUB_PAYLOAD", "monthly_subscription"),
			BonusChannel:      getEnv("BONUS_CHANNEL", ""),
			DeleteNotifyDelay: time.Duration(delayMs) * time.Millisecond,
			SweepInterval:     time.Duration(sweepMin) * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnv("LOG_PRETTY", "true") == "true",
		},
		Storage:     strings.ToLower(getEnv("STORAGE", "postgres")),
		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Subscription.MainAdminID <= 0 {
		return fmt.Errorf("MAIN_ADMIN_ID is required")
	}
	if c.Subscription.PriceStars <= 0 {
		return fmt.Errorf("SUB_PRICE_STARS must be positive")
	}
	if c.Subscription.DeleteNotifyDelay < 0 {
		return fmt.Errorf("DELETE_NOTIFY_DELAY_MS must not be negative")
	}
	if c.Subscription.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_MINUTES must be positive")
	}
	switch c.Storage {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORAGE must be postgres or memory, got %q", c.Storage)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
