package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/class_track_bot/internal/model"
	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	TelegramToken string
	DBDSN         string
	Environment   string
	Store         string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Timezone string
	AdminIDs []int64

	Defaults model.Defaults

	ReminderPollInterval   time.Duration
	HorizonInterval        time.Duration
	BalanceWarningInterval time.Duration
	MigrationsPath         string
	MetricsAddr            string
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv(os.Getenv)
}

// FromEnv собирает конфигурацию из функции чтения переменных окружения
func FromEnv(getenv func(string) string) (*Config, error) {
	defaults := model.DefaultSettings()

	cfg := &Config{
		DBDSN:          getenv("DB_DSN"),
		TelegramToken:  getenv("TELEGRAM_TOKEN"),
		Environment:    getenv("ENV"),
		Store:          strings.ToLower(getenv("STORE")),
		RedisAddr:      getenv("REDIS_ADDR"),
		RedisPassword:  getenv("REDIS_PASSWORD"),
		Timezone:       getenv("TIMEZONE"),
		MigrationsPath: getenv("MIGRATIONS_PATH"),
		MetricsAddr:    getenv("METRICS_ADDR"),
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Store == "" {
		cfg.Store = StorePostgres
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Bangkok"
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "migrations"
	}

	var err error
	if cfg.RedisDB, err = intVar(getenv, "REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.AdminIDs, err = int64List(getenv("ADMIN_IDS")); err != nil {
		return nil, fmt.Errorf("ADMIN_IDS: %w", err)
	}

	if defaults.CutoffHours, err = intVar(getenv, "DEFAULT_CUTOFF_HOURS", defaults.CutoffHours); err != nil {
		return nil, err
	}
	if defaults.CycleWeeks, err = intVar(getenv, "DEFAULT_CYCLE_WEEKS", defaults.CycleWeeks); err != nil {
		return nil, err
	}
	if defaults.ReminderOffsetMinutes, err = intVar(getenv, "DEFAULT_REMINDER_MINUTES", defaults.ReminderOffsetMinutes); err != nil {
		return nil, err
	}
	if v := getenv("DEFAULT_DURATION_HOURS"); v != "" {
		if defaults.DurationHours, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("DEFAULT_DURATION_HOURS: %w", err)
		}
	}
	cfg.Defaults = defaults

	if cfg.ReminderPollInterval, err = durationVar(getenv, "REMINDER_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HorizonInterval, err = durationVar(getenv, "HORIZON_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BalanceWarningInterval, err = durationVar(getenv, "BALANCE_WARNING_INTERVAL", time.Hour); err != nil {
		return nil, err
	}

	// Проверяем обязательные поля
	switch cfg.Store {
	case StorePostgres:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required but not set")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
	if defaults.CycleWeeks < 1 || defaults.CutoffHours < 0 || defaults.DurationHours <= 0 || defaults.ReminderOffsetMinutes < 0 {
		return nil, fmt.Errorf("invalid default settings: %+v", defaults)
	}

	return cfg, nil
}

// Location загружает рабочую часовую зону
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func int64List(v string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
