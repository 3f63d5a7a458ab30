package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN                string        `mapstructure:"DB_DSN"`
	Environment          string        `mapstructure:"ENV"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	HTTPAddr             string        `mapstructure:"HTTP_ADDR"`
	TelegramToken        string        `mapstructure:"TELEGRAM_TOKEN"`
	FaceServiceURL       string        `mapstructure:"FACE_SERVICE_URL"`
	FaceTimeout          time.Duration `mapstructure:"FACE_SERVICE_TIMEOUT"`
	Timezone             string        `mapstructure:"TIMEZONE"`
	ConflictDebounce     time.Duration `mapstructure:"CONFLICT_DEBOUNCE"`
	AbsenceSweepInterval time.Duration `mapstructure:"ABSENCE_SWEEP_INTERVAL"`
	DialogIdleTimeout    time.Duration `mapstructure:"DIALOG_IDLE_TIMEOUT"`
	MigrationsEnabled    bool          `mapstructure:"MIGRATIONS_ENABLED"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv()
}

// FromEnv читает конфигурацию из переменных окружения
func FromEnv() (*Config, error) {
	cfg := &Config{
		DBDSN:          os.Getenv("DB_DSN"),
		Environment:    getString("ENV", "development"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		HTTPAddr:       getString("HTTP_ADDR", ":8080"),
		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		FaceServiceURL: os.Getenv("FACE_SERVICE_URL"),
		Timezone:       getString("TIMEZONE", "Local"),
	}

	var err error
	if cfg.FaceTimeout, err = getDuration("FACE_SERVICE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	// Пауза перед фоновой проверкой пересечений в диалогах бота
	if cfg.ConflictDebounce, err = getDuration("CONFLICT_DEBOUNCE", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.AbsenceSweepInterval, err = getDuration("ABSENCE_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DialogIdleTimeout, err = getDuration("DIALOG_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MigrationsEnabled, err = getBool("MIGRATIONS_ENABLED", true); err != nil {
		return nil, err
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}

	return cfg, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

// Location часовой пояс, в котором заданы даты и время занятий
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// BotEnabled бот запускается только при заданном токене
func (c *Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
