package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"strategy-sim/internal/strategy"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
//
// Values are resolved in three layers: an optional YAML file, then a .env
// file in the working directory, then process environment variables.
type Config struct {
	// Servers
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Storage
	SQLitePath    string `yaml:"sqlite_path"`
	RedisEnabled  bool   `yaml:"redis_enabled"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Simulation defaults
	InitialCapital  float64 `yaml:"initial_capital"`
	DefaultStrategy string  `yaml:"default_strategy"`
	SpeedMs         int     `yaml:"speed_ms"`
	// DatasetPath is a CSV or JSON file loaded into the session on start.
	DatasetPath string `yaml:"dataset_path"`

	// BatchCron schedules the strategy comparison over every stored dataset.
	// Six fields, seconds first. Empty disables it.
	BatchCron string `yaml:"batch_cron"`

	// Batch reports go to the log and, when set, these channels.
	NotifyWebhook  string `yaml:"notify_webhook"`
	NotifySecret   string `yaml:"notify_secret"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		SQLitePath:      "data/sim.db",
		RedisAddr:       "localhost:6379",
		InitialCapital:  10000,
		DefaultStrategy: string(strategy.SMACrossover),
		SpeedMs:         500,
		LogLevel:        "info",
	}
}

// Load reads path (if non-empty and present), then .env, then the
// environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.DefaultStrategy = getEnv("DEFAULT_STRATEGY", cfg.DefaultStrategy)
	cfg.DatasetPath = getEnv("DATASET_PATH", cfg.DatasetPath)
	cfg.BatchCron = getEnv("BATCH_CRON", cfg.BatchCron)
	cfg.NotifyWebhook = getEnv("NOTIFY_WEBHOOK", cfg.NotifyWebhook)
	cfg.NotifySecret = getEnv("NOTIFY_SECRET", cfg.NotifySecret)
	cfg.TelegramToken = getEnv("TELEGRAM_TOKEN", cfg.TelegramToken)
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", cfg.TelegramChatID)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	var err error
	if cfg.RedisEnabled, err = getBool("REDIS_ENABLED", cfg.RedisEnabled); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}
	if cfg.SpeedMs, err = getInt("SPEED_MS", cfg.SpeedMs); err != nil {
		return nil, err
	}
	if v := os.Getenv("INITIAL_CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("config: INITIAL_CAPITAL %q: %w", v, err)
		}
		cfg.InitialCapital = f
	}

	return cfg, nil
}

// Validate checks ranges and identifiers.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("config: http_addr is required")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("config: initial_capital must be positive, got %g", c.InitialCapital)
	}
	if _, ok := strategy.ParseID(c.DefaultStrategy); !ok {
		return fmt.Errorf("config: unknown default_strategy %q", c.DefaultStrategy)
	}
	if c.SpeedMs < 10 {
		return fmt.Errorf("config: speed_ms must be at least 10, got %d", c.SpeedMs)
	}
	if c.RedisEnabled && c.RedisAddr == "" {
		return fmt.Errorf("config: redis_addr is required when redis is enabled")
	}
	if c.BatchCron != "" {
		if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(c.BatchCron); err != nil {
			return fmt.Errorf("config: batch_cron %q: %w", c.BatchCron, err)
		}
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("config: telegram_token and telegram_chat_id must be set together")
	}
	return nil
}

// Speed returns SpeedMs as a duration.
func (c *Config) Speed() time.Duration {
	return time.Duration(c.SpeedMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s %q: %w", key, v, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("config: %s %q: %w", key, v, err)
	}
	return b, nil
}

// Log prints the effective configuration without secrets.
func (c *Config) Log() {
	redis := "disabled"
	if c.RedisEnabled {
		redis = c.RedisAddr
	}
	log.Printf("[config] http=%s metrics=%s sqlite=%s redis=%s capital=%g strategy=%s speed=%dms batch_cron=%q",
		c.HTTPAddr, c.MetricsAddr, c.SQLitePath, redis, c.InitialCapital, c.DefaultStrategy, c.SpeedMs, c.BatchCron)
}
