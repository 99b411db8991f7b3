// Package config loads inkmetrics settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is passed explicitly to every component; nothing reads globals.
type Config struct {
	DataDir   string `validate:"required"`
	SourceDir string `validate:"required"`

	BaseURL   string        `validate:"required,url"`
	UserAgent string        `validate:"required"`
	Delay     time.Duration `validate:"min=0"`
	Timeout   time.Duration `validate:"gt=0"`

	CheckpointEvery int    `validate:"gte=1"`
	Locale          string `validate:"required"`
	Timezone        string `validate:"required"`
	Compress        bool
	FullCrawl       bool

	IncludeUploader bool
	KeepVariants    bool
	IncludeDenied   bool

	Schedule    string `validate:"required"`
	LogLevel    string `validate:"oneof=trace debug info warn error"`
	MetricsFile string
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() *Config {
	return &Config{
		DataDir:         "data",
		SourceDir:       "sources",
		BaseURL:         "https://stat.ink",
		UserAgent:       "inkmetrics/1.0 (+https://github.com/pable/go-ink-metrics)",
		Delay:           5 * time.Second,
		Timeout:         30 * time.Second,
		CheckpointEvery: 50,
		Locale:          "ja-JP",
		Timezone:        "Asia/Tokyo",
		Schedule:        "0 */6 * * *",
		LogLevel:        "info",
	}
}

// Load reads envFile (if it exists) and the process environment on top of Defaults.
// An empty envFile means ".env".
func Load(envFile string, logger zerolog.Logger) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		logger.Debug().Str("file", envFile).Msg("env file not found, using environment variables or defaults")
	}

	cfg := Defaults()
	cfg.DataDir = getEnv("INK_DATA_DIR", cfg.DataDir)
	cfg.SourceDir = getEnv("INK_SOURCE_DIR", cfg.SourceDir)
	cfg.BaseURL = getEnv("INK_BASE_URL", cfg.BaseURL)
	cfg.UserAgent = getEnv("INK_USER_AGENT", cfg.UserAgent)
	cfg.Locale = getEnv("INK_LOCALE", cfg.Locale)
	cfg.Timezone = getEnv("INK_TIMEZONE", cfg.Timezone)
	cfg.Schedule = getEnv("INK_SCHEDULE", cfg.Schedule)
	cfg.LogLevel = getEnv("INK_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsFile = getEnv("INK_METRICS_FILE", cfg.MetricsFile)

	var err error
	if cfg.Delay, err = getEnvDuration("INK_DELAY", cfg.Delay); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = getEnvDuration("INK_TIMEOUT", cfg.Timeout); err != nil {
		return nil, err
	}
	if cfg.CheckpointEvery, err = getEnvInt("INK_CHECKPOINT_EVERY", cfg.CheckpointEvery); err != nil {
		return nil, err
	}
	for key, dst := range map[string]*bool{
		"INK_COMPRESS":         &cfg.Compress,
		"INK_FULL_CRAWL":       &cfg.FullCrawl,
		"INK_INCLUDE_UPLOADER": &cfg.IncludeUploader,
		"INK_KEEP_VARIANTS":    &cfg.KeepVariants,
		"INK_INCLUDE_DENIED":   &cfg.IncludeDenied,
	} {
		if *dst, err = getEnvBool(key, *dst); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks field constraints and that the timezone resolves.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves Timezone. Timestamps are stored in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// UsersPath is the user list file.
func (c *Config) UsersPath() string {
	return c.dataFile("users.csv")
}

// BattleListPath is the summary store for a lobby.
func (c *Config) BattleListPath(lobby string) string {
	name := lobby
	if lobby == "splatfest_challenge" {
		name = "fest_challenge"
	}
	return c.dataFile("battles_" + name + ".csv")
}

// DetailsPath is the detail store for a lobby.
func (c *Config) DetailsPath(lobby string) string {
	return c.dataFile("details_" + lobby + ".csv")
}

// CatalogPath is a reference table under SourceDir ("main", "sub", "special", "type", "rule", "stage").
func (c *Config) CatalogPath(name string) string {
	return filepath.Join(c.SourceDir, name+".csv")
}

func (c *Config) dataFile(name string) string {
	if c.Compress {
		name += ".zst"
	}
	return filepath.Join(c.DataDir, name)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	// Bare integers are seconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
