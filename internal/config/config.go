// Package config provides configuration management for volwatch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/leeaandrob/volwatch/internal/calendar"
	"github.com/leeaandrob/volwatch/internal/content"
	"github.com/leeaandrob/volwatch/internal/volatility"
)

// Config holds all application configuration.
type Config struct {
	// Logging
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=console json"`
	Debug     bool

	// Server settings
	HTTPAddr string `validate:"required"`

	// Calendar settings
	CalendarURL      string `validate:"omitempty,url"`
	CalendarFile     string
	CalendarCacheTTL time.Duration `validate:"gte=0"`
	CalendarRefresh  time.Duration `validate:"gt=0"`
	AnchorEventsPath string        `validate:"required"`

	// Volatility windows
	PreEventWindow    time.Duration `validate:"gt=0"`
	DuringEventWindow time.Duration `validate:"gt=0"`
	PostEventWindow   time.Duration `validate:"gt=0"`
	ClusterMergeGap   time.Duration `validate:"gte=0"`
	StrictImpactMatch bool

	// Trigger settings
	TickInterval       time.Duration `validate:"gt=0"`
	ActiveHoursEnabled bool
	ActiveHoursTZ      string `validate:"required_if=ActiveHoursEnabled true"`
	ActiveHoursStart   int    `validate:"gte=0,lte=23"`
	ActiveHoursEnd     int    `validate:"gte=1,lte=24,gtfield=ActiveHoursStart"`
	SimulationNow      string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`

	// Generative service settings
	AIEnabled  bool
	OpenAIKey  string
	AIEndpoint string        `validate:"omitempty,url"`
	AIModel    string        `validate:"required_if=AIEnabled true"`
	AITimeout  time.Duration `validate:"gt=0"`

	// Telegram settings
	TelegramEnabled    bool
	TelegramBotToken   string `validate:"required_if=TelegramEnabled true"`
	TelegramChatID     string `validate:"required_if=TelegramEnabled true"`
	TelegramMaxRetries int    `validate:"gte=0,lte=10"`

	// MongoDB settings
	MongoURI string `validate:"omitempty,startswith=mongodb"`
	MongoDB  string `validate:"required_with=MongoURI"`

	// Content policy
	ForbiddenWords []string
}

var validate = validator.New()

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Try to load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	defaults := volatility.DefaultWindows()

	cfg := &Config{
		// Logging
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
		Debug:     getEnvBool("DEBUG", false),

		// Server
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		// Calendar
		CalendarURL:      getEnv("CALENDAR_URL", ""),
		CalendarFile:     getEnv("CALENDAR_FILE", ""),
		CalendarCacheTTL: getEnvDuration("CALENDAR_CACHE_TTL", 10*time.Minute),
		CalendarRefresh:  getEnvDuration("CALENDAR_REFRESH_INTERVAL", time.Hour),
		AnchorEventsPath: getEnv("ANCHOR_EVENTS_PATH", "data/anchor_events.json"),

		// Windows
		PreEventWindow:    getEnvDuration("PRE_EVENT_WINDOW", defaults.Pre),
		DuringEventWindow: getEnvDuration("DURING_EVENT_WINDOW", defaults.During),
		PostEventWindow:   getEnvDuration("POST_EVENT_WINDOW", defaults.Post),
		ClusterMergeGap:   getEnvDuration("CLUSTER_MERGE_GAP", defaults.MergeGap),
		StrictImpactMatch: getEnvBool("STRICT_IMPACT_MATCH", true),

		// Trigger
		TickInterval:       getEnvDuration("TICK_INTERVAL", time.Minute),
		ActiveHoursEnabled: getEnvBool("ACTIVE_HOURS_ENABLED", true),
		ActiveHoursTZ:      getEnv("ACTIVE_HOURS_TZ", "Europe/Moscow"),
		ActiveHoursStart:   getEnvInt("ACTIVE_HOURS_START", 8),
		ActiveHoursEnd:     getEnvInt("ACTIVE_HOURS_END", 21),
		SimulationNow:      getEnv("SIMULATION_NOW", ""),

		// Generative service
		AIEnabled:  getEnvBool("AI_ENABLED", true),
		OpenAIKey:  getEnv("OPENAI_API_KEY", ""),
		AIEndpoint: getEnv("AI_ENDPOINT", ""),
		AIModel:    getEnv("AI_MODEL", "gpt-4o-mini"),
		AITimeout:  getEnvDuration("AI_TIMEOUT", content.DefaultTimeout),

		// Telegram
		TelegramEnabled:    getEnvBool("TELEGRAM_ENABLED", false),
		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:     getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramMaxRetries: getEnvInt("TELEGRAM_MAX_RETRIES", 3),

		// MongoDB
		MongoURI: getEnv("MONGO_URI", ""),
		MongoDB:  getEnv("MONGO_DB", "volwatch"),

		ForbiddenWords: getEnvList("FORBIDDEN_WORDS", content.DefaultForbiddenWords),
	}

	if cfg.CalendarURL == "" && cfg.CalendarFile == "" {
		cfg.CalendarURL = calendar.DefaultFeedURL
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Windows().Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.AIEnabled && c.OpenAIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set, messages will use templates")
	}
	if !c.TelegramEnabled {
		log.Warn().Msg("Telegram disabled, notifications will only be logged")
	}
	if c.MongoURI == "" {
		log.Warn().Msg("MONGO_URI not set, notification history kept in memory")
	}
	return nil
}

// Windows returns the configured volatility windows.
func (c *Config) Windows() volatility.Windows {
	return volatility.Windows{
		Pre:      c.PreEventWindow,
		During:   c.DuringEventWindow,
		Post:     c.PostEventWindow,
		MergeGap: c.ClusterMergeGap,
	}
}

// SimulationStart returns the parsed SIMULATION_NOW, or the zero time.
func (c *Config) SimulationStart() time.Time {
	t, err := time.Parse(time.RFC3339, c.SimulationNow)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
