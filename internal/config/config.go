// Package config loads the client settings.
//
// Layers, lowest to highest priority:
//  1. built-in defaults
//  2. an optional YAML file (COUPLESYNC_CONFIG, ./couplesync.yaml)
//  3. environment variables prefixed COUPLESYNC_ (after .env is loaded)
//
// Nested keys use a double underscore: COUPLESYNC_REDIS__ADDR=localhost:6379.
package config

import (
	"time"

	"couplesync/backend/internal/chathub"
	"couplesync/backend/internal/models"
)

type Config struct {
	// Role is anything models.ParseRole accepts. Empty means "use the persisted selection".
	Role   string `koanf:"role"`
	RoomID string `koanf:"room_id" validate:"required"`

	RetentionWindow      time.Duration `koanf:"retention_window" validate:"gt=0"`
	LivenessThreshold    time.Duration `koanf:"liveness_threshold" validate:"gt=0"`
	TypingDebounce       time.Duration `koanf:"typing_debounce" validate:"gt=0"`
	HeartbeatInterval    time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
	PresencePollInterval time.Duration `koanf:"presence_poll_interval" validate:"gt=0"`
	SweepInterval        time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	CountdownTick        time.Duration `koanf:"countdown_tick" validate:"gt=0"`
	LeaseTTL             time.Duration `koanf:"lease_ttl" validate:"gt=0"`
	ReaperInterval       time.Duration `koanf:"reaper_interval" validate:"gt=0"`

	CycleLengthDays  int    `koanf:"cycle_length_days" validate:"min=1,max=90"`
	MaxMessageLength int    `koanf:"max_message_length" validate:"min=1"`
	Language         string `koanf:"language" validate:"oneof=en ja"`

	Mood     MoodConfig     `koanf:"mood"`
	Store    StoreConfig    `koanf:"store"`
	Redis    RedisConfig    `koanf:"redis"`
	Telegram TelegramConfig `koanf:"telegram"`
	HTTP     HTTPConfig     `koanf:"http"`
	Settings SettingsConfig `koanf:"settings"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type MoodConfig struct {
	Policy   string   `koanf:"policy" validate:"oneof=negative all"`
	Negative []string `koanf:"negative" validate:"dive,oneof=happy normal tired sad angry lonely"`
}

type StoreConfig struct {
	Driver string `koanf:"driver" validate:"oneof=redis memory"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min=0"`
	Prefix   string `koanf:"prefix"`
}

type TelegramConfig struct {
	Token         string `koanf:"token"`
	ChatID        int64  `koanf:"chat_id"`
	RatePerMinute int    `koanf:"rate_per_minute" validate:"min=1"`
	// Commands also accepts /mood, /status, /sos and plain replies from the chat.
	Commands bool `koanf:"commands"`
}

// Enabled reports whether both a token and a chat are configured.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != 0
}

type HTTPConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

type SettingsConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	Path   string `koanf:"path"`
	DSN    string `koanf:"dsn"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		RoomID:               models.DefaultRoomID,
		RetentionWindow:      24 * time.Hour,
		LivenessThreshold:    60 * time.Second,
		TypingDebounce:       1200 * time.Millisecond,
		HeartbeatInterval:    30 * time.Second,
		PresencePollInterval: 60 * time.Second,
		SweepInterval:        60 * time.Second,
		CountdownTick:        60 * time.Second,
		LeaseTTL:             75 * time.Second,
		ReaperInterval:       15 * time.Second,
		CycleLengthDays:      28,
		MaxMessageLength:     1000,
		Language:             "en",
		Mood: MoodConfig{
			Policy:   "negative",
			Negative: []string{"sad"},
		},
		Store: StoreConfig{
			Driver: "redis",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "couplesync:",
		},
		Telegram: TelegramConfig{
			RatePerMinute: 20,
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8787",
		},
		Settings: SettingsConfig{
			Driver: "sqlite",
			Path:   "couplesync.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// SessionConfig converts the loaded settings for a session of role.
func (c *Config) SessionConfig(role models.Role) (chathub.Config, error) {
	policy, err := chathub.ParseMoodPolicy(c.Mood.Policy, c.Mood.Negative)
	if err != nil {
		return chathub.Config{}, err
	}
	return chathub.Config{
		Role:                 role,
		RoomID:               c.RoomID,
		RetentionWindow:      c.RetentionWindow,
		LivenessThreshold:    c.LivenessThreshold,
		TypingDebounce:       c.TypingDebounce,
		HeartbeatInterval:    c.HeartbeatInterval,
		PresencePollInterval: c.PresencePollInterval,
		SweepInterval:        c.SweepInterval,
		CountdownTick:        c.CountdownTick,
		CycleLengthDays:      c.CycleLengthDays,
		MaxMessageLength:     c.MaxMessageLength,
		MoodPolicy:           policy,
	}, nil
}
