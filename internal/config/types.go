package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bumpbot/internal/reminder"
	"bumpbot/internal/storage"
	logx "bumpbot/pkg/logx"
)

// ErrMissingToken is returned when neither DISCORD_TOKEN nor discord.token is set.
var ErrMissingToken = errors.New("discord token missing (set DISCORD_TOKEN or discord.token)")

const (
	DefaultDelay         = 120 * time.Minute
	DefaultTestDelay     = time.Minute
	DefaultReconcileSpec = "@every 10m"
	DefaultTrigger       = "bump"
)

type Config struct {
	Discord DiscordConfig `json:"discord"`

	OwnerID          string `json:"owner_id"`
	ChannelID        string `json:"channel_id"`
	AllowedChannelID string `json:"allowed_channel_id,omitempty"`
	// AllowedBotIDs: absent (null) admits any bot, [] admits none.
	AllowedBotIDs []string `json:"allowed_bot_ids"`

	MentionRole bool   `json:"mention_role"`
	RoleID      string `json:"role_id,omitempty"`
	ShowButton  bool   `json:"show_button"`
	Language    string `json:"language,omitempty"`

	Trigger  TriggerConfig  `json:"trigger"`
	Reminder ReminderConfig `json:"reminder"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`

	// Texts maps a language code to key→template overrides.
	Texts map[string]map[string]string `json:"texts,omitempty"`
}

type DiscordConfig struct {
	Token    string `json:"token,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	// GuildID scopes command registration. Empty registers global commands.
	GuildID string `json:"guild_id,omitempty"`
}

type TriggerConfig struct {
	// Command is the interaction name that counts as a bump. Default "bump".
	Command string `json:"command,omitempty"`
}

// ReminderConfig durations accept Go syntax ("2h") or ISO-8601 ("PT2H").
type ReminderConfig struct {
	Delay         string `json:"delay,omitempty"`
	TestDelay     string `json:"test_delay,omitempty"`
	RecoverPolicy string `json:"recover_policy,omitempty"`
	// Reconcile is a cron spec for the drift check. "off" disables it.
	Reconcile string `json:"reconcile,omitempty"`
}

// StorageConfig controls where the next fire time is kept.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./bumpbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ReminderSettings is the parsed form of ReminderConfig.
type ReminderSettings struct {
	Delay         time.Duration
	TestDelay     time.Duration
	RecoverPolicy reminder.RecoverPolicy
	ReconcileSpec string
}

func (c *Config) TriggerCommand() string {
	if s := strings.TrimSpace(c.Trigger.Command); s != "" {
		return s
	}
	return DefaultTrigger
}

func (c *Config) ReminderSettings() (ReminderSettings, error) {
	var out ReminderSettings
	var err error
	if out.Delay, err = ParseDurationOrDefault("reminder.delay", c.Reminder.Delay, DefaultDelay); err != nil {
		return out, err
	}
	if out.TestDelay, err = ParseDurationOrDefault("reminder.test_delay", c.Reminder.TestDelay, DefaultTestDelay); err != nil {
		return out, err
	}
	if out.RecoverPolicy, err = reminder.ParseRecoverPolicy(c.Reminder.RecoverPolicy); err != nil {
		return out, fmt.Errorf("reminder.recover_policy: %w", err)
	}

	spec := strings.TrimSpace(c.Reminder.Reconcile)
	switch strings.ToLower(spec) {
	case "":
		spec = DefaultReconcileSpec
	case "off", "false", "disabled":
		spec = ""
	}
	if err := reminder.ValidateSpec(spec); err != nil {
		return out, fmt.Errorf("reminder.reconcile: %w", err)
	}
	out.ReconcileSpec = spec
	return out, nil
}

func (c *Config) StorageSettings() (storage.Config, error) {
	bt, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(c.Storage.Driver)),
		Path:        strings.TrimSpace(c.Storage.Path),
		DSN:         strings.TrimSpace(c.Storage.DSN),
		BusyTimeout: bt,
	}, nil
}

func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
		Discord: logx.DiscordConfig{
			Enabled:    c.Logging.Discord.Enabled,
			ChannelID:  c.Logging.Discord.ChannelID,
			MinLevel:   c.Logging.Discord.MinLevel,
			RatePerSec: c.Logging.Discord.RatePerSec,
		},
	}
}

// Validate checks everything that can be checked without touching the network.
// The token is checked separately by RequireToken so callers can fail on it first.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := c.ReminderSettings(); err != nil {
		return err
	}
	sc, err := c.StorageSettings()
	if err != nil {
		return err
	}
	switch sc.Driver {
	case "", "sqlite", "sqlite3", "file", "memory":
	case "mysql":
		if sc.DSN == "" {
			return errors.New("storage.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", sc.Driver)
	}
	if c.MentionRole && strings.TrimSpace(c.RoleID) == "" {
		return errors.New("role_id is required when mention_role is true")
	}
	if c.Logging.Discord.Enabled && strings.TrimSpace(c.Logging.Discord.ChannelID) == "" {
		return errors.New("logging.discord.channel_id is required when logging.discord.enabled is true")
	}
	return nil
}

// RequireToken returns the effective bot token or ErrMissingToken.
func (c *Config) RequireToken() (string, error) {
	if c == nil {
		return "", ErrMissingToken
	}
	tok := strings.TrimSpace(c.Discord.Token)
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}
