package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	LogMessages bool // Log relayed message content (user data, off by default)
	DebugMode   bool // Enable debug logging for gateway frames and store operations
}

// DatabaseConfig holds message-link database configuration
type DatabaseConfig struct {
	Enabled      bool   // Whether to use database storage for message links
	Host         string // Database host
	Port         int    // Database port
	Database     string // Database name
	Username     string // Database username
	Password     string // Database password
	SSLMode      string // SSL mode (disable, require, etc.)
	MaxOpenConns int    // Maximum open connections
	MaxIdleConns int    // Maximum idle connections
	MaxLifetime  int    // Connection max lifetime in seconds
	UseCache     bool   // Whether to use in-memory cache in front of the database
	CleanupHours int    // Hours after which to cleanup old message links
}

// DiscordConfig holds connection settings for the Discord side of the bridge
type DiscordConfig struct {
	Token      string  // Bot token
	APIURL     string  // REST API base URL
	GatewayURL string  // Gateway websocket URL
	ChannelIDs []int64 // Bridged channel snowflakes, positional
}

// StoatConfig holds connection settings for the Stoat side of the bridge
type StoatConfig struct {
	Token      string   // Bot token
	APIURL     string   // REST API base URL
	EventsURL  string   // Event websocket URL
	ChannelIDs []string // Bridged channel IDs, positional
}

// RateConfig holds outbound send rate limiting settings, applied
// independently to each platform.
type RateConfig struct {
	SendRate  float64 // Messages per second
	SendBurst int     // Burst size
}

// Config holds all configuration for the bridge service
type Config struct {
	Discord   DiscordConfig
	Stoat     StoatConfig
	AdminPort string // Admin/ops HTTP listener, ":PORT" format
	SentryDSN string // Empty disables Sentry reporting
	Database  DatabaseConfig
	Logging   LoggingConfig
	Rate      RateConfig
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			APIURL:     "https://discord.com/api/v10",
			GatewayURL: "wss://gateway.discord.gg/?v=10&encoding=json",
		},
		Stoat: StoatConfig{
			APIURL:    "https://api.stoat.chat",
			EventsURL: "wss://events.stoat.chat",
		},
		AdminPort: ":8642",
		Database: DatabaseConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "stoat_bridge",
			Username:     "postgres",
			Password:     "",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 25,
			MaxLifetime:  300,
			UseCache:     true,
			CleanupHours: 168,
		},
		Logging: LoggingConfig{
			LogMessages: false,
			DebugMode:   false,
		},
		Rate: RateConfig{
			SendRate:  5,
			SendBurst: 5,
		},
	}
}

// PairCount returns the number of configured channel pairs.
func (c *Config) PairCount() int {
	return len(c.Discord.ChannelIDs)
}

// Validate checks that the configuration describes a runnable bridge:
// both tokens present, channel lists non-empty and of equal length, and
// the admin port well-formed.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if c.Stoat.Token == "" {
		return fmt.Errorf("STOAT_BOT_TOKEN is required")
	}
	if len(c.Discord.ChannelIDs) == 0 {
		return fmt.Errorf("DISCORD_CHANNEL_IDS is required")
	}
	if len(c.Stoat.ChannelIDs) == 0 {
		return fmt.Errorf("STOAT_CHANNEL_IDS is required")
	}
	if len(c.Discord.ChannelIDs) != len(c.Stoat.ChannelIDs) {
		return fmt.Errorf("channel list length mismatch: %d Discord IDs vs %d Stoat IDs",
			len(c.Discord.ChannelIDs), len(c.Stoat.ChannelIDs))
	}
	if err := validatePort(c.AdminPort, "AdminPort"); err != nil {
		return err
	}
	return nil
}

// ParseChannelList splits a comma-separated channel ID list, trimming
// whitespace and skipping empty entries.
func ParseChannelList(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ids = append(ids, part)
	}
	return ids
}

// ParseSnowflakeList parses a comma-separated list of Discord channel
// snowflakes. A non-numeric entry is an error.
func ParseSnowflakeList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range ParseChannelList(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid Discord channel ID %q: must be a numeric snowflake", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// validatePort validates a ":PORT" format listen address
func validatePort(port string, fieldName string) error {
	if port == "" {
		return fmt.Errorf("%s: port cannot be empty", fieldName)
	}
	if !strings.HasPrefix(port, ":") {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	num, err := strconv.Atoi(port[1:])
	if err != nil {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	if num < 1 || num > 65535 {
		return fmt.Errorf("%s: port must be between 1 and 65535 (current value: %d)", fieldName, num)
	}
	return nil
}
