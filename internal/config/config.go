package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ChatURL         string
	PresenceURL     string
	AuthURL         string
	ConnectTimeout  time.Duration
	OfflineAckDelay time.Duration
	SessionDB       string
	MaxMessages     int
	LogEnv          string
	LogLevel        slog.Level
}

func Load() (*Config, error) {
	connectTimeout, err := time.ParseDuration(getEnv("CONNECT_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("CONNECT_TIMEOUT: %w", err)
	}

	ackDelay, err := time.ParseDuration(getEnv("OFFLINE_ACK_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("OFFLINE_ACK_DELAY: %w", err)
	}

	maxMessages, err := strconv.Atoi(getEnv("MAX_MESSAGES", "500"))
	if err != nil {
		return nil, fmt.Errorf("MAX_MESSAGES: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		ChatURL:         getEnv("CHAT_WS_URL", "ws://localhost:4000/"),
		PresenceURL:     getEnv("PRESENCE_WS_URL", "ws://localhost:5000/"),
		AuthURL:         getEnv("AUTH_URL", "http://localhost:3000"),
		ConnectTimeout:  connectTimeout,
		OfflineAckDelay: ackDelay,
		SessionDB:       getEnv("SESSION_DB", "chatsync.db"),
		MaxMessages:     maxMessages,
		LogEnv:          getEnv("LOG_ENV", "dev"),
		LogLevel:        level,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"CHAT_WS_URL":     c.ChatURL,
		"PRESENCE_WS_URL": c.PresenceURL,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("%s must use ws or wss, got %q", name, raw)
		}
	}

	if u, err := url.Parse(c.AuthURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("AUTH_URL must be an http or https URL, got %q", c.AuthURL)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT must be greater than 0")
	}

	if c.OfflineAckDelay < 0 {
		return fmt.Errorf("OFFLINE_ACK_DELAY must not be negative")
	}

	if c.MaxMessages < 0 {
		return fmt.Errorf("MAX_MESSAGES must not be negative")
	}

	if c.SessionDB == "" {
		return fmt.Errorf("SESSION_DB is required")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
