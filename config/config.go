// Package config reads settings from the environment, optionally seeded from
// a .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/blixt/nexus/chat"
	"github.com/blixt/nexus/transport"
)

type Config struct {
	HTTPURL      string
	WebSocketURL string
	Model        chat.Model
	Timeouts     chat.Timeouts
	HistoryFile  string
	// RateLimit is the maximum number of requests per minute; 0 is unlimited.
	RateLimit    int
	ShowThinking bool
	LogFile      string
	LogLevel     string
}

func Default() Config {
	return Config{
		HTTPURL:     "http://127.0.0.1:8000",
		Model:       chat.Gemini,
		Timeouts:    chat.DefaultTimeouts(),
		HistoryFile: defaultPath("conversations.json"),
		RateLimit:   15,
		LogFile:     defaultPath(filepath.Join("logs", "nexus.log")),
		LogLevel:    "info",
	}
}

// Load applies environment variables on top of the defaults. Variables in the
// given .env files (if they exist) are loaded first and override the process
// environment.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Overload(f); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	var err error
	if v, ok := lookup("NEXUS_HTTP_URL"); ok {
		cfg.HTTPURL = v
	}
	if v, ok := lookup("NEXUS_WS_URL"); ok {
		cfg.WebSocketURL = v
	}
	if v, ok := lookup("NEXUS_MODEL"); ok {
		if cfg.Model, err = chat.ParseModel(v); err != nil {
			return Config{}, fmt.Errorf("NEXUS_MODEL: %w", err)
		}
	}
	if err := duration("NEXUS_CONNECT_TIMEOUT", &cfg.Timeouts.Connect); err != nil {
		return Config{}, err
	}
	if err := duration("NEXUS_IDLE_TIMEOUT", &cfg.Timeouts.Idle); err != nil {
		return Config{}, err
	}
	if err := duration("NEXUS_RESPONSE_TIMEOUT", &cfg.Timeouts.Response); err != nil {
		return Config{}, err
	}
	if v, ok := lookup("NEXUS_HISTORY_FILE"); ok {
		cfg.HistoryFile = v
	}
	if v, ok := lookup("NEXUS_RATE_LIMIT"); ok {
		if cfg.RateLimit, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("NEXUS_RATE_LIMIT: %w", err)
		}
	}
	if v, ok := lookup("NEXUS_SHOW_THINKING"); ok {
		if cfg.ShowThinking, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("NEXUS_SHOW_THINKING: %w", err)
		}
	}
	if v, ok := lookup("NEXUS_LOG_FILE"); ok {
		cfg.LogFile = v
	}
	if v, ok := lookup("NEXUS_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return cfg, nil
}

// StreamURL returns the WebSocket base URL, derived from the HTTP URL unless
// set explicitly.
func (c Config) StreamURL() string {
	if c.WebSocketURL != "" {
		return transport.WebSocketURL(c.WebSocketURL)
	}
	return transport.WebSocketURL(c.HTTPURL)
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.HTTPURL, "http://") && !strings.HasPrefix(c.HTTPURL, "https://") {
		return fmt.Errorf("HTTP URL must start with http:// or https://, got: %q", c.HTTPURL)
	}
	if _, err := chat.ParseModel(string(c.Model)); err != nil {
		return err
	}
	if c.Timeouts.Connect <= 0 || c.Timeouts.Idle <= 0 || c.Timeouts.Response <= 0 {
		return fmt.Errorf("timeouts must be positive, got: connect=%s idle=%s response=%s", c.Timeouts.Connect, c.Timeouts.Idle, c.Timeouts.Response)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got: %d", c.RateLimit)
	}
	if strings.TrimSpace(c.HistoryFile) == "" {
		return fmt.Errorf("history file is required")
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func duration(key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return filepath.Join(".nexus", name)
	}
	return filepath.Join(home, ".nexus", name)
}
