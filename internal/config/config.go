package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds settings for both the backend and the frontend application.
type Config struct {
	ServerAddr          string        `yaml:"server_addr" env:"SERVER_ADDR"`                     // backend listen address, e.g. "127.0.0.1:30000"
	WSPath              string        `yaml:"ws_path" env:"WS_PATH"`                             // event channel path, e.g. "/events"
	DBPath              string        `yaml:"db_path" env:"DB_PATH"`                             // SQLite database path
	LogLevel            string        `yaml:"log_level" env:"LOG_LEVEL"`                         // debug, info, warn, error
	ClientServerURL     string        `yaml:"client_server_url" env:"CLIENT_SERVER_URL"`         // e.g. "ws://127.0.0.1:30000/events"
	EventName           string        `yaml:"event_name" env:"EVENT_NAME"`                       // channel the frontend listens on
	QueueSize           int           `yaml:"queue_size" env:"QUEUE_SIZE"`                       // emitter backlog
	RegistrationTimeout time.Duration `yaml:"registration_timeout" env:"REGISTRATION_TIMEOUT"`   // bound on listener registration
	ReconnectMaxBackoff time.Duration `yaml:"reconnect_max_backoff" env:"RECONNECT_MAX_BACKOFF"` // cap on redial delay
	MountTarget         string        `yaml:"mount_target" env:"MOUNT_TARGET"`                   // UI host element
	Interactive         bool          `yaml:"interactive" env:"INTERACTIVE"`                     // wait for acknowledgement on alerts
}

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "EVENTBRIDGE_"

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		ServerAddr:          "127.0.0.1:30000",
		WSPath:              "/events",
		DBPath:              "eventbridge.db",
		LogLevel:            "info",
		ClientServerURL:     "ws://127.0.0.1:30000/events",
		EventName:           "axum_event",
		QueueSize:           32,
		RegistrationTimeout: 5 * time.Second,
		ReconnectMaxBackoff: 30 * time.Second,
		MountTarget:         "#app",
		Interactive:         true,
	}
}

// LoadConfig layers defaults, the YAML file at path (if any) and the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch {
	case c.ServerAddr == "":
		return errors.New("config: server_addr is required")
	case !strings.HasPrefix(c.WSPath, "/"):
		return fmt.Errorf("config: ws_path %q must start with /", c.WSPath)
	case c.EventName == "":
		return errors.New("config: event_name is required")
	case c.QueueSize <= 0:
		return fmt.Errorf("config: queue_size must be positive, got %d", c.QueueSize)
	case c.RegistrationTimeout <= 0:
		return fmt.Errorf("config: registration_timeout must be positive, got %s", c.RegistrationTimeout)
	case c.ReconnectMaxBackoff < time.Second:
		return fmt.Errorf("config: reconnect_max_backoff must be at least 1s, got %s", c.ReconnectMaxBackoff)
	}
	return nil
}
