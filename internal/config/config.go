// ABOUTME: Environment configuration for the blindtest binaries
// ABOUTME: Loads an optional .env file then binds BLINDTEST_* variables
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name
const Prefix = "blindtest"

// Server configures cmd/blindtest-server. Values become flag defaults.
type Server struct {
	Port     int    `envconfig:"PORT" default:"8927"`
	Name     string `envconfig:"NAME" default:"Blindtest Server"`
	MusicDir string `envconfig:"MUSIC_DIR" default:"./music"`
	Watch    bool   `envconfig:"WATCH" default:"true"`

	// RedisURL selects the Redis room store; empty keeps rooms in memory
	RedisURL string `envconfig:"REDIS_URL"`
	RedisDB  int    `envconfig:"REDIS_DB"`

	// HistoryDSN is a sqlite path or a postgres:// URL; "off" disables history
	HistoryDSN string `envconfig:"HISTORY_DSN" default:"blindtest.sqlite3"`

	ReadyTimeout time.Duration `envconfig:"READY_TIMEOUT" default:"10s"`
	StartLead    time.Duration `envconfig:"START_LEAD" default:"1500ms"`

	NoMDNS  bool   `envconfig:"NO_MDNS"`
	LogFile string `envconfig:"LOG_FILE" default:"blindtest-server.log"`
}

// Client configures the blindtest terminal client
type Client struct {
	Server   string  `envconfig:"SERVER"`
	Nickname string  `envconfig:"NICKNAME"`
	Avatar   string  `envconfig:"AVATAR"`
	Volume   float64 `envconfig:"VOLUME" default:"0.8"`
	LogFile  string  `envconfig:"CLIENT_LOG_FILE" default:"blindtest.log"`
}

// loadEnv reads envFile into the environment without overriding set variables.
// A missing file is not an error.
func loadEnv(envFile string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}
	return nil
}

// LoadServer builds the server configuration from envFile and the environment
func LoadServer(envFile string) (Server, error) {
	var cfg Server
	if err := loadEnv(envFile); err != nil {
		return cfg, err
	}
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("reading server config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}

// LoadClient builds the client configuration from envFile and the environment
func LoadClient(envFile string) (Client, error) {
	var cfg Client
	if err := loadEnv(envFile); err != nil {
		return cfg, err
	}
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("reading client config: %w", err)
	}
	return cfg, nil
}
