// Package config loads server settings from defaults, an optional TOML file,
// an optional .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	// DefaultConfigFile is read when TODO_CONFIG is unset.
	DefaultConfigFile = "todo.toml"
	// DefaultPort is the HTTP listen port.
	DefaultPort = "7002"
	// DefaultDataDir holds MemStore collection files.
	DefaultDataDir = "./data"
	// DevSecret is the signing secret used in development when none is set.
	DevSecret = "dev-secret-change-in-production"

	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultAllowedOrigins are the CORS origins allowed when none are configured.
var DefaultAllowedOrigins = []string{"http://localhost:4200", "http://localhost:5002"}

// Config holds server settings.
type Config struct {
	Port           string   `toml:"port"`
	Env            string   `toml:"env"`
	LogLevel       string   `toml:"log_level"`
	DataDir        string   `toml:"data_dir"`
	DatabaseURL    string   `toml:"database_url"`
	JWTSecret      string   `toml:"jwt_secret"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MigrateFrom    string   `toml:"migrate_from"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		Env:            EnvProduction,
		LogLevel:       "info",
		DataDir:        DefaultDataDir,
		AllowedOrigins: append([]string(nil), DefaultAllowedOrigins...),
	}
}

// Load builds the configuration. A missing TOML or .env file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("TODO_CONFIG")
	if path == "" {
		path = DefaultConfigFile
	}
	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}

	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	loadFromEnv(cfg)

	if cfg.JWTSecret == "" && cfg.Development() {
		cfg.JWTSecret = DevSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	_, err := toml.DecodeFile(path, cfg)
	return err
}

// loadFromEnv overrides config from environment variables.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("TODO_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("TODO_ENV"); v != "" {
		cfg.Env = strings.ToLower(v)
	}
	if v := os.Getenv("TODO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	// An explicitly empty TODO_DATA_DIR selects a memory-only store.
	if v, ok := os.LookupEnv("TODO_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v := os.Getenv("TODO_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("TODO_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("TODO_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("TODO_MIGRATE_FROM"); v != "" {
		cfg.MigrateFrom = v
	}
}

// Development reports whether the server runs in development mode.
func (c *Config) Development() bool {
	return c.Env == EnvDevelopment
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("env must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env)
	}
	if c.JWTSecret == "" {
		return errors.New("TODO_JWT_SECRET is required outside development")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
