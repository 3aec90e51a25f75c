// Package config reads the application configuration from environment
// variables. cmd/ entry points call godotenv before Load so a local .env
// file works the same as real environment.
package config

import (
	"os"
	"strconv"

	"github.com/bschneidr/srvyr/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Data     DataConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds result-store connection settings. An empty URL means
// runs are kept in memory only.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// DataConfig holds data file settings for the CLI and demo server
type DataConfig struct {
	Path string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Server:   ServerConfig{Port: getEnv("PORT", "8080")},
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL"), MaxOpenConns: 10},
		Data:     DataConfig{Path: os.Getenv("DATA_FILE")},
	}

	if raw := os.Getenv("DATABASE_MAX_OPEN_CONNS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, errors.ConfigInvalid("DATABASE_MAX_OPEN_CONNS must be a positive integer")
		}
		cfg.Database.MaxOpenConns = n
	}
	if _, err := strconv.Atoi(cfg.Server.Port); err != nil {
		return nil, errors.ConfigInvalid("PORT must be numeric")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
