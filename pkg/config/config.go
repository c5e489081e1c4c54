// Package config handles Ratatosk configuration via environment variables.
//
// All settings are prefixed with RATATOSK_ and loaded with LoadFromEnv().
// The zero configuration is a usable in-memory cache; a data directory turns
// on durable snapshots.
//
// Environment Variables:
//   - RATATOSK_STRICT=true             fail merges on invariant violations
//   - RATATOSK_FREEZE_SNAPSHOTS=true   stamp integrity digests at commit
//   - RATATOSK_DATA_DIR=./data         badger directory for durable snapshots
//   - RATATOSK_ROOT_IDS=QueryRoot      comma-separated snapshot root set
//   - RATATOSK_ENTITY_ID_FIELD=id      payload field that carries entity ids
//   - RATATOSK_LOG_LEVEL=info          debug | info | warn | error
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all Ratatosk settings loaded from environment variables.
type Config struct {
	// Strict fails merges on invariant violations instead of tolerating
	// them with a warning.
	Strict bool

	// FreezeSnapshots stamps every committed record with a content digest
	// so out-of-band mutation of a snapshot is detectable.
	FreezeSnapshots bool

	// DataDir is the badger directory for durable snapshots. Empty means
	// in-memory only.
	DataDir string

	// RootIDs is the snapshot root set. Empty means the default root.
	RootIDs []string

	// EntityIDField is the payload field entity ids are read from.
	EntityIDField string

	// LogLevel is the global logging level.
	LogLevel string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		EntityIDField: "id",
		LogLevel:      "info",
	}
}

// LoadFromEnv builds a Config from the RATATOSK_* environment variables,
// starting from Default().
func LoadFromEnv() *Config {
	cfg := Default()
	cfg.Strict = getEnvBool("RATATOSK_STRICT", cfg.Strict)
	cfg.FreezeSnapshots = getEnvBool("RATATOSK_FREEZE_SNAPSHOTS", cfg.FreezeSnapshots)
	cfg.DataDir = getEnvString("RATATOSK_DATA_DIR", cfg.DataDir)
	cfg.EntityIDField = getEnvString("RATATOSK_ENTITY_ID_FIELD", cfg.EntityIDField)
	cfg.LogLevel = getEnvString("RATATOSK_LOG_LEVEL", cfg.LogLevel)
	if raw := getEnvString("RATATOSK_ROOT_IDS", ""); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.RootIDs = append(cfg.RootIDs, id)
			}
		}
	}
	return cfg
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.EntityIDField == "" {
		return fmt.Errorf("entity id field must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// String renders the configuration for startup logging.
func (c *Config) String() string {
	return fmt.Sprintf("strict=%v freeze=%v data_dir=%q roots=%v entity_field=%q log=%s",
		c.Strict, c.FreezeSnapshots, c.DataDir, c.RootIDs, c.EntityIDField, c.LogLevel)
}

func getEnvString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
