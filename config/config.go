/*
Package config resolves server settings.

PRECEDENCE (lowest to highest):
  1. Defaults()
  2. .env file (optional, loaded with godotenv; never overrides real env vars)
  3. Process environment
  4. Command-line flags (applied by cmd/server)

ENVIRONMENT:
  PORT               HTTP port (default 8080)
  DB_PATH            SQLite path, ":memory:" for an in-memory database
  LOG_LEVEL          logrus level name (default info)
  SCHEDULER_ENABLED  run scheduled generation (default true)
  SCHEDULER_SPEC     cron spec for scheduled generation (default "5 0 * * *")
  CORS_ORIGINS       comma-separated allowed origins (default "*")
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	DBPath           string
	LogLevel         string
	SchedulerEnabled bool
	SchedulerSpec    string
	CORSOrigins      []string
}

func Defaults() Config {
	return Config{
		Port:             8080,
		DBPath:           "quotas.db",
		LogLevel:         "info",
		SchedulerEnabled: true,
		SchedulerSpec:    "5 0 * * *",
		CORSOrigins:      []string{"*"},
	}
}

// Load reads envFile (if it exists) into the environment and builds a
// Config from it. A missing env file is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function, so tests can pass a map.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = port
	}
	if v, ok := lookup("DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup("SCHEDULER_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SCHEDULER_ENABLED %q", v)
		}
		cfg.SchedulerEnabled = enabled
	}
	if v, ok := lookup("SCHEDULER_SPEC"); ok && v != "" {
		cfg.SchedulerSpec = v
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}

	return cfg, nil
}
