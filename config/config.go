// Package config loads server configuration from the environment, an optional
// .env file and an optional YAML file. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Port     int    `koanf:"port"`
	Env      string `koanf:"env"`
	LogLevel string `koanf:"log_level"`

	// Tenants (PostgreSQL)
	DatabaseURL string `koanf:"database_url"`

	// Events (ClickHouse)
	ClickHouseHost       string `koanf:"clickhouse_host"`
	ClickHouseNativePort int    `koanf:"clickhouse_native_port"`
	ClickHouseDBName     string `koanf:"clickhouse_db_name"`
	ClickHouseUsername   string `koanf:"clickhouse_username"`
	ClickHousePassword   string `koanf:"clickhouse_password"`

	JWTSecret string `koanf:"jwt_secret_key"`
	FEOrigin  string `koanf:"fe_origin"`

	// Insights tunables
	SessionInactivityThreshold time.Duration `koanf:"session_inactivity_threshold"`
	ActiveNowWindow            time.Duration `koanf:"active_now_window"`
	SessionMaxEvents           int           `koanf:"session_max_events"`
	NewJoinersLimit            int           `koanf:"new_joiners_limit"`

	// Identified users projection
	IdentifiedUsersView            string `koanf:"identified_users_view"`
	IdentifiedUsersRefreshSchedule string `koanf:"identified_users_refresh_schedule"`
}

var (
	ErrMissingDatabaseURL    = errors.New("DATABASE_URL is required")
	ErrMissingClickHouseHost = errors.New("CLICKHOUSE_HOST is required")
	ErrMissingClickHouseDB   = errors.New("CLICKHOUSE_DB_NAME is required")
	ErrMissingJWTSecret      = errors.New("JWT_SECRET_KEY is required")
	ErrInvalidThreshold      = errors.New("SESSION_INACTIVITY_THRESHOLD must be positive")
	ErrInvalidActiveWindow   = errors.New("ACTIVE_NOW_WINDOW must be positive")
	ErrInvalidMaxEvents      = errors.New("SESSION_MAX_EVENTS must be positive")
	ErrInvalidJoinersLimit   = errors.New("NEW_JOINERS_LIMIT must be positive")
)

const (
	DefaultPort                           = 8080
	DefaultEnv                            = "development"
	DefaultLogLevel                       = "info"
	DefaultClickHouseNativePort           = 9000
	DefaultSessionInactivityThreshold     = 5 * time.Minute
	DefaultActiveNowWindow                = 2 * time.Minute
	DefaultSessionMaxEvents               = 6000
	DefaultNewJoinersLimit                = 10
	DefaultIdentifiedUsersView            = "identified_users"
	DefaultIdentifiedUsersRefreshSchedule = "*/15 * * * *"
)

// Load reads .env (if present), then configFilePath (if set), then the
// environment. It returns the config and every validation error found.
func Load(configFilePath string) (*Config, []error) {
	// Missing .env is fine outside local development.
	_ = godotenv.Load()

	k := koanf.New(".")
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	var errs []error
	intValue := func(envKey, koanfKey string, def int) int {
		v, err := envInt(envKey, k.Int(koanfKey), k.Exists(koanfKey), def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durationValue := func(envKey, koanfKey string, def time.Duration) time.Duration {
		v, err := envDuration(envKey, k.String(koanfKey), def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Port:                           intValue("PORT", "port", DefaultPort),
		Env:                            envString("APP_ENV", k.String("env"), DefaultEnv),
		LogLevel:                       envString("LOG_LEVEL", k.String("log_level"), DefaultLogLevel),
		DatabaseURL:                    envString("DATABASE_URL", k.String("database_url"), ""),
		ClickHouseHost:                 envString("CLICKHOUSE_HOST", k.String("clickhouse_host"), ""),
		ClickHouseNativePort:           intValue("CLICKHOUSE_NATIVE_PORT", "clickhouse_native_port", DefaultClickHouseNativePort),
		ClickHouseDBName:               envString("CLICKHOUSE_DB_NAME", k.String("clickhouse_db_name"), ""),
		ClickHouseUsername:             envString("CLICKHOUSE_USERNAME", k.String("clickhouse_username"), ""),
		ClickHousePassword:             envString("CLICKHOUSE_PASSWORD", k.String("clickhouse_password"), ""),
		JWTSecret:                      envString("JWT_SECRET_KEY", k.String("jwt_secret_key"), ""),
		FEOrigin:                       envString("FE_ORIGIN", k.String("fe_origin"), "http://localhost:3000"),
		SessionInactivityThreshold:     durationValue("SESSION_INACTIVITY_THRESHOLD", "session_inactivity_threshold", DefaultSessionInactivityThreshold),
		ActiveNowWindow:                durationValue("ACTIVE_NOW_WINDOW", "active_now_window", DefaultActiveNowWindow),
		SessionMaxEvents:               intValue("SESSION_MAX_EVENTS", "session_max_events", DefaultSessionMaxEvents),
		NewJoinersLimit:                intValue("NEW_JOINERS_LIMIT", "new_joiners_limit", DefaultNewJoinersLimit),
		IdentifiedUsersView:            envString("IDENTIFIED_USERS_VIEW", k.String("identified_users_view"), DefaultIdentifiedUsersView),
		IdentifiedUsersRefreshSchedule: envString("IDENTIFIED_USERS_REFRESH_SCHEDULE", k.String("identified_users_refresh_schedule"), DefaultIdentifiedUsersRefreshSchedule),
	}

	return cfg, append(errs, cfg.Validate()...)
}

// Validate reports every missing or out-of-range value.
func (c *Config) Validate() []error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.ClickHouseHost == "" {
		errs = append(errs, ErrMissingClickHouseHost)
	}
	if c.ClickHouseDBName == "" {
		errs = append(errs, ErrMissingClickHouseDB)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.SessionInactivityThreshold <= 0 {
		errs = append(errs, ErrInvalidThreshold)
	}
	if c.ActiveNowWindow <= 0 {
		errs = append(errs, ErrInvalidActiveWindow)
	}
	if c.SessionMaxEvents <= 0 {
		errs = append(errs, ErrInvalidMaxEvents)
	}
	if c.NewJoinersLimit <= 0 {
		errs = append(errs, ErrInvalidJoinersLimit)
	}
	return errs
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func envString(envKey, koanfVal, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if koanfVal != "" {
		return koanfVal
	}
	return def
}

// envInt prefers the environment, then a value present in the file (zero
// included), then def.
func envInt(envKey string, koanfVal int, koanfSet bool, def int) (int, error) {
	if v := os.Getenv(envKey); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return def, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return n, nil
	}
	if koanfSet {
		return koanfVal, nil
	}
	return def, nil
}

func envDuration(envKey, koanfVal string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(envKey)
	if raw == "" {
		raw = koanfVal
	}
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s must be a valid duration: %w", envKey, err)
	}
	return d, nil
}
