package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slog"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrMissingSecret = errors.New("config: " + JWTSecretEnv + " must be set")

type Config struct {
	ListenAddr     string
	FrontendOrigin string
	LogLevel       slog.Level
	JWTSecret      []byte
	DB             DatabaseConfig
	Timeouts       ServerTimeouts
}

type ServerTimeouts struct {
	Read       time.Duration
	ReadHeader time.Duration
	Write      time.Duration
	Idle       time.Duration
	Shutdown   time.Duration
}

type DatabaseConfig struct {
	Driver string

	// URL, when set, is passed to the driver as is.
	URL string

	// SQLite
	Path string

	// PostgreSQL
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// DSN returns the connection string for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}

	if c.Driver == DriverPostgres {
		return fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
			c.User, c.Password, c.Host, c.Port, c.Name)
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")

	return "file:" + c.Path + "?" + q.Encode()
}

// LoadConfig reads the configuration from the environment. Values from a
// .env file should already be loaded by the caller.
func LoadConfig() (Config, error) {
	port := getenv("APP_PORT", "8080")

	cfg := Config{
		ListenAddr:     net.JoinHostPort(os.Getenv("APP_HOST"), port),
		FrontendOrigin: getenv("FRONTEND_ORIGIN", "*"),
		JWTSecret:      []byte(os.Getenv(JWTSecretEnv)),
		DB: DatabaseConfig{
			Driver:   strings.ToLower(getenv("DB_DRIVER", DriverSQLite)),
			URL:      os.Getenv("DATABASE_URL"),
			Path:     getenv("SQLITE_PATH", "app.db"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Host:     getenv("POSTGRES_HOST", "localhost"),
			Port:     getenv("DB_PORT", "5432"),
			Name:     getenv("POSTGRES_DB", "db"),
		},
		Timeouts: ServerTimeouts{
			Read:       10 * time.Second,
			ReadHeader: 5 * time.Second,
			Write:      20 * time.Second,
			Idle:       60 * time.Second,
			Shutdown:   10 * time.Second,
		},
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "debug"))); err != nil {
		return cfg, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	if len(cfg.JWTSecret) == 0 {
		return cfg, ErrMissingSecret
	}

	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return cfg, fmt.Errorf("config: APP_PORT must be a port number: %w", err)
	}

	switch cfg.DB.Driver {
	case DriverSQLite:
		if cfg.DB.Path == "" && cfg.DB.URL == "" {
			return cfg, errors.New("config: SQLITE_PATH must not be empty")
		}
	case DriverPostgres:
		if cfg.DB.User == "" && cfg.DB.URL == "" {
			return cfg, errors.New("config: POSTGRES_USER or DATABASE_URL must be set for the postgres driver")
		}
	default:
		return cfg, fmt.Errorf("config: DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, cfg.DB.Driver)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}

	return fallback
}
