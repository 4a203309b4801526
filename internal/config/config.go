// Package config reads the viewer's settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	SimBaseURL string `env:"SIM_BASE_URL" envDefault:"http://localhost:8000"`
	// SimWSURL is a template; "{id}" is replaced by the game ID. Derived from
	// SimBaseURL when empty.
	SimWSURL string `env:"SIM_WS_URL"`
	Addr     string `env:"VIEWER_ADDR" envDefault:":8080"`

	ReconnectAttempts int           `env:"RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY" envDefault:"2s"`
	DialTimeout       time.Duration `env:"DIAL_TIMEOUT" envDefault:"10s"`

	ReplayInterval time.Duration `env:"REPLAY_INTERVAL" envDefault:"80ms"`
	FieldOriginX   float64       `env:"FIELD_ORIGIN_X" envDefault:"400"`
	FieldOriginY   float64       `env:"FIELD_ORIGIN_Y" envDefault:"300"`
	FieldScale     float64       `env:"FIELD_SCALE" envDefault:"10"`

	// DatabaseURL enables the tick archive when set.
	DatabaseURL string `env:"DATABASE_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"LOG_DEV" envDefault:"false"`
}

// Load reads the given .env files (default ".env"; a missing file is fine),
// then parses and validates the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return Parse(env.Options{})
}

// Parse reads config using opts. Tests pass opts.Environment to avoid the
// process environment.
func Parse(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if c.SimWSURL == "" {
		ws, err := DeriveWSURL(c.SimBaseURL)
		if err != nil {
			return Config{}, err
		}
		c.SimWSURL = ws
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// DeriveWSURL maps http(s)://host[/prefix] to ws(s)://host[/prefix]/ws/games/{id}.
func DeriveWSURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("SIM_BASE_URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("SIM_BASE_URL: unsupported scheme %q", u.Scheme)
	}
	return strings.TrimRight(u.String(), "/") + "/ws/games/{id}", nil
}

func (c Config) Validate() error {
	var err error
	if c.ReconnectAttempts < 0 {
		err = multierr.Append(err, fmt.Errorf("RECONNECT_ATTEMPTS must not be negative, got %d", c.ReconnectAttempts))
	}
	if c.ReconnectDelay <= 0 {
		err = multierr.Append(err, fmt.Errorf("RECONNECT_DELAY must be positive, got %s", c.ReconnectDelay))
	}
	if c.DialTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("DIAL_TIMEOUT must be positive, got %s", c.DialTimeout))
	}
	if c.ReplayInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("REPLAY_INTERVAL must be positive, got %s", c.ReplayInterval))
	}
	if c.FieldScale <= 0 {
		err = multierr.Append(err, fmt.Errorf("FIELD_SCALE must be positive, got %g", c.FieldScale))
	}
	if !strings.Contains(c.SimWSURL, "{id}") {
		err = multierr.Append(err, fmt.Errorf("SIM_WS_URL must contain {id}, got %q", c.SimWSURL))
	}
	if _, lerr := c.Level(); lerr != nil {
		err = multierr.Append(err, lerr)
	}
	return err
}

func (c Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
