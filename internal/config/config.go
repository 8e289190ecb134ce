// Package config loads server settings from the environment.
//
// An optional .env file in the working directory is read first; variables
// already present in the environment take precedence over it.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ironsheep/starfind-mcp/internal/detection"
)

// Log holds logger settings.
type Log struct {
	Level  string // debug, info, warn or error
	Format string // text or json
	File   string // optional rotating log file
}

// Config holds all server settings.
type Config struct {
	Log Log

	// HTTPAddr is the listen address used with --http.
	HTTPAddr string

	// Workers bounds concurrent frames in batch detection.
	Workers int

	// NSigma is the default detection threshold in units of the
	// background standard deviation.
	NSigma float64

	// ClipSigma is the rejection limit for background statistics.
	ClipSigma float64

	Sharpness detection.Band
	Roundness detection.Band
}

// Default returns the settings used when no STARFIND_* variable is set.
func Default() *Config {
	def := detection.DefaultConfig()
	return &Config{
		Log:       Log{Level: "info", Format: "text"},
		HTTPAddr:  ":8080",
		Workers:   runtime.NumCPU(),
		NSigma:    5,
		ClipSigma: 3,
		Sharpness: def.Sharpness,
		Roundness: def.Roundness1,
	}
}

// Load reads .env (if present) and the STARFIND_* environment variables
// over Default. A malformed value is an error naming the offending key.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.Log = Log{
		Level:  strings.ToLower(getEnv("STARFIND_LOG_LEVEL", cfg.Log.Level)),
		Format: strings.ToLower(getEnv("STARFIND_LOG_FORMAT", cfg.Log.Format)),
		File:   getEnv("STARFIND_LOG_FILE", cfg.Log.File),
	}
	cfg.HTTPAddr = getEnv("STARFIND_HTTP_ADDR", cfg.HTTPAddr)

	var err error
	if cfg.Workers, err = getEnvAsInt("STARFIND_WORKERS", cfg.Workers); err != nil {
		return nil, err
	}
	if cfg.NSigma, err = getEnvAsFloat("STARFIND_NSIGMA", cfg.NSigma); err != nil {
		return nil, err
	}
	if cfg.ClipSigma, err = getEnvAsFloat("STARFIND_CLIP_SIGMA", cfg.ClipSigma); err != nil {
		return nil, err
	}
	if cfg.Sharpness.Min, err = getEnvAsFloat("STARFIND_SHARP_LO", cfg.Sharpness.Min); err != nil {
		return nil, err
	}
	if cfg.Sharpness.Max, err = getEnvAsFloat("STARFIND_SHARP_HI", cfg.Sharpness.Max); err != nil {
		return nil, err
	}
	if cfg.Roundness.Min, err = getEnvAsFloat("STARFIND_ROUND_LO", cfg.Roundness.Min); err != nil {
		return nil, err
	}
	if cfg.Roundness.Max, err = getEnvAsFloat("STARFIND_ROUND_HI", cfg.Roundness.Max); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that parsing alone cannot catch.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("STARFIND_LOG_LEVEL: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("STARFIND_LOG_FORMAT: unknown format %q", c.Log.Format)
	}
	if c.Workers < 1 {
		return fmt.Errorf("STARFIND_WORKERS: must be >= 1, got %d", c.Workers)
	}
	if c.NSigma <= 0 {
		return fmt.Errorf("STARFIND_NSIGMA: must be > 0, got %g", c.NSigma)
	}
	if c.ClipSigma <= 0 {
		return fmt.Errorf("STARFIND_CLIP_SIGMA: must be > 0, got %g", c.ClipSigma)
	}
	if c.Sharpness.Min > c.Sharpness.Max {
		return fmt.Errorf("STARFIND_SHARP_LO/STARFIND_SHARP_HI: empty band %s", c.Sharpness)
	}
	if c.Roundness.Min > c.Roundness.Max {
		return fmt.Errorf("STARFIND_ROUND_LO/STARFIND_ROUND_HI: empty band %s", c.Roundness)
	}
	return nil
}

// Detection returns the detection defaults implied by c.
func (c *Config) Detection() detection.Config {
	return detection.DefaultConfig().
		WithSharpness(c.Sharpness.Min, c.Sharpness.Max).
		WithRoundness(c.Roundness.Min, c.Roundness.Max)
}

// ClipOptions returns the background statistics options implied by c.
func (c *Config) ClipOptions() detection.ClipOptions {
	opts := detection.DefaultClipOptions()
	opts.Sigma = c.ClipSigma
	return opts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
