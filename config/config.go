// Package config loads the server's process-wide settings (address,
// admin shared secret, database path, exchange credentials) from the
// environment, and validates a per-session Settings payload from the
// registration API.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/gridforge/hedgeengine/internal/models"
)

// TradingMode selects whether sessions trade against the DemoAdapter or
// a live Binance account.
type TradingMode string

const (
	ModeDemo TradingMode = "demo"
	ModeLive TradingMode = "live"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Config is the process-wide configuration loaded once at startup.
type Config struct {
	ServerPort int
	ServerHost string

	// AdminSecret gates the /admin route group (crypto/subtle constant-time
	// compare in api.AdminAuthMiddleware). Empty disables admin auth, dev
	// mode only.
	AdminSecret string

	DatabasePath string

	MaxConcurrentSessions int

	LogLevel string

	TradingMode      TradingMode
	BinanceAPIKey    string
	BinanceAPISecret string
	QuoteAsset       string

	EnvFile string
}

// Load reads configuration from the environment, applying .env overrides
// if present, then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:            getEnvInt("SERVER_PORT", 8080),
		ServerHost:            getEnv("SERVER_HOST", "0.0.0.0"),
		AdminSecret:           getEnv("ADMIN_SECRET", ""),
		DatabasePath:          getEnv("DATABASE_PATH", "./data/hedgeengine.db"),
		MaxConcurrentSessions: getEnvInt("MAX_CONCURRENT_SESSIONS", 50),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		TradingMode:           TradingMode(getEnv("TRADING_MODE", string(ModeDemo))),
		BinanceAPIKey:         getEnv("BINANCE_API_KEY", ""),
		BinanceAPISecret:      getEnv("BINANCE_API_SECRET", ""),
		QuoteAsset:            getEnv("QUOTE_ASSET", "USDT"),
		EnvFile:               getEnv("ENV_FILE", ".env"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsLive reports whether the configured trading mode trades against a
// real Binance account.
func (c *Config) IsLive() bool {
	return c.TradingMode == ModeLive
}

// ValidationError aggregates every configuration problem so an operator
// fixes them all in one pass instead of one restart at a time.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%d config error(s):", len(e.Errors))
	for _, s := range e.Errors {
		msg += "\n  - " + s
	}
	return msg
}

// Validate checks the fields Load cannot express as a simple default.
func (c *Config) Validate() error {
	var errs []string

	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort))
	}
	if c.DatabasePath == "" {
		errs = append(errs, "DATABASE_PATH must not be empty")
	}
	if c.MaxConcurrentSessions <= 0 {
		errs = append(errs, fmt.Sprintf("MAX_CONCURRENT_SESSIONS must be > 0, got %d", c.MaxConcurrentSessions))
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.TradingMode != ModeDemo && c.TradingMode != ModeLive {
		errs = append(errs, fmt.Sprintf("TRADING_MODE %q must be demo or live", c.TradingMode))
	}
	if c.IsLive() && (c.BinanceAPIKey == "" || c.BinanceAPISecret == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET are required when TRADING_MODE=live")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// GenerateAPIKey returns a fresh random hex-encoded admin secret.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RotateAdminSecret generates a new admin secret, updates the in-memory
// config, and appends/rewrites it in the .env file so the next restart
// picks up the same value.
func (c *Config) RotateAdminSecret() (string, error) {
	newSecret, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}
	c.AdminSecret = newSecret

	envFile := c.EnvFile
	if envFile == "" {
		envFile = ".env"
	}

	existing, err := godotenv.Read(envFile)
	if err != nil {
		existing = map[string]string{}
	}
	existing["ADMIN_SECRET"] = newSecret
	if err := godotenv.Write(existing, envFile); err != nil {
		return "", fmt.Errorf("persist rotated admin secret: %w", err)
	}
	return newSecret, nil
}

var validate = validator.New()

// RegisterSessionRequest is the wire payload for POST /sessions.
type RegisterSessionRequest struct {
	UserID   string          `json:"user_id" validate:"required"`
	Symbol   string          `json:"symbol" validate:"required"`
	Leverage int             `json:"leverage" validate:"gt=0"`
	Settings models.Settings `json:"settings" validate:"required"`
}

// ValidateSettings runs struct-tag validation over req, then the
// structural checks models.Settings.Validate can't express as tags
// (strictly increasing grid levels, lot bound ordering).
func ValidateSettings(req RegisterSessionRequest) error {
	if err := validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			var errs []string
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
			}
			return &ValidationError{Errors: errs}
		}
		return err
	}
	return req.Settings.Validate()
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
