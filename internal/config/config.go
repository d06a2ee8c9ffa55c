package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Root                string        `env:"CHATVAULT_ROOT" envDefault:"./chatvault"`
	Origin              string        `env:"CHATVAULT_ORIGIN" envDefault:"default"`
	Port                int           `env:"PORT" envDefault:"3002"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"INFO"`
	SessionSaveDebounce time.Duration `env:"SESSION_SAVE_DEBOUNCE" envDefault:"0s"`
	AllowedOrigins      []string      `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load parses the environment into a Config. If envFile is set it is loaded
// first; variables already present in the environment take precedence.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("error loading env file '%s': %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.Root == "" {
		return Config{}, fmt.Errorf("CHATVAULT_ROOT must not be empty")
	}
	if originDir(cfg.Origin) == "" {
		return Config{}, fmt.Errorf("invalid CHATVAULT_ORIGIN '%s'", cfg.Origin)
	}

	return cfg, nil
}

var unsafeOriginChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// originDir maps an origin such as "http://localhost:3000" to a directory
// name such as "http_localhost_3000".
func originDir(origin string) string {
	name := unsafeOriginChars.ReplaceAllString(origin, "_")
	name = strings.Trim(name, "_.")
	return name
}

// DatabasePath is the SQLite file holding the origin's structured store.
func (c Config) DatabasePath() string {
	return filepath.Join(c.Root, "db", originDir(c.Origin)+".db")
}

// FlatDir holds the origin's flat blobs: legacy data and fallback writes.
func (c Config) FlatDir() string {
	return filepath.Join(c.Root, "flat", originDir(c.Origin))
}

func (c Config) LogFile() string {
	return filepath.Join(c.Root, "chatvault.log")
}

func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
