package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Driver identifies the credential store backend selected by DATABASE_URL.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMongo    Driver = "mongo"
)

var ErrUnsupportedDatabaseURL = errors.New("unsupported database url scheme")

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Log      LogConfig
}

type AppConfig struct {
	Port string `env:"API_PORT" envDefault:"4001"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL,required,notEmpty"`
	MongoDatabase   string        `env:"MONGO_DATABASE" envDefault:"account_service"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

type AuthConfig struct {
	TokenKey       string        `env:"TOKEN_KEY,required,notEmpty"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"2h"`
	StrictSessions bool          `env:"AUTH_STRICT_SESSIONS" envDefault:"false"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional dotenv file and then decodes the process environment.
// Variables already present in the environment win over the file.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.Auth.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive, got %s", cfg.Auth.TokenTTL)
	}

	if _, err := cfg.Database.Driver(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Driver derives the backend from the URL scheme.
func (c DatabaseConfig) Driver() (Driver, error) {
	scheme, _, found := strings.Cut(c.URL, "://")
	if !found {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDatabaseURL, redact(c.URL))
	}

	switch strings.ToLower(scheme) {
	case "postgres", "postgresql", "pgx5":
		return DriverPostgres, nil
	case "mongodb", "mongodb+srv":
		return DriverMongo, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDatabaseURL, scheme)
	}
}

// redact keeps credentials out of error messages.
func redact(url string) string {
	if at := strings.LastIndex(url, "@"); at >= 0 {
		return "***" + url[at:]
	}
	return url
}
