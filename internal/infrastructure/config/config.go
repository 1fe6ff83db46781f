package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds everything the session core needs at construction time.
type Config struct {
	// APIBaseURL is the root of the Formahub REST API, including the /api
	// prefix.
	APIBaseURL  string        `env:"API_BASE_URL, default=http://localhost:8000/api"`
	Env         string        `env:"ENV, default=development"`
	LogLevel    string        `env:"LOG_LEVEL, default=info"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT, default=30s"`

	// LoginPath and OnboardingPath are the navigation targets the route
	// guard redirects to.
	LoginPath      string `env:"LOGIN_PATH,      default=/login"`
	OnboardingPath string `env:"ONBOARDING_PATH, default=/onboarding"`

	Vault VaultConfig
	Redis RedisConfig
	Mongo MongoConfig
}

// VaultConfig selects and configures the durable session storage backend.
type VaultConfig struct {
	// Backend is one of: memory, file, redis, mongo.
	Backend string `env:"VAULT_BACKEND, default=file"`
	// Path is the session file location for the file backend.
	Path string `env:"VAULT_PATH, default=.formahub/session"`
	// Passphrase seals the file backend's content at rest.
	Passphrase string `env:"VAULT_PASSPHRASE"`
	// Scope isolates installations sharing a redis/mongo deployment.
	Scope string `env:"VAULT_SCOPE, default=default"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB, default=0"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB, default=formahub"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
