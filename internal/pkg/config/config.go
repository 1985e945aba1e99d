package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	ProxyAddr     string `env:"PROXY_ADDR" envDefault:":8080"`
	AdminAddr     string `env:"ADMIN_ADDR" envDefault:":9091"`
	PostgresURL   string `env:"POSTGRES_URL,required"`
	MongoURL      string `env:"MONGO_URL,required"`
	RedisAddr     string `env:"REDIS_ADDR,required"`
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"1048576"` // 1MB

	GlobalRateLimit        int           `env:"GLOBAL_RATE_LIMIT" envDefault:"100"`
	TenantRateLimit        int           `env:"TENANT_RATE_LIMIT" envDefault:"50"`
	RateLimitWindow        time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	RateLimitSweepInterval time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL" envDefault:"5m"`
	RateLimitGrace         time.Duration `env:"RATE_LIMIT_GRACE" envDefault:"10m"`

	CollaboratorTimeout time.Duration `env:"COLLABORATOR_TIMEOUT" envDefault:"5s"`
	StorageTimeout      time.Duration `env:"STORAGE_TIMEOUT" envDefault:"10s"`

	AuditStream      string `env:"AUDIT_STREAM" envDefault:"audit:events"`
	PHIRedactionKeys string `env:"PHI_REDACTION_FIELDS" envDefault:"ssn,insurance_number,diagnosis,password"`

	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"10h"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
