package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server captures process level configuration.
type Server struct {
	Addr     string `env:"CRVS_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// TrustProxy makes client IPs come from X-Forwarded-For.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`

	// DatabaseURL selects the PostgreSQL stores. Empty runs on memory.
	DatabaseURL string        `env:"DATABASE_URL"`
	TxTimeout   time.Duration `env:"TX_TIMEOUT" envDefault:"15s"`

	Redis RedisConfig
	Kafka KafkaConfig

	CountryConfigURL     string        `env:"COUNTRY_CONFIG_URL" envDefault:"http://localhost:3040"`
	CountryConfigTimeout time.Duration `env:"COUNTRY_CONFIG_TIMEOUT" envDefault:"10s"`

	// EventConfigFile is read and watched when set; otherwise configurations
	// are fetched from the country config service.
	EventConfigFile     string        `env:"EVENT_CONFIG_FILE"`
	EventConfigCacheTTL time.Duration `env:"EVENT_CONFIG_CACHE_TTL" envDefault:"5m"`

	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"crvs"`

	DraftTTL           time.Duration `env:"DRAFT_TTL" envDefault:"168h"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
}

// RedisConfig holds the draft store connection. An empty URL keeps drafts
// in memory.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig enables the outbox relay. It only runs with PostgreSQL.
type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic      string   `env:"KAFKA_TOPIC" envDefault:"crvs.actions"`
	Partitions int32    `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"3"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// FromEnv parses the process environment.
func FromEnv() (Server, error) {
	return Parse(env.Options{})
}

// Parse is FromEnv with explicit options, so tests can pass Environment.
func Parse(opts env.Options) (Server, error) {
	var cfg Server
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Server) Validate() error {
	if strings.TrimSpace(c.JWTSigningKey) == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required")
	}
	if c.EventConfigFile == "" && c.CountryConfigURL == "" {
		return fmt.Errorf("either EVENT_CONFIG_FILE or COUNTRY_CONFIG_URL is required")
	}
	if c.CountryConfigTimeout <= 0 {
		return fmt.Errorf("COUNTRY_CONFIG_TIMEOUT must be positive")
	}
	if c.TxTimeout <= c.CountryConfigTimeout {
		return fmt.Errorf("TX_TIMEOUT must exceed COUNTRY_CONFIG_TIMEOUT")
	}
	if c.Kafka.Enabled() && c.DatabaseURL == "" {
		return fmt.Errorf("KAFKA_BROKERS requires DATABASE_URL")
	}
	return nil
}
