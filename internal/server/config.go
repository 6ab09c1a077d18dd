// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Persistence failure policies.
const (
	PersistFailureReject    = "reject"
	PersistFailureBroadcast = "broadcast"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `envconfig:"BURST" default:"5" validate:"gt=0"`
	RefillInterval time.Duration `envconfig:"REFILL_INTERVAL" default:"1s" validate:"gt=0"`
}

// Config holds the relay configuration. Every field can be set from the
// environment; the envconfig tag names the variable.
type Config struct {
	Port           string          `envconfig:"SERVER_PORT" default:":8080" validate:"required"`
	AllowedOrigins []string        `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	MaxMessageSize int64           `envconfig:"MAX_MESSAGE_SIZE" default:"512" validate:"gt=0"`
	SendBufferSize int             `envconfig:"SEND_BUFFER_SIZE" default:"256" validate:"gt=0"`
	RateLimit      RateLimitConfig `envconfig:"RATE_LIMIT"`

	RequireAuth   bool   `envconfig:"REQUIRE_AUTH" default:"true"`
	ExcludeSender bool   `envconfig:"EXCLUDE_SENDER" default:"false"`
	RoomPrefix    string `envconfig:"ROOM_PREFIX" default:"chat_"`

	PersistTimeout       time.Duration `envconfig:"PERSIST_TIMEOUT" default:"5s" validate:"gt=0"`
	PersistFailurePolicy string        `envconfig:"PERSIST_FAILURE_POLICY" default:"reject" validate:"oneof=reject broadcast"`

	PongWait   time.Duration `envconfig:"PONG_WAIT" default:"60s" validate:"gt=0"`
	PingPeriod time.Duration `envconfig:"PING_PERIOD" default:"54s" validate:"gt=0,ltfield=PongWait"`
	WriteWait  time.Duration `envconfig:"WRITE_WAIT" default:"10s" validate:"gt=0"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"memory" validate:"oneof=memory badger sqlite"`
	StorePath   string `envconfig:"STORE_PATH" validate:"required_unless=StoreDriver memory"`

	JWTSecret string `envconfig:"JWT_SECRET" validate:"required_if=RequireAuth true"`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"roomrelay"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 512,
		SendBufferSize: 256,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		RequireAuth:          true,
		RoomPrefix:           "chat_",
		PersistTimeout:       5 * time.Second,
		PersistFailurePolicy: PersistFailureReject,
		PongWait:             60 * time.Second,
		PingPeriod:           54 * time.Second,
		WriteWait:            10 * time.Second,
		ShutdownTimeout:      10 * time.Second,
		StoreDriver:          "memory",
		JWTIssuer:            "roomrelay",
	}
}

// sanitizeConfig fills zero values with defaults so partially built configs
// (tests, embedding callers) behave like a loaded one.
func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = def.SendBufferSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.PersistFailurePolicy == "" {
		cfg.PersistFailurePolicy = def.PersistFailurePolicy
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = def.StoreDriver
	}
	if cfg.RoomPrefix == "" {
		cfg.RoomPrefix = def.RoomPrefix
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig reads the configuration from environment variables, falling
// back to defaults, and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
