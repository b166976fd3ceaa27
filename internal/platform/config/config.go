package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModelStoreFile  = "file"
	ModelStoreRedis = "redis"

	AuditSinkMemory   = "memory"
	AuditSinkPostgres = "postgres"
	AuditSinkKafka    = "kafka"
)

// Server captures the intake server configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	DatabaseURL string
	SeedCrises  string

	Redis   RedisConfig
	Model   ModelConfig
	Audit   AuditConfig
	Auth    AuthConfig
	Connect ConnectLimitConfig
}

// ConnectLimitConfig throttles websocket upgrades per client IP. A zero
// Limit disables throttling.
type ConnectLimitConfig struct {
	Limit  int
	Window time.Duration
}

// RedisConfig configures the optional shared redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ModelConfig locates the fitted classifier artifact.
type ModelConfig struct {
	Store    string
	Path     string
	RedisKey string
}

type AuditConfig struct {
	Sink    string
	Brokers []string
	Topic   string
	Buffer  int
}

// AuthConfig enables bearer-token auth on the websocket endpoint when
// SigningKey is set.
type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// Enabled reports whether websocket clients must present a token.
func (a AuthConfig) Enabled() bool {
	return a.SigningKey != ""
}

// IsProduction reports whether the server runs with production defaults.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	cfg := Server{
		Addr:        getenv("CASEGATE_ADDR", ":8080"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SeedCrises:  os.Getenv("SEED_CRISES"),
		Redis: RedisConfig{
			URL:          strings.TrimSpace(os.Getenv("REDIS_URL")),
			PoolSize:     getenvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getenvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getenvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getenvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Model: ModelConfig{
			Store:    strings.ToLower(getenv("MODEL_STORE", ModelStoreFile)),
			Path:     getenv("MODEL_PATH", "model/lof.bin"),
			RedisKey: getenv("MODEL_REDIS_KEY", "casegate:classifier:current"),
		},
		Audit: AuditConfig{
			Sink:    strings.ToLower(getenv("AUDIT_SINK", AuditSinkMemory)),
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getenv("AUDIT_TOPIC", "casegate.audit.intake"),
			Buffer:  getenvInt("AUDIT_BUFFER", 1024),
		},
		Auth: AuthConfig{
			SigningKey: os.Getenv("JWT_SIGNING_KEY"),
			Issuer:     getenv("JWT_ISSUER", "casegate"),
			Audience:   getenv("JWT_AUDIENCE", "casegate-intake"),
		},
		Connect: ConnectLimitConfig{
			Limit:  getenvInt("WS_CONNECT_LIMIT", 60),
			Window: getenvDuration("WS_CONNECT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (s Server) Validate() error {
	switch s.Model.Store {
	case ModelStoreFile:
		if s.Model.Path == "" {
			return fmt.Errorf("MODEL_PATH is required for the file model store")
		}
	case ModelStoreRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis model store")
		}
	default:
		return fmt.Errorf("unknown MODEL_STORE %q", s.Model.Store)
	}

	switch s.Audit.Sink {
	case AuditSinkMemory:
	case AuditSinkPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres audit sink")
		}
	case AuditSinkKafka:
		if len(s.Audit.Brokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka audit sink")
		}
	default:
		return fmt.Errorf("unknown AUDIT_SINK %q", s.Audit.Sink)
	}

	if s.Audit.Buffer < 0 {
		return fmt.Errorf("AUDIT_BUFFER must not be negative")
	}
	if s.Connect.Limit < 0 || (s.Connect.Limit > 0 && s.Connect.Window <= 0) {
		return fmt.Errorf("WS_CONNECT_LIMIT and WS_CONNECT_WINDOW must be positive")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
