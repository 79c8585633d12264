package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Session  SessionConfig
	Server   ServerConfig
	Upstream UpstreamConfig
	Broker   BrokerConfig
	Sync     SyncConfig
	Vault    VaultConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings for the audit event feed.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// SessionConfig holds settings for validating human session tokens minted by
// the external session subsystem.
type SessionConfig struct {
	JWTSecret string //nolint:gosec // G117: JWT signing secret config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	RateLimit    float64 // proxy requests per second per organization
	RateBurst    int
}

// UpstreamConfig holds settings for the proxied directory provider.
type UpstreamConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int           // extra attempts for GET/HEAD on transient network failures
	RetryBackoff time.Duration // base backoff between attempts
	RetryOn      []string      // transient classes: refused, reset, eof, dns
}

// BrokerConfig holds delegated-credential token exchange settings.
type BrokerConfig struct {
	TokenURL     string
	ExpiryMargin time.Duration // refresh this long before token expiry
}

// SyncConfig holds settings for the response-mirroring worker pool.
type SyncConfig struct {
	Workers         int
	QueueSize       int
	MaxCaptureBytes int64 // response bytes retained for entity recognition
}

// VaultConfig holds the encryption key for credential key material at rest.
type VaultConfig struct {
	Key []byte // 32 bytes, loaded base64-encoded
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production, sensitive
// values (session secret, vault key, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("DIRGATE_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("DIRGATE_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("DIRGATE_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("DIRGATE_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	// Write timeout must exceed the upstream dispatch timeout or long proxied
	// calls are cut off mid-response.
	writeTimeout, err := getEnvDuration("DIRGATE_SERVER_WRITE_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimit, err := getEnvFloat("DIRGATE_SERVER_RATE_LIMIT", 50)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateBurst, err := getEnvInt("DIRGATE_SERVER_RATE_BURST", 100)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	upstreamTimeout, err := getEnvDuration("DIRGATE_UPSTREAM_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retryMax, err := getEnvInt("DIRGATE_UPSTREAM_RETRY_MAX", 2)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retryBackoff, err := getEnvDuration("DIRGATE_UPSTREAM_RETRY_BACKOFF", 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	expiryMargin, err := getEnvDuration("DIRGATE_BROKER_EXPIRY_MARGIN", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	syncWorkers, err := getEnvInt("DIRGATE_SYNC_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	syncQueue, err := getEnvInt("DIRGATE_SYNC_QUEUE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	captureBytes, err := getEnvInt("DIRGATE_SYNC_MAX_CAPTURE_BYTES", 4<<20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	vaultKey, err := getEnvBase64("DIRGATE_VAULT_KEY")
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DIRGATE_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DIRGATE_DB_USER", "dirgate"),
			Password: getEnv("DIRGATE_DB_PASSWORD", ""),
			DBName:   getEnv("DIRGATE_DB_NAME", "dirgate_dev"),
			SSLMode:  getEnv("DIRGATE_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("DIRGATE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("DIRGATE_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Session: SessionConfig{
			JWTSecret: getEnv("DIRGATE_SESSION_JWT_SECRET", ""),
		},
		Server: ServerConfig{
			Addr:         getEnv("DIRGATE_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("DIRGATE_CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimit:    rateLimit,
			RateBurst:    rateBurst,
		},
		Upstream: UpstreamConfig{
			BaseURL:      getEnv("DIRGATE_UPSTREAM_BASE_URL", "https://admin.googleapis.com"),
			Timeout:      upstreamTimeout,
			RetryMax:     retryMax,
			RetryBackoff: retryBackoff,
			RetryOn:      getEnvList("DIRGATE_UPSTREAM_RETRY_ON", []string{"refused", "reset", "eof", "dns"}),
		},
		Broker: BrokerConfig{
			TokenURL:     getEnv("DIRGATE_BROKER_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			ExpiryMargin: expiryMargin,
		},
		Sync: SyncConfig{
			Workers:         syncWorkers,
			QueueSize:       syncQueue,
			MaxCaptureBytes: int64(captureBytes),
		},
		Vault: VaultConfig{
			Key: vaultKey,
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Session.JWTSecret == "" {
		return errors.New("DIRGATE_SESSION_JWT_SECRET is required")
	}
	if len(c.Session.JWTSecret) < 32 {
		return errors.New("DIRGATE_SESSION_JWT_SECRET must be at least 32 characters")
	}
	if len(c.Vault.Key) != 32 {
		return errors.New("DIRGATE_VAULT_KEY must decode to exactly 32 bytes")
	}

	if c.Database.SSLMode == "disable" {
		log.Warn().Msg("DIRGATE_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DIRGATE_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DIRGATE_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("DIRGATE_UPSTREAM_BASE_URL must be an absolute URL, got %q", c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("DIRGATE_UPSTREAM_TIMEOUT must be positive, got %s", c.Upstream.Timeout)
	}
	if c.Upstream.RetryMax < 0 {
		return fmt.Errorf("DIRGATE_UPSTREAM_RETRY_MAX must be >= 0, got %d", c.Upstream.RetryMax)
	}
	for _, class := range c.Upstream.RetryOn {
		switch class {
		case "refused", "reset", "eof", "dns":
		default:
			return fmt.Errorf("DIRGATE_UPSTREAM_RETRY_ON: unknown class %q", class)
		}
	}

	if c.Broker.ExpiryMargin <= 0 {
		return fmt.Errorf("DIRGATE_BROKER_EXPIRY_MARGIN must be positive, got %s", c.Broker.ExpiryMargin)
	}

	if c.Sync.Workers < 1 {
		return fmt.Errorf("DIRGATE_SYNC_WORKERS must be >= 1, got %d", c.Sync.Workers)
	}
	if c.Sync.QueueSize < 1 {
		return fmt.Errorf("DIRGATE_SYNC_QUEUE_SIZE must be >= 1, got %d", c.Sync.QueueSize)
	}
	if c.Sync.MaxCaptureBytes < 1024 {
		return fmt.Errorf("DIRGATE_SYNC_MAX_CAPTURE_BYTES must be >= 1024, got %d", c.Sync.MaxCaptureBytes)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("DIRGATE_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= c.Upstream.Timeout {
		return fmt.Errorf("DIRGATE_SERVER_WRITE_TIMEOUT (%s) must exceed DIRGATE_UPSTREAM_TIMEOUT (%s)",
			c.Server.WriteTimeout, c.Upstream.Timeout)
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("DIRGATE_SERVER_RATE_LIMIT must be positive, got %f", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 1 {
		return fmt.Errorf("DIRGATE_SERVER_RATE_BURST must be >= 1, got %d", c.Server.RateBurst)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvBase64(key string) ([]byte, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("parsing %s as base64: %w", key, err)
	}
	return b, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
