// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Rate limit backends
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Environment   string
	Server        ServerConfig
	Database      DatabaseConfig
	Token         TokenConfig
	Cookie        CookieConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	Events        EventsConfig
	Observability ObservabilityConfig
	Admin         AdminConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CleanupInterval time.Duration
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// TokenConfig holds signing material. PrivateKey is PEM text.
type TokenConfig struct {
	PrivateKey          string
	PrivateKeyFile      string
	RefreshSecret       string
	AdditionalPublicKey string
	Issuer              string
}

// CookieConfig controls the auth cookies
type CookieConfig struct {
	Domain string
	Secure bool
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	PasswordHashCost int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	Backend           string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
}

// EventsConfig configures domain event publishing. An empty AMQPURL
// disables it.
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
	SamplingRate   float64
}

// AdminConfig is the seed administrator created at startup
type AdminConfig struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Load reads .env.<APP_ENV> and .env when present, then builds the
// configuration from the environment. Variables already set in the process
// environment win over file values.
func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	for _, file := range []string{".env." + env, ".env"} {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", file, err)
			}
		}
	}

	cfg := FromEnv()
	cfg.Environment = env

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from process environment variables only
func FromEnv() *Config {
	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "5501"),
			ReadTimeout:     parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:    parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:     parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: parseDuration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
			CleanupInterval: parseDuration("TOKEN_CLEANUP_INTERVAL", "1h"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "auth"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "auth"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Token: TokenConfig{
			PrivateKey:          expandNewlines(os.Getenv("PRIVATE_KEY")),
			PrivateKeyFile:      getEnv("PRIVATE_KEY_FILE", ""),
			RefreshSecret:       getEnv("REFRESH_TOKEN_SECRET", ""),
			AdditionalPublicKey: expandNewlines(os.Getenv("ACCESS_TOKEN_PUBLIC_KEY")),
			Issuer:              getEnv("TOKEN_ISSUER", "auth-service"),
		},
		Cookie: CookieConfig{
			Domain: getEnv("COOKIE_DOMAIN", ""),
			Secure: parseBool("COOKIE_SECURE", false),
		},
		Security: SecurityConfig{
			PasswordHashCost: parseInt("PASSWORD_HASH_COST", 10),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: parseFloat("RATELIMIT_RPS", 10),
			Burst:             parseInt("RATELIMIT_BURST", 20),
			Backend:           strings.ToLower(getEnv("RATELIMIT_BACKEND", RateLimitBackendMemory)),
			RedisAddr:         getEnv("REDIS_ADDR", ""),
			RedisPassword:     getEnv("REDIS_PASSWORD", ""),
			RedisDB:           parseInt("REDIS_DB", 0),
		},
		Events: EventsConfig{
			AMQPURL:  getEnv("AMQP_URL", ""),
			Exchange: getEnv("EVENTS_EXCHANGE", "auth.events"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "auth-service"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
			SamplingRate:   parseFloat("OTEL_SAMPLING_RATE", 1),
		},
		Admin: AdminConfig{
			Email:     getEnv("ADMIN_EMAIL", ""),
			Password:  getEnv("ADMIN_PASSWORD", ""),
			FirstName: getEnv("ADMIN_FIRSTNAME", "Admin"),
			LastName:  getEnv("ADMIN_LASTNAME", ""),
		},
	}
}

// Validate reports every missing or inconsistent value at once
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Password == "" {
		problems = append(problems, "DB_PASSWORD is required")
	}
	if c.Token.PrivateKey == "" && c.Token.PrivateKeyFile == "" {
		problems = append(problems, "PRIVATE_KEY or PRIVATE_KEY_FILE is required")
	}
	if c.Token.RefreshSecret == "" {
		problems = append(problems, "REFRESH_TOKEN_SECRET is required")
	}

	switch c.RateLimit.Backend {
	case RateLimitBackendMemory:
	case RateLimitBackendRedis:
		if c.RateLimit.RedisAddr == "" {
			problems = append(problems, "REDIS_ADDR is required when RATELIMIT_BACKEND=redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("RATELIMIT_BACKEND %q is not one of memory, redis", c.RateLimit.Backend))
	}

	if c.Admin.Email != "" && c.Admin.Password == "" {
		problems = append(problems, "ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ResolvePrivateKey returns the signing key PEM, reading PRIVATE_KEY_FILE
// when PRIVATE_KEY is empty.
func (t TokenConfig) ResolvePrivateKey() (string, error) {
	if t.PrivateKey != "" {
		return t.PrivateKey, nil
	}
	b, err := os.ReadFile(t.PrivateKeyFile)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read PRIVATE_KEY_FILE: %v", ErrInvalidConfig, err)
	}
	return string(b), nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}

// expandNewlines turns literal \n sequences into newlines so PEM blocks can
// live on one line in .env files.
func expandNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
