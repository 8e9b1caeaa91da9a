// Package config reads process configuration from the environment. Binaries call
// godotenv.Load first so a local .env file can supply the same variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// HubConfig configures the hub server.
type HubConfig struct {
	Addr       string
	JWTSecret  string
	SendBuffer int
	Redis      RedisConfig
}

// RedisConfig holds connection settings for Redis. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// ClientConfig configures the chat client and its local history cache.
type ClientConfig struct {
	Host            string
	Secure          bool
	Path            string
	Token           string
	ReconnectDelay  time.Duration
	ReconnectJitter time.Duration

	HistoryBackend string
	HistoryDir     string
	DatabaseURL    string
	Redis          RedisConfig
}

// URL returns the hub address. Secure selects wss over ws.
func (c ClientConfig) URL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: c.Host, Path: c.Path}
	return u.String()
}

// HubFromEnv loads the hub configuration, falling back to defaults.
func HubFromEnv() HubConfig {
	return HubConfig{
		Addr:       getEnv("HUB_ADDR", DefaultHubAddr),
		JWTSecret:  os.Getenv("CHAT_JWT_SECRET"),
		SendBuffer: getInt("SEND_BUFFER", SendBufferSize),
		Redis:      redisFromEnv(),
	}
}

// ClientFromEnv loads the client configuration, falling back to defaults.
func ClientFromEnv() (ClientConfig, error) {
	delay, err := getDuration("RECONNECT_DELAY", DefaultReconnectDelay)
	if err != nil {
		return ClientConfig{}, err
	}
	jitter, err := getDuration("RECONNECT_JITTER", 0)
	if err != nil {
		return ClientConfig{}, err
	}
	return ClientConfig{
		Host:            getEnv("CHAT_HOST", DefaultHubHost),
		Secure:          getBool("CHAT_SECURE", false),
		Path:            getEnv("CHAT_PATH", DefaultHubPath),
		Token:           os.Getenv("CHAT_TOKEN"),
		ReconnectDelay:  delay,
		ReconnectJitter: jitter,
		HistoryBackend:  getEnv("HISTORY_BACKEND", "file"),
		HistoryDir:      getEnv("HISTORY_DIR", DefaultHistoryDir),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Redis:           redisFromEnv(),
	}, nil
}

// PostgresDSN returns DatabaseURL as a key/value DSN. postgres:// URLs are converted,
// anything else is passed through unchanged.
func (c ClientConfig) PostgresDSN() (string, error) {
	if c.DatabaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is not set")
	}
	if strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		dsn, err := pq.ParseURL(c.DatabaseURL)
		if err != nil {
			return "", fmt.Errorf("parse DATABASE_URL: %w", err)
		}
		return dsn, nil
	}
	return c.DatabaseURL, nil
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getInt("REDIS_DB", 0),
		Channel:  getEnv("REDIS_CHANNEL", DefaultRedisChannel),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
