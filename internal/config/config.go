// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StoreDriver はデータストアの種別を表す。
type StoreDriver string

const (
	// StoreMemory はインメモリストアを使用することを示す。
	StoreMemory StoreDriver = "memory"
	// StorePostgres はPostgreSQLストアを使用することを示す。
	StorePostgres StoreDriver = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver StoreDriver
	DatabaseURL string

	// Auth
	AuthTokenSecret string
	WebhookSecret   string

	// Subscribe
	HeartbeatInterval time.Duration

	// Rate Limit
	RateLimitGeneral  int
	RateLimitMutation int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.AuthTokenSecret = os.Getenv("AUTH_TOKEN_SECRET")
	if cfg.AuthTokenSecret == "" {
		missing = append(missing, "AUTH_TOKEN_SECRET")
	}

	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	if cfg.WebhookSecret == "" {
		missing = append(missing, "WEBHOOK_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	driver := StoreDriver(getEnvString("STORE_DRIVER", string(StoreMemory)))
	switch driver {
	case StoreMemory, StorePostgres:
		cfg.StoreDriver = driver
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %s", driver)
	}

	// PostgreSQLストアの場合のみ接続URLが必須
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.StoreDriver == StorePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.HeartbeatInterval = getEnvDuration("HEARTBEAT_INTERVAL", 30*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitMutation = getEnvInt("RATE_LIMIT_MUTATION", 60)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("BASE_URL must start with http:// or https://: %s", cfg.BaseURL)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
