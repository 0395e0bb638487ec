// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings shared by the example programs.
type Config struct {
	// Remote service
	APIBaseURL string // base URL of the generation service
	APIKey     string // default bearer key
	ProAPIKey  string // bearer key for sora-2-pro create calls; falls back to APIKey
	UploadURL  string // image host endpoint

	// Redis
	RedisAddr     string
	RedisPassword string

	// Orchestration
	PollInterval  time.Duration
	CompletedWait time.Duration // how long a completed task without result URL keeps polling
	BatchDelay    time.Duration

	// HTTP server
	Port    string
	GinMode string
}

// Load reads configuration from the environment. A .env.local file in the working
// directory (or its parent) is loaded first when present.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		APIBaseURL: getEnv("GENFLOW_API_BASE_URL", "https://api.sora2.email"),
		APIKey:     getEnv("GENFLOW_API_KEY", ""),
		ProAPIKey:  getEnv("GENFLOW_PRO_API_KEY", ""),
		UploadURL:  getEnv("GENFLOW_UPLOAD_URL", "https://imageproxy.zhongzhuan.chat/api/upload"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		PollInterval:  getEnvAsDuration("GENFLOW_POLL_INTERVAL", 2*time.Second),
		CompletedWait: getEnvAsDuration("GENFLOW_COMPLETED_WAIT", 10*time.Minute),
		BatchDelay:    getEnvAsDuration("GENFLOW_BATCH_DELAY", 500*time.Millisecond),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}
	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return fmt.Errorf("GENFLOW_API_BASE_URL must be an http(s) URL, got %q", c.APIBaseURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("GENFLOW_POLL_INTERVAL must be positive")
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("GENFLOW_BATCH_DELAY must not be negative")
	}
	if c.GinMode == "release" && c.APIKey == "" {
		return fmt.Errorf("GENFLOW_API_KEY is required in release mode")
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
