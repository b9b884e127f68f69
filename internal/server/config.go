// Package server provides configuration helpers that define runtime defaults,
// validation, and environment overrides for the LAN chat service.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration settings.
type Config struct {
	Env             string
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	UploadDir       string
	MaxUploadSize   int64
	SendBufferSize  int
	ShutdownTimeout time.Duration
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultUploadDir       = "uploads"
	defaultMaxUploadSize   = 50 << 20
	defaultShutdownTimeout = 30 * time.Second
)

func defaultConfig() Config {
	return Config{
		Env:  "dev",
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:  defaultMaxMessageSize,
		UploadDir:       defaultUploadDir,
		MaxUploadSize:   defaultMaxUploadSize,
		SendBufferSize:  sendBufferSize,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// sanitizeConfig replaces missing or invalid values with defaults.
func sanitizeConfig(cfg Config) Config {
	if cfg.Env == "" {
		cfg.Env = "dev"
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.UploadDir == "" {
		cfg.UploadDir = defaultUploadDir
	}

	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = sendBufferSize
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Env = env
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseSize(maxSize, cfg.MaxMessageSize)
	}

	if dir := os.Getenv("UPLOAD_DIR"); dir != "" {
		cfg.UploadDir = dir
	}

	if maxUpload := os.Getenv("MAX_UPLOAD_SIZE"); maxUpload != "" {
		cfg.MaxUploadSize = parseSize(maxUpload, cfg.MaxUploadSize)
	}

	if buffer := os.Getenv("SEND_BUFFER_SIZE"); buffer != "" {
		cfg.SendBufferSize = int(parseSize(buffer, int64(cfg.SendBufferSize)))
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseSeconds(timeout, cfg.ShutdownTimeout)
	}

	sanitized := sanitizeConfig(cfg)
	return &sanitized
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
