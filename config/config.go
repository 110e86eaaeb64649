package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default key-file locations, relative to the working directory.
const (
	telegramKeyFile = "res/telegram.key"
	moexKeyFile     = "res/moex.key"
	polygonKeyFile  = "res/polygon.key"
)

// Config holds all application configuration. Credentials come from key
// files under res/; everything else from environment variables.
type Config struct {
	// Telegram Bot API token (required).
	TelegramToken string

	// MOEX passport credentials for the analytics endpoints (optional;
	// the analytics aggregator is disabled without them).
	MOEXLogin    string
	MOEXPassword string

	// Polygon API key (optional, reserved).
	PolygonKey string

	// Infrastructure
	SQLitePath  string
	MetricsAddr string

	// Optional side channels; empty means disabled.
	RedisAddr     string
	RedisPassword string
	GatewayAddr   string

	// How often the notification sweep runs.
	NotificationInterval time.Duration
}

// Load reads key files and environment variables. Fails only on a missing
// Telegram token; every other credential is optional.
func Load() (*Config, error) {
	token, err := readKeyFile(getEnv("TELEGRAM_KEY_FILE", telegramKeyFile))
	if err != nil {
		return nil, fmt.Errorf("config: telegram token: %w", err)
	}

	cfg := &Config{
		TelegramToken: token,

		SQLitePath:  getEnv("SQLITE_PATH", "res/db/athena_data.sqlite"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ""),

		NotificationInterval: getEnvDuration("NOTIFICATION_INTERVAL", 30*time.Second),
	}

	if creds, err := readKeyFile(getEnv("MOEX_KEY_FILE", moexKeyFile)); err == nil {
		login, password, ok := strings.Cut(creds, " ")
		if !ok {
			return nil, fmt.Errorf("config: moex key file must contain \"login password\"")
		}
		cfg.MOEXLogin = login
		cfg.MOEXPassword = password
	} else {
		log.Printf("[config] no moex credentials, analytics aggregator disabled")
	}

	if key, err := readKeyFile(getEnv("POLYGON_KEY_FILE", polygonKeyFile)); err == nil {
		cfg.PolygonKey = key
	}

	return cfg, nil
}

// readKeyFile returns the trimmed contents of a single-secret file.
func readKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("key file %s is empty", path)
	}
	return key, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept both plain seconds ("30") and Go durations ("30s").
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
	return fallback
}
