package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	APIBaseURL  string
	APIToken    string
	DatabaseURL string
	RedisURL    string
	UserName    string
	WorkerCount int
	QueueSize   int
	PageSize    int
	StaleTime   time.Duration
	HTTPTimeout time.Duration
	ToastTTL    time.Duration
	SnapshotTTL time.Duration
}

// Load reads the configuration from the environment. DATABASE_URL, when set,
// replaces the remote API with the local Postgres gateway; REDIS_URL enables
// page snapshots.
func Load() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:5000/api"),
		APIToken:    getEnv("API_TOKEN", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		UserName:    getEnv("USER_NAME", ""),
		WorkerCount: getInt("WORKER_COUNT", 3),
		QueueSize:   getInt("QUEUE_SIZE", 32),
		PageSize:    getInt("PAGE_SIZE", 10),
		StaleTime:   getDuration("STALE_TIME", 30*time.Second),
		HTTPTimeout: getDuration("HTTP_TIMEOUT", 15*time.Second),
		ToastTTL:    getDuration("TOAST_TTL", 0),
		SnapshotTTL: getDuration("SNAPSHOT_TTL", 24*time.Hour),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
