package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port           string
	DataPath       string
	UploadPath     string
	MaxBodySize    string
	SessionTTL     time.Duration
	RedisAddr      string
	RedisPassword  string
	SweepInterval  time.Duration
	LoginRateRPS   float64
	LoginRateBurst int
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		DataPath:       getEnv("DATA_PATH", "./data/db.json"),
		UploadPath:     getEnv("UPLOAD_PATH", "./uploads"),
		MaxBodySize:    getEnv("MAX_BODY_SIZE", "10M"),
		SessionTTL:     getEnvDuration("SESSION_TTL_HOURS", 8*time.Hour),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		SweepInterval:  getEnvDuration("SWEEP_INTERVAL_HOURS", 1*time.Hour),
		LoginRateRPS:   getEnvFloat64("LOGIN_RATE_RPS", 2),
		LoginRateBurst: getEnvInt("LOGIN_RATE_BURST", 10),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if hours, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(hours * float64(time.Hour))
		}
	}
	return fallback
}
