// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Google   GoogleConfig
	Planner  PlannerConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level string
}

type GoogleConfig struct {
	BaseURL  string
	Timezone string
	Timeout  time.Duration
}

type PlannerConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("AGENDA_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Path: getEnv("AGENDA_DB_PATH", "agenda.db"),
		},
		Log: LogConfig{
			Level: getEnv("AGENDA_LOG_LEVEL", "info"),
		},
		Google: GoogleConfig{
			BaseURL:  getEnv("AGENDA_GCAL_BASE_URL", ""),
			Timezone: getEnv("AGENDA_TIMEZONE", "Asia/Kolkata"),
			Timeout:  getEnvAsDuration("AGENDA_GCAL_TIMEOUT", 10*time.Second),
		},
		Planner: PlannerConfig{
			BaseURL:     getEnv("AGENDA_PLANNER_BASE_URL", ""),
			APIKey:      getEnv("AGENDA_PLANNER_API_KEY", ""),
			Model:       getEnv("AGENDA_PLANNER_MODEL", ""),
			Temperature: getEnvAsFloat("AGENDA_PLANNER_TEMPERATURE", 0.2),
			Timeout:     getEnvAsDuration("AGENDA_PLANNER_TIMEOUT", 60*time.Second),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return duration
	}
	return defaultValue
}
