package config

import (
	"time"

	"github.com/spf13/viper"
)

type AuthMode string

const (
	AuthModeNone  AuthMode = "none"  // No authentication required (default)
	AuthModeToken AuthMode = "token" // API token lookup against the store
)

type (
	Config struct {
		HTTP
		Database
		Schema
		Global
		Auth
		Tasks
		Sessions
	}

	HTTP struct {
		Port int32
		Host string
	}
	Database struct {
		Path string
	}
	Schema struct {
		Path string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Auth struct {
		Mode AuthMode
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		MaxRetries      int
		RetryDelay      time.Duration
		TaskTimeout     time.Duration
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Sessions struct {
		RetentionDays   int
		CleanupEnabled  bool
		CleanupSchedule string // Cron format: "0 3 * * *" = daily at 03:00
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8190)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("schema_path", DefaultSchemaPath)

	// Auth defaults
	v.SetDefault("auth_mode", "none")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "10m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	// Import session retention defaults
	v.SetDefault("session_retention_days", 30)
	v.SetDefault("session_cleanup_enabled", true)
	v.SetDefault("session_cleanup_schedule", "0 3 * * *") // Daily at 03:00

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Schema: Schema{
			Path: v.GetString("SCHEMA_PATH"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Auth: Auth{
			Mode: AuthMode(v.GetString("AUTH_MODE")),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			MaxRetries:      v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:      v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:     v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Sessions: Sessions{
			RetentionDays:   v.GetInt("SESSION_RETENTION_DAYS"),
			CleanupEnabled:  v.GetBool("SESSION_CLEANUP_ENABLED"),
			CleanupSchedule: v.GetString("SESSION_CLEANUP_SCHEDULE"),
		},
	}
}
