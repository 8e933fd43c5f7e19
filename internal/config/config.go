package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Tasks
		Playback
		Sync
		Library
	}

	HTTP struct {
		Port int32
		Host string
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Playback struct {
		TickInterval           time.Duration
		ResumeAfterPauseWindow time.Duration
	}
	Sync struct {
		ServerURL     string
		DeviceToken   string
		DeviceName    string
		Debounce      time.Duration
		Interval      time.Duration // cadence of the periodic sync tick during playback
		FlushSchedule string        // Cron format: "*/5 * * * *" = every 5 minutes
	}
	Library struct {
		Root string // Directory holding unpacked publications
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("library_root", DefaultLibraryRoot)

	// Playback defaults
	v.SetDefault("playback_tick_interval", "100ms")
	v.SetDefault("playback_resume_after_pause_window", "500ms")

	// Sync defaults
	v.SetDefault("sync_server_url", "")
	v.SetDefault("sync_device_token", "")
	v.SetDefault("sync_device_name", "")
	v.SetDefault("sync_debounce", "5s")
	v.SetDefault("sync_interval", "60s")
	v.SetDefault("sync_flush_schedule", "*/5 * * * *") // Every 5 minutes

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Playback: Playback{
			TickInterval:           v.GetDuration("PLAYBACK_TICK_INTERVAL"),
			ResumeAfterPauseWindow: v.GetDuration("PLAYBACK_RESUME_AFTER_PAUSE_WINDOW"),
		},
		Sync: Sync{
			ServerURL:     v.GetString("SYNC_SERVER_URL"),
			DeviceToken:   v.GetString("SYNC_DEVICE_TOKEN"),
			DeviceName:    v.GetString("SYNC_DEVICE_NAME"),
			Debounce:      v.GetDuration("SYNC_DEBOUNCE"),
			Interval:      v.GetDuration("SYNC_INTERVAL"),
			FlushSchedule: v.GetString("SYNC_FLUSH_SCHEDULE"),
		},
		Library: Library{
			Root: v.GetString("LIBRARY_ROOT"),
		},
	}
}
