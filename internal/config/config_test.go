package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(8188), cfg.HTTP.Port)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, DefaultLibraryRoot, cfg.Library.Root)

	assert.Equal(t, 100*time.Millisecond, cfg.Playback.TickInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.ResumeAfterPauseWindow)

	assert.Equal(t, 5*time.Second, cfg.Sync.Debounce)
	assert.Equal(t, 60*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "*/5 * * * *", cfg.Sync.FlushSchedule)

	assert.True(t, cfg.Tasks.Enabled)
	assert.Equal(t, 2, cfg.Tasks.Workers)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PLAYBACK_TICK_INTERVAL", "250ms")
	t.Setenv("SYNC_INTERVAL", "30s")
	t.Setenv("SYNC_SERVER_URL", "https://sync.example.com")
	t.Setenv("LIBRARY_ROOT", "/srv/books")

	cfg := NewConfig()

	assert.Equal(t, 250*time.Millisecond, cfg.Playback.TickInterval)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "https://sync.example.com", cfg.Sync.ServerURL)
	assert.Equal(t, "/srv/books", cfg.Library.Root)
}
