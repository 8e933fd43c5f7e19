package http

import (
	"github.com/mrlokans/readalong/internal/database"
	"github.com/mrlokans/readalong/internal/tasks"
)

// RouterConfig contains all dependencies and configuration needed to
// create the HTTP router. This replaces a long parameter list in
// NewRouter for better maintainability.
type RouterConfig struct {
	// Core dependencies
	Database       *database.Database
	ProgressStore  ProgressStore
	DeviceStore    DeviceStore
	Authenticator  DeviceAuthenticator
	PendingCounter PendingCounter

	// Task queue client (optional)
	TaskClient *tasks.Client

	// Application info
	Version string
}
