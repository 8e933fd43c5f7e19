package config

// Default filesystem locations
const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./readalong.db"

	// DefaultLibraryRoot is the default directory scanned for unpacked publications
	DefaultLibraryRoot = "./library"
)
