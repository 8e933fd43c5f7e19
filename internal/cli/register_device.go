package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrlokans/readalong/internal/config"
	"github.com/mrlokans/readalong/internal/database"
	"github.com/mrlokans/readalong/internal/database/devices"
)

// RegisterDeviceCommand mints a new device token against the server database
type RegisterDeviceCommand struct {
	DatabasePath string
	Name         string
}

// NewRegisterDeviceCommand creates a new RegisterDeviceCommand
func NewRegisterDeviceCommand() *RegisterDeviceCommand {
	return &RegisterDeviceCommand{}
}

// ParseFlags parses command line flags
func (cmd *RegisterDeviceCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("register-device", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the server database file")
	fs.StringVar(&cmd.Name, "name", "", "Human-readable device name, e.g. \"kitchen tablet\" (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s register-device -name <name> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Register a device and print its access token. Run this on the\n")
		fmt.Fprintf(os.Stderr, "server host; tokens are never minted over HTTP.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Name == "" {
		fs.Usage()
		return fmt.Errorf("-name is required")
	}

	return nil
}

// Run executes the register-device command
func (cmd *RegisterDeviceCommand) Run() error {
	absDBPath, err := filepath.Abs(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for database: %w", err)
	}
	cmd.DatabasePath = absDBPath

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	repo := devices.NewRepository(db.DB)
	device, token, err := repo.Register(cmd.Name)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}

	fmt.Printf("✅ Registered device %q (id %s)\n\n", device.Name, device.ID)
	fmt.Printf("Token (shown once, store it now):\n\n  %s\n\n", token)
	fmt.Printf("Use it as SYNC_DEVICE_TOKEN or with 'Authorization: Token <token>'.\n")
	return nil
}
