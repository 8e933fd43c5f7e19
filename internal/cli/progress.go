package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrlokans/readalong/internal/config"
	"github.com/mrlokans/readalong/internal/database"
	progressdb "github.com/mrlokans/readalong/internal/database/progress"
)

// ProgressCommand lists cached reading positions and the offline queue
type ProgressCommand struct {
	DatabasePath string
	ShowPending  bool
}

// NewProgressCommand creates a new ProgressCommand
func NewProgressCommand() *ProgressCommand {
	return &ProgressCommand{}
}

// ParseFlags parses command line flags
func (cmd *ProgressCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("progress", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the local database file")
	fs.BoolVar(&cmd.ShowPending, "pending", false, "Also show queued updates awaiting delivery")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s progress [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "List the last known position per book, most recent first.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

// Run executes the progress command
func (cmd *ProgressCommand) Run() error {
	absDBPath, err := filepath.Abs(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for database: %w", err)
	}
	cmd.DatabasePath = absDBPath

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize local database: %w", err)
	}
	defer db.Close()
	repo := progressdb.NewRepository(db.DB)

	saved, err := repo.ListProgress()
	if err != nil {
		return fmt.Errorf("failed to list progress: %w", err)
	}

	if len(saved) == 0 {
		fmt.Println("No saved positions.")
	}
	for _, p := range saved {
		line := fmt.Sprintf("📖 %s  %.1f%%  %s", p.BookID, p.Locator.TotalProgression*100, p.Timestamp.Local().Format(time.RFC822))
		if p.Location != "" {
			line += fmt.Sprintf("  (%s)", p.Location)
		}
		if p.Source != "" {
			line += fmt.Sprintf("  [%s]", p.Source)
		}
		fmt.Println(line)
	}

	if !cmd.ShowPending {
		return nil
	}

	pending, err := repo.ListPending()
	if err != nil {
		return fmt.Errorf("failed to list pending syncs: %w", err)
	}

	fmt.Printf("\n⏳ %d queued update(s)\n", len(pending))
	for _, p := range pending {
		line := fmt.Sprintf("   %s  %s  reason=%s attempts=%d", p.BookID, p.Timestamp.Local().Format(time.RFC822), p.Reason, p.Attempts)
		if p.LastError != "" {
			line += fmt.Sprintf("  last error: %s", p.LastError)
		}
		fmt.Println(line)
	}

	return nil
}
