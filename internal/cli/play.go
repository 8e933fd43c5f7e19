package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mrlokans/readalong/internal/audio"
	"github.com/mrlokans/readalong/internal/config"
	"github.com/mrlokans/readalong/internal/database"
	progressdb "github.com/mrlokans/readalong/internal/database/progress"
	"github.com/mrlokans/readalong/internal/entities"
	"github.com/mrlokans/readalong/internal/playback"
	"github.com/mrlokans/readalong/internal/progress"
	"github.com/mrlokans/readalong/internal/remote"
	"github.com/mrlokans/readalong/internal/smil"
	"github.com/mrlokans/readalong/internal/texts"
)

// PlayCommand runs an interactive read-along session for one book
type PlayCommand struct {
	BookDir      string
	BookID       string
	DatabasePath string
	ServerURL    string
	DeviceToken  string
	DeviceName   string
	Rate         float64
	Verbose      bool
}

// NewPlayCommand creates a new PlayCommand
func NewPlayCommand() *PlayCommand {
	return &PlayCommand{}
}

// ParseFlags parses command line flags
func (cmd *PlayCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)

	fs.StringVar(&cmd.BookDir, "book", "", "Directory of the unpacked publication (required)")
	fs.StringVar(&cmd.BookID, "id", "", "Book identifier (defaults to the directory name)")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the local database file")
	fs.StringVar(&cmd.ServerURL, "server", os.Getenv("SYNC_SERVER_URL"), "Progress sync server URL (empty disables sync)")
	fs.StringVar(&cmd.DeviceToken, "token", os.Getenv("SYNC_DEVICE_TOKEN"), "Device token for the sync server")
	fs.StringVar(&cmd.DeviceName, "device", os.Getenv("SYNC_DEVICE_NAME"), "Device name reported with synced positions")
	fs.Float64Var(&cmd.Rate, "rate", 1.0, "Playback rate")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s play -book <dir> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Play a narrated book from its media overlays, highlighting the\n")
		fmt.Fprintf(os.Stderr, "spoken paragraph and syncing the position to the configured server.\n\n")
		fmt.Fprintf(os.Stderr, "Controls (press key, then Enter):\n")
		fmt.Fprintf(os.Stderr, "  p  toggle play/pause\n")
		fmt.Fprintf(os.Stderr, "  n  next paragraph\n")
		fmt.Fprintf(os.Stderr, "  b  previous paragraph\n")
		fmt.Fprintf(os.Stderr, "  q  quit (saves position)\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s play -book ~/books/moby-dick\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s play -book ~/books/moby-dick -server https://sync.example.com -token dev1.s3cret\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.BookDir == "" {
		fs.Usage()
		return fmt.Errorf("-book is required")
	}

	return nil
}

// Run executes the play command
func (cmd *PlayCommand) Run() error {
	cfg := config.NewConfig()

	// A bare name resolves against the configured library root.
	if _, err := os.Stat(cmd.BookDir); os.IsNotExist(err) {
		candidate := filepath.Join(cfg.Library.Root, cmd.BookDir)
		if _, cerr := os.Stat(candidate); cerr == nil {
			cmd.BookDir = candidate
		}
	}

	absBookDir, err := filepath.Abs(cmd.BookDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for book: %w", err)
	}
	cmd.BookDir = absBookDir

	if cmd.BookID == "" {
		cmd.BookID = filepath.Base(cmd.BookDir)
	}

	ctx := context.Background()

	st, err := smil.LoadStructure(cmd.BookDir)
	if err != nil {
		return fmt.Errorf("failed to load publication: %w", err)
	}
	if err := smil.ValidateTimings(st.Sections); err != nil {
		return fmt.Errorf("publication has broken media overlay timings: %w", err)
	}

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize local database: %w", err)
	}
	defer db.Close()
	progressRepo := progressdb.NewRepository(db.DB)

	// Sync is optional; without a server the position is still cached
	// locally and picked up by a later -server session.
	var syncEngine *progress.Engine
	if cmd.ServerURL != "" {
		remoteClient := remote.NewClient(cmd.ServerURL, cmd.DeviceToken)
		syncEngine = progress.NewEngine(remoteClient, progressRepo, progress.Config{
			Debounce: cfg.Sync.Debounce,
			Source:   cmd.DeviceName,
		})
		defer syncEngine.Close()
	}

	player := audio.NewSpeakerPlayer()
	engine := playback.NewEngine(player, playback.Config{
		TickInterval:           cfg.Playback.TickInterval,
		ResumeAfterPauseWindow: cfg.Playback.ResumeAfterPauseWindow,
	})
	defer engine.Close()

	if err := engine.LoadBook(ctx, cmd.BookID, st); err != nil {
		return fmt.Errorf("failed to load book: %w", err)
	}
	if cmd.Rate != 1.0 {
		if err := engine.SetRate(cmd.Rate); err != nil {
			return fmt.Errorf("invalid rate: %w", err)
		}
	}

	cmd.restorePosition(ctx, engine, progressRepo, syncEngine)

	extractor := texts.NewExtractor(st.ContentDir)

	fmt.Printf("📖 %s (%d sections, %s narrated)\n",
		cmd.BookID, len(st.Sections), formatSeconds(st.TotalDuration))

	subID, events := engine.Subscribe()
	defer engine.Unsubscribe(subID)

	done := make(chan struct{})
	go cmd.consumeEvents(ctx, events, engine, extractor, progressRepo, syncEngine, done)

	// The periodic sync tick runs on its own schedule, cancellable
	// independently of the playback tick.
	syncInterval := cfg.Sync.Interval
	if syncInterval <= 0 {
		syncInterval = time.Minute
	}
	syncTick := playback.NewSchedule(syncInterval, func() {
		if engine.Snapshot().State != playback.StatePlaying {
			return
		}
		cmd.saveProgress(context.Background(), engine.BookID(), engine.Locator(), entities.SyncReasonPeriodic, progressRepo, syncEngine)
	})
	syncTick.Start()
	defer syncTick.Stop()

	engine.Play()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

loop:
	for {
		select {
		case <-quit:
			break loop
		case <-done:
			break loop
		case line, ok := <-input:
			if !ok {
				break loop
			}
			if cmd.handleInput(ctx, line, engine) {
				break loop
			}
		}
	}

	// Final position save, forced past the debounce window.
	loc := engine.Locator()
	cmd.saveProgress(ctx, engine.BookID(), loc, entities.SyncReasonBookClosed, progressRepo, syncEngine)

	fmt.Println("\n💾 Position saved. Bye!")
	return nil
}

// handleInput reacts to one control line; returns true to quit.
func (cmd *PlayCommand) handleInput(ctx context.Context, line string, engine *playback.Engine) bool {
	switch line {
	case "p":
		if engine.Snapshot().State == playback.StatePlaying {
			engine.Pause()
		} else {
			engine.Play()
		}
	case "n":
		if err := engine.AdvanceToNextEntry(ctx); err != nil {
			fmt.Printf("⚠️  %v\n", err)
		}
	case "b":
		if err := engine.GoToPreviousEntry(ctx); err != nil {
			fmt.Printf("⚠️  %v\n", err)
		}
	case "q":
		return true
	}
	return false
}

// restorePosition resumes from the freshest of the server-side and
// locally cached positions.
func (cmd *PlayCommand) restorePosition(ctx context.Context, engine *playback.Engine, repo *progressdb.Repository, syncEngine *progress.Engine) {
	var remoteP, cached *entities.SavedProgress
	if syncEngine != nil {
		remoteP, cached = syncEngine.Fetch(ctx, cmd.BookID)
	} else {
		cached, _ = repo.GetProgress(cmd.BookID)
	}

	chosen := playback.ChooseRestorePosition(remoteP, cached)
	if chosen == nil {
		return
	}

	if err := engine.RestorePosition(ctx, chosen.Locator); err != nil {
		fmt.Printf("⚠️  Could not restore saved position: %v\n", err)
		return
	}
	if cmd.Verbose {
		fmt.Printf("↩️  Restored position from %s (%s)\n", chosen.Source, chosen.Timestamp.Format(time.RFC3339))
	}
}

// consumeEvents drives the session display and progress sync off the
// playback event stream.
func (cmd *PlayCommand) consumeEvents(
	ctx context.Context,
	events <-chan playback.Event,
	engine *playback.Engine,
	extractor *texts.Extractor,
	repo *progressdb.Repository,
	syncEngine *progress.Engine,
	done chan<- struct{},
) {
	for ev := range events {
		switch ev.Type {
		case playback.EventPositionChanged:
			loc := engine.Locator()
			fmt.Printf("▶ %s\n", extractor.Location(loc.Href, loc.Fragment))
			cmd.saveProgress(ctx, ev.Snapshot.BookID, loc, entities.SyncReasonPeriodic, repo, syncEngine)

		case playback.EventStateChanged:
			if ev.Snapshot.State == playback.StatePaused && !ev.Snapshot.Finished {
				cmd.saveProgress(ctx, ev.Snapshot.BookID, engine.Locator(), entities.SyncReasonUserPaused, repo, syncEngine)
			}

		case playback.EventBackgroundHandoff:
			cmd.saveProgress(ctx, ev.Snapshot.BookID, engine.Locator(), entities.SyncReasonBackgroundHandoff, repo, syncEngine)

		case playback.EventSectionAdvanceBlocked:
			fmt.Println("⏸  End of section")

		case playback.EventBookFinished:
			fmt.Println("🏁 Book finished")
			close(done)
			return

		case playback.EventError:
			fmt.Printf("⚠️  Playback error: %v\n", ev.Err)
			close(done)
			return
		}
	}
}

// saveProgress records a position in the cache and, when sync is
// configured, pushes it through the sync engine.
func (cmd *PlayCommand) saveProgress(ctx context.Context, bookID string, loc entities.Locator, reason entities.SyncReason, repo *progressdb.Repository, syncEngine *progress.Engine) {
	if bookID == "" {
		return
	}
	if syncEngine != nil {
		result := syncEngine.SyncProgress(ctx, bookID, loc, reason)
		if cmd.Verbose {
			fmt.Printf("   sync(%s): %s\n", reason, result)
		}
		return
	}
	err := repo.SetProgress(entities.SavedProgress{
		BookID:    bookID,
		Locator:   loc,
		Timestamp: time.Now().UTC(),
		Source:    cmd.DeviceName,
	})
	if err != nil && cmd.Verbose {
		fmt.Printf("   cache save failed: %v\n", err)
	}
}

func formatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	return d.Round(time.Second).String()
}
