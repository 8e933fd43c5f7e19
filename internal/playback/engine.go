// Package playback drives audio narration in lockstep with text
// position for readalong books: entry-by-entry and section-by-section
// navigation, audio-file transitions, and reconciliation against the
// live audio clock after the orchestration layer was suspended.
package playback

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/mrlokans/readalong/internal/audio"
	"github.com/mrlokans/readalong/internal/entities"
	"github.com/mrlokans/readalong/internal/smil"
)

// boundaryEpsilon is the slack used when re-checking that the audio
// clock really reached the current entry's end before a tick- or
// callback-driven advance. Prevents a stale finished callback from
// double-advancing right after a tick already moved on.
const boundaryEpsilon = 1e-3

// State is the playback engine's lifecycle state.
type State string

const (
	StateIdle    State = "idle" // also the terminal/reset state
	StateLoading State = "loading"
	StateReady   State = "ready"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Config tunes the engine's timing behavior.
type Config struct {
	// TickInterval is the cadence of the boundary-polling tick while
	// playing. Default: 100ms.
	TickInterval time.Duration

	// ResumeAfterPauseWindow is how soon after a pause a programmatic
	// entry change is treated as "still mid-gesture" and auto-resumes
	// playback. A UX smoothing heuristic, not a correctness rule.
	// Default: 500ms.
	ResumeAfterPauseWindow time.Duration
}

// DefaultConfig returns the standard timing configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:           100 * time.Millisecond,
		ResumeAfterPauseWindow: 500 * time.Millisecond,
	}
}

// Snapshot is a point-in-time view of the engine handed to observers.
// Observers never see partial updates.
type Snapshot struct {
	BookID       string
	State        State
	SectionIndex int
	EntryIndex   int
	SectionID    string
	Entry        smil.Entry
	AudioFile    string
	Rate         float64
	Volume       float64
	Finished     bool
}

// Engine is the playback state machine. It owns the current (section,
// entry) position, the loaded audio-file identity, and the
// play/pause/rate/volume state. All position-mutating operations are
// strictly serialized; snapshot reads never wait on audio I/O.
type Engine struct {
	player    audio.Player
	cfg       Config
	listeners *ListenerSet
	tick      *Schedule

	// navMu serializes position-mutating operations. A second
	// navigation request issued before the first's audio reload
	// completes queues behind it.
	navMu sync.Mutex

	// mu guards the snapshot fields below.
	mu            sync.Mutex
	bookID        string
	sections      []smil.SectionInfo
	contentDir    string
	totalDuration float64
	state         State
	sectionIdx    int
	entryIdx      int
	audioFile     string
	rate          float64
	volume        float64
	pausedAt      time.Time
	finished      bool

	gateMu sync.Mutex
	gate   func(fromSection int) bool
}

// NewEngine creates an idle engine on top of the given audio player.
func NewEngine(player audio.Player, cfg Config) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.ResumeAfterPauseWindow <= 0 {
		cfg.ResumeAfterPauseWindow = DefaultConfig().ResumeAfterPauseWindow
	}

	e := &Engine{
		player:    player,
		cfg:       cfg,
		listeners: NewListenerSet(),
		state:     StateIdle,
		rate:      1.0,
		volume:    0.5,
	}
	e.tick = NewSchedule(cfg.TickInterval, e.onTick)
	player.OnFinished(e.onAudioFinished)
	return e
}

// Subscribe registers an observer; Unsubscribe removes it by id.
func (e *Engine) Subscribe() (int, <-chan Event) {
	return e.listeners.Subscribe()
}

func (e *Engine) Unsubscribe(id int) {
	e.listeners.Unsubscribe(id)
}

// SetSectionAdvanceGate installs the hook consulted before crossing a
// section boundary. A nil gate always allows the advance.
func (e *Engine) SetSectionAdvanceGate(fn func(fromSection int) bool) {
	e.gateMu.Lock()
	defer e.gateMu.Unlock()
	e.gate = fn
}

// LoadBook resets the engine onto a new book structure, positioned at
// the first entry of the first narrated section. On failure the engine
// returns to idle.
func (e *Engine) LoadBook(ctx context.Context, bookID string, st *smil.Structure) error {
	e.navMu.Lock()
	defer e.navMu.Unlock()

	e.tick.Stop()
	e.setState(StateLoading)

	si, ok := smil.FirstNarratedSection(st.Sections)
	if !ok {
		e.setState(StateIdle)
		return fmt.Errorf("%w: %s", ErrNoNarration, bookID)
	}
	entry := st.Sections[si].MediaOverlay[0]

	if err := e.player.Load(ctx, filepath.Join(st.ContentDir, filepath.FromSlash(entry.AudioFile))); err != nil {
		e.setState(StateIdle)
		err = fmt.Errorf("failed to load audio for %s: %w", bookID, err)
		e.listeners.Publish(Event{Type: EventError, Snapshot: e.Snapshot(), Err: err})
		return err
	}
	if err := e.player.Seek(entry.Begin); err != nil {
		e.setState(StateIdle)
		e.listeners.Publish(Event{Type: EventError, Snapshot: e.Snapshot(), Err: err})
		return err
	}

	e.mu.Lock()
	e.bookID = bookID
	e.sections = st.Sections
	e.contentDir = st.ContentDir
	e.totalDuration = st.TotalDuration
	e.sectionIdx = si
	e.entryIdx = 0
	e.audioFile = entry.AudioFile
	e.finished = false
	e.state = StateReady
	e.mu.Unlock()

	log.Printf("Loaded book %s: %d sections, %.1fs narrated", bookID, len(st.Sections), st.TotalDuration)
	e.listeners.Publish(Event{Type: EventStateChanged, Snapshot: e.Snapshot()})
	e.listeners.Publish(Event{Type: EventPositionChanged, Snapshot: e.Snapshot()})
	return nil
}

// Play starts or resumes playback. No-op without loaded audio.
func (e *Engine) Play() {
	e.navMu.Lock()
	defer e.navMu.Unlock()

	e.mu.Lock()
	if e.audioFile == "" || (e.state != StateReady && e.state != StatePaused) {
		e.mu.Unlock()
		return
	}
	e.state = StatePlaying
	e.mu.Unlock()

	e.player.Play()
	e.tick.Start()
	e.listeners.Publish(Event{Type: EventStateChanged, Snapshot: e.Snapshot()})
}

// Pause suspends playback and records the pause instant for the
// resume-after-pause heuristic.
func (e *Engine) Pause() {
	e.navMu.Lock()
	defer e.navMu.Unlock()
	e.pauseLocked()
}

func (e *Engine) pauseLocked() {
	e.mu.Lock()
	if e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	e.state = StatePaused
	e.pausedAt = time.Now()
	e.mu.Unlock()

	e.player.Pause()
	e.tick.Stop()
	e.listeners.Publish(Event{Type: EventStateChanged, Snapshot: e.Snapshot()})
}

// SetCurrentEntry is the authoritative seek: it positions playback at
// the start of the given entry, reloading audio when the entry lives
// in a different file. A seek issued within the resume window after a
// pause auto-resumes playback.
func (e *Engine) SetCurrentEntry(ctx context.Context, sectionIdx, entryIdx int) error {
	e.navMu.Lock()
	defer e.navMu.Unlock()

	if err := e.validateEntry(sectionIdx, entryIdx); err != nil {
		return err
	}

	e.mu.Lock()
	resume := e.state == StatePlaying ||
		(e.state == StatePaused && time.Since(e.pausedAt) < e.cfg.ResumeAfterPauseWindow)
	e.mu.Unlock()

	return e.moveTo(ctx, sectionIdx, entryIdx, resume)
}

// SeekToFragment positions playback at the entry narrating the given
// text fragment within a section.
func (e *Engine) SeekToFragment(ctx context.Context, sectionIdx int, textID string) error {
	e.mu.Lock()
	if sectionIdx < 0 || sectionIdx >= len(e.sections) {
		e.mu.Unlock()
		return ErrEntryNotFound
	}
	entryIdx, ok := e.sections[sectionIdx].EntryIndexForTextID(textID)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s in section %d", ErrFragmentNotFound, textID, sectionIdx)
	}
	return e.SetCurrentEntry(ctx, sectionIdx, entryIdx)
}

// AdvanceToNextEntry moves forward one timed entry, crossing section
// and audio-file boundaries. At the end of the last narrated section
// it pauses and signals book-finished exactly once.
func (e *Engine) AdvanceToNextEntry(ctx context.Context) error {
	e.navMu.Lock()
	defer e.navMu.Unlock()
	return e.advanceLocked(ctx)
}

func (e *Engine) advanceLocked(ctx context.Context) error {
	e.mu.Lock()
	if len(e.sections) == 0 || e.state == StateIdle || e.state == StateLoading || e.finished {
		e.mu.Unlock()
		return nil
	}
	si, ei := e.sectionIdx, e.entryIdx
	section := e.sections[si]
	wasPlaying := e.state == StatePlaying
	e.mu.Unlock()

	// Next entry within the current section.
	if ei+1 < len(section.MediaOverlay) {
		next := section.MediaOverlay[ei+1]
		resume := wasPlaying || next.AudioFile != section.MediaOverlay[ei].AudioFile
		return e.moveTo(ctx, si, ei+1, resume)
	}

	// Section exhausted: the gate may block the crossing, e.g. a sleep
	// timer armed to stop at end of chapter.
	e.gateMu.Lock()
	gate := e.gate
	e.gateMu.Unlock()
	if gate != nil && !gate(si) {
		// A blocked advance always lands in paused, even when playback
		// never started.
		e.mu.Lock()
		wasPaused := e.state == StatePaused
		e.state = StatePaused
		e.pausedAt = time.Now()
		e.mu.Unlock()

		e.player.Pause()
		e.tick.Stop()
		if !wasPaused {
			e.listeners.Publish(Event{Type: EventStateChanged, Snapshot: e.Snapshot()})
		}
		e.listeners.Publish(Event{Type: EventSectionAdvanceBlocked, Snapshot: e.Snapshot()})
		return nil
	}

	e.mu.Lock()
	nextSection := si + 1
	endOfBook := nextSection >= len(e.sections) || !e.sections[nextSection].Narrated()
	e.mu.Unlock()

	if endOfBook {
		e.finishBook()
		return nil
	}

	// File reload plus seek plus resume: a file boundary must not
	// stall the listening experience.
	return e.moveTo(ctx, nextSection, 0, true)
}

// GoToPreviousEntry mirrors advance in reverse. At the very first
// timed entry it re-seeks to the start of the current entry, so
// "previous" acts as restart-from-beginning. Sections without
// narration are skipped walking backward.
func (e *Engine) GoToPreviousEntry(ctx context.Context) error {
	e.navMu.Lock()
	defer e.navMu.Unlock()

	e.mu.Lock()
	if len(e.sections) == 0 || e.state == StateIdle || e.state == StateLoading {
		e.mu.Unlock()
		return nil
	}
	si, ei := e.sectionIdx, e.entryIdx
	wasPlaying := e.state == StatePlaying
	e.mu.Unlock()

	if ei > 0 {
		return e.moveTo(ctx, si, ei-1, wasPlaying)
	}

	prev := si - 1
	for prev >= 0 {
		e.mu.Lock()
		narrated := e.sections[prev].Narrated()
		e.mu.Unlock()
		if narrated {
			break
		}
		prev--
	}

	if prev < 0 {
		// Already at the first timed entry; restart it.
		e.mu.Lock()
		begin := e.sections[si].MediaOverlay[ei].Begin
		e.finished = false
		e.mu.Unlock()
		if err := e.player.Seek(begin); err != nil {
			return err
		}
		e.listeners.Publish(Event{Type: EventPositionChanged, Snapshot: e.Snapshot()})
		return nil
	}

	e.mu.Lock()
	lastEntry := len(e.sections[prev].MediaOverlay) - 1
	e.mu.Unlock()
	return e.moveTo(ctx, prev, lastEntry, wasPlaying)
}

// ReconcilePositionFromPlayer re-derives the entry index from the
// audio engine's actual clock, which keeps advancing while the
// orchestration layer is suspended. Only the current section's entries
// are scanned; cross-section drift during suspension is not corrected
// here. Idempotent when the clock has not moved.
func (e *Engine) ReconcilePositionFromPlayer() bool {
	e.navMu.Lock()
	defer e.navMu.Unlock()

	e.mu.Lock()
	if len(e.sections) == 0 || e.state == StateIdle || e.state == StateLoading {
		e.mu.Unlock()
		return false
	}
	si, ei := e.sectionIdx, e.entryIdx
	section := e.sections[si]
	e.mu.Unlock()

	t := e.player.CurrentTime()
	idx, ok := section.EntryIndexAtTime(t)
	if !ok || idx == ei {
		return false
	}

	e.mu.Lock()
	e.entryIdx = idx
	e.mu.Unlock()

	log.Printf("Reconciled position for %s: entry %d -> %d at %.2fs", e.BookID(), ei, idx, t)
	e.listeners.Publish(Event{Type: EventPositionChanged, Snapshot: e.Snapshot()})
	return true
}

// HandleForeground runs once per suspend/resume cycle: it reconciles
// against the live audio clock and, when the position actually moved,
// emits a background-handoff event so progress sync pushes the true
// position promptly instead of waiting for the next periodic tick.
func (e *Engine) HandleForeground() bool {
	if !e.ReconcilePositionFromPlayer() {
		return false
	}
	e.listeners.Publish(Event{Type: EventBackgroundHandoff, Snapshot: e.Snapshot()})
	return true
}

// SetRate changes playback speed, preserving position.
func (e *Engine) SetRate(rate float64) error {
	if err := e.player.SetRate(rate); err != nil {
		return err
	}
	e.mu.Lock()
	e.rate = rate
	e.mu.Unlock()
	return nil
}

// SetVolume changes playback volume.
func (e *Engine) SetVolume(volume float64) error {
	if err := e.player.SetVolume(volume); err != nil {
		return err
	}
	e.mu.Lock()
	e.volume = volume
	e.mu.Unlock()
	return nil
}

// Snapshot returns a point-in-time view of the engine. Never blocks on
// audio I/O.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		BookID:       e.bookID,
		State:        e.state,
		SectionIndex: e.sectionIdx,
		EntryIndex:   e.entryIdx,
		AudioFile:    e.audioFile,
		Rate:         e.rate,
		Volume:       e.volume,
		Finished:     e.finished,
	}
	if e.sectionIdx >= 0 && e.sectionIdx < len(e.sections) {
		section := e.sections[e.sectionIdx]
		snap.SectionID = section.ID
		if e.entryIdx >= 0 && e.entryIdx < len(section.MediaOverlay) {
			snap.Entry = section.MediaOverlay[e.entryIdx]
		}
	}
	return snap
}

// BookID returns the loaded book's identifier, empty when idle.
func (e *Engine) BookID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bookID
}

// Sections returns the loaded book structure.
func (e *Engine) Sections() []smil.SectionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sections
}

// Locator serializes the current position into the portable form
// exchanged with the progress store.
func (e *Engine) Locator() entities.Locator {
	t := e.player.CurrentTime()

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sections) == 0 {
		return entities.Locator{}
	}
	section := e.sections[e.sectionIdx]
	loc := entities.Locator{Href: section.ID}
	if e.entryIdx < 0 || e.entryIdx >= len(section.MediaOverlay) {
		return loc
	}
	entry := section.MediaOverlay[e.entryIdx]
	loc.Fragment = entry.TextID

	if t < entry.Begin {
		t = entry.Begin
	}
	if t > entry.End {
		t = entry.End
	}

	if dur := section.Duration(); dur > 0 {
		var elapsed float64
		for i := 0; i < e.entryIdx; i++ {
			elapsed += section.MediaOverlay[i].Duration()
		}
		elapsed += t - entry.Begin
		loc.Progression = elapsed / dur
	}
	if e.totalDuration > 0 {
		loc.TotalProgression = (entry.CumSumAtEnd - (entry.End - t)) / e.totalDuration
	}
	return loc
}

// Close tears the session down: cancels the polling tick, releases the
// player, and returns the engine to idle. Callers perform their final
// forced progress sync before calling Close.
func (e *Engine) Close() error {
	e.navMu.Lock()
	defer e.navMu.Unlock()

	e.tick.Stop()
	err := e.player.Close()

	e.mu.Lock()
	e.state = StateIdle
	e.bookID = ""
	e.sections = nil
	e.audioFile = ""
	e.sectionIdx = 0
	e.entryIdx = 0
	e.finished = false
	e.mu.Unlock()

	e.listeners.Publish(Event{Type: EventStateChanged, Snapshot: e.Snapshot()})
	return err
}

// --- internals ---

// moveTo positions playback at the given entry, reloading audio when
// the file changes. Callers hold navMu.
func (e *Engine) moveTo(ctx context.Context, si, ei int, resume bool) error {
	e.mu.Lock()
	entry := e.sections[si].MediaOverlay[ei]
	currentFile := e.audioFile
	prior := e.state
	contentDir := e.contentDir
	e.mu.Unlock()

	if entry.AudioFile != currentFile {
		e.setState(StateLoading)
		if err := e.player.Load(ctx, filepath.Join(contentDir, filepath.FromSlash(entry.AudioFile))); err != nil {
			e.setState(StateIdle)
			err = fmt.Errorf("failed to load %s: %w", entry.AudioFile, err)
			e.listeners.Publish(Event{Type: EventError, Snapshot: e.Snapshot(), Err: err})
			return err
		}
	}

	if err := e.player.Seek(entry.Begin); err != nil {
		return fmt.Errorf("seek to %.3fs failed: %w", entry.Begin, err)
	}

	e.mu.Lock()
	e.sectionIdx = si
	e.entryIdx = ei
	e.audioFile = entry.AudioFile
	e.finished = false
	switch {
	case resume:
		e.state = StatePlaying
	case prior == StatePaused || prior == StateReady:
		e.state = prior
	default:
		e.state = StateReady
	}
	stateChanged := e.state != prior
	playing := e.state == StatePlaying
	e.mu.Unlock()

	if playing {
		e.player.Play()
		e.tick.Start()
	} else {
		e.player.Pause()
		e.tick.Stop()
	}

	e.listeners.Publish(Event{Type: EventPositionChanged, Snapshot: e.Snapshot()})
	if stateChanged {
		e.listeners.Publish(Event{Type: EventStateChanged, Snapshot: e.Snapshot()})
	}
	return nil
}

func (e *Engine) finishBook() {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return
	}
	e.finished = true
	e.state = StatePaused
	e.pausedAt = time.Now()
	e.mu.Unlock()

	e.player.Pause()
	e.tick.Stop()

	log.Printf("Book %s finished", e.BookID())
	e.listeners.Publish(Event{Type: EventStateChanged, Snapshot: e.Snapshot()})
	e.listeners.Publish(Event{Type: EventBookFinished, Snapshot: e.Snapshot()})
}

// onTick compares the audio clock against the active entry's end.
// Crossing the boundary advances even without a finished callback,
// which also covers entries shorter than the polling granularity.
func (e *Engine) onTick() {
	e.advanceIfBoundaryReached()
}

// onAudioFinished handles the player's end-of-file callback.
func (e *Engine) onAudioFinished() {
	e.advanceIfBoundaryReached()
}

// advanceIfBoundaryReached advances only when the audio clock really
// sits at or past the current entry's end, so a tick and a finished
// callback racing each other cannot double-advance.
func (e *Engine) advanceIfBoundaryReached() {
	e.navMu.Lock()
	defer e.navMu.Unlock()

	e.mu.Lock()
	if e.state != StatePlaying || len(e.sections) == 0 {
		e.mu.Unlock()
		return
	}
	section := e.sections[e.sectionIdx]
	if e.entryIdx < 0 || e.entryIdx >= len(section.MediaOverlay) {
		e.mu.Unlock()
		return
	}
	end := section.MediaOverlay[e.entryIdx].End
	e.mu.Unlock()

	if e.player.CurrentTime() < end-boundaryEpsilon {
		return
	}
	if err := e.advanceLocked(context.Background()); err != nil {
		log.Printf("WARNING: automatic advance failed: %v", err)
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	changed := e.state != s
	e.state = s
	e.mu.Unlock()
	if changed {
		e.listeners.Publish(Event{Type: EventStateChanged, Snapshot: e.Snapshot()})
	}
}

func (e *Engine) validateEntry(sectionIdx, entryIdx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sections) == 0 {
		return ErrNoBookLoaded
	}
	if sectionIdx < 0 || sectionIdx >= len(e.sections) {
		return fmt.Errorf("%w: section %d", ErrEntryNotFound, sectionIdx)
	}
	if entryIdx < 0 || entryIdx >= len(e.sections[sectionIdx].MediaOverlay) {
		return fmt.Errorf("%w: section %d entry %d", ErrEntryNotFound, sectionIdx, entryIdx)
	}
	return nil
}
