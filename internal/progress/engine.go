// Package progress keeps reading positions in sync between the local
// cache and the progress server: debounced pushes, at most one
// in-flight request per book, an offline queue, and timestamp-based
// conflict resolution.
package progress

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/readalong/internal/entities"
	"github.com/mrlokans/readalong/internal/remote"
)

// Result reports what happened to a sync request.
type Result string

const (
	// ResultSynced means the position reached the server, or the server
	// already held a newer one and the local update was dropped in its
	// favor. Either way the books agree and nothing is left to retry.
	ResultSynced Result = "synced"

	// ResultQueued means the update is waiting: debounced, superseding
	// an in-flight request, or parked in the offline queue.
	ResultQueued Result = "queued"

	// ResultFailed means the server rejected the update for a reason
	// retrying will not fix.
	ResultFailed Result = "failed"
)

// Report summarizes a flush of the offline queue.
type Report struct {
	Synced []string
	Failed []string
}

// Config tunes the sync engine.
type Config struct {
	// Debounce is how long a non-forced update waits for further
	// position changes before being pushed. Default: 5s.
	Debounce time.Duration

	// Source identifies this device on saved positions.
	Source string
}

// DefaultConfig returns the standard sync configuration.
func DefaultConfig() Config {
	return Config{Debounce: 5 * time.Second}
}

type bookState struct {
	inFlight    bool
	pendingNext *entities.SavedProgress
	timer       *time.Timer
	debounced   *entities.SavedProgress
	reason      entities.SyncReason
}

// Engine is the progress sync engine. Safe for concurrent use.
type Engine struct {
	remote RemoteStore
	cache  CacheStore
	cfg    Config

	mu        sync.Mutex
	books     map[string]*bookState
	lastKnown map[string]time.Time // latest timestamp the server confirmed per book
	onFlush   func(Report)
	closed    bool
	now       func() time.Time
}

// NewEngine creates a sync engine over the given stores.
func NewEngine(remoteStore RemoteStore, cache CacheStore, cfg Config) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	return &Engine{
		remote:    remoteStore,
		cache:     cache,
		cfg:       cfg,
		books:     make(map[string]*bookState),
		lastKnown: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetFlushObserver installs the callback notified after each offline
// queue flush. Invoked on its own goroutine, fire-and-forget.
func (e *Engine) SetFlushObserver(fn func(Report)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFlush = fn
}

// SyncProgress records the position locally and pushes it to the
// server. Forced reasons (book closed, background handoff) bypass the
// debounce window; everything else waits out the window so rapid
// navigation collapses into a single request.
func (e *Engine) SyncProgress(ctx context.Context, bookID string, loc entities.Locator, reason entities.SyncReason) Result {
	p := entities.SavedProgress{
		BookID:    bookID,
		Locator:   loc,
		Timestamp: e.now().UTC(),
		Source:    e.cfg.Source,
	}

	// The local cache is the source of truth for this device and is
	// written even when the push never leaves the machine.
	if err := e.cache.SetProgress(p); err != nil {
		log.Printf("WARNING: failed to cache progress for %s: %v", bookID, err)
	}

	if !reason.Forced() {
		e.debounce(bookID, p, reason)
		return ResultQueued
	}

	// A forced push carries a newer position than whatever the debounce
	// window is holding back.
	e.mu.Lock()
	if st, ok := e.books[bookID]; ok && st.timer != nil {
		st.timer.Stop()
		st.timer = nil
		st.debounced = nil
	}
	e.mu.Unlock()

	return e.push(ctx, p, reason)
}

func (e *Engine) debounce(bookID string, p entities.SavedProgress, reason entities.SyncReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	st := e.bookLocked(bookID)
	st.debounced = &p
	st.reason = reason
	if st.timer != nil {
		// A fresh update restarts the window; only the latest position
		// goes out.
		st.timer.Reset(e.cfg.Debounce)
		return
	}
	st.timer = time.AfterFunc(e.cfg.Debounce, func() { e.fireDebounced(bookID) })
}

func (e *Engine) fireDebounced(bookID string) {
	e.mu.Lock()
	st, ok := e.books[bookID]
	if !ok || st.debounced == nil || e.closed {
		e.mu.Unlock()
		return
	}
	p := *st.debounced
	reason := st.reason
	st.debounced = nil
	st.timer = nil
	e.mu.Unlock()

	e.push(context.Background(), p, reason)
}

// push delivers one update, keeping at most one request in flight per
// book. An update arriving while another is in flight supersedes any
// previously waiting one and goes out as soon as the wire is free.
func (e *Engine) push(ctx context.Context, p entities.SavedProgress, reason entities.SyncReason) Result {
	e.mu.Lock()
	st := e.bookLocked(p.BookID)
	if st.inFlight {
		st.pendingNext = &p
		st.reason = reason
		e.mu.Unlock()
		return ResultQueued
	}
	if last, ok := e.lastKnown[p.BookID]; ok && !p.Timestamp.After(last) {
		// The server already has this position or a newer one.
		e.mu.Unlock()
		return ResultSynced
	}
	st.inFlight = true
	e.mu.Unlock()

	result := e.deliver(ctx, p, reason)

	e.mu.Lock()
	st.inFlight = false
	next := st.pendingNext
	nextReason := st.reason
	st.pendingNext = nil
	e.mu.Unlock()

	if next != nil {
		go e.push(context.Background(), *next, nextReason)
	}
	return result
}

func (e *Engine) deliver(ctx context.Context, p entities.SavedProgress, reason entities.SyncReason) Result {
	err := e.remote.Put(ctx, p)
	if err == nil {
		e.mu.Lock()
		e.lastKnown[p.BookID] = p.Timestamp
		e.mu.Unlock()
		// A delivered position supersedes anything still queued for
		// the book; leaving the row behind would replay a stale
		// locator on the next flush.
		e.dequeuePending(p.BookID)
		log.Printf("Synced progress for %s (%s)", p.BookID, reason)
		return ResultSynced
	}

	var conflict *remote.ConflictError
	if errors.As(err, &conflict) {
		// Another device read further; its position wins.
		e.mu.Lock()
		e.lastKnown[p.BookID] = conflict.ServerTimestamp
		e.mu.Unlock()
		e.dequeuePending(p.BookID)
		log.Printf("Dropped stale progress for %s, server is ahead at %s", p.BookID, conflict.ServerTimestamp.Format(time.RFC3339))
		return ResultSynced
	}

	if errors.Is(err, remote.ErrUnreachable) || errors.Is(err, remote.ErrUnauthorized) {
		log.Printf("Queueing progress for %s: %v", p.BookID, err)
		if qerr := e.cache.EnqueuePending(entities.PendingProgressSync{
			BookID:    p.BookID,
			Locator:   p.Locator,
			Timestamp: p.Timestamp,
			Reason:    reason,
		}); qerr != nil {
			log.Printf("WARNING: failed to queue progress for %s: %v", p.BookID, qerr)
			return ResultFailed
		}
		return ResultQueued
	}

	log.Printf("WARNING: progress sync for %s failed: %v", p.BookID, err)
	return ResultFailed
}

func (e *Engine) dequeuePending(bookID string) {
	if err := e.cache.DeletePending(bookID); err != nil {
		log.Printf("WARNING: failed to dequeue %s: %v", bookID, err)
	}
}

// FlushPending drains the offline queue, oldest first. Delivery stops
// early when the server is unreachable; whatever was not attempted
// simply stays queued. The flush observer is notified with what
// synced and what failed.
func (e *Engine) FlushPending(ctx context.Context) (Report, error) {
	pending, err := e.cache.ListPending()
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, item := range pending {
		p := entities.SavedProgress{
			BookID:    item.BookID,
			Locator:   item.Locator,
			Timestamp: item.Timestamp,
			Source:    e.cfg.Source,
		}

		err := e.remote.Put(ctx, p)
		if err == nil {
			e.mu.Lock()
			e.lastKnown[p.BookID] = p.Timestamp
			e.mu.Unlock()
			if derr := e.cache.DeletePending(item.BookID); derr != nil {
				log.Printf("WARNING: failed to dequeue %s: %v", item.BookID, derr)
			}
			report.Synced = append(report.Synced, item.BookID)
			continue
		}

		var conflict *remote.ConflictError
		if errors.As(err, &conflict) {
			e.mu.Lock()
			e.lastKnown[p.BookID] = conflict.ServerTimestamp
			e.mu.Unlock()
			if derr := e.cache.DeletePending(item.BookID); derr != nil {
				log.Printf("WARNING: failed to dequeue %s: %v", item.BookID, derr)
			}
			report.Synced = append(report.Synced, item.BookID)
			continue
		}

		if errors.Is(err, remote.ErrUnreachable) {
			log.Printf("Flush stopped, server unreachable; %d updates still queued", len(pending)-len(report.Synced)-len(report.Failed))
			break
		}

		log.Printf("WARNING: flush of %s failed: %v", item.BookID, err)
		if ferr := e.cache.RecordPendingFailure(item.BookID, err.Error()); ferr != nil {
			log.Printf("WARNING: failed to record failure for %s: %v", item.BookID, ferr)
		}
		report.Failed = append(report.Failed, item.BookID)
	}

	e.mu.Lock()
	observer := e.onFlush
	e.mu.Unlock()
	if observer != nil && (len(report.Synced) > 0 || len(report.Failed) > 0) {
		go observer(report)
	}
	return report, nil
}

// Fetch retrieves both views of a book's progress: the server's and
// the local cache's. A remote failure is not fatal, restoration can
// proceed from the cache alone.
func (e *Engine) Fetch(ctx context.Context, bookID string) (remoteP, cached *entities.SavedProgress) {
	var err error
	remoteP, err = e.remote.Get(ctx, bookID)
	if err != nil {
		log.Printf("Could not fetch remote progress for %s: %v", bookID, err)
	} else if remoteP != nil {
		e.mu.Lock()
		if remoteP.Timestamp.After(e.lastKnown[bookID]) {
			e.lastKnown[bookID] = remoteP.Timestamp
		}
		e.mu.Unlock()
	}

	cached, err = e.cache.GetProgress(bookID)
	if err != nil {
		log.Printf("WARNING: could not read cached progress for %s: %v", bookID, err)
	}
	return remoteP, cached
}

// GetPendingProgressSyncs exposes the offline queue for diagnostics.
func (e *Engine) GetPendingProgressSyncs() ([]entities.PendingProgressSync, error) {
	return e.cache.ListPending()
}

// GetAllBookProgress lists every cached position on this device.
func (e *Engine) GetAllBookProgress() ([]entities.SavedProgress, error) {
	return e.cache.ListProgress()
}

// Close cancels outstanding debounce timers. Positions already written
// to the cache are preserved; undelivered ones surface via the queue
// on the next run.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for _, st := range e.books {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.debounced = nil
	}
}

func (e *Engine) bookLocked(bookID string) *bookState {
	st, ok := e.books[bookID]
	if !ok {
		st = &bookState{}
		e.books[bookID] = st
	}
	return st
}
