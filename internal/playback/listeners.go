package playback

import "sync"

const eventBufferSize = 16

// EventType identifies what a playback event describes.
type EventType string

const (
	// EventStateChanged fires on every play/pause/loading transition.
	EventStateChanged EventType = "state_changed"

	// EventPositionChanged fires on every (section, entry) or
	// audio-file change.
	EventPositionChanged EventType = "position_changed"

	// EventBookFinished fires exactly once when playback runs past the
	// last entry of the last narrated section.
	EventBookFinished EventType = "book_finished"

	// EventSectionAdvanceBlocked fires when the section-advance gate
	// refuses a boundary crossing and playback pauses in place.
	EventSectionAdvanceBlocked EventType = "section_advance_blocked"

	// EventBackgroundHandoff fires when foreground reconciliation
	// moved the position to match the live audio clock.
	EventBackgroundHandoff EventType = "background_handoff"

	// EventError carries an unrecoverable playback error.
	EventError EventType = "error"
)

// Event is a point-in-time notification with the snapshot taken at the
// moment of the change.
type Event struct {
	Type     EventType
	Snapshot Snapshot
	Err      error
}

// ListenerSet is an explicit subscription registry: listeners hold an
// id and a channel, and remove themselves by id. The engine owns the
// set and outlives individual subscriptions.
type ListenerSet struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewListenerSet creates an empty registry.
func NewListenerSet() *ListenerSet {
	return &ListenerSet{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener and returns its id and event channel.
func (l *ListenerSet) Subscribe() (int, <-chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	ch := make(chan Event, eventBufferSize)
	l.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (l *ListenerSet) Unsubscribe(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.subs[id]; ok {
		delete(l.subs, id)
		close(ch)
	}
}

// Publish delivers an event to every listener without blocking; a
// listener that falls behind misses events rather than stalling the
// playback path.
func (l *ListenerSet) Publish(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Len returns the number of active subscriptions.
func (l *ListenerSet) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
