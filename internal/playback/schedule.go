package playback

import (
	"sync"
	"time"
)

// Schedule invokes a function at a fixed cadence until stopped. The
// playback tick and the periodic sync tick are independent schedules
// and are cancellable independently. Start and Stop are idempotent;
// Stop does not wait for an in-flight invocation, so it is safe to
// call from inside the scheduled function's own locking scope.
type Schedule struct {
	interval time.Duration
	fn       func()

	mu   sync.Mutex
	stop chan struct{}
}

// NewSchedule creates a stopped schedule.
func NewSchedule(interval time.Duration, fn func()) *Schedule {
	return &Schedule{interval: interval, fn: fn}
}

// Start begins periodic invocation. No-op if already running.
func (s *Schedule) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	go s.loop(stop)
}

// Stop cancels the schedule. No-op if not running.
func (s *Schedule) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}

// Running reports whether the schedule is active.
func (s *Schedule) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *Schedule) loop(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			s.fn()
		}
	}
}
