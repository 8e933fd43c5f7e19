// Package audio provides the audio engine contract the playback state
// machine drives, plus a speaker-backed implementation for local
// playback.
package audio

import "context"

// Player is the audio engine the playback engine orchestrates. One
// audio file is loaded at a time; loading a new file replaces the
// previous one. Implementations must tolerate rate changes without
// resetting position.
type Player interface {
	// Load replaces the current audio with the given file, paused at
	// position zero. I/O-bound; honors ctx cancellation.
	Load(ctx context.Context, file string) error

	Play()
	Pause()

	// Seek moves the position within the loaded file, in seconds.
	Seek(seconds float64) error

	SetRate(rate float64) error
	SetVolume(volume float64) error

	// CurrentTime reports the position within the loaded file, in
	// seconds. The player keeps advancing while callers are suspended,
	// so this is the authoritative clock.
	CurrentTime() float64

	// OnFinished registers the callback invoked when the loaded file
	// plays to its end.
	OnFinished(fn func())

	Close() error
}
