package audio

import "errors"

// ErrNoAudioLoaded indicates an operation that requires a loaded file.
var ErrNoAudioLoaded = errors.New("no audio loaded")

// ErrUnsupportedFormat indicates an audio file extension with no decoder.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrInvalidVolume indicates a volume outside the 0.0-1.0 range.
var ErrInvalidVolume = errors.New("volume must be between 0.0 and 1.0")

// ErrInvalidRate indicates a non-positive playback rate.
var ErrInvalidRate = errors.New("playback rate must be positive")
