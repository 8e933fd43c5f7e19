package audio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
)

const resampleQuality = 4

// Ensure SpeakerPlayer implements Player at compile time.
var _ Player = (*SpeakerPlayer)(nil)

// SpeakerPlayer plays audio files through the system speaker. Loading
// a file builds the chain streamer -> ctrl -> resampler -> volume, so
// rate changes only touch the resampler ratio and never reset the
// stream position.
type SpeakerPlayer struct {
	mu sync.Mutex

	streamer   beep.StreamSeekCloser
	format     beep.Format
	ctrl       *beep.Ctrl
	resampler  *beep.Resampler
	volume     *effects.Volume
	onFinished func()

	rate float64
	vol  float64
}

// NewSpeakerPlayer creates a player with unit rate and half volume.
func NewSpeakerPlayer() *SpeakerPlayer {
	return &SpeakerPlayer{rate: 1.0, vol: 0.5}
}

// Load replaces the current audio with the given file, paused at
// position zero.
func (p *SpeakerPlayer) Load(ctx context.Context, file string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsSupported(file) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, file)
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}

	streamer, format, err := Decode(f, file)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode audio file: %w", err)
	}

	if err := ctx.Err(); err != nil {
		streamer.Close()
		return err
	}

	p.stop()

	p.mu.Lock()
	p.streamer = streamer
	p.format = format
	p.ctrl = &beep.Ctrl{Streamer: streamer, Paused: true}
	p.resampler = beep.ResampleRatio(resampleQuality, p.rate, p.ctrl)
	p.volume = &effects.Volume{
		Streamer: p.resampler,
		Base:     2,
		Volume:   p.vol*2 - 1,
		Silent:   p.vol == 0,
	}
	chain := beep.Seq(p.volume, beep.Callback(p.fireFinished))
	p.mu.Unlock()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	speaker.Play(chain)

	return nil
}

func (p *SpeakerPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = false
	speaker.Unlock()
}

func (p *SpeakerPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = true
	speaker.Unlock()
}

// Seek moves the position within the loaded file.
func (p *SpeakerPlayer) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return ErrNoAudioLoaded
	}

	speaker.Lock()
	err := p.streamer.Seek(p.format.SampleRate.N(secondsToDuration(seconds)))
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("seek failed: %w", err)
	}
	return nil
}

// SetRate changes the playback speed without resetting position.
func (p *SpeakerPlayer) SetRate(rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	if p.resampler != nil {
		speaker.Lock()
		p.resampler.SetRatio(rate)
		speaker.Unlock()
	}
	return nil
}

func (p *SpeakerPlayer) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return ErrInvalidVolume
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.vol = volume
	if p.volume != nil {
		speaker.Lock()
		p.volume.Volume = volume*2 - 1
		p.volume.Silent = volume == 0
		speaker.Unlock()
	}
	return nil
}

// CurrentTime reports the position within the loaded file, in seconds.
func (p *SpeakerPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamer == nil {
		return 0
	}

	speaker.Lock()
	pos := p.streamer.Position()
	speaker.Unlock()
	return p.format.SampleRate.D(pos).Seconds()
}

// OnFinished registers the callback invoked when the loaded file plays
// to its end.
func (p *SpeakerPlayer) OnFinished(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFinished = fn
}

func (p *SpeakerPlayer) Close() error {
	p.stop()
	return nil
}

func (p *SpeakerPlayer) fireFinished() {
	p.mu.Lock()
	fn := p.onFinished
	p.mu.Unlock()
	if fn != nil {
		// The speaker invokes the callback from its mixing goroutine;
		// hand off so the handler can call back into the player.
		go fn()
	}
}

func (p *SpeakerPlayer) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.streamer == nil {
		return
	}
	speaker.Clear()
	p.streamer.Close()
	p.streamer = nil
	p.ctrl = nil
	p.resampler = nil
	p.volume = nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
