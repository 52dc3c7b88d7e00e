package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// PlayerState represents the current state of the player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StateClosed
)

// String returns the state name.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrPlayerClosed is returned by Play after Close.
var ErrPlayerClosed = errors.New("player is closed")

// Player plays mono 16-bit segments through oto. Segments at other rates are
// resampled to the device rate. Play blocks until the segment has finished
// or the context is cancelled, so a caller draining a queue hears segments
// back to back in order.
type Player struct {
	// OTO context - initialized once and reused
	context *oto.Context

	// Current playback; data must stay referenced until oto has drained it
	player *oto.Player
	data   []byte

	state  atomic.Int32
	volume atomic.Uint64 // volume * 1e6

	sampleRate int
	pollEvery  time.Duration

	mu sync.Mutex
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int // 44100 or 48000 Hz only
	BufferSize int // Device buffer size in bytes
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 44100,
		BufferSize: 4096,
	}
}

// Validate checks the player configuration.
func (c PlayerConfig) Validate() error {
	// OTO only supports specific sample rates reliably
	if c.SampleRate != 44100 && c.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", c.SampleRate)
	}
	if c.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	return nil
}

// NewPlayer opens the audio device. oto allows one context per process, so
// callers should create a single Player and share it.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(config.BufferSize) * time.Second / time.Duration(config.SampleRate*BytesPerSample),
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	// Wait for context to be ready
	<-readyChan

	p := &Player{
		context:    ctx,
		sampleRate: config.SampleRate,
		pollEvery:  10 * time.Millisecond,
	}
	p.state.Store(int32(StateStopped))
	_ = p.SetVolume(1.0)

	return p, nil
}

// Play plays samples recorded at sampleRate and returns once playback ends.
// Cancelling ctx stops playback early and returns ctx.Err().
func (p *Player) Play(ctx context.Context, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	if p.GetState() == StateClosed {
		return ErrPlayerClosed
	}

	p.mu.Lock()
	p.stopLocked()
	p.data = SamplesToBytes(Resample(samples, sampleRate, p.sampleRate))
	player := p.context.NewPlayer(bytes.NewReader(p.data))
	player.SetVolume(p.GetVolume())
	p.player = player
	player.Play()
	p.state.Store(int32(StatePlaying))
	p.mu.Unlock()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			done := p.player != player || !player.IsPlaying()
			p.mu.Unlock()
			if done {
				p.mu.Lock()
				if p.player == player {
					p.stopLocked()
				}
				p.mu.Unlock()
				return nil
			}
		}
	}
}

// Stop halts the current segment.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if p.player != nil {
		p.player.Pause()
		_ = p.player.Close()
		p.player = nil
	}
	p.data = nil
	if p.GetState() != StateClosed {
		p.state.Store(int32(StateStopped))
	}
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.volume.Store(uint64(volume * 1e6))

	p.mu.Lock()
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

// GetVolume returns the current volume.
func (p *Player) GetVolume() float64 {
	return float64(p.volume.Load()) / 1e6
}

// GetState returns the current player state.
func (p *Player) GetState() PlayerState {
	return PlayerState(p.state.Load())
}

// SampleRate returns the device rate.
func (p *Player) SampleRate() int {
	return p.sampleRate
}

// Close stops playback. oto.Context has no Close in v3; the device is
// released when the process exits.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.state.Store(int32(StateClosed))
	return nil
}
