package engines

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/voicepipe/internal/proc"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

const (
	// GTTSSampleRate is the rate ffmpeg resamples gTTS output to
	GTTSSampleRate = 24000

	maxMP3Size = 50 * 1024 * 1024
	maxPCMSize = 20 * 1024 * 1024
)

// GTTS synthesizes speech through Google Translate's TTS endpoint using
// gtts-cli, then decodes the MP3 to PCM with ffmpeg. Requests are rate
// limited to avoid being blocked.
type GTTS struct {
	language string
	slow     bool
	speed    float64
	timeout  time.Duration

	limiter *rate.Limiter

	initOnce   sync.Once
	initErr    error
	gttsPath   string
	ffmpegPath string
}

// GTTSConfig holds configuration for the gTTS engine.
type GTTSConfig struct {
	// Language code (e.g., "en", "es", "fr"); defaults to "en"
	Language string

	// Slow speech (--slow flag)
	Slow bool

	// Speed multiplier applied with ffmpeg's atempo filter (0.5-2.0)
	Speed float64

	// RequestsPerMinute limits calls to Google (defaults to 50)
	RequestsPerMinute int

	// Timeout per pipeline step (defaults to 30s)
	Timeout time.Duration
}

// NewGTTS creates a gTTS engine. Binaries are resolved on first use.
func NewGTTS(config GTTSConfig) *GTTS {
	if config.Language == "" {
		config.Language = "en"
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 50
	}
	if config.Speed <= 0 {
		config.Speed = 1.0
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &GTTS{
		language: config.Language,
		slow:     config.Slow,
		speed:    config.Speed,
		timeout:  config.Timeout,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
	}
}

func (e *GTTS) init() error {
	e.initOnce.Do(func() {
		var err error
		if e.gttsPath, err = proc.Find("gtts-cli"); err != nil {
			e.initErr = ttypes.NewEngineError(ttypes.ErrorCodeEngineUnavailable, "gtts",
				"gtts-cli missing (install with: pip install gtts)", err)
			return
		}
		if e.ffmpegPath, err = proc.Find("ffmpeg"); err != nil {
			e.initErr = ttypes.NewEngineError(ttypes.ErrorCodeEngineUnavailable, "gtts",
				"ffmpeg missing (needed for audio conversion)", err)
			return
		}
		log.Debug("gtts ready", "gtts-cli", e.gttsPath, "ffmpeg", e.ffmpegPath, "language", e.language)
	})
	return e.initErr
}

// Synthesize converts text to mono 16-bit samples at GTTSSampleRate.
// Process: text → gtts-cli → MP3 → ffmpeg → PCM
func (e *GTTS) Synthesize(ctx context.Context, text string) ([]int16, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ttypes.ErrEmptyInput
	}
	if len(text) > MaxTextSize {
		return nil, ttypes.NewEngineError(ttypes.ErrorCodeTextTooLong, "gtts",
			fmt.Sprintf("%d characters (max %d)", len(text), MaxTextSize), ttypes.ErrTextTooLong)
	}
	if err := e.init(); err != nil {
		return nil, err
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, ttypes.NewEngineError(ttypes.ErrorCodeRateLimited, "gtts", "rate limit wait cancelled", err)
	}

	mp3, err := proc.RequireOutput(ctx, proc.Command{
		Path:      e.gttsPath,
		Args:      e.gttsArgs(),
		Stdin:     strings.NewReader(text),
		Timeout:   e.timeout,
		MaxOutput: maxMP3Size,
	})
	if err != nil {
		return nil, classify("gtts", err)
	}

	pcm, err := proc.RequireOutput(ctx, proc.Command{
		Path:      e.ffmpegPath,
		Args:      e.ffmpegArgs(),
		Stdin:     bytes.NewReader(mp3.Stdout),
		Timeout:   e.timeout,
		MaxOutput: maxPCMSize,
	})
	if err != nil {
		return nil, classify("gtts", err)
	}

	return decodeRaw(pcm.Stdout)
}

// gttsArgs reads the text from stdin ("-") and writes MP3 to stdout.
func (e *GTTS) gttsArgs() []string {
	args := []string{"-", "-l", e.language}
	if e.slow {
		args = append(args, "--slow")
	}
	return append(args, "-o", "-")
}

func (e *GTTS) ffmpegArgs() []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", fmt.Sprint(GTTSSampleRate),
		"-ac", "1",
	}
	if e.speed != 1.0 {
		// atempo supports 0.5 to 2.0
		speed := min(max(e.speed, 0.5), 2.0)
		args = append(args, "-filter:a", fmt.Sprintf("atempo=%.2f", speed))
	}
	return append(args, "pipe:1")
}

// GetInfo returns engine capabilities.
func (e *GTTS) GetInfo() ttypes.EngineInfo {
	voice := e.language
	if e.slow {
		voice += "-slow"
	}
	return ttypes.EngineInfo{
		Name:       string(ttypes.EngineGTTS),
		SampleRate: GTTSSampleRate,
		Channels:   1,
		Language:   e.language,
		Voice:      voice,
		Speed:      e.speed,
		IsOnline:   true,
	}
}

// Validate checks that gtts-cli and ffmpeg are installed.
func (e *GTTS) Validate() error {
	return e.init()
}

var _ ttypes.Synthesizer = (*GTTS)(nil)
