package engines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/proc"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

const (
	// MaxTextSize bounds a single synthesis request
	MaxTextSize = 5000

	piperDefaultRate = 22050
	maxPiperOutput   = 10 * 1024 * 1024
)

// Piper synthesizes speech with the offline piper binary. Each call runs a
// fresh process with the text wired to stdin before start.
type Piper struct {
	binary     string
	modelPath  string
	configPath string
	speaker    int
	speed      float64
	timeout    time.Duration

	// Resolved on first use
	initOnce   sync.Once
	initErr    error
	binPath    string
	sampleRate int
}

// PiperConfig holds configuration for the Piper engine.
type PiperConfig struct {
	// Binary name or path (defaults to "piper")
	Binary string

	// Model file path (required)
	ModelPath string

	// Config file path (defaults to the model path plus .json)
	ConfigPath string

	// Speaker id for multi-speaker models; 0 uses the model default
	Speaker int

	// Speed multiplier; piper receives length_scale = 1/speed
	Speed float64

	// Timeout per synthesis call (defaults to 10s)
	Timeout time.Duration
}

// NewPiper creates a Piper engine. No files or binaries are touched until
// the first Synthesize call.
func NewPiper(config PiperConfig) (*Piper, error) {
	if config.ModelPath == "" {
		return nil, ttypes.NewEngineError(ttypes.ErrorCodeInvalidInput, "piper", "model path is required", nil)
	}
	if config.Binary == "" {
		config.Binary = "piper"
	}
	if config.Speed <= 0 {
		config.Speed = 1.0
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &Piper{
		binary:     config.Binary,
		modelPath:  config.ModelPath,
		configPath: config.ConfigPath,
		speaker:    config.Speaker,
		speed:      config.Speed,
		timeout:    config.Timeout,
	}, nil
}

// init resolves the binary, model and voice config once per engine.
func (e *Piper) init() error {
	e.initOnce.Do(func() {
		e.binPath, e.initErr = proc.Find(e.binary)
		if e.initErr != nil {
			e.initErr = ttypes.NewEngineError(ttypes.ErrorCodeEngineUnavailable, "piper", "binary not found", e.initErr)
			return
		}

		if _, err := os.Stat(e.modelPath); err != nil {
			e.initErr = ttypes.NewEngineError(ttypes.ErrorCodeEngineUnavailable, "piper", "model file not accessible", err).
				WithContext("model", e.modelPath)
			return
		}

		if e.configPath == "" {
			e.configPath = findVoiceConfig(e.modelPath)
		}
		e.sampleRate = piperDefaultRate
		if e.configPath != "" {
			rate, err := readVoiceSampleRate(e.configPath)
			if err != nil {
				log.Warn("could not read piper voice config", "path", e.configPath, "error", err)
			} else if rate > 0 {
				e.sampleRate = rate
			}
		}
		log.Debug("piper ready", "binary", e.binPath, "model", e.modelPath, "sample_rate", e.sampleRate)
	})
	return e.initErr
}

// Synthesize converts text to mono 16-bit samples.
func (e *Piper) Synthesize(ctx context.Context, text string) ([]int16, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ttypes.ErrEmptyInput
	}
	if len(text) > MaxTextSize {
		return nil, ttypes.NewEngineError(ttypes.ErrorCodeTextTooLong, "piper",
			fmt.Sprintf("%d characters (max %d)", len(text), MaxTextSize), ttypes.ErrTextTooLong)
	}
	if err := e.init(); err != nil {
		return nil, err
	}

	res, err := proc.RequireOutput(ctx, proc.Command{
		Path:      e.binPath,
		Args:      e.args(),
		Stdin:     strings.NewReader(text),
		Timeout:   e.timeout,
		MaxOutput: maxPiperOutput,
	})
	if err != nil {
		return nil, classify("piper", err)
	}

	return decodeRaw(res.Stdout)
}

func (e *Piper) args() []string {
	args := []string{
		"--model", e.modelPath,
		"--output-raw",
		"--length-scale", fmt.Sprintf("%.2f", 1.0/e.speed),
	}
	if e.configPath != "" {
		args = append(args, "--config", e.configPath)
	}
	if e.speaker > 0 {
		args = append(args, "--speaker", strconv.Itoa(e.speaker))
	}
	return args
}

// GetInfo returns engine capabilities. The sample rate is only known after
// the first call; before that the piper default is reported.
func (e *Piper) GetInfo() ttypes.EngineInfo {
	rate := piperDefaultRate
	if e.init() == nil {
		rate = e.sampleRate
	}
	voice := strings.TrimSuffix(filepath.Base(e.modelPath), filepath.Ext(e.modelPath))
	if e.speaker > 0 {
		voice += "#" + strconv.Itoa(e.speaker)
	}
	return ttypes.EngineInfo{
		Name:       string(ttypes.EnginePiper),
		SampleRate: rate,
		Channels:   1,
		Voice:      voice,
		Speed:      e.speed,
		IsOnline:   false,
	}
}

// Validate checks the engine can be initialized.
func (e *Piper) Validate() error {
	return e.init()
}

func findVoiceConfig(modelPath string) string {
	candidates := []string{
		modelPath + ".json",
		strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func readVoiceSampleRate(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var voice struct {
		Audio struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if err := json.Unmarshal(b, &voice); err != nil {
		return 0, err
	}
	return voice.Audio.SampleRate, nil
}

// decodeRaw converts s16le output to samples, dropping a trailing odd byte.
func decodeRaw(raw []byte) ([]int16, error) {
	raw = raw[:len(raw)-len(raw)%audio.BytesPerSample]
	return audio.BytesToSamples(raw)
}

// classify maps subprocess failures onto engine error codes.
func classify(engine string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ttypes.NewEngineError(ttypes.ErrorCodeEngineTimeout, engine, "synthesis timed out", err)
	case errors.Is(err, context.Canceled):
		return ttypes.NewEngineError(ttypes.ErrorCodeCanceled, engine, "synthesis canceled", err)
	default:
		return ttypes.NewEngineError(ttypes.ErrorCodeEngineFailure, engine, "synthesis failed", err)
	}
}

var _ ttypes.Synthesizer = (*Piper)(nil)
