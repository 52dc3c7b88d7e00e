// Package tts selects, validates and constructs speech synthesis engines.
package tts

import (
	"fmt"

	"github.com/dgnsrekt/voicepipe/internal/config"
	"github.com/dgnsrekt/voicepipe/internal/tts/engines"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// New builds the synthesizer named by engine (or cfg.Engine when empty).
// Engines initialize lazily, so a missing binary surfaces on first use;
// call ValidateEngine first to fail early with guidance.
func New(engine string, cfg config.TTSConfig) (ttypes.Synthesizer, error) {
	kind, err := SelectEngine(engine, cfg.Engine)
	if err != nil {
		return nil, err
	}

	switch kind {
	case ttypes.EnginePiper:
		return engines.NewPiper(engines.PiperConfig{
			Binary:     cfg.Piper.Binary,
			ModelPath:  cfg.Piper.Model,
			ConfigPath: cfg.Piper.ConfigPath,
			Speed:      cfg.Piper.Speed,
			Timeout:    cfg.Piper.Timeout,
		})
	case ttypes.EngineGTTS:
		return engines.NewGTTS(engines.GTTSConfig{
			Language:          cfg.GTTS.Language,
			Slow:              cfg.GTTS.Slow,
			RequestsPerMinute: cfg.GTTS.RequestsPerMinute,
			Timeout:           cfg.GTTS.Timeout,
		}), nil
	case ttypes.EngineMock:
		return engines.NewMock(engines.MockConfig{
			SampleRate:     cfg.Mock.SampleRate,
			WordsPerMinute: cfg.Mock.WordsPerMinute,
			ToneHz:         cfg.Mock.ToneHz,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ttypes.ErrInvalidEngine, kind)
	}
}
