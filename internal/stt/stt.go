// Package stt selects and constructs speech recognition engines.
package stt

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/voicepipe/internal/config"
	"github.com/dgnsrekt/voicepipe/internal/stt/engines"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// SelectEngine resolves the transcription engine. The CLI argument takes
// precedence over the configured engine.
func SelectEngine(cliArg, configured string) (ttypes.EngineType, error) {
	name := strings.TrimSpace(cliArg)
	if name == "" {
		name = strings.TrimSpace(configured)
	}

	switch name {
	case "":
		return ttypes.EngineNone, fmt.Errorf("%w\n\nPlease specify an engine:\n  voicepipe transcribe --stt whisper recording.wav   # whisper.cpp (offline)\n  voicepipe transcribe --stt google recording.wav    # Google Cloud Speech (online)\n\nOr set a default in your config file:\n  stt:\n    engine: whisper", ttypes.ErrNoEngineConfigured)
	case "whisper", "whisper.cpp":
		return ttypes.EngineWhisper, nil
	case "google", "google-speech":
		return ttypes.EngineGoogleSpeech, nil
	default:
		return ttypes.EngineNone, fmt.Errorf("%w: %s\n\nSupported engines:\n  - whisper (offline, whisper.cpp)\n  - google (Google Cloud Speech)", ttypes.ErrInvalidEngine, name)
	}
}

// New builds the transcriber named by engine (or cfg.Engine when empty).
func New(engine string, cfg config.STTConfig) (ttypes.Transcriber, error) {
	kind, err := SelectEngine(engine, cfg.Engine)
	if err != nil {
		return nil, err
	}

	switch kind {
	case ttypes.EngineWhisper:
		w, err := engines.NewWhisper(engines.WhisperConfig{
			Binary:    cfg.Binary,
			ModelPath: cfg.Model,
			Language:  cfg.Language,
			Threads:   cfg.Threads,
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%w\n\n%s", err, whisperModelGuidance)
		}
		return w, nil
	case ttypes.EngineGoogleSpeech:
		return engines.NewGoogleSpeech(engines.GoogleSpeechConfig{
			Language:        cfg.Language,
			CredentialsFile: cfg.CredentialsFile,
			Timeout:         cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ttypes.ErrInvalidEngine, kind)
	}
}

const whisperModelGuidance = `Whisper model path not configured. To configure:

1. Build whisper.cpp (https://github.com/ggml-org/whisper.cpp) so whisper-cli is on PATH
2. Download a model:

   sh ./models/download-ggml-model.sh base.en

3. Point the config at it:
   stt:
     engine: whisper
     model: ~/.local/share/whisper/ggml-base.en.bin`
