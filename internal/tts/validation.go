package tts

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgnsrekt/voicepipe/internal/config"
	"github.com/dgnsrekt/voicepipe/internal/proc"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// ValidationResult contains the result of engine validation
type ValidationResult struct {
	// Engine is the validated engine type
	Engine ttypes.EngineType

	// Available indicates if the engine is available and configured
	Available bool

	// Error contains any validation error
	Error error

	// Guidance provides setup instructions if validation failed
	Guidance string

	// Details contains additional validation information
	Details map[string]string
}

// SelectEngine resolves the synthesis engine. The CLI argument takes
// precedence over the configured engine; there is no silent fallback.
func SelectEngine(cliArg, configured string) (ttypes.EngineType, error) {
	name := strings.TrimSpace(cliArg)
	if name == "" {
		name = strings.TrimSpace(configured)
	}

	switch name {
	case "":
		return ttypes.EngineNone, fmt.Errorf("%w\n\nPlease specify an engine:\n  voicepipe speak --tts piper \"Hello.\"   # Piper (offline)\n  voicepipe speak --tts gtts \"Hello.\"    # Google Translate TTS (online)\n  voicepipe speak --tts mock \"Hello.\"    # Tone generator (no setup)\n\nOr set a default in your config file:\n  tts:\n    engine: piper", ttypes.ErrNoEngineConfigured)
	case "piper":
		return ttypes.EnginePiper, nil
	case "gtts", "google-translate":
		return ttypes.EngineGTTS, nil
	case "mock", "tone":
		return ttypes.EngineMock, nil
	default:
		return ttypes.EngineNone, fmt.Errorf("%w: %s\n\nSupported engines:\n  - piper (offline TTS)\n  - gtts (Google Translate TTS)\n  - mock (tone generator)", ttypes.ErrInvalidEngine, name)
	}
}

// ValidateEngine checks that the selected engine's binaries and model are
// present. It does not run a test synthesis.
func ValidateEngine(engine ttypes.EngineType, cfg config.TTSConfig) *ValidationResult {
	result := &ValidationResult{
		Engine:  engine,
		Details: make(map[string]string),
	}

	switch engine {
	case ttypes.EnginePiper:
		validatePiper(cfg.Piper, result)
	case ttypes.EngineGTTS:
		validateGTTS(cfg.GTTS, result)
	case ttypes.EngineMock:
		result.Available = true
		result.Details["engine"] = "Mock (tone generator)"
	case ttypes.EngineNone:
		result.Error = ttypes.ErrNoEngineConfigured
		result.Guidance = "Please specify a TTS engine with --tts or in the config file"
	default:
		result.Error = fmt.Errorf("%w: %s", ttypes.ErrInvalidEngine, engine)
		result.Guidance = "Supported engines: piper, gtts, mock"
	}
	return result
}

func validatePiper(cfg config.PiperConfig, result *ValidationResult) {
	result.Details["engine"] = "Piper (Offline TTS)"

	binary := cfg.Binary
	if binary == "" {
		binary = "piper"
	}
	path, err := proc.Find(binary)
	if err != nil {
		result.Error = err
		result.Guidance = piperInstallGuidance
		return
	}
	result.Details["binary_path"] = path

	if cfg.Model == "" {
		result.Error = fmt.Errorf("piper model path not configured")
		result.Guidance = piperModelGuidance
		return
	}
	if _, err := os.Stat(cfg.Model); err != nil {
		result.Error = fmt.Errorf("model file not accessible: %w", err)
		result.Guidance = piperModelGuidance
		return
	}
	result.Details["model_path"] = cfg.Model

	result.Available = true
	result.Details["status"] = "Ready"
}

func validateGTTS(cfg config.GTTSConfig, result *ValidationResult) {
	result.Details["engine"] = "gTTS (Google Translate TTS)"

	gttsPath, err := proc.Find("gtts-cli")
	if err != nil {
		result.Error = err
		result.Guidance = gttsInstallGuidance
		return
	}
	result.Details["gtts_path"] = gttsPath

	ffmpegPath, err := proc.Find("ffmpeg")
	if err != nil {
		result.Error = err
		result.Guidance = ffmpegInstallGuidance
		return
	}
	result.Details["ffmpeg_path"] = ffmpegPath

	language := cfg.Language
	if language == "" {
		language = "en"
	}
	result.Details["language"] = language

	result.Available = true
	result.Details["status"] = "Ready (requires network access)"
}

const piperInstallGuidance = `Piper TTS is not installed. To install:

1. Download the Piper binary from: https://github.com/rhasspy/piper/releases
2. Extract it and add it to PATH, for example:

   wget https://github.com/rhasspy/piper/releases/latest/download/piper_linux_x86_64.tar.gz
   tar -xzf piper_linux_x86_64.tar.gz
   sudo cp piper/piper /usr/local/bin/

3. Download a voice model (see below) and set tts.piper.model in your config`

const piperModelGuidance = `Piper model path not configured. To configure:

1. Download a voice model from: https://github.com/rhasspy/piper/blob/master/VOICES.md

   mkdir -p ~/.local/share/piper/models
   cd ~/.local/share/piper/models
   wget https://huggingface.co/rhasspy/piper-voices/resolve/v1.0.0/en/en_US/amy/medium/en_US-amy-medium.onnx
   wget https://huggingface.co/rhasspy/piper-voices/resolve/v1.0.0/en/en_US/amy/medium/en_US-amy-medium.onnx.json

2. Point the config at it:
   tts:
     engine: piper
     piper:
       model: ~/.local/share/piper/models/en_US-amy-medium.onnx`

const gttsInstallGuidance = `gTTS (Google Text-to-Speech) is not installed. To install:

   pipx install gtts    # or: pip install gtts

No API key is required, but gTTS needs an internet connection.`

const ffmpegInstallGuidance = `ffmpeg is required to decode gTTS audio. To install:

# Ubuntu/Debian
sudo apt update && sudo apt install ffmpeg

# macOS (Homebrew)
brew install ffmpeg

# Or download from: https://ffmpeg.org/download.html`
