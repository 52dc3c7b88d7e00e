// Package config loads voicepipe settings from a YAML file, a .env file and
// the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level" env:"LOG_LEVEL"`

	Audio   AudioConfig   `yaml:"audio" mapstructure:"audio"`
	STT     STTConfig     `yaml:"stt" mapstructure:"stt"`
	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm"`
	TTS     TTSConfig     `yaml:"tts" mapstructure:"tts"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Workers WorkersConfig `yaml:"workers" mapstructure:"workers"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
}

// AudioConfig controls capture buffering and playback.
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate" mapstructure:"sample_rate" env:"AUDIO_SAMPLE_RATE"`
	MinChunkSeconds float64 `yaml:"min_chunk_seconds" mapstructure:"min_chunk_seconds" env:"AUDIO_MIN_CHUNK_SECONDS"`
	PlaybackRate    int     `yaml:"playback_rate" mapstructure:"playback_rate"`
	Volume          float64 `yaml:"volume" mapstructure:"volume"`
	QueueSize       int     `yaml:"queue_size" mapstructure:"queue_size"`
}

// STTConfig selects and configures the transcription engine.
type STTConfig struct {
	Engine   string        `yaml:"engine" mapstructure:"engine" env:"STT_ENGINE"`
	Model    string        `yaml:"model" mapstructure:"model" env:"STT_MODEL"`
	Language string        `yaml:"language" mapstructure:"language" env:"STT_LANGUAGE"`
	Binary   string        `yaml:"binary" mapstructure:"binary"`
	Threads  int           `yaml:"threads" mapstructure:"threads"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Google Cloud Speech; empty uses application default credentials
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// LLMConfig configures the OpenAI-compatible chat backend.
type LLMConfig struct {
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url" env:"LLM_BASE_URL"`
	APIKey       string        `yaml:"api_key" mapstructure:"api_key" env:"OPENAI_API_KEY"`
	Model        string        `yaml:"model" mapstructure:"model" env:"LLM_MODEL"`
	MaxTokens    int           `yaml:"max_tokens" mapstructure:"max_tokens" env:"LLM_MAX_TOKENS"`
	Temperature  float32       `yaml:"temperature" mapstructure:"temperature" env:"LLM_TEMPERATURE"`
	TopP         float32       `yaml:"top_p" mapstructure:"top_p" env:"LLM_TOP_P"`
	SystemPrompt string        `yaml:"system_prompt" mapstructure:"system_prompt" env:"SYSTEM_PROMPT"`
	Greeting     string        `yaml:"greeting" mapstructure:"greeting" env:"AGENT_GREETING"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// TTSConfig selects and configures the synthesis engine.
type TTSConfig struct {
	Engine string      `yaml:"engine" mapstructure:"engine" env:"TTS_ENGINE"`
	Piper  PiperConfig `yaml:"piper" mapstructure:"piper"`
	GTTS   GTTSConfig  `yaml:"gtts" mapstructure:"gtts"`
	Mock   MockConfig  `yaml:"mock" mapstructure:"mock"`
}

// PiperConfig configures the piper subprocess engine.
type PiperConfig struct {
	Binary     string        `yaml:"binary" mapstructure:"binary"`
	Model      string        `yaml:"model" mapstructure:"model" env:"TTS_MODEL"`
	ConfigPath string        `yaml:"config_path" mapstructure:"config_path"`
	Speed      float64       `yaml:"speed" mapstructure:"speed" env:"TTS_SPEED"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// GTTSConfig configures the Google Translate TTS engine.
type GTTSConfig struct {
	Language          string        `yaml:"language" mapstructure:"language"`
	Slow              bool          `yaml:"slow" mapstructure:"slow"`
	RequestsPerMinute int           `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// MockConfig configures the offline tone generator.
type MockConfig struct {
	SampleRate     int     `yaml:"sample_rate" mapstructure:"sample_rate"`
	WordsPerMinute int     `yaml:"words_per_minute" mapstructure:"words_per_minute"`
	ToneHz         float64 `yaml:"tone_hz" mapstructure:"tone_hz"`
}

// CacheConfig configures the synthesized segment cache.
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir              string        `yaml:"dir" mapstructure:"dir" env:"VOICEPIPE_CACHE_DIR"`
	MemoryMB         int           `yaml:"memory_mb" mapstructure:"memory_mb"`
	DiskMB           int           `yaml:"disk_mb" mapstructure:"disk_mb"`
	CompressionLevel int           `yaml:"compression_level" mapstructure:"compression_level"`
	TTL              time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// WorkersConfig sizes the shared inference worker pool.
type WorkersConfig struct {
	Count     int `yaml:"count" mapstructure:"count" env:"VOICEPIPE_WORKERS"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// ServerConfig configures the websocket server.
type ServerConfig struct {
	Addr              string  `yaml:"addr" mapstructure:"addr" env:"VOICEPIPE_ADDR"`
	MessagesPerSecond float64 `yaml:"messages_per_second" mapstructure:"messages_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	MaxMessageBytes   int64   `yaml:"max_message_bytes" mapstructure:"max_message_bytes"`

	RedisAddr   string `yaml:"redis_addr" mapstructure:"redis_addr" env:"REDIS_ADDR"`
	RedisStream string `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate:      16000,
			MinChunkSeconds: 3.0,
			PlaybackRate:    48000,
			Volume:          1.0,
			QueueSize:       8,
		},
		STT: STTConfig{
			Engine:   string(ttypes.EngineWhisper),
			Model:    "~/.local/share/whisper/ggml-base.en.bin",
			Language: "en",
			Binary:   "whisper-cli",
			Threads:  4,
			Timeout:  60 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:      "http://localhost:8080/v1",
			Model:        "local",
			MaxTokens:    512,
			Temperature:  0.7,
			TopP:         0.9,
			SystemPrompt: "You are a helpful voice assistant. Keep answers short and conversational.",
			Greeting:     "Hello! How can I help you today?",
			Timeout:      2 * time.Minute,
		},
		TTS: TTSConfig{
			Engine: string(ttypes.EnginePiper),
			Piper: PiperConfig{
				Binary:  "piper",
				Speed:   1.0,
				Timeout: 10 * time.Second,
			},
			GTTS: GTTSConfig{
				Language:          "en",
				RequestsPerMinute: 100,
				Timeout:           15 * time.Second,
			},
			Mock: MockConfig{
				SampleRate:     22050,
				WordsPerMinute: 150,
				ToneHz:         440,
			},
		},
		Cache: CacheConfig{
			Enabled:          true,
			MemoryMB:         64,
			DiskMB:           512,
			CompressionLevel: 3,
			TTL:              7 * 24 * time.Hour,
		},
		Workers: WorkersConfig{
			Count:     2,
			QueueSize: 16,
		},
		Server: ServerConfig{
			Addr:              "127.0.0.1:8765",
			MessagesPerSecond: 100,
			Burst:             200,
			MaxMessageBytes:   1 << 20,
			RedisStream:       "voicepipe:transcripts",
		},
	}
}

// Load reads the YAML file at path (if any) and applies the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode builds a Config from the defaults, everything v knows about (config
// file and bound flags) and finally the environment.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := ApplyEnv(&cfg, ".env"); err != nil {
		return nil, err
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv loads dotenv files that exist (without overriding variables that
// are already set) and then copies any set variables onto cfg.
func ApplyEnv(cfg *Config, dotenvFiles ...string) error {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unable to load %s: %w", f, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	return nil
}

// Validate range-checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Audio.SampleRate > 0, "audio sample_rate must be positive, got %d", c.Audio.SampleRate)
	check(c.Audio.MinChunkSeconds > 0, "audio min_chunk_seconds must be positive, got %g", c.Audio.MinChunkSeconds)
	check(c.Audio.PlaybackRate == 44100 || c.Audio.PlaybackRate == 48000,
		"audio playback_rate must be 44100 or 48000, got %d", c.Audio.PlaybackRate)
	check(c.Audio.Volume >= 0 && c.Audio.Volume <= 2, "audio volume must be between 0.0 and 2.0, got %.2f", c.Audio.Volume)

	check(isOneOf(c.STT.Engine, ttypes.EngineWhisper, ttypes.EngineGoogleSpeech),
		"unknown stt engine %q (use whisper or google)", c.STT.Engine)
	check(isOneOf(c.TTS.Engine, ttypes.EnginePiper, ttypes.EngineGTTS, ttypes.EngineMock),
		"unknown tts engine %q (use piper, gtts or mock)", c.TTS.Engine)

	check(c.LLM.MaxTokens > 0, "llm max_tokens must be positive, got %d", c.LLM.MaxTokens)
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm temperature must be between 0.0 and 2.0, got %.2f", c.LLM.Temperature)
	check(c.LLM.TopP > 0 && c.LLM.TopP <= 1, "llm top_p must be in (0, 1], got %.2f", c.LLM.TopP)

	check(c.TTS.Piper.Speed >= 0.1 && c.TTS.Piper.Speed <= 3.0, "piper speed must be between 0.1 and 3.0, got %.2f", c.TTS.Piper.Speed)
	check(len(c.TTS.GTTS.Language) >= 2 && len(c.TTS.GTTS.Language) <= 5,
		"gtts language code must be 2-5 characters, got %q", c.TTS.GTTS.Language)

	check(c.Cache.MemoryMB >= 1 && c.Cache.MemoryMB <= 10000, "cache memory_mb must be between 1 and 10000, got %d", c.Cache.MemoryMB)
	check(c.Cache.CompressionLevel >= 0 && c.Cache.CompressionLevel <= 22, "cache compression_level must be between 0 and 22, got %d", c.Cache.CompressionLevel)

	check(c.Workers.Count >= 1, "workers count must be at least 1, got %d", c.Workers.Count)
	check(c.Server.MessagesPerSecond > 0, "server messages_per_second must be positive")

	return errors.Join(errs...)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.STT.Model,
		&c.STT.CredentialsFile,
		&c.TTS.Piper.Model,
		&c.TTS.Piper.ConfigPath,
		&c.Cache.Dir,
	} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("unable to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

func isOneOf(engine string, types ...ttypes.EngineType) bool {
	for _, t := range types {
		if engine == string(t) {
			return true
		}
	}
	return false
}

// WriteDefault writes the default configuration to path unless it exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to stat config file: %w", err)
	}

	cfg := Default()
	b, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("unable to encode default config: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}
