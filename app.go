package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/dgnsrekt/voicepipe/internal/cache"
	"github.com/dgnsrekt/voicepipe/internal/config"
	"github.com/dgnsrekt/voicepipe/internal/llm"
	"github.com/dgnsrekt/voicepipe/internal/stt"
	"github.com/dgnsrekt/voicepipe/internal/tts"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
	"github.com/dgnsrekt/voicepipe/internal/worker"
)

const megabyte = 1 << 20

// app holds the infrastructure shared by every command: the worker pool the
// streams offload engine calls to and the segment cache.
type app struct {
	cfg   *config.Config
	pool  *worker.Pool
	cache *cache.Manager // nil when caching is disabled
}

func newApp(cfg *config.Config) *app {
	a := &app{
		cfg:  cfg,
		pool: worker.New(cfg.Workers.Count, cfg.Workers.QueueSize),
	}

	if cfg.Cache.Enabled {
		c, err := openCache(cfg.Cache)
		if err != nil {
			// Synthesis works without a cache, just slower on repeats
			log.Warn("Segment cache disabled", "err", err)
		}
		a.cache = c
	}
	return a
}

func (a *app) Close() {
	a.pool.Close()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Warn("Could not persist segment cache", "err", err)
		}
	}
}

// synthesizer resolves and validates the synthesis engine, failing with
// setup guidance when it is not installed.
func (a *app) synthesizer() (ttypes.Synthesizer, error) {
	kind, err := tts.SelectEngine("", a.cfg.TTS.Engine)
	if err != nil {
		return nil, err
	}
	result := tts.ValidateEngine(kind, a.cfg.TTS)
	if !result.Available {
		return nil, fmt.Errorf("%w\n\n%s", result.Error, result.Guidance)
	}
	log.Debug("Synthesis engine ready", "engine", kind, "details", result.Details)
	return tts.New(string(kind), a.cfg.TTS)
}

func (a *app) transcriber() (ttypes.Transcriber, error) {
	return stt.New("", a.cfg.STT)
}

func (a *app) generator() (ttypes.Generator, error) {
	c := a.cfg.LLM
	if c.BaseURL == "" && c.APIKey == "" {
		return nil, errors.New("no language model configured: set OPENAI_API_KEY, or llm.base_url for a local OpenAI-compatible server")
	}
	return llm.NewOpenAI(llm.Config{
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		TopP:        c.TopP,
		Timeout:     c.Timeout,
	}), nil
}

func cacheDir(cfg config.CacheConfig) (string, error) {
	if cfg.Dir != "" {
		return cfg.Dir, nil
	}
	dir, err := gap.NewScope(gap.User, "voicepipe").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "segments"), nil
}

func openCache(cfg config.CacheConfig) (*cache.Manager, error) {
	cc, err := cacheConfig(cfg)
	if err != nil {
		return nil, err
	}
	cc.CleanupInterval = cleanupInterval(cfg.TTL)
	return cache.NewManager(cc)
}

func cacheConfig(cfg config.CacheConfig) (cache.Config, error) {
	dir, err := cacheDir(cfg)
	if err != nil {
		return cache.Config{}, fmt.Errorf("could not find cache directory: %w", err)
	}
	return cache.Config{
		MemoryCapacity:   int64(cfg.MemoryMB) * megabyte,
		DiskCapacity:     int64(cfg.DiskMB) * megabyte,
		DiskPath:         dir,
		CompressionLevel: cfg.CompressionLevel,
		TTL:              cfg.TTL,
	}, nil
}

// cleanupInterval sweeps expired segments a few times per TTL, at most once
// a minute.
func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return max(ttl/4, time.Minute)
}
