// Package server exposes the pipeline over websockets:
//
//	/ws/stt    binary s16le PCM in, transcript events out
//	/ws/tts    {"text": ...} in, a segment event plus a binary PCM frame per sentence out
//	/ws/agent  binary PCM in, transcripts, replies and audio out
//	/metrics   Prometheus metrics
//	/healthz   process and pipeline health as JSON
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/voicepipe/internal/cache"
	"github.com/dgnsrekt/voicepipe/internal/metrics"
	"github.com/dgnsrekt/voicepipe/internal/pipeline"
	"github.com/dgnsrekt/voicepipe/internal/sink"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
	"github.com/dgnsrekt/voicepipe/internal/worker"
)

// Config holds the settings that may change while the server runs. New
// connections pick up the latest values.
type Config struct {
	Addr string

	// Capture format of /ws/stt and /ws/agent input
	SampleRate      int
	MinChunkSeconds float64

	// Per-connection message rate limit
	MessagesPerSecond float64
	Burst             int
	MaxMessageBytes   int64

	Agent pipeline.AgentConfig
}

// Dependencies are the engines and shared infrastructure. A nil engine
// disables the endpoints that need it.
type Dependencies struct {
	Transcriber ttypes.Transcriber
	Synthesizer ttypes.Synthesizer
	Generator   ttypes.Generator

	Pool    *worker.Pool
	Cache   *cache.Manager
	Metrics *metrics.Metrics
	Sink    sink.Sink
}

// Server serves the websocket endpoints.
type Server struct {
	deps      Dependencies
	logger    *log.Logger
	upgrader  websocket.Upgrader
	startTime time.Time

	mu     sync.RWMutex
	config Config
}

// New creates a server. deps.Pool is required.
func New(config Config, deps Dependencies) (*Server, error) {
	if deps.Pool == nil {
		return nil, errors.New("server needs a worker pool")
	}
	if deps.Sink == nil {
		deps.Sink = sink.Discard{}
	}
	return &Server{
		deps:   deps,
		config: config,
		logger: log.WithPrefix("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			// Local tool; browsers on any origin may connect
			CheckOrigin: func(*http.Request) bool { return true },
		},
		startTime: time.Now(),
	}, nil
}

// Config returns the current configuration.
func (s *Server) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// UpdateConfig replaces the configuration for new connections. The listen
// address is fixed once serving.
func (s *Server) UpdateConfig(config Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	config.Addr = s.config.Addr
	s.config = config
	s.logger.Info("configuration reloaded")
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.deps.Transcriber != nil {
		mux.HandleFunc("/ws/stt", s.handleSTT)
	}
	if s.deps.Synthesizer != nil {
		mux.HandleFunc("/ws/tts", s.handleTTS)
	}
	if s.deps.Transcriber != nil && s.deps.Synthesizer != nil && s.deps.Generator != nil {
		mux.HandleFunc("/ws/agent", s.handleAgent)
	}
	mux.Handle("/metrics", s.deps.Metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
// Websocket handlers see ctx through their request contexts.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Config().Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
