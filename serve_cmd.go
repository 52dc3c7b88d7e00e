package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/voicepipe/internal/config"
	"github.com/dgnsrekt/voicepipe/internal/metrics"
	"github.com/dgnsrekt/voicepipe/internal/pipeline"
	"github.com/dgnsrekt/voicepipe/internal/server"
	"github.com/dgnsrekt/voicepipe/internal/sink"
)

// defaultMaxTurns bounds the remembered conversation of an agent.
const defaultMaxTurns = 20

var (
	serveAddr  string
	watchFlag  bool
	serveTurns int

	serveCmd = &cobra.Command{
		Use:     "serve",
		Short:   "Serve the pipelines over websockets",
		Long:    paragraph(fmt.Sprintf("\n%s speech to text on /ws/stt, text to speech on /ws/tts and the voice agent on /ws/agent. Prometheus metrics are on /metrics and a health report on /healthz. Endpoints whose engine is not set up are left out.", keyword("Serve"))),
		Example: paragraph("voicepipe serve\nvoicepipe serve --addr :9000 --tts gtts --watch"),
		Args:    cobra.NoArgs,
		RunE:    runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", config.Default().Server.Addr, "address to listen on")
	serveCmd.Flags().BoolVar(&watchFlag, "watch", false, "reload the config file when it changes")
	serveCmd.Flags().IntVar(&serveTurns, "max-turns", defaultMaxTurns, "conversation turns each agent remembers (0 keeps everything)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	// A server's log belongs on stderr as well as in the file
	logToStderr()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a := newApp(cfg)
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := server.Dependencies{
		Pool:    a.pool,
		Cache:   a.cache,
		Metrics: metrics.New(func() float64 { return float64(a.pool.Stats().Active) }),
	}
	if deps.Transcriber, err = a.transcriber(); err != nil {
		log.Warn("Speech to text disabled", "err", err)
		deps.Transcriber = nil
	}
	if deps.Synthesizer, err = a.synthesizer(); err != nil {
		log.Warn("Text to speech disabled", "err", err)
		deps.Synthesizer = nil
	}
	if deps.Generator, err = a.generator(); err != nil {
		log.Warn("Voice agent disabled", "err", err)
		deps.Generator = nil
	}

	if cfg.Server.RedisAddr != "" {
		r, err := sink.NewRedis(ctx, cfg.Server.RedisAddr, cfg.Server.RedisStream)
		if err != nil {
			return err
		}
		defer r.Close() //nolint:errcheck
		deps.Sink = r
		log.Info("Publishing transcripts", "redis", cfg.Server.RedisAddr, "stream", cfg.Server.RedisStream)
	}

	srv, err := server.New(serverConfig(cfg), deps)
	if err != nil {
		return err
	}

	if watchFlag {
		if viper.ConfigFileUsed() == "" {
			log.Warn("No config file to watch")
		} else {
			viper.OnConfigChange(func(e fsnotify.Event) {
				reloaded, err := loadConfig(cmd)
				if err != nil {
					log.Error("Ignoring invalid config change", "file", e.Name, "err", err)
					return
				}
				srv.UpdateConfig(serverConfig(reloaded))
				log.Info("Config reloaded; engine changes apply after a restart", "file", e.Name)
			})
			viper.WatchConfig()
		}
	}

	return srv.ListenAndServe(ctx)
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Addr:              cfg.Server.Addr,
		SampleRate:        cfg.Audio.SampleRate,
		MinChunkSeconds:   cfg.Audio.MinChunkSeconds,
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
		Burst:             cfg.Server.Burst,
		MaxMessageBytes:   cfg.Server.MaxMessageBytes,
		Agent: pipeline.AgentConfig{
			SystemPrompt: cfg.LLM.SystemPrompt,
			Greeting:     cfg.LLM.Greeting,
			MaxTurns:     serveTurns,
		},
	}
}
