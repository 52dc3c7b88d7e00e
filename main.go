// Package main provides the entry point for the voicepipe CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/voicepipe/internal/config"
	"github.com/dgnsrekt/voicepipe/internal/stt"
	"github.com/dgnsrekt/voicepipe/internal/tts"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	verbose    bool
	logLevel   string
	ttsEngine  string
	sttEngine  string
	workers    int
	noCache    bool

	// logOutput is where the file logger writes; set by setupLog.
	logOutput io.Writer = io.Discard

	rootCmd = &cobra.Command{
		Use:   "voicepipe",
		Short: "Streaming speech pipelines for the terminal",
		Long: paragraph(
			fmt.Sprintf("\nTurn %s into text and text back into %s, or hold a spoken conversation with a language model.", keyword("speech"), keyword("speech")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	if verbose {
		logToStderr()
	}
	if workers < 0 {
		return fmt.Errorf("--workers must be positive, got %d", workers)
	}
	if cmd.Flags().Changed("tts") {
		if _, err := tts.SelectEngine(ttsEngine, ""); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("stt") {
		if _, err := stt.SelectEngine(sttEngine, ""); err != nil {
			return err
		}
	}
	return nil
}

// logToStderr mirrors the log file on stderr.
func logToStderr() {
	log.SetOutput(io.MultiWriter(logOutput, os.Stderr))
}

// loadConfig decodes the configuration viper found and lets flags given on
// the command line override both the file and the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.Debug("Loaded configuration", "file", viper.ConfigFileUsed(), "tts", cfg.TTS.Engine, "stt", cfg.STT.Engine)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("tts") {
		kind, err := tts.SelectEngine(ttsEngine, "")
		if err != nil {
			return err
		}
		cfg.TTS.Engine = string(kind)
	}
	if flags.Changed("stt") {
		kind, err := stt.SelectEngine(sttEngine, "")
		if err != nil {
			return err
		}
		cfg.STT.Engine = string(kind)
	}
	if flags.Changed("workers") {
		cfg.Workers.Count = workers
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	cobra.OnInitialize(initConfig)
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	defaults := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default voicepipe.yml in the user config dir)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	flags.StringVar(&logLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&ttsEngine, "tts", "", "speech synthesis engine (piper, gtts, mock)")
	flags.StringVar(&sttEngine, "stt", "", "speech recognition engine (whisper, google)")
	flags.IntVar(&workers, "workers", defaults.Workers.Count, "number of engine workers")
	flags.BoolVar(&noCache, "no-cache", false, "do not read or write the segment cache")

	// Config bindings
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))

	rootCmd.AddCommand(transcribeCmd, speakCmd, chatCmd, serveCmd, cacheCmd, configCmd, manCmd)
}

func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Warn("Could not parse configuration file", "path", configFile, "err", err)
		}
		return
	}
	tryLoadConfigFromDefaultPlaces()
}

func configDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, "voicepipe")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, err
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "voicepipe")}, dirs...)
	}

	if c := os.Getenv("VOICEPIPE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	if len(dirs) == 0 {
		return nil, errors.New("no configuration directory")
	}
	return dirs, nil
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := configDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("voicepipe")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("voicepipe")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], "voicepipe.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
