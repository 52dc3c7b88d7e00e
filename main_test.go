package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/cache"
	"github.com/dgnsrekt/voicepipe/internal/config"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// flagCmd returns a command carrying the global flags, parsed from args.
func flagCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	// logLevel backs the root flag bound to viper, so it keeps its default
	defaultLevel := config.Default().LogLevel
	ttsEngine, sttEngine, logLevel, serveAddr = "", "", defaultLevel, ""
	workers, noCache = 0, false
	t.Cleanup(func() { logLevel, noCache = defaultLevel, false })

	cmd := &cobra.Command{Use: "test"}
	flags := cmd.Flags()
	flags.StringVar(&ttsEngine, "tts", "", "")
	flags.StringVar(&sttEngine, "stt", "", "")
	flags.StringVar(&logLevel, "log-level", defaultLevel, "")
	flags.StringVar(&serveAddr, "addr", "", "")
	flags.IntVar(&workers, "workers", 0, "")
	flags.BoolVar(&noCache, "no-cache", false, "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(*config.Config) bool
	}{
		{name: "tts alias is canonicalized", args: []string{"--tts", "tone"}, check: func(c *config.Config) bool { return c.TTS.Engine == "mock" }},
		{name: "stt alias is canonicalized", args: []string{"--stt", "google-speech"}, check: func(c *config.Config) bool { return c.STT.Engine == "google" }},
		{name: "workers", args: []string{"--workers", "7"}, check: func(c *config.Config) bool { return c.Workers.Count == 7 }},
		{name: "no cache", args: []string{"--no-cache"}, check: func(c *config.Config) bool { return !c.Cache.Enabled }},
		{name: "addr", args: []string{"--addr", ":9999"}, check: func(c *config.Config) bool { return c.Server.Addr == ":9999" }},
		{name: "unchanged flags keep config", check: func(c *config.Config) bool {
			d := config.Default()
			return c.TTS.Engine == d.TTS.Engine && c.Workers.Count == d.Workers.Count && c.Cache.Enabled
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := flagCmd(t, tt.args...)
			cfg := config.Default()
			if err := applyFlags(cmd, &cfg); err != nil {
				t.Fatal(err)
			}
			if !tt.check(&cfg) {
				t.Errorf("config after %v = %+v", tt.args, cfg)
			}
		})
	}
}

func TestApplyFlags_InvalidEngine(t *testing.T) {
	cmd := flagCmd(t, "--tts", "espeak")
	cfg := config.Default()
	if err := applyFlags(cmd, &cfg); err == nil || !strings.Contains(err.Error(), "Supported engines") {
		t.Errorf("applyFlags() error = %v", err)
	}
}

func TestLoadConfig_FlagsBeatEnvironment(t *testing.T) {
	t.Setenv("TTS_ENGINE", "gtts")

	cfg, err := loadConfig(flagCmd(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TTS.Engine != "gtts" {
		t.Errorf("without flag: engine = %q, want gtts", cfg.TTS.Engine)
	}

	cfg, err = loadConfig(flagCmd(t, "--tts", "mock"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TTS.Engine != "mock" {
		t.Errorf("with flag: engine = %q, want mock", cfg.TTS.Engine)
	}
}

func TestEnsureConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { configFile = "" })

	configFile = filepath.Join(dir, "voicepipe.toml")
	if err := ensureConfigFile(); err == nil || !strings.Contains(err.Error(), ".toml") {
		t.Errorf("ensureConfigFile(.toml) error = %v", err)
	}

	configFile = filepath.Join(dir, "nested", "voicepipe.yml")
	if err := ensureConfigFile(); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if cfg.TTS.Engine != config.Default().TTS.Engine {
		t.Errorf("engine = %q", cfg.TTS.Engine)
	}

	// An existing file is left alone
	if err := os.WriteFile(configFile, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ensureConfigFile(); err != nil {
		t.Fatal(err)
	}
	if b, _ := os.ReadFile(configFile); string(b) != "log_level: debug\n" {
		t.Errorf("config overwritten: %q", b)
	}
}

func TestIsMarkdownFile(t *testing.T) {
	tests := map[string]bool{
		"README.md":      true,
		"notes.Markdown": true,
		"story.txt":      false,
		"md":             false,
	}
	for path, want := range tests {
		if got := isMarkdownFile(path); got != want {
			t.Errorf("isMarkdownFile(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestReadSpeakInput(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(md, []byte("# Title\n\nBody."), 0o600); err != nil {
		t.Fatal(err)
	}

	text, isMD, err := readSpeakInput([]string{md})
	if err != nil || !isMD || !strings.Contains(text, "Body.") {
		t.Errorf("file: text=%q markdown=%v err=%v", text, isMD, err)
	}

	text, isMD, err = readSpeakInput([]string{"Hello", "there."})
	if err != nil || isMD || text != "Hello there." {
		t.Errorf("args: text=%q markdown=%v err=%v", text, isMD, err)
	}
}

func TestReplay(t *testing.T) {
	wav := &audio.WAV{SampleRate: 16000, Samples: make([]int16, 3500)}

	var sizes []int
	total := 0
	for frame := range replay(context.Background(), wav) {
		sizes = append(sizes, len(frame))
		total += len(frame)
	}
	if total != len(wav.Samples) {
		t.Errorf("replayed %d samples, want %d", total, len(wav.Samples))
	}
	if len(sizes) != 3 || sizes[0] != 1600 || sizes[2] != 300 {
		t.Errorf("frame sizes = %v, want [1600 1600 300]", sizes)
	}
}

func TestReplay_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	frames := replay(ctx, &audio.WAV{SampleRate: 16000, Samples: make([]int16, 16000*10)})
	<-frames
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("replay did not stop")
		}
	}
}

func TestCollect(t *testing.T) {
	segments := make(chan ttypes.SynthesizedAudio, 2)
	segments <- ttypes.SynthesizedAudio{Samples: make([]int16, 100), SampleRate: 16000}
	segments <- ttypes.SynthesizedAudio{Samples: make([]int16, 200), SampleRate: 32000}
	close(segments)

	samples, rate := collect(segments)
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	if len(samples) != 200 {
		t.Errorf("len = %d, want 200", len(samples))
	}
}

func TestReadTurns(t *testing.T) {
	in := strings.NewReader("hello\n\n  second turn  \n/exit\nignored\n")
	var out bytes.Buffer
	turns := make(chan string)
	prompt := make(chan struct{}, 1)

	go readTurns(context.Background(), in, &out, turns, prompt, true)

	var got []string
	prompt <- struct{}{}
	for turn := range turns {
		got = append(got, turn)
		next(prompt)
	}

	if strings.Join(got, "|") != "hello|second turn" {
		t.Errorf("turns = %q", got)
	}
	if n := strings.Count(out.String(), ">"); n != 4 {
		t.Errorf("printed %d prompts, want 4", n)
	}
}

func TestPrintCacheStats(t *testing.T) {
	var out bytes.Buffer
	printCacheStats(&out, "/tmp/segments", cache.ManagerStats{
		Disk: cache.Stats{Capacity: 1_000_000, Size: 2000, ItemCount: 1234},
	})

	for _, want := range []string{"/tmp/segments", "1,234", "2.0 kB", "1.0 MB"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestCleanupInterval(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want time.Duration
	}{
		{ttl: 0, want: 0},
		{ttl: time.Minute, want: time.Minute},
		{ttl: 24 * time.Hour, want: 6 * time.Hour},
	}
	for _, tt := range tests {
		if got := cleanupInterval(tt.ttl); got != tt.want {
			t.Errorf("cleanupInterval(%v) = %v, want %v", tt.ttl, got, tt.want)
		}
	}
}

func TestServerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = ":7000"
	cfg.LLM.Greeting = "Hi."
	serveTurns = 5

	sc := serverConfig(&cfg)
	if sc.Addr != ":7000" || sc.SampleRate != cfg.Audio.SampleRate || sc.Agent.Greeting != "Hi." || sc.Agent.MaxTurns != 5 {
		t.Errorf("serverConfig() = %+v", sc)
	}
}

func TestGenerator_NeedsEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.BaseURL, cfg.LLM.APIKey = "", ""
	a := &app{cfg: &cfg}
	if _, err := a.generator(); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("generator() error = %v", err)
	}

	cfg.LLM.BaseURL = "http://localhost:8080/v1"
	if g, err := a.generator(); err != nil || g == nil {
		t.Errorf("generator() = %v, %v", g, err)
	}
}
