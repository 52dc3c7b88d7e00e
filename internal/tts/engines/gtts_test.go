package engines

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

func TestNewGTTS_Defaults(t *testing.T) {
	tests := []struct {
		name     string
		config   GTTSConfig
		wantLang string
		wantRPM  int
	}{
		{name: "default configuration", config: GTTSConfig{}, wantLang: "en", wantRPM: 50},
		{name: "custom language", config: GTTSConfig{Language: "es", RequestsPerMinute: 10}, wantLang: "es", wantRPM: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewGTTS(tt.config)
			if e.language != tt.wantLang {
				t.Errorf("language = %q, want %q", e.language, tt.wantLang)
			}
			if want := time.Minute / time.Duration(tt.wantRPM); e.limiter.Limit() != rate.Every(want) {
				t.Errorf("limit = %v, want one per %v", e.limiter.Limit(), want)
			}
		})
	}
}

func TestGTTS_GetInfo(t *testing.T) {
	info := NewGTTS(GTTSConfig{Language: "fr", Slow: true}).GetInfo()

	if info.Name != "gtts" || !info.IsOnline {
		t.Errorf("info = %+v", info)
	}
	if info.SampleRate != GTTSSampleRate || info.Channels != 1 {
		t.Errorf("format = %d Hz x %d", info.SampleRate, info.Channels)
	}
	if info.Voice != "fr-slow" {
		t.Errorf("voice = %q, want fr-slow", info.Voice)
	}
}

func TestGTTS_Args(t *testing.T) {
	e := NewGTTS(GTTSConfig{Language: "de", Slow: true, Speed: 3.0})

	gtts := strings.Join(e.gttsArgs(), " ")
	if gtts != "- -l de --slow -o -" {
		t.Errorf("gtts args = %q", gtts)
	}

	ffmpeg := strings.Join(e.ffmpegArgs(), " ")
	for _, want := range []string{"-f s16le", "-ar 24000", "-ac 1", "atempo=2.00", "pipe:1"} {
		if !strings.Contains(ffmpeg, want) {
			t.Errorf("ffmpeg args %q missing %q", ffmpeg, want)
		}
	}

	if strings.Contains(strings.Join(NewGTTS(GTTSConfig{}).ffmpegArgs(), " "), "atempo") {
		t.Error("atempo added at normal speed")
	}
}

func TestGTTS_SynthesizeWithFakeCommands(t *testing.T) {
	dir := t.TempDir()
	// gtts-cli passes the text through as "mp3"; ffmpeg passes it through as PCM
	fakeBinary(t, dir, "gtts-cli", "cat")
	fakeBinary(t, dir, "ffmpeg", "cat")
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	e := NewGTTS(GTTSConfig{RequestsPerMinute: 6000})
	samples, err := e.Synthesize(context.Background(), "wxyz")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("len = %d, want 2", len(samples))
	}
}

func TestGTTS_MissingBinaries(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := NewGTTS(GTTSConfig{}).Synthesize(context.Background(), "Hello.")
	if !ttypes.IsFatal(err) {
		t.Errorf("Synthesize() error = %v, want fatal", err)
	}
	if !strings.Contains(err.Error(), "gtts-cli") {
		t.Errorf("error %q does not name the binary", err)
	}
}

func TestGTTS_ContextCancellation(t *testing.T) {
	dir := t.TempDir()
	fakeBinary(t, dir, "gtts-cli", "cat")
	fakeBinary(t, dir, "ffmpeg", "cat")
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	e := NewGTTS(GTTSConfig{RequestsPerMinute: 1})
	// Spend the single token so the next call has to wait a minute
	if _, err := e.Synthesize(context.Background(), "ab"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Synthesize(ctx, "cd")

	var ee *ttypes.EngineError
	if !errors.As(err, &ee) || ee.Code != ttypes.ErrorCodeRateLimited {
		t.Errorf("Synthesize() error = %v, want rate limited", err)
	}
}

func TestGTTS_Integration(t *testing.T) {
	if os.Getenv("GTTS_INTEGRATION") == "" {
		t.Skip("GTTS_INTEGRATION not set (requires network)")
	}
	for _, bin := range []string{"gtts-cli", "ffmpeg"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	samples, err := NewGTTS(GTTSConfig{}).Synthesize(ctx, "Hello world.")
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) < GTTSSampleRate/4 {
		t.Errorf("suspiciously short audio: %d samples", len(samples))
	}
}
