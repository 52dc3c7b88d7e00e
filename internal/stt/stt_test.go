package stt

import (
	"errors"
	"strings"
	"testing"

	"github.com/dgnsrekt/voicepipe/internal/config"
	"github.com/dgnsrekt/voicepipe/internal/stt/engines"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

func TestSelectEngine(t *testing.T) {
	tests := []struct {
		name       string
		cliArg     string
		configured string
		want       ttypes.EngineType
		wantErr    error
	}{
		{name: "CLI arg wins", cliArg: "google", configured: "whisper", want: ttypes.EngineGoogleSpeech},
		{name: "config used", configured: "whisper", want: ttypes.EngineWhisper},
		{name: "alias", cliArg: "whisper.cpp", want: ttypes.EngineWhisper},
		{name: "none", wantErr: ttypes.ErrNoEngineConfigured},
		{name: "invalid", cliArg: "piper", wantErr: ttypes.ErrInvalidEngine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectEngine(tt.cliArg, tt.configured)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SelectEngine() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SelectEngine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	cfg := config.Default().STT

	tr, err := New("", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*engines.Whisper); !ok {
		t.Errorf("New() = %T, want *engines.Whisper", tr)
	}

	tr, err = New("google", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*engines.GoogleSpeech); !ok {
		t.Errorf("New(google) = %T", tr)
	}
}

func TestNew_WhisperWithoutModel(t *testing.T) {
	cfg := config.Default().STT
	cfg.Model = ""

	_, err := New("whisper", cfg)
	if err == nil || !strings.Contains(err.Error(), "download-ggml-model") {
		t.Errorf("New() error = %v, want guidance", err)
	}
}
