package engines

import (
	"context"
	"errors"
	"os"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

func fakeGoogle(fn recognizeFunc) *GoogleSpeech {
	e := NewGoogleSpeech(GoogleSpeechConfig{Language: "en"})
	e.recognize = fn
	return e
}

func TestGoogleSpeech_Transcribe(t *testing.T) {
	var got *speechpb.RecognizeRequest
	e := fakeGoogle(func(_ context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " hello "}, {Transcript: "yellow"}}},
			{},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "world"}}},
		}}, nil
	})

	samples := []int16{1, -1, 300}
	text, err := e.Transcribe(context.Background(), samples, 8000)
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello world" {
		t.Errorf("Transcribe() = %q", text)
	}

	cfg := got.GetConfig()
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 || cfg.GetSampleRateHertz() != 8000 || cfg.GetLanguageCode() != "en-US" {
		t.Errorf("config = %v", cfg)
	}
	if string(got.GetAudio().GetContent()) != string(audio.SamplesToBytes(samples)) {
		t.Error("audio content is not s16le")
	}
}

func TestGoogleSpeech_Errors(t *testing.T) {
	e := fakeGoogle(func(ctx context.Context, _ *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return nil, errors.New("quota exceeded")
	})
	_, err := e.Transcribe(context.Background(), []int16{1}, 16000)

	var ee *ttypes.EngineError
	if !errors.As(err, &ee) || ee.Engine != "google" || ee.Code != ttypes.ErrorCodeEngineFailure {
		t.Errorf("Transcribe() error = %v", err)
	}
}

func TestGoogleSpeech_EmptyInputSkipsRequest(t *testing.T) {
	e := fakeGoogle(func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		t.Fatal("recognize called for empty audio")
		return nil, nil
	})
	if text, err := e.Transcribe(context.Background(), nil, 16000); err != nil || text != "" {
		t.Errorf("Transcribe(nil) = %q, %v", text, err)
	}
}

func TestGoogleSpeech_GetInfo(t *testing.T) {
	info := NewGoogleSpeech(GoogleSpeechConfig{Language: "fr-FR"}).GetInfo()
	if !info.IsOnline || info.Language != "fr-FR" || info.Name != "google" {
		t.Errorf("info = %+v", info)
	}
}

func TestGoogleSpeech_Integration(t *testing.T) {
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("GOOGLE_APPLICATION_CREDENTIALS not set")
	}
	e := NewGoogleSpeech(GoogleSpeechConfig{})
	defer e.Close() //nolint:errcheck

	if _, err := e.Transcribe(context.Background(), make([]int16, 16000), 16000); err != nil {
		t.Fatal(err)
	}
}
