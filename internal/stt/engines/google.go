package engines

import (
	"context"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/charmbracelet/log"
	"google.golang.org/api/option"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// recognizeFunc is the single RPC the engine needs from the speech client.
type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleSpeech transcribes audio with the Google Cloud Speech-to-Text API.
// Authentication uses the credentials file when set and application default
// credentials otherwise.
type GoogleSpeech struct {
	language        string
	credentialsFile string
	timeout         time.Duration

	initOnce  sync.Once
	initErr   error
	client    *speech.Client
	recognize recognizeFunc
}

// GoogleSpeechConfig holds configuration for the Google Speech engine.
type GoogleSpeechConfig struct {
	// Language is a BCP-47 code; a bare "en" becomes "en-US"
	Language string

	// CredentialsFile is a service account JSON key; empty uses ADC
	CredentialsFile string

	// Timeout per request (defaults to 30s)
	Timeout time.Duration
}

// NewGoogleSpeech creates the engine. The gRPC client is dialed on first use.
func NewGoogleSpeech(config GoogleSpeechConfig) *GoogleSpeech {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &GoogleSpeech{
		language:        languageCode(config.Language),
		credentialsFile: config.CredentialsFile,
		timeout:         config.Timeout,
	}
}

func (e *GoogleSpeech) init(ctx context.Context) error {
	e.initOnce.Do(func() {
		if e.recognize != nil {
			return
		}
		var opts []option.ClientOption
		if e.credentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(e.credentialsFile))
		}
		// The client outlives the first request, so it must not inherit its deadline
		client, err := speech.NewClient(context.WithoutCancel(ctx), opts...)
		if err != nil {
			e.initErr = ttypes.NewEngineError(ttypes.ErrorCodeEngineUnavailable, "google", "cannot create speech client", err)
			return
		}
		e.client = client
		e.recognize = func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return client.Recognize(ctx, req)
		}
		log.Debug("google speech client ready", "language", e.language)
	})
	return e.initErr
}

// Transcribe sends samples as LINEAR16 and joins the top alternative of
// every result.
func (e *GoogleSpeech) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if err := e.init(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(sampleRate), //nolint:gosec
			LanguageCode:    e.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.SamplesToBytes(samples)},
		},
	})
	if err != nil {
		return "", classify("google", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// GetInfo returns engine capabilities.
func (e *GoogleSpeech) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:       string(ttypes.EngineGoogleSpeech),
		SampleRate: 16000,
		Channels:   1,
		Language:   e.language,
		IsOnline:   true,
	}
}

// Close releases the gRPC connection if one was opened.
func (e *GoogleSpeech) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func languageCode(lang string) string {
	switch lang {
	case "", "en":
		return "en-US"
	default:
		return lang
	}
}

var _ ttypes.Transcriber = (*GoogleSpeech)(nil)
