// Package llm talks to OpenAI-compatible chat servers such as llama-server,
// vLLM or the OpenAI API itself, streaming replies token by token.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"

	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// ErrEmptyReply is returned when the model finishes without any content.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Config configures the chat client.
type Config struct {
	// BaseURL of the OpenAI-compatible API, including the /v1 suffix
	BaseURL string

	// APIKey is sent as a bearer token; local servers usually ignore it
	APIKey string

	Model       string
	MaxTokens   int
	Temperature float32
	TopP        float32

	// Timeout bounds one full streamed reply (defaults to 2m)
	Timeout time.Duration
}

// OpenAI is a streaming chat Generator.
type OpenAI struct {
	client *openai.Client
	config Config
}

// NewOpenAI creates a client. No request is made until Generate.
func NewOpenAI(config Config) *OpenAI {
	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cc.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cc),
		config: config,
	}
}

// Generate streams a reply to messages. onDelta receives each content
// fragment in order; the concatenated reply is returned.
func (o *OpenAI) Generate(ctx context.Context, messages []ttypes.Message, onDelta func(string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       o.config.Model,
		Messages:    toOpenAI(messages),
		MaxTokens:   o.config.MaxTokens,
		Temperature: o.config.Temperature,
		TopP:        o.config.TopP,
		Stream:      true,
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("unable to start chat stream: %w", err)
	}
	defer stream.Close() //nolint:errcheck

	var reply strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return reply.String(), fmt.Errorf("chat stream interrupted: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		reply.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	if strings.TrimSpace(reply.String()) == "" {
		return "", ErrEmptyReply
	}
	log.Debug("chat reply complete", "model", o.config.Model, "chars", reply.Len())
	return reply.String(), nil
}

func toOpenAI(messages []ttypes.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

var _ ttypes.Generator = (*OpenAI)(nil)
