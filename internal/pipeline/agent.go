package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/voicepipe/internal/llm"
	"github.com/dgnsrekt/voicepipe/internal/sentence"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
	"github.com/dgnsrekt/voicepipe/internal/worker"
)

// DefaultApology is spoken when the chat model fails.
const DefaultApology = "Sorry, I had trouble answering that. Could you say it again?"

// EventType tags agent events.
type EventType string

const (
	EventTranscript EventType = "transcript"
	EventReply      EventType = "reply"
	EventAudio      EventType = "audio"
	EventError      EventType = "error"
)

// Event is one item of agent output. Only the field matching Type is set.
type Event struct {
	Type       EventType
	Transcript ttypes.Transcript
	Text       string
	Audio      ttypes.SynthesizedAudio
	Err        error
}

// AgentConfig holds the conversational settings.
type AgentConfig struct {
	SystemPrompt string
	Greeting     string

	// Apology replaces a failed reply (defaults to DefaultApology)
	Apology string

	// MaxTurns bounds the remembered history; 0 keeps everything
	MaxTurns int
}

// VoiceAgent answers each user turn with a streamed chat reply that is
// spoken sentence by sentence while it is still being generated.
type VoiceAgent struct {
	transcription *TranscriptionStream
	synthesis     *SynthesisStream
	generator     ttypes.Generator
	history       *llm.History
	config        AgentConfig
	opts          options
}

// NewVoiceAgent wires the streams to a generator. transcription may be nil
// when only RunTurns is used.
func NewVoiceAgent(transcription *TranscriptionStream, synthesis *SynthesisStream, generator ttypes.Generator, config AgentConfig, opts ...Option) (*VoiceAgent, error) {
	if synthesis == nil || generator == nil {
		return nil, errors.New("synthesis stream and generator are required")
	}
	if config.Apology == "" {
		config.Apology = DefaultApology
	}
	return &VoiceAgent{
		transcription: transcription,
		synthesis:     synthesis,
		generator:     generator,
		history:       llm.NewHistory(config.SystemPrompt, config.MaxTurns),
		config:        config,
		opts:          buildOptions("agent", opts),
	}, nil
}

// History returns the conversation so far.
func (a *VoiceAgent) History() []ttypes.Message {
	return a.history.Messages()
}

// Run transcribes frames and answers every transcript.
func (a *VoiceAgent) Run(ctx context.Context, frames <-chan []int16) (<-chan Event, error) {
	if a.transcription == nil {
		return nil, errors.New("agent has no transcription stream")
	}
	return a.converse(ctx, a.transcription.Run(ctx, frames)), nil
}

// RunTurns answers typed user turns.
func (a *VoiceAgent) RunTurns(ctx context.Context, turns <-chan string) <-chan Event {
	transcripts := make(chan ttypes.Transcript)
	go func() {
		defer close(transcripts)
		seq := 0
		for {
			select {
			case <-ctx.Done():
				return
			case text, ok := <-turns:
				if !ok {
					return
				}
				text = strings.TrimSpace(text)
				if text == "" {
					continue
				}
				select {
				case transcripts <- ttypes.Transcript{StreamID: a.opts.id, Seq: seq, Text: text, Final: true}:
					seq++
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return a.converse(ctx, transcripts)
}

func (a *VoiceAgent) converse(ctx context.Context, transcripts <-chan ttypes.Transcript) <-chan Event {
	out := make(chan Event)
	sentences := make(chan string, 32)
	audioEvents := a.synthesis.Run(ctx, sentences)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for ev := range audioEvents {
			if !send(ctx, out, Event{Type: EventAudio, Audio: ev}) {
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		defer close(sentences)

		// Generation holds its worker for the whole streamed reply while
		// the synthesis stream keeps using the shared pool, so a
		// conversation gets a worker of its own.
		gen := worker.New(1, 0)
		defer gen.Close()

		if a.config.Greeting != "" {
			a.history.Add(ttypes.RoleAssistant, a.config.Greeting)
			if !send(ctx, out, Event{Type: EventReply, Text: a.config.Greeting}) || !speak(ctx, sentences, a.config.Greeting) {
				return
			}
		}

		for tr := range transcripts {
			if !send(ctx, out, Event{Type: EventTranscript, Transcript: tr}) {
				return
			}
			if !a.respond(ctx, gen, out, sentences, tr.Text) {
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// respond runs one turn. It returns false when ctx is done.
func (a *VoiceAgent) respond(ctx context.Context, gen *worker.Pool, out chan<- Event, sentences chan<- string, userText string) bool {
	a.history.Add(ttypes.RoleUser, userText)
	start := time.Now()

	var (
		splitter sentence.Splitter
		filter   codeFilter
		spoken   bool
		stopped  bool
	)
	release := func(raw string) {
		if text := filter.speakable(raw); text != "" && !stopped {
			spoken = true
			stopped = !speak(ctx, sentences, text)
		}
	}

	messages := a.history.Messages()
	reply, err := worker.Do(ctx, gen, func(ctx context.Context) (string, error) {
		return a.generator.Generate(ctx, messages, func(delta string) {
			for _, s := range splitter.Write(delta) {
				release(s)
			}
		})
	})
	a.opts.metrics.RecordChatTurn(time.Since(start), err)
	if ctx.Err() != nil || stopped {
		return false
	}

	if err != nil {
		a.opts.logger.Error("chat generation failed", "error", err, "partial", spoken)
		// The apology stands in for the reply so user and assistant turns
		// keep alternating.
		a.history.Add(ttypes.RoleAssistant, a.config.Apology)
		if !send(ctx, out, Event{Type: EventError, Err: err}) {
			return false
		}
		return speak(ctx, sentences, a.config.Apology) &&
			send(ctx, out, Event{Type: EventReply, Text: a.config.Apology})
	}

	if rest := splitter.Flush(); rest != "" {
		release(rest)
	}
	a.history.Add(ttypes.RoleAssistant, reply)
	a.opts.logger.Debug("turn complete", "took", time.Since(start), "chars", len(reply))
	return !stopped && send(ctx, out, Event{Type: EventReply, Text: reply})
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func speak(ctx context.Context, sentences chan<- string, text string) bool {
	select {
	case sentences <- text:
		return true
	case <-ctx.Done():
		return false
	}
}

// codeFilter drops fenced code from a reply that arrives sentence by
// sentence, then strips the remaining markdown.
type codeFilter struct {
	inFence bool
}

func (f *codeFilter) speakable(raw string) string {
	parts := strings.Split(raw, "```")
	var keep strings.Builder
	for i, p := range parts {
		if i > 0 {
			f.inFence = !f.inFence
		}
		if !f.inFence {
			keep.WriteString(p)
			keep.WriteString(" ")
		}
	}
	return strings.TrimSpace(sentence.StripMarkdown(keep.String()))
}
