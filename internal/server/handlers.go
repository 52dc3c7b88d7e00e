package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/pipeline"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// handleSTT streams binary PCM frames through a transcription stream. A
// {"type":"close"} message or the connection closing ends the input; the
// remainder is transcribed before {"type":"done"} is sent.
func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	c, err := s.accept(w, r, "/ws/stt")
	if err != nil {
		s.logger.Debug("upgrade failed", "error", err)
		return
	}
	defer c.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer context.AfterFunc(ctx, c.interrupt)()

	cfg := s.Config()
	stream, err := pipeline.NewTranscriptionStream(s.deps.Transcriber, s.deps.Pool,
		pipeline.TranscriptionConfig{SampleRate: cfg.SampleRate, MinChunkSeconds: cfg.MinChunkSeconds},
		pipeline.WithMetrics(s.deps.Metrics))
	if err != nil {
		_ = c.writeError(err.Error())
		return
	}
	logger := s.logger.With("endpoint", "stt", "stream", stream.ID())
	logger.Debug("connection opened", "remote", r.RemoteAddr)

	frames := make(chan []int16, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for tr := range stream.Run(ctx, frames) {
			s.publish(ctx, tr)
			if err := c.writeJSON(transcriptEvent(tr)); err != nil {
				cancel()
			}
		}
	}()

	readFrames(ctx, c, frames)
	close(frames)
	<-done

	if ctx.Err() == nil {
		_ = c.writeJSON(event{Type: "done", StreamID: stream.ID()})
	}
	logger.Debug("connection closed")
}

// handleTTS answers each {"text": ...} request with one segment event and
// binary PCM frame per sentence, then {"type":"done"}.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	c, err := s.accept(w, r, "/ws/tts")
	if err != nil {
		s.logger.Debug("upgrade failed", "error", err)
		return
	}
	defer c.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer context.AfterFunc(ctx, c.interrupt)()

	stream, err := pipeline.NewSynthesisStream(s.deps.Synthesizer, s.deps.Pool,
		pipeline.WithCache(s.deps.Cache), pipeline.WithMetrics(s.deps.Metrics))
	if err != nil {
		_ = c.writeError(err.Error())
		return
	}

	for {
		kind, data, err := c.read()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			_ = c.writeError(`expected a JSON message like {"text": "Hello."}`)
			continue
		}
		req, err := parseRequest(data)
		if err != nil {
			_ = c.writeError("invalid JSON: " + err.Error())
			continue
		}
		if req.Type == "close" {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			_ = c.writeError("missing text")
			continue
		}

		for a := range stream.Speak(ctx, req.Text) {
			if err := c.writeAudio(a); err != nil {
				cancel()
			}
		}
		if ctx.Err() != nil {
			return
		}
		if err := c.writeJSON(event{Type: "done", StreamID: stream.ID()}); err != nil {
			return
		}
	}
}

// handleAgent runs a voice agent over binary PCM input.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	c, err := s.accept(w, r, "/ws/agent")
	if err != nil {
		s.logger.Debug("upgrade failed", "error", err)
		return
	}
	defer c.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer context.AfterFunc(ctx, c.interrupt)()

	cfg := s.Config()
	agent, err := s.newAgent(cfg)
	if err != nil {
		_ = c.writeError(err.Error())
		return
	}

	frames := make(chan []int16, 64)
	events, err := agent.Run(ctx, frames)
	if err != nil {
		_ = c.writeError(err.Error())
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if err := s.writeAgentEvent(ctx, c, ev); err != nil {
				cancel()
			}
		}
	}()

	readFrames(ctx, c, frames)
	close(frames)
	<-done

	if ctx.Err() == nil {
		_ = c.writeJSON(event{Type: "done"})
	}
}

func (s *Server) newAgent(cfg Config) (*pipeline.VoiceAgent, error) {
	stt, err := pipeline.NewTranscriptionStream(s.deps.Transcriber, s.deps.Pool,
		pipeline.TranscriptionConfig{SampleRate: cfg.SampleRate, MinChunkSeconds: cfg.MinChunkSeconds},
		pipeline.WithMetrics(s.deps.Metrics))
	if err != nil {
		return nil, err
	}
	tts, err := pipeline.NewSynthesisStream(s.deps.Synthesizer, s.deps.Pool,
		pipeline.WithCache(s.deps.Cache), pipeline.WithMetrics(s.deps.Metrics))
	if err != nil {
		return nil, err
	}
	return pipeline.NewVoiceAgent(stt, tts, s.deps.Generator, cfg.Agent, pipeline.WithMetrics(s.deps.Metrics))
}

func (s *Server) writeAgentEvent(ctx context.Context, c *conn, ev pipeline.Event) error {
	switch ev.Type {
	case pipeline.EventTranscript:
		s.publish(ctx, ev.Transcript)
		return c.writeJSON(transcriptEvent(ev.Transcript))
	case pipeline.EventReply:
		return c.writeJSON(event{Type: "reply", Text: ev.Text})
	case pipeline.EventAudio:
		return c.writeAudio(ev.Audio)
	case pipeline.EventError:
		return c.writeError(ev.Err.Error())
	default:
		return nil
	}
}

func (s *Server) publish(ctx context.Context, tr ttypes.Transcript) {
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.deps.Sink.Publish(pctx, tr); err != nil {
		s.logger.Warn("could not publish transcript", "stream", tr.StreamID, "error", err)
	}
}

// readFrames forwards binary PCM messages until a close request, a read
// error or ctx ending.
func readFrames(ctx context.Context, c *conn, frames chan<- []int16) {
	for {
		kind, data, err := c.read()
		if err != nil {
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			samples, err := audio.BytesToSamples(data)
			if err != nil {
				_ = c.writeError("binary frames must hold whole 16-bit samples")
				continue
			}
			select {
			case frames <- samples:
			case <-ctx.Done():
				return
			}
		case websocket.TextMessage:
			req, err := parseRequest(data)
			if err != nil {
				_ = c.writeError("invalid JSON: " + err.Error())
				continue
			}
			if req.Type == "close" {
				return
			}
			_ = c.writeError("unknown message type: " + req.Type)
		}
	}
}
