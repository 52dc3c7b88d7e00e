package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/metrics"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

const writeWait = 10 * time.Second

// event is the JSON shape of every text message the server sends.
type event struct {
	Type       string `json:"type"`
	StreamID   string `json:"stream_id,omitempty"`
	Seq        int    `json:"seq"`
	Text       string `json:"text,omitempty"`
	Final      bool   `json:"final,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Samples    int    `json:"samples,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
	Error      string `json:"error,omitempty"`
}

// request is the JSON shape of client text messages.
type request struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func transcriptEvent(tr ttypes.Transcript) event {
	return event{
		Type:       "transcript",
		StreamID:   tr.StreamID,
		Seq:        tr.Seq,
		Text:       tr.Text,
		Final:      tr.Final,
		DurationMS: tr.Duration.Milliseconds(),
	}
}

func segmentEvent(a ttypes.SynthesizedAudio) event {
	return event{
		Type:       "segment",
		StreamID:   a.StreamID,
		Seq:        a.Seq,
		Text:       a.Text,
		SampleRate: a.SampleRate,
		Samples:    len(a.Samples),
		Cached:     a.Cached,
	}
}

// conn serializes writes to a websocket and rate limits reads.
type conn struct {
	ws       *websocket.Conn
	endpoint string
	limiter  *rate.Limiter
	metrics  *metrics.Metrics

	mu sync.Mutex
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request, endpoint string) (*conn, error) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		return nil, err
	}
	cfg := s.Config()
	if cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(cfg.MaxMessageBytes)
	}
	limit := rate.Inf
	if cfg.MessagesPerSecond > 0 {
		limit = rate.Limit(cfg.MessagesPerSecond)
	}
	return &conn{
		ws:       ws,
		endpoint: endpoint,
		limiter:  rate.NewLimiter(limit, max(cfg.Burst, 1)),
		metrics:  s.deps.Metrics,
	}, nil
}

func (c *conn) writeJSON(ev event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(ev)
}

// writeAudio sends the segment header followed by its PCM as one binary
// message, holding the lock so no other message lands in between.
func (c *conn) writeAudio(a ttypes.SynthesizedAudio) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(segmentEvent(a)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, audio.SamplesToBytes(a.Samples))
}

func (c *conn) writeError(msg string) error {
	return c.writeJSON(event{Type: "error", Error: msg})
}

// read returns the next message that passes the rate limiter. Rejected
// messages are answered with an error event and dropped.
func (c *conn) read() (int, []byte, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		if c.limiter.Allow() {
			return kind, data, nil
		}
		c.metrics.RecordRateLimited(c.endpoint)
		if err := c.writeError("rate limited: message dropped"); err != nil {
			return 0, nil, err
		}
	}
}

// interrupt unblocks a pending read.
func (c *conn) interrupt() {
	_ = c.ws.SetReadDeadline(time.Now())
}

// close sends a normal closure frame and closes the connection.
func (c *conn) close() {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	_ = c.ws.Close()
}

func parseRequest(data []byte) (request, error) {
	var req request
	err := json.Unmarshal(data, &req)
	return req, err
}
