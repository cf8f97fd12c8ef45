// Package stt streams microphone audio to a speech-to-text service over a
// WebSocket and yields committed utterances for the local session mode.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWSURL    = "wss://api.cartesia.ai/stt/websocket"
	cartesiaVersion = "2025-04-16"
	defaultModel    = "ink-whisper"
	defaultLanguage = "en"
)

// Config configures the provider. Zero values get defaults.
type Config struct {
	APIKey   string
	Model    string
	Language string
	URL      string // overridable for tests
}

// Provider opens streaming transcription sessions.
type Provider struct {
	cfg Config
}

func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.URL == "" {
		cfg.URL = defaultWSURL
	}
	return &Provider{cfg: cfg}
}

// NewStream opens a transcription session expecting pcm_s16le audio at the
// given rate. Only committed utterances are delivered; interim partials are
// folded into the final text by the service.
func (p *Provider) NewStream(ctx context.Context, sampleRate int) (*Stream, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse stt url: %w", err)
	}
	q := u.Query()
	q.Set("model", p.cfg.Model)
	q.Set("language", p.cfg.Language)
	q.Set("encoding", "pcm_s16le")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("X-API-Key", p.cfg.APIKey)
	headers.Set("Cartesia-Version", cartesiaVersion)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stt connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("stt connect: %w", err)
	}

	s := &Stream{
		conn:        conn,
		transcripts: make(chan string, 16),
		done:        make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Stream is one live transcription session.
type Stream struct {
	conn        *websocket.Conn
	transcripts chan string
	done        chan struct{}
	closed      atomic.Bool
	writeMu     sync.Mutex
}

type sttMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error"`
}

func (s *Stream) readLoop() {
	defer close(s.transcripts)
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg sttMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "transcript":
			if !msg.IsFinal || strings.TrimSpace(msg.Text) == "" {
				continue
			}
			select {
			case s.transcripts <- msg.Text:
			case <-s.done:
				return
			}
		case "done", "error":
			return
		}
	}
}

// SendAudio forwards one pcm_s16le frame.
func (s *Stream) SendAudio(pcm []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("stt stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Finalize flushes buffered audio so the current utterance commits without
// waiting for silence.
func (s *Stream) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("stt stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte("finalize"))
}

// Transcripts yields committed utterances. Closed when the session ends.
func (s *Stream) Transcripts() <-chan string {
	return s.transcripts
}

func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte("done"))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}
