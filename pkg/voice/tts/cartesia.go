// Package tts turns agent text into raw PCM over a streaming WebSocket for
// the local session mode.
package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultWSURL    = "wss://api.cartesia.ai/tts/websocket"
	cartesiaVersion = "2025-04-16"
	defaultModel    = "sonic-3"
	defaultVoiceID  = "a0e99841-438c-4a64-b679-ae501e7d6091"
)

// Config configures the provider. Zero values get defaults.
type Config struct {
	APIKey       string
	Model        string
	Language     string
	SampleRateHz int    // output rate, default 24000
	URL          string // overridable for tests
}

// Provider opens streaming synthesis contexts.
type Provider struct {
	cfg Config
}

func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = 24000
	}
	if cfg.URL == "" {
		cfg.URL = defaultWSURL
	}
	return &Provider{cfg: cfg}
}

// NewContext opens an incremental synthesis context for one voice. Text
// chunks sent to the same context continue one utterance stream.
func (p *Provider) NewContext(ctx context.Context, voice string) (*Context, error) {
	if voice == "" {
		voice = defaultVoiceID
	}
	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse tts url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", p.cfg.APIKey)
	q.Set("cartesia_version", cartesiaVersion)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("tts connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("tts connect: %w", err)
	}

	c := &Context{
		conn:      conn,
		cfg:       p.cfg,
		voice:     voice,
		contextID: uuid.NewString(),
		audio:     make(chan []byte, 64),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Context is one incremental synthesis stream.
type Context struct {
	conn      *websocket.Conn
	cfg       Config
	voice     string
	contextID string
	audio     chan []byte
	done      chan struct{}
	closed    atomic.Bool
	writeMu   sync.Mutex
}

type wsRequest struct {
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceSpec    `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
	Language     string       `json:"language,omitempty"`
	ContextID    string       `json:"context_id"`
	Continue     bool         `json:"continue"`
}

type voiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type wsResponse struct {
	Type  string `json:"type"` // "chunk", "done", "error"
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// SendText queues a text chunk for synthesis on this context.
func (c *Context) SendText(text string) error {
	return c.write(text, true)
}

// Flush signals the end of the utterance so the tail audio generates.
func (c *Context) Flush() error {
	return c.write("", false)
}

func (c *Context) write(text string, cont bool) error {
	if c.closed.Load() {
		return fmt.Errorf("tts context closed")
	}
	req := wsRequest{
		ModelID:    c.cfg.Model,
		Transcript: text,
		Voice:      voiceSpec{Mode: "id", ID: c.voice},
		OutputFormat: outputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: c.cfg.SampleRateHz,
		},
		Language:  c.cfg.Language,
		ContextID: c.contextID,
		Continue:  cont,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal tts request: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Context) readLoop() {
	defer close(c.audio)
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "chunk":
			pcm, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				continue
			}
			select {
			case c.audio <- pcm:
			case <-c.done:
				return
			}
		case "done", "error":
			return
		}
	}
}

// Audio yields raw PCM chunks as they are generated. Closed when the
// context ends.
func (c *Context) Audio() <-chan []byte {
	return c.audio
}

func (c *Context) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}
