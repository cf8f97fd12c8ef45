// Package protocol defines the typed envelopes exchanged over a Parley
// session socket and the codec that moves them to and from the wire.
//
// Every envelope is a JSON object with a "type" discriminator. Binary audio
// travels base64-encoded inside a JSON field so the protocol stays uniform
// over a single text websocket stream.
package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	// Client -> remote envelope types.
	TypeStart          = "start"
	TypeAudio          = "audio"
	TypeText           = "text"
	TypeFunctionResult = "function_result"
	TypeEnd            = "end"

	// Remote -> client envelope types.
	TypeSetupComplete     = "setup_complete"
	TypeTranscript        = "transcript"
	TypeTurnComplete      = "turn_complete"
	TypeFunctionCall      = "function_call"
	TypeStartTour         = "start_tour"
	TypeAsyncTaskStarted  = "async_task_started"
	TypeAsyncTaskComplete = "async_task_complete"
	TypeGoAway            = "go_away"
	TypeError             = "error"
)

// DecodeError describes a frame the codec refused. Sessions drop these
// silently; they are never fatal to the socket.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

func unknownType(typ string) *DecodeError {
	return &DecodeError{Code: "unknown_type", Message: "unknown envelope type", Param: typ}
}

// Start opens a logical conversation. ResumeToken, when present, asks the
// remote side to continue the prior conversation state.
type Start struct {
	Type         string `json:"type"`
	Mode         string `json:"mode"`
	Voice        string `json:"voice,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	ResumeToken  string `json:"resume_token,omitempty"`
}

// AudioFrame carries one wire-encoded capture or playback frame.
type AudioFrame struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

// PCM returns the decoded frame payload.
func (f AudioFrame) PCM() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.DataB64)
}

type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// FunctionResult flows both directions: outbound it answers a locally
// handled call (CallID set); inbound it reports a remotely handled one.
type FunctionResult struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Result any    `json:"result"`
	CallID string `json:"call_id,omitempty"`
}

type End struct {
	Type string `json:"type"`
}

type SetupComplete struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Resumed   bool   `json:"resumed"`
}

type Transcript struct {
	Type string `json:"type"`
	Role string `json:"role"`
	Text string `json:"text"`
}

type TurnComplete struct {
	Type string `json:"type"`
	Turn int    `json:"turn"`
}

type FunctionCall struct {
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	Args           map[string]any `json:"args,omitempty"`
	LocallyHandled bool           `json:"locally_handled"`
	CallID         string         `json:"call_id"`
}

// TourStep is one stop in a remote-initiated guided tour.
type TourStep struct {
	Target    string `json:"target"`
	Speech    string `json:"speech,omitempty"`
	Position  string `json:"position,omitempty"`
	Highlight bool   `json:"highlight,omitempty"`
}

type Tour struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Steps       []TourStep `json:"steps"`
}

type StartTour struct {
	Type string `json:"type"`
	Tour Tour   `json:"tour"`
	Page string `json:"page,omitempty"`
}

type AsyncTaskStarted struct {
	Type     string `json:"type"`
	Function string `json:"function"`
	TaskID   string `json:"task_id"`
}

type AsyncTaskComplete struct {
	Type     string `json:"type"`
	Function string `json:"function"`
	TaskID   string `json:"task_id"`
}

type GoAway struct {
	Type        string `json:"type"`
	ResumeToken string `json:"resume_token,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewStart builds a start envelope with the type tag set.
func NewStart(mode, voice, model, systemPrompt, resumeToken string) Start {
	return Start{
		Type:         TypeStart,
		Mode:         mode,
		Voice:        voice,
		Model:        model,
		SystemPrompt: systemPrompt,
		ResumeToken:  resumeToken,
	}
}

// NewAudioFrame wraps raw PCM bytes for the wire.
func NewAudioFrame(pcm []byte) AudioFrame {
	return AudioFrame{Type: TypeAudio, DataB64: base64.StdEncoding.EncodeToString(pcm)}
}

func NewText(text string) Text {
	return Text{Type: TypeText, Text: text}
}

func NewFunctionResult(name string, result any, callID string) FunctionResult {
	return FunctionResult{Type: TypeFunctionResult, Name: name, Result: result, CallID: callID}
}

func NewEnd() End {
	return End{Type: TypeEnd}
}

// Encode marshals an envelope for the wire.
func Encode(v any) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// DecodeServerMessage decodes one remote->client frame into its typed
// envelope. Malformed frames and unrecognized types come back as a
// *DecodeError so the caller can drop them without tearing the session down.
func DecodeServerMessage(data []byte) (any, error) {
	typ, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeSetupComplete:
		var msg SetupComplete
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid setup_complete", "")
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, badFrame("setup_complete.session_id is required", "session_id")
		}
		return msg, nil
	case TypeAudio:
		var msg AudioFrame
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid audio frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badFrame("audio.data_b64 is required", "data_b64")
		}
		return msg, nil
	case TypeText:
		var msg Text
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid text frame", "")
		}
		return msg, nil
	case TypeTranscript:
		var msg Transcript
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid transcript frame", "")
		}
		switch msg.Role {
		case "user", "agent", "system":
		default:
			return nil, badFrame("transcript.role is invalid", "role")
		}
		return msg, nil
	case TypeTurnComplete:
		var msg TurnComplete
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid turn_complete frame", "")
		}
		return msg, nil
	case TypeFunctionCall:
		var msg FunctionCall
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid function_call frame", "")
		}
		if strings.TrimSpace(msg.Name) == "" {
			return nil, badFrame("function_call.name is required", "name")
		}
		return msg, nil
	case TypeFunctionResult:
		var msg FunctionResult
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid function_result frame", "")
		}
		if strings.TrimSpace(msg.Name) == "" {
			return nil, badFrame("function_result.name is required", "name")
		}
		return msg, nil
	case TypeStartTour:
		var msg StartTour
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid start_tour frame", "")
		}
		if strings.TrimSpace(msg.Tour.Name) == "" {
			return nil, badFrame("start_tour.tour.name is required", "tour.name")
		}
		return msg, nil
	case TypeAsyncTaskStarted:
		var msg AsyncTaskStarted
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid async_task_started frame", "")
		}
		return msg, nil
	case TypeAsyncTaskComplete:
		var msg AsyncTaskComplete
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid async_task_complete frame", "")
		}
		return msg, nil
	case TypeGoAway:
		var msg GoAway
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid go_away frame", "")
		}
		return msg, nil
	case TypeError:
		var msg Error
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid error frame", "")
		}
		return msg, nil
	default:
		return nil, unknownType(typ)
	}
}

// DecodeClientMessage decodes one client->remote frame. The session core
// only encodes these; the decoder exists for the server half and for tests
// that assert on outbound traffic.
func DecodeClientMessage(data []byte) (any, error) {
	typ, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeStart:
		var msg Start
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid start frame", "")
		}
		if strings.TrimSpace(msg.Mode) == "" {
			return nil, badFrame("start.mode is required", "mode")
		}
		return msg, nil
	case TypeAudio:
		var msg AudioFrame
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid audio frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badFrame("audio.data_b64 is required", "data_b64")
		}
		return msg, nil
	case TypeText:
		var msg Text
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid text frame", "")
		}
		if msg.Text == "" {
			return nil, badFrame("text.text is required", "text")
		}
		return msg, nil
	case TypeFunctionResult:
		var msg FunctionResult
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid function_result frame", "")
		}
		if strings.TrimSpace(msg.Name) == "" {
			return nil, badFrame("function_result.name is required", "name")
		}
		return msg, nil
	case TypeEnd:
		var msg End
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid end frame", "")
		}
		return msg, nil
	default:
		return nil, unknownType(typ)
	}
}

func peekType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(data, &envelope); err != nil {
		return "", badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return "", badFrame("missing type", "type")
	}
	return typ, nil
}
