package session

import (
	"time"

	"github.com/parley-go/parley/pkg/protocol"
)

// Mode selects the remote-agent backend a session talks to.
type Mode string

const (
	// ModeNone is the disconnected baseline.
	ModeNone Mode = ""
	// ModeLive streams raw audio both ways and supports resumption.
	ModeLive Mode = "live"
	// ModeLocal runs speech-to-text and text-to-speech on the client and
	// exchanges text over the wire.
	ModeLocal Mode = "local"
)

// Phase is the connection lifecycle state.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseActive
	PhaseReconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

const (
	maxTranscript  = 50
	maxFunctionLog = 30
	maxAsyncTasks  = 32
)

// Role tags a transcript line's origin.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// TranscriptEntry is one immutable transcript line.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CallStatus tracks a function call from arrival to resolution.
type CallStatus string

const (
	CallPending CallStatus = "pending"
	CallSuccess CallStatus = "success"
	CallError   CallStatus = "error"
)

// FunctionLogEntry records one remote-initiated function call. Created
// pending and transitioned exactly once to a terminal status.
type FunctionLogEntry struct {
	Name           string         `json:"name"`
	Args           map[string]any `json:"args,omitempty"`
	CallID         string         `json:"call_id,omitempty"`
	LocallyHandled bool           `json:"locally_handled"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         CallStatus     `json:"status"`
	Result         any            `json:"result,omitempty"`
}

// State is an immutable snapshot of the session. The manager replaces the
// whole value on every mutation so readers never observe a partial update.
type State struct {
	Phase         Phase              `json:"phase"`
	Connected     bool               `json:"connected"`
	Reconnecting  bool               `json:"reconnecting"`
	Mode          Mode               `json:"mode"`
	VoiceID       string             `json:"voice_id"`
	Speaking      bool               `json:"speaking"`
	Listening     bool               `json:"listening"`
	TurnCount     int                `json:"turn_count"`
	FunctionCount int                `json:"function_count"`
	SessionID     string             `json:"session_id,omitempty"`
	ResumeToken   string             `json:"resume_token,omitempty"`
	Transcript    []TranscriptEntry  `json:"transcript"`
	FunctionLog   []FunctionLogEntry `json:"function_log"`
	Tour          *protocol.Tour     `json:"tour,omitempty"`
	Err           string             `json:"error,omitempty"`
}

// appendTranscript returns a new bounded slice with the entry appended.
// The input slice is never mutated.
func appendTranscript(entries []TranscriptEntry, entry TranscriptEntry) []TranscriptEntry {
	out := make([]TranscriptEntry, 0, len(entries)+1)
	out = append(out, entries...)
	out = append(out, entry)
	if len(out) > maxTranscript {
		out = out[len(out)-maxTranscript:]
	}
	return out
}

// appendFunctionLog returns a new bounded slice with the entry appended.
func appendFunctionLog(entries []FunctionLogEntry, entry FunctionLogEntry) []FunctionLogEntry {
	out := make([]FunctionLogEntry, 0, len(entries)+1)
	out = append(out, entries...)
	out = append(out, entry)
	if len(out) > maxFunctionLog {
		out = out[len(out)-maxFunctionLog:]
	}
	return out
}

// resolveFunctionLog returns a new slice with the matching pending entry
// moved to a terminal status. The call ID is the correlation key; matching
// falls back to name plus pending status only when the ID is absent.
// Resolution applies to at most one entry.
func resolveFunctionLog(entries []FunctionLogEntry, name, callID string, status CallStatus, result any) []FunctionLogEntry {
	idx := -1
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Status != CallPending {
			continue
		}
		if callID != "" {
			if entries[i].CallID == callID {
				idx = i
				break
			}
			continue
		}
		if entries[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return entries
	}
	out := make([]FunctionLogEntry, len(entries))
	copy(out, entries)
	out[idx].Status = status
	out[idx].Result = result
	return out
}
