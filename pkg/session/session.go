// Package session owns the socket lifecycle for a voice conversation:
// connect, resume, steady-state routing, and reconnection with backoff.
// All state mutations run on a single goroutine; socket reads, capture
// callbacks, and timers enqueue commands instead of touching state.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/parley-go/parley/pkg/audio"
	"github.com/parley-go/parley/pkg/bridge"
	"github.com/parley-go/parley/pkg/dispatch"
	"github.com/parley-go/parley/pkg/protocol"
)

const (
	defaultReconnectAttempts = 3
	defaultReconnectBase     = 500 * time.Millisecond
	defaultResumeTimeout     = 5 * time.Second
)

// Capture is the microphone pipeline boundary.
type Capture interface {
	Start(onFrame func(pcm []byte)) error
	Stop()
	SetListening(listening bool)
}

// Playback is the speaker pipeline boundary.
type Playback interface {
	Schedule(pcm []byte) time.Time
	Flush()
	SetSpeakingFunc(fn func(bool))
}

// STTStream is one streaming speech-to-text session. Finalize commits the
// current utterance without waiting for silence.
type STTStream interface {
	SendAudio(pcm []byte) error
	Finalize() error
	Transcripts() <-chan string
	Close() error
}

// STTProvider opens speech-to-text streams for the local mode.
type STTProvider interface {
	NewStream(ctx context.Context, sampleRate int) (STTStream, error)
}

// TTSContext is one streaming text-to-speech synthesis context. Flush marks
// the end of the utterance so the synthesizer releases the tail audio.
type TTSContext interface {
	SendText(text string) error
	Flush() error
	Audio() <-chan []byte
	Close() error
}

// TTSProvider opens text-to-speech contexts for the local mode.
type TTSProvider interface {
	NewContext(ctx context.Context, voice string) (TTSContext, error)
}

// VoiceStore persists the chosen voice across process restarts.
type VoiceStore interface {
	Voice() (string, error)
	SetVoice(id string) error
}

// Recorder counts session activity for operational metrics. Implementations
// must be safe for concurrent use.
type Recorder interface {
	FrameSent()
	FrameReceived()
	Reconnect()
	FunctionCall(name string)
}

// PageVisitor is notified out-of-band when local navigation changes the
// visible page. Delivery failures are swallowed by the implementation.
type PageVisitor interface {
	PageVisited(path string)
}

// Config tunes the manager. Zero values get defaults in New.
type Config struct {
	URL               string
	Model             string
	SystemPrompt      string
	CaptureRateHz     int
	ReconnectAttempts int
	ReconnectBase     time.Duration
	ResumeTimeout     time.Duration
	Logger            *zap.Logger
}

// Dependencies are the manager's collaborators. Dialer, Capture, Playback,
// Registry, and Bridge are required; the rest are optional.
type Dependencies struct {
	Dialer   Dialer
	Capture  Capture
	Playback Playback
	Registry *dispatch.Registry
	Bridge   *bridge.Bridge[State]
	Voices   VoiceStore
	STT      STTProvider
	TTS      TTSProvider
	Metrics  Recorder
	Visitor  PageVisitor
}

// Manager is the session state machine. One goroutine (run) owns all
// mutable fields below the cmds channel; everything else posts commands.
type Manager struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger

	now       func() time.Time
	afterFunc func(d time.Duration, fn func()) *time.Timer

	cmds      chan func()
	closed    chan struct{}
	closeOnce sync.Once

	// Speaking level from the playback scheduler. The callback can fire on
	// the run goroutine itself, so it must never post into cmds; it records
	// the level and pings the forwarder instead.
	speakLevel atomic.Bool
	speakPing  chan struct{}

	connMu sync.Mutex
	conn   Conn

	snapMu   sync.RWMutex
	snapshot State

	// Owned by the run goroutine.
	state          State
	epoch          uint64
	attempt        int
	reconnectTimer *time.Timer
	resumeTimer    *time.Timer
	disconnecting  bool
	stt            STTStream
	tts            TTSContext
	pipeCancel     context.CancelFunc
	asyncTasks     map[string]string
}

func New(cfg Config, deps Dependencies) (*Manager, error) {
	if deps.Dialer == nil || deps.Capture == nil || deps.Playback == nil {
		return nil, fmt.Errorf("session: dialer, capture, and playback are required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("session: function registry is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("session: bridge is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = defaultReconnectAttempts
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = defaultReconnectBase
	}
	if cfg.ResumeTimeout <= 0 {
		cfg.ResumeTimeout = defaultResumeTimeout
	}
	if cfg.CaptureRateHz <= 0 {
		cfg.CaptureRateHz = 16000
	}

	m := &Manager{
		cfg:        cfg,
		deps:       deps,
		logger:     cfg.Logger,
		now:        time.Now,
		afterFunc:  time.AfterFunc,
		cmds:       make(chan func(), 64),
		closed:     make(chan struct{}),
		speakPing:  make(chan struct{}, 1),
		asyncTasks: make(map[string]string),
	}
	if deps.Voices != nil {
		if voice, err := deps.Voices.Voice(); err == nil {
			m.state.VoiceID = voice
		}
	}
	deps.Playback.SetSpeakingFunc(func(on bool) {
		m.speakLevel.Store(on)
		select {
		case m.speakPing <- struct{}{}:
		default:
		}
	})
	m.storeSnapshot()
	go m.run()
	go m.forwardSpeaking()
	return m, nil
}

// forwardSpeaking relays the coalesced speaking level into the command loop.
// The level is re-read inside the command, so collapsed pings still apply the
// latest value.
func (m *Manager) forwardSpeaking() {
	for {
		select {
		case <-m.closed:
			return
		case <-m.speakPing:
			m.do(func() {
				on := m.speakLevel.Load()
				if m.state.Speaking == on {
					return
				}
				m.state.Speaking = on
				m.publish()
			})
		}
	}
}

// Close stops the command loop. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.Disconnect()
		m.do(func() { close(m.closed) })
	})
}

func (m *Manager) run() {
	for {
		select {
		case <-m.closed:
			return
		case cmd := <-m.cmds:
			cmd()
		}
	}
}

// do posts a command to the run goroutine. Posting never blocks the caller
// indefinitely: the queue is large relative to command rates, and a full
// queue means the consumer died, which only happens at Close.
func (m *Manager) do(cmd func()) {
	select {
	case m.cmds <- cmd:
	case <-m.closed:
	}
}

// Snapshot returns the latest published state.
func (m *Manager) Snapshot() State {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snapshot
}

// Connect opens a fresh session. Transient state (transcript, counters,
// error, resume token) resets; the persisted voice preference survives.
func (m *Manager) Connect(mode Mode) {
	m.do(func() {
		if m.state.Phase != PhaseDisconnected {
			m.logger.Warn("connect ignored", zap.String("phase", m.state.Phase.String()))
			return
		}
		voice := m.state.VoiceID
		m.state = State{Mode: mode, VoiceID: voice, Phase: PhaseConnecting}
		m.attempt = 0
		m.disconnecting = false
		m.asyncTasks = make(map[string]string)
		m.publish()
		m.dial()
	})
}

// Disconnect tears the session down from any state. Idempotent: a second
// call on a disconnected manager changes nothing.
func (m *Manager) Disconnect() {
	m.do(m.disconnectLocked)
}

func (m *Manager) disconnectLocked() {
	m.disconnecting = true
	m.epoch++
	m.stopTimers()
	m.stopPipelines()

	conn := m.swapConn(nil)
	if conn != nil {
		if data, err := protocol.Encode(protocol.NewEnd()); err == nil {
			_ = conn.WriteMessage(data)
		}
		_ = conn.Close()
	}

	wasConnected := m.state.Connected || m.state.Phase != PhaseDisconnected
	m.state.Phase = PhaseDisconnected
	m.state.Connected = false
	m.state.Reconnecting = false
	m.state.Listening = false
	m.state.Speaking = false
	m.state.Mode = ModeNone
	m.state.SessionID = ""
	m.state.ResumeToken = ""
	m.state.Tour = nil
	m.disconnecting = false
	if wasConnected {
		m.publish()
		m.deps.Bridge.PublishEvent(bridge.EventDisconnected, nil)
	}
}

// ToggleMic mutes or unmutes capture. Only meaningful while active.
func (m *Manager) ToggleMic() {
	m.do(func() {
		if m.state.Phase != PhaseActive {
			return
		}
		m.state.Listening = !m.state.Listening
		m.deps.Capture.SetListening(m.state.Listening)
		if !m.state.Listening && m.stt != nil {
			// Commit whatever was said before the mute instead of letting
			// it hang until the next unmuted utterance.
			if err := m.stt.Finalize(); err != nil {
				m.logger.Warn("stt finalize failed", zap.Error(err))
			}
		}
		m.publish()
	})
}

// SetVoice records and persists the preferred voice.
func (m *Manager) SetVoice(id string) {
	m.do(func() {
		m.state.VoiceID = id
		if m.deps.Voices != nil {
			if err := m.deps.Voices.SetVoice(id); err != nil {
				m.logger.Warn("persist voice", zap.Error(err))
			}
		}
		m.publish()
	})
}

// SendText relays a typed user utterance. The remote transcript envelope is
// authoritative and may supersede this local echo.
func (m *Manager) SendText(text string) {
	m.do(func() {
		if m.state.Phase != PhaseActive {
			return
		}
		m.appendTranscriptLine(RoleUser, text)
		if err := m.send(protocol.NewText(text)); err != nil {
			m.logger.Warn("send text", zap.Error(err))
		}
		m.publish()
	})
}

// ClearTour drops the held tour and notifies subscribers.
func (m *Manager) ClearTour() {
	m.do(func() {
		if m.state.Tour == nil {
			return
		}
		m.state.Tour = nil
		m.publish()
		m.deps.Bridge.PublishEvent(bridge.EventTourEnd, nil)
	})
}

// dial opens the socket asynchronously and posts the result back.
func (m *Manager) dial() {
	epoch := m.epoch
	go func() {
		conn, err := m.deps.Dialer.Dial(context.Background(), m.cfg.URL)
		m.do(func() { m.onDialed(epoch, conn, err) })
	}()
}

func (m *Manager) onDialed(epoch uint64, conn Conn, err error) {
	if epoch != m.epoch {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.logger.Warn("dial failed", zap.Error(err))
		m.onTransportDown(epoch, err)
		return
	}
	m.swapConn(conn)
	m.sendStart(m.state.ResumeToken)
	go m.readLoop(epoch, conn)
}

// sendStart emits the start envelope. A presented resume token arms the
// stale-token timer: if no setup confirmation arrives in time the token is
// cleared and a fresh start goes out on the same socket.
func (m *Manager) sendStart(token string) {
	if m.state.Mode != ModeLive {
		token = ""
	}
	start := protocol.NewStart(string(m.state.Mode), m.state.VoiceID, m.cfg.Model, m.cfg.SystemPrompt, token)
	if err := m.send(start); err != nil {
		m.logger.Warn("send start", zap.Error(err))
		return
	}
	if token == "" {
		return
	}
	epoch := m.epoch
	m.resumeTimer = m.afterFunc(m.cfg.ResumeTimeout, func() {
		m.do(func() {
			if epoch != m.epoch || m.state.Connected {
				return
			}
			m.logger.Info("resume token stale, starting fresh")
			m.state.ResumeToken = ""
			m.publish()
			m.sendStart("")
		})
	})
}

func (m *Manager) readLoop(epoch uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.do(func() { m.onTransportDown(epoch, err) })
			return
		}
		msg, derr := protocol.DecodeServerMessage(data)
		if derr != nil {
			m.logger.Debug("dropped frame", zap.Error(derr))
			continue
		}
		m.do(func() {
			if epoch != m.epoch {
				return
			}
			m.handleMessage(msg)
		})
	}
}

func (m *Manager) handleMessage(msg any) {
	switch env := msg.(type) {
	case protocol.SetupComplete:
		m.onSetupComplete(env)
	case protocol.AudioFrame:
		if m.deps.Metrics != nil {
			m.deps.Metrics.FrameReceived()
		}
		pcm, err := env.PCM()
		if err != nil {
			m.logger.Debug("bad audio payload", zap.Error(err))
			return
		}
		m.deps.Playback.Schedule(pcm)
	case protocol.Text:
		m.onAgentText(env.Text)
	case protocol.Transcript:
		m.appendTranscriptLine(Role(env.Role), env.Text)
		m.publish()
		m.deps.Bridge.PublishEvent(bridge.EventTranscript, TranscriptEntry{
			Role: Role(env.Role), Text: env.Text, Timestamp: m.now(),
		})
	case protocol.TurnComplete:
		m.state.TurnCount++
		if m.tts != nil {
			if err := m.tts.Flush(); err != nil {
				m.logger.Warn("tts flush failed", zap.Error(err))
			}
		}
		m.publish()
		m.deps.Bridge.PublishEvent(bridge.EventTurnComplete, env.Turn)
	case protocol.FunctionCall:
		m.onFunctionCall(env)
	case protocol.FunctionResult:
		m.onRemoteFunctionResult(env)
	case protocol.StartTour:
		m.state.Tour = &env.Tour
		m.appendTranscriptLine(RoleSystem, fmt.Sprintf("starting tour %q", env.Tour.Name))
		m.publish()
		m.deps.Bridge.PublishEvent(bridge.EventTourStart, env)
	case protocol.AsyncTaskStarted:
		if len(m.asyncTasks) < maxAsyncTasks {
			m.asyncTasks[env.TaskID] = env.Function
		}
		m.appendTranscriptLine(RoleSystem, fmt.Sprintf("started background task %s", env.Function))
		m.publish()
		m.deps.Bridge.PublishEvent(bridge.EventAsyncTaskStarted, env)
	case protocol.AsyncTaskComplete:
		delete(m.asyncTasks, env.TaskID)
		m.appendTranscriptLine(RoleSystem, fmt.Sprintf("background task %s finished", env.Function))
		m.publish()
		m.deps.Bridge.PublishEvent(bridge.EventAsyncTaskComplete, env)
	case protocol.GoAway:
		m.onGoAway(env)
	case protocol.Error:
		m.state.Err = env.Message
		m.appendTranscriptLine(RoleSystem, "agent error: "+env.Message)
		m.publish()
		m.deps.Bridge.PublishEvent(bridge.EventError, env.Message)
	}
}

func (m *Manager) onSetupComplete(env protocol.SetupComplete) {
	m.stopResumeTimer()
	m.attempt = 0
	m.state.Phase = PhaseActive
	m.state.Connected = true
	m.state.Reconnecting = false
	m.state.SessionID = env.SessionID
	m.state.Err = ""
	if env.Resumed {
		m.appendTranscriptLine(RoleSystem, "resumed previous session")
	} else {
		m.appendTranscriptLine(RoleSystem, "started fresh session")
	}
	m.startInputPipeline()
	m.publish()
	m.deps.Bridge.PublishEvent(bridge.EventConnected, env.SessionID)
}

// startInputPipeline begins capture, and for the local mode the STT/TTS
// streams. Device failure leaves the session up with the mic off. The
// frame callback runs on the capture drain goroutine and must not touch
// manager state, so it is bound to its route here.
func (m *Manager) startInputPipeline() {
	onFrame := func(pcm []byte) {
		if err := m.send(protocol.NewAudioFrame(pcm)); err != nil {
			m.logger.Debug("send frame", zap.Error(err))
			return
		}
		if m.deps.Metrics != nil {
			m.deps.Metrics.FrameSent()
		}
	}
	if m.state.Mode == ModeLocal {
		stream, err := m.startLocalVoice()
		if err != nil {
			m.logger.Warn("local voice pipeline", zap.Error(err))
			m.appendTranscriptLine(RoleSystem, "speech recognition unavailable: "+err.Error())
			m.state.Listening = false
			return
		}
		onFrame = func(pcm []byte) {
			if err := stream.SendAudio(pcm); err != nil {
				m.logger.Debug("stt send", zap.Error(err))
			}
		}
	}
	if err := m.deps.Capture.Start(onFrame); err != nil {
		m.logger.Warn("capture start", zap.Error(err))
		m.appendTranscriptLine(RoleSystem, "microphone unavailable: "+err.Error())
		m.state.Listening = false
		m.stopLocalVoice()
		return
	}
	m.state.Listening = true
	m.deps.Capture.SetListening(true)
}

func (m *Manager) startLocalVoice() (STTStream, error) {
	if m.deps.STT == nil || m.deps.TTS == nil {
		return nil, fmt.Errorf("no speech providers configured")
	}
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := m.deps.STT.NewStream(ctx, m.cfg.CaptureRateHz)
	if err != nil {
		cancel()
		return nil, err
	}
	synth, err := m.deps.TTS.NewContext(ctx, m.state.VoiceID)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, err
	}
	m.stt = stream
	m.tts = synth
	m.pipeCancel = cancel

	go func() {
		for text := range stream.Transcripts() {
			utterance := text
			m.do(func() {
				if m.state.Phase != PhaseActive {
					return
				}
				m.appendTranscriptLine(RoleUser, utterance)
				if err := m.send(protocol.NewText(utterance)); err != nil {
					m.logger.Warn("send transcript", zap.Error(err))
				}
				m.publish()
			})
		}
	}()
	go func() {
		for pcm := range synth.Audio() {
			m.deps.Playback.Schedule(pcm)
		}
	}()
	return stream, nil
}

func (m *Manager) stopLocalVoice() {
	if m.stt != nil {
		_ = m.stt.Close()
		m.stt = nil
	}
	if m.tts != nil {
		_ = m.tts.Close()
		m.tts = nil
	}
	if m.pipeCancel != nil {
		m.pipeCancel()
		m.pipeCancel = nil
	}
}

// onAgentText handles an agent utterance delivered as text. In local mode
// it is synthesized; in both modes it lands in the transcript.
func (m *Manager) onAgentText(text string) {
	if m.state.Mode == ModeLocal && m.tts != nil {
		if err := m.tts.SendText(text); err != nil {
			m.logger.Debug("tts send", zap.Error(err))
		}
	}
	m.appendTranscriptLine(RoleAgent, text)
	m.publish()
	m.deps.Bridge.PublishEvent(bridge.EventTranscript, TranscriptEntry{
		Role: RoleAgent, Text: text, Timestamp: m.now(),
	})
}

func (m *Manager) onFunctionCall(call protocol.FunctionCall) {
	m.state.FunctionCount++
	if m.deps.Metrics != nil {
		m.deps.Metrics.FunctionCall(call.Name)
	}
	entry := FunctionLogEntry{
		Name:           call.Name,
		Args:           call.Args,
		CallID:         call.CallID,
		LocallyHandled: call.LocallyHandled,
		Timestamp:      m.now(),
		Status:         CallPending,
	}
	m.state.FunctionLog = appendFunctionLog(m.state.FunctionLog, entry)
	m.appendTranscriptLine(RoleSystem,
		fmt.Sprintf("function %s(%s)", call.Name, dispatch.ArgPreview(call.Args, 120)))

	if !call.LocallyHandled {
		m.publish()
		return
	}

	result, ok := m.deps.Registry.Execute(context.Background(), call.Name, call.Args)
	status := CallSuccess
	if !ok {
		status = CallError
	}
	m.state.FunctionLog = resolveFunctionLog(m.state.FunctionLog, call.Name, call.CallID, status, result)
	if err := m.send(protocol.NewFunctionResult(call.Name, result, call.CallID)); err != nil {
		m.logger.Warn("send function result", zap.Error(err))
	}
	if call.Name == "navigate" && ok && m.deps.Visitor != nil {
		if nav, isNav := result.(dispatch.NavigateResult); isNav && nav.Success {
			m.deps.Visitor.PageVisited(nav.ResolvedPath)
		}
	}
	m.publish()
	m.deps.Bridge.PublishEvent(bridge.EventFunctionResult, m.state.FunctionLog[len(m.state.FunctionLog)-1])
}

// onRemoteFunctionResult resolves the log entry for a remotely-executed
// call. The result's own success indicator decides the terminal status.
func (m *Manager) onRemoteFunctionResult(env protocol.FunctionResult) {
	status := CallSuccess
	if payload, ok := env.Result.(map[string]any); ok {
		if success, has := payload["success"].(bool); has && !success {
			status = CallError
		}
	}
	m.state.FunctionLog = resolveFunctionLog(m.state.FunctionLog, env.Name, env.CallID, status, env.Result)
	m.publish()
	m.deps.Bridge.PublishEvent(bridge.EventFunctionResult, env)
}

// onGoAway primes the next reconnect with a fresh token. The remote side
// closes the socket shortly after; the unexpected-close path takes over.
func (m *Manager) onGoAway(env protocol.GoAway) {
	if env.ResumeToken != "" {
		m.state.ResumeToken = env.ResumeToken
	}
	m.state.Reconnecting = true
	m.appendTranscriptLine(RoleSystem, "connection is migrating, reconnecting shortly")
	m.publish()
}

// onTransportDown handles dial failures and socket closures.
func (m *Manager) onTransportDown(epoch uint64, err error) {
	if epoch != m.epoch || m.disconnecting {
		return
	}
	m.epoch++
	m.stopResumeTimer()
	m.stopPipelines()
	conn := m.swapConn(nil)
	if conn != nil {
		_ = conn.Close()
	}

	intendsToLive := m.state.Phase == PhaseActive || m.state.Phase == PhaseReconnecting || m.state.Reconnecting
	m.state.Connected = false
	m.state.Listening = false

	if !intendsToLive {
		m.state.Phase = PhaseDisconnected
		m.state.Reconnecting = false
		if err != nil {
			m.state.Err = err.Error()
		}
		m.publish()
		m.deps.Bridge.PublishEvent(bridge.EventDisconnected, nil)
		return
	}

	m.state.Phase = PhaseReconnecting
	m.state.Reconnecting = true
	m.scheduleReconnect()
	m.publish()
}

// scheduleReconnect arms the next backoff attempt or gives up after the
// attempt limit.
func (m *Manager) scheduleReconnect() {
	if m.attempt >= m.cfg.ReconnectAttempts {
		m.state.Phase = PhaseDisconnected
		m.state.Reconnecting = false
		m.state.ResumeToken = ""
		m.state.Err = "connection lost"
		m.appendTranscriptLine(RoleSystem, "reconnect failed, reconnect manually to continue")
		m.deps.Bridge.PublishEvent(bridge.EventDisconnected, nil)
		return
	}
	delay := m.cfg.ReconnectBase * (1 << m.attempt)
	m.attempt++
	if m.deps.Metrics != nil {
		m.deps.Metrics.Reconnect()
	}
	m.logger.Info("scheduling reconnect",
		zap.Int("attempt", m.attempt), zap.Duration("delay", delay))
	epoch := m.epoch
	m.reconnectTimer = m.afterFunc(delay, func() {
		m.do(func() {
			if epoch != m.epoch || m.state.Phase != PhaseReconnecting {
				return
			}
			m.dial()
		})
	})
}

func (m *Manager) stopPipelines() {
	m.deps.Capture.SetListening(false)
	m.deps.Capture.Stop()
	m.deps.Playback.Flush()
	m.stopLocalVoice()
}

func (m *Manager) stopTimers() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopResumeTimer()
}

func (m *Manager) stopResumeTimer() {
	if m.resumeTimer != nil {
		m.resumeTimer.Stop()
		m.resumeTimer = nil
	}
}

func (m *Manager) appendTranscriptLine(role Role, text string) {
	m.state.Transcript = appendTranscript(m.state.Transcript, TranscriptEntry{
		Role: role, Text: text, Timestamp: m.now(),
	})
}

// send serializes and writes one envelope. Safe from any goroutine.
func (m *Manager) send(v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	m.connMu.Lock()
	conn := m.conn
	m.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.WriteMessage(data)
}

func (m *Manager) swapConn(conn Conn) Conn {
	m.connMu.Lock()
	prev := m.conn
	m.conn = conn
	m.connMu.Unlock()
	return prev
}

// publish stores the snapshot and fans it out to subscribers.
func (m *Manager) publish() {
	m.storeSnapshot()
	m.deps.Bridge.PublishState(m.Snapshot())
}

func (m *Manager) storeSnapshot() {
	m.snapMu.Lock()
	m.snapshot = m.state
	m.snapMu.Unlock()
}

var _ Capture = (*audio.Capture)(nil)
var _ Playback = (*audio.Scheduler)(nil)
