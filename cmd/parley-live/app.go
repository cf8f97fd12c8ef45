package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/parley-go/parley/internal/logging"
	"github.com/parley-go/parley/internal/prefs"
	"github.com/parley-go/parley/internal/telemetry"
	"github.com/parley-go/parley/pkg/audio"
	"github.com/parley-go/parley/pkg/bridge"
	"github.com/parley-go/parley/pkg/dispatch"
	"github.com/parley-go/parley/pkg/session"
	"github.com/parley-go/parley/pkg/voice/stt"
	"github.com/parley-go/parley/pkg/voice/tts"
)

const (
	captureRateHz  = 16000
	playbackRateHz = 24000
)

type appConfig struct {
	URL           string
	Mode          string
	Model         string
	SystemPrompt  string
	CartesiaKey   string
	PrefsPath     string
	LogLevel      string
	LogFile       string
	MetricsAddr   string
	VisitEndpoint string
}

func runApp(cfg appConfig) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return fmt.Errorf("gateway URL is required (--url or PARLEY_URL)")
	}
	mode := session.Mode(cfg.Mode)
	if mode != session.ModeLive && mode != session.ModeLocal {
		return fmt.Errorf("mode must be live or local, got %q", cfg.Mode)
	}
	if cfg.CartesiaKey == "" {
		cfg.CartesiaKey = os.Getenv("CARTESIA_API_KEY")
	}
	if mode == session.ModeLocal && cfg.CartesiaKey == "" {
		return fmt.Errorf("local mode needs a Cartesia API key")
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = logger.Sync() }()

	store, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		return err
	}

	metrics := telemetry.NewMetrics(nil)
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	device, err := audio.NewMalgoDevice(0)
	if err != nil {
		return fmt.Errorf("init audio backend: %w", err)
	}
	defer func() { _ = device.Close() }()
	capture := audio.NewCapture(device, audio.CaptureConfig{TargetRateHz: captureRateHz}, logger)

	sink, err := audio.NewOtoSink(playbackRateHz, 1)
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	defer func() { _ = sink.Close() }()
	playback := audio.NewScheduler(audio.SchedulerConfig{SampleRateHz: playbackRateHz}, sink, logger)

	host := newTerminalHost()
	registry := dispatch.NewRegistry(logger)
	dispatch.RegisterLocalCapabilities(registry, host, host, host)

	hub := bridge.New[session.State](logger)
	hub.SubscribeEvents(func(e bridge.Event) {
		switch e.Type {
		case bridge.EventTranscript:
			if entry, ok := e.Payload.(session.TranscriptEntry); ok {
				line := fmt.Sprintf("[%s] %s", entry.Role, entry.Text)
				fmt.Println(line)
				host.record(line)
			}
		case bridge.EventConnected:
			fmt.Println("-- connected --")
		case bridge.EventDisconnected:
			fmt.Println("-- disconnected --")
		case bridge.EventError:
			fmt.Printf("!! %v\n", e.Payload)
		case bridge.EventTourStart:
			fmt.Println("-- tour started --")
		}
	})

	deps := session.Dependencies{
		Dialer:   &session.WSDialer{},
		Capture:  capture,
		Playback: playback,
		Registry: registry,
		Bridge:   hub,
		Voices:   store,
		Metrics:  metrics,
		Visitor:  telemetry.NewPageVisitor(cfg.VisitEndpoint, logger),
	}
	if mode == session.ModeLocal {
		deps.STT = sttAdapter{provider: stt.New(stt.Config{APIKey: cfg.CartesiaKey})}
		deps.TTS = ttsAdapter{provider: tts.New(tts.Config{APIKey: cfg.CartesiaKey, SampleRateHz: playbackRateHz})}
	}

	manager, err := session.New(session.Config{
		URL:           cfg.URL,
		Model:         cfg.Model,
		SystemPrompt:  cfg.SystemPrompt,
		CaptureRateHz: captureRateHz,
		Logger:        logger,
	}, deps)
	if err != nil {
		return err
	}
	defer manager.Close()

	manager.Connect(mode)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("commands: /mic toggle, /voice <id>, /say <text>, /quit")
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-sigs:
			fmt.Println("\nshutting down")
			manager.Disconnect()
			return nil
		case line, ok := <-lines:
			if !ok {
				manager.Disconnect()
				return nil
			}
			if done := handleCommand(manager, line); done {
				return nil
			}
		}
	}
}

// handleCommand interprets one stdin line. Returns true to exit.
func handleCommand(manager *session.Manager, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit":
		manager.Disconnect()
		return true
	case line == "/mic":
		manager.ToggleMic()
		fmt.Println("-- mic toggled --")
	case strings.HasPrefix(line, "/voice "):
		manager.SetVoice(strings.TrimSpace(strings.TrimPrefix(line, "/voice ")))
	case strings.HasPrefix(line, "/say "):
		manager.SendText(strings.TrimPrefix(line, "/say "))
	default:
		manager.SendText(line)
	}
	return false
}
