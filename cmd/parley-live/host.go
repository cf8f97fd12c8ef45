package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/parley-go/parley/pkg/dispatch"
	"github.com/parley-go/parley/pkg/session"
	"github.com/parley-go/parley/pkg/voice/stt"
	"github.com/parley-go/parley/pkg/voice/tts"
)

// terminalHost is the local runtime the agent's function calls operate on.
// Pages are a flat virtual set; content is whatever the session has printed
// to the screen so far.
type terminalHost struct {
	mu      sync.Mutex
	current string
	pages   map[string]bool
	lines   []string
}

func newTerminalHost() *terminalHost {
	return &terminalHost{
		current: "home",
		pages:   map[string]bool{"home": true, "chat": true, "settings": true, "help": true},
	}
}

func (h *terminalHost) Navigate(path string) dispatch.NavigateResult {
	path = strings.Trim(strings.TrimSpace(path), "/")
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.pages[path] {
		return dispatch.NavigateResult{Success: false, Error: fmt.Sprintf("no such page %q", path)}
	}
	h.current = path
	fmt.Printf("  >> navigated to /%s\n", path)
	return dispatch.NavigateResult{Success: true, ResolvedPath: "/" + path}
}

func (h *terminalHost) CurrentPath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return "/" + h.current
}

func (h *terminalHost) ReadVisible() dispatch.ContentSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return dispatch.ContentSnapshot{
		Success: true,
		Path:    "/" + h.current,
		Content: strings.Join(h.lines, "\n"),
	}
}

func (h *terminalHost) WorkspaceContext() map[string]any {
	wd, _ := os.Getwd()
	return map[string]any{
		"working_dir": wd,
		"os":          runtime.GOOS,
		"host":        "terminal",
	}
}

// record keeps a bounded tail of printed lines for read_page_content.
func (h *terminalHost) record(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
	if len(h.lines) > 200 {
		h.lines = h.lines[len(h.lines)-200:]
	}
}

// sttAdapter bridges the concrete provider to the session's interface.
type sttAdapter struct {
	provider *stt.Provider
}

func (a sttAdapter) NewStream(ctx context.Context, sampleRate int) (session.STTStream, error) {
	return a.provider.NewStream(ctx, sampleRate)
}

type ttsAdapter struct {
	provider *tts.Provider
}

func (a ttsAdapter) NewContext(ctx context.Context, voice string) (session.TTSContext, error) {
	return a.provider.NewContext(ctx, voice)
}
