// Package dispatch executes remote-initiated function calls that must run
// in the local runtime (navigation, screen content) and shapes their
// results for the wire.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// HandlerFunc executes one local capability. Handlers are local, fast
// operations; they run synchronously on the session loop.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Registry maps function names to local capability handlers. Execution
// never panics or errors past the dispatch boundary: failures come back as
// a failed result payload for the remote side.
type Registry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger, handlers: make(map[string]HandlerFunc)}
}

func (r *Registry) Register(name string, fn HandlerFunc) {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		panic("dispatch: empty handler registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Names lists the registered capabilities, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named capability. Unknown names and handler failures
// yield `{success:false, error:...}` payloads with ok=false.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result any, ok bool) {
	r.mu.RLock()
	fn := r.handlers[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if fn == nil {
		return Failure("unknown function"), false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("capability panicked", zap.String("function", name), zap.Any("panic", rec))
			result = Failure(fmt.Sprintf("internal error: %v", rec))
			ok = false
		}
	}()

	res, err := fn(ctx, args)
	if err != nil {
		return Failure(err.Error()), false
	}
	return res, true
}

// Failure builds the standard failed-call payload.
func Failure(message string) map[string]any {
	return map[string]any{"success": false, "error": message}
}

// ArgPreview renders a truncated single-line JSON preview of call arguments
// for transcript display.
func ArgPreview(args map[string]any, maxLen int) string {
	if len(args) == 0 {
		return "{}"
	}
	if maxLen <= 0 {
		maxLen = 120
	}
	data, err := sonic.Marshal(args)
	if err != nil {
		return "{…}"
	}
	preview := string(data)
	if len(preview) > maxLen {
		preview = truncate(preview, maxLen) + "…"
	}
	return preview
}

// truncate cuts s down to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
