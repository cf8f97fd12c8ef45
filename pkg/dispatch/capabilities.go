package dispatch

import (
	"context"
	"fmt"
)

// Bounded size for read_page_content payloads; on-screen snapshots can be
// arbitrarily large and the remote side only needs enough to reason about.
const maxContentChars = 8192

// NavigateResult is the navigation collaborator's answer.
type NavigateResult struct {
	Success      bool   `json:"success"`
	ResolvedPath string `json:"resolved_path,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ContentSnapshot is the visible-content collaborator's answer.
type ContentSnapshot struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Navigator drives and reports the host application's screen.
type Navigator interface {
	Navigate(path string) NavigateResult
	CurrentPath() string
}

// ContentReader snapshots what is currently visible on screen.
type ContentReader interface {
	ReadVisible() ContentSnapshot
}

// WorkspaceReporter describes the user's current workspace context.
type WorkspaceReporter interface {
	WorkspaceContext() map[string]any
}

// RegisterLocalCapabilities wires the standard local capability set against
// the host collaborators. Nil collaborators leave their capability
// unregistered so calls to it fail as unknown rather than crashing.
func RegisterLocalCapabilities(r *Registry, nav Navigator, reader ContentReader, workspace WorkspaceReporter) {
	if nav != nil {
		r.Register("navigate", func(_ context.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			if path == "" {
				return nil, fmt.Errorf("missing path argument")
			}
			return nav.Navigate(path), nil
		})
		r.Register("get_current_page", func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{"path": nav.CurrentPath()}, nil
		})
	}
	if workspace != nil {
		r.Register("get_workspace_context", func(_ context.Context, _ map[string]any) (any, error) {
			return workspace.WorkspaceContext(), nil
		})
	}
	if reader != nil {
		r.Register("read_page_content", func(_ context.Context, _ map[string]any) (any, error) {
			snapshot := reader.ReadVisible()
			snapshot.Content = truncate(snapshot.Content, maxContentChars)
			return snapshot, nil
		})
	}
}
