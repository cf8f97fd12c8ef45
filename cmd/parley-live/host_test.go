package main

import (
	"strings"
	"testing"
)

func TestTerminalHostNavigation(t *testing.T) {
	host := newTerminalHost()

	if got := host.CurrentPath(); got != "/home" {
		t.Fatalf("initial path = %q, want /home", got)
	}

	res := host.Navigate("chat")
	if !res.Success || res.ResolvedPath != "/chat" {
		t.Fatalf("navigate = %#v", res)
	}
	if got := host.CurrentPath(); got != "/chat" {
		t.Fatalf("path after navigate = %q, want /chat", got)
	}

	// Leading slashes and whitespace are tolerated.
	res = host.Navigate(" /settings ")
	if !res.Success || res.ResolvedPath != "/settings" {
		t.Fatalf("navigate = %#v", res)
	}

	res = host.Navigate("nowhere")
	if res.Success {
		t.Fatal("expected failure for unknown page")
	}
	if got := host.CurrentPath(); got != "/settings" {
		t.Fatalf("failed navigate moved the page: %q", got)
	}
}

func TestTerminalHostContentTail(t *testing.T) {
	host := newTerminalHost()
	for i := 0; i < 250; i++ {
		host.record("line")
	}
	host.record("newest")

	snapshot := host.ReadVisible()
	if !snapshot.Success {
		t.Fatal("expected success")
	}
	lines := strings.Split(snapshot.Content, "\n")
	if len(lines) != 200 {
		t.Fatalf("kept %d lines, want 200", len(lines))
	}
	if lines[len(lines)-1] != "newest" {
		t.Fatalf("last line = %q, want newest", lines[len(lines)-1])
	}
}

func TestWorkspaceContext(t *testing.T) {
	host := newTerminalHost()
	ctx := host.WorkspaceContext()
	if ctx["host"] != "terminal" {
		t.Fatalf("host = %v", ctx["host"])
	}
	if _, ok := ctx["working_dir"]; !ok {
		t.Fatal("missing working_dir")
	}
}
