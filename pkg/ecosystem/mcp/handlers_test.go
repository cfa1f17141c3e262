package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "menus.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validDoc = `
version: stanza/v1
blocks:
  main:
    "Banner": "welcome"
    "Notice": { do: text, body: "running" }
`

func TestHandleValidate_MissingPath(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{}

	result, err := HandleValidate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for missing path")
	}
}

func TestHandleValidate_ValidDocument(t *testing.T) {
	path := writeDoc(t, validDoc)
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"path": path}

	result, err := HandleValidate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Errorf("expected success: %+v", result.Content)
	}
}

func TestHandleOutline(t *testing.T) {
	path := writeDoc(t, validDoc)
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"path": path}

	result, err := HandleOutline(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("outline failed: %+v", result.Content)
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", result.Content[0])
	}
	for _, want := range []string{"main", "Banner", "Notice", "directive"} {
		if !strings.Contains(text.Text, want) {
			t.Errorf("outline missing %q:\n%s", want, text.Text)
		}
	}
}

func TestHandleRun(t *testing.T) {
	path := writeDoc(t, validDoc)
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"path": path}

	result, err := HandleRun(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("run failed: %+v", result.Content)
	}
	text := result.Content[0].(mcp.TextContent)
	for _, want := range []string{`"state": "stopped"`, "welcome", "running"} {
		if !strings.Contains(text.Text, want) {
			t.Errorf("run response missing %q:\n%s", want, text.Text)
		}
	}
}

func TestHandleSchema(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{}

	result, err := HandleSchema(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Error("expected success for schema export")
	}
	if len(result.Content) == 0 {
		t.Error("expected schema content")
	}
}
