package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/stanza/pkg/display"
	"github.com/ormasoftchile/stanza/pkg/engine"
	"github.com/ormasoftchile/stanza/pkg/schema"
)

// HandleValidate implements the stanza/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	doc, errs := schema.ValidateFile(path)
	if hasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d blocks)", path, len(doc.Blocks))), nil
}

// HandleOutline implements the stanza/outline MCP tool.
func HandleOutline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	doc, errs := schema.ValidateFile(path)
	if hasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}

	outline := make([]map[string]any, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		outline = append(outline, outlineBlock(b))
	}
	data, _ := json.MarshalIndent(outline, "", "  ")
	return textResult(string(data)), nil
}

func outlineBlock(b *schema.Block) map[string]any {
	steps := make([]map[string]any, 0, len(b.Steps))
	for _, s := range b.Steps {
		clean, mods := schema.ParseKey(s.Key)
		entry := map[string]any{
			"key":  clean,
			"kind": s.Value.Kind.String(),
		}
		var flags []string
		if mods.BounceBack {
			flags = append(flags, "bounce_back")
		}
		if mods.Anchor {
			flags = append(flags, "anchor")
		}
		if mods.Menu {
			flags = append(flags, "menu")
		}
		if mods.Required {
			flags = append(flags, "required")
		}
		if len(flags) > 0 {
			entry["modifiers"] = flags
		}
		if s.Value.Kind == schema.DirectiveValue {
			entry["do"] = s.Value.Directive.Do
			entry["target"] = s.Value.Directive.Target
		}
		if s.Value.Kind == schema.BlockValue {
			entry["steps"] = len(s.Value.Block.Steps)
		}
		steps = append(steps, entry)
	}
	return map[string]any{"block": b.Name, "steps": steps}
}

// HandleRun implements the stanza/run MCP tool. The run is headless:
// no input collaborator is wired, so prompts and denials abandon
// their key instead of hanging the agent.
func HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	entry, _ := args["entry"].(string)
	if entry == "" {
		entry = "main"
	}

	doc, errs := schema.ValidateFile(path)
	if hasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}

	vars := make(map[string]string)
	if rawVars, ok := args["vars"].(map[string]any); ok {
		for k, v := range rawVars {
			vars[k] = fmt.Sprint(v)
		}
	}

	capture := &captureDisplay{}
	eng := engine.New(engine.Config{
		Document:  doc,
		Display:   capture,
		Scheduler: engine.Blocking,
		Vars:      vars,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	out := eng.Run(ctx, entry)

	response := map[string]any{
		"run_id": out.RunID,
		"state":  out.State.String(),
		"steps":  eng.Results().Len(),
	}
	if out.Err != nil {
		response["error"] = out.Err.Error()
	}
	if len(capture.lines) > 0 {
		response["output"] = strings.Join(capture.lines, "\n")
	}
	data, _ := json.MarshalIndent(response, "", "  ")

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: out.State == engine.Errored,
	}, nil
}

// HandleSchema implements the stanza/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// captureDisplay collects text output for the tool response.
type captureDisplay struct {
	lines []string
}

func (c *captureDisplay) Emit(e display.Event) {
	switch ev := e.(type) {
	case display.Text:
		c.lines = append(c.lines, ev.Body)
	case display.Header:
		c.lines = append(c.lines, "# "+ev.Title)
	case display.ErrorNotice:
		c.lines = append(c.lines, fmt.Sprintf("! %s: %s", ev.Header, ev.Reason))
	}
}

func hasErrors(errs []*schema.ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
