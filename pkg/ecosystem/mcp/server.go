// Package mcp exposes stanza documents to AI agents over the Model
// Context Protocol: validate, outline and run tools plus schema
// export.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with stanza tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"stanza",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("stanza/validate",
			mcp.WithDescription("Validate a stanza document YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the document YAML file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("stanza/outline",
			mcp.WithDescription("List a document's blocks and steps with their kinds and modifiers"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the document YAML file")),
		),
		HandleOutline,
	)

	s.AddTool(
		mcp.NewTool("stanza/run",
			mcp.WithDescription("Run a document block headlessly (no interactive input; prompts abort)"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the document YAML file")),
			mcp.WithString("entry", mcp.Description("Entry block (default main)")),
		),
		HandleRun,
	)

	s.AddTool(
		mcp.NewTool("stanza/schema",
			mcp.WithDescription("Export the stanza document JSON Schema"),
		),
		HandleSchema,
	)

	return s
}
