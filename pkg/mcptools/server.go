// Package mcptools exposes the editor state engine as MCP tools so assistants
// can build, read and debug share tokens.
package mcptools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/goliatone/go-editorstate"
)

// NewServer creates an MCP server with the editorstate tools registered. A
// nil engine selects the process-wide default engine.
func NewServer(version string, engine *editorstate.Engine) *server.MCPServer {
	h := NewHandlers(engine)
	s := server.NewMCPServer(
		"editorstate",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("editorstate/serialize",
			mcp.WithDescription("Encode an editor state JSON object into a share token"),
			mcp.WithString("state", mcp.Required(), mcp.Description("Editor state as a JSON object; missing fields use defaults")),
			mcp.WithString("format", mcp.Description("Token format: pako (default) or base64")),
		),
		h.HandleSerialize,
	)

	s.AddTool(
		mcp.NewTool("editorstate/deserialize",
			mcp.WithDescription("Decode a share token into its raw record without repairing it"),
			mcp.WithString("token", mcp.Required(), mcp.Description("Share token, for example pako:eNp...")),
		),
		h.HandleDeserialize,
	)

	s.AddTool(
		mcp.NewTool("editorstate/inspect",
			mcp.WithDescription("Decode, heal and reconcile a share token and report every repair"),
			mcp.WithString("token", mcp.Required(), mcp.Description("Share token to inspect")),
		),
		h.HandleInspect,
	)

	s.AddTool(
		mcp.NewTool("editorstate/schema",
			mcp.WithDescription("Export the editor state JSON Schema"),
		),
		h.HandleSchema,
	)

	return s
}
