package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/goliatone/go-editorstate"
)

// Handlers implements the editorstate MCP tools against one engine.
type Handlers struct {
	engine *editorstate.Engine
}

// NewHandlers binds the tool handlers to engine, or to the default engine
// when engine is nil.
func NewHandlers(engine *editorstate.Engine) *Handlers {
	return &Handlers{engine: engine}
}

func (h *Handlers) resolve() *editorstate.Engine {
	if h.engine != nil {
		return h.engine
	}
	return editorstate.Default()
}

// HandleSerialize implements the editorstate/serialize MCP tool.
func (h *Handlers) HandleSerialize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	raw, err := stateArgument(args["state"])
	if err != nil {
		return errorResult(err.Error()), nil
	}
	format, _ := args["format"].(string)

	engine := h.resolve()
	s := engine.Defaults()
	if err := json.Unmarshal(raw, &s); err != nil {
		return errorResult(fmt.Sprintf("state: %s", err)), nil
	}
	if err := editorstate.ValidateState(s); err != nil {
		return errorResult(fmt.Sprintf("state: %s", err)), nil
	}
	token, err := engine.Serialize(s, editorstate.Format(format))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(token), nil
}

// HandleDeserialize implements the editorstate/deserialize MCP tool.
func (h *Handlers) HandleDeserialize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, _ := req.GetArguments()["token"].(string)
	if token == "" {
		return errorResult("token argument is required"), nil
	}
	record, err := h.resolve().Deserialize(token)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(record)
}

// HandleInspect implements the editorstate/inspect MCP tool.
func (h *Handlers) HandleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, _ := req.GetArguments()["token"].(string)
	if token == "" {
		return errorResult("token argument is required"), nil
	}
	inspection, err := h.resolve().Inspect(token)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(inspection)
}

// HandleSchema implements the editorstate/schema MCP tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := editorstate.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// stateArgument accepts the state either as JSON text or as an already
// decoded object.
func stateArgument(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("state argument is required")
	case string:
		if v == "" {
			return nil, fmt.Errorf("state argument is required")
		}
		return []byte(v), nil
	case map[string]any:
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("state must be a JSON object, got %T", value)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
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
