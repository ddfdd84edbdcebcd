package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// MCPToolDef is one tool discovered on an MCP server.
type MCPToolDef struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// MCPAdapter connects to a single MCP server over SSE and exposes its
// discovered tools to the Tool Executor.
type MCPAdapter struct {
	name     string
	endpoint string
	client   *client.Client
	logger   *zap.Logger
	tools    []MCPToolDef
	mu       sync.RWMutex
}

// NewMCPAdapter dials an MCP server's SSE endpoint and negotiates the MCP
// handshake. The returned adapter is ready for DiscoverTools/CallTool.
func NewMCPAdapter(ctx context.Context, name, endpoint string, logger *zap.Logger) (*MCPAdapter, error) {
	c, err := client.NewSSEMCPClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("create MCP client for %s: %w", name, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start MCP transport for %s: %w", name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "termpilot", Version: "1.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize MCP session for %s: %w", name, err)
	}

	return &MCPAdapter{name: name, endpoint: endpoint, client: c, logger: logger}, nil
}

// DiscoverTools lists the tools the server currently exposes.
func (a *MCPAdapter) DiscoverTools(ctx context.Context) ([]MCPToolDef, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := a.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("MCP tools/list failed for %s: %w", a.name, err)
	}

	defs := make([]MCPToolDef, 0, len(result.Tools))
	for _, t := range result.Tools {
		defs = append(defs, MCPToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: toolInputSchemaToMap(t.InputSchema),
		})
	}

	a.mu.Lock()
	a.tools = defs
	a.mu.Unlock()

	a.logger.Info("MCP tools discovered", zap.String("server", a.name), zap.Int("tool_count", len(defs)))
	return defs, nil
}

func toolInputSchemaToMap(schema mcp.ToolInputSchema) map[string]interface{} {
	m := map[string]interface{}{"type": schema.Type}
	if schema.Properties != nil {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	return m
}

// CallTool invokes a tool on the server and flattens its text content into
// a single string — non-text content (images, embedded resources) is
// reported but not inlined, matching how the rest of the Tool Executor
// returns plain-text output.
func (a *MCPAdapter) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := a.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("MCP tools/call failed for %s.%s: %w", a.name, name, err)
	}

	var output string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			output += v.Text
		default:
			output += fmt.Sprintf("[non-text MCP content omitted: %T]", v)
		}
	}

	if result.IsError {
		if output == "" {
			output = "MCP tool returned an error with no message"
		}
		return "", fmt.Errorf("MCP tool error: %s", output)
	}
	return output, nil
}

// GetTools returns the last discovered tool set.
func (a *MCPAdapter) GetTools() []MCPToolDef {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]MCPToolDef, len(a.tools))
	copy(result, a.tools)
	return result
}

// Name returns the MCP server's configured name.
func (a *MCPAdapter) Name() string { return a.name }

// Close releases the underlying transport.
func (a *MCPAdapter) Close() error { return a.client.Close() }
