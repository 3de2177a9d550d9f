package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/nextlevelbuilder/agentrt/internal/tools"
)

// BridgeTool adapts a single tool discovered on an MCP server to
// tools.Tool, making federated tools indistinguishable from the six
// built-in families once registered.
type BridgeTool struct {
	serverName string
	mcpTool    mcpgo.Tool
	client     *mcpclient.Client
	toolPrefix string
	timeout    time.Duration
	connected  *atomic.Bool
}

// NewBridgeTool wraps mcpTool, discovered on serverName, as a Tool. A
// connected pointer is shared with the owning serverState so a call made
// while the health loop has marked the server down fails fast instead of
// hanging on a dead transport.
func NewBridgeTool(serverName string, mcpTool mcpgo.Tool, client *mcpclient.Client, toolPrefix string, timeoutSec int, connected *atomic.Bool) *BridgeTool {
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	return &BridgeTool{
		serverName: serverName,
		mcpTool:    mcpTool,
		client:     client,
		toolPrefix: toolPrefix,
		timeout:    time.Duration(timeoutSec) * time.Second,
		connected:  connected,
	}
}

// Name returns the prefixed tool name registered in the Tool Server's
// registry. A configured toolPrefix disambiguates servers that happen to
// expose tools with the same bare name; otherwise the server name itself
// is used so two servers can never collide.
func (b *BridgeTool) Name() string {
	prefix := b.toolPrefix
	if prefix == "" {
		prefix = b.serverName
	}
	return fmt.Sprintf("mcp_%s__%s", prefix, b.mcpTool.Name)
}

func (b *BridgeTool) Description() string {
	if b.mcpTool.Description == "" {
		return fmt.Sprintf("(via MCP server %q)", b.serverName)
	}
	return b.mcpTool.Description
}

func (b *BridgeTool) Parameters() map[string]interface{} {
	raw, err := json.Marshal(b.mcpTool.InputSchema)
	if err != nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return schema
}

// Execute forwards the call to the MCP server over its existing transport.
// The federated tool returns the same *tools.Result shape as any built-in
// tool; a dead connection or a server-reported tool error both surface as
// IsError rather than a Go error, matching the tool-result protocol.
func (b *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if b.connected != nil && !b.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("mcp server %q is not connected", b.serverName))
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.mcpTool.Name
	req.Params.Arguments = args

	res, err := b.client.CallTool(callCtx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("mcp call %s: %v", b.Name(), err))
	}

	text := renderMCPContent(res.Content)
	if res.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

// renderMCPContent flattens an MCP tool result's content blocks into the
// plain text the rest of the runtime expects. Non-text blocks (images,
// embedded resources) are noted by type rather than dropped silently.
func renderMCPContent(blocks []mcpgo.Content) string {
	var parts []string
	for _, block := range blocks {
		switch c := block.(type) {
		case mcpgo.TextContent:
			parts = append(parts, c.Text)
		case mcpgo.ImageContent:
			parts = append(parts, fmt.Sprintf("[image content: %s]", c.MIMEType))
		case mcpgo.EmbeddedResource:
			parts = append(parts, "[embedded resource]")
		default:
			parts = append(parts, "[unsupported content block]")
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
