package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/agentrt/internal/tools"
	"github.com/nextlevelbuilder/agentrt/internal/tracing"
)

// connectServer runs the three connect phases — dial (transport +
// handshake), adopt (tool discovery and registration), supervise
// (background health probing) — and records the attempt as a span on the
// runtime's trace tree.
func (m *Manager) connectServer(ctx context.Context, name, transportType, command string, args []string, env map[string]string, url string, headers map[string]string, toolPrefix string, timeoutSec int) (err error) {
	_, span := tracing.Tracer().Start(ctx, "mcp.connect")
	defer func() { tracing.EndSpan(span, err) }()

	client, err := m.dial(ctx, transportType, command, args, env, url, headers)
	if err != nil {
		return err
	}

	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	ss := &serverState{
		name:       name,
		transport:  transportType,
		client:     client,
		timeoutSec: timeoutSec,
	}
	ss.connected.Store(true)

	if err = m.adoptTools(ctx, ss, toolPrefix); err != nil {
		_ = client.Close()
		return err
	}

	superviseCtx, stop := context.WithCancel(context.Background())
	ss.cancel = stop
	go m.supervise(superviseCtx, ss)

	m.mu.Lock()
	m.servers[name] = ss
	m.mu.Unlock()

	slog.Info("mcp: server connected",
		"server", name, "transport", transportType, "tools", len(ss.toolNames))
	return nil
}

// dial builds the transport-appropriate client and completes the MCP
// handshake. SSE and streamable-http transports need an explicit Start;
// stdio starts its child process on creation.
func (m *Manager) dial(ctx context.Context, transportType, command string, args []string, env map[string]string, url string, headers map[string]string) (*mcpclient.Client, error) {
	var client *mcpclient.Client
	var err error

	switch transportType {
	case "stdio":
		client, err = mcpclient.NewStdioMCPClient(command, mapToEnvSlice(env), args...)
	case "sse":
		var opts []transport.ClientOption
		if len(headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(headers))
		}
		client, err = mcpclient.NewSSEMCPClient(url, opts...)
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(headers))
		}
		client, err = mcpclient.NewStreamableHttpClient(url, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport: %q", transportType)
	}
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	if transportType != "stdio" {
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "agentrt", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return client, nil
}

// adoptTools discovers the server's tools and federates them into the
// shared registry under the server's prefix, skipping collisions with
// built-in or already-federated names. The per-server tool group makes
// the batch visible to the policy engine's disclosure filtering.
func (m *Manager) adoptTools(ctx context.Context, ss *serverState, toolPrefix string) error {
	listed, err := ss.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}

	var adopted []string
	for _, mcpTool := range listed.Tools {
		bt := NewBridgeTool(ss.name, mcpTool, ss.client, toolPrefix, ss.timeoutSec, &ss.connected)
		if _, taken := m.registry.Get(bt.Name()); taken {
			slog.Warn("mcp: tool name collision, skipping",
				"server", ss.name, "tool", bt.Name())
			continue
		}
		m.registry.Register(bt)
		adopted = append(adopted, bt.Name())
	}
	ss.toolNames = adopted

	if len(adopted) > 0 {
		tools.RegisterToolGroup("mcp:"+ss.name, adopted)
		m.updateMCPGroup()
	}
	return nil
}

// supervise probes the server on a fixed interval and paces reconnect
// attempts with a token bucket, the same cooldown idiom the tool
// circuit breaker uses: a failed server gets one retry token per backoff
// window, and the window widens with each consecutive failure until
// maxBackoff.
func (m *Manager) supervise(ctx context.Context, ss *serverState) {
	probe := time.NewTicker(healthCheckInterval)
	defer probe.Stop()

	retry := rate.NewLimiter(rate.Every(initialBackoff), 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-probe.C:
		}

		err := ss.client.Ping(ctx)
		if err == nil || pingUnsupported(err) {
			// Servers without a ping handler are still alive.
			ss.markHealthy()
			retry.SetLimit(rate.Every(initialBackoff))
			continue
		}

		ss.markUnhealthy(err)
		slog.Warn("mcp: server unhealthy", "server", ss.name, "error", err)

		if !retry.Allow() {
			continue
		}
		attempt := ss.bumpAttempts()
		if attempt > maxReconnectAttempts {
			ss.markUnhealthy(fmt.Errorf("gave up after %d reconnect attempts", maxReconnectAttempts))
			slog.Error("mcp: reconnect attempts exhausted", "server", ss.name)
			return
		}

		window := initialBackoff << uint(attempt-1)
		if window > maxBackoff {
			window = maxBackoff
		}
		retry.SetLimit(rate.Every(window))
		slog.Info("mcp: probing for reconnect", "server", ss.name, "attempt", attempt, "next_window", window)

		// The transports auto-reconnect underneath; a clean ping means
		// the server is back.
		if err := ss.client.Ping(ctx); err == nil {
			ss.markHealthy()
			retry.SetLimit(rate.Every(initialBackoff))
			slog.Info("mcp: server reconnected", "server", ss.name)
		}
	}
}

// pingUnsupported detects servers that answer the probe with
// "method not found" — alive, just without a ping handler.
func pingUnsupported(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "method not found")
}

func (ss *serverState) markHealthy() {
	ss.connected.Store(true)
	ss.mu.Lock()
	ss.reconnAttempts = 0
	ss.lastErr = ""
	ss.mu.Unlock()
}

func (ss *serverState) markUnhealthy(err error) {
	ss.connected.Store(false)
	ss.mu.Lock()
	ss.lastErr = err.Error()
	ss.mu.Unlock()
}

func (ss *serverState) bumpAttempts() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.reconnAttempts++
	return ss.reconnAttempts
}
