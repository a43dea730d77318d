package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// NamespacePrefix is prepended (with the server name) to every remote
// tool so remote names can never collide with native pack tools.
const NamespacePrefix = "remote__"

// PrefixedName returns the namespaced tool name for a server/tool pair.
func PrefixedName(serverName, toolName string) string {
	return NamespacePrefix + serverName + "__" + toolName
}

// Session manages the lifecycle of one server connection: connect,
// list tools, call tools, disconnect.
type Session struct {
	config    ServerConfig
	transport Transport
	logger    *slog.Logger
}

// NewSession builds a session for one server config. The transport is
// created eagerly; the connection opens on Connect.
func NewSession(cfg ServerConfig, logger *slog.Logger) (*Session, error) {
	transport, err := NewTransport(&cfg)
	if err != nil {
		return nil, err
	}
	return &Session{
		config:    cfg,
		transport: transport,
		logger:    logger.With("mcp_server", cfg.Name),
	}, nil
}

// Name returns the server name (the namespace).
func (s *Session) Name() string { return s.config.Name }

// Connect opens the transport and performs the initialize handshake.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := s.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "taskclaw",
			"version": "0.1.0",
		},
	})
	if err != nil {
		s.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var init initializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		s.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}
	s.logger.Info("connected to MCP server",
		"name", init.ServerInfo.Name,
		"version", init.ServerInfo.Version,
		"protocol", init.ProtocolVersion)

	if err := s.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		s.logger.Warn("failed to send initialized notification", "error", err)
	}
	return nil
}

// Disconnect closes the transport.
func (s *Session) Disconnect() error {
	return s.transport.Close()
}

// ListTools returns OpenAI-format function-tool definitions for every
// tool on the server, names prefixed remote__<server>__<tool>.
func (s *Session) ListTools(ctx context.Context) ([]map[string]any, error) {
	result, err := s.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	var listed listToolsResult
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, fmt.Errorf("parse tools/list result: %w", err)
	}

	defs := make([]map[string]any, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		defs = append(defs, toolToOpenAIDef(PrefixedName(s.config.Name, tool.Name), tool))
	}
	return defs, nil
}

// OwnsTool reports whether name belongs to this server's namespace.
func (s *Session) OwnsTool(name string) bool {
	return strings.HasPrefix(name, NamespacePrefix+s.config.Name+"__")
}

// CallTool strips the namespace prefix and forwards to the server.
// Returns {"result": <text>} on success or {"error": <text>} when the
// server reports isError.
func (s *Session) CallTool(ctx context.Context, prefixedName string, args map[string]any) (map[string]any, error) {
	bareName := strings.TrimPrefix(prefixedName, NamespacePrefix+s.config.Name+"__")

	var rawArgs json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		rawArgs = data
	}

	result, err := s.transport.Call(ctx, "tools/call", callToolParams{Name: bareName, Arguments: rawArgs})
	if err != nil {
		return nil, err
	}

	var call callToolResult
	if err := json.Unmarshal(result, &call); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}

	text := ""
	if len(call.Content) > 0 {
		text = call.Content[0].Text
	}
	if call.IsError {
		if text == "" {
			text = "unknown error"
		}
		s.logger.Warn("remote tool returned error", "tool", bareName, "error", text)
		return map[string]any{"error": text}, nil
	}
	return map[string]any{"result": text}, nil
}

// toolToOpenAIDef wraps a remote tool definition into the OpenAI
// function-tool schema under its prefixed name.
func toolToOpenAIDef(prefixedName string, tool Tool) map[string]any {
	schema := tool.InputSchema
	if schema == nil {
		schema = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []any{},
		}
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        prefixedName,
			"description": tool.Description,
			"parameters":  schema,
		},
	}
}
