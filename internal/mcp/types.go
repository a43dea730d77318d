// Package mcp implements a minimal client for remote tool providers
// speaking JSON-RPC over stdio or server-sent events: initialize,
// tools/list, and tools/call.
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig declares one remote tool server. Name doubles as the
// namespace prefix for the server's tools.
type ServerConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Transport string            `yaml:"transport" json:"transport"` // "stdio" or "sse"
	Command   string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	URL       string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	TimeoutS  float64           `yaml:"timeoutS,omitempty" json:"timeoutS,omitempty"`
}

// Timeout returns the per-call timeout with a 30 s default.
func (c *ServerConfig) Timeout() time.Duration {
	if c.TimeoutS > 0 {
		return time.Duration(c.TimeoutS * float64(time.Second))
	}
	return 30 * time.Second
}

// LoadServers reads server declarations from a YAML file shaped
// {servers: [...]}. A missing file yields no servers.
func LoadServers(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read mcp config: %w", err)
	}
	var doc struct {
		Servers []ServerConfig `yaml:"servers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse mcp config: %w", err)
	}
	for i, s := range doc.Servers {
		if s.Name == "" {
			return nil, fmt.Errorf("mcp server %d has no name", i)
		}
		switch s.Transport {
		case "stdio", "sse":
		default:
			return nil, fmt.Errorf("mcp server %q: unsupported transport %q", s.Name, s.Transport)
		}
	}
	return doc.Servers, nil
}

// JSON-RPC wire types.

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MCP payload types.

// Tool is a remote tool definition as advertised by the server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []Tool `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callToolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError"`
}
