package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transport carries JSON-RPC traffic to one server.
type Transport interface {
	Connect(ctx context.Context) error
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	Connected() bool
	Close() error
}

// NewTransport selects the transport implementation for a server config.
func NewTransport(cfg *ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case "stdio":
		return newStdioTransport(cfg), nil
	case "sse":
		return newSSETransport(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return data, nil
}
