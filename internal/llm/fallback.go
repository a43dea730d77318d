package llm

import (
	"context"
	"log/slog"
	"sync"
)

// FallbackMode selects when the cloud model takes over from the local one.
type FallbackMode string

const (
	// FallbackNoToolCalls triggers when the local model returned plain
	// text with no tool calls.
	FallbackNoToolCalls FallbackMode = "no_tool_calls"
	// FallbackMalformedArgs triggers when at least one tool call carries
	// the {"_raw": ...} unparseable-arguments sentinel.
	FallbackMalformedArgs FallbackMode = "malformed_args"
	// FallbackAlways forces every call to the cloud (debugging).
	FallbackAlways FallbackMode = "always"
	// Any other mode never triggers; the safe default.
)

// FallbackPolicy evaluates a local response against the configured mode.
type FallbackPolicy struct {
	Mode FallbackMode
}

// Evaluate returns a non-empty reason string if the cloud fallback should
// be used, or "" if the local response is acceptable.
func (p FallbackPolicy) Evaluate(resp *Response) string {
	switch p.Mode {
	case FallbackNoToolCalls:
		if !resp.HasToolCalls() {
			return string(FallbackNoToolCalls)
		}
	case FallbackMalformedArgs:
		for _, tc := range resp.ToolCalls {
			if tc.Malformed() {
				return string(FallbackMalformedArgs)
			}
		}
	case FallbackAlways:
		return string(FallbackAlways)
	}
	return ""
}

// FallbackEvent records one triggered fallback so the engine can emit a
// cloud_fallback runlog event after the LLM call.
type FallbackEvent struct {
	Reason     string `json:"reason"`
	LocalModel string `json:"local_model"`
	CloudModel string `json:"cloud_model"`
}

// FallbackClient wraps a (local, cloud) client pair. Each Chat call goes
// to the local model first; when the policy rejects the local response,
// the same request is re-issued against the cloud model and that response
// is returned instead. Triggered events queue up until PopEvents drains
// them.
type FallbackClient struct {
	local      ChatClient
	cloud      ChatClient
	cloudModel string
	policy     FallbackPolicy
	logger     *slog.Logger

	mu      sync.Mutex
	pending []FallbackEvent
}

// NewFallbackClient builds the decorator. cloudModel is the model name
// passed to the cloud client in place of the local one.
func NewFallbackClient(local, cloud ChatClient, cloudModel string, policy FallbackPolicy, logger *slog.Logger) *FallbackClient {
	return &FallbackClient{
		local:      local,
		cloud:      cloud,
		cloudModel: cloudModel,
		policy:     policy,
		logger:     logger.With("component", "cloud_fallback"),
	}
}

// Chat calls the local model, then the cloud model when the policy
// triggers.
func (c *FallbackClient) Chat(ctx context.Context, messages []ChatMessage, model string, opts ChatOptions) (*Response, error) {
	localResp, err := c.local.Chat(ctx, messages, model, opts)
	if err != nil {
		return nil, err
	}

	reason := c.policy.Evaluate(localResp)
	if reason == "" {
		return localResp, nil
	}

	c.logger.Info("cloud fallback triggered",
		"reason", reason, "local_model", model, "cloud_model", c.cloudModel)

	cloudResp, err := c.cloud.Chat(ctx, messages, c.cloudModel, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.pending = append(c.pending, FallbackEvent{
		Reason:     reason,
		LocalModel: model,
		CloudModel: c.cloudModel,
	})
	c.mu.Unlock()

	return cloudResp, nil
}

// PopEvents drains and returns any pending fallback events.
func (c *FallbackClient) PopEvents() []FallbackEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.pending
	c.pending = nil
	return events
}
