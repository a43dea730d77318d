package llm

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// LenientClient wraps the primary client with workarounds for local
// backends (older Ollama builds in particular):
//
//   - A 400 whose error body names "does not support tools" becomes a
//     ModelLacksToolsError instead of a generic bad-status failure.
//   - Any other 400 is retried once with a minimal payload (model +
//     messages + stream + tools), for servers that reject unknown
//     top-level sampling parameters.
type LenientClient struct {
	inner  *Client
	logger *slog.Logger
}

// NewLenientClient wraps a primary client built from the same settings.
func NewLenientClient(baseURL, apiKey string, timeoutS float64, logger *slog.Logger) *LenientClient {
	return &LenientClient{
		inner:  NewClient(baseURL, apiKey, timeoutS, logger),
		logger: logger.With("component", "llm_client_lenient"),
	}
}

// Chat sends the full request, applying the 400 workarounds before
// giving up.
func (c *LenientClient) Chat(ctx context.Context, messages []ChatMessage, model string, opts ChatOptions) (*Response, error) {
	full := wireRequest{
		Model:       model,
		Messages:    toWire(messages),
		Stream:      false,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		Tools:       opts.Tools,
	}

	status, body, err := c.inner.post(ctx, model, full)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		return parseResponse(body)
	}
	if status != http.StatusBadRequest {
		return nil, &BadStatusError{StatusCode: status, Message: extractErrorMessage(body)}
	}

	errMsg := extractErrorMessage(body)
	if lacksTools(errMsg) {
		return nil, &ModelLacksToolsError{Model: model}
	}

	// Some backends 400 on unknown top-level params; retry with a minimal
	// payload that still includes tools (required for tool calling).
	c.logger.Warn("400 from chat/completions, retrying with minimal payload",
		"model", model, "error", firstN(errMsg, 200))

	minimal := wireRequest{
		Model:    model,
		Messages: full.Messages,
		Stream:   false,
		Tools:    full.Tools,
	}
	status, body, err = c.inner.post(ctx, model, minimal)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest {
		errMsg = extractErrorMessage(body)
		if lacksTools(errMsg) {
			return nil, &ModelLacksToolsError{Model: model}
		}
	}
	if status != http.StatusOK {
		return nil, &BadStatusError{StatusCode: status, Message: extractErrorMessage(body)}
	}
	return parseResponse(body)
}

func lacksTools(errMsg string) bool {
	return strings.Contains(strings.ToLower(errMsg), "does not support tools")
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
