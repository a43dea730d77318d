package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client is the primary OpenAI-compatible HTTP chat client. Works against
// OpenAI, OpenRouter, vLLM, LM Studio, and any endpoint exposing
// POST <base_url>/chat/completions in the standard shape. Non-2xx
// responses surface as BadStatusError without retrying.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client for baseURL (trailing slash trimmed).
// timeoutS <= 0 falls back to DefaultChatTimeoutS.
func NewClient(baseURL, apiKey string, timeoutS float64, logger *slog.Logger) *Client {
	if timeoutS <= 0 {
		timeoutS = DefaultChatTimeoutS
	}
	timeout := time.Duration(timeoutS * float64(time.Second))
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "llm_client"),
	}
}

// Chat sends one chat-completions request and parses the response.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage, model string, opts ChatOptions) (*Response, error) {
	status, body, err := c.post(ctx, model, wireRequest{
		Model:       model,
		Messages:    toWire(messages),
		Stream:      false,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		Tools:       opts.Tools,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &BadStatusError{StatusCode: status, Message: extractErrorMessage(body)}
	}
	return parseResponse(body)
}

// post issues the HTTP request and classifies transport failures into the
// error taxonomy shared by every backend.
func (c *Client) post(ctx context.Context, model string, req wireRequest) (int, []byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	c.logger.Debug("POST chat/completions",
		"url", url, "model", model,
		"messages", len(req.Messages), "tools", len(req.Tools),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return 0, nil, &TimeoutError{Model: model, Timeout: c.timeout.Seconds()}
		}
		return 0, nil, &UnreachableError{BaseURL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
