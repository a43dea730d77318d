// Package llm provides chat clients speaking the OpenAI chat-completions
// protocol with function calling, plus the failure-aware cloud fallback
// wrapper.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultChatTimeoutS is the fallback HTTP read timeout for one chat
// call. The real value comes from the model config, which raises it for
// large models.
const DefaultChatTimeoutS = 120.0

// ChatMessage is one entry of the conversation sent to the model.
type ChatMessage struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is one tool invocation requested by the model. When the wire
// arguments are not valid JSON, Arguments carries {"_raw": <original>}
// so downstream policies can detect the sentinel.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// RawArgsKey marks tool-call arguments that failed JSON parsing.
const RawArgsKey = "_raw"

// Malformed reports whether the call's arguments carry the parse-failure
// sentinel.
func (tc ToolCall) Malformed() bool {
	_, ok := tc.Arguments[RawArgsKey]
	return ok
}

// Response is a parsed assistant turn.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r *Response) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// Empty reports whether the model produced neither content nor tool calls.
func (r *Response) Empty() bool { return r.Content == "" && len(r.ToolCalls) == 0 }

// ChatOptions are the sampling knobs passed with every call.
type ChatOptions struct {
	Tools       []map[string]any
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// DefaultChatOptions returns conservative sampling defaults for tool use.
func DefaultChatOptions(tools []map[string]any) ChatOptions {
	return ChatOptions{
		Tools:       tools,
		Temperature: 0.1,
		TopP:        0.9,
		MaxTokens:   2048,
	}
}

// ChatClient is the uniform interface to a remote LLM speaking
// OpenAI-compatible chat completions with function calling.
type ChatClient interface {
	Chat(ctx context.Context, messages []ChatMessage, model string, opts ChatOptions) (*Response, error)
}

// wire types shared by the HTTP clients

type wireRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	Stream      bool             `json:"stream"`
	Temperature float64          `json:"temperature,omitempty"`
	TopP        float64          `json:"top_p,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   *string        `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// toWire converts conversation messages to the wire shape, re-encoding
// structured tool-call arguments back into JSON strings.
func toWire(messages []ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var wtc wireToolCall
			wtc.ID = tc.ID
			wtc.Type = "function"
			wtc.Function.Name = tc.Name
			if raw, ok := tc.Arguments[RawArgsKey].(string); ok && len(tc.Arguments) == 1 {
				wtc.Function.Arguments = raw
			} else {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				wtc.Function.Arguments = string(args)
			}
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

// parseResponse converts a chat-completions body into a Response. Both
// HTTP clients share it so their parsing never drifts apart.
func parseResponse(body []byte) (*Response, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(wr.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	msg := wr.Choices[0].Message
	resp := &Response{}
	if msg.Content != nil {
		resp.Content = *msg.Content
	}
	for i, wtc := range msg.ToolCalls {
		callID := wtc.ID
		if callID == "" {
			callID = fmt.Sprintf("call_%d", i)
		}
		rawArgs := wtc.Function.Arguments
		if rawArgs == "" {
			rawArgs = "{}"
		}
		args := map[string]any{}
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			args = map[string]any{RawArgsKey: rawArgs}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        callID,
			Name:      wtc.Function.Name,
			Arguments: args,
		})
	}
	return resp, nil
}

// extractErrorMessage pulls a human-readable error string out of a
// (likely 4xx) response body. Some servers wrap the JSON error in log
// noise; ExtractJSONObject digs it out before giving up.
func extractErrorMessage(body []byte) string {
	loose, ok := ExtractJSONObject(string(body))
	if !ok {
		return string(body)
	}
	if errField, ok := loose["error"].(map[string]any); ok {
		if s, ok := errField["message"].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := loose["error"].(string); ok {
		return s
	}
	if s, ok := loose["message"].(string); ok {
		return s
	}
	return string(body)
}

// ExtractJSONObject parses a top-level JSON object from text,
// best-effort: a direct parse first, then the substring between the
// first '{' and the last '}'.
func ExtractJSONObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj, true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, false
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
