package llm

import "fmt"

// ModelLacksToolsError indicates the selected model cannot do function
// calling at all. Fatal for a task: the engine cannot drive a tool loop
// without tool support.
type ModelLacksToolsError struct {
	Model string
}

func (e *ModelLacksToolsError) Error() string {
	return fmt.Sprintf("model %q does not support tool calling; use a tool-capable model such as llama3.1:8b, mistral-small3.2:24b, or qwen2.5-coder:32b", e.Model)
}

// TimeoutError indicates the model took longer than the configured
// per-request timeout.
type TimeoutError struct {
	Model   string
	Timeout float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("LLM read timeout after %.0fs (model %q); use a faster model or raise timeoutS in the model config", e.Timeout, e.Model)
}

// UnreachableError indicates the LLM endpoint could not be reached at
// the transport level.
type UnreachableError struct {
	BaseURL string
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("LLM server unreachable at %s: %v", e.BaseURL, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// BadStatusError indicates a non-2xx HTTP response from the LLM server.
type BadStatusError struct {
	StatusCode int
	Message    string
}

func (e *BadStatusError) Error() string {
	return fmt.Sprintf("LLM server returned %d: %s", e.StatusCode, e.Message)
}
