package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLenientClient_ModelLacksTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": {"message": "registry.ollama.ai/library/gemma does not support tools"}}`)
	}))
	defer server.Close()

	client := NewLenientClient(server.URL, "", 5, slog.Default())
	_, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, "gemma", ChatOptions{})

	var lacksTools *ModelLacksToolsError
	if !errors.As(err, &lacksTools) {
		t.Fatalf("expected ModelLacksToolsError, got %v", err)
	}
	if lacksTools.Model != "gemma" {
		t.Errorf("model = %q", lacksTools.Model)
	}
}

func TestLenientClient_RetriesWithMinimalPayload(t *testing.T) {
	var bodies []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)
		bodies = append(bodies, body)

		if len(bodies) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error": {"message": "unknown field temperature"}}`)
			return
		}
		io.WriteString(w, `{"choices": [{"message": {"content": "ok"}}]}`)
	}))
	defer server.Close()

	client := NewLenientClient(server.URL, "", 5, slog.Default())
	opts := DefaultChatOptions([]map[string]any{{"type": "function"}})
	resp, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, "m", opts)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bodies))
	}

	// First request carries sampling params; the retry must drop them but
	// keep tools (required for tool calling).
	if _, ok := bodies[0]["temperature"]; !ok {
		t.Error("first request should include temperature")
	}
	if _, ok := bodies[1]["temperature"]; ok {
		t.Error("retry must drop temperature")
	}
	if _, ok := bodies[1]["tools"]; !ok {
		t.Error("retry must keep tools")
	}
}

func TestClient_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error": {"message": "boom"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5, slog.Default())
	_, err := client.Chat(context.Background(), nil, "m", ChatOptions{})

	var badStatus *BadStatusError
	if !errors.As(err, &badStatus) {
		t.Fatalf("expected BadStatusError, got %v", err)
	}
	if badStatus.StatusCode != 500 || badStatus.Message != "boom" {
		t.Errorf("badStatus = %+v", badStatus)
	}
}

func TestClient_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", 1, slog.Default())
	_, err := client.Chat(context.Background(), nil, "m", ChatOptions{})

	var unreachable *UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("expected UnreachableError, got %v", err)
	}
}
