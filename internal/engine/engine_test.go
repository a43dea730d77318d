package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/clawinfra/taskclaw/internal/llm"
	"github.com/clawinfra/taskclaw/internal/runlog"
	"github.com/clawinfra/taskclaw/internal/types"
)

// scriptedChat replays canned responses; the last one repeats forever.
type scriptedChat struct {
	responses []*llm.Response
	errs      []error
	calls     int
	events    []llm.FallbackEvent
}

func (c *scriptedChat) Chat(ctx context.Context, messages []llm.ChatMessage, model string, opts llm.ChatOptions) (*llm.Response, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

func (c *scriptedChat) PopEvents() []llm.FallbackEvent {
	events := c.events
	c.events = nil
	return events
}

// fakePack records executions and validates via a pluggable gate.
type fakePack struct {
	required []string
	gate     func(map[string]any) string
	executed []string
}

func (p *fakePack) SpecialistID() string { return "fake" }
func (p *fakePack) SystemPrompt() string { return "You are a test specialist." }
func (p *fakePack) ToolDefinitions() []map[string]any {
	return []map[string]any{
		{"type": "function", "function": map[string]any{"name": "write_file", "parameters": map[string]any{"type": "object"}}},
		{"type": "function", "function": map[string]any{"name": "finish_task", "parameters": map[string]any{"type": "object"}}},
	}
}
func (p *fakePack) FinishToolName() string         { return "finish_task" }
func (p *fakePack) FinishRequiredFields() []string { return p.required }
func (p *fakePack) ExecuteTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	p.executed = append(p.executed, name)
	return map[string]any{"ok": true, "tool": name}, nil
}
func (p *fakePack) ValidateFinishPayload(args map[string]any) string {
	if p.gate == nil {
		return ""
	}
	return p.gate(args)
}
func (p *fakePack) Open(ctx context.Context) error  { return nil }
func (p *fakePack) Close(ctx context.Context) error { return nil }

func call(id, name string, args map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: args}
}

func newTestEngine(t *testing.T, chat llm.ChatClient, p *fakePack, maxSteps int) (*Engine, *runlog.Repository, types.RunID, string, string) {
	t.Helper()
	repo := runlog.NewRepository(t.TempDir())
	runID, runDir, workspace, err := repo.CreateRun()
	if err != nil {
		t.Fatal(err)
	}
	eng := New(chat, repo, p, "test-model", maxSteps, slog.Default())
	return eng, repo, runID, runDir, workspace
}

func readEvents(t *testing.T, repo *runlog.Repository, runID types.RunID) []runlog.Event {
	t.Helper()
	events, err := repo.ReadRunEvents(runID.String())
	if err != nil {
		t.Fatal(err)
	}
	return events
}

func countKind(events []runlog.Event, kind string) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestEngine_HappyPath(t *testing.T) {
	finishArgs := map[string]any{"summary": "done", "tests_verified": true}
	chat := &scriptedChat{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{call("c1", "write_file", map[string]any{"path": "hello.py"})}},
		{ToolCalls: []llm.ToolCall{call("c2", "finish_task", finishArgs)}},
	}}
	p := &fakePack{required: []string{"summary", "tests_verified"}}
	eng, repo, runID, runDir, workspace := newTestEngine(t, chat, p, 0)

	result, err := eng.Run(context.Background(), types.Task{Prompt: "do it"}, runID, runDir, workspace)
	if err != nil {
		t.Fatal(err)
	}
	if result.Payload["summary"] != "done" || result.Payload["tests_verified"] != true {
		t.Errorf("payload = %v", result.Payload)
	}
	if result.Steps != 2 {
		t.Errorf("steps = %d, want 2", result.Steps)
	}
	if len(p.executed) != 1 || p.executed[0] != "write_file" {
		t.Errorf("executed = %v", p.executed)
	}

	events := readEvents(t, repo, runID)
	// One pair for write_file, one for the finish call itself.
	if countKind(events, runlog.KindToolCall) != 2 || countKind(events, runlog.KindToolResult) != 2 {
		t.Errorf("expected two tool_call/tool_result pairs, got %d/%d",
			countKind(events, runlog.KindToolCall), countKind(events, runlog.KindToolResult))
	}
	if countKind(events, runlog.KindFinish) != 1 {
		t.Error("expected exactly one finish event")
	}
	if events[len(events)-1].Kind != runlog.KindFinish {
		t.Errorf("finish must be the final event, got %s", events[len(events)-1].Kind)
	}
}

func TestEngine_ToolCallResultPairing(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{
			call("c1", "write_file", map[string]any{"path": "a"}),
			call("c2", "write_file", map[string]any{"path": "b"}),
		}},
		{ToolCalls: []llm.ToolCall{call("c3", "finish_task", map[string]any{})}},
	}}
	p := &fakePack{}
	eng, repo, runID, runDir, workspace := newTestEngine(t, chat, p, 0)

	if _, err := eng.Run(context.Background(), types.Task{Prompt: "x"}, runID, runDir, workspace); err != nil {
		t.Fatal(err)
	}

	events := readEvents(t, repo, runID)
	pending := map[string]bool{}
	for _, ev := range events {
		callID, _ := ev.Payload["call_id"].(string)
		switch ev.Kind {
		case runlog.KindToolCall:
			if pending[callID] {
				t.Errorf("tool_call %s repeated before its result", callID)
			}
			pending[callID] = true
		case runlog.KindToolResult:
			if !pending[callID] {
				t.Errorf("tool_result %s without preceding tool_call", callID)
			}
			delete(pending, callID)
		}
	}
	if len(pending) != 0 {
		t.Errorf("unpaired tool calls: %v", pending)
	}
}

func TestEngine_FinishRejectedThenAccepted(t *testing.T) {
	bad := map[string]any{"summary": "done", "tests_verified": false}
	good := map[string]any{"summary": "done", "tests_verified": true}
	chat := &scriptedChat{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{call("c1", "finish_task", bad)}},
		{ToolCalls: []llm.ToolCall{call("c2", "finish_task", good)}},
	}}
	p := &fakePack{gate: func(args map[string]any) string {
		if v, _ := args["tests_verified"].(bool); !v {
			return "tests_verified must be true"
		}
		return ""
	}}
	eng, repo, runID, runDir, workspace := newTestEngine(t, chat, p, 0)

	result, err := eng.Run(context.Background(), types.Task{Prompt: "x"}, runID, runDir, workspace)
	if err != nil {
		t.Fatal(err)
	}
	if result.Payload["tests_verified"] != true {
		t.Errorf("payload = %v", result.Payload)
	}

	events := readEvents(t, repo, runID)
	if countKind(events, runlog.KindFinish) != 1 {
		t.Error("rejected finish must not emit a finish event")
	}
	// The rejection shows up as a tool_result carrying an error.
	foundRejection := false
	for _, ev := range events {
		if ev.Kind == runlog.KindToolResult {
			if _, ok := ev.Payload["error"]; ok {
				foundRejection = true
			}
		}
	}
	if !foundRejection {
		t.Error("expected a tool_result event recording the validation error")
	}
}

func TestEngine_MissingRequiredFieldsRejected(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{call("c1", "finish_task", map[string]any{"summary": "done"})}},
		{ToolCalls: []llm.ToolCall{call("c2", "finish_task", map[string]any{"summary": "done", "tests_verified": true})}},
	}}
	p := &fakePack{required: []string{"summary", "tests_verified"}}
	eng, repo, runID, runDir, workspace := newTestEngine(t, chat, p, 0)

	result, err := eng.Run(context.Background(), types.Task{Prompt: "x"}, runID, runDir, workspace)
	if err != nil {
		t.Fatal(err)
	}
	if result.Payload["tests_verified"] != true {
		t.Errorf("payload = %v", result.Payload)
	}
	events := readEvents(t, repo, runID)
	if countKind(events, runlog.KindFinish) != 1 {
		t.Error("first (incomplete) finish must not emit a finish event")
	}
}

func TestEngine_ValidationBudget(t *testing.T) {
	bad := map[string]any{"tests_verified": false}
	chat := &scriptedChat{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{call("c1", "finish_task", bad)}},
	}}
	p := &fakePack{gate: func(map[string]any) string { return "rejected" }}
	eng, repo, runID, runDir, workspace := newTestEngine(t, chat, p, 0)

	result, err := eng.Run(context.Background(), types.Task{Prompt: "x"}, runID, runDir, workspace)
	if err != nil {
		t.Fatal(err)
	}
	if result.Payload[types.TerminatedByKey] != types.TerminatedValidationBudget {
		t.Errorf("terminated_by = %v", result.Payload[types.TerminatedByKey])
	}
	events := readEvents(t, repo, runID)
	if countKind(events, runlog.KindFinish) != 0 {
		t.Error("no finish event may exist on a validation-budget exit")
	}
}

func TestEngine_StepBudget(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{call("c1", "write_file", map[string]any{"path": "x"})}},
	}}
	p := &fakePack{}
	eng, repo, runID, runDir, workspace := newTestEngine(t, chat, p, 3)

	result, err := eng.Run(context.Background(), types.Task{Prompt: "x"}, runID, runDir, workspace)
	if err != nil {
		t.Fatal(err)
	}
	if result.Payload[types.TerminatedByKey] != types.TerminatedStepBudget {
		t.Errorf("terminated_by = %v", result.Payload[types.TerminatedByKey])
	}
	if result.Payload["steps"] != 3 {
		t.Errorf("steps = %v", result.Payload["steps"])
	}
	events := readEvents(t, repo, runID)
	if countKind(events, runlog.KindError) != 1 {
		t.Error("step budget exit must emit one error event")
	}
}

func TestEngine_EmptyResponses(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.Response{{}}}
	p := &fakePack{}
	eng, _, runID, runDir, workspace := newTestEngine(t, chat, p, 10)

	result, err := eng.Run(context.Background(), types.Task{Prompt: "x"}, runID, runDir, workspace)
	if err != nil {
		t.Fatal(err)
	}
	if result.Payload[types.TerminatedByKey] != types.TerminatedEmptyResponses {
		t.Errorf("terminated_by = %v", result.Payload[types.TerminatedByKey])
	}
	if chat.calls != 3 {
		t.Errorf("expected exactly 3 LLM calls, got %d", chat.calls)
	}
}

func TestEngine_CloudFallbackEventEmitted(t *testing.T) {
	chat := &scriptedChat{
		responses: []*llm.Response{
			{ToolCalls: []llm.ToolCall{call("c1", "finish_task", map[string]any{})}},
		},
		events: []llm.FallbackEvent{{Reason: "no_tool_calls", LocalModel: "local", CloudModel: "cloud"}},
	}
	p := &fakePack{}
	eng, repo, runID, runDir, workspace := newTestEngine(t, chat, p, 0)

	if _, err := eng.Run(context.Background(), types.Task{Prompt: "x"}, runID, runDir, workspace); err != nil {
		t.Fatal(err)
	}

	events := readEvents(t, repo, runID)
	if countKind(events, runlog.KindCloudFallback) != 1 {
		t.Fatal("expected one cloud_fallback event")
	}
	for _, ev := range events {
		if ev.Kind == runlog.KindCloudFallback {
			if ev.Payload["reason"] != "no_tool_calls" || ev.Payload["local_model"] != "local" || ev.Payload["cloud_model"] != "cloud" {
				t.Errorf("payload = %v", ev.Payload)
			}
		}
	}
}

func TestEngine_ModelIncapableTerminates(t *testing.T) {
	chat := &scriptedChat{
		responses: []*llm.Response{{}},
		errs:      []error{&llm.ModelLacksToolsError{Model: "tiny"}},
	}
	p := &fakePack{}
	eng, _, runID, runDir, workspace := newTestEngine(t, chat, p, 0)

	result, err := eng.Run(context.Background(), types.Task{Prompt: "x"}, runID, runDir, workspace)
	if err != nil {
		t.Fatal(err)
	}
	if result.Payload[types.TerminatedByKey] != types.TerminatedModelIncapable {
		t.Errorf("terminated_by = %v", result.Payload[types.TerminatedByKey])
	}
}

func TestEngine_TransportErrorBubbles(t *testing.T) {
	wantErr := &llm.UnreachableError{BaseURL: "http://x", Err: errors.New("refused")}
	chat := &scriptedChat{responses: []*llm.Response{{}}, errs: []error{wantErr}}
	p := &fakePack{}
	eng, _, runID, runDir, workspace := newTestEngine(t, chat, p, 0)

	_, err := eng.Run(context.Background(), types.Task{Prompt: "x"}, runID, runDir, workspace)
	var unreachable *llm.UnreachableError
	if !errors.As(err, &unreachable) {
		t.Fatalf("expected UnreachableError to bubble, got %v", err)
	}
}

func TestEngine_CancellationTerminates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chat := &scriptedChat{responses: []*llm.Response{{}}, errs: []error{context.Canceled}}
	p := &fakePack{}
	eng, repo, runID, runDir, workspace := newTestEngine(t, chat, p, 0)

	result, err := eng.Run(ctx, types.Task{Prompt: "x"}, runID, runDir, workspace)
	if err != nil {
		t.Fatal(err)
	}
	if result.Payload[types.TerminatedByKey] != types.TerminatedCancelled {
		t.Errorf("terminated_by = %v", result.Payload[types.TerminatedByKey])
	}
	events := readEvents(t, repo, runID)
	found := false
	for _, ev := range events {
		if ev.Kind == runlog.KindError && ev.Payload["reason"] == "cancelled" {
			found = true
		}
	}
	if !found {
		t.Error("expected an error event with reason cancelled")
	}
}
