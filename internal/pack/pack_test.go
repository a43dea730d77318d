package pack

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func defNames(defs []map[string]any) []string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, toolDefName(d))
	}
	return names
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func TestEngineeringPack_ToolSetUnchangedByNetworkFlag(t *testing.T) {
	for _, network := range []bool{false, true} {
		p := BuildEngineeringPack(t.TempDir(), network, slog.Default())
		names := defNames(p.ToolDefinitions())
		for _, want := range []string{"shell", "read_file", "write_file", "list_files", "run_tests", "finish_task"} {
			if !contains(names, want) {
				t.Errorf("network=%v: missing tool %s in %v", network, want, names)
			}
		}
		if len(names) != 6 {
			t.Errorf("network=%v: tool count = %d, want 6", network, len(names))
		}
	}
}

func TestResearchPack_NetworkGating(t *testing.T) {
	online := BuildResearchPack(t.TempDir(), true, slog.Default())
	names := defNames(online.ToolDefinitions())
	for _, want := range []string{"web_search", "fetch_url", "write_file", "read_file", "list_files"} {
		if !contains(names, want) {
			t.Errorf("online pack missing %s", want)
		}
	}

	offline := BuildResearchPack(t.TempDir(), false, slog.Default())
	names = defNames(offline.ToolDefinitions())
	if contains(names, "web_search") || contains(names, "fetch_url") {
		t.Errorf("offline pack must omit web tools, got %v", names)
	}
	if !contains(names, "write_file") {
		t.Error("offline pack must keep file tools")
	}
}

func TestPacks_FinishToolInDefinitions(t *testing.T) {
	packs := []SpecialistPack{
		BuildEngineeringPack(t.TempDir(), false, slog.Default()),
		BuildResearchPack(t.TempDir(), false, slog.Default()),
	}
	for _, p := range packs {
		if !contains(defNames(p.ToolDefinitions()), FinishToolName) {
			t.Errorf("%s: finish_task missing from tool definitions", p.SpecialistID())
		}
		if p.FinishToolName() != FinishToolName {
			t.Errorf("%s: finish tool name = %q", p.SpecialistID(), p.FinishToolName())
		}
	}
}

func TestPacks_ToolDefinitionsAreValidOpenAIFormat(t *testing.T) {
	packs := []SpecialistPack{
		BuildEngineeringPack(t.TempDir(), false, slog.Default()),
		BuildResearchPack(t.TempDir(), true, slog.Default()),
	}
	for _, p := range packs {
		for _, td := range p.ToolDefinitions() {
			if td["type"] != "function" {
				t.Errorf("%s: type = %v", p.SpecialistID(), td["type"])
			}
			fn, ok := td["function"].(map[string]any)
			if !ok {
				t.Fatalf("%s: no function block", p.SpecialistID())
			}
			if _, ok := fn["name"].(string); !ok {
				t.Errorf("%s: function.name missing", p.SpecialistID())
			}
			if _, ok := fn["parameters"]; !ok {
				t.Errorf("%s: function.parameters missing", p.SpecialistID())
			}
		}
	}
}

func TestEngineeringQualityGate(t *testing.T) {
	p := BuildEngineeringPack(t.TempDir(), false, slog.Default())

	rejected := p.ValidateFinishPayload(map[string]any{
		"summary": "done", "artifacts": []any{}, "next_steps": []any{}, "notes": "",
		"tests_verified": false,
	})
	if rejected == "" {
		t.Error("tests_verified=false must be rejected")
	}
	if !strings.Contains(strings.ToLower(rejected), "tests_verified") && !strings.Contains(strings.ToLower(rejected), "run_tests") {
		t.Errorf("rejection should name the gate: %q", rejected)
	}

	accepted := p.ValidateFinishPayload(map[string]any{
		"summary": "done", "artifacts": []any{}, "next_steps": []any{}, "notes": "",
		"tests_verified": true,
	})
	if accepted != "" {
		t.Errorf("tests_verified=true must pass, got %q", accepted)
	}

	// Missing tests_verified is the engine's required-fields problem, not
	// the quality gate's.
	if got := p.ValidateFinishPayload(map[string]any{"summary": "done"}); got != "" {
		t.Errorf("missing field must not trip the gate, got %q", got)
	}
}

func TestEngineeringQualityGate_Idempotent(t *testing.T) {
	p := BuildEngineeringPack(t.TempDir(), false, slog.Default())
	args := map[string]any{"tests_verified": false}
	first := p.ValidateFinishPayload(args)
	second := p.ValidateFinishPayload(args)
	if first != second {
		t.Errorf("validation must be idempotent: %q vs %q", first, second)
	}
}

func TestResearchQualityGate(t *testing.T) {
	p := BuildResearchPack(t.TempDir(), false, slog.Default())

	if got := p.ValidateFinishPayload(map[string]any{"summary": "", "deliverables": []any{"a.md"}}); got == "" {
		t.Error("empty summary must be rejected")
	}
	if got := p.ValidateFinishPayload(map[string]any{"summary": "findings", "deliverables": []any{}}); got == "" {
		t.Error("empty deliverables must be rejected")
	}
	if got := p.ValidateFinishPayload(map[string]any{"summary": "findings", "deliverables": []any{"a.md"}, "sources": []any{}}); got != "" {
		t.Errorf("valid payload rejected: %q", got)
	}
}

func TestExecuteTool_FileRoundTrip(t *testing.T) {
	p := BuildEngineeringPack(t.TempDir(), false, slog.Default())
	ctx := context.Background()

	result, err := p.ExecuteTool(ctx, "write_file", map[string]any{"path": "hello.py", "content": "print('hi')"})
	if err != nil {
		t.Fatal(err)
	}
	if result["error"] != nil {
		t.Fatalf("write_file error: %v", result["error"])
	}

	result, err = p.ExecuteTool(ctx, "read_file", map[string]any{"path": "hello.py"})
	if err != nil {
		t.Fatal(err)
	}
	if result["content"] != "print('hi')" {
		t.Errorf("read back %v", result["content"])
	}

	result, err = p.ExecuteTool(ctx, "list_files", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	files, _ := result["files"].([]string)
	if len(files) != 1 || files[0] != "hello.py" {
		t.Errorf("list_files = %v", result["files"])
	}
}

func TestExecuteTool_UnknownToolStructuredError(t *testing.T) {
	p := BuildEngineeringPack(t.TempDir(), false, slog.Default())
	result, err := p.ExecuteTool(context.Background(), "launch_missiles", map[string]any{})
	if err != nil {
		t.Fatalf("unknown tool must not be a Go error: %v", err)
	}
	msg, _ := result["error"].(string)
	if !strings.Contains(msg, "unknown tool") {
		t.Errorf("error = %q", msg)
	}
}

func TestExecuteTool_SchemaValidationRejectsBadArgs(t *testing.T) {
	p := BuildEngineeringPack(t.TempDir(), false, slog.Default())
	result, err := p.ExecuteTool(context.Background(), "write_file", map[string]any{"path": "x.txt"})
	if err != nil {
		t.Fatal(err)
	}
	msg, _ := result["error"].(string)
	if !strings.Contains(msg, "invalid arguments") {
		t.Errorf("missing content should fail schema validation, got %v", result)
	}
}

func TestExecuteTool_PathEscapeDenied(t *testing.T) {
	p := BuildEngineeringPack(t.TempDir(), false, slog.Default())
	result, err := p.ExecuteTool(context.Background(), "read_file", map[string]any{"path": "../../etc/passwd"})
	if err != nil {
		t.Fatal(err)
	}
	if result["error"] == nil {
		t.Error("path escape must produce a structured error")
	}
}

func TestManifestToolsApply(t *testing.T) {
	p := BuildEngineeringPack(t.TempDir(), false, slog.Default())
	p.applyManifest(Manifest{
		Pack: "engineering",
		Tools: []ManifestTool{{
			Name:        "greet",
			Description: "Print a greeting.",
			Command:     "echo",
			Args:        []string{"$msg"},
			Parameters: ManifestParameters{
				Properties: map[string]ManifestParam{
					"msg": {Type: "string", Description: "What to print."},
				},
				Required: []string{"msg"},
			},
		}},
	})

	if !contains(defNames(p.ToolDefinitions()), "greet") {
		t.Fatal("manifest tool not registered")
	}

	result, err := p.ExecuteTool(context.Background(), "greet", map[string]any{"msg": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if errMsg, ok := result["error"]; ok {
		t.Fatalf("greet failed: %v", errMsg)
	}
	stdout, _ := result["stdout"].(string)
	if !strings.Contains(stdout, "hello") {
		t.Errorf("stdout = %q", stdout)
	}
}
