package pack

import (
	"context"
	"log/slog"

	"github.com/clawinfra/taskclaw/internal/sandbox"
)

const engineeringSystemPrompt = `You are an engineering specialist. You build, modify, and verify software inside a sandboxed workspace.

You have these tools: read_file, write_file, list_files, shell, run_tests, and finish_task.

Rules:
- All paths are relative to the workspace; never use absolute paths.
- Verify your work: run the code or its tests with run_tests before finishing.
- When the task is complete, call finish_task with: summary (what you did), artifacts (files you created or changed), next_steps (what a human should do next, may be empty), notes (caveats, may be empty), and tests_verified (true only if you actually ran the code or tests and they passed).
- finish_task is rejected unless tests_verified is true, so always verify first.`

// EngineeringPack builds and verifies software. Its quality gate refuses
// to finish until the model attests tests_verified=true, and it carries a
// dedicated run_tests tool so the attestation is cheap to earn.
type EngineeringPack struct {
	*basePack
}

// BuildEngineeringPack constructs the pack over a workspace. The
// engineering tool set does not change with networkAllowed: none of its
// tools reach the network directly (shell-level network use is governed
// by the sandbox policy).
func BuildEngineeringPack(workspacePath string, networkAllowed bool, logger *slog.Logger) *EngineeringPack {
	policy := sandbox.NewPolicy(workspacePath, networkAllowed)
	base := newBasePack(
		"engineering",
		engineeringSystemPrompt,
		[]string{"summary", "artifacts", "next_steps", "notes", "tests_verified"},
		policy,
		logger,
	)
	p := &EngineeringPack{basePack: base}

	p.registerFileTools()
	p.register(shellToolDef(), p.runShell)
	p.register(runTestsToolDef(), p.runTests)
	p.register(MakeFinishToolDef(
		"Finish the task. Call this exactly once, after verifying your work with run_tests.",
		map[string]any{
			"summary":        map[string]any{"type": "string", "description": "What was accomplished."},
			"artifacts":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Workspace-relative paths of files created or changed."},
			"next_steps":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Follow-up actions for a human."},
			"notes":          map[string]any{"type": "string", "description": "Caveats or context."},
			"tests_verified": map[string]any{"type": "boolean", "description": "True only if tests or the code itself were run and passed."},
		},
		[]string{"summary", "artifacts", "next_steps", "notes", "tests_verified"},
	), nil)

	return p
}

func runTestsToolDef() map[string]any {
	return MakeToolDef("run_tests",
		"Run the project's tests (or a verification command) inside the sandbox and report the outcome.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cmd": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Test command argv, e.g. [\"pytest\", \"-q\"] or [\"python\", \"hello.py\"].",
				},
				"timeout_s": map[string]any{"type": "integer", "description": "Wall-clock timeout in seconds (default 120)."},
			},
			"required": []string{"cmd"},
		})
}

// runTests is the shell tool under a different name: the separation lets
// the quality gate point the model at a concrete verification step.
func (p *EngineeringPack) runTests(ctx context.Context, args map[string]any) (map[string]any, error) {
	result, err := p.runShell(ctx, args)
	if err != nil {
		return nil, err
	}
	if rc, ok := result["returncode"].(int); ok {
		result["tests_passed"] = rc == 0
	}
	return result, nil
}

// ValidateFinishPayload enforces the engineering quality gate:
// tests_verified must be exactly true. A missing field is left to the
// engine's required-fields check.
func (p *EngineeringPack) ValidateFinishPayload(args map[string]any) string {
	v, present := args["tests_verified"]
	if !present {
		return ""
	}
	verified, ok := v.(bool)
	if !ok || !verified {
		return "finish_task rejected: tests_verified must be true. Run your code or tests with the run_tests tool, confirm they pass, then call finish_task again with tests_verified=true."
	}
	return ""
}
