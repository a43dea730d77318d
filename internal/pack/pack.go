// Package pack implements specialist packs: bundles of system prompt,
// tool definitions, tool execution, and finish-payload validation that
// parametrise the tool-loop engine for a class of tasks.
package pack

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/clawinfra/taskclaw/internal/sandbox"
)

// FinishToolName is the distinguished tool whose successful invocation
// terminates the loop.
const FinishToolName = "finish_task"

// Handler executes one native tool. Implementations return a result map
// serialised back to the model, or an error for infrastructure failures.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// SpecialistPack is a capability set, not a hierarchy: the engine only
// sees this interface.
type SpecialistPack interface {
	SpecialistID() string
	SystemPrompt() string
	// ToolDefinitions returns ordered OpenAI function-tool schemas,
	// including the finish tool.
	ToolDefinitions() []map[string]any
	FinishToolName() string
	FinishRequiredFields() []string
	// ExecuteTool dispatches one named tool. Unknown tools return a
	// structured error result, not a Go error.
	ExecuteTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
	// ValidateFinishPayload returns "" when args pass the pack's quality
	// gate, else an error string fed back to the model.
	ValidateFinishPayload(args map[string]any) string
	// Open and Close bracket the pack's lifecycle for one run.
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// ToolExecutionError marks a tool that ran and failed (non-zero exit,
// remote error). Reported back to the model; the loop continues.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// basePack carries the machinery shared by the native packs: a sandbox
// policy, ordered tool definitions, and a name-to-handler table.
type basePack struct {
	id             string
	systemPrompt   string
	requiredFields []string
	policy         *sandbox.Policy
	defs           []map[string]any
	handlers       map[string]Handler
	validators     map[string]*argsValidator
	logger         *slog.Logger
}

func newBasePack(id, systemPrompt string, requiredFields []string, policy *sandbox.Policy, logger *slog.Logger) *basePack {
	return &basePack{
		id:             id,
		systemPrompt:   systemPrompt,
		requiredFields: requiredFields,
		policy:         policy,
		handlers:       make(map[string]Handler),
		validators:     make(map[string]*argsValidator),
		logger:         logger.With("component", "pack", "pack", id),
	}
}

// register appends a tool definition and its handler, compiling the
// definition's parameter schema for argument validation. The finish tool
// registers with a nil handler: the engine intercepts it.
func (p *basePack) register(def map[string]any, handler Handler) {
	p.defs = append(p.defs, def)
	name := toolDefName(def)
	if handler != nil {
		p.handlers[name] = handler
	}
	if v, err := compileArgsValidator(def); err != nil {
		p.logger.Warn("tool schema does not compile; skipping argument validation", "tool", name, "error", err)
	} else if v != nil {
		p.validators[name] = v
	}
}

func (p *basePack) SpecialistID() string           { return p.id }
func (p *basePack) SystemPrompt() string           { return p.systemPrompt }
func (p *basePack) ToolDefinitions() []map[string]any { return p.defs }
func (p *basePack) FinishToolName() string         { return FinishToolName }
func (p *basePack) FinishRequiredFields() []string { return p.requiredFields }

func (p *basePack) Open(ctx context.Context) error  { return nil }
func (p *basePack) Close(ctx context.Context) error { return nil }

// ExecuteTool validates arguments against the tool's schema then runs
// the handler. Unknown or schema-invalid calls produce structured error
// results so the model can correct itself.
func (p *basePack) ExecuteTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	handler, ok := p.handlers[name]
	if !ok {
		return map[string]any{
			"error": fmt.Sprintf("unknown tool %q; available: %v", name, p.toolNames()),
		}, nil
	}
	if v, ok := p.validators[name]; ok {
		if err := v.validate(args); err != nil {
			return map[string]any{
				"error": fmt.Sprintf("invalid arguments for %s: %v", name, err),
			}, nil
		}
	}
	return handler(ctx, args)
}

func (p *basePack) toolNames() []string {
	names := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
