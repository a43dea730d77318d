// Package engine drives one task to a terminal state: it builds the
// conversation, calls the model, dispatches tool calls in order, and
// stops on a validated finish_task call or exhaustion. The engine does
// conversation bookkeeping and dispatch, nothing else — no retries, no
// scheduling, no parallel tool execution within a step.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clawinfra/taskclaw/internal/llm"
	"github.com/clawinfra/taskclaw/internal/pack"
	"github.com/clawinfra/taskclaw/internal/runlog"
	"github.com/clawinfra/taskclaw/internal/types"
)

// DefaultMaxSteps bounds the loop. One step is one LLM call plus the
// dispatch of every tool call it requested.
const DefaultMaxSteps = 40

// maxConsecutiveEmpty forces termination when the model repeatedly
// returns neither content nor tool calls.
const maxConsecutiveEmpty = 3

// maxValidationFailures bounds repeated finish_task rejections. Without
// it a pathological model could spend the whole step budget failing the
// quality gate; five rejections is plenty to self-correct.
const maxValidationFailures = 5

const emptyResponseNudge = "You must call a tool or call `finish_task`."

// fallbackEventSource is satisfied by llm.FallbackClient; the engine
// drains it after each LLM call so cloud_fallback events land in the
// runlog adjacent to the response they altered.
type fallbackEventSource interface {
	PopEvents() []llm.FallbackEvent
}

// Engine runs tasks against one pack, chat client, and run repository.
type Engine struct {
	chat      llm.ChatClient
	repo      *runlog.Repository
	pack      pack.SpecialistPack
	modelName string
	maxSteps  int
	logger    *slog.Logger
}

// New constructs an Engine. maxSteps <= 0 uses DefaultMaxSteps.
func New(chat llm.ChatClient, repo *runlog.Repository, sp pack.SpecialistPack, modelName string, maxSteps int, logger *slog.Logger) *Engine {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Engine{
		chat:      chat,
		repo:      repo,
		pack:      sp,
		modelName: modelName,
		maxSteps:  maxSteps,
		logger:    logger.With("component", "engine"),
	}
}

// Run executes the loop for one task. The run (id, directories) must
// already exist. Transport-level LLM failures bubble out to the caller;
// everything else terminates with a structured RunResult.
func (e *Engine) Run(ctx context.Context, task types.Task, runID types.RunID, runDir, workspacePath string) (*types.RunResult, error) {
	start := time.Now()

	messages := []llm.ChatMessage{
		{Role: "system", Content: e.pack.SystemPrompt()},
		{Role: "user", Content: task.Prompt},
	}
	e.emit(runID, runlog.KindPrompt, map[string]any{
		"prompt": task.Prompt,
		"model":  e.modelName,
	}, "")

	result := func(payload map[string]any, steps int) *types.RunResult {
		return &types.RunResult{
			RunID:         runID,
			SpecialistID:  e.pack.SpecialistID(),
			RunDir:        runDir,
			WorkspacePath: workspacePath,
			ModelName:     e.modelName,
			Payload:       payload,
			Steps:         steps,
			ElapsedMs:     time.Since(start).Milliseconds(),
		}
	}

	consecutiveEmpty := 0
	validationFailures := 0
	lastContent := ""

	for step := 1; step <= e.maxSteps; step++ {
		stepLabel := fmt.Sprintf("step_%d", step)

		opts := llm.DefaultChatOptions(e.pack.ToolDefinitions())
		resp, err := e.chat.Chat(ctx, messages, e.modelName, opts)
		if err != nil {
			return e.handleChatError(ctx, err, runID, stepLabel, result, step, lastContent)
		}
		e.drainFallbackEvents(runID, stepLabel)

		e.emit(runID, runlog.KindLLMResponse, map[string]any{
			"content":    clip(resp.Content, runlog.MaxLLMContentChars),
			"tool_calls": toolCallNames(resp.ToolCalls),
		}, stepLabel)

		messages = append(messages, llm.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if resp.Content != "" {
			lastContent = resp.Content
		}

		if resp.Empty() {
			consecutiveEmpty++
			if consecutiveEmpty >= maxConsecutiveEmpty {
				e.emit(runID, runlog.KindError, map[string]any{
					"reason": types.TerminatedEmptyResponses,
					"steps":  step,
				}, stepLabel)
				return result(map[string]any{
					types.TerminatedByKey: types.TerminatedEmptyResponses,
					"last_content":        lastContent,
					"steps":               step,
				}, step), nil
			}
			messages = append(messages, llm.ChatMessage{Role: "user", Content: emptyResponseNudge})
			continue
		}
		consecutiveEmpty = 0

		// Serial dispatch: one tool message per tool_call_id, appended in
		// request order before the next LLM call.
		for _, call := range resp.ToolCalls {
			if call.Name == e.pack.FinishToolName() {
				finished, errText := e.handleFinish(runID, stepLabel, call)
				if finished != nil {
					return result(finished, step), nil
				}
				validationFailures++
				messages = append(messages, llm.ChatMessage{
					Role:       "tool",
					ToolCallID: call.ID,
					Content:    errText,
				})
				if validationFailures >= maxValidationFailures {
					e.emit(runID, runlog.KindError, map[string]any{
						"reason":              types.TerminatedValidationBudget,
						"validation_failures": validationFailures,
					}, stepLabel)
					return result(map[string]any{
						types.TerminatedByKey: types.TerminatedValidationBudget,
						"last_content":        lastContent,
						"steps":               step,
					}, step), nil
				}
				continue
			}

			e.emit(runID, runlog.KindToolCall, map[string]any{
				"tool":    call.Name,
				"call_id": call.ID,
				"args":    call.Arguments,
			}, stepLabel)

			toolResult, err := e.pack.ExecuteTool(ctx, call.Name, call.Arguments)
			if err != nil {
				toolResult = map[string]any{"error": err.Error()}
			}

			e.emit(runID, runlog.KindToolResult, map[string]any{
				"tool":    call.Name,
				"call_id": call.ID,
				"result":  toolResult,
			}, stepLabel)

			serialised, err := json.Marshal(toolResult)
			if err != nil {
				serialised = []byte(fmt.Sprintf(`{"error":"unserialisable tool result: %v"}`, err))
			}
			messages = append(messages, llm.ChatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    string(serialised),
			})
		}
	}

	e.emit(runID, runlog.KindError, map[string]any{
		"reason": types.TerminatedStepBudget,
		"steps":  e.maxSteps,
	}, "")
	return result(map[string]any{
		types.TerminatedByKey: types.TerminatedStepBudget,
		"last_content":        lastContent,
		"steps":               e.maxSteps,
	}, e.maxSteps), nil
}

// handleFinish applies both validation layers: required fields first
// (generic), then the pack's quality gate. A nil first return means the
// finish was rejected and the second return carries the error text for
// the model. The finish call gets the same tool_call/tool_result pairing
// as any other tool so log readers see a uniform stream.
func (e *Engine) handleFinish(runID types.RunID, stepLabel string, call llm.ToolCall) (map[string]any, string) {
	e.emit(runID, runlog.KindToolCall, map[string]any{
		"tool":    call.Name,
		"call_id": call.ID,
		"args":    call.Arguments,
	}, stepLabel)

	if missing := missingFields(e.pack.FinishRequiredFields(), call.Arguments); len(missing) > 0 {
		errText := fmt.Sprintf("finish_task rejected: missing required fields: %v", missing)
		e.emit(runID, runlog.KindToolResult, map[string]any{
			"tool":    call.Name,
			"call_id": call.ID,
			"error":   errText,
		}, stepLabel)
		return nil, errText
	}

	if errText := e.pack.ValidateFinishPayload(call.Arguments); errText != "" {
		e.emit(runID, runlog.KindToolResult, map[string]any{
			"tool":    call.Name,
			"call_id": call.ID,
			"error":   errText,
		}, stepLabel)
		return nil, errText
	}

	e.emit(runID, runlog.KindToolResult, map[string]any{
		"tool":    call.Name,
		"call_id": call.ID,
		"result":  call.Arguments,
	}, stepLabel)
	e.emit(runID, runlog.KindFinish, map[string]any{
		"payload": call.Arguments,
	}, stepLabel)
	return call.Arguments, ""
}

// handleChatError classifies a failed LLM call. Cancellation and
// tool-incapable models terminate with structured results; transport
// failures bubble out for the entry point to record.
func (e *Engine) handleChatError(ctx context.Context, err error, runID types.RunID, stepLabel string, result func(map[string]any, int) *types.RunResult, step int, lastContent string) (*types.RunResult, error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		e.emit(runID, runlog.KindError, map[string]any{"reason": "cancelled"}, stepLabel)
		return result(map[string]any{
			types.TerminatedByKey: types.TerminatedCancelled,
			"last_content":        lastContent,
			"steps":               step,
		}, step), nil
	}

	var lacksTools *llm.ModelLacksToolsError
	if errors.As(err, &lacksTools) {
		e.emit(runID, runlog.KindError, map[string]any{
			"reason": types.TerminatedModelIncapable,
			"model":  lacksTools.Model,
		}, stepLabel)
		return result(map[string]any{
			types.TerminatedByKey: types.TerminatedModelIncapable,
			"error":               lacksTools.Error(),
			"steps":               step,
		}, step), nil
	}

	return nil, err
}

// drainFallbackEvents emits any cloud_fallback events queued by the
// fallback decorator during the last LLM call.
func (e *Engine) drainFallbackEvents(runID types.RunID, stepLabel string) {
	src, ok := e.chat.(fallbackEventSource)
	if !ok {
		return
	}
	for _, ev := range src.PopEvents() {
		e.emit(runID, runlog.KindCloudFallback, map[string]any{
			"reason":      ev.Reason,
			"local_model": ev.LocalModel,
			"cloud_model": ev.CloudModel,
		}, stepLabel)
	}
}

// emit appends one runlog event; failures are logged, never fatal — the
// run must not die because the disk hiccupped on an observability write.
func (e *Engine) emit(runID types.RunID, kind string, payload map[string]any, step string) {
	if err := e.repo.AppendEvent(runID, kind, payload, step); err != nil {
		e.logger.Warn("failed to append runlog event", "kind", kind, "error", err)
	}
}

func missingFields(required []string, args map[string]any) []string {
	var missing []string
	for _, field := range required {
		if _, ok := args[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

func toolCallNames(calls []llm.ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
