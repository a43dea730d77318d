// Package task glues the runtime together: it resolves the model
// profile, recruits a specialist, builds the pack and chat client, and
// drives the engine to a RunResult.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clawinfra/taskclaw/internal/bootstrap"
	"github.com/clawinfra/taskclaw/internal/config"
	"github.com/clawinfra/taskclaw/internal/engine"
	"github.com/clawinfra/taskclaw/internal/events"
	"github.com/clawinfra/taskclaw/internal/features"
	"github.com/clawinfra/taskclaw/internal/llm"
	"github.com/clawinfra/taskclaw/internal/pack"
	"github.com/clawinfra/taskclaw/internal/recruit"
	"github.com/clawinfra/taskclaw/internal/runlog"
	"github.com/clawinfra/taskclaw/internal/types"
)

// Runner owns the long-lived dependencies shared across tasks. Each
// task still gets its own pack, sandbox, and run directory.
type Runner struct {
	cfg        *config.Config
	repo       *runlog.Repository
	registry   *pack.Registry
	featureSet features.Set
	profile    *bootstrap.SystemProfile
	index      *runlog.Index
	publisher  *events.Publisher
	maxSteps   int
	logger     *slog.Logger
}

// RunnerOption tweaks a Runner.
type RunnerOption func(*Runner)

// WithMaxSteps overrides the engine step budget.
func WithMaxSteps(n int) RunnerOption {
	return func(r *Runner) { r.maxSteps = n }
}

// WithRunIndex attaches a sqlite run index updated on completion.
func WithRunIndex(idx *runlog.Index) RunnerOption {
	return func(r *Runner) { r.index = idx }
}

// WithPublisher attaches an MQTT run-lifecycle publisher.
func WithPublisher(p *events.Publisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

// NewRunner wires a Runner from config. The detected profile is loaded
// opportunistically; a missing detected.json just means configured model
// names are used as-is.
func NewRunner(cfg *config.Config, repo *runlog.Repository, registry *pack.Registry, featureSet features.Set, logger *slog.Logger, opts ...RunnerOption) *Runner {
	profile, err := bootstrap.LoadDetected("", logger)
	if err != nil {
		logger.Warn("failed to load detected profile", "error", err)
	}

	r := &Runner{
		cfg:        cfg,
		repo:       repo,
		registry:   registry,
		featureSet: featureSet,
		profile:    profile,
		maxSteps:   engine.DefaultMaxSteps,
		logger:     logger.With("component", "task"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs one task end to end.
func (r *Runner) Execute(ctx context.Context, t types.Task) (*types.RunResult, error) {
	modelCfg, modelName, err := r.resolveModel(t.ModelKey)
	if err != nil {
		return nil, err
	}

	runID, runDir, workspacePath, err := r.repo.CreateRun()
	if err != nil {
		return nil, err
	}

	specialistID, method := r.route(t)
	if err := r.repo.AppendEvent(runID, runlog.KindRecruitment, map[string]any{
		"specialist_id":  specialistID,
		"routing_method": method,
	}, ""); err != nil {
		r.logger.Warn("failed to record recruitment", "error", err)
	}

	sp, err := r.registry.GetPack(specialistID, workspacePath, t.NetworkAllowed)
	if err != nil {
		r.recordError(runID, err)
		return nil, err
	}

	if err := sp.Open(ctx); err != nil {
		r.recordError(runID, fmt.Errorf("open pack: %w", err))
		return nil, fmt.Errorf("open pack %s: %w", specialistID, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := sp.Close(closeCtx); err != nil {
			r.logger.Warn("pack close failed", "pack", specialistID, "error", err)
		}
	}()

	chat, err := r.buildChatClient(modelCfg)
	if err != nil {
		r.recordError(runID, err)
		return nil, err
	}

	if r.publisher != nil {
		r.publisher.RunStarted(runID, specialistID, modelName)
	}

	eng := engine.New(chat, r.repo, sp, modelName, r.maxSteps, r.logger)
	result, err := eng.Run(ctx, t, runID, runDir, workspacePath)
	if err != nil {
		// Transport-level failure: record it so the run log tells the
		// whole story, then surface the structured error to the caller.
		r.recordError(runID, err)
		return nil, err
	}

	r.recordCompletion(ctx, result)
	return result, nil
}

// route honours an explicit specialist choice or asks the recruiter.
func (r *Runner) route(t types.Task) (string, string) {
	if t.SpecialistID != "" {
		return t.SpecialistID, recruit.MethodExplicit
	}
	decision := recruit.Recruit(t.Prompt, r.cfg.Specialists, r.logger)
	return decision.SpecialistID, decision.Method
}

// resolveModel merges the configured profile with the detected one:
// detected.json supplies the model name when the config leaves it blank.
func (r *Runner) resolveModel(modelKey string) (config.ModelConfig, string, error) {
	mc, err := r.cfg.Profile(modelKey)
	if err != nil {
		return config.ModelConfig{}, "", err
	}
	modelName := mc.Model
	if modelName == "" && r.profile != nil {
		modelName = r.profile.ModelForKey(modelKey)
	}
	if modelName == "" {
		return config.ModelConfig{}, "", fmt.Errorf("no model configured for profile %q and no detected profile available", modelKey)
	}
	return mc, modelName, nil
}

// buildChatClient maps a model config to a concrete client, wrapping it
// with the cloud-fallback decorator when configured.
func (r *Runner) buildChatClient(mc config.ModelConfig) (llm.ChatClient, error) {
	var base llm.ChatClient
	switch mc.Backend {
	case "", "lenient":
		base = llm.NewLenientClient(mc.BaseURL, mc.APIKey, mc.TimeoutS, r.logger)
	case "openai":
		base = llm.NewClient(mc.BaseURL, mc.APIKey, mc.TimeoutS, r.logger)
	case "inprocess":
		if err := r.featureSet.Require(features.FeatureInprocess, "this build has no in-process inference backend; use backend \"lenient\" or \"openai\""); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("in-process inference is enabled but no engine is linked into this build")
	default:
		return nil, fmt.Errorf("unknown chat backend %q (known: openai, lenient, inprocess)", mc.Backend)
	}

	fb := mc.Fallback
	if fb.Mode == "" || fb.CloudModel == "" {
		return base, nil
	}
	if err := r.featureSet.Require(features.FeatureCloud, "enable the cloud feature to use fallback models"); err != nil {
		return nil, err
	}

	cloudBase := fb.CloudBaseURL
	if cloudBase == "" {
		cloudBase = mc.BaseURL
	}
	cloud := llm.NewClient(cloudBase, fb.CloudAPIKey, mc.TimeoutS, r.logger)
	policy := llm.FallbackPolicy{Mode: llm.FallbackMode(fb.Mode)}
	return llm.NewFallbackClient(base, cloud, fb.CloudModel, policy, r.logger), nil
}

// recordCompletion updates the run index and notifies the publisher.
// Both are observers; failures never affect the result.
func (r *Runner) recordCompletion(ctx context.Context, result *types.RunResult) {
	if r.publisher != nil {
		r.publisher.RunFinished(result)
	}
	if r.index == nil {
		return
	}
	terminatedBy, _ := result.Payload[types.TerminatedByKey].(string)
	summary, _ := result.Payload["summary"].(string)
	eventCount := 0
	if events, err := r.repo.ReadRunEvents(result.RunID.String()); err == nil {
		eventCount = len(events)
	}
	entry := runlog.IndexEntry{
		RunID:        result.RunID.String(),
		SpecialistID: result.SpecialistID,
		ModelName:    result.ModelName,
		TerminatedBy: terminatedBy,
		StartedAt:    time.Now().UTC().Add(-time.Duration(result.ElapsedMs) * time.Millisecond),
		EventCount:   eventCount,
		Summary:      summary,
	}
	if err := r.index.Record(ctx, entry); err != nil {
		r.logger.Warn("failed to index run", "run", result.RunID, "error", err)
	}
}

func (r *Runner) recordError(runID types.RunID, err error) {
	if appendErr := r.repo.AppendEvent(runID, runlog.KindError, map[string]any{
		"error": err.Error(),
	}, ""); appendErr != nil {
		r.logger.Warn("failed to record error event", "error", appendErr)
	}
}
