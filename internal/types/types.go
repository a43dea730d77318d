// Package types provides shared domain types used across taskclaw packages
// to avoid import cycles between the engine, packs, and interface layers.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task is one unit of work handed to the runtime. Immutable after BuildTask.
type Task struct {
	Prompt         string
	SpecialistID   string // empty means auto-route via the recruiter
	ModelKey       string // model profile, e.g. "quality", "fast"
	NetworkAllowed bool
}

// BuildTask normalises raw task inputs. A blank or whitespace-only
// specialist id becomes empty (auto-route); an empty model key defaults
// to "quality".
func BuildTask(prompt, specialistID, modelKey string, networkAllowed bool) Task {
	key := strings.TrimSpace(modelKey)
	if key == "" {
		key = "quality"
	}
	return Task{
		Prompt:         strings.TrimSpace(prompt),
		SpecialistID:   strings.TrimSpace(specialistID),
		ModelKey:       key,
		NetworkAllowed: networkAllowed,
	}
}

// RunID identifies one run. Shaped YYYYMMDD-HHMMSS-<6-hex>, UTC. Used as
// the run directory name and as the correlation key across logs.
type RunID string

// NewRunID generates a RunID from the current UTC time plus six hex
// characters of entropy.
func NewRunID(now time.Time) RunID {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return RunID(fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), suffix))
}

func (r RunID) String() string { return string(r) }

// RunResult is the terminal outcome of one task.
type RunResult struct {
	RunID         RunID          `json:"run_id"`
	SpecialistID  string         `json:"specialist_id"`
	RunDir        string         `json:"run_dir"`
	WorkspacePath string         `json:"workspace_path"`
	ModelName     string         `json:"model_name"`
	Payload       map[string]any `json:"payload"`
	Steps         int            `json:"steps"`
	ElapsedMs     int64          `json:"elapsed_ms"`
}

// Terminal payload keys written by the engine on non-finish exits.
const (
	TerminatedByKey = "terminated_by"

	TerminatedStepBudget       = "step_budget"
	TerminatedEmptyResponses   = "empty_responses"
	TerminatedValidationBudget = "validation_budget"
	TerminatedCancelled        = "cancelled"
	TerminatedModelIncapable   = "model_incapable"
)
