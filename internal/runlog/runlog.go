// Package runlog persists per-run event logs and run directories.
//
// Each run owns a directory under <workspace_root>/runs/<run_id>/ with an
// append-only runlog.jsonl inside. The engine is the sole writer for a
// run; readers open the file read-only and tolerate a truncated final
// line after a crash.
package runlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clawinfra/taskclaw/internal/types"
)

// Event kinds written by the engine. Stable: readers and the run index
// depend on these strings.
const (
	KindRecruitment   = "recruitment"
	KindPrompt        = "prompt"
	KindLLMResponse   = "llm_response"
	KindToolCall      = "tool_call"
	KindToolResult    = "tool_result"
	KindFinish        = "finish"
	KindError         = "error"
	KindCloudFallback = "cloud_fallback"
)

// MaxLLMContentChars caps how much of an LLM response's text content is
// stored in the runlog. The full content still goes to the conversation;
// only the log entry is capped so runlog.jsonl stays scannable.
const MaxLLMContentChars = 2_000

// Event is one line of runlog.jsonl.
type Event struct {
	TS      float64        `json:"ts"`
	Kind    string         `json:"kind"`
	Step    string         `json:"step,omitempty"`
	Payload map[string]any `json:"payload"`
}

// Repository creates runs and appends run-log events on the filesystem.
type Repository struct {
	workspaceRoot string
	mu            sync.Mutex
}

// NewRepository returns a Repository rooted at workspaceRoot (created on
// first use).
func NewRepository(workspaceRoot string) *Repository {
	return &Repository{workspaceRoot: workspaceRoot}
}

// WorkspaceRoot returns the root directory the repository manages.
func (r *Repository) WorkspaceRoot() string { return r.workspaceRoot }

// CreateRun allocates a RunID, creates runs/<id>/ and runs/<id>/workspace/,
// and returns (id, run dir, workspace path).
func (r *Repository) CreateRun() (types.RunID, string, string, error) {
	id := types.NewRunID(time.Now())
	runDir := filepath.Join(r.workspaceRoot, "runs", id.String())
	workspace := filepath.Join(runDir, "workspace")
	if err := os.MkdirAll(workspace, 0o750); err != nil {
		return "", "", "", fmt.Errorf("create run directory: %w", err)
	}
	return id, runDir, workspace, nil
}

// RunDir returns the directory for a run id without checking existence.
func (r *Repository) RunDir(id types.RunID) string {
	return filepath.Join(r.workspaceRoot, "runs", id.String())
}

// AppendEvent appends one event line to the run's runlog.jsonl. The line
// is a single UTF-8 JSON object with non-ASCII preserved and no embedded
// newlines. The file is opened in append mode and closed per call so the
// log survives crashes with at most one truncated trailing line.
func (r *Repository) AppendEvent(id types.RunID, kind string, payload map[string]any, step string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	runDir := r.RunDir(id)
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	ev := Event{
		TS:      float64(time.Now().UnixNano()) / 1e9,
		Kind:    kind,
		Step:    step,
		Payload: payload,
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(runDir, "runlog.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open runlog: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
