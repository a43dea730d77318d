package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// RunSummary is a lightweight view of one run built from its runlog.
type RunSummary struct {
	RunID          string  `json:"run_id"`
	RunDir         string  `json:"run_dir"`
	SpecialistID   string  `json:"specialist_id,omitempty"`
	RoutingMethod  string  `json:"routing_method,omitempty"`
	FirstEventTS   float64 `json:"first_event_ts"`
	EventCount     int     `json:"event_count"`
	PayloadSummary string  `json:"payload_summary,omitempty"`
}

// ParseLog parses a runlog.jsonl file tolerantly: blank and malformed
// lines (including a truncated final line from a crash) are skipped.
func ParseLog(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, err
	}
	return events, nil
}

// ReadRunEvents returns all events for a run id, or an error if the run
// does not exist.
func (r *Repository) ReadRunEvents(runID string) ([]Event, error) {
	logPath := filepath.Join(r.workspaceRoot, "runs", runID, "runlog.jsonl")
	if _, err := os.Stat(logPath); err != nil {
		return nil, fmt.Errorf("run %q not found in workspace %q", runID, r.workspaceRoot)
	}
	return ParseLog(logPath)
}

// ListRuns scans runs/ and returns at most limit summaries, most recent
// first (by first event timestamp).
func (r *Repository) ListRuns(limit int) ([]RunSummary, error) {
	runsDir := filepath.Join(r.workspaceRoot, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	var summaries []RunSummary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runDir := filepath.Join(runsDir, entry.Name())
		logPath := filepath.Join(runDir, "runlog.jsonl")
		if _, err := os.Stat(logPath); err != nil {
			continue
		}
		summaries = append(summaries, summariseRun(entry.Name(), runDir, logPath))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].FirstEventTS > summaries[j].FirstEventTS
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func summariseRun(runID, runDir, logPath string) RunSummary {
	events, _ := ParseLog(logPath)

	s := RunSummary{
		RunID:      runID,
		RunDir:     runDir,
		EventCount: len(events),
	}
	for _, ev := range events {
		if s.FirstEventTS == 0 && ev.TS != 0 {
			s.FirstEventTS = ev.TS
		}
		switch ev.Kind {
		case KindRecruitment:
			if id, ok := ev.Payload["specialist_id"].(string); ok {
				s.SpecialistID = id
			}
			if m, ok := ev.Payload["routing_method"].(string); ok {
				s.RoutingMethod = m
			}
		case KindToolResult:
			if tool, _ := ev.Payload["tool"].(string); tool == "finish_task" {
				if result, ok := ev.Payload["result"].(map[string]any); ok {
					s.PayloadSummary = finishSummary(result)
				}
			}
		case KindFinish:
			if payload, ok := ev.Payload["payload"].(map[string]any); ok {
				s.PayloadSummary = finishSummary(payload)
			}
		}
	}
	return s
}

func finishSummary(payload map[string]any) string {
	if sum, ok := payload["summary"].(string); ok && sum != "" {
		return sum
	}
	if sum, ok := payload["executive_summary"].(string); ok {
		return sum
	}
	return ""
}
