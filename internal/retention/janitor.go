// Package retention prunes old run directories on a cron schedule.
package retention

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clawinfra/taskclaw/internal/config"
)

// Janitor deletes run directories older than the configured age.
type Janitor struct {
	workspaceRoot string
	maxAge        time.Duration
	cron          *cron.Cron
	logger        *slog.Logger
}

// New builds a janitor. Returns (nil, nil) when retention is disabled.
func New(cfg config.RetentionConfig, workspaceRoot string, logger *slog.Logger) (*Janitor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.MaxAgeDays <= 0 {
		return nil, fmt.Errorf("retention.maxAgeDays must be positive")
	}

	j := &Janitor{
		workspaceRoot: workspaceRoot,
		maxAge:        time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		cron:          cron.New(),
		logger:        logger.With("component", "retention"),
	}
	if _, err := j.cron.AddFunc(cfg.Schedule, j.Sweep); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", cfg.Schedule, err)
	}
	return j, nil
}

// Start begins the schedule.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the schedule and waits for a running sweep.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep removes every run directory whose runlog was last modified
// before the cutoff. Callable directly for a one-shot prune.
func (j *Janitor) Sweep() {
	cutoff := time.Now().Add(-j.maxAge)
	runsDir := filepath.Join(j.workspaceRoot, "runs")

	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.logger.Warn("read runs dir", "error", err)
		}
		return
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runDir := filepath.Join(runsDir, entry.Name())
		info, err := os.Stat(filepath.Join(runDir, "runlog.jsonl"))
		if err != nil {
			// No runlog: age by the directory itself.
			info, err = entry.Info()
			if err != nil {
				continue
			}
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(runDir); err != nil {
			j.logger.Warn("prune run", "run", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("pruned old runs", "removed", removed, "max_age", j.maxAge)
	}
}
