package retention

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawinfra/taskclaw/internal/config"
)

func TestNew_DisabledReturnsNil(t *testing.T) {
	j, err := New(config.RetentionConfig{Enabled: false}, t.TempDir(), slog.Default())
	if err != nil || j != nil {
		t.Errorf("disabled retention must yield (nil, nil), got %v, %v", j, err)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	if _, err := New(config.RetentionConfig{Enabled: true, Schedule: "0 3 * * *", MaxAgeDays: 0}, t.TempDir(), slog.Default()); err == nil {
		t.Error("zero max age must be rejected")
	}
	if _, err := New(config.RetentionConfig{Enabled: true, Schedule: "not a cron", MaxAgeDays: 7}, t.TempDir(), slog.Default()); err == nil {
		t.Error("bad schedule must be rejected")
	}
}

func TestSweep_RemovesOnlyOldRuns(t *testing.T) {
	root := t.TempDir()
	runsDir := filepath.Join(root, "runs")

	makeRun := func(name string, age time.Duration) string {
		dir := filepath.Join(runsDir, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		logPath := filepath.Join(dir, "runlog.jsonl")
		if err := os.WriteFile(logPath, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		old := time.Now().Add(-age)
		if err := os.Chtimes(logPath, old, old); err != nil {
			t.Fatal(err)
		}
		return dir
	}

	oldRun := makeRun("20240101-000000-aaaaaa", 40*24*time.Hour)
	freshRun := makeRun("20260801-000000-bbbbbb", time.Hour)

	j, err := New(config.RetentionConfig{Enabled: true, Schedule: "0 3 * * *", MaxAgeDays: 30}, root, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	j.Sweep()

	if _, err := os.Stat(oldRun); !os.IsNotExist(err) {
		t.Error("old run should have been pruned")
	}
	if _, err := os.Stat(freshRun); err != nil {
		t.Error("fresh run must survive the sweep")
	}
}
