package types

import (
	"regexp"
	"testing"
	"time"
)

func TestBuildTask_Normalisation(t *testing.T) {
	task := BuildTask("  do a thing  ", "   ", "", true)
	if task.Prompt != "do a thing" {
		t.Errorf("prompt = %q", task.Prompt)
	}
	if task.SpecialistID != "" {
		t.Errorf("whitespace specialist id must normalise to empty, got %q", task.SpecialistID)
	}
	if task.ModelKey != "quality" {
		t.Errorf("empty model key must default to quality, got %q", task.ModelKey)
	}

	task = BuildTask("x", " engineering ", "fast", false)
	if task.SpecialistID != "engineering" || task.ModelKey != "fast" {
		t.Errorf("task = %+v", task)
	}
}

func TestNewRunID_Shape(t *testing.T) {
	now := time.Date(2026, 8, 2, 15, 4, 5, 0, time.UTC)
	id := NewRunID(now)
	pattern := regexp.MustCompile(`^20260802-150405-[0-9a-f]{6}$`)
	if !pattern.MatchString(id.String()) {
		t.Errorf("run id = %q", id)
	}
}

func TestNewRunID_UTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	now := time.Date(2026, 8, 2, 5, 0, 0, 0, loc) // 00:00 UTC
	id := NewRunID(now)
	if id.String()[:15] != "20260802-000000" {
		t.Errorf("run id must be UTC, got %q", id)
	}
}

func TestNewRunID_Unique(t *testing.T) {
	now := time.Now()
	seen := map[RunID]bool{}
	for i := 0; i < 50; i++ {
		id := NewRunID(now)
		if seen[id] {
			t.Fatalf("duplicate run id %q", id)
		}
		seen[id] = true
	}
}
