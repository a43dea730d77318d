package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunCmd_EmptyArgvDenied(t *testing.T) {
	p := testPolicy(t)
	if _, err := p.RunCmd(context.Background(), nil, "", 0); err == nil {
		t.Error("expected empty argv to be denied")
	}
}

func TestRunCmd_DisallowedCommandNeverExecutes(t *testing.T) {
	p := testPolicy(t)
	_, err := p.RunCmd(context.Background(), []string{"curl", "http://example.com"}, "", 0)
	var pd *PermissionDenied
	if !errors.As(err, &pd) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestRunCmd_CwdOutsideRootDenied(t *testing.T) {
	p := testPolicy(t)
	outside := t.TempDir()
	_, err := p.RunCmd(context.Background(), []string{"ls"}, outside, 0)
	var pd *PermissionDenied
	if !errors.As(err, &pd) {
		t.Fatalf("expected PermissionDenied for outside cwd, got %v", err)
	}
}

func TestRunCmd_CapturesOutput(t *testing.T) {
	p := testPolicy(t)
	result, err := p.RunCmd(context.Background(), []string{"sh", "-c", "echo hello"}, "", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnCode != 0 {
		t.Errorf("returncode = %d, want 0", result.ReturnCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("stdout = %q, want hello", result.Stdout)
	}
}

func TestRunCmd_NonZeroExitReported(t *testing.T) {
	p := testPolicy(t)
	result, err := p.RunCmd(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 3"}, "", 0)
	if err != nil {
		t.Fatalf("non-zero exit should be a result, not an error: %v", err)
	}
	if result.ReturnCode != 3 {
		t.Errorf("returncode = %d, want 3", result.ReturnCode)
	}
	if !strings.Contains(result.Stderr, "oops") {
		t.Errorf("stderr = %q, want oops", result.Stderr)
	}
}

func TestRunCmd_TruncatesOutput(t *testing.T) {
	p := testPolicy(t)
	p.MaxOutputChars = 100
	result, err := p.RunCmd(context.Background(),
		[]string{"sh", "-c", "i=0; while [ $i -lt 50 ]; do printf 0123456789; i=$((i+1)); done"}, "", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReturnCode != 0 {
		t.Errorf("returncode = %d, want 0", result.ReturnCode)
	}
	if !strings.Contains(result.Stdout, "[truncated 400 chars]") {
		t.Errorf("stdout missing truncation marker: %q", result.Stdout)
	}
	if len(result.Stdout) > 100+len("\n... [truncated 400 chars]") {
		t.Errorf("stdout too long: %d chars", len(result.Stdout))
	}
}

func TestRunCmd_Timeout(t *testing.T) {
	p := testPolicy(t)
	_, err := p.RunCmd(context.Background(), []string{"sh", "-c", "sleep 5"}, "", 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want timeout", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 150)
	got := truncate(long, 100)
	if !strings.HasPrefix(got, strings.Repeat("x", 100)) {
		t.Error("truncated output must keep the prefix")
	}
	if !strings.Contains(got, "[truncated 50 chars]") {
		t.Errorf("missing marker: %q", got)
	}
}

func TestQuoteArgv(t *testing.T) {
	got := quoteArgv([]string{"python", "-c", "print('hi')"})
	if !strings.HasPrefix(got, "python -c ") {
		t.Errorf("quoteArgv = %q", got)
	}
	if !strings.Contains(got, "'") {
		t.Errorf("argument with quotes should be quoted: %q", got)
	}
}
