package pack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/clawinfra/taskclaw/internal/sandbox"
)

const defaultMaxListFiles = 500

// registerFileTools wires the shared read/write/list tools over the
// pack's sandbox policy.
func (p *basePack) registerFileTools() {
	p.register(readFileToolDef(), p.readFile)
	p.register(writeFileToolDef(), p.writeFile)
	p.register(listFilesToolDef(), p.listFiles)
}

func (p *basePack) readFile(ctx context.Context, args map[string]any) (map[string]any, error) {
	rel, _ := args["path"].(string)
	path, err := p.policy.SafePath(rel)
	if err != nil {
		return toolError(err), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return toolError(fmt.Errorf("read %s: %w", rel, err)), nil
	}
	content := string(data)
	if max := p.policy.MaxOutputChars; max > 0 && len(content) > max {
		content = content[:max] + fmt.Sprintf("\n... [truncated %d chars]", len(content)-max)
	}
	return map[string]any{"path": rel, "content": content}, nil
}

func (p *basePack) writeFile(ctx context.Context, args map[string]any) (map[string]any, error) {
	rel, _ := args["path"].(string)
	content, _ := args["content"].(string)
	path, err := p.policy.SafePath(rel)
	if err != nil {
		return toolError(err), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return toolError(fmt.Errorf("create parent dirs for %s: %w", rel, err)), nil
	}
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return toolError(fmt.Errorf("write %s: %w", rel, err)), nil
	}
	return map[string]any{"path": rel, "bytes_written": len(content)}, nil
}

func (p *basePack) listFiles(ctx context.Context, args map[string]any) (map[string]any, error) {
	maxFiles := defaultMaxListFiles
	if v, ok := args["max_files"].(float64); ok && v > 0 {
		maxFiles = int(v)
	}

	root, err := filepath.Abs(p.policy.Root)
	if err != nil {
		return toolError(err), nil
	}

	var files []string
	truncated := false
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, rel)
		if len(files) >= maxFiles {
			truncated = true
			return errors.New("limit")
		}
		return nil
	})
	if err != nil && !truncated {
		return toolError(fmt.Errorf("walk workspace: %w", err)), nil
	}
	sort.Strings(files)

	result := map[string]any{"files": files, "count": len(files)}
	if truncated {
		result["truncated"] = true
	}
	return result, nil
}

// runShell executes the shell tool against the sandbox.
func (p *basePack) runShell(ctx context.Context, args map[string]any) (map[string]any, error) {
	argv := toStringSlice(args["cmd"])
	if len(argv) == 0 {
		return toolError(errors.New("cmd must be a non-empty array of strings")), nil
	}

	timeout := sandbox.DefaultCommandTimeout
	if v, ok := args["timeout_s"].(float64); ok && v > 0 {
		timeout = time.Duration(v * float64(time.Second))
	}

	result, err := p.policy.RunCmd(ctx, argv, "", timeout)
	if err != nil {
		var pd *sandbox.PermissionDenied
		if errors.As(err, &pd) {
			return toolError(pd), nil
		}
		return toolError(err), nil
	}
	return map[string]any{
		"cmd":        result.Cmd,
		"returncode": result.ReturnCode,
		"stdout":     result.Stdout,
		"stderr":     result.Stderr,
	}, nil
}

func toolError(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}
