// Package cli implements the taskclaw command-line interface: one task
// end to end, the HTTP API server, and run-log inspection.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/clawinfra/taskclaw/internal/bootstrap"
	"github.com/clawinfra/taskclaw/internal/config"
	"github.com/clawinfra/taskclaw/internal/features"
	"github.com/clawinfra/taskclaw/internal/mcp"
	"github.com/clawinfra/taskclaw/internal/pack"
	"github.com/clawinfra/taskclaw/internal/runlog"
	"github.com/clawinfra/taskclaw/internal/task"
)

// WorkspaceEnv overrides the configured workspace root.
const WorkspaceEnv = "TASKCLAW_WORKSPACE"

// JWTSecretEnv supplies the API signing secret without putting it in the
// config file.
const JWTSecretEnv = "TASKCLAW_JWT_SECRET"

// app bundles the dependencies every command needs.
type app struct {
	cfg    *config.Config
	repo   *runlog.Repository
	logger *slog.Logger
}

// setup loads config and builds the shared dependencies. verbose drops
// the log level to debug on stderr.
func setup(configPath string, verbose bool) (*app, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	root := cfg.Server.WorkspaceRoot
	if env := os.Getenv(WorkspaceEnv); env != "" {
		root = env
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	return &app{
		cfg:    cfg,
		repo:   runlog.NewRepository(root),
		logger: logger,
	}, nil
}

// buildRunner assembles the pack registry and task runner from config.
func (a *app) buildRunner(extra ...task.RunnerOption) (*task.Runner, error) {
	var manifests []pack.Manifest
	if a.cfg.PacksDir != "" {
		loaded, err := pack.LoadManifests(a.cfg.PacksDir)
		if err != nil {
			return nil, err
		}
		manifests = loaded
	}

	var servers []mcp.ServerConfig
	if a.cfg.MCPServers != "" {
		loaded, err := mcp.LoadServers(a.cfg.MCPServers)
		if err != nil {
			return nil, err
		}
		servers = loaded
	}

	// Feature defaults come from the detected tier when available;
	// medium is a safe middle ground otherwise.
	tier := features.TierMedium
	if profile, _ := bootstrap.LoadDetected("", a.logger); profile != nil {
		tier = profile.Tier
	}
	featureSet := features.FromTier(tier, a.cfg.Features)

	registry := pack.NewRegistry(manifests, servers, featureSet, a.logger)

	var opts []task.RunnerOption
	if idx, err := runlog.OpenIndex(filepath.Join(a.repo.WorkspaceRoot(), "runs.db")); err == nil {
		opts = append(opts, task.WithRunIndex(idx))
	} else {
		a.logger.Warn("run index unavailable", "error", err)
	}

	opts = append(opts, extra...)
	return task.NewRunner(a.cfg, a.repo, registry, featureSet, a.logger, opts...), nil
}
