package pack

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/clawinfra/taskclaw/internal/mcp"
)

// AugmentedPack joins remote tool servers onto an inner pack. It holds
// the inner pack rather than extending it: specialist identity, system
// prompt, and finish semantics all pass through unchanged, while the
// tool surface grows by the servers' namespaced tools.
type AugmentedPack struct {
	inner    SpecialistPack
	sessions []*mcp.Session
	remote   []map[string]any
	logger   *slog.Logger
}

// NewAugmentedPack wraps inner with the given sessions. Connections open
// on Open, not here.
func NewAugmentedPack(inner SpecialistPack, sessions []*mcp.Session, logger *slog.Logger) *AugmentedPack {
	return &AugmentedPack{
		inner:    inner,
		sessions: sessions,
		logger:   logger.With("component", "augmented_pack", "pack", inner.SpecialistID()),
	}
}

// Open opens the inner pack first (its lifecycle hooks must run before
// remote sessions exist), then connects all sessions concurrently and
// aggregates their advertised tools. Any connect failure fails the open.
func (p *AugmentedPack) Open(ctx context.Context) error {
	if err := p.inner.Open(ctx); err != nil {
		return err
	}

	// A plain group, not errgroup.WithContext: stdio transports bind their
	// subprocess to the connect context, and the derived context would be
	// cancelled as soon as Wait returns.
	var g errgroup.Group
	for _, session := range p.sessions {
		g.Go(func() error { return session.Connect(ctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var remote []map[string]any
	for _, session := range p.sessions {
		tools, err := session.ListTools(ctx)
		if err != nil {
			return err
		}
		remote = append(remote, tools...)
	}
	p.remote = remote

	p.logger.Debug("augmented pack opened",
		"sessions", len(p.sessions), "remote_tools", len(p.remote))
	return nil
}

// Close disconnects every session, swallowing per-session failures so a
// single broken server never blocks cleanup. The inner pack always
// closes.
func (p *AugmentedPack) Close(ctx context.Context) error {
	for _, session := range p.sessions {
		if err := session.Disconnect(); err != nil {
			p.logger.Warn("session failed to disconnect", "server", session.Name(), "error", err)
		}
	}
	if err := p.inner.Close(ctx); err != nil {
		p.logger.Warn("inner pack failed to close", "error", err)
	}
	return nil
}

func (p *AugmentedPack) SpecialistID() string           { return p.inner.SpecialistID() }
func (p *AugmentedPack) SystemPrompt() string           { return p.inner.SystemPrompt() }
func (p *AugmentedPack) FinishToolName() string         { return p.inner.FinishToolName() }
func (p *AugmentedPack) FinishRequiredFields() []string { return p.inner.FinishRequiredFields() }

// ToolDefinitions returns inner tools followed by remote tools
// (populated after Open).
func (p *AugmentedPack) ToolDefinitions() []map[string]any {
	inner := p.inner.ToolDefinitions()
	out := make([]map[string]any, 0, len(inner)+len(p.remote))
	out = append(out, inner...)
	out = append(out, p.remote...)
	return out
}

// ExecuteTool routes namespaced tools to their owning session and
// everything else to the inner pack.
func (p *AugmentedPack) ExecuteTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	for _, session := range p.sessions {
		if session.OwnsTool(name) {
			return session.CallTool(ctx, name, args)
		}
	}
	return p.inner.ExecuteTool(ctx, name, args)
}

// ValidateFinishPayload forwards to the inner pack.
func (p *AugmentedPack) ValidateFinishPayload(args map[string]any) string {
	return p.inner.ValidateFinishPayload(args)
}
