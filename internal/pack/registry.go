package pack

import (
	"fmt"
	"log/slog"

	"github.com/clawinfra/taskclaw/internal/features"
	"github.com/clawinfra/taskclaw/internal/mcp"
)

// Registry resolves specialist packs by id, layering operator manifests
// and remote tool servers onto the native packs.
type Registry struct {
	manifests  []Manifest
	mcpServers []mcp.ServerConfig
	featureSet features.Set
	logger     *slog.Logger
}

// NewRegistry builds a registry. manifests and mcpServers may be empty.
func NewRegistry(manifests []Manifest, mcpServers []mcp.ServerConfig, featureSet features.Set, logger *slog.Logger) *Registry {
	return &Registry{
		manifests:  manifests,
		mcpServers: mcpServers,
		featureSet: featureSet,
		logger:     logger,
	}
}

// ListIDs returns the ids the registry can build, in priority order.
func (r *Registry) ListIDs() []string {
	return []string{"engineering", "research"}
}

// GetPack builds the pack for specialistID over the given workspace.
// Manifest tools for the specialist are applied, and when MCP servers
// are configured (and the feature is on) the pack is wrapped with the
// augmenting decorator.
func (r *Registry) GetPack(specialistID, workspacePath string, networkAllowed bool) (SpecialistPack, error) {
	var built SpecialistPack
	var base *basePack

	switch specialistID {
	case "engineering":
		p := BuildEngineeringPack(workspacePath, networkAllowed, r.logger)
		built, base = p, p.basePack
	case "research":
		p := BuildResearchPack(workspacePath, networkAllowed, r.logger)
		built, base = p, p.basePack
	default:
		return nil, fmt.Errorf("unknown specialist %q (known: %v)", specialistID, r.ListIDs())
	}

	for _, m := range r.manifests {
		if m.Pack == specialistID {
			base.applyManifest(m)
		}
	}

	if len(r.mcpServers) == 0 {
		return built, nil
	}
	if err := r.featureSet.Require(features.FeatureMCP, "enable the mcp feature or remove the mcp servers file"); err != nil {
		return nil, err
	}

	sessions := make([]*mcp.Session, 0, len(r.mcpServers))
	for _, cfg := range r.mcpServers {
		session, err := mcp.NewSession(cfg, r.logger)
		if err != nil {
			return nil, fmt.Errorf("mcp server %q: %w", cfg.Name, err)
		}
		sessions = append(sessions, session)
	}
	return NewAugmentedPack(built, sessions, r.logger), nil
}
