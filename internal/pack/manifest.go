package pack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Manifest declares operator-defined tools for one specialist, loaded
// from packs.d/*.toml. Manifest binaries are operator-trusted: they are
// added to the sandbox allowlist for the run.
type Manifest struct {
	Pack  string         `toml:"pack"`
	Tools []ManifestTool `toml:"tools"`
}

// ManifestTool maps one named tool onto a subprocess.
type ManifestTool struct {
	Name        string             `toml:"name"`
	Description string             `toml:"description"`
	Command     string             `toml:"command"`
	Args        []string           `toml:"args"`
	TimeoutMS   int                `toml:"timeout_ms"`
	Parameters  ManifestParameters `toml:"parameters"`
}

// ManifestParameters is the tool's argument schema in TOML form.
type ManifestParameters struct {
	Properties map[string]ManifestParam `toml:"properties"`
	Required   []string                 `toml:"required"`
}

// ManifestParam defines a single argument.
type ManifestParam struct {
	Type        string `toml:"type"`
	Description string `toml:"description"`
}

// LoadManifests reads every *.toml under dir. A missing dir yields none.
func LoadManifests(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read packs dir: %w", err)
	}

	var manifests []Manifest
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		var m Manifest
		if _, err := toml.DecodeFile(filepath.Join(dir, entry.Name()), &m); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", entry.Name(), err)
		}
		if m.Pack == "" {
			return nil, fmt.Errorf("manifest %s has no pack field", entry.Name())
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// schema converts the TOML parameter block to a JSON-Schema object.
func (t *ManifestTool) schema() map[string]any {
	properties := make(map[string]any, len(t.Parameters.Properties))
	for name, param := range t.Parameters.Properties {
		properties[name] = map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
	}
	required := t.Parameters.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// timeout returns the tool's timeout with a 30 s default.
func (t *ManifestTool) timeout() time.Duration {
	if t.TimeoutMS > 0 {
		return time.Duration(t.TimeoutMS) * time.Millisecond
	}
	return 30 * time.Second
}

// applyManifest registers a manifest's tools onto the pack's base. Args
// named $key in the manifest argv are substituted from the model's
// arguments at call time.
func (p *basePack) applyManifest(m Manifest) {
	for _, tool := range m.Tools {
		p.policy.AllowedCommands = append(p.policy.AllowedCommands, tool.Command)
		def := MakeToolDef(tool.Name, tool.Description, tool.schema())
		p.register(def, p.manifestHandler(tool))
	}
}

func (p *basePack) manifestHandler(tool ManifestTool) Handler {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		argv := make([]string, 0, len(tool.Args)+1)
		argv = append(argv, tool.Command)
		for _, arg := range tool.Args {
			if len(arg) > 1 && arg[0] == '$' {
				if val, ok := args[arg[1:]]; ok {
					argv = append(argv, fmt.Sprintf("%v", val))
					continue
				}
				argv = append(argv, "")
				continue
			}
			argv = append(argv, arg)
		}

		result, err := p.policy.RunCmd(ctx, argv, "", tool.timeout())
		if err != nil {
			return toolError(err), nil
		}
		return map[string]any{
			"cmd":        result.Cmd,
			"returncode": result.ReturnCode,
			"stdout":     result.Stdout,
			"stderr":     result.Stderr,
		}, nil
	}
}
