package pack

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MakeToolDef builds an OpenAI function-tool definition.
func MakeToolDef(name, description string, parameters map[string]any) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        name,
			"description": description,
			"parameters":  parameters,
		},
	}
}

// MakeFinishToolDef builds the finish_task definition for a pack.
func MakeFinishToolDef(description string, properties map[string]any, required []string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return MakeToolDef(FinishToolName, description, map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
}

// toolDefName extracts function.name from a tool definition.
func toolDefName(def map[string]any) string {
	fn, _ := def["function"].(map[string]any)
	name, _ := fn["name"].(string)
	return name
}

// Shared file-tool definitions used by every native pack.

func readFileToolDef() map[string]any {
	return MakeToolDef("read_file",
		"Read the UTF-8 text content of a file in the workspace.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Relative path inside the workspace."},
			},
			"required": []string{"path"},
		})
}

func writeFileToolDef() map[string]any {
	return MakeToolDef("write_file",
		"Write (or overwrite) a file in the workspace, creating parent directories as needed.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "Relative path inside the workspace."},
				"content": map[string]any{"type": "string", "description": "File content as a UTF-8 string."},
			},
			"required": []string{"path", "content"},
		})
}

func listFilesToolDef() map[string]any {
	return MakeToolDef("list_files",
		"List all files currently in the workspace.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"max_files": map[string]any{"type": "integer", "description": "Maximum number of files to return (default 500)."},
			},
			"required": []string{},
		})
}

func shellToolDef() map[string]any {
	return MakeToolDef("shell",
		"Run a command inside the workspace sandbox. Only allowlisted binaries run; stdout/stderr are truncated.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cmd": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Command argv, e.g. [\"python\", \"hello.py\"].",
				},
				"timeout_s": map[string]any{"type": "integer", "description": "Wall-clock timeout in seconds (default 120)."},
			},
			"required": []string{"cmd"},
		})
}

// argsValidator checks tool-call arguments against the definition's
// JSON-Schema parameters before the handler runs.
type argsValidator struct {
	schema *jsonschema.Schema
}

// compileArgsValidator compiles function.parameters from a tool def.
// Returns (nil, nil) when the definition carries no parameters object.
func compileArgsValidator(def map[string]any) (*argsValidator, error) {
	fn, _ := def["function"].(map[string]any)
	params, ok := fn["parameters"].(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("tool.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("tool.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &argsValidator{schema: schema}, nil
}

func (v *argsValidator) validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	// Round-trip so numeric types match what jsonschema expects.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal arguments: %w", err)
	}
	return v.schema.Validate(doc)
}
