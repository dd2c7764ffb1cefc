package tool

import "github.com/agentvault/runtime/internal/llm"

// DefaultDefs returns the llm.ToolDef schema for every reference tool in
// the Registry, for CONTEXT to hand to the LLMHandler.
func DefaultDefs() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        "read",
			Description: "Read a file under the agent's scope.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []any{"path"},
			},
		},
		{
			Name:        "write",
			Description: "Create or overwrite a file under the agent's scope.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				},
				"required": []any{"path", "content"},
			},
		},
		{
			Name:        "edit",
			Description: "Replace oldString with newString in a file under the agent's scope, falling back to a fuzzy match.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":      map[string]any{"type": "string"},
					"oldString": map[string]any{"type": "string"},
					"newString": map[string]any{"type": "string"},
				},
				"required": []any{"path", "oldString", "newString"},
			},
		},
		{
			Name:        "glob",
			Description: "Match files under the agent's scope against a glob pattern.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"pattern": map[string]any{"type": "string"}},
				"required":   []any{"pattern"},
			},
		},
		{
			Name:        "grep",
			Description: "Search files under the agent's scope for lines matching a regular expression.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern": map[string]any{"type": "string"},
					"include": map[string]any{"type": "string", "description": "glob filter for candidate files"},
				},
				"required": []any{"pattern"},
			},
		},
		{
			Name:        "webfetch",
			Description: "Fetch a URL and return its content as markdown, text, or raw HTML.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url":    map[string]any{"type": "string"},
					"format": map[string]any{"type": "string", "enum": []any{"markdown", "text", "html"}},
				},
				"required": []any{"url", "format"},
			},
		},
	}
}
