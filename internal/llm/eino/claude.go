// Package eino adapts Eino's Claude chat model to the internal/llm.Handler
// capability interface, grounded on the teacher's internal/provider
// package. It is the one concrete LLMHandler this repo ships; any other
// provider is out of scope per spec.md §1.
package eino

import (
	"context"
	"encoding/json"
	"io"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/agentvault/runtime/internal/llm"
)

// Config configures the Claude chat model.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	UseBedrock bool
	Region     string
	Profile    string
}

// Handler implements llm.Handler atop an Eino ToolCallingChatModel.
type Handler struct {
	chatModel model.ToolCallingChatModel
}

// NewClaudeHandler constructs a Handler from cfg.
func NewClaudeHandler(ctx context.Context, cfg Config) (*Handler, error) {
	modelID := cfg.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	einoCfg := &claude.Config{
		APIKey:    cfg.APIKey,
		Model:     modelID,
		MaxTokens: maxTokens,
	}
	if cfg.BaseURL != "" {
		einoCfg.BaseURL = &cfg.BaseURL
	}
	if cfg.UseBedrock {
		einoCfg.ByBedrock = true
		einoCfg.Region = cfg.Region
		einoCfg.Profile = cfg.Profile
	}

	chatModel, err := claude.NewChatModel(ctx, einoCfg)
	if err != nil {
		return nil, err
	}
	return &Handler{chatModel: chatModel}, nil
}

// Chat implements llm.Handler. Eino's chat models are stream-first; this
// adapter collects the stream into one non-streaming ChatResponse so the
// core never observes the streaming optimization (spec.md §9).
func (h *Handler) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	chatModel := h.chatModel
	if len(req.Tools) > 0 {
		toolInfos := toEinoTools(req.Tools)
		bound, err := chatModel.WithTools(toolInfos)
		if err != nil {
			return llm.ChatResponse{}, err
		}
		chatModel = bound
	}

	messages := toEinoMessages(req)
	stream, err := chatModel.Stream(ctx, messages)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	defer stream.Close()

	return collectStream(stream)
}

func toEinoMessages(req llm.ChatRequest) []*schema.Message {
	messages := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, &schema.Message{Role: schema.System, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, &schema.Message{Role: toEinoRole(m.Role), Content: m.Content})
	}
	return messages
}

func toEinoRole(r llm.Role) schema.RoleType {
	switch r {
	case llm.RoleUser:
		return schema.User
	case llm.RoleSystem:
		return schema.System
	case llm.RoleTool:
		return schema.Tool
	default:
		return schema.Assistant
	}
}

func toEinoTools(tools []llm.ToolDef) []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		out[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(toEinoParams(t.Parameters)),
		}
	}
	return out
}

func toEinoParams(jsonSchema map[string]any) map[string]*schema.ParameterInfo {
	if jsonSchema == nil {
		return nil
	}
	props, _ := jsonSchema["properties"].(map[string]any)
	required := map[string]bool{}
	if req, ok := jsonSchema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	params := make(map[string]*schema.ParameterInfo, len(props))
	for name, raw := range props {
		prop, _ := raw.(map[string]any)
		paramType := schema.String
		desc, _ := prop["description"].(string)
		switch prop["type"] {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{Type: paramType, Desc: desc, Required: required[name]}
	}
	return params
}

// collectStream drains a stream of message deltas into one ChatResponse,
// concatenating content and keying tool calls by ID; a chunk's arguments
// replace the call's earlier ones when they parse as a JSON object.
func collectStream(stream *schema.StreamReader[*schema.Message]) (llm.ChatResponse, error) {
	var content string
	toolCalls := map[string]*llm.ToolCall{}
	var order []string
	var usage llm.Usage

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return llm.ChatResponse{}, err
		}

		content += chunk.Content
		for _, tc := range chunk.ToolCalls {
			id := tc.ID
			existing, ok := toolCalls[id]
			if !ok {
				existing = &llm.ToolCall{ID: id, Name: tc.Function.Name, Arguments: map[string]any{}}
				toolCalls[id] = existing
				order = append(order, id)
			}
			if tc.Function.Name != "" {
				existing.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				var args map[string]any
				if json.Unmarshal([]byte(tc.Function.Arguments), &args) == nil {
					existing.Arguments = args
				}
			}
		}
		if chunk.ResponseMeta != nil && chunk.ResponseMeta.Usage != nil {
			usage.InputTokens = chunk.ResponseMeta.Usage.PromptTokens
			usage.OutputTokens = chunk.ResponseMeta.Usage.CompletionTokens
			usage.TotalTokens = chunk.ResponseMeta.Usage.TotalTokens
		}
	}

	calls := make([]llm.ToolCall, 0, len(order))
	for _, id := range order {
		calls = append(calls, *toolCalls[id])
	}

	return llm.ChatResponse{Content: content, ToolCalls: calls, Usage: usage}, nil
}
