package loop

import (
	"context"
	"time"

	"github.com/agentvault/runtime/internal/event"
	"github.com/agentvault/runtime/internal/llm"
	"github.com/agentvault/runtime/internal/rterr"
	"github.com/agentvault/runtime/internal/session"
	"github.com/agentvault/runtime/internal/tool"
)

// ExecuteOutput is EXECUTE's return shape (spec.md §4.9).
type ExecuteOutput struct {
	Response    string
	ToolCalls   []llm.ToolCall
	ToolResults []tool.Result
	Usage       event.Usage
	Aborted     bool
	Error       error
}

// execute runs the LLM/tool iteration loop, bounded by
// cfg.MaxToolIterations, per spec.md §4.9.
func (r *Runner) execute(ctx context.Context, in IntakeOutput, ctxOut ContextOutput, turn Input) ExecuteOutput {
	cfg := r.Execute
	start := time.Now()

	if turn.Abort != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-turn.Abort:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	messages := append([]llm.Message{}, toLLMMessages(ctxOut.History)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: turn.Message})

	var out ExecuteOutput
	var finalText string
	haveFinal := false

	for iteration := 1; iteration <= cfg.MaxToolIterations; iteration++ {
		if aborted(turn.Abort) {
			out.Aborted = true
			return out
		}
		if time.Since(start) > cfg.ExecutionTimeout {
			out.Error = rterr.New(rterr.ExecutionTimeout, "execute stage exceeded its time budget")
			return out
		}

		r.publish(event.LLMStart, in.RunID, in.SessionID, "", event.LLMStartData{Iteration: iteration})

		var resp llm.ChatResponse
		var err error
		chat := func(c context.Context) error {
			resp, err = r.LLM.Chat(c, llm.ChatRequest{SystemPrompt: ctxOut.SystemPrompt, Messages: messages, Tools: ctxOut.ToolDefs})
			return err
		}
		if r.Retry != nil {
			err = r.Retry.Do(ctx, "llm.chat", func(c context.Context) error {
				if callErr := chat(c); callErr != nil {
					if _, tagged := rterr.CodeOf(callErr); !tagged {
						return rterr.Wrap(rterr.LLMTransient, callErr)
					}
					return callErr
				}
				return nil
			})
		} else {
			err = chat(ctx)
		}
		if err != nil {
			if aborted(turn.Abort) {
				out.Aborted = true
				return out
			}
			out.Error = err
			return out
		}

		out.Usage.InputTokens += resp.Usage.InputTokens
		out.Usage.OutputTokens += resp.Usage.OutputTokens
		out.Usage.TotalTokens += resp.Usage.TotalTokens

		r.publish(event.LLMEnd, in.RunID, in.SessionID, "", event.LLMEndData{
			Iteration: iteration, HasToolCalls: len(resp.ToolCalls) > 0,
			Usage: event.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens, TotalTokens: resp.Usage.TotalTokens},
		})

		if len(resp.ToolCalls) == 0 {
			finalText = resp.Content
			haveFinal = true
			break
		}

		out.ToolCalls = append(out.ToolCalls, resp.ToolCalls...)
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

		for _, call := range resp.ToolCalls {
			if aborted(turn.Abort) {
				out.Aborted = true
				return out
			}

			toolStart := time.Now()
			r.publish(event.ToolStart, in.RunID, in.SessionID, "", event.ToolStartData{
				ToolCallID: call.ID, ToolName: call.Name, Arguments: call.Arguments,
			})

			res := r.Tools.Execute(ctx, tool.Call{ID: call.ID, Name: call.Name, Arguments: call.Arguments}, in.AgentDef.Frontmatter.Scope, cfg.ToolTimeout)
			out.ToolResults = append(out.ToolResults, res)

			r.publish(event.ToolEnd, in.RunID, in.SessionID, "", event.ToolEndData{
				ToolCallID: call.ID, ToolName: call.Name, Duration: time.Since(toolStart).Milliseconds(),
				Success: res.Error == "", Error: res.Error,
			})

			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: tool.MarshalResult(res)})
		}
	}

	if !haveFinal {
		finalText = "[Max tool iterations reached]"
	}
	out.Response = finalText
	return out
}

func aborted(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func toLLMMessages(history []*session.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		out = append(out, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	return out
}
