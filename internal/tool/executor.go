// Package tool implements the ToolExecutor capability (spec.md §6) and a
// reference Registry of filesystem/network tools a vault-resident agent
// plausibly needs, grounded on the teacher's internal/tool package.
package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentvault/runtime/internal/retry"
	"github.com/agentvault/runtime/internal/rterr"
)

// Call is one invocation the model asked the executor to perform.
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Result is Execute's return shape; Duration is always populated, even on
// error, per spec.md §6.
type Result struct {
	ToolCallID string
	Name       string
	Result     any
	Error      string
	Duration   time.Duration
}

// Executor is the capability the core's EXECUTE stage consumes. The core
// supplies scope unchanged from the agent definition; interpretation is
// the executor's concern (spec.md §6).
type Executor interface {
	Execute(ctx context.Context, call Call, scope string, timeout time.Duration) Result
	HasTool(name string) bool
}

// Func implements one named tool's behavior, given the call's arguments
// and the agent's scope string.
type Func func(ctx context.Context, args map[string]any, scope string) (any, error)

// Registry is the reference Executor: a fixed set of tools, each call
// wrapped under the Retry Manager's TOOL_TRANSIENT class and bounded by a
// per-call timeout.
type Registry struct {
	tools map[string]Func
	Retry *retry.Manager
}

// NewRegistry creates a Registry with the standard reference tools
// (read, write, edit, glob, grep, webfetch) pre-registered.
func NewRegistry(retryMgr *retry.Manager) *Registry {
	r := &Registry{tools: make(map[string]Func), Retry: retryMgr}
	r.Register("read", readTool)
	r.Register("write", writeTool)
	r.Register("edit", editTool)
	r.Register("glob", globTool)
	r.Register("grep", grepTool)
	r.Register("webfetch", webfetchTool)
	return r
}

// Register adds or replaces a named tool.
func (r *Registry) Register(name string, fn Func) { r.tools[name] = fn }

// HasTool reports whether name is registered.
func (r *Registry) HasTool(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Execute runs call's tool, bounding it by timeout and retrying transient
// failures under r.Retry when configured.
func (r *Registry) Execute(ctx context.Context, call Call, scope string, timeout time.Duration) Result {
	start := time.Now()
	fn, ok := r.tools[call.Name]
	if !ok {
		return Result{ToolCallID: call.ID, Name: call.Name, Error: "unknown tool: " + call.Name, Duration: time.Since(start)}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var out any
	run := func(c context.Context) error {
		var err error
		out, err = fn(c, call.Arguments, scope)
		return err
	}

	var err error
	if r.Retry != nil {
		err = r.Retry.Do(callCtx, "tool."+call.Name, func(c context.Context) error {
			runErr := run(c)
			if runErr != nil {
				if _, tagged := rterr.CodeOf(runErr); !tagged {
					// Unclassified failures from tool code default to
					// TOOL_TRANSIENT so the retry policy can act on them.
					return rterr.Wrap(rterr.ToolTransient, runErr)
				}
			}
			return runErr
		})
	} else {
		err = run(callCtx)
	}

	res := Result{ToolCallID: call.ID, Name: call.Name, Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Result = out
	return res
}

// MarshalResult renders a tool Result's payload as the content of the
// role=tool message EXECUTE hands back to the LLM: JSON on success,
// "Error: …" on failure.
func MarshalResult(res Result) string {
	if res.Error != "" {
		return "Error: " + res.Error
	}
	data, err := json.Marshal(res.Result)
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(data)
}
