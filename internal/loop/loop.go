// Package loop composes the four-stage agent turn: INTAKE, CONTEXT,
// EXECUTE, PERSIST (spec.md §4.9). Each stage returns a structured
// output; only the Retry Manager's escalation surfaces as a thrown
// error, and this package catches it at exactly one place (spec.md
// §5's "Propagation policy").
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/agentvault/runtime/internal/event"
	"github.com/agentvault/runtime/internal/llm"
	"github.com/agentvault/runtime/internal/memory"
	"github.com/agentvault/runtime/internal/retry"
	"github.com/agentvault/runtime/internal/session"
	"github.com/agentvault/runtime/internal/tool"
)

// ContextConfig parameterizes CONTEXT (spec.md §4.9).
type ContextConfig struct {
	ContextWindow         int
	ReserveTokens         int
	FlushThreshold        float64
	CompactionThreshold   float64
	MaxHistoryMessages    int
	KeepRecentToolResults int
}

// DefaultContextConfig mirrors spec.md §4.9's stated defaults.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		ContextWindow:         100_000,
		ReserveTokens:         4_000,
		FlushThreshold:        0.70,
		CompactionThreshold:   0.85,
		MaxHistoryMessages:    100,
		KeepRecentToolResults: 5,
	}
}

// ExecuteConfig parameterizes EXECUTE (spec.md §4.9).
type ExecuteConfig struct {
	MaxToolIterations int
	ExecutionTimeout  time.Duration
	ToolTimeout       time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
}

// DefaultExecuteConfig mirrors spec.md §4.9's stated defaults.
func DefaultExecuteConfig() ExecuteConfig {
	return ExecuteConfig{
		MaxToolIterations: 10,
		ExecutionTimeout:  10 * time.Minute,
		ToolTimeout:       30 * time.Second,
		MaxRetries:        3,
		RetryBaseDelay:    time.Second,
	}
}

// Runner wires every component the loop composes.
type Runner struct {
	Sessions *session.Store
	Locks    *session.LockTable
	Memory   *memory.Store
	Bus      *event.Bus
	Retry    *retry.Manager
	LLM      llm.Handler
	Tools    tool.Executor
	ToolDefs []llm.ToolDef

	Context ContextConfig
	Execute ExecuteConfig
}

// NewRunner builds a Runner with default stage configs.
func NewRunner(sessions *session.Store, locks *session.LockTable, mem *memory.Store, bus *event.Bus, retryMgr *retry.Manager, llmHandler llm.Handler, tools tool.Executor, toolDefs []llm.ToolDef) *Runner {
	return &Runner{
		Sessions: sessions, Locks: locks, Memory: mem, Bus: bus, Retry: retryMgr,
		LLM: llmHandler, Tools: tools, ToolDefs: toolDefs,
		Context: DefaultContextConfig(), Execute: DefaultExecuteConfig(),
	}
}

func (r *Runner) publish(t event.Type, runID, sessionID, agentID string, data any) {
	if r.Bus == nil {
		return
	}
	r.Bus.Publish(event.Envelope{Type: t, RunID: runID, SessionID: sessionID, AgentID: agentID, Timestamp: nowMillis(), Data: data})
}

// Output is the whole turn's result, surfaced to the caller.
type Output struct {
	RunID      string
	SessionID  string
	Response   string
	Success    bool
	Aborted    bool
	Usage      event.Usage
	DurationMS int64
	Errors     []string
	ErrorCode  string // rterr.Code of the first fatal error, if any
	Persist    PersistOutput
}

// Run drives one turn through all four stages. PERSIST always runs, even
// after a fatal error at any earlier stage, so the session lock is always
// released (spec.md §4.9's state machine). A panic inside any stage is
// recovered here and converted into a loop:error the same way an
// escalated error is, so a buggy ToolExecutor/LLMHandler can never skip
// PERSIST and leak a held session lock.
func (r *Runner) Run(ctx context.Context, in Input) (out Output) {
	start := time.Now()

	var intakeOut IntakeOutput
	var ctxOut ContextOutput
	var execOut ExecuteOutput
	stage := event.StageIntake
	persisted := false

	defer func() {
		rec := recover()
		if rec == nil || persisted {
			return
		}
		err := fmt.Errorf("panic in %s stage: %v", stage, rec)
		r.publish(event.LoopError, intakeOut.RunID, intakeOut.SessionID, in.AgentID, event.LoopErrorData{
			Stage: stage, Error: err.Error(), Code: string(codeOf(err)),
		})
		execOut.Error = err
		execOut.Aborted = false
		persistOut := r.persist(intakeOut, ctxOut, execOut, in)
		errs := append([]string{err.Error()}, persistOut.Errors...)
		out = r.finish(intakeOut.RunID, intakeOut.SessionID, start, false, false, execOut.Usage, errs, persistOut)
		out.Response = "[Error: " + err.Error() + "]"
		out.ErrorCode = string(codeOf(err))
	}()

	intakeOut = r.intake(in)
	if intakeOut.Error != nil {
		r.publish(event.LoopError, intakeOut.RunID, intakeOut.SessionID, in.AgentID, event.LoopErrorData{
			Stage: event.StageIntake, Error: intakeOut.Error.Error(), Code: string(codeOf(intakeOut.Error)),
		})
		// INTAKE never acquired a lock on failure, so PERSIST has
		// nothing to release; still run it for symmetry and to keep
		// exactly one exit path, per spec.md §5.
		persistOut := r.persist(intakeOut, ContextOutput{}, ExecuteOutput{Error: intakeOut.Error}, in)
		persisted = true
		out = r.finish(intakeOut.RunID, intakeOut.SessionID, start, false, false, event.Usage{}, []string{intakeOut.Error.Error()}, persistOut)
		out.ErrorCode = string(codeOf(intakeOut.Error))
		return out
	}

	stage = event.StageContext
	ctxOut = r.context(intakeOut)
	if ctxOut.Error != nil {
		r.publish(event.LoopError, intakeOut.RunID, intakeOut.SessionID, in.AgentID, event.LoopErrorData{
			Stage: event.StageContext, Error: ctxOut.Error.Error(), Code: string(codeOf(ctxOut.Error)),
		})
		persistOut := r.persist(intakeOut, ctxOut, ExecuteOutput{Error: ctxOut.Error}, in)
		persisted = true
		out = r.finish(intakeOut.RunID, intakeOut.SessionID, start, false, false, event.Usage{}, []string{ctxOut.Error.Error()}, persistOut)
		out.ErrorCode = string(codeOf(ctxOut.Error))
		return out
	}

	stage = event.StageExecute
	execOut = r.execute(ctx, intakeOut, ctxOut, in)
	if execOut.Error != nil {
		r.publish(event.LoopError, intakeOut.RunID, intakeOut.SessionID, in.AgentID, event.LoopErrorData{
			Stage: event.StageExecute, Error: execOut.Error.Error(), Code: string(codeOf(execOut.Error)),
		})
	}

	stage = event.StagePersist
	persistOut := r.persist(intakeOut, ctxOut, execOut, in)
	persisted = true

	success := execOut.Error == nil && !execOut.Aborted && persistOut.IsPersistSuccess()
	response := execOut.Response
	if execOut.Aborted {
		response = "[Aborted]"
	} else if execOut.Error != nil {
		response = "[Error: " + execOut.Error.Error() + "]"
	}

	var errs []string
	if execOut.Error != nil {
		errs = append(errs, execOut.Error.Error())
	}
	errs = append(errs, persistOut.Errors...)

	out = r.finish(intakeOut.RunID, intakeOut.SessionID, start, success, execOut.Aborted, execOut.Usage, errs, persistOut)
	out.Response = response
	out.ErrorCode = string(codeOf(execOut.Error))
	return out
}

func (r *Runner) finish(runID, sessionID string, start time.Time, success, aborted bool, usage event.Usage, errs []string, persistOut PersistOutput) Output {
	duration := time.Since(start).Milliseconds()
	r.publish(event.LoopEnd, runID, sessionID, "", event.LoopEndData{Success: success, Duration: duration, Usage: usage})
	return Output{
		RunID: runID, SessionID: sessionID, Success: success, Aborted: aborted,
		Usage: usage, DurationMS: duration, Errors: errs, Persist: persistOut,
	}
}
