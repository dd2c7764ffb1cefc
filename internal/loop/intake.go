package loop

import (
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentvault/runtime/internal/agentdef"
	"github.com/agentvault/runtime/internal/event"
	"github.com/agentvault/runtime/internal/rterr"
	"github.com/agentvault/runtime/internal/session"
)

// Input is one turn's caller-supplied arguments (spec.md §4.9 INTAKE).
type Input struct {
	Message    string
	VaultPath  string
	AgentPath  string // if set, used directly
	AgentID    string // else discovered under VaultPath
	SessionID  string // if set, resume this session
	NewSession bool

	FlushMemory   bool
	MemoryUpdates []MemoryUpdate

	// Abort, if non-nil, is checked before every LLM call, before each
	// tool invocation, and inside retry sleeps (spec.md §5's
	// cancellation contract).
	Abort <-chan struct{}
}

// MemoryUpdate mirrors memory.Update without importing memory's internal
// write options, so callers of loop don't need to import two packages for
// one call.
type MemoryUpdate struct {
	Title   string
	Content string
	Append  bool
}

// IntakeOutput is what INTAKE hands to CONTEXT/EXECUTE/PERSIST.
type IntakeOutput struct {
	RunID     string
	SessionID string
	Session   *session.Session
	AgentDef  *agentdef.Definition
	AgentPath string
	Lock      *session.Lock
	Error     error
}

// resolveAgentPath returns agentPath directly, or discovers it under
// vaultPath/agents/<agentId>.
func resolveAgentPath(in Input) (string, error) {
	if in.AgentPath != "" {
		return in.AgentPath, nil
	}
	if in.VaultPath == "" || in.AgentID == "" {
		return "", rterr.New(rterr.InvalidInput, "either agentPath, or vaultPath+agentId, is required")
	}
	path := filepath.Join(in.VaultPath, "agents", in.AgentID)
	if _, err := os.Stat(agentdef.Path(path)); err != nil {
		return "", rterr.New(rterr.AgentNotFound, "agent not found: "+in.AgentID)
	}
	return path, nil
}

// intake resolves the agent definition, selects a session, and acquires
// the session lock with a fresh runId.
func (r *Runner) intake(in Input) IntakeOutput {
	runID := ulid.Make().String()

	if in.Message == "" {
		return IntakeOutput{RunID: runID, Error: rterr.New(rterr.InvalidInput, "message is required")}
	}

	agentPath, err := resolveAgentPath(in)
	if err != nil {
		return IntakeOutput{RunID: runID, Error: err}
	}

	agentDef, err := agentdef.Load(agentPath)
	if err != nil {
		return IntakeOutput{RunID: runID, Error: rterr.New(rterr.AgentNotFound, "failed to load agent definition: "+err.Error())}
	}

	agentID := agentDef.Frontmatter.ID
	if agentID == "" {
		agentID = in.AgentID
	}

	var sess *session.Session
	switch {
	case in.NewSession:
		sess, err = r.Sessions.CreateSession(agentPath, agentID)
	case in.SessionID != "":
		sess, err = r.Sessions.GetSession(agentPath, in.SessionID)
	default:
		sess, err = r.Sessions.GetOrCreateSession(agentPath, agentID)
	}
	if err != nil {
		return IntakeOutput{RunID: runID, Error: err}
	}

	lock, err := r.Locks.Acquire(sess.ID, runID, session.DefaultLockTTL)
	if err != nil {
		return IntakeOutput{RunID: runID, SessionID: sess.ID, Error: err}
	}

	r.publish(event.LoopStart, runID, sess.ID, agentID, event.LoopStartData{Message: in.Message})

	return IntakeOutput{
		RunID:     runID,
		SessionID: sess.ID,
		Session:   sess,
		AgentDef:  agentDef,
		AgentPath: agentPath,
		Lock:      lock,
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }
