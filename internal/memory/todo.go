package memory

import "strings"

// TodoStatus is one task's lifecycle state, mirroring the teacher's
// TodoInfo.Status.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// TodoItem is one entry in the PendingActionsSection convenience,
// grounded on the teacher's session/todo.go and todoread/todowrite
// tools — expressed here as a memory-section helper rather than
// dedicated tools, since todos are exactly the kind of working-memory
// content spec.md §3 already models.
type TodoItem struct {
	ID      string
	Content string
	Status  TodoStatus
}

// PendingActionsSection is the standard section WriteTodos renders into.
const PendingActionsSection = "Pending Actions"

func (t TodoItem) marker() string {
	switch t.Status {
	case TodoCompleted:
		return "[x]"
	case TodoInProgress:
		return "[~]"
	default:
		return "[ ]"
	}
}

func renderTodos(items []TodoItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, "- "+it.marker()+" "+it.Content)
	}
	return strings.Join(lines, "\n")
}

// WriteTodos overwrites the Pending Actions section with items, rendered
// as a checkbox list. Existing content is replaced, not appended, since
// the todo list is the single source of truth for what's outstanding.
func (s *Store) WriteTodos(agentPath, runID, sessionID, agentID string, items []TodoItem) (WriteResult, error) {
	return s.WriteMemorySection(agentPath, runID, sessionID, agentID, PendingActionsSection, renderTodos(items), WriteOptions{
		Append:          false,
		CreateIfMissing: true,
		EnforceLimits:   true,
	})
}
