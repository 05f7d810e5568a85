package taskgraph

import "fmt"

// MissingDependencyError is returned when a subtask declares a dependency
// id that does not yet exist in the graph.
type MissingDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.TaskID, e.DependencyID)
}

// CircularDependencyError is returned at Freeze when the transitive
// closure of dependencies contains a cycle. Cycle lists the node ids
// composing the cycle, in traversal order, for diagnostics.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %v", e.Cycle)
}

// DuplicateTaskError is returned when AddSubtask is called twice with the
// same id.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q already exists in graph", e.TaskID)
}

// NotFrozenError is returned by operations that require a frozen graph
// (topological iteration, runtime dispatch) when called too early.
type NotFrozenError struct{}

func (e *NotFrozenError) Error() string {
	return "task graph is not frozen yet"
}

// UnknownTaskError is returned when looking up or mutating an id the
// graph has never seen.
type UnknownTaskError struct {
	TaskID string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task %q", e.TaskID)
}
