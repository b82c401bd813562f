package engine

import (
	"errors"
	"fmt"

	"github.com/AaronLay10/ActionGraph/internal/graph"
)

var (
	ErrRunActive   = errors.New("engine: a run is already active")
	ErrNotRunning  = errors.New("engine: no active run")
	ErrNoStartNode = errors.New("engine: scene has no start node")
)

// UnknownKindError is returned when a payload's kind has no registered handler.
type UnknownKindError struct {
	Kind string
	Node graph.NodeID
}

func (e *UnknownKindError) Error() string {
	if e.Node < 0 {
		return fmt.Sprintf("unknown leaf kind %q", e.Kind)
	}
	return fmt.Sprintf("node %d: unknown leaf kind %q", e.Node, e.Kind)
}

// DuplicateKindError is returned when a kind is registered twice.
type DuplicateKindError struct {
	Kind string
}

func (e *DuplicateKindError) Error() string {
	return fmt.Sprintf("leaf kind %q already registered", e.Kind)
}

// InvalidNodeError reports a node that cannot be dispatched.
type InvalidNodeError struct {
	Node   graph.NodeID
	Reason string
	Err    error
}

func (e *InvalidNodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid node %d: %s: %v", e.Node, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid node %d: %s", e.Node, e.Reason)
}

func (e *InvalidNodeError) Unwrap() error {
	return e.Err
}

// DanglingChildError reports a child reference that no longer resolves at dispatch time.
type DanglingChildError struct {
	Node  graph.NodeID
	Child graph.NodeID
}

func (e *DanglingChildError) Error() string {
	return fmt.Sprintf("node %d: child %d does not exist", e.Node, e.Child)
}

// HandlerError wraps an error returned by a leaf handler's Apply.
type HandlerError struct {
	Node graph.NodeID
	Kind string
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("node %d (%s): %v", e.Node, e.Kind, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
