package graph

import "fmt"

// UnknownNodeError indicates an ID that does not refer to a live node.
type UnknownNodeError struct {
	ID NodeID
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("node not found: %d", e.ID)
}

// SelfLoopError indicates an attempt to connect a node to itself.
type SelfLoopError struct {
	Node NodeID
}

func (e *SelfLoopError) Error() string {
	return fmt.Sprintf("self-referential edge not allowed: %d -> %d", e.Node, e.Node)
}

// DuplicateEdgeError indicates the edge already exists.
type DuplicateEdgeError struct {
	Parent NodeID
	Child  NodeID
}

func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("edge already exists: %d -> %d", e.Parent, e.Child)
}

// NotConnectedError indicates a disconnect of an edge that does not exist.
type NotConnectedError struct {
	Parent NodeID
	Child  NodeID
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("nodes not connected: %d -> %d", e.Parent, e.Child)
}

// DanglingReferenceError indicates a persisted child index outside the node array.
type DanglingReferenceError struct {
	Record int
	Child  int
	Count  int
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("node record %d: child index %d out of range [0,%d)", e.Record, e.Child, e.Count)
}

// PayloadRangeError indicates a node whose payload index is outside the payload list.
type PayloadRangeError struct {
	Node  NodeID
	Index int
	Count int
}

func (e *PayloadRangeError) Error() string {
	return fmt.Sprintf("node %d: payload index %d out of range [0,%d)", e.Node, e.Index, e.Count)
}

// Diagnostics collects the recoverable problems found while loading a scene.
type Diagnostics []error

// Err returns nil when there are no diagnostics.
func (d Diagnostics) Err() error {
	if len(d) == 0 {
		return nil
	}
	return d
}

func (d Diagnostics) Error() string {
	switch len(d) {
	case 0:
		return "no diagnostics"
	case 1:
		return d[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", d[0].Error(), len(d)-1)
}
