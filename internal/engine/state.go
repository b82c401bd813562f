package engine

import "github.com/AaronLay10/ActionGraph/internal/graph"

// RunState is the lifecycle state of a scene run.
type RunState string

const (
	RunIdle     RunState = "idle"
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
	RunHalted   RunState = "halted"
	RunStopped  RunState = "stopped"
)

// Terminal reports whether the run has ended.
func (s RunState) Terminal() bool {
	return s == RunFinished || s == RunHalted || s == RunStopped
}

// NodeState is a node's progress within the current run.
type NodeState string

const (
	NodeIdle      NodeState = "idle"
	NodeWaiting   NodeState = "waiting"
	NodeScheduled NodeState = "scheduled"
	NodeRunning   NodeState = "running"
	NodeFinished  NodeState = "finished"
)

// NodeStatus is the per-node part of a Snapshot.
type NodeStatus struct {
	ID      graph.NodeID `json:"id"`
	Kind    string       `json:"kind"`
	Signals int          `json:"signals"`
	Target  int          `json:"target"`
	State   NodeState    `json:"state"`
}

// Snapshot is a point-in-time copy of a run's state.
type Snapshot struct {
	SessionID  string       `json:"session_id"`
	SceneID    string       `json:"scene_id,omitempty"`
	State      RunState     `json:"state"`
	Error      string       `json:"error,omitempty"`
	ReachedEnd bool         `json:"reached_end"`
	Nodes      []NodeStatus `json:"nodes"`
}
