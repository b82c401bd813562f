package engine

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/ActionGraph/internal/events"
	"github.com/AaronLay10/ActionGraph/internal/graph"
)

// Engine walks a graph one run at a time. A node runs once all of its parents have
// finished; its dispatch happens on the tick after its join completes.
//
// Engine is single-threaded: every method, and every finish callback handed to a
// handler, must be called from the goroutine that drives the host.
type Engine struct {
	host     Host
	registry *Registry

	onFatal func(error)
	onDone  func(RunState)

	g          *graph.Graph
	sceneID    string
	sessionID  string
	state      RunState
	err        error
	gen        uint64
	reachedEnd bool

	// Per-run node state, indexed by NodeID.
	signals   []int
	scheduled []bool
	running   []bool
	finished  []bool

	// Nodes scheduled or dispatched but not yet finished.
	inflight int
	cancels  []func()
}

// New creates an idle engine.
func New(host Host, registry *Registry) *Engine {
	return &Engine{
		host:     host,
		registry: registry,
		state:    RunIdle,
	}
}

// SetOnFatal sets the callback that receives the error halting a run.
func (e *Engine) SetOnFatal(fn func(error)) {
	e.onFatal = fn
}

// SetOnDone sets the callback invoked once a run reaches a terminal state.
func (e *Engine) SetOnDone(fn func(RunState)) {
	e.onDone = fn
}

// Start begins a run of g at entry. Join counters from any earlier run are discarded.
func (e *Engine) Start(g *graph.Graph, entry graph.NodeID) error {
	return e.start("", g, entry)
}

// StartScene begins a run at the scene's start node.
func (e *Engine) StartScene(sceneID string, g *graph.Graph) error {
	if g == nil {
		return ErrNoStartNode
	}
	starts := g.Starts()
	if len(starts) == 0 {
		return ErrNoStartNode
	}
	return e.start(sceneID, g, starts[0])
}

func (e *Engine) start(sceneID string, g *graph.Graph, entry graph.NodeID) error {
	if e.state == RunRunning {
		return ErrRunActive
	}
	if g == nil || !g.Has(entry) {
		return &InvalidNodeError{Node: entry, Reason: "entry node is not in the graph"}
	}

	e.gen++
	e.g = g
	e.sceneID = sceneID
	e.sessionID = uuid.NewString()
	e.state = RunRunning
	e.err = nil
	e.reachedEnd = false

	n := g.Len()
	e.signals = make([]int, n)
	e.scheduled = make([]bool, n)
	e.running = make([]bool, n)
	e.finished = make([]bool, n)
	e.inflight = 0
	e.cancels = nil

	e.emit("info", "scene.started", "", map[string]interface{}{
		"entry": int(entry),
		"nodes": n,
	})

	e.schedule(entry)
	return nil
}

// Signal records one parent completion for id. The node is scheduled when its
// count reaches the number of parents.
func (e *Engine) Signal(id graph.NodeID) error {
	if e.state != RunRunning {
		return ErrNotRunning
	}
	e.signal(-1, id)
	return nil
}

// Stop cancels the active run. Queued dispatches, tick subscriptions and late
// finish calls from the run are discarded.
func (e *Engine) Stop() error {
	if e.state != RunRunning {
		return ErrNotRunning
	}
	e.gen++
	e.state = RunStopped
	e.cancelSubscriptions()

	e.emit("info", "scene.stopped", "", map[string]interface{}{
		"in_flight": e.inflight,
	})
	if e.onDone != nil {
		e.onDone(RunStopped)
	}
	return nil
}

func (e *Engine) signal(from, id graph.NodeID) {
	if !e.g.Has(id) || int(id) >= len(e.signals) {
		e.fail(&DanglingChildError{Node: from, Child: id})
		return
	}

	e.signals[id]++
	node, _ := e.g.Node(id)
	target := node.JoinTarget()

	switch {
	case e.signals[id] == target:
		e.schedule(id)
	case e.signals[id] < target:
		fields := e.nodeFields(id)
		fields["signals"] = e.signals[id]
		fields["target"] = target
		e.emit("info", "node.waiting", "", fields)
	default:
		log.Printf("engine: node %d signalled %d times for %d parents, ignoring", id, e.signals[id], target)
	}
}

func (e *Engine) schedule(id graph.NodeID) {
	if e.scheduled[id] {
		return
	}
	e.scheduled[id] = true
	e.inflight++
	e.emit("info", "node.scheduled", "", e.nodeFields(id))

	gen := e.gen
	e.host.OnNextTick(func() {
		if gen != e.gen || e.state != RunRunning {
			return
		}
		e.dispatch(id)
	})
}

func (e *Engine) dispatch(id graph.NodeID) {
	if e.running[id] {
		return
	}
	if e.g.Len() != len(e.signals) {
		e.fail(&InvalidNodeError{Node: id, Reason: "graph structure changed during the run"})
		return
	}

	payload, err := e.g.Payload(id)
	if err != nil {
		e.fail(&InvalidNodeError{Node: id, Reason: "payload cannot be resolved", Err: err})
		return
	}

	node, _ := e.g.Node(id)
	for _, c := range node.Children() {
		if !e.g.Has(c) {
			e.fail(&DanglingChildError{Node: id, Child: c})
			return
		}
	}

	handler, err := e.registry.New(payload.Kind, Env{
		Host:      &runHost{e: e, gen: e.gen},
		Node:      id,
		SessionID: e.sessionID,
		SceneID:   e.sceneID,
	})
	if err != nil {
		var unknown *UnknownKindError
		if !errors.As(err, &unknown) {
			err = &HandlerError{Node: id, Kind: payload.Kind, Err: err}
		}
		e.fail(err)
		return
	}

	e.running[id] = true
	e.emit("info", "node.dispatched", "", e.nodeFields(id))

	gen := e.gen
	called := false
	finish := func() {
		if gen != e.gen || e.state != RunRunning {
			return
		}
		if called {
			log.Printf("engine: node %d finished more than once, ignoring", id)
			return
		}
		called = true
		e.finish(id)
	}

	if err := handler.Apply(payload.Clone(), finish); err != nil {
		herr := &HandlerError{Node: id, Kind: payload.Kind, Err: err}
		if gen != e.gen || e.state != RunRunning {
			// The run already ended, possibly through this node's own finish.
			log.Printf("engine: %v after the run ended", herr)
			fields := e.nodeFields(id)
			fields["error"] = err.Error()
			e.emit("error", "system.error", herr.Error(), fields)
			return
		}
		e.fail(herr)
	}
}

func (e *Engine) finish(id graph.NodeID) {
	node, ok := e.g.Node(id)
	if !ok {
		e.fail(&InvalidNodeError{Node: id, Reason: "node removed before it finished"})
		return
	}

	e.finished[id] = true
	kind := e.g.Kind(id)
	e.emit("info", "node.finished", "", e.nodeFields(id))
	if kind == graph.KindEnd {
		e.reachedEnd = true
	}

	children := node.Children()
	if len(children) == 0 && kind != graph.KindEnd {
		e.emit("warning", "node.dead_end", fmt.Sprintf("node %d (%s) has no children and is not an end node", id, kind), e.nodeFields(id))
	}
	for _, c := range children {
		e.signal(id, c)
		if e.state != RunRunning {
			return
		}
	}

	e.inflight--
	if e.inflight == 0 {
		e.complete()
	}
}

func (e *Engine) complete() {
	e.state = RunFinished
	e.cancelSubscriptions()

	blocked := 0
	for i, n := range e.signals {
		if n > 0 && !e.scheduled[i] {
			blocked++
		}
	}
	e.emit("info", "scene.completed", "", map[string]interface{}{
		"reached_end": e.reachedEnd,
		"blocked":     blocked,
	})
	if e.onDone != nil {
		e.onDone(RunFinished)
	}
}

func (e *Engine) fail(err error) {
	if e.state != RunRunning {
		return
	}
	e.state = RunHalted
	e.err = err
	e.cancelSubscriptions()

	e.emit("error", "scene.failed", err.Error(), map[string]interface{}{
		"error": err.Error(),
	})
	if e.onFatal != nil {
		e.onFatal(err)
	}
	if e.onDone != nil {
		e.onDone(RunHalted)
	}
}

func (e *Engine) cancelSubscriptions() {
	for _, cancel := range e.cancels {
		cancel()
	}
	e.cancels = nil
}

func (e *Engine) nodeFields(id graph.NodeID) map[string]interface{} {
	return map[string]interface{}{
		"node_id": int(id),
		"kind":    e.g.Kind(id),
	}
}

func (e *Engine) emit(level, name, msg string, fields map[string]interface{}) {
	if e.sceneID != "" {
		fields["scene_id"] = e.sceneID
	}
	events.EmitSession(e.sessionID, level, name, msg, fields)
}

// State returns the current run state.
func (e *Engine) State() RunState {
	return e.state
}

// Err returns the error that halted the last run, if any.
func (e *Engine) Err() error {
	return e.err
}

// SessionID returns the ID of the current or last run.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// SceneID returns the scene ID given to StartScene, if any.
func (e *Engine) SceneID() string {
	return e.sceneID
}

// ReachedEnd reports whether an end node finished in the current or last run.
func (e *Engine) ReachedEnd() bool {
	return e.reachedEnd
}

// Dispatched reports whether id has been dispatched in the current or last run.
func (e *Engine) Dispatched(id graph.NodeID) bool {
	return id >= 0 && int(id) < len(e.running) && e.running[id]
}

// Snapshot copies the run's per-node progress.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		SessionID:  e.sessionID,
		SceneID:    e.sceneID,
		State:      e.state,
		ReachedEnd: e.reachedEnd,
	}
	if e.err != nil {
		s.Error = e.err.Error()
	}
	if e.g == nil {
		return s
	}

	s.Nodes = make([]NodeStatus, 0, len(e.signals))
	for i := range e.signals {
		id := graph.NodeID(i)
		st := NodeStatus{
			ID:      id,
			Kind:    e.g.Kind(id),
			Signals: e.signals[i],
			State:   NodeIdle,
		}
		if n, ok := e.g.Node(id); ok {
			st.Target = n.JoinTarget()
		}
		switch {
		case e.finished[i]:
			st.State = NodeFinished
		case e.running[i]:
			st.State = NodeRunning
		case e.scheduled[i]:
			st.State = NodeScheduled
		case e.signals[i] > 0:
			st.State = NodeWaiting
		}
		s.Nodes = append(s.Nodes, st)
	}
	return s
}

// runHost scopes a handler's host access to one run.
type runHost struct {
	e   *Engine
	gen uint64
}

func (h *runHost) live() bool {
	return h.gen == h.e.gen && h.e.state == RunRunning
}

func (h *runHost) OnTick(fn func(dt time.Duration)) func() {
	cancel := h.e.host.OnTick(func(dt time.Duration) {
		if h.live() {
			fn(dt)
		}
	})
	if !h.live() {
		cancel()
		return cancel
	}
	h.e.cancels = append(h.e.cancels, cancel)
	return cancel
}

func (h *runHost) OnNextTick(fn func()) {
	if !h.live() {
		return
	}
	h.e.host.OnNextTick(func() {
		if h.live() {
			fn()
		}
	})
}
