package editor

import (
	"errors"
	"fmt"

	"github.com/AaronLay10/ActionGraph/internal/canvas"
	"github.com/AaronLay10/ActionGraph/internal/config"
	"github.com/AaronLay10/ActionGraph/internal/engine"
	"github.com/AaronLay10/ActionGraph/internal/events"
	"github.com/AaronLay10/ActionGraph/internal/graph"
)

// State is the active gesture. Only one gesture runs at a time.
type State int

const (
	Idle State = iota
	PanningCanvas
	DraggingNode
	DraggingConnection
)

func (s State) String() string {
	switch s {
	case PanningCanvas:
		return "panning_canvas"
	case DraggingNode:
		return "dragging_node"
	case DraggingConnection:
		return "dragging_connection"
	default:
		return "idle"
	}
}

var (
	ErrNoMenu = errors.New("context menu is not open")
	ErrBusy   = errors.New("a gesture is in progress")
)

// CycleError rejects an edge that would make a node wait on itself.
type CycleError struct {
	Parent graph.NodeID
	Child  graph.NodeID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("edge %d -> %d would close a cycle", e.Parent, e.Child)
}

// Options are the node metrics and scroll behaviour of a canvas.
type Options struct {
	NodeWidth    int
	NodeHeight   int
	SocketRadius float64
	ScrollStep   float64
	Margin       int
}

// OptionsFromConfig reads canvas options with config defaults applied.
func OptionsFromConfig(c config.CanvasConfig) Options {
	w, h := c.NodeSize()
	return Options{
		NodeWidth:    w,
		NodeHeight:   h,
		SocketRadius: c.Socket(),
		ScrollStep:   c.Scroll(),
		Margin:       c.MarginCells(),
	}
}

// ViewFromConfig builds a view sized and limited by the canvas config. Its extent starts
// as the cells visible at zoom 0.
func ViewFromConfig(c config.CanvasConfig) *canvas.View {
	w, h := c.Viewport()
	lo, hi := c.ZoomRange()
	v := canvas.NewView(canvas.Rect{W: w, H: h}, c.Cell(), lo, hi)
	v.CoverViewport()
	return v
}

// MenuEntry is one constructible kind offered by the context menu.
type MenuEntry struct {
	Kind   string   `json:"kind"`
	Params []string `json:"params,omitempty"`
}

// Menu is an open context menu.
type Menu struct {
	At      graph.Point `json:"at"`
	Entries []MenuEntry `json:"entries"`

	specs []engine.KindSpec
}

// Pending is an in-progress connection drag.
type Pending struct {
	Source  graph.NodeID `json:"source"`
	Pointer canvas.Vec   `json:"pointer"`
}

// Controller turns pointer, scroll and key input into graph and view mutations for
// one canvas. It is the only writer of its graph while editing and is not safe for
// concurrent use.
type Controller struct {
	// SceneID tags emitted events.
	SceneID string

	g        *graph.Graph
	view     *canvas.View
	registry *engine.Registry
	opts     Options

	state     State
	last      canvas.Vec
	panByAlt  bool
	drag      graph.NodeID
	offset    canvas.Vec
	source    graph.NodeID
	pointer   canvas.Vec
	selection graph.NodeID
	menu      *Menu
	dirty     bool
}

// New creates a controller over g. The view's extent grows to include the graph.
func New(g *graph.Graph, view *canvas.View, registry *engine.Registry, opts Options) *Controller {
	c := &Controller{
		g:         g,
		view:      view,
		registry:  registry,
		opts:      opts,
		drag:      -1,
		source:    -1,
		selection: -1,
	}
	c.fitExtent()
	return c
}

func (c *Controller) Graph() *graph.Graph { return c.g }
func (c *Controller) View() *canvas.View  { return c.view }
func (c *Controller) State() State        { return c.state }

// Dirty reports whether the graph changed since the last MarkClean.
func (c *Controller) Dirty() bool { return c.dirty }
func (c *Controller) MarkClean()  { c.dirty = false }

// Selection returns the selected node.
func (c *Controller) Selection() (graph.NodeID, bool) {
	return c.selection, c.selection >= 0
}

// Pending returns the connection being dragged, if any.
func (c *Controller) Pending() (Pending, bool) {
	if c.state != DraggingConnection {
		return Pending{}, false
	}
	return Pending{Source: c.source, Pointer: c.pointer}, true
}

// Menu returns the open context menu.
func (c *Controller) Menu() (Menu, bool) {
	if c.menu == nil {
		return Menu{}, false
	}
	return *c.menu, true
}

// HandlePointerEvent advances the gesture state machine. Positions are in screen space.
func (c *Controller) HandlePointerEvent(ev PointerEvent) {
	r := c.view.ScreenToRender(ev.Pos)
	switch ev.Action {
	case PointerDown:
		c.pointerDown(ev, r)
	case PointerMove:
		c.pointerMove(r)
	case PointerUp:
		c.pointerUp(r)
	}
}

func (c *Controller) pointerDown(ev PointerEvent, r canvas.Vec) {
	// A second press during a gesture is ignored until the gesture's release.
	if c.state != Idle {
		return
	}
	c.menu = nil
	c.last = r
	c.pointer = r

	hit := c.HitTest(r)

	if ev.Button == ButtonMiddle || (ev.Button == ButtonPrimary && ev.Mods.Alt && hit.Target == TargetNone) {
		c.state = PanningCanvas
		c.panByAlt = ev.Button != ButtonMiddle
		return
	}

	switch ev.Button {
	case ButtonSecondary:
		switch hit.Target {
		case TargetInput:
			c.disconnectInputs(hit.Node)
		case TargetNone:
			c.OpenMenu(c.view.RenderToGraph(r))
		}

	case ButtonPrimary:
		switch hit.Target {
		case TargetOutput:
			c.state = DraggingConnection
			c.source = hit.Node
		case TargetBody:
			n, _ := c.g.Node(hit.Node)
			c.selection = hit.Node
			c.state = DraggingNode
			c.drag = hit.Node
			c.offset = r.Sub(c.view.GraphToRender(n.Position))
		case TargetNone:
			c.selection = -1
		}
	}
}

func (c *Controller) pointerMove(r canvas.Vec) {
	c.pointer = r
	switch c.state {
	case PanningCanvas:
		c.view.PanBy(r.Sub(c.last))
	case DraggingNode:
		n, ok := c.g.Node(c.drag)
		if !ok {
			c.reset()
			return
		}
		pos := c.view.RenderToGraph(r.Sub(c.offset))
		if pos != n.Position {
			_ = c.g.SetPosition(c.drag, pos)
			c.dirty = true
		}
	}
	c.last = r
}

func (c *Controller) pointerUp(r canvas.Vec) {
	switch c.state {
	case DraggingNode:
		c.fitExtent()
	case DraggingConnection:
		hit := c.HitTest(r)
		if hit.Target == TargetInput {
			_ = c.Connect(c.source, hit.Node)
		}
	}
	c.reset()
}

func (c *Controller) reset() {
	c.state = Idle
	c.drag = -1
	c.source = -1
	c.panByAlt = false
}

// HandleScrollEvent pans by the scroll delta, or zooms about the pointer when Ctrl is held.
func (c *Controller) HandleScrollEvent(ev ScrollEvent) {
	r := c.view.ScreenToRender(ev.Pos)
	if ev.Mods.Ctrl {
		switch {
		case ev.Delta.Y < 0:
			c.view.ZoomAt(c.view.Zoom+1, r)
		case ev.Delta.Y > 0:
			c.view.ZoomAt(c.view.Zoom-1, r)
		}
		return
	}
	c.view.PanBy(canvas.Vec{X: -ev.Delta.X * c.opts.ScrollStep, Y: -ev.Delta.Y * c.opts.ScrollStep})
}

// HandleKeyEvent handles deletion, escape and release of the pan modifier.
func (c *Controller) HandleKeyEvent(ev KeyEvent) {
	switch {
	case ev.Action == KeyUp && ev.Key == KeyAlt:
		if c.state == PanningCanvas && c.panByAlt {
			c.reset()
		}
	case ev.Action == KeyDown && ev.Key == KeyEscape:
		c.menu = nil
		if c.state == DraggingConnection {
			c.reset()
		}
	case ev.Action == KeyDown && (ev.Key == KeyDelete || ev.Key == KeyBackspace):
		if c.state == Idle && c.selection >= 0 {
			_ = c.DeleteNode(c.selection)
		}
	}
}

// OpenMenu opens the context menu at a graph cell. Kinds limited to one per scene are
// left out once the graph has one.
func (c *Controller) OpenMenu(at graph.Point) Menu {
	specs := c.registry.Catalog(c.g)
	m := &Menu{At: at, specs: specs}
	for _, s := range specs {
		m.Entries = append(m.Entries, MenuEntry{Kind: s.Name, Params: s.Params})
	}
	c.menu = m
	return *m
}

// SelectMenuEntry adds a node of the i-th menu entry's kind at the menu's cell.
func (c *Controller) SelectMenuEntry(i int) (graph.NodeID, error) {
	if c.menu == nil {
		return -1, ErrNoMenu
	}
	if i < 0 || i >= len(c.menu.specs) {
		return -1, fmt.Errorf("menu entry %d out of range [0, %d)", i, len(c.menu.specs))
	}
	spec, at := c.menu.specs[i], c.menu.At
	c.menu = nil
	return c.AddNode(at, spec.Payload()), nil
}

// AddNode places a new unconnected node.
func (c *Controller) AddNode(at graph.Point, p graph.Payload) graph.NodeID {
	id := c.g.AddNode(at, p)
	c.dirty = true
	c.fitExtent()
	c.emit("info", "graph.node_added", map[string]interface{}{
		"node_id": int(id),
		"kind":    p.Kind,
		"x":       at.X,
		"y":       at.Y,
	})
	return id
}

// Connect adds parent -> child unless it is a self loop, a duplicate, or would close a
// cycle. Rejections leave the graph unchanged and emit graph.edge_rejected.
func (c *Controller) Connect(parent, child graph.NodeID) error {
	var err error
	if parent != child && c.g.Has(parent) && c.g.Has(child) && c.g.WouldCycle(parent, child) {
		err = &CycleError{Parent: parent, Child: child}
	} else {
		err = c.g.Connect(parent, child)
	}
	if err != nil {
		c.emit("warning", "graph.edge_rejected", map[string]interface{}{
			"parent": int(parent),
			"child":  int(child),
			"error":  err.Error(),
		})
		return err
	}
	c.dirty = true
	c.emit("info", "graph.edge_added", map[string]interface{}{
		"parent": int(parent),
		"child":  int(child),
	})
	return nil
}

// DeleteNode removes a node and its edges. Selection and drag state that referred to
// higher IDs follow the shift.
func (c *Controller) DeleteNode(id graph.NodeID) error {
	if c.state != Idle {
		return ErrBusy
	}
	kind := c.g.Kind(id)
	if err := c.g.DeleteNode(id); err != nil {
		return err
	}
	switch {
	case c.selection == id:
		c.selection = -1
	case c.selection > id:
		c.selection--
	}
	c.dirty = true
	c.emit("info", "graph.node_deleted", map[string]interface{}{
		"node_id": int(id),
		"kind":    kind,
	})
	return nil
}

func (c *Controller) disconnectInputs(id graph.NodeID) {
	parents, err := c.g.DisconnectParents(id)
	if err != nil {
		return
	}
	for _, p := range parents {
		c.dirty = true
		c.emit("info", "graph.edge_removed", map[string]interface{}{
			"parent": int(p),
			"child":  int(id),
		})
	}
}

// fitExtent grows the view's logical bounds to cover every node box plus the margin.
func (c *Controller) fitExtent() {
	lo, hi, ok := c.g.Bounds()
	if !ok {
		return
	}
	hi.X += max(c.opts.NodeWidth-1, 0)
	hi.Y += max(c.opts.NodeHeight-1, 0)
	c.view.Include(canvas.Bounds{Min: lo, Max: hi}, c.opts.Margin)
}

func (c *Controller) emit(level, name string, fields map[string]interface{}) {
	if c.SceneID != "" {
		fields["scene_id"] = c.SceneID
	}
	events.Emit(level, name, "", fields)
}
