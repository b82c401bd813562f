package editor

import (
	"math"

	"github.com/AaronLay10/ActionGraph/internal/canvas"
	"github.com/AaronLay10/ActionGraph/internal/graph"
)

// Target is what a render position lands on.
type Target int

const (
	TargetNone Target = iota
	TargetBody
	TargetInput
	TargetOutput
)

func (t Target) String() string {
	switch t {
	case TargetBody:
		return "body"
	case TargetInput:
		return "input"
	case TargetOutput:
		return "output"
	default:
		return "none"
	}
}

// Hit is the result of a hit test.
type Hit struct {
	Target Target
	Node   graph.NodeID
}

// NodeRect is the render rectangle of a node's body.
func (c *Controller) NodeRect(id graph.NodeID) (canvas.Rect, bool) {
	n, ok := c.g.Node(id)
	if !ok {
		return canvas.Rect{}, false
	}
	return c.view.CellRect(n.Position, c.opts.NodeWidth, c.opts.NodeHeight), true
}

// InputSocket is the render position of a node's input socket, the centre of its left edge.
func (c *Controller) InputSocket(id graph.NodeID) (canvas.Vec, bool) {
	r, ok := c.NodeRect(id)
	return canvas.Vec{X: r.X, Y: r.Y + r.H/2}, ok
}

// OutputSocket is the render position of a node's output socket, the centre of its right edge.
func (c *Controller) OutputSocket(id graph.NodeID) (canvas.Vec, bool) {
	r, ok := c.NodeRect(id)
	return canvas.Vec{X: r.X + r.W, Y: r.Y + r.H/2}, ok
}

// HitTest finds the topmost node part under a render position. Later nodes are drawn on
// top, so they are tested first; a node's sockets win over its body.
func (c *Controller) HitTest(r canvas.Vec) Hit {
	for i := c.g.Len() - 1; i >= 0; i-- {
		id := graph.NodeID(i)
		rect, _ := c.NodeRect(id)
		in := canvas.Vec{X: rect.X, Y: rect.Y + rect.H/2}
		out := canvas.Vec{X: rect.X + rect.W, Y: rect.Y + rect.H/2}
		switch {
		case near(r, in, c.opts.SocketRadius):
			return Hit{Target: TargetInput, Node: id}
		case near(r, out, c.opts.SocketRadius):
			return Hit{Target: TargetOutput, Node: id}
		case rect.Contains(r):
			return Hit{Target: TargetBody, Node: id}
		}
	}
	return Hit{Target: TargetNone, Node: -1}
}

func near(a, b canvas.Vec, radius float64) bool {
	return math.Hypot(a.X-b.X, a.Y-b.Y) <= radius
}
