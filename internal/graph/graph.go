package graph

// Designated leaf kinds. A scene has at most one of each.
const (
	KindStart = "start"
	KindEnd   = "end"
)

// NodeID is a node's position in the graph's dense node array.
// IDs above a deleted node shift down by one, so callers must not hold them across DeleteNode.
type NodeID int

// Point is a graph-space cell coordinate.
type Point struct {
	X int `json:"x" yaml:"x" msgpack:"x"`
	Y int `json:"y" yaml:"y" msgpack:"y"`
}

// Node is one scripted operation in a scene.
type Node struct {
	Position     Point
	PayloadIndex int

	parents  []NodeID
	children []NodeID
}

// Parents returns the nodes that must complete before this node may run.
func (n *Node) Parents() []NodeID {
	return append([]NodeID{}, n.parents...)
}

// Children returns the nodes this node activates on completion, in order.
func (n *Node) Children() []NodeID {
	return append([]NodeID{}, n.children...)
}

// JoinTarget is the number of parent signals required before the node runs.
func (n *Node) JoinTarget() int {
	return len(n.parents)
}

// Graph owns the nodes of one scene and the flat payload list they reference.
// It is not safe for concurrent use; one writer at a time.
type Graph struct {
	nodes    []*Node
	payloads []Payload
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	if !g.Has(id) {
		return nil, false
	}
	return g.nodes[id], true
}

// Has reports whether id refers to a live node.
func (g *Graph) Has(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// IDs returns all node IDs in array order.
func (g *Graph) IDs() []NodeID {
	ids := make([]NodeID, len(g.nodes))
	for i := range g.nodes {
		ids[i] = NodeID(i)
	}
	return ids
}

// Payloads returns a copy of the payload list.
func (g *Graph) Payloads() []Payload {
	out := make([]Payload, len(g.payloads))
	for i, p := range g.payloads {
		out[i] = p.Clone()
	}
	return out
}

// Payload returns the payload a node references.
func (g *Graph) Payload(id NodeID) (Payload, error) {
	n, ok := g.Node(id)
	if !ok {
		return Payload{}, &UnknownNodeError{ID: id}
	}
	if n.PayloadIndex < 0 || n.PayloadIndex >= len(g.payloads) {
		return Payload{}, &PayloadRangeError{Node: id, Index: n.PayloadIndex, Count: len(g.payloads)}
	}
	return g.payloads[n.PayloadIndex], nil
}

// Kind returns the leaf kind of a node, or "" if its payload cannot be resolved.
func (g *Graph) Kind(id NodeID) string {
	p, err := g.Payload(id)
	if err != nil {
		return ""
	}
	return p.Kind
}

// AddNode appends an unconnected node at pos with its own payload.
func (g *Graph) AddNode(pos Point, payload Payload) NodeID {
	g.payloads = append(g.payloads, payload.Clone())
	g.nodes = append(g.nodes, &Node{
		Position:     pos,
		PayloadIndex: len(g.payloads) - 1,
	})
	return NodeID(len(g.nodes) - 1)
}

// AddNodeAfter appends a node at pos and wires it as a child of parent.
// The graph is unchanged if parent does not exist.
func (g *Graph) AddNodeAfter(parent NodeID, pos Point, payload Payload) (NodeID, error) {
	if !g.Has(parent) {
		return -1, &UnknownNodeError{ID: parent}
	}
	id := g.AddNode(pos, payload)
	// A fresh node can be neither a self loop nor a duplicate.
	g.link(parent, id)
	return id, nil
}

// SetPosition moves a node.
func (g *Graph) SetPosition(id NodeID, pos Point) error {
	n, ok := g.Node(id)
	if !ok {
		return &UnknownNodeError{ID: id}
	}
	n.Position = pos
	return nil
}

// SetPayload replaces the parameters of the payload a node references.
func (g *Graph) SetPayload(id NodeID, payload Payload) error {
	n, ok := g.Node(id)
	if !ok {
		return &UnknownNodeError{ID: id}
	}
	if n.PayloadIndex < 0 || n.PayloadIndex >= len(g.payloads) {
		return &PayloadRangeError{Node: id, Index: n.PayloadIndex, Count: len(g.payloads)}
	}
	g.payloads[n.PayloadIndex] = payload.Clone()
	return nil
}

// Connected reports whether child is in parent's children.
func (g *Graph) Connected(parent, child NodeID) bool {
	p, ok := g.Node(parent)
	if !ok {
		return false
	}
	return indexOf(p.children, child) >= 0
}

// Connect adds an edge parent -> child. It does not check for cycles; use WouldCycle first
// when the caller must keep the graph acyclic.
func (g *Graph) Connect(parent, child NodeID) error {
	if !g.Has(parent) {
		return &UnknownNodeError{ID: parent}
	}
	if !g.Has(child) {
		return &UnknownNodeError{ID: child}
	}
	if parent == child {
		return &SelfLoopError{Node: parent}
	}
	if g.Connected(parent, child) {
		return &DuplicateEdgeError{Parent: parent, Child: child}
	}
	g.link(parent, child)
	return nil
}

// Disconnect removes the edge parent -> child.
func (g *Graph) Disconnect(parent, child NodeID) error {
	if !g.Has(parent) {
		return &UnknownNodeError{ID: parent}
	}
	if !g.Has(child) {
		return &UnknownNodeError{ID: child}
	}
	if !g.Connected(parent, child) {
		return &NotConnectedError{Parent: parent, Child: child}
	}
	p, c := g.nodes[parent], g.nodes[child]
	p.children = removeID(p.children, child)
	c.parents = removeID(c.parents, parent)
	return nil
}

// DisconnectParents removes every edge into id and returns the former parents.
func (g *Graph) DisconnectParents(id NodeID) ([]NodeID, error) {
	n, ok := g.Node(id)
	if !ok {
		return nil, &UnknownNodeError{ID: id}
	}
	parents := n.Parents()
	for _, p := range parents {
		if err := g.Disconnect(p, id); err != nil {
			return nil, err
		}
	}
	return parents, nil
}

// DeleteNode severs all of a node's edges, removes it and its payload, and
// shifts every node ID and payload index above the removed ones down by one.
// A payload shared with another node is kept.
func (g *Graph) DeleteNode(id NodeID) error {
	n, ok := g.Node(id)
	if !ok {
		return &UnknownNodeError{ID: id}
	}

	for _, p := range n.Parents() {
		pn := g.nodes[p]
		pn.children = removeID(pn.children, id)
	}
	for _, c := range n.Children() {
		cn := g.nodes[c]
		cn.parents = removeID(cn.parents, id)
	}
	n.parents, n.children = nil, nil

	// Payload compaction. An out-of-range index owns no payload entry, and a payload
	// another node still references stays.
	removed := n.PayloadIndex
	hasPayload := removed >= 0 && removed < len(g.payloads)
	for i, other := range g.nodes {
		if hasPayload && NodeID(i) != id && other.PayloadIndex == removed {
			hasPayload = false
		}
	}
	if hasPayload {
		g.payloads = append(g.payloads[:removed], g.payloads[removed+1:]...)
	}

	g.nodes = append(g.nodes[:id], g.nodes[id+1:]...)

	for _, other := range g.nodes {
		if hasPayload && other.PayloadIndex > removed {
			other.PayloadIndex--
		}
		shiftIDs(other.parents, id)
		shiftIDs(other.children, id)
	}
	return nil
}

// Starts returns the nodes whose payload kind is KindStart.
func (g *Graph) Starts() []NodeID {
	return g.ofKind(KindStart)
}

// Ends returns the nodes whose payload kind is KindEnd.
func (g *Graph) Ends() []NodeID {
	return g.ofKind(KindEnd)
}

// CountKind returns how many nodes reference a payload of the given kind.
func (g *Graph) CountKind(kind string) int {
	return len(g.ofKind(kind))
}

// Bounds returns the smallest cell rectangle containing every node position.
// ok is false for an empty graph.
func (g *Graph) Bounds() (min, max Point, ok bool) {
	for i, n := range g.nodes {
		if i == 0 {
			min, max = n.Position, n.Position
			continue
		}
		if n.Position.X < min.X {
			min.X = n.Position.X
		}
		if n.Position.Y < min.Y {
			min.Y = n.Position.Y
		}
		if n.Position.X > max.X {
			max.X = n.Position.X
		}
		if n.Position.Y > max.Y {
			max.Y = n.Position.Y
		}
	}
	return min, max, len(g.nodes) > 0
}

// Edges returns every parent -> child pair in node, then child order.
func (g *Graph) Edges() [][2]NodeID {
	var out [][2]NodeID
	for i, n := range g.nodes {
		for _, c := range n.children {
			out = append(out, [2]NodeID{NodeID(i), c})
		}
	}
	return out
}

func (g *Graph) ofKind(kind string) []NodeID {
	var ids []NodeID
	for i := range g.nodes {
		if g.Kind(NodeID(i)) == kind {
			ids = append(ids, NodeID(i))
		}
	}
	return ids
}

func (g *Graph) link(parent, child NodeID) {
	g.nodes[parent].children = append(g.nodes[parent].children, child)
	g.nodes[child].parents = append(g.nodes[child].parents, parent)
}

func indexOf(ids []NodeID, id NodeID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func removeID(ids []NodeID, id NodeID) []NodeID {
	i := indexOf(ids, id)
	if i < 0 {
		return ids
	}
	return append(ids[:i], ids[i+1:]...)
}

// shiftIDs decrements, in place, every ID greater than removed.
func shiftIDs(ids []NodeID, removed NodeID) {
	for i, v := range ids {
		if v > removed {
			ids[i] = v - 1
		}
	}
}
