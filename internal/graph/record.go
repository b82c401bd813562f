package graph

// NodeRecord is the persisted form of a node. Children are indices into the record array.
type NodeRecord struct {
	Position     Point `json:"position" yaml:"position" msgpack:"position"`
	PayloadIndex int   `json:"payload_index" yaml:"payload_index" msgpack:"payload_index"`
	ChildIndices []int `json:"child_indices" yaml:"child_indices" msgpack:"child_indices"`
}

// PayloadRecord is the persisted form of a payload.
type PayloadRecord = Payload

// Record is the persisted form of a whole graph.
type Record struct {
	Nodes    []NodeRecord    `json:"nodes" yaml:"nodes" msgpack:"nodes"`
	Payloads []PayloadRecord `json:"payloads" yaml:"payloads" msgpack:"payloads"`
}

// Serialize flattens the graph into records. Node IDs are array positions, so the
// child indices are the children's IDs. Runtime state is not part of the record.
func (g *Graph) Serialize() Record {
	rec := Record{
		Nodes:    make([]NodeRecord, len(g.nodes)),
		Payloads: g.Payloads(),
	}
	for i, n := range g.nodes {
		children := make([]int, len(n.children))
		for j, c := range n.children {
			children[j] = int(c)
		}
		rec.Nodes[i] = NodeRecord{
			Position:     n.Position,
			PayloadIndex: n.PayloadIndex,
			ChildIndices: children,
		}
	}
	return rec
}

// Deserialize rebuilds a graph from records. Bad references are dropped and reported
// in the returned diagnostics; the rest of the record still loads.
func Deserialize(rec Record) (*Graph, Diagnostics) {
	var diags Diagnostics

	g := &Graph{
		nodes:    make([]*Node, len(rec.Nodes)),
		payloads: make([]Payload, len(rec.Payloads)),
	}
	for i, p := range rec.Payloads {
		g.payloads[i] = p.Clone()
	}
	for i, nr := range rec.Nodes {
		g.nodes[i] = &Node{Position: nr.Position, PayloadIndex: nr.PayloadIndex}
		if nr.PayloadIndex < 0 || nr.PayloadIndex >= len(rec.Payloads) {
			diags = append(diags, &PayloadRangeError{Node: NodeID(i), Index: nr.PayloadIndex, Count: len(rec.Payloads)})
		}
	}

	// Resolving children also populates the reverse parent lists, which fixes each JoinTarget.
	for i, nr := range rec.Nodes {
		parent := NodeID(i)
		for _, ci := range nr.ChildIndices {
			if ci < 0 || ci >= len(rec.Nodes) {
				diags = append(diags, &DanglingReferenceError{Record: i, Child: ci, Count: len(rec.Nodes)})
				continue
			}
			child := NodeID(ci)
			if child == parent {
				diags = append(diags, &SelfLoopError{Node: parent})
				continue
			}
			if g.Connected(parent, child) {
				diags = append(diags, &DuplicateEdgeError{Parent: parent, Child: child})
				continue
			}
			g.link(parent, child)
		}
	}

	return g, diags
}
