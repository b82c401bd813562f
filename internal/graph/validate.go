package graph

import "fmt"

// DefectKind classifies a non-fatal structural problem.
type DefectKind string

const (
	DefectDeadEnd             DefectKind = "dead_end"
	DefectUnreachable         DefectKind = "unreachable"
	DefectUnreferencedPayload DefectKind = "unreferenced_payload"
	DefectSharedPayload       DefectKind = "shared_payload"
	DefectPayloadRange        DefectKind = "payload_range"
	DefectDuplicateUnique     DefectKind = "duplicate_unique"
	DefectCycle               DefectKind = "cycle"
)

// Defect is a structural warning. The graph stays usable.
type Defect struct {
	Kind    DefectKind
	Node    NodeID
	Payload int
	Message string
}

func (d Defect) String() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Validate reports structural defects: nodes missing a required parent or child, payloads
// not owned by exactly one node, more than one start or end, and cycles.
func (g *Graph) Validate() []Defect {
	var defects []Defect

	owners := make([]int, len(g.payloads))
	for i, n := range g.nodes {
		id := NodeID(i)
		if n.PayloadIndex < 0 || n.PayloadIndex >= len(g.payloads) {
			defects = append(defects, Defect{
				Kind: DefectPayloadRange, Node: id, Payload: n.PayloadIndex,
				Message: fmt.Sprintf("node %d references missing payload %d", id, n.PayloadIndex),
			})
			continue
		}
		owners[n.PayloadIndex]++

		kind := g.payloads[n.PayloadIndex].Kind
		if len(n.children) == 0 && kind != KindEnd {
			defects = append(defects, Defect{
				Kind: DefectDeadEnd, Node: id, Payload: n.PayloadIndex,
				Message: fmt.Sprintf("node %d (%s) has no children and is not an end node", id, kind),
			})
		}
		if len(n.parents) == 0 && kind != KindStart {
			defects = append(defects, Defect{
				Kind: DefectUnreachable, Node: id, Payload: n.PayloadIndex,
				Message: fmt.Sprintf("node %d (%s) has no parents and is not a start node", id, kind),
			})
		}
	}

	for i, count := range owners {
		switch {
		case count == 0:
			defects = append(defects, Defect{
				Kind: DefectUnreferencedPayload, Node: -1, Payload: i,
				Message: fmt.Sprintf("payload %d (%s) is not referenced by any node", i, g.payloads[i].Kind),
			})
		case count > 1:
			defects = append(defects, Defect{
				Kind: DefectSharedPayload, Node: -1, Payload: i,
				Message: fmt.Sprintf("payload %d (%s) is referenced by %d nodes", i, g.payloads[i].Kind, count),
			})
		}
	}

	for _, kind := range []string{KindStart, KindEnd} {
		if ids := g.ofKind(kind); len(ids) > 1 {
			defects = append(defects, Defect{
				Kind: DefectDuplicateUnique, Node: ids[1], Payload: -1,
				Message: fmt.Sprintf("scene has %d %s nodes", len(ids), kind),
			})
		}
	}

	if id, ok := g.FindCycle(); ok {
		defects = append(defects, Defect{
			Kind: DefectCycle, Node: id, Payload: -1,
			Message: fmt.Sprintf("cycle detected involving node %d; its join can never complete", id),
		})
	}

	return defects
}

// Reachable reports whether to can be reached from from by following children.
func (g *Graph) Reachable(from, to NodeID) bool {
	if !g.Has(from) || !g.Has(to) {
		return false
	}
	visited := make([]bool, len(g.nodes))
	stack := []NodeID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, g.nodes[cur].children...)
	}
	return false
}

// WouldCycle reports whether adding parent -> child would close a cycle.
func (g *Graph) WouldCycle(parent, child NodeID) bool {
	return parent == child || g.Reachable(child, parent)
}

// FindCycle returns a node on some cycle, if the graph has one.
func (g *Graph) FindCycle() (NodeID, bool) {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(g.nodes))

	var visit func(id NodeID) (NodeID, bool)
	visit = func(id NodeID) (NodeID, bool) {
		state[id] = onStack
		for _, c := range g.nodes[id].children {
			switch state[c] {
			case onStack:
				return c, true
			case unvisited:
				if found, ok := visit(c); ok {
					return found, true
				}
			}
		}
		state[id] = done
		return -1, false
	}

	for i := range g.nodes {
		if state[i] == unvisited {
			if found, ok := visit(NodeID(i)); ok {
				return found, true
			}
		}
	}
	return -1, false
}
