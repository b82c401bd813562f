package graph

import (
	"errors"
	"sort"
	"testing"
)

// diamond builds Start -> A -> End and Start -> B -> End.
func diamond(t *testing.T) (*Graph, NodeID, NodeID, NodeID, NodeID) {
	t.Helper()
	g := New()
	start := g.AddNode(Point{0, 0}, NewPayload(KindStart))
	a, err := g.AddNodeAfter(start, Point{4, -2}, NewPayload("wait", "1"))
	if err != nil {
		t.Fatalf("add a: %v", err)
	}
	b, err := g.AddNodeAfter(start, Point{4, 2}, NewPayload("wait", "2"))
	if err != nil {
		t.Fatalf("add b: %v", err)
	}
	end := g.AddNode(Point{8, 0}, NewPayload(KindEnd))
	if err := g.Connect(a, end); err != nil {
		t.Fatalf("connect a->end: %v", err)
	}
	if err := g.Connect(b, end); err != nil {
		t.Fatalf("connect b->end: %v", err)
	}
	return g, start, a, b, end
}

func assertSymmetric(t *testing.T, g *Graph) {
	t.Helper()
	for _, id := range g.IDs() {
		n, _ := g.Node(id)
		for _, c := range n.Children() {
			cn, ok := g.Node(c)
			if !ok {
				t.Fatalf("node %d has dangling child %d", id, c)
			}
			if indexOf(cn.parents, id) < 0 {
				t.Errorf("edge %d->%d missing from child's parents", id, c)
			}
		}
		for _, p := range n.Parents() {
			pn, ok := g.Node(p)
			if !ok {
				t.Fatalf("node %d has dangling parent %d", id, p)
			}
			if indexOf(pn.children, id) < 0 {
				t.Errorf("edge %d->%d missing from parent's children", p, id)
			}
		}
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	g, start, a, b, end := diamond(t)
	assertSymmetric(t, g)

	endNode, _ := g.Node(end)
	if endNode.JoinTarget() != 2 {
		t.Errorf("expected end to need 2 parents, got %d", endNode.JoinTarget())
	}

	var selfLoop *SelfLoopError
	if err := g.Connect(a, a); !errors.As(err, &selfLoop) {
		t.Errorf("expected SelfLoopError, got %v", err)
	}

	var dup *DuplicateEdgeError
	if err := g.Connect(start, a); !errors.As(err, &dup) {
		t.Errorf("expected DuplicateEdgeError, got %v", err)
	}

	if err := g.Disconnect(b, end); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if g.Connected(b, end) {
		t.Error("expected b->end removed")
	}
	if endNode.JoinTarget() != 1 {
		t.Errorf("expected end to need 1 parent after disconnect, got %d", endNode.JoinTarget())
	}

	var notConnected *NotConnectedError
	if err := g.Disconnect(b, end); !errors.As(err, &notConnected) {
		t.Errorf("expected NotConnectedError, got %v", err)
	}

	var unknown *UnknownNodeError
	if err := g.Connect(start, 42); !errors.As(err, &unknown) {
		t.Errorf("expected UnknownNodeError, got %v", err)
	}
	assertSymmetric(t, g)
}

func TestRejectedMutationLeavesGraphUnchanged(t *testing.T) {
	g, start, a, _, _ := diamond(t)
	before := g.Serialize()

	_ = g.Connect(a, a)
	_ = g.Connect(start, a)
	_ = g.Disconnect(a, start)
	if _, err := g.AddNodeAfter(99, Point{}, NewPayload("wait")); err == nil {
		t.Error("expected error adding after unknown parent")
	}

	after := g.Serialize()
	if len(before.Nodes) != len(after.Nodes) || len(before.Payloads) != len(after.Payloads) {
		t.Fatalf("graph size changed: %d/%d -> %d/%d", len(before.Nodes), len(before.Payloads), len(after.Nodes), len(after.Payloads))
	}
	if !sameEdges(edgeSet(before), edgeSet(after)) {
		t.Error("edge set changed after rejected mutations")
	}
}

func TestDeleteNodeIntegrity(t *testing.T) {
	g, start, a, b, end := diamond(t)
	extra := g.AddNode(Point{12, 0}, NewPayload("fade", "door", "0", "1"))
	if err := g.Connect(end, extra); err != nil {
		t.Fatalf("connect: %v", err)
	}

	before := make(map[NodeID]int)
	for _, id := range g.IDs() {
		n, _ := g.Node(id)
		before[id] = n.PayloadIndex
	}
	deletedPayload := before[a]
	payloadsBefore := g.Payloads()

	if err := g.DeleteNode(a); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if g.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d", g.Len())
	}
	if len(g.Payloads()) != len(payloadsBefore)-1 {
		t.Fatalf("expected payload list to shrink by one")
	}

	// IDs above a shift down by one.
	remap := func(id NodeID) NodeID {
		if id > a {
			return id - 1
		}
		return id
	}
	for old, idx := range before {
		if old == a {
			continue
		}
		n, ok := g.Node(remap(old))
		if !ok {
			t.Fatalf("node %d missing after delete", old)
		}
		want := idx
		if idx > deletedPayload {
			want = idx - 1
		}
		if n.PayloadIndex != want {
			t.Errorf("node %d: payload index %d, want %d", old, n.PayloadIndex, want)
		}
		p, _ := g.Payload(remap(old))
		if p.Kind != payloadsBefore[idx].Kind {
			t.Errorf("node %d: payload kind %q, want %q", old, p.Kind, payloadsBefore[idx].Kind)
		}
	}

	if !g.Connected(remap(start), remap(b)) || !g.Connected(remap(b), remap(end)) || !g.Connected(remap(end), remap(extra)) {
		t.Error("surviving edges were lost")
	}
	endNode, _ := g.Node(remap(end))
	if endNode.JoinTarget() != 1 {
		t.Errorf("expected end join target 1, got %d", endNode.JoinTarget())
	}
	assertSymmetric(t, g)

	var unknown *UnknownNodeError
	if err := g.DeleteNode(10); !errors.As(err, &unknown) {
		t.Errorf("expected UnknownNodeError, got %v", err)
	}
}

func TestDeleteNodeKeepsSharedPayload(t *testing.T) {
	rec := Record{
		Nodes: []NodeRecord{
			{Position: Point{0, 0}, PayloadIndex: 0, ChildIndices: []int{1, 2}},
			{Position: Point{4, -2}, PayloadIndex: 1, ChildIndices: []int{3}},
			{Position: Point{4, 2}, PayloadIndex: 1, ChildIndices: []int{3}},
			{Position: Point{8, 0}, PayloadIndex: 2},
		},
		Payloads: []PayloadRecord{
			{Kind: KindStart},
			{Kind: "wait", Parameters: []string{"1"}},
			{Kind: KindEnd},
		},
	}
	g, diags := Deserialize(rec)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	if err := g.DeleteNode(1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(g.Payloads()) != 3 {
		t.Fatalf("shared payload must stay, got %d payloads", len(g.Payloads()))
	}
	if kind := g.Kind(1); kind != "wait" {
		t.Errorf("former node 2: kind %q, want %q", kind, "wait")
	}
	if kind := g.Kind(2); kind != KindEnd {
		t.Errorf("former node 3: kind %q, want %q", kind, KindEnd)
	}

	// The last reference takes the payload with it.
	if err := g.DeleteNode(1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(g.Payloads()) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(g.Payloads()))
	}
	if kind := g.Kind(1); kind != KindEnd {
		t.Errorf("end node: kind %q, want %q", kind, KindEnd)
	}
	assertSymmetric(t, g)
}

func TestDisconnectParents(t *testing.T) {
	g, _, a, b, end := diamond(t)
	parents, err := g.DisconnectParents(end)
	if err != nil {
		t.Fatalf("disconnect parents: %v", err)
	}
	sort.Slice(parents, func(i, j int) bool { return parents[i] < parents[j] })
	if len(parents) != 2 || parents[0] != a || parents[1] != b {
		t.Errorf("unexpected former parents %v", parents)
	}
	n, _ := g.Node(end)
	if n.JoinTarget() != 0 {
		t.Errorf("expected no parents left, got %d", n.JoinTarget())
	}
	assertSymmetric(t, g)
}

func TestValidate(t *testing.T) {
	g, _, _, _, _ := diamond(t)
	if defects := g.Validate(); len(defects) != 0 {
		t.Fatalf("expected clean diamond, got %v", defects)
	}

	loose := g.AddNode(Point{20, 20}, NewPayload("show", "lamp"))
	defects := g.Validate()
	kinds := map[DefectKind]NodeID{}
	for _, d := range defects {
		kinds[d.Kind] = d.Node
	}
	if kinds[DefectDeadEnd] != loose {
		t.Errorf("expected dead end on node %d, got %v", loose, defects)
	}
	if kinds[DefectUnreachable] != loose {
		t.Errorf("expected unreachable on node %d, got %v", loose, defects)
	}

	g.AddNode(Point{30, 0}, NewPayload(KindStart))
	found := false
	for _, d := range g.Validate() {
		if d.Kind == DefectDuplicateUnique {
			found = true
		}
	}
	if !found {
		t.Error("expected duplicate start defect")
	}
}

func TestValidatePayloadDefects(t *testing.T) {
	rec := Record{
		Nodes: []NodeRecord{
			{PayloadIndex: 0, ChildIndices: []int{1}},
			{PayloadIndex: 0},
		},
		Payloads: []PayloadRecord{NewPayload(KindStart), NewPayload("wait", "1")},
	}
	g, diags := Deserialize(rec)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	var shared, unreferenced bool
	for _, d := range g.Validate() {
		switch d.Kind {
		case DefectSharedPayload:
			shared = d.Payload == 0
		case DefectUnreferencedPayload:
			unreferenced = d.Payload == 1
		}
	}
	if !shared {
		t.Error("expected shared payload defect for payload 0")
	}
	if !unreferenced {
		t.Error("expected unreferenced payload defect for payload 1")
	}
}

func TestCycleQueries(t *testing.T) {
	g, start, a, _, end := diamond(t)
	if _, ok := g.FindCycle(); ok {
		t.Fatal("diamond should be acyclic")
	}
	if !g.WouldCycle(end, start) {
		t.Error("end->start should close a cycle")
	}
	if !g.WouldCycle(a, a) {
		t.Error("self edge counts as a cycle")
	}
	if g.WouldCycle(start, end) {
		t.Error("start->end is a shortcut, not a cycle")
	}

	// Connect does not refuse cycles on its own.
	if err := g.Connect(end, start); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, ok := g.FindCycle(); !ok {
		t.Error("expected cycle to be found")
	}
	hasCycleDefect := false
	for _, d := range g.Validate() {
		if d.Kind == DefectCycle {
			hasCycleDefect = true
		}
	}
	if !hasCycleDefect {
		t.Error("expected cycle defect")
	}
}

func TestBoundsAndKinds(t *testing.T) {
	g, start, _, _, end := diamond(t)
	min, max, ok := g.Bounds()
	if !ok {
		t.Fatal("expected bounds")
	}
	if min != (Point{0, -2}) || max != (Point{8, 2}) {
		t.Errorf("unexpected bounds %v %v", min, max)
	}
	if s := g.Starts(); len(s) != 1 || s[0] != start {
		t.Errorf("unexpected starts %v", s)
	}
	if e := g.Ends(); len(e) != 1 || e[0] != end {
		t.Errorf("unexpected ends %v", e)
	}
	if _, _, ok := New().Bounds(); ok {
		t.Error("empty graph has no bounds")
	}
}

func TestPayloadParams(t *testing.T) {
	p := NewPayload("move", "hero", "3.5", "-2", "1.5")
	if p.Param(0) != "hero" || p.Param(9) != "" {
		t.Errorf("unexpected params")
	}
	xy, err := p.Floats(1, 2)
	if err != nil || xy[0] != 3.5 || xy[1] != -2 {
		t.Errorf("floats: %v %v", xy, err)
	}
	d, err := p.Seconds(3)
	if err != nil || d.Seconds() != 1.5 {
		t.Errorf("seconds: %v %v", d, err)
	}
	if _, err := p.Float(0); err == nil {
		t.Error("expected parse error for non-numeric parameter")
	}
	if d, err := p.Seconds(7); err != nil || d != 0 {
		t.Errorf("missing duration should be zero, got %v %v", d, err)
	}
}
