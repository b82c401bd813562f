package graph

import (
	"errors"
	"reflect"
	"testing"
)

func edgeSet(rec Record) map[[2]int]bool {
	set := make(map[[2]int]bool)
	for i, n := range rec.Nodes {
		for _, c := range n.ChildIndices {
			set[[2]int{i, c}] = true
		}
	}
	return set
}

func sameEdges(a, b map[[2]int]bool) bool {
	return reflect.DeepEqual(a, b)
}

func TestSerializeRoundTrip(t *testing.T) {
	g, _, _, _, _ := diamond(t)
	extra := g.AddNode(Point{-3, 7}, NewPayload("dialogue", "guide", "Welcome back."))
	if err := g.Connect(0, extra); err != nil {
		t.Fatalf("connect: %v", err)
	}

	rec := g.Serialize()
	loaded, diags := Deserialize(rec)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	again := loaded.Serialize()
	if loaded.Len() != g.Len() {
		t.Errorf("node count %d, want %d", loaded.Len(), g.Len())
	}
	if !sameEdges(edgeSet(rec), edgeSet(again)) {
		t.Errorf("edge sets differ: %v vs %v", edgeSet(rec), edgeSet(again))
	}
	if !reflect.DeepEqual(rec.Payloads, again.Payloads) {
		t.Errorf("payloads differ: %v vs %v", rec.Payloads, again.Payloads)
	}
	for _, id := range g.IDs() {
		want, _ := g.Node(id)
		got, _ := loaded.Node(id)
		if want.Position != got.Position || want.PayloadIndex != got.PayloadIndex {
			t.Errorf("node %d differs: %+v vs %+v", id, want, got)
		}
		if want.JoinTarget() != got.JoinTarget() {
			t.Errorf("node %d join target %d, want %d", id, got.JoinTarget(), want.JoinTarget())
		}
	}
}

func TestSerializeDoesNotAliasGraph(t *testing.T) {
	g, _, _, _, _ := diamond(t)
	rec := g.Serialize()
	rec.Payloads[0].Kind = "mutated"
	rec.Nodes[0].ChildIndices[0] = 3

	if g.Kind(0) != KindStart {
		t.Error("serialized payloads alias the graph")
	}
	if !g.Connected(0, 1) {
		t.Error("serialized child indices alias the graph")
	}
}

func TestDeserializeDropsDanglingReference(t *testing.T) {
	// Five nodes, five valid edges plus one out-of-range index on record 1.
	rec := Record{
		Nodes: []NodeRecord{
			{Position: Point{0, 0}, PayloadIndex: 0, ChildIndices: []int{1, 2}},
			{Position: Point{4, -2}, PayloadIndex: 1, ChildIndices: []int{99, 3}},
			{Position: Point{4, 2}, PayloadIndex: 2, ChildIndices: []int{3}},
			{Position: Point{8, 0}, PayloadIndex: 3, ChildIndices: []int{4}},
			{Position: Point{12, 0}, PayloadIndex: 4},
		},
		Payloads: []PayloadRecord{
			NewPayload(KindStart),
			NewPayload("wait", "1"),
			NewPayload("wait", "2"),
			NewPayload("fade", "door", "1", "0.5"),
			NewPayload(KindEnd),
		},
	}

	g, diags := Deserialize(rec)
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d: %v", len(diags), diags)
	}
	var dangling *DanglingReferenceError
	if !errors.As(diags[0], &dangling) {
		t.Fatalf("expected DanglingReferenceError, got %T", diags[0])
	}
	if dangling.Record != 1 || dangling.Child != 99 || dangling.Count != 5 {
		t.Errorf("unexpected diagnostic %+v", dangling)
	}

	if g.Len() != 5 {
		t.Fatalf("expected 5 nodes, got %d", g.Len())
	}
	want := [][2]NodeID{{0, 1}, {0, 2}, {1, 3}, {2, 3}, {3, 4}}
	if got := g.Edges(); !reflect.DeepEqual(got, want) {
		t.Errorf("edges %v, want %v", got, want)
	}
	n3, _ := g.Node(3)
	if n3.JoinTarget() != 2 {
		t.Errorf("node 3 join target %d, want 2", n3.JoinTarget())
	}
	assertSymmetric(t, g)
}

func TestDeserializeRecoversFromCorruptRecords(t *testing.T) {
	rec := Record{
		Nodes: []NodeRecord{
			{PayloadIndex: 0, ChildIndices: []int{0, 1, 1, -1}},
			{PayloadIndex: 7},
		},
		Payloads: []PayloadRecord{NewPayload(KindStart)},
	}

	g, diags := Deserialize(rec)
	if len(diags) != 4 {
		t.Fatalf("expected 4 diagnostics, got %d: %v", len(diags), diags)
	}

	var (
		payloadRange *PayloadRangeError
		selfLoop     *SelfLoopError
		dup          *DuplicateEdgeError
		dangling     *DanglingReferenceError
	)
	for _, d := range diags {
		switch {
		case errors.As(d, &payloadRange), errors.As(d, &selfLoop), errors.As(d, &dup), errors.As(d, &dangling):
		default:
			t.Errorf("unexpected diagnostic %T", d)
		}
	}
	if payloadRange == nil || selfLoop == nil || dup == nil || dangling == nil {
		t.Errorf("missing diagnostic kinds: %v", diags)
	}

	if got := g.Edges(); len(got) != 1 || got[0] != [2]NodeID{0, 1} {
		t.Errorf("expected single edge 0->1, got %v", got)
	}
	if _, err := g.Payload(1); err == nil {
		t.Error("expected payload range error for node 1")
	}
	if diags.Err() == nil {
		t.Error("expected non-nil Err from diagnostics")
	}
}
