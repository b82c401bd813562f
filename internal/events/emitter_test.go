package events

import (
	"encoding/json"
	"testing"
)

func TestEmitRejectsUnknownEvent(t *testing.T) {
	Clear()
	if _, err := Emit("info", "node.exploded", "", nil); err == nil {
		t.Error("expected error for unknown event name")
	}
	if len(Snapshot()) != 0 {
		t.Error("rejected event must not reach the buffer")
	}
}

func TestEmitSessionTagsEvent(t *testing.T) {
	Clear()
	b, err := EmitSession("run-1", "info", "scene.started", "", map[string]interface{}{"scene_id": "intro"})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.SessionID != "run-1" || decoded.Name != "scene.started" {
		t.Errorf("unexpected event %+v", decoded)
	}

	snap := Snapshot()
	if len(snap) != 1 || snap[0].SessionID != "run-1" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Add(Event{Name: "node.finished", Fields: map[string]interface{}{"i": i}})
	}
	snap := rb.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 events, got %d", len(snap))
	}
	if snap[0].Fields["i"] != 2 || snap[2].Fields["i"] != 4 {
		t.Errorf("unexpected order: %v", snap)
	}

	rb.Clear()
	if len(rb.Snapshot()) != 0 {
		t.Error("expected empty buffer after Clear")
	}
}
