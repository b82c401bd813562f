package events

import (
	"testing"
	"time"

	"github.com/AaronLay10/ActionGraph/internal/storage/postgres"
)

func TestHistoryFromBuffer(t *testing.T) {
	Clear()
	SetPostgresClient(nil)
	for i := 0; i < 4; i++ {
		EmitSession("run-1", "info", "node.finished", "", map[string]interface{}{"node_id": i})
		EmitSession("run-2", "info", "node.finished", "", nil)
	}

	all, err := History("run-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}

	last, _ := History("run-1", 2)
	if len(last) != 2 || last[0].Fields["node_id"] != 2 || last[1].Fields["node_id"] != 3 {
		t.Errorf("expected the two newest events oldest first, got %+v", last)
	}

	none, _ := History("run-3", 10)
	if len(none) != 0 {
		t.Errorf("expected no events, got %d", len(none))
	}
}

func TestFromRow(t *testing.T) {
	msg, session := "halted", "run-9"
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := fromRow(postgres.EventRow{
		Timestamp: ts,
		Level:     "error",
		Event:     "scene.failed",
		Message:   &msg,
		SessionID: &session,
		Fields:    map[string]interface{}{"error": "boom"},
	})
	if e.Name != "scene.failed" || e.Message != "halted" || e.SessionID != "run-9" {
		t.Errorf("unexpected event %+v", e)
	}
	if e.Timestamp != ts.Format(time.RFC3339Nano) {
		t.Errorf("unexpected timestamp %s", e.Timestamp)
	}

	e = fromRow(postgres.EventRow{Event: "scene.loaded"})
	if e.Message != "" || e.SessionID != "" {
		t.Errorf("nil columns should stay empty, got %+v", e)
	}
}
