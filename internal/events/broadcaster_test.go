package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub Subscriber) Event {
	t.Helper()
	select {
	case e := <-sub:
		return e
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for broadcast event")
	}
	return Event{}
}

func quiet(t *testing.T, sub Subscriber) {
	t.Helper()
	select {
	case e := <-sub:
		t.Errorf("unexpected event %+v", e)
	default:
	}
}

func TestSubscriberCount(t *testing.T) {
	CloseAllSubscribers()

	a := Subscribe()
	b := SubscribeSession("run-1")
	if SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", SubscriberCount())
	}
	Unsubscribe(a)
	Unsubscribe(a)
	if SubscriberCount() != 1 {
		t.Errorf("double unsubscribe must be a no-op, got %d subscribers", SubscriberCount())
	}
	Unsubscribe(b)
	if _, ok := <-b; ok {
		t.Error("expected channel closed after unsubscribe")
	}
}

func TestBroadcastReachesEverySubscriber(t *testing.T) {
	a, b := Subscribe(), Subscribe()
	defer Unsubscribe(a)
	defer Unsubscribe(b)

	Emit("info", "scene.started", "", map[string]interface{}{"scene_id": "intro"})

	for _, sub := range []Subscriber{a, b} {
		if e := receive(t, sub); e.Name != "scene.started" || e.Fields["scene_id"] != "intro" {
			t.Errorf("unexpected event %+v", e)
		}
	}
}

func TestSessionSubscriber(t *testing.T) {
	sub := SubscribeSession("run-1")
	defer Unsubscribe(sub)

	EmitSession("run-2", "info", "node.dispatched", "", nil)
	quiet(t, sub)

	EmitSession("run-1", "info", "node.dispatched", "", nil)
	if e := receive(t, sub); e.SessionID != "run-1" {
		t.Errorf("expected run-1 event, got %+v", e)
	}

	Emit("info", "system.error", "", nil)
	if e := receive(t, sub); e.Name != "system.error" {
		t.Errorf("expected session-less event, got %+v", e)
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	sub := Subscribe()
	defer Unsubscribe(sub)

	before := Dropped()
	for i := 0; i < subscriberBuffer+3; i++ {
		Emit("info", "node.finished", "", nil)
	}
	if got := Dropped() - before; got < 3 {
		t.Errorf("expected at least 3 dropped deliveries, got %d", got)
	}
	if len(sub) != subscriberBuffer {
		t.Errorf("expected full buffer, got %d", len(sub))
	}
}

func TestRecentEvents(t *testing.T) {
	Clear()
	for i := 0; i < 10; i++ {
		session := "run-a"
		if i%2 == 1 {
			session = "run-b"
		}
		EmitSession(session, "info", "node.dispatched", "", map[string]interface{}{"i": i})
	}

	recent := RecentEvents(5, "")
	if len(recent) != 5 || recent[0].Fields["i"] != 5 || recent[4].Fields["i"] != 9 {
		t.Errorf("unexpected newest five: %v", recent)
	}
	if all := RecentEvents(0, ""); len(all) != 10 {
		t.Errorf("expected all 10 events, got %d", len(all))
	}

	odd := RecentEvents(2, "run-b")
	if len(odd) != 2 || odd[0].Fields["i"] != 7 || odd[1].Fields["i"] != 9 {
		t.Errorf("unexpected run-b events: %v", odd)
	}
}
