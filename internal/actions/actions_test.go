package actions

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AaronLay10/ActionGraph/internal/engine"
	"github.com/AaronLay10/ActionGraph/internal/events"
	"github.com/AaronLay10/ActionGraph/internal/graph"
	"github.com/AaronLay10/ActionGraph/internal/mqtt"
)

// MockMQTTClient records published messages.
type MockMQTTClient struct {
	mu           sync.Mutex
	connected    bool
	published    []PublishedMessage
	publishError error
}

type PublishedMessage struct {
	Topic   string
	Payload []byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{connected: true}
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.published = append(m.published, PublishedMessage{Topic: topic, Payload: payload})
	return nil
}

func (m *MockMQTTClient) GetPublished() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage{}, m.published...)
}

// chain builds start -> payloads... -> end.
func chain(payloads ...graph.Payload) *graph.Graph {
	g := graph.New()
	prev := g.AddNode(graph.Point{}, graph.NewPayload(graph.KindStart))
	for i, p := range payloads {
		prev, _ = g.AddNodeAfter(prev, graph.Point{X: 4 * (i + 1)}, p)
	}
	_, _ = g.AddNodeAfter(prev, graph.Point{X: 4 * (len(payloads) + 1)}, graph.NewPayload(graph.KindEnd))
	return g
}

func start(t *testing.T, deps Deps, g *graph.Graph) (*engine.Engine, *engine.Loop) {
	t.Helper()
	reg, err := NewRegistry(deps)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	loop := engine.NewLoop()
	eng := engine.New(loop, reg)
	if err := eng.StartScene("test", g); err != nil {
		t.Fatalf("start: %v", err)
	}
	return eng, loop
}

func TestMoveTweensPosition(t *testing.T) {
	stage := NewMemoryStage()
	eng, loop := start(t, Deps{Stage: stage}, chain(graph.NewPayload("move", "hero", "10", "-4", "1")))

	loop.Tick(250 * time.Millisecond) // start
	loop.Tick(250 * time.Millisecond) // move dispatched, first quarter
	if got := stage.Get("hero", PropPosition); got[0] != 2.5 || got[1] != -1 {
		t.Errorf("after one quarter: %v", got)
	}
	loop.Tick(250 * time.Millisecond)
	loop.Tick(250 * time.Millisecond)
	if eng.State() != engine.RunRunning {
		t.Fatalf("move finished early: %s", eng.State())
	}
	loop.Tick(250 * time.Millisecond)
	if got := stage.Get("hero", PropPosition); got[0] != 10 || got[1] != -4 {
		t.Errorf("final position %v", got)
	}
	loop.Tick(250 * time.Millisecond) // end
	if eng.State() != engine.RunFinished {
		t.Errorf("expected finished, got %s", eng.State())
	}
}

func TestTweensStartFromCurrentValue(t *testing.T) {
	stage := NewMemoryStage()
	stage.Set("door", PropAlpha, []float64{0.5})
	stage.Set("door", PropColor, []float64{0, 0, 0, 1})
	g := chain(
		graph.NewPayload("fade", "door", "0", "0.5"),
		graph.NewPayload("color", "door", "1", "0.5", "0", "1", "0"),
		graph.NewPayload("rotate", "door", "90", "0"),
		graph.NewPayload("scale", "door", "2", "3", "0"),
	)
	eng, loop := start(t, Deps{Stage: stage}, g)

	loop.Tick(250 * time.Millisecond) // start
	loop.Tick(250 * time.Millisecond) // fade halfway
	if got := stage.Get("door", PropAlpha)[0]; got != 0.25 {
		t.Errorf("alpha halfway %v, want 0.25", got)
	}
	for i := 0; i < 8 && eng.State() == engine.RunRunning; i++ {
		loop.Tick(250 * time.Millisecond)
	}
	if eng.State() != engine.RunFinished {
		t.Fatalf("expected finished, got %s", eng.State())
	}
	if got := stage.Get("door", PropColor); got[0] != 1 || got[1] != 0.5 || got[3] != 1 {
		t.Errorf("color %v", got)
	}
	if got := stage.Get("door", PropRotation); got[0] != 90 {
		t.Errorf("rotation %v", got)
	}
	if got := stage.Get("door", PropScale); got[0] != 2 || got[1] != 3 {
		t.Errorf("scale %v", got)
	}
}

func TestWaitHoldsBranch(t *testing.T) {
	eng, loop := start(t, Deps{}, chain(graph.NewPayload("wait", "0.1")))

	loop.Tick(40 * time.Millisecond)
	loop.Tick(40 * time.Millisecond)
	loop.Tick(40 * time.Millisecond)
	if eng.State() != engine.RunRunning {
		t.Fatal("wait finished before its duration")
	}
	loop.Tick(40 * time.Millisecond)
	loop.Tick(40 * time.Millisecond)
	if eng.State() != engine.RunFinished {
		t.Errorf("expected finished, got %s", eng.State())
	}
}

func TestVisibilityAndTransition(t *testing.T) {
	stage := NewMemoryStage()
	stage.States = map[string]bool{"combat": true}
	g := chain(
		graph.NewPayload("hide", "ghost"),
		graph.NewPayload("show", "lantern"),
		graph.NewPayload("transition", "combat"),
	)
	eng, loop := start(t, Deps{Stage: stage}, g)
	for i := 0; i < 6; i++ {
		loop.Tick(time.Millisecond)
	}

	if eng.State() != engine.RunFinished {
		t.Fatalf("expected finished, got %s (%v)", eng.State(), eng.Err())
	}
	if stage.Visible("ghost") || !stage.Visible("lantern") {
		t.Error("visibility not applied")
	}
	if stage.State() != "combat" || len(stage.Transitions()) != 1 {
		t.Errorf("unexpected transitions %v", stage.Transitions())
	}
}

func TestUnknownTransitionHaltsRun(t *testing.T) {
	stage := NewMemoryStage()
	stage.States = map[string]bool{"combat": true}
	eng, loop := start(t, Deps{Stage: stage}, chain(graph.NewPayload("transition", "credits")))
	loop.Tick(time.Millisecond)
	loop.Tick(time.Millisecond)

	var herr *engine.HandlerError
	if !errors.As(eng.Err(), &herr) || herr.Kind != "transition" {
		t.Errorf("expected HandlerError from transition, got %v", eng.Err())
	}
}

func TestDialogueWaitsForAcknowledgement(t *testing.T) {
	stage := NewMemoryStage()
	eng, loop := start(t, Deps{Stage: stage}, chain(graph.NewPayload("dialogue", "keeper", "The light must not go out.")))

	for i := 0; i < 5; i++ {
		loop.Tick(time.Second)
	}
	pending := stage.Pending()
	if len(pending) != 1 || pending[0].Speaker != "keeper" {
		t.Fatalf("expected one pending line, got %v", pending)
	}
	if eng.State() != engine.RunRunning {
		t.Fatal("dialogue finished without acknowledgement")
	}

	if !stage.Acknowledge() {
		t.Fatal("acknowledge found no line")
	}
	loop.Tick(time.Millisecond) // finish handed back to the loop
	loop.Tick(time.Millisecond) // end
	if eng.State() != engine.RunFinished {
		t.Errorf("expected finished, got %s", eng.State())
	}
	if stage.Acknowledge() {
		t.Error("no line should be left")
	}
	if len(stage.Transcript()) != 1 {
		t.Errorf("unexpected transcript %v", stage.Transcript())
	}
}

func TestBadParametersHaltRun(t *testing.T) {
	eng, loop := start(t, Deps{}, chain(graph.NewPayload("move", "hero", "left", "0", "1")))
	loop.Tick(time.Millisecond)
	loop.Tick(time.Millisecond)
	if eng.State() != engine.RunHalted {
		t.Errorf("expected halted, got %s", eng.State())
	}

	eng, loop = start(t, Deps{}, chain(graph.NewPayload("show")))
	loop.Tick(time.Millisecond)
	loop.Tick(time.Millisecond)
	if eng.State() != engine.RunHalted {
		t.Errorf("show without target: expected halted, got %s", eng.State())
	}
}

func TestDeviceCommandPublishes(t *testing.T) {
	events.Clear()
	client := NewMockMQTTClient()
	devices := mqtt.NewDeviceRegistry("rooms/crypt")
	devices.Register(&mqtt.Device{ID: "crypt_door", OutputSignals: []string{"unlock", "lock"}})

	eng, loop := start(t, Deps{Publisher: client, Devices: devices},
		chain(graph.NewPayload("device", "crypt_door", "unlock", `{"force":true}`)))
	loop.Tick(time.Millisecond)
	loop.Tick(time.Millisecond)
	loop.Tick(time.Millisecond)

	if eng.State() != engine.RunFinished {
		t.Fatalf("expected finished, got %s", eng.State())
	}
	published := client.GetPublished()
	if len(published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(published))
	}
	if published[0].Topic != "rooms/crypt/crypt_door/commands" {
		t.Errorf("unexpected topic %s", published[0].Topic)
	}

	var body struct {
		Signal  string                 `json:"signal"`
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal(published[0].Payload, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Signal != "unlock" || body.Payload["force"] != true {
		t.Errorf("unexpected body %+v", body)
	}

	found := false
	for _, e := range events.Snapshot() {
		if e.Name == "device.command" && e.Fields["device_id"] == "crypt_door" {
			found = true
		}
	}
	if !found {
		t.Error("expected device.command event")
	}
}

func TestDeviceErrorsStillFinish(t *testing.T) {
	cases := []struct {
		name    string
		client  *MockMQTTClient
		payload graph.Payload
	}{
		{"disconnected", &MockMQTTClient{}, graph.NewPayload("device", "lamp", "on")},
		{"publish failure", &MockMQTTClient{connected: true, publishError: errors.New("broker gone")}, graph.NewPayload("device", "lamp", "on")},
		{"bad signal", NewMockMQTTClient(), graph.NewPayload("device", "crypt_door", "explode")},
		{"bad payload", NewMockMQTTClient(), graph.NewPayload("device", "lamp", "on", "{not json")},
		{"missing device", NewMockMQTTClient(), graph.NewPayload("device")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events.Clear()
			devices := mqtt.NewDeviceRegistry("devices")
			devices.Register(&mqtt.Device{ID: "crypt_door", OutputSignals: []string{"unlock"}})

			eng, loop := start(t, Deps{Publisher: tc.client, Devices: devices}, chain(tc.payload))
			for i := 0; i < 3; i++ {
				loop.Tick(time.Millisecond)
			}
			if eng.State() != engine.RunFinished {
				t.Fatalf("expected finished, got %s (%v)", eng.State(), eng.Err())
			}
			if len(tc.client.GetPublished()) != 0 {
				t.Error("nothing should have been published")
			}
			found := false
			for _, e := range events.Snapshot() {
				if e.Name == "device.error" && e.SessionID == eng.SessionID() {
					found = true
				}
			}
			if !found {
				t.Error("expected device.error event")
			}
		})
	}
}

func TestCatalogHidesPresentUniqueKinds(t *testing.T) {
	reg, err := NewRegistry(Deps{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	g := chain()
	for _, spec := range reg.Catalog(g) {
		if spec.Name == graph.KindStart || spec.Name == graph.KindEnd {
			t.Errorf("catalog offers %s although the scene has one", spec.Name)
		}
		if len(spec.Params) != len(spec.Defaults) {
			t.Errorf("%s: %d params but %d defaults", spec.Name, len(spec.Params), len(spec.Defaults))
		}
	}
	if len(reg.Catalog(graph.New())) != len(reg.Kinds()) {
		t.Error("empty scene should offer every kind")
	}
}
