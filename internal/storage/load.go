package storage

import (
	"context"
	"errors"

	"github.com/AaronLay10/ActionGraph/internal/canvas"
	"github.com/AaronLay10/ActionGraph/internal/events"
	"github.com/AaronLay10/ActionGraph/internal/graph"
)

// LoadGraph loads a scene and rebuilds its graph. A child index past the node list is
// dropped with a graph.dangling_reference event; other dropped records and structural
// warnings are emitted as graph.defect. The load itself never fails on them.
func LoadGraph(ctx context.Context, store Store, id string) (*graph.Graph, *Scene, error) {
	scene, err := store.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	g, diags := scene.Graph()
	for _, d := range diags {
		fields := map[string]interface{}{
			"scene_id": id,
			"error":    d.Error(),
		}
		var dangling *graph.DanglingReferenceError
		if errors.As(d, &dangling) {
			fields["node_id"] = dangling.Record
			fields["child"] = dangling.Child
			events.Emit("warning", "graph.dangling_reference", "", fields)
			continue
		}
		fields["defect"] = diagnosticKind(d)
		fields["source"] = "load"
		events.Emit("warning", "graph.defect", d.Error(), fields)
	}

	defects := g.Validate()
	for _, d := range defects {
		events.Emit("warning", "graph.defect", d.Message, map[string]interface{}{
			"scene_id": id,
			"defect":   string(d.Kind),
			"node_id":  int(d.Node),
		})
	}

	events.Emit("info", "scene.loaded", "", map[string]interface{}{
		"scene_id":    id,
		"nodes":       g.Len(),
		"edges":       len(g.Edges()),
		"diagnostics": len(diags),
		"defects":     len(defects),
	})
	return g, scene, nil
}

// SaveGraph stores g, with an optional view state, under id.
func SaveGraph(ctx context.Context, store Store, id, name string, g *graph.Graph, view *canvas.ViewState) (*Scene, error) {
	scene := NewScene(id, name, g, view)
	if err := store.Save(ctx, scene); err != nil {
		return nil, err
	}
	events.Emit("info", "scene.saved", "", map[string]interface{}{
		"scene_id": id,
		"nodes":    g.Len(),
	})
	return scene, nil
}

// diagnosticKind names a load diagnostic for the graph.defect event.
func diagnosticKind(err error) string {
	var (
		selfLoop  *graph.SelfLoopError
		duplicate *graph.DuplicateEdgeError
		payload   *graph.PayloadRangeError
	)
	switch {
	case errors.As(err, &selfLoop):
		return "self_loop"
	case errors.As(err, &duplicate):
		return "duplicate_edge"
	case errors.As(err, &payload):
		return string(graph.DefectPayloadRange)
	default:
		return "invalid_record"
	}
}
