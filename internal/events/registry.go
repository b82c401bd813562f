package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// scene
	"scene.loaded":    {},
	"scene.saved":     {},
	"scene.started":   {},
	"scene.completed": {},
	"scene.failed":    {},
	"scene.stopped":   {},

	// node
	"node.scheduled":  {},
	"node.waiting":    {},
	"node.dispatched": {},
	"node.finished":   {},
	"node.dead_end":   {},

	// graph (authoring and load)
	"graph.node_added":         {},
	"graph.node_deleted":       {},
	"graph.edge_added":         {},
	"graph.edge_removed":       {},
	"graph.edge_rejected":      {},
	"graph.dangling_reference": {},
	"graph.defect":             {},

	// device
	"device.command": {},
	"device.error":   {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
