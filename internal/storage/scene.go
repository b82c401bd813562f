package storage

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/AaronLay10/ActionGraph/internal/canvas"
	"github.com/AaronLay10/ActionGraph/internal/graph"
)

// SceneVersion is the only scene file version this build reads and writes.
const SceneVersion = 1

var ErrSceneNotFound = errors.New("scene not found")

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Scene is the persisted form of one authored scene.
type Scene struct {
	Version  int                   `json:"version" yaml:"version" msgpack:"version"`
	ID       string                `json:"id" yaml:"id" msgpack:"id"`
	Name     string                `json:"name,omitempty" yaml:"name,omitempty" msgpack:"name,omitempty"`
	Nodes    []graph.NodeRecord    `json:"nodes" yaml:"nodes" msgpack:"nodes"`
	Payloads []graph.PayloadRecord `json:"payloads" yaml:"payloads" msgpack:"payloads"`
	View     *canvas.ViewState     `json:"view,omitempty" yaml:"view,omitempty" msgpack:"view,omitempty"`
}

// VersionError rejects a scene written by an incompatible version.
type VersionError struct {
	Got int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported scene version: %d (expected %d)", e.Got, SceneVersion)
}

// NewScene captures g, and optionally a view state, as a scene record.
func NewScene(id, name string, g *graph.Graph, view *canvas.ViewState) *Scene {
	rec := g.Serialize()
	return &Scene{
		Version:  SceneVersion,
		ID:       id,
		Name:     name,
		Nodes:    rec.Nodes,
		Payloads: rec.Payloads,
		View:     view,
	}
}

// Record returns the graph part of the scene.
func (s *Scene) Record() graph.Record {
	return graph.Record{Nodes: s.Nodes, Payloads: s.Payloads}
}

// Graph rebuilds the graph. Bad edges are dropped and reported.
func (s *Scene) Graph() (*graph.Graph, graph.Diagnostics) {
	return graph.Deserialize(s.Record())
}

// Validate checks the header fields.
func (s *Scene) Validate() error {
	if s.Version != SceneVersion {
		return &VersionError{Got: s.Version}
	}
	return ValidateID(s.ID)
}

// ValidateID rejects IDs that are empty or could escape a scenes directory.
func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("invalid scene id %q", id)
	}
	return nil
}
