package api

import (
	"errors"
	"net/http"

	"github.com/AaronLay10/ActionGraph/internal/graph"
	"github.com/AaronLay10/ActionGraph/internal/storage"
)

// SceneReport summarises a scene graph and everything wrong with it.
type SceneReport struct {
	ID          string       `json:"id"`
	Nodes       int          `json:"nodes"`
	Edges       int          `json:"edges"`
	Diagnostics []string     `json:"diagnostics"`
	Defects     []DefectView `json:"defects"`
}

type DefectView struct {
	Kind    string `json:"kind"`
	Node    int    `json:"node"`
	Message string `json:"message"`
}

type KindView struct {
	Name     string   `json:"name"`
	Unique   bool     `json:"unique,omitempty"`
	Params   []string `json:"params,omitempty"`
	Defaults []string `json:"defaults,omitempty"`
}

func report(id string, g *graph.Graph, diags graph.Diagnostics) SceneReport {
	rep := SceneReport{
		ID:          id,
		Nodes:       g.Len(),
		Edges:       len(g.Edges()),
		Diagnostics: make([]string, 0, len(diags)),
		Defects:     []DefectView{},
	}
	for _, d := range diags {
		rep.Diagnostics = append(rep.Diagnostics, d.Error())
	}
	for _, d := range g.Validate() {
		rep.Defects = append(rep.Defects, DefectView{Kind: string(d.Kind), Node: int(d.Node), Message: d.Message})
	}
	return rep
}

func writeStoreError(w http.ResponseWriter, err error) {
	var verr *storage.VersionError
	switch {
	case errors.Is(err, storage.ErrSceneNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// sceneID reads and checks the {id} path value, writing a 400 when it is unusable.
func sceneID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := storage.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func (s *Server) kindsHandler(w http.ResponseWriter, r *http.Request) {
	specs := s.catalog.Kinds()
	out := make([]KindView, 0, len(specs))
	for _, spec := range specs {
		out = append(out, KindView{Name: spec.Name, Unique: spec.Unique, Params: spec.Params, Defaults: spec.Defaults})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listScenesHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) getSceneHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneID(w, r)
	if !ok {
		return
	}
	scene, err := s.store.Load(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

// putSceneHandler stores a scene. Records that do not survive a rebuild are dropped
// before saving and listed in the response.
func (s *Server) putSceneHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneID(w, r)
	if !ok {
		return
	}
	var in storage.Scene
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if in.ID != "" && in.ID != id {
		writeError(w, http.StatusBadRequest, "scene id does not match path")
		return
	}
	if in.Version == 0 {
		in.Version = storage.SceneVersion
	}
	in.ID = id
	if err := in.Validate(); err != nil {
		writeStoreError(w, err)
		return
	}

	g, diags := in.Graph()
	if _, err := storage.SaveGraph(r.Context(), s.store, id, in.Name, g, in.View); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report(id, g, diags))
}

func (s *Server) deleteSceneHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{OK: true})
}

func (s *Server) validateSceneHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := sceneID(w, r)
	if !ok {
		return
	}
	scene, err := s.store.Load(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	g, diags := scene.Graph()
	writeJSON(w, http.StatusOK, report(id, g, diags))
}
