package api

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/ActionGraph/internal/canvas"
	"github.com/AaronLay10/ActionGraph/internal/editor"
	"github.com/AaronLay10/ActionGraph/internal/graph"
	"github.com/AaronLay10/ActionGraph/internal/storage"
)

const (
	// maxEditorSessions bounds open sessions; the least recently used one goes first.
	maxEditorSessions = 64
	// editorIdleTimeout closes sessions nobody has touched for this long.
	editorIdleTimeout = 30 * time.Minute
)

// EditorSession is a headless canvas over one scene. Input is applied to the
// controller one request at a time.
type EditorSession struct {
	ID       string
	SceneID  string
	Name     string
	OpenedAt time.Time

	lastUsed atomic.Int64 // unix nanoseconds
	mu       sync.Mutex
	ctl      *editor.Controller
}

func (s *EditorSession) touch(now time.Time) { s.lastUsed.Store(now.UnixNano()) }

// LastUsed is when the session last served a request.
func (s *EditorSession) LastUsed() time.Time { return time.Unix(0, s.lastUsed.Load()) }

// EditorSessions is the set of open sessions. Opening a session first closes idle
// ones, then the least recently used while the set is full. Unsaved changes of a
// closed session are lost.
type EditorSessions struct {
	mu       sync.RWMutex
	sessions map[string]*EditorSession
	max      int
	idle     time.Duration
}

func NewEditorSessions() *EditorSessions {
	return &EditorSessions{
		sessions: make(map[string]*EditorSession),
		max:      maxEditorSessions,
		idle:     editorIdleTimeout,
	}
}

func (e *EditorSessions) add(s *EditorSession) {
	now := time.Now()
	s.touch(now)

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, old := range e.sessions {
		if now.Sub(old.LastUsed()) > e.idle {
			log.Printf("editor: closing idle session %s (scene %s)", id, old.SceneID)
			delete(e.sessions, id)
		}
	}
	for len(e.sessions) >= e.max && len(e.sessions) > 0 {
		var oldest *EditorSession
		for _, cand := range e.sessions {
			if oldest == nil || cand.LastUsed().Before(oldest.LastUsed()) {
				oldest = cand
			}
		}
		log.Printf("editor: session limit reached, closing %s (scene %s)", oldest.ID, oldest.SceneID)
		delete(e.sessions, oldest.ID)
	}
	e.sessions[s.ID] = s
}

func (e *EditorSessions) Get(id string) (*EditorSession, bool) {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if ok {
		s.touch(time.Now())
	}
	return s, ok
}

// Close forgets a session. Unsaved changes are lost.
func (e *EditorSessions) Close(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[id]
	delete(e.sessions, id)
	return ok
}

func (e *EditorSessions) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

type OpenEditorRequest struct {
	SceneID string `json:"scene_id"`
	Name    string `json:"name,omitempty"`
	// Viewport overrides the configured canvas area, in screen pixels.
	Viewport *canvas.Rect `json:"viewport,omitempty"`
}

type MenuRequest struct {
	// At opens the menu on a graph cell.
	At *graph.Point `json:"at,omitempty"`
	// Entry picks an entry of the open menu.
	Entry *int `json:"entry,omitempty"`
}

type SaveRequest struct {
	Name string `json:"name,omitempty"`
}

// EditorNode is a node as the canvas draws it.
type EditorNode struct {
	ID       int         `json:"id"`
	Kind     string      `json:"kind"`
	Params   []string    `json:"params"`
	Position graph.Point `json:"position"`
	Rect     canvas.Rect `json:"rect"`
	Children []int       `json:"children"`
}

// EditorSnapshot is what a client needs to draw the canvas.
type EditorSnapshot struct {
	ID        string           `json:"id"`
	SceneID   string           `json:"scene_id"`
	Name      string           `json:"name,omitempty"`
	State     string           `json:"state"`
	Dirty     bool             `json:"dirty"`
	View      canvas.ViewState `json:"view"`
	Scale     float64          `json:"scale"`
	Extent    canvas.Bounds    `json:"extent"`
	Scroll    canvas.Vec       `json:"scroll"`
	Selection *int             `json:"selection,omitempty"`
	Pending   *editor.Pending  `json:"pending,omitempty"`
	Menu      *editor.Menu     `json:"menu,omitempty"`
	Nodes     []EditorNode     `json:"nodes"`
}

func (s *EditorSession) snapshotLocked() EditorSnapshot {
	ctl := s.ctl
	view := ctl.View()
	g := ctl.Graph()
	snap := EditorSnapshot{
		ID:      s.ID,
		SceneID: s.SceneID,
		Name:    s.Name,
		State:   ctl.State().String(),
		Dirty:   ctl.Dirty(),
		View:    view.State(),
		Scale:   view.Scale(),
		Extent:  view.Extent,
		Scroll:  view.ScrollIndicator(),
		Nodes:   make([]EditorNode, 0, g.Len()),
	}
	if sel, ok := ctl.Selection(); ok {
		id := int(sel)
		snap.Selection = &id
	}
	if p, ok := ctl.Pending(); ok {
		snap.Pending = &p
	}
	if m, ok := ctl.Menu(); ok {
		snap.Menu = &m
	}
	for _, id := range g.IDs() {
		n, _ := g.Node(id)
		p, _ := g.Payload(id)
		rect, _ := ctl.NodeRect(id)
		children := []int{}
		for _, c := range n.Children() {
			children = append(children, int(c))
		}
		snap.Nodes = append(snap.Nodes, EditorNode{
			ID:       int(id),
			Kind:     p.Kind,
			Params:   p.Parameters,
			Position: n.Position,
			Rect:     rect,
			Children: children,
		})
	}
	return snap
}

// Snapshot returns the session's current drawable state.
func (s *EditorSession) Snapshot() EditorSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// apply runs fn against the controller and returns the resulting snapshot.
func (s *EditorSession) apply(fn func(ctl *editor.Controller) error) (EditorSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.ctl)
	return s.snapshotLocked(), err
}

// openEditorHandler opens a session on a stored scene, or on a new empty one when
// the scene does not exist yet.
func (s *Server) openEditorHandler(w http.ResponseWriter, r *http.Request) {
	var req OpenEditorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := storage.ValidateID(req.SceneID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g, scene, err := storage.LoadGraph(r.Context(), s.store, req.SceneID)
	switch {
	case errors.Is(err, storage.ErrSceneNotFound):
		g = graph.New()
	case err != nil:
		writeStoreError(w, err)
		return
	}

	view := editor.ViewFromConfig(s.cfg.Canvas)
	if req.Viewport != nil && req.Viewport.W > 0 && req.Viewport.H > 0 {
		view.Resize(*req.Viewport)
		view.CoverViewport()
	}
	ctl := editor.New(g, view, s.catalog, editor.OptionsFromConfig(s.cfg.Canvas))
	ctl.SceneID = req.SceneID

	name := req.Name
	if scene != nil {
		if scene.View != nil {
			view.Restore(*scene.View)
		}
		if name == "" {
			name = scene.Name
		}
	}

	sess := &EditorSession{
		ID:       uuid.NewString(),
		SceneID:  req.SceneID,
		Name:     name,
		OpenedAt: time.Now().UTC(),
		ctl:      ctl,
	}
	s.editors.add(sess)
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) editorSession(w http.ResponseWriter, r *http.Request) (*EditorSession, bool) {
	sess, ok := s.editors.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "editor session not found")
	}
	return sess, ok
}

func (s *Server) getEditorHandler(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.editorSession(w, r); ok {
		writeJSON(w, http.StatusOK, sess.Snapshot())
	}
}

func (s *Server) closeEditorHandler(w http.ResponseWriter, r *http.Request) {
	if !s.editors.Close(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "editor session not found")
		return
	}
	writeJSON(w, http.StatusOK, Response{OK: true})
}

func (s *Server) editorPointerHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}
	var ev editor.PointerEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch ev.Action {
	case editor.PointerDown, editor.PointerMove, editor.PointerUp:
	default:
		writeError(w, http.StatusBadRequest, "unknown pointer action")
		return
	}
	if ev.Button == "" {
		ev.Button = editor.ButtonPrimary
	}
	snap, _ := sess.apply(func(ctl *editor.Controller) error {
		ctl.HandlePointerEvent(ev)
		return nil
	})
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) editorScrollHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}
	var ev editor.ScrollEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	snap, _ := sess.apply(func(ctl *editor.Controller) error {
		ctl.HandleScrollEvent(ev)
		return nil
	})
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) editorKeyHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}
	var ev editor.KeyEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if ev.Action == "" {
		ev.Action = editor.KeyDown
	}
	snap, _ := sess.apply(func(ctl *editor.Controller) error {
		ctl.HandleKeyEvent(ev)
		return nil
	})
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) editorMenuHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}
	var req MenuRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if (req.At == nil) == (req.Entry == nil) {
		writeError(w, http.StatusBadRequest, "exactly one of at or entry is required")
		return
	}
	snap, err := sess.apply(func(ctl *editor.Controller) error {
		if req.At != nil {
			ctl.OpenMenu(*req.At)
			return nil
		}
		_, err := ctl.SelectMenuEntry(*req.Entry)
		return err
	})
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) editorSaveHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.editorSession(w, r)
	if !ok {
		return
	}
	var req SaveRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if req.Name != "" {
		sess.Name = req.Name
	}
	view := sess.ctl.View().State()
	if _, err := storage.SaveGraph(r.Context(), s.store, sess.SceneID, sess.Name, sess.ctl.Graph(), &view); err != nil {
		writeStoreError(w, err)
		return
	}
	sess.ctl.MarkClean()
	writeJSON(w, http.StatusOK, sess.snapshotLocked())
}
