package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/AaronLay10/ActionGraph/internal/actions"
	"github.com/AaronLay10/ActionGraph/internal/engine"
	"github.com/AaronLay10/ActionGraph/internal/graph"
	"github.com/AaronLay10/ActionGraph/internal/storage"
)

// maxFinishedRuns bounds how many ended runs stay inspectable.
const maxFinishedRuns = 64

var ErrRunNotFound = errors.New("run not found")

// RegistryFactory builds the kind registry for one run around its stage.
type RegistryFactory func(stage actions.Stage) (*engine.Registry, error)

// Run is one scene executing on its own tick loop. The engine and loop are only
// touched with mu held.
type Run struct {
	ID        string
	SceneID   string
	StartedAt time.Time

	mu     sync.Mutex
	loop   *engine.Loop
	eng    *engine.Engine
	stage  *actions.MemoryStage
	cancel context.CancelFunc
	done   chan struct{}
}

// RunStatus is the JSON view of a run.
type RunStatus struct {
	ID         string          `json:"id"`
	SceneID    string          `json:"scene_id"`
	StartedAt  time.Time       `json:"started_at"`
	Ticks      uint64          `json:"ticks"`
	Run        engine.Snapshot `json:"run"`
	Dialogue   []actions.Line  `json:"dialogue,omitempty"`
	StageState string          `json:"stage_state,omitempty"`
}

// Status returns a consistent snapshot of the run.
func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunStatus{
		ID:         r.ID,
		SceneID:    r.SceneID,
		StartedAt:  r.StartedAt,
		Ticks:      r.loop.Ticks(),
		Run:        r.eng.Snapshot(),
		Dialogue:   r.stage.Pending(),
		StageState: r.stage.State(),
	}
}

func (r *Run) State() engine.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eng.State()
}

// Ack acknowledges the oldest pending dialogue line.
func (r *Run) Ack() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage.Acknowledge()
}

// Stop cancels the run and waits for its tick goroutine to exit.
func (r *Run) Stop() error {
	r.mu.Lock()
	err := r.eng.Stop()
	r.mu.Unlock()
	r.cancel()
	<-r.done
	return err
}

// Done is closed once the run's tick goroutine has exited.
func (r *Run) Done() <-chan struct{} { return r.done }

// RunManager owns every server-side run.
type RunManager struct {
	mu          sync.Mutex
	runs        map[string]*Run
	newRegistry RegistryFactory
	rate        int
	onFatal     func(*Run, error)
}

func NewRunManager(newRegistry RegistryFactory, tickRate int) *RunManager {
	return &RunManager{
		runs:        make(map[string]*Run),
		newRegistry: newRegistry,
		rate:        tickRate,
	}
}

// SetOnFatal sets the callback for runs that halt on an error.
func (m *RunManager) SetOnFatal(fn func(*Run, error)) {
	m.onFatal = fn
}

// Start runs g from its start node. The run's ID is its event session ID.
func (m *RunManager) Start(sceneID string, g *graph.Graph) (*Run, error) {
	stage := actions.NewMemoryStage()
	reg, err := m.newRegistry(stage)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Run{
		SceneID:   sceneID,
		StartedAt: time.Now().UTC(),
		loop:      engine.NewLoop(),
		stage:     stage,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.eng = engine.New(r.loop, reg)
	r.eng.SetOnFatal(func(err error) {
		if m.onFatal != nil {
			m.onFatal(r, err)
		}
	})
	if err := r.eng.StartScene(sceneID, g); err != nil {
		cancel()
		return nil, err
	}
	r.ID = r.eng.SessionID()

	m.mu.Lock()
	m.runs[r.ID] = r
	m.pruneLocked()
	m.mu.Unlock()

	go func() {
		defer close(r.done)
		engine.Drive(ctx, r.loop, m.rate, &r.mu, func() bool { return r.eng.State().Terminal() })
	}()
	return r, nil
}

// pruneLocked forgets the oldest ended runs beyond maxFinishedRuns.
func (m *RunManager) pruneLocked() {
	var ended []*Run
	for _, r := range m.runs {
		select {
		case <-r.done:
			ended = append(ended, r)
		default:
		}
	}
	if len(ended) <= maxFinishedRuns {
		return
	}
	sort.Slice(ended, func(i, j int) bool { return ended[i].StartedAt.Before(ended[j].StartedAt) })
	for _, r := range ended[:len(ended)-maxFinishedRuns] {
		delete(m.runs, r.ID)
	}
}

func (m *RunManager) Get(id string) (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	return r, ok
}

// List returns every known run, oldest first.
func (m *RunManager) List() []*Run {
	m.mu.Lock()
	runs := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.Unlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	return runs
}

// Stop stops the run with the given ID.
func (m *RunManager) Stop(id string) error {
	r, ok := m.Get(id)
	if !ok {
		return ErrRunNotFound
	}
	return r.Stop()
}

// Counts returns the number of runs per state.
func (m *RunManager) Counts() map[engine.RunState]int {
	counts := make(map[engine.RunState]int)
	for _, r := range m.List() {
		counts[r.State()]++
	}
	return counts
}

// Close stops every active run.
func (m *RunManager) Close() {
	for _, r := range m.List() {
		if r.State() == engine.RunRunning {
			_ = r.Stop()
		}
	}
}

type StartRunRequest struct {
	SceneID string `json:"scene_id"`
}

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	runs := s.runs.List()
	out := make([]RunStatus, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.Status())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) startRunHandler(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SceneID == "" {
		writeError(w, http.StatusBadRequest, "scene_id required")
		return
	}

	g, _, err := storage.LoadGraph(r.Context(), s.store, req.SceneID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	run, err := s.runs.Start(req.SceneID, g)
	if err != nil {
		if errors.Is(err, engine.ErrNoStartNode) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, run.Status())
}

func (s *Server) getRunHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrRunNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, run.Status())
}

func (s *Server) stopRunHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrRunNotFound.Error())
		return
	}
	if err := run.Stop(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run.Status())
}

func (s *Server) ackRunHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, ErrRunNotFound.Error())
		return
	}
	if !run.Ack() {
		writeError(w, http.StatusConflict, "no dialogue line is waiting")
		return
	}
	writeJSON(w, http.StatusOK, Response{OK: true})
}
