package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/AaronLay10/ActionGraph/internal/actions"
	"github.com/AaronLay10/ActionGraph/internal/config"
	"github.com/AaronLay10/ActionGraph/internal/engine"
	"github.com/AaronLay10/ActionGraph/internal/events"
	"github.com/AaronLay10/ActionGraph/internal/storage"
)

// Deps are the collaborators a Server is built from.
type Deps struct {
	Config *config.ProjectConfig
	Store  storage.Store
	// Kinds carries the MQTT publisher and device registry shared by every run.
	// Each run gets its own Stage.
	Kinds actions.Deps
}

// Server serves scenes, headless editor sessions and runs over HTTP.
type Server struct {
	cfg     *config.ProjectConfig
	store   storage.Store
	kinds   actions.Deps
	catalog *engine.Registry
	editors *EditorSessions
	runs    *RunManager
}

// NewServer wires a server. A nil Config uses defaults.
func NewServer(d Deps) (*Server, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("api: a scene store is required")
	}
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}
	catalog, err := actions.NewRegistry(d.Kinds)
	if err != nil {
		return nil, fmt.Errorf("api: build kind catalog: %w", err)
	}
	s := &Server{
		cfg:     cfg,
		store:   d.Store,
		kinds:   d.Kinds,
		catalog: catalog,
		editors: NewEditorSessions(),
	}
	s.runs = NewRunManager(s.newRunRegistry, cfg.TickRate())
	s.runs.SetOnFatal(func(r *Run, err error) {
		AlertRunFailed(r.ID, r.SceneID, err)
	})
	return s, nil
}

func (s *Server) newRunRegistry(stage actions.Stage) (*engine.Registry, error) {
	deps := s.kinds
	deps.Stage = stage
	return actions.NewRegistry(deps)
}

// Runs exposes the run manager, mainly for shutdown.
func (s *Server) Runs() *RunManager { return s.runs }

// Close stops every active run.
func (s *Server) Close() {
	s.runs.Close()
}

// Handler returns the routed API. Authors may change scenes and drive editor
// sessions; operators may read and run.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", RequireAnyRole(uiHandler))
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("GET /ws/events", RequireAnyRole(wsEventsHandler))
	mux.HandleFunc("GET /kinds", RequireAnyRole(s.kindsHandler))

	mux.HandleFunc("GET /scenes", RequireAnyRole(s.listScenesHandler))
	mux.HandleFunc("GET /scenes/{id}", RequireAnyRole(s.getSceneHandler))
	mux.HandleFunc("PUT /scenes/{id}", RequireAuthor(s.putSceneHandler))
	mux.HandleFunc("DELETE /scenes/{id}", RequireAuthor(s.deleteSceneHandler))
	mux.HandleFunc("GET /scenes/{id}/validate", RequireAnyRole(s.validateSceneHandler))

	mux.HandleFunc("POST /editor/sessions", RequireAuthor(s.openEditorHandler))
	mux.HandleFunc("GET /editor/sessions/{id}", RequireAuthor(s.getEditorHandler))
	mux.HandleFunc("DELETE /editor/sessions/{id}", RequireAuthor(s.closeEditorHandler))
	mux.HandleFunc("POST /editor/sessions/{id}/pointer", RequireAuthor(s.editorPointerHandler))
	mux.HandleFunc("POST /editor/sessions/{id}/scroll", RequireAuthor(s.editorScrollHandler))
	mux.HandleFunc("POST /editor/sessions/{id}/key", RequireAuthor(s.editorKeyHandler))
	mux.HandleFunc("POST /editor/sessions/{id}/menu", RequireAuthor(s.editorMenuHandler))
	mux.HandleFunc("POST /editor/sessions/{id}/save", RequireAuthor(s.editorSaveHandler))

	mux.HandleFunc("GET /runs", RequireAnyRole(s.listRunsHandler))
	mux.HandleFunc("POST /runs", RequireAnyRole(s.startRunHandler))
	mux.HandleFunc("GET /runs/{id}", RequireAnyRole(s.getRunHandler))
	mux.HandleFunc("DELETE /runs/{id}", RequireAnyRole(s.stopRunHandler))
	mux.HandleFunc("POST /runs/{id}/ack", RequireAnyRole(s.ackRunHandler))
	return mux
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "actiongraph",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// readinessState tracks the dependencies /ready reports on.
type readinessState struct {
	mu                sync.RWMutex
	storeReady        bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

var readiness = &readinessState{mqttOptional: true, postgresOptional: true}

// SetStoreReady marks the scene store usable.
func SetStoreReady(ready bool) {
	readiness.mu.Lock()
	readiness.storeReady = ready
	readiness.mu.Unlock()
}

// SetMQTTState records the broker connection. Optional dependencies never block readiness.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
	readiness.mu.Unlock()
}

// SetPostgresState records the database connection.
func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
	readiness.mu.Unlock()
}

type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready  bool                   `json:"ready"`
	Checks map[string]CheckStatus `json:"checks"`
}

func dependencyStatus(connected, optional bool) CheckStatus {
	switch {
	case connected:
		return CheckStatus{Status: "ok", Optional: optional}
	case optional:
		return CheckStatus{Status: "unavailable", Optional: true}
	default:
		return CheckStatus{Status: "not_ready"}
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	resp := ReadinessResponse{
		Ready: readiness.storeReady &&
			(readiness.mqttConnected || readiness.mqttOptional) &&
			(readiness.postgresConnected || readiness.postgresOptional),
		Checks: map[string]CheckStatus{
			"store":    dependencyStatus(readiness.storeReady, false),
			"mqtt":     dependencyStatus(readiness.mqttConnected, readiness.mqttOptional),
			"postgres": dependencyStatus(readiness.postgresConnected, readiness.postgresOptional),
		},
	}
	readiness.mu.RUnlock()

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// eventsHandler returns the buffered events. ?session=<run id> returns that run's
// history instead, from the Postgres event log when one is configured.
func eventsHandler(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		writeJSON(w, http.StatusOK, events.Snapshot())
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	history, err := events.History(session, limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, Response{OK: false, Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20))
	return dec.Decode(v)
}

// ListenAndServe serves handler on the given port, over TLS when configured, until
// ctx is done. In-flight requests get a few seconds to finish.
func ListenAndServe(ctx context.Context, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	tlsCfg, err := LoadTLSConfig()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errc := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			log.Printf("API listening on %s (TLS)\n", srv.Addr)
			errc <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("API listening on %s\n", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// WatchDependencies refreshes the MQTT and Postgres readiness every interval until
// ctx is done. A nil check leaves that dependency's state alone.
func WatchDependencies(ctx context.Context, interval time.Duration, mqttUp func() bool, pgPing func(context.Context) error) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if mqttUp != nil {
				readiness.mu.Lock()
				readiness.mqttConnected = mqttUp()
				readiness.mu.Unlock()
			}
			if pgPing != nil {
				pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				up := pgPing(pingCtx) == nil
				cancel()
				readiness.mu.Lock()
				readiness.postgresConnected = up
				readiness.mu.Unlock()
			}
		}
	}()
}
