package api

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/AaronLay10/ActionGraph/internal/engine"
	"github.com/AaronLay10/ActionGraph/internal/events"
	"github.com/AaronLay10/ActionGraph/internal/version"
)

var metricsState = &MetricsState{}

// MetricsState holds process-wide values for the /metrics endpoint.
type MetricsState struct {
	mu          sync.RWMutex
	startTime   time.Time
	projectName string
}

// InitMetrics records the process start time. Call at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
}

// SetProjectName sets the project label used by metrics and alerts.
func SetProjectName(name string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.projectName = name
}

func GetProjectName() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.projectName
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	metricsState.mu.RLock()
	startTime := metricsState.startTime
	project := metricsState.projectName
	metricsState.mu.RUnlock()

	readiness.mu.RLock()
	mqttConnected := boolGauge(readiness.mqttConnected)
	postgresConnected := boolGauge(readiness.postgresConnected)
	readiness.mu.RUnlock()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}
	labels := fmt.Sprintf(`project="%s",instance="%s",version="%s"`, project, hostname, version.Version)

	writeMetric("actiongraph_uptime_seconds", "gauge",
		"Number of seconds since the server started", time.Since(startTime).Seconds(), labels)
	writeMetric("actiongraph_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount(), labels)
	writeMetric("actiongraph_ws_clients", "gauge",
		"Number of active WebSocket client connections", events.SubscriberCount(), labels)
	writeMetric("actiongraph_events_dropped_total", "counter",
		"Live event deliveries skipped because a subscriber fell behind", events.Dropped(), labels)
	writeMetric("actiongraph_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", mqttConnected, labels)
	writeMetric("actiongraph_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", postgresConnected, labels)
	writeMetric("actiongraph_editor_sessions", "gauge",
		"Number of open editor sessions", s.editors.Len(), labels)

	counts := s.runs.Counts()
	states := make([]string, 0, len(counts))
	for st := range counts {
		states = append(states, string(st))
	}
	sort.Strings(states)
	fmt.Fprintf(w, "# HELP actiongraph_runs Number of scene runs by state\n")
	fmt.Fprintf(w, "# TYPE actiongraph_runs gauge\n")
	for _, st := range states {
		fmt.Fprintf(w, "actiongraph_runs{%s,state=\"%s\"} %d\n", labels, st, counts[engine.RunState(st)])
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
