package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertEventRunFailed      = "run_failed"
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Project   string                 `json:"project"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

var (
	alertMu         sync.Mutex
	alertWebhookURL string
	alertPost       = postWebhook

	mqttWatch     = &connWatch{event: AlertMQTTDisconnected, severity: SeverityWarning, what: "MQTT broker", delay: 30 * time.Second}
	postgresWatch = &connWatch{event: AlertPostgresUnavailable, severity: SeverityCritical, what: "PostgreSQL", delay: 5 * time.Second}
)

// InitAlerts reads ACTIONGRAPH_ALERT_WEBHOOK_URL and the optional
// ACTIONGRAPH_MQTT_ALERT_DELAY / ACTIONGRAPH_POSTGRES_ALERT_DELAY durations.
func InitAlerts() {
	alertMu.Lock()
	alertWebhookURL = os.Getenv("ACTIONGRAPH_ALERT_WEBHOOK_URL")
	url := alertWebhookURL
	alertMu.Unlock()

	mqttWatch.setDelay(os.Getenv("ACTIONGRAPH_MQTT_ALERT_DELAY"))
	postgresWatch.setDelay(os.Getenv("ACTIONGRAPH_POSTGRES_ALERT_DELAY"))

	if url != "" {
		log.Printf("Alerts enabled: webhook URL configured (mqtt_delay=%s, pg_delay=%s)",
			mqttWatch.delay, postgresWatch.delay)
	}
}

// SendAlert posts an alert to the webhook without blocking, or logs it when no webhook is set.
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	url := alertWebhookURL
	post := alertPost
	alertMu.Unlock()

	if url == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", event, severity, message, details)
		return
	}

	project := GetProjectName()
	if project == "" {
		project = "unknown"
	}
	payload := AlertPayload{
		Project:   project,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}
	go post(url, payload)
}

// AlertRunFailed reports a run halted by a fatal error.
func AlertRunFailed(runID, sceneID string, err error) {
	SendAlert(AlertEventRunFailed, SeverityCritical, "scene run halted", map[string]interface{}{
		"run_id":   runID,
		"scene_id": sceneID,
		"error":    err.Error(),
	})
}

func postWebhook(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alert: failed to marshal payload: %v", err)
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

// connWatch raises an alert once a dependency has been down for delay, and a recovery
// notice when it comes back after that alert.
type connWatch struct {
	event    string
	severity string
	what     string

	mu        sync.Mutex
	delay     time.Duration
	downSince time.Time
	alerted   bool
}

func (c *connWatch) setDelay(s string) {
	if s == "" {
		return
	}
	if d, err := time.ParseDuration(s); err == nil {
		c.mu.Lock()
		c.delay = d
		c.mu.Unlock()
	}
}

// check records the current state and returns whether an alert was raised.
func (c *connWatch) check(connected bool, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if connected {
		if c.alerted {
			SendAlert(c.event, SeverityInfo, c.what+" connection restored", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		c.downSince = time.Time{}
		c.alerted = false
		return false
	}

	if c.downSince.IsZero() {
		c.downSince = now
	}
	down := now.Sub(c.downSince)
	if c.alerted || down < c.delay {
		return false
	}
	c.alerted = true
	SendAlert(c.event, c.severity, c.what+" unavailable", map[string]interface{}{
		"disconnected_since":   c.downSince.UTC().Format(time.RFC3339),
		"disconnected_seconds": int(down.Seconds()),
	})
	return true
}

// CheckAndAlertMQTT should be called periodically with the broker connection state.
func CheckAndAlertMQTT(connected bool) bool {
	return mqttWatch.check(connected, time.Now())
}

// CheckAndAlertPostgres should be called periodically with the database state.
func CheckAndAlertPostgres(connected bool) bool {
	return postgresWatch.check(connected, time.Now())
}

// StartAlertMonitor checks the readiness state every interval until stop is closed.
func StartAlertMonitor(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				readiness.mu.RLock()
				mqttConnected := readiness.mqttConnected || readiness.mqttOptional
				postgresConnected := readiness.postgresConnected || readiness.postgresOptional
				readiness.mu.RUnlock()

				CheckAndAlertMQTT(mqttConnected)
				CheckAndAlertPostgres(postgresConnected)
			}
		}
	}()
}
