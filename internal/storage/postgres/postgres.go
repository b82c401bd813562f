package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/ActionGraph/internal/config"
)

// ErrNoScene is returned by GetScene when no row matches.
var ErrNoScene = errors.New("scene not found")

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	ProjectID string                 `json:"project_id"`
	SessionID *string                `json:"session_id,omitempty"`
}

// SceneRow is a stored scene document.
type SceneRow struct {
	SceneID   string
	Document  []byte
	UpdatedAt time.Time
}

// Client manages the Postgres connection for event and scene storage.
type Client struct {
	db        *sql.DB
	projectID string

	mu          sync.Mutex
	errorLogged bool
}

// New creates a new Postgres client using environment variables.
// PGPASSWORD may also be supplied through PGPASSWORD_FILE.
func New(projectID string) (*Client, error) {
	host := config.EnvOr("PGHOST", "127.0.0.1")
	port := config.EnvOr("PGPORT", "5432")
	user := config.EnvOr("PGUSER", "actiongraph")
	dbname := config.EnvOr("PGDATABASE", "actiongraph")
	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		return nil, err
	}

	var connStr string
	if password != "" {
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	} else {
		connStr = fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
			host, port, user, dbname)
	}

	return Open(connStr, projectID)
}

// Open connects with an explicit connection string and creates the tables.
func Open(connStr, projectID string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:        db,
		projectID: projectID,
	}

	if err := client.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}


func (c *Client) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			project_id TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_project_id ON events(project_id);
		CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id);

		CREATE TABLE IF NOT EXISTS scenes (
			project_id TEXT NOT NULL,
			scene_id   TEXT NOT NULL,
			document   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (project_id, scene_id)
		);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts an event into the database.
// Returns error if insert fails.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var sessionPtr *string
	if sessionID != "" {
		sessionPtr = &sessionID
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, project_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.projectID, sessionPtr)
	return err
}

// Query returns the last N events from the database in descending order by timestamp.
func (c *Client) Query(limit int) ([]EventRow, error) {
	return c.query(`
		SELECT event_id, ts, level, event, msg, fields, project_id, session_id
		FROM events
		WHERE project_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`, clampLimit(limit), c.projectID)
}

// QuerySession returns the last N events of one run in descending order by timestamp.
func (c *Client) QuerySession(sessionID string, limit int) ([]EventRow, error) {
	return c.query(`
		SELECT event_id, ts, level, event, msg, fields, project_id, session_id
		FROM events
		WHERE project_id = $1 AND session_id = $3
		ORDER BY ts DESC
		LIMIT $2
	`, clampLimit(limit), c.projectID, sessionID)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

func (c *Client) query(query string, limit int, projectID string, extra ...interface{}) ([]EventRow, error) {
	args := append([]interface{}{projectID, limit}, extra...)
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.ProjectID, &sessionID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// PutScene inserts or replaces a scene document.
func (c *Client) PutScene(ctx context.Context, sceneID string, document []byte) error {
	query := `
		INSERT INTO scenes (project_id, scene_id, document, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (project_id, scene_id)
		DO UPDATE SET document = EXCLUDED.document, updated_at = now()
	`
	_, err := c.db.ExecContext(ctx, query, c.projectID, sceneID, document)
	return err
}

// GetScene returns a scene document, or ErrNoScene.
func (c *Client) GetScene(ctx context.Context, sceneID string) (*SceneRow, error) {
	query := `
		SELECT scene_id, document, updated_at
		FROM scenes
		WHERE project_id = $1 AND scene_id = $2
	`
	var row SceneRow
	err := c.db.QueryRowContext(ctx, query, c.projectID, sceneID).Scan(&row.SceneID, &row.Document, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoScene
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListScenes returns the stored scene IDs in name order.
func (c *Client) ListScenes(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT scene_id FROM scenes WHERE project_id = $1 ORDER BY scene_id`, c.projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteScene removes a scene. It returns ErrNoScene when nothing was deleted.
func (c *Client) DeleteScene(ctx context.Context, sceneID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM scenes WHERE project_id = $1 AND scene_id = $2`, c.projectID, sceneID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoScene
	}
	return nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// MarkErrorLogged marks that an error has been logged (to avoid spam).
func (c *Client) MarkErrorLogged() {
	c.mu.Lock()
	c.errorLogged = true
	c.mu.Unlock()
}

// HasLoggedError returns true if an error has been logged.
func (c *Client) HasLoggedError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorLogged
}
