package events

import (
	"time"

	"github.com/AaronLay10/ActionGraph/internal/storage/postgres"
)

// History returns up to limit of a run's most recent events, oldest first. With a
// Postgres client it reads the event log, which reaches past the ring buffer;
// otherwise it filters the buffer. limit <= 0 means no limit for the buffer.
func History(sessionID string, limit int) ([]Event, error) {
	if client := GetPostgresClient(); client != nil {
		rows, err := client.QuerySession(sessionID, limit)
		if err != nil {
			return nil, err
		}
		// Rows come newest first.
		out := make([]Event, 0, len(rows))
		for i := len(rows) - 1; i >= 0; i-- {
			out = append(out, fromRow(rows[i]))
		}
		return out, nil
	}

	return buffer.Last(limit, func(e Event) bool { return e.SessionID == sessionID }), nil
}

func fromRow(r postgres.EventRow) Event {
	e := Event{
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
		Level:     r.Level,
		Name:      r.Event,
		Fields:    r.Fields,
	}
	if r.Message != nil {
		e.Message = *r.Message
	}
	if r.SessionID != nil {
		e.SessionID = *r.SessionID
	}
	return e
}
