package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/ActionGraph/internal/events"
)

const (
	// Backfill sent to a new connection.
	recentEventsCount = 50

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Editors are served from other origins; access is gated by basic auth.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventStream writes one subscriber's events to a websocket peer.
type eventStream struct {
	conn *websocket.Conn
	sub  events.Subscriber
}

func (s *eventStream) send(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *eventStream) close() {
	events.Unsubscribe(s.sub)
	s.conn.Close()
}

// readPump consumes control frames until the peer goes away, then closes gone.
func (s *eventStream) readPump(gone chan<- struct{}) {
	defer close(gone)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsEventsHandler streams live events over a websocket after a short backfill.
// ?session=<run id> limits the stream to that run.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	stream := &eventStream{conn: conn, sub: events.SubscribeSession(session)}
	defer stream.close()

	for _, e := range events.RecentEvents(recentEventsCount, session) {
		if err := stream.send(e); err != nil {
			log.Printf("ws backfill failed: %v", err)
			return
		}
	}

	gone := make(chan struct{})
	go stream.readPump(gone)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case e, ok := <-stream.sub:
			if !ok {
				return
			}
			if err := stream.send(e); err != nil {
				log.Printf("ws write event failed: %v", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
