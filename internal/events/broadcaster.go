package events

import (
	"sync"
	"sync/atomic"
)

// Subscriber receives live events. Close it with Unsubscribe.
type Subscriber chan Event

const subscriberBuffer = 64

// hub fans events out to live subscribers. Each subscriber may be scoped to one run.
type hub struct {
	mu      sync.RWMutex
	scopes  map[Subscriber]string
	dropped atomic.Uint64
}

var live = &hub{scopes: make(map[Subscriber]string)}

// InSession reports whether e belongs to the run session, or to no run at all.
// An empty session matches everything.
func InSession(e Event, session string) bool {
	return session == "" || e.SessionID == "" || e.SessionID == session
}

// Subscribe returns a subscriber that receives every event.
func Subscribe() Subscriber {
	return SubscribeSession("")
}

// SubscribeSession returns a subscriber that only receives events of one run plus
// events emitted outside any run.
func SubscribeSession(session string) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	live.mu.Lock()
	live.scopes[ch] = session
	live.mu.Unlock()
	return ch
}

// Unsubscribe closes sub. Unknown or already closed subscribers are ignored.
func Unsubscribe(sub Subscriber) {
	live.mu.Lock()
	defer live.mu.Unlock()
	if _, ok := live.scopes[sub]; !ok {
		return
	}
	delete(live.scopes, sub)
	close(sub)
}

// broadcast never blocks Emit: a subscriber whose buffer is full misses the event.
func broadcast(e Event) {
	live.mu.RLock()
	defer live.mu.RUnlock()

	for sub, session := range live.scopes {
		if !InSession(e, session) {
			continue
		}
		select {
		case sub <- e:
		default:
			live.dropped.Add(1)
		}
	}
}

// CloseAllSubscribers closes every subscriber. Used on shutdown.
func CloseAllSubscribers() {
	live.mu.Lock()
	defer live.mu.Unlock()
	for sub := range live.scopes {
		close(sub)
		delete(live.scopes, sub)
	}
}

func SubscriberCount() int {
	live.mu.RLock()
	defer live.mu.RUnlock()
	return len(live.scopes)
}

// Dropped is the number of deliveries skipped because a subscriber fell behind.
func Dropped() uint64 {
	return live.dropped.Load()
}

// RecentEvents returns up to n of the newest buffered events of a session, oldest
// first. n <= 0 returns all of them.
func RecentEvents(n int, session string) []Event {
	return buffer.Last(n, func(e Event) bool { return InSession(e, session) })
}
