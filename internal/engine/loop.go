package engine

import (
	"context"
	"sync"
	"time"
)

// Host is the scheduling environment an engine runs in.
type Host interface {
	// OnTick registers fn to be called once per tick with the elapsed time.
	// The returned cancel func removes the subscription; calling it twice is harmless.
	OnTick(fn func(dt time.Duration)) (cancel func())
	// OnNextTick schedules fn to run once at the start of the next tick.
	OnNextTick(fn func())
}

type subscription struct {
	fn        func(dt time.Duration)
	cancelled bool
}

// Loop is a single-threaded Host driven by explicit Tick calls.
// It is not safe for concurrent use.
type Loop struct {
	queue []func()
	subs  []*subscription
	ticks uint64
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{}
}

// OnNextTick queues fn for the next Tick.
func (l *Loop) OnNextTick(fn func()) {
	l.queue = append(l.queue, fn)
}

// OnTick subscribes fn to every subsequent Tick.
func (l *Loop) OnTick(fn func(dt time.Duration)) func() {
	s := &subscription{fn: fn}
	l.subs = append(l.subs, s)
	return func() { s.cancelled = true }
}

// Tick drains the deferred queue as it stood when the tick began, then advances subscribers.
// Work deferred while draining runs on the following tick.
func (l *Loop) Tick(dt time.Duration) {
	l.ticks++

	queue := l.queue
	l.queue = nil
	for _, fn := range queue {
		fn()
	}

	subs := l.subs
	for _, s := range subs {
		if !s.cancelled {
			s.fn(dt)
		}
	}

	live := l.subs[:0]
	for _, s := range l.subs {
		if !s.cancelled {
			live = append(live, s)
		}
	}
	for i := len(live); i < len(l.subs); i++ {
		l.subs[i] = nil
	}
	l.subs = live
}

// Pending returns the number of queued deferred callbacks.
func (l *Loop) Pending() int {
	return len(l.queue)
}

// Subscribers returns the number of live tick subscriptions.
func (l *Loop) Subscribers() int {
	n := 0
	for _, s := range l.subs {
		if !s.cancelled {
			n++
		}
	}
	return n
}

// Idle reports whether the loop has nothing left to do.
func (l *Loop) Idle() bool {
	return l.Pending() == 0 && l.Subscribers() == 0
}

// Ticks returns how many times Tick has been called.
func (l *Loop) Ticks() uint64 {
	return l.ticks
}

// Reset discards queued callbacks and subscriptions.
func (l *Loop) Reset() {
	for _, s := range l.subs {
		s.cancelled = true
	}
	l.queue = nil
	l.subs = nil
}

// Interval returns the tick period for a rate in ticks per second. Rates below one
// tick per second run at one.
func Interval(rate int) time.Duration {
	if rate < 1 {
		rate = 1
	}
	return time.Second / time.Duration(rate)
}

// Drive ticks l at a fixed rate with the measured elapsed time until ctx is done
// or done reports true after a tick. When mu is non-nil it is held around each
// tick so other goroutines can touch the run between ticks.
func Drive(ctx context.Context, l *Loop, rate int, mu sync.Locker, done func() bool) {
	t := time.NewTicker(Interval(rate))
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if mu != nil {
				mu.Lock()
			}
			l.Tick(now.Sub(last))
			finished := done != nil && done()
			if mu != nil {
				mu.Unlock()
			}
			last = now
			if finished {
				return
			}
		}
	}
}
