// Package eventloop provides a minimal single-goroutine event loop
// implementing the h3mux.EventLoop interface: a timer queue plus a job
// channel for work posted from other goroutines (socket readiness, for
// one).
package eventloop

import (
	"container/heap"
	"time"

	"github.com/h3mux/h3mux"
)

type timerEntry struct {
	timer *h3mux.Timer
	at    time.Time
	index int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// A Loop runs timers and posted jobs on a single goroutine. Everything an
// h3mux.Context does happens inside Run; other goroutines hand work in
// through Post.
type Loop struct {
	jobs    chan func()
	closing chan struct{}
	done    chan struct{}

	// loop-goroutine state
	timers  timerHeap
	entries map[*h3mux.Timer]*timerEntry
}

var _ h3mux.EventLoop = &Loop{}

// New returns a loop ready to Run.
func New() *Loop {
	return &Loop{
		jobs:    make(chan func(), 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		entries: make(map[*h3mux.Timer]*timerEntry),
	}
}

// Now returns the loop's monotonic clock reading.
func (l *Loop) Now() time.Time { return time.Now() }

// LinkTimer arms t to fire after delay. Loop-goroutine only.
func (l *Loop) LinkTimer(t *h3mux.Timer, delay time.Duration) {
	e := &timerEntry{timer: t, at: time.Now().Add(delay)}
	l.entries[t] = e
	heap.Push(&l.timers, e)
}

// UnlinkTimer disarms t. Loop-goroutine only.
func (l *Loop) UnlinkTimer(t *h3mux.Timer) {
	e, ok := l.entries[t]
	if !ok {
		return
	}
	delete(l.entries, t)
	heap.Remove(&l.timers, e.index)
}

// Post hands a job to the loop goroutine. Safe from any goroutine; blocks
// while the job channel is full.
func (l *Loop) Post(job func()) {
	select {
	case l.jobs <- job:
	case <-l.closing:
	}
}

// Run processes jobs and timers until Close is called.
func (l *Loop) Run() {
	defer close(l.done)
	idle := time.NewTimer(time.Hour)
	defer idle.Stop()
	for {
		var wakeup <-chan time.Time
		if len(l.timers) > 0 {
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(time.Until(l.timers[0].at))
			wakeup = idle.C
		}

		select {
		case <-l.closing:
			return
		case job := <-l.jobs:
			job()
		case <-wakeup:
		}

		l.fireDueTimers()
	}
}

func (l *Loop) fireDueTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].at.After(now) {
		e := heap.Pop(&l.timers).(*timerEntry)
		delete(l.entries, e.timer)
		e.timer.Fire()
	}
}

// Close stops the loop and waits for Run to return.
func (l *Loop) Close() {
	close(l.closing)
	<-l.done
}
