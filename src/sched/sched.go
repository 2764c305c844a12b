// Package sched tracks live threads and provides the counting semaphore
// used throughout process lifecycle (the load/wait/exit handshakes).
// Threads are goroutines; this package is the adaptation of
// biscuit/src/tinfo's Tnote_t/Threadinfo_t into that model.
// tinfo.Current/SetCurrent relied on runtime.Gptr/Setgptr, hooks that
// biscuit's own forked Go runtime exposes for implicit per-goroutine
// storage; standard Go has no portable equivalent, so here every
// operation that needs "the calling thread's note" takes a *Thread
// parameter explicitly instead of fetching it from hidden state.
package sched

import (
	"sync"

	"defs"
)

/// Thread is one schedulable unit of execution: a goroutine plus the
/// bookkeeping process lifecycle needs to kill it cooperatively, the
/// equivalent of tinfo.Tnote_t.
type Thread struct {
	Tid defs.Tid_t

	mu       sync.Mutex
	State    interface{}
	Alive    bool
	Killed   bool
	Isdoomed bool

	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
}

/// Doomed reports whether the thread has been marked for termination.
func (t *Thread) Doomed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Isdoomed
}

/// Doom marks the thread doomed with err, waking anything blocked on its
/// Killnaps handshake, the equivalent of setting Isdoomed/Kerr directly on
/// a Tnote_t before signaling it.
func (t *Thread) Doom(err defs.Err_t) {
	t.mu.Lock()
	t.Isdoomed = true
	t.Killed = true
	t.Killnaps.Kerr = err
	t.mu.Unlock()
	select {
	case t.Killnaps.Killch <- true:
	default:
	}
	if t.Killnaps.Cond != nil {
		t.Killnaps.Cond.Broadcast()
	}
}

/// Sched_t is the live-thread registry, the equivalent of
/// tinfo.Threadinfo_t.
type Sched_t struct {
	mu      sync.Mutex
	threads map[defs.Tid_t]*Thread
	next    defs.Tid_t
}

/// New creates an empty thread registry with tids starting at 1 (0 is
/// never a valid tid).
func New() *Sched_t {
	return &Sched_t{threads: make(map[defs.Tid_t]*Thread), next: 1}
}

/// Spawn allocates a tid, registers a Thread for it, and runs fn on a
/// fresh goroutine with that Thread, removing it from the registry when
/// fn returns.
func (s *Sched_t) Spawn(fn func(*Thread)) *Thread {
	s.mu.Lock()
	tid := s.next
	s.next++
	th := &Thread{Tid: tid, Alive: true}
	th.Killnaps.Killch = make(chan bool, 1)
	th.Killnaps.Cond = sync.NewCond(&th.mu)
	s.threads[tid] = th
	s.mu.Unlock()

	go func() {
		fn(th)
		th.mu.Lock()
		th.Alive = false
		th.mu.Unlock()
		s.mu.Lock()
		delete(s.threads, tid)
		s.mu.Unlock()
	}()
	return th
}

/// Lookup finds the Thread for tid, if it is still live.
func (s *Sched_t) Lookup(tid defs.Tid_t) (*Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[tid]
	return th, ok
}

/// Sema_t is a channel-based counting semaphore, the equivalent of the
/// reference kernel's struct semaphore (sema_init/sema_down/sema_up), used
/// for the process lifecycle's load_sema/wait_sema/exit_sema handshakes.
type Sema_t struct {
	ch chan struct{}
}

/// NewSema creates a semaphore with initial count n.
func NewSema(n int) *Sema_t {
	s := &Sema_t{ch: make(chan struct{}, 4096)}
	for i := 0; i < n; i++ {
		s.ch <- struct{}{}
	}
	return s
}

/// Down blocks until a token is available, the equivalent of sema_down.
func (s *Sema_t) Down() {
	<-s.ch
}

/// Up releases a token, the equivalent of sema_up.
func (s *Sema_t) Up() {
	s.ch <- struct{}{}
}
