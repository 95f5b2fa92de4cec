package reactor

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/canonical/landscape-client-sub002/errors"
	"github.com/canonical/landscape-client-sub002/log"
	"golang.org/x/sync/errgroup"
)

var errHandlerPanic = errors.New("reactor: event handler panicked")

// Reactor is the single-threaded cooperative dispatcher of spec §4.8.
// Exactly one goroutine should ever call Run; every other method is safe to
// call from any goroutine (in particular, from a worker spawned by
// CallInThread marshaling its result back).
type Reactor struct {
	mu sync.Mutex

	timers timerHeap
	byID   map[int]*timerEntry

	handlers     map[string][]*handlerEntry
	handlersByID map[int]*handlerEntry
	nextID       int
	nextSeq      int

	mainQueue chan func()
	wakeCh    chan struct{}

	workers *errgroup.Group
	stopped chan struct{}
	once    sync.Once

	log   log.Logger
	clock func() time.Time
}

// New returns a Reactor ready to Run.
func New(logger log.Logger) *Reactor {
	if logger == nil {
		logger = log.Discard()
	}
	return &Reactor{
		byID:         make(map[int]*timerEntry),
		handlers:     make(map[string][]*handlerEntry),
		handlersByID: make(map[int]*handlerEntry),
		mainQueue:    make(chan func(), 64),
		wakeCh:       make(chan struct{}, 1),
		workers:      &errgroup.Group{},
		stopped:      make(chan struct{}),
		log:          logger.Sub(log.Fields{"component": "reactor"}),
	}
}

func (r *Reactor) wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// CallInMain enqueues fn for execution at the next reactor turn. Safe to
// call from any goroutine, in particular a worker started by CallInThread.
func (r *Reactor) CallInMain(fn func(args ...any), args ...any) {
	r.mainQueue <- func() { fn(args...) }
	r.wake()
}

// CallInThread runs fn(args...) on a worker goroutine and marshals its
// result back onto the reactor thread before invoking callback (on
// success) or errback (on failure). No plugin code ever runs on the
// worker goroutine itself — only fn does; callback/errback always run via
// CallInMain.
func (r *Reactor) CallInThread(
	fn func(args ...any) (any, error),
	callback func(result any),
	errback func(err error),
	args ...any,
) {
	r.workers.Go(func() error {
		result, err := fn(args...)
		select {
		case <-r.stopped:
			return nil // discard: reactor already stopped
		default:
		}
		if err != nil {
			if errback != nil {
				r.CallInMain(func(a ...any) { errback(err) })
			}
			return nil
		}
		if callback != nil {
			r.CallInMain(func(a ...any) { callback(result) })
		}
		return nil
	})
}

// Run executes the reactor loop until ctx is cancelled or Stop is called.
// On each turn it: runs every timer due to fire, drains the call_in_main
// queue, then sleeps until the next timer or a wake-up signal.
func (r *Reactor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.haltWorkers()
			return ctx.Err()
		case <-r.stopped:
			r.haltWorkers()
			return nil
		default:
		}

		r.runDueTimers()
		r.drainMainQueue()

		wait := r.nextTimerDelay()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.haltWorkers()
			return ctx.Err()
		case <-r.stopped:
			timer.Stop()
			r.haltWorkers()
			return nil
		case <-r.wakeCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Stop cancels all pending timers and marks the reactor stopped: an
// in-flight CallInThread worker is allowed to finish, but its result is
// discarded rather than marshaled back.
func (r *Reactor) Stop() {
	r.once.Do(func() { close(r.stopped) })
}

func (r *Reactor) haltWorkers() {
	_ = r.workers.Wait()
}

func (r *Reactor) runDueTimers() {
	now := r.now()
	for {
		r.mu.Lock()
		if len(r.timers) == 0 || r.timers[0].fireAt.After(now) {
			r.mu.Unlock()
			return
		}
		e := heap.Pop(&r.timers).(*timerEntry)
		delete(r.byID, e.id)
		cancelled := e.cancelled
		if !cancelled && e.interval > 0 {
			e.fireAt = now.Add(e.interval)
			heap.Push(&r.timers, e)
			r.byID[e.id] = e
		}
		r.mu.Unlock()

		if !cancelled {
			r.invokeTimer(e)
		}
	}
}

func (r *Reactor) invokeTimer(e *timerEntry) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("timer callback panicked: %v", p)
		}
	}()
	e.fn(e.args...)
}

func (r *Reactor) drainMainQueue() {
	for {
		select {
		case fn := <-r.mainQueue:
			r.invokeMain(fn)
		default:
			return
		}
	}
}

func (r *Reactor) invokeMain(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("call_in_main callback panicked: %v", p)
		}
	}()
	fn()
}

func (r *Reactor) nextTimerDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.timers) == 0 {
		return time.Second
	}
	d := r.timers[0].fireAt.Sub(r.now())
	if d < 0 {
		return 0
	}
	return d
}
