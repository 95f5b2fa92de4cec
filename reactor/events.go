package reactor

import "sort"

// Handler is an event listener. It may return a value (collected by Fire)
// and/or an error; an error is logged but never aborts the fire.
type Handler func(args ...any) (any, error)

type handlerEntry struct {
	id        int
	priority  int
	seq       int // registration order, for same-priority tie-break
	name      string
	fn        Handler
	cancelled bool
}

// CallOn registers fn to run whenever event is fired. Handlers at the same
// priority run in registration order; lower priority numbers run first.
func (r *Reactor) CallOn(event string, fn Handler, priority int) int {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	e := &handlerEntry{id: id, priority: priority, seq: r.nextSeq, name: event, fn: fn}
	r.nextSeq++
	r.handlers[event] = append(r.handlers[event], e)
	r.handlersByID[id] = e
	r.mu.Unlock()
	return id
}

// Fire synchronously invokes every live handler registered for event, in
// priority order (ties broken by registration order), and returns their
// non-error return values. A handler panic is recovered, logged, and does
// not prevent subsequent handlers of the same event from running.
func (r *Reactor) Fire(event string, args ...any) []any {
	r.mu.Lock()
	entries := append([]*handlerEntry(nil), r.handlers[event]...)
	r.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].seq < entries[j].seq
	})

	var results []any
	for _, e := range entries {
		if e.cancelled {
			continue
		}
		v, err := r.invoke(e, args)
		if err != nil {
			r.log.Warningf("event %q handler failed: %v", event, err)
			continue
		}
		results = append(results, v)
	}
	return results
}

func (r *Reactor) invoke(e *handlerEntry, args []any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("event %q handler panicked: %v", e.name, p)
			err = errHandlerPanic
		}
	}()
	return e.fn(args...)
}
