package reactor_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/canonical/landscape-client-sub002/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runFor(t *testing.T, r *reactor.Reactor, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	_ = r.Run(ctx)
}

func TestCallLaterFiresOnce(t *testing.T) {
	r := reactor.New(nil)
	var n int32
	r.CallLater(10*time.Millisecond, func(args ...any) { atomic.AddInt32(&n, 1) })
	runFor(t, r, 100*time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&n))
}

func TestCallEveryRepeats(t *testing.T) {
	r := reactor.New(nil)
	var n int32
	r.CallEvery(10*time.Millisecond, func(args ...any) { atomic.AddInt32(&n, 1) })
	runFor(t, r, 55*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&n), int32(3))
}

func TestCancelCallPreventsFiring(t *testing.T) {
	r := reactor.New(nil)
	var n int32
	id := r.CallLater(10*time.Millisecond, func(args ...any) { atomic.AddInt32(&n, 1) })
	r.CancelCall(id)
	runFor(t, r, 50*time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&n))
}

func TestFireOrdersByPriorityThenRegistration(t *testing.T) {
	r := reactor.New(nil)
	var order []string
	var mu sync.Mutex
	record := func(name string) reactor.Handler {
		return func(args ...any) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}
	r.CallOn("x", record("low-prio-first"), 5)
	r.CallOn("x", record("low-prio-second"), 5)
	r.CallOn("x", record("high-prio"), 0)

	r.Fire("x")
	assert.Equal(t, []string{"high-prio", "low-prio-first", "low-prio-second"}, order)
}

func TestFireContinuesAfterHandlerPanic(t *testing.T) {
	r := reactor.New(nil)
	var ran bool
	r.CallOn("x", func(args ...any) (any, error) { panic("boom") }, 0)
	r.CallOn("x", func(args ...any) (any, error) { ran = true; return nil, nil }, 1)
	r.Fire("x")
	assert.True(t, ran)
}

func TestCallInThreadMarshalsResultToMain(t *testing.T) {
	r := reactor.New(nil)
	done := make(chan string, 1)
	r.CallInThread(
		func(args ...any) (any, error) { return "ok", nil },
		func(result any) { done <- result.(string) },
		func(err error) { done <- "error" },
	)
	runFor(t, r, 100*time.Millisecond)
	select {
	case v := <-done:
		assert.Equal(t, "ok", v)
	default:
		t.Fatal("callback never ran")
	}
}

func TestCallInMainRunsOnNextTurn(t *testing.T) {
	r := reactor.New(nil)
	var ran bool
	r.CallInMain(func(args ...any) { ran = true })
	runFor(t, r, 20*time.Millisecond)
	assert.True(t, ran)
}
