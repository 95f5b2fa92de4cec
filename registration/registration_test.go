package registration_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/canonical/landscape-client-sub002/identity"
	"github.com/canonical/landscape-client-sub002/log"
	"github.com/canonical/landscape-client-sub002/persist"
	"github.com/canonical/landscape-client-sub002/reactor"
	"github.com/canonical/landscape-client-sub002/registration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchanger struct {
	sent      []map[string]any
	scheduled []bool
}

func (f *fakeExchanger) Send(message map[string]any, urgent bool) (int64, error) {
	f.sent = append(f.sent, message)
	return int64(len(f.sent)), nil
}

func (f *fakeExchanger) ScheduleExchange(urgent, force bool) {
	f.scheduled = append(f.scheduled, urgent)
}

type fakeStore struct {
	accepted map[string]bool
	cleared  bool
}

func newFakeStore(types ...string) *fakeStore {
	s := &fakeStore{accepted: map[string]bool{}}
	for _, t := range types {
		s.accepted[t] = true
	}
	return s
}

func (f *fakeStore) Accepts(msgType string) bool { return f.accepted[msgType] }
func (f *fakeStore) DeleteAllMessages() error {
	f.cleared = true
	return nil
}

type fakeMetrics struct {
	attempts []bool
}

func (f *fakeMetrics) RegistrationAttempt(success bool) {
	f.attempts = append(f.attempts, success)
}

func newHarness(t *testing.T, accepted ...string) (*identity.Identity, *reactor.Reactor, *fakeExchanger, *fakeStore) {
	t.Helper()
	tree := persist.New(filepath.Join(t.TempDir(), "broker.tree"), nil)
	id := identity.New(tree.RootAt("identity"), identity.Config{
		ComputerTitle: "rex",
		AccountName:   "acct",
	})
	r := reactor.New(log.Discard())
	ex := &fakeExchanger{}
	st := newFakeStore(accepted...)
	return id, r, ex, st
}

func hostnameStub() (string, error) { return "rex.example.com", nil }

func TestShouldRegisterGating(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	h := registration.New(id, r, ex, st, nil, hostnameStub, nil, "", log.Discard())
	assert.True(t, h.ShouldRegister())

	id.SetIDs("secure-1", "insecure-1")
	assert.False(t, h.ShouldRegister())
}

func TestShouldRegisterFalseWhenRegisterNotAccepted(t *testing.T) {
	id, r, ex, st := newHarness(t)
	h := registration.New(id, r, ex, st, nil, hostnameStub, nil, "", log.Discard())
	_ = ex
	assert.False(t, h.ShouldRegister())
}

func TestPreExchangeQueuesRegisterMessage(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	_ = id
	registration.New(id, r, ex, st, nil, hostnameStub, []string{"web", "prod-1"}, "", log.Discard())

	r.Fire("pre-exchange")

	require.Len(t, ex.sent, 1)
	msg := ex.sent[0]
	assert.Equal(t, "register", msg["type"])
	assert.Equal(t, "rex", msg["computer_title"])
	assert.Equal(t, "acct", msg["account_name"])
	assert.Equal(t, "rex.example.com", msg["hostname"])
	assert.Equal(t, []any{"web", "prod-1"}, msg["tags"])
	assert.True(t, st.cleared)
}

func TestPreExchangeDropsInvalidTags(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	registration.New(id, r, ex, st, nil, hostnameStub, []string{"ok", "not valid!"}, "", log.Discard())

	r.Fire("pre-exchange")

	require.Len(t, ex.sent, 1)
	assert.Nil(t, ex.sent[0]["tags"])
}

func TestPreExchangeSkippedWhenAlreadyRegistered(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	id.SetIDs("secure-1", "insecure-1")
	registration.New(id, r, ex, st, nil, hostnameStub, nil, "", log.Discard())

	r.Fire("pre-exchange")

	assert.Empty(t, ex.sent)
}

func TestHandleSetIDFiresRegistrationDoneAndResynchronize(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	registration.New(id, r, ex, st, nil, hostnameStub, nil, "", log.Discard())

	var doneFired, resyncFired bool
	r.CallOn("registration-done", func(args ...any) (any, error) {
		doneFired = true
		return nil, nil
	}, 0)
	r.CallOn("resynchronize-clients", func(args ...any) (any, error) {
		resyncFired = true
		return nil, nil
	}, 0)

	r.Fire("message", map[string]any{
		"type":        "set-id",
		"id":          "secure-9",
		"insecure-id": "insecure-9",
	})

	assert.True(t, doneFired)
	assert.True(t, resyncFired)
	assert.Equal(t, "secure-9", id.SecureID())
	assert.Equal(t, "insecure-9", id.InsecureID())
}

func TestHandleUnknownIDClearsIdentity(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	registration.New(id, r, ex, st, nil, hostnameStub, nil, "", log.Discard())
	id.SetIDs("secure-1", "insecure-1")

	r.Fire("message", map[string]any{"type": "unknown-id"})

	assert.False(t, id.Registered())
}

func TestHandleRegistrationFiresFailedOnUnknownAccount(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	registration.New(id, r, ex, st, nil, hostnameStub, nil, "", log.Discard())

	var failed bool
	r.CallOn("registration-failed", func(args ...any) (any, error) {
		failed = true
		return nil, nil
	}, 0)

	r.Fire("message", map[string]any{"type": "registration", "info": "unknown-account"})

	assert.True(t, failed)
}

func TestHandleRegistrationIgnoresOtherInfo(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	registration.New(id, r, ex, st, nil, hostnameStub, nil, "", log.Discard())

	var failed bool
	r.CallOn("registration-failed", func(args ...any) (any, error) {
		failed = true
		return nil, nil
	}, 0)

	r.Fire("message", map[string]any{"type": "registration", "info": "ok"})

	assert.False(t, failed)
}

func TestExchangeDoneReschedulesWhenShouldRegisterFlips(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	h := registration.New(id, r, ex, st, nil, hostnameStub, nil, "", log.Discard())

	r.Fire("pre-exchange")
	assert.True(t, h.ShouldRegister())

	id.SetIDs("secure-1", "insecure-1")
	st.accepted["register"] = false

	r.Fire("pre-exchange")
	r.Fire("exchange-done")
	assert.Empty(t, ex.scheduled)

	st.accepted["register"] = true
	id.Clear()
	r.Fire("exchange-done")
	require.NotEmpty(t, ex.scheduled)
	assert.True(t, ex.scheduled[len(ex.scheduled)-1])
}

func TestRegisterSucceedsOnSetID(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	metrics := &fakeMetrics{}
	h := registration.New(id, r, ex, st, metrics, hostnameStub, nil, "", log.Discard())

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Fire("message", map[string]any{"type": "set-id", "id": "secure-1", "insecure-id": "insecure-1"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := h.Register(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ex.scheduled)
	assert.Equal(t, []bool{true}, metrics.attempts)
}

func TestRegisterFailsOnUnknownAccount(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	metrics := &fakeMetrics{}
	h := registration.New(id, r, ex, st, metrics, hostnameStub, nil, "", log.Discard())

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Fire("message", map[string]any{"type": "registration", "info": "unknown-account"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := h.Register(ctx)
	assert.ErrorIs(t, err, registration.ErrInvalidCredentials)
	assert.Equal(t, []bool{false}, metrics.attempts)
}

func TestRegisterRespectsContextCancellation(t *testing.T) {
	id, r, ex, st := newHarness(t, "register")
	h := registration.New(id, r, ex, st, nil, hostnameStub, nil, "", log.Discard())
	_ = ex

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.Register(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
