package exchange

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/landscape-client-sub002/identity"
	"github.com/canonical/landscape-client-sub002/log"
	"github.com/canonical/landscape-client-sub002/persist"
	"github.com/canonical/landscape-client-sub002/reactor"
	"github.com/canonical/landscape-client-sub002/schema"
	"github.com/canonical/landscape-client-sub002/store"
	"github.com/canonical/landscape-client-sub002/transport"
)

type fakeTransport struct {
	resp *transport.Response
	err  error

	lastSecureID      string
	lastServerAPI     string
	lastExchangeToken string
	calls             int
}

func (f *fakeTransport) Exchange(ctx context.Context, payload map[string]any, secureID, serverAPI, exchangeToken string) (*transport.Response, error) {
	f.calls++
	f.lastSecureID = secureID
	f.lastServerAPI = serverAPI
	f.lastExchangeToken = exchangeToken
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newHarness(t *testing.T) (*Exchanger, *store.Store, *identity.Identity, *fakeTransport) {
	t.Helper()
	tree := persist.New(filepath.Join(t.TempDir(), "broker.tree"), nil)

	reg := schema.NewRegistry()
	require.NoError(t, reg.AddSchema(schema.Message{
		Type:     "thing",
		Keys:     map[string]schema.Schema{"n": schema.Int{}},
		Optional: map[string]bool{"n": true},
	}))
	require.NoError(t, reg.AddSchema(schema.Message{
		Type:     "resynchronize",
		Keys:     map[string]schema.Schema{"operation-id": schema.Text{}},
	}))

	st, err := store.Open(filepath.Join(t.TempDir(), "messages"), tree.RootAt("store"), reg, "3.3", nil)
	require.NoError(t, err)
	st.SetAcceptedTypes([]string{"thing", "resynchronize"})

	id := identity.New(tree.RootAt("identity"), identity.Config{})

	r := reactor.New(log.Discard())
	tr := &fakeTransport{resp: &transport.Response{}}

	e := New(r, st, tr, id, nil, log.Discard(), Config{ClientAPI: "3.3"})
	return e, st, id, tr
}

func TestSendQueuesOnStore(t *testing.T) {
	e, st, _, _ := newHarness(t)

	id, err := e.Send(map[string]any{"type": "thing"}, false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, id, int64(0))
	assert.Equal(t, 1, st.CountPendingMessages())
}

func TestScheduleExchangeNoopWhileExchangingUnlessForced(t *testing.T) {
	e, _, _, _ := newHarness(t)
	e.exchanging = true

	e.ScheduleExchange(false, false)
	assert.False(t, e.haveMainTimer)

	e.ScheduleExchange(false, true)
	assert.True(t, e.haveMainTimer)
}

func TestScheduleExchangeUrgentUpgradesCadence(t *testing.T) {
	e, _, _, _ := newHarness(t)
	e.Start()
	assert.False(t, e.urgent)

	e.ScheduleExchange(true, false)
	assert.True(t, e.urgent)
}

func TestStopPreventsFurtherScheduling(t *testing.T) {
	e, _, _, _ := newHarness(t)
	e.Stop()
	e.ScheduleExchange(false, true)
	assert.False(t, e.haveMainTimer)
}

func TestRunExchangeBuildsPayloadAndCallsTransport(t *testing.T) {
	e, st, id, tr := newHarness(t)
	id.SetIDs("secure-1", "insecure-1")

	_, err := st.Add(map[string]any{"type": "thing"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go e.reactor.Run(ctx)

	e.runExchange()

	require.Eventually(t, func() bool { return tr.calls == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "secure-1", tr.lastSecureID)
	assert.Equal(t, "3.3", tr.lastServerAPI)
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return !e.exchanging
	}, time.Second, 5*time.Millisecond)
}

func TestProcessResponseFullAccept(t *testing.T) {
	e, st, _, _ := newHarness(t)
	for i := 0; i < 3; i++ {
		_, err := st.Add(map[string]any{"type": "thing"})
		require.NoError(t, err)
	}

	payload := e.buildPayload()
	resp := &transport.Response{NextExpectedSequence: 3, HasNextExpectedSequence: true}
	e.processResponse(payload, resp)

	assert.Equal(t, int64(3), st.GetSequence())
	assert.Equal(t, 0, st.CountPendingMessages())
}

func TestProcessResponsePartialAccept(t *testing.T) {
	e, st, _, _ := newHarness(t)
	for i := 0; i < 5; i++ {
		_, err := st.Add(map[string]any{"type": "thing"})
		require.NoError(t, err)
	}

	payload := e.buildPayload()
	resp := &transport.Response{NextExpectedSequence: 2, HasNextExpectedSequence: true}
	e.processResponse(payload, resp)

	assert.Equal(t, int64(2), st.GetSequence())
	assert.Equal(t, 3, st.CountPendingMessages())
}

func TestProcessResponseAncientTriggersResynchronize(t *testing.T) {
	e, st, _, _ := newHarness(t)
	_, err := st.Add(map[string]any{"type": "thing"})
	require.NoError(t, err)

	var fired bool
	e.reactor.CallOn("resynchronize-clients", func(args ...any) (any, error) {
		fired = true
		return nil, nil
	}, 0)

	payload := e.buildPayload()
	resp := &transport.Response{NextExpectedSequence: 50, HasNextExpectedSequence: true}
	e.processResponse(payload, resp)

	assert.True(t, fired)
	// the resynchronize self-message was enqueued in addition to the one we sent.
	assert.Equal(t, 2, st.CountPendingMessages())
}

func TestProcessResponseRewindOnRegression(t *testing.T) {
	e, st, _, _ := newHarness(t)
	for i := 0; i < 4; i++ {
		_, err := st.Add(map[string]any{"type": "thing"})
		require.NoError(t, err)
	}
	st.SetSequence(4)
	st.AddPendingOffset(4)

	payload := e.buildPayload()
	resp := &transport.Response{NextExpectedSequence: 2, HasNextExpectedSequence: true}
	e.processResponse(payload, resp)

	assert.Equal(t, int64(2), st.GetSequence())
	assert.Equal(t, 2, st.GetPendingOffset())
}

func TestHandleMessageAcceptedTypesFiresAcceptanceChanged(t *testing.T) {
	e, st, _, _ := newHarness(t)
	st.SetAcceptedTypes([]string{"thing"})

	var changes []string
	e.reactor.CallOn("message-type-acceptance-changed", func(args ...any) (any, error) {
		if len(args) == 2 {
			if name, ok := args[0].(string); ok {
				changes = append(changes, name)
			}
		}
		return nil, nil
	}, 0)

	e.reactor.Fire("message", map[string]any{
		"type":  "accepted-types",
		"types": []any{"thing", "extra"},
	})

	assert.Contains(t, changes, "extra")
	assert.ElementsMatch(t, []string{"thing", "extra"}, st.GetAcceptedTypes())
}

func TestHandleMessageSetIntervals(t *testing.T) {
	e, _, _, _ := newHarness(t)

	e.reactor.Fire("message", map[string]any{
		"type":            "set-intervals",
		"exchange":        int64(120),
		"urgent-exchange": int64(15),
	})

	assert.Equal(t, int64(120), int64(e.normalInterval.Seconds()))
	assert.Equal(t, int64(15), int64(e.urgentInterval.Seconds()))
}

func TestHandleMessageResynchronizeEnqueuesAndFires(t *testing.T) {
	e, st, _, _ := newHarness(t)

	var fired bool
	e.reactor.CallOn("resynchronize-clients", func(args ...any) (any, error) {
		fired = true
		return nil, nil
	}, 0)

	e.reactor.Fire("message", map[string]any{"type": "resynchronize"})

	assert.True(t, fired)
	assert.Equal(t, 1, st.CountPendingMessages())
}
