package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canonical/landscape-client-sub002/identity"
	"github.com/canonical/landscape-client-sub002/log"
	"github.com/canonical/landscape-client-sub002/metrics"
	"github.com/canonical/landscape-client-sub002/reactor"
	"github.com/canonical/landscape-client-sub002/store"
	"github.com/canonical/landscape-client-sub002/transport"
)

// Default cadence constants, spec §4.5.
const (
	DefaultExchangeInterval       = 900 * time.Second
	DefaultUrgentExchangeInterval = 60 * time.Second

	impendingLeadTime = 10 * time.Second

	// DefaultMaxMessages bounds a single payload's message count; spec
	// places no fixed number on it, only the api-split tie-break rule.
	DefaultMaxMessages = 100
)

// Transport performs the actual HTTPS round-trip; satisfied by
// *transport.Exchanger, kept as an interface here so tests can substitute a
// fake without spinning up a real HTTP server.
type Transport interface {
	Exchange(ctx context.Context, payload map[string]any, secureID, serverAPI, exchangeToken string) (*transport.Response, error)
}

// Config seeds an Exchanger's build-time constants.
type Config struct {
	// ClientAPI is the fixed client-api constant this build reports.
	ClientAPI string
	// MaxMessages caps how many pending messages a single payload carries,
	// before the api-split tie-break further restricts it.
	MaxMessages int
	// NormalInterval and UrgentInterval seed the two cadences; zero means
	// DefaultExchangeInterval/DefaultUrgentExchangeInterval.
	NormalInterval time.Duration
	UrgentInterval time.Duration
}

// Exchanger is the Message Exchange of spec §4.5/§4.6: it owns the
// Idle/Exchanging/Stopped state machine, builds and posts payloads, and
// processes responses.
type Exchanger struct {
	mu sync.Mutex

	reactor   *reactor.Reactor
	store     *store.Store
	transport Transport
	identity  *identity.Identity
	metrics   metrics.Operator
	log       log.Logger

	clientAPI   string
	maxMessages int

	normalInterval time.Duration
	urgentInterval time.Duration
	urgent         bool

	exchanging bool
	stopped    bool

	haveMainTimer      bool
	mainTimerID        int
	haveImpendingTimer bool
	impendingTimerID   int

	exchangeToken string
}

// New wires an Exchanger into r's "message" event (for the built-in
// accepted-types/set-intervals/resynchronize message types) and returns it
// idle: call Start to arm the first timer.
func New(
	r *reactor.Reactor,
	st *store.Store,
	tr Transport,
	id *identity.Identity,
	metricsOp metrics.Operator,
	logger log.Logger,
	cfg Config,
) *Exchanger {
	if logger == nil {
		logger = log.Discard()
	}
	normal := cfg.NormalInterval
	if normal <= 0 {
		normal = DefaultExchangeInterval
	}
	urgent := cfg.UrgentInterval
	if urgent <= 0 {
		urgent = DefaultUrgentExchangeInterval
	}
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}

	e := &Exchanger{
		reactor:        r,
		store:          st,
		transport:      tr,
		identity:       id,
		metrics:        metricsOp,
		log:            logger.Sub(log.Fields{"component": "exchange"}),
		clientAPI:      cfg.ClientAPI,
		maxMessages:    maxMessages,
		normalInterval: normal,
		urgentInterval: urgent,
	}
	r.CallOn("message", e.handleMessage, 0)
	return e
}

// Start arms the initial timer; call once after New.
func (e *Exchanger) Start() {
	e.ScheduleExchange(false, true)
}

// Stop cancels pending timers. An in-flight exchange is allowed to finish;
// its result is discarded because the reactor itself is expected to be
// stopped by the caller around the same time.
func (e *Exchanger) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.cancelTimersLocked()
}

// Send queues message on the store and, when urgent, requests an
// accelerated exchange. It returns the assigned message id.
func (e *Exchanger) Send(message map[string]any, urgent bool) (int64, error) {
	id, err := e.store.Add(message)
	if err != nil {
		return 0, err
	}
	if urgent {
		e.ScheduleExchange(true, false)
	}
	return id, nil
}

// ScheduleExchange (re)arms the main and impending-exchange timers. It is a
// no-op while an exchange is in flight unless force is set; urgent upgrades
// the cadence to the urgent interval until the next successful exchange
// demotes it back to normal.
func (e *Exchanger) ScheduleExchange(urgent, force bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	if e.exchanging && !force {
		return
	}
	if urgent {
		e.urgent = true
	}
	e.cancelTimersLocked()
	e.armTimersLocked()
}

func (e *Exchanger) armTimersLocked() {
	interval := e.normalInterval
	if e.urgent {
		interval = e.urgentInterval
	}

	e.mainTimerID = e.reactor.CallLater(interval, func(args ...any) { e.runExchange() })
	e.haveMainTimer = true

	lead := interval - impendingLeadTime
	if lead < 0 {
		lead = 0
	}
	e.impendingTimerID = e.reactor.CallLater(lead, func(args ...any) { e.reactor.Fire("impending-exchange") })
	e.haveImpendingTimer = true
}

func (e *Exchanger) cancelTimersLocked() {
	if e.haveMainTimer {
		e.reactor.CancelCall(e.mainTimerID)
		e.haveMainTimer = false
	}
	if e.haveImpendingTimer {
		e.reactor.CancelCall(e.impendingTimerID)
		e.haveImpendingTimer = false
	}
}

// runExchange is entered by the main timer, always on the reactor thread.
func (e *Exchanger) runExchange() {
	e.mu.Lock()
	if e.exchanging || e.stopped {
		e.mu.Unlock()
		return
	}
	e.exchanging = true
	e.haveMainTimer = false
	e.haveImpendingTimer = false
	e.mu.Unlock()

	e.reactor.Fire("pre-exchange")

	payload := e.buildPayload()
	serverAPI, _ := payload["server-api"].(string)

	secureID := e.identity.SecureID()
	e.mu.Lock()
	token := e.exchangeToken
	e.mu.Unlock()

	exchangeDone := func(success bool) {}
	if e.metrics != nil {
		exchangeDone = e.metrics.ExchangeStarted()
	}

	e.reactor.CallInThread(
		func(args ...any) (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), transport.DefaultDeadline)
			defer cancel()
			return e.transport.Exchange(ctx, payload, secureID, serverAPI, token)
		},
		func(result any) {
			exchangeDone(true)
			resp, _ := result.(*transport.Response)
			e.handleSuccess(payload, resp)
		},
		func(err error) {
			exchangeDone(false)
			e.log.Warningf("exchange failed: %v", err)
			e.handleFailure()
		},
	)
}

func (e *Exchanger) buildPayload() map[string]any {
	pending := e.store.GetPendingMessages(e.maxMessages)

	serverAPI := e.store.GetAPI()
	if len(pending) > 0 {
		if api, ok := pending[0]["api"].(string); ok && api != "" {
			serverAPI = api
		}
	}

	msgs := make([]any, len(pending))
	for i, m := range pending {
		msgs[i] = m
	}

	digest := e.store.GetAcceptedTypesDigest()

	return map[string]any{
		"server-api":             serverAPI,
		"client-api":             e.clientAPI,
		"sequence":               e.store.GetSequence(),
		"next-expected-sequence": e.store.GetServerSequence(),
		"accepted-types":         append([]byte(nil), digest[:]...),
		"messages":               msgs,
		"total-messages":         int64(e.store.CountPendingMessages()),
	}
}

func (e *Exchanger) handleSuccess(payload map[string]any, resp *transport.Response) {
	e.mu.Lock()
	e.urgent = false
	e.exchanging = false
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SetPendingMessages(e.store.CountPendingMessages())
	}

	if resp != nil {
		e.processResponse(payload, resp)
	}

	e.reactor.Fire("exchange-done")
	e.ScheduleExchange(false, true)
}

func (e *Exchanger) handleFailure() {
	e.mu.Lock()
	e.exchanging = false
	e.mu.Unlock()

	e.reactor.Fire("exchange-failed")
	e.ScheduleExchange(false, true)
}

// processResponse implements spec §4.6's sequence-advancement rules.
func (e *Exchanger) processResponse(payload map[string]any, resp *transport.Response) {
	sent, _ := payload["messages"].([]any)
	sentCount := int64(len(sent))

	old := e.store.GetSequence()
	nextExpected := old + sentCount
	if resp.HasNextExpectedSequence {
		nextExpected = resp.NextExpectedSequence
	}

	switch {
	case nextExpected == old+sentCount:
		e.store.SetSequence(nextExpected)
		e.store.AddPendingOffset(int(sentCount))
		if err := e.store.DeleteOldMessages(); err != nil {
			e.log.Errorf("failed to delete acknowledged messages: %v", err)
		}
	case nextExpected > old && nextExpected < old+sentCount:
		accepted := int(nextExpected - old)
		e.store.SetSequence(nextExpected)
		e.store.AddPendingOffset(accepted)
		if err := e.store.DeleteOldMessages(); err != nil {
			e.log.Errorf("failed to delete acknowledged messages: %v", err)
		}
	case nextExpected > old+sentCount:
		e.log.Warningf("server sequence %d ahead of our %d sent messages, resynchronizing", nextExpected, old+sentCount)
		e.enqueueResynchronize()
		e.reactor.Fire("resynchronize-clients")
	case nextExpected < old:
		delta := int(old - nextExpected)
		e.store.SetSequence(nextExpected)
		e.store.SetPendingOffset(e.store.GetPendingOffset() - delta)
	}

	if err := e.store.Commit(); err != nil {
		e.log.Errorf("failed to commit store after response: %v", err)
	}

	for _, msg := range resp.Messages {
		e.reactor.Fire("message", msg)
		e.store.SetServerSequence(e.store.GetServerSequence() + 1)
		if err := e.store.Commit(); err != nil {
			e.log.Errorf("failed to commit store after message: %v", err)
		}
	}

	if resp.NextExchangeToken != "" {
		e.mu.Lock()
		e.exchangeToken = resp.NextExchangeToken
		e.mu.Unlock()
	}
	if resp.ServerUUID != "" {
		e.log.Debugf("exchanged with server-uuid %s", resp.ServerUUID)
	}
	if len(resp.ClientAcceptedTypes) > 0 {
		e.applyAcceptedTypes(resp.ClientAcceptedTypes)
	}

	if e.store.CountPendingMessages() > 0 && nextExpected != old {
		e.ScheduleExchange(true, false)
	}
}

func (e *Exchanger) enqueueResynchronize() {
	_, err := e.store.Add(map[string]any{
		"type":         "resynchronize",
		"operation-id": uuid.NewString(),
	})
	if err != nil {
		e.log.Errorf("failed to queue resynchronize message: %v", err)
	}
}

// handleMessage is registered on the reactor's "message" event to process
// the built-in server message types of spec §4.5.
func (e *Exchanger) handleMessage(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	msg, ok := args[0].(map[string]any)
	if !ok {
		return nil, nil
	}
	switch msg["type"] {
	case "accepted-types":
		e.applyAcceptedTypesMessage(msg)
	case "set-intervals":
		e.handleSetIntervals(msg)
	case "resynchronize":
		e.handleResynchronizeMessage()
	}
	return nil, nil
}

func (e *Exchanger) applyAcceptedTypesMessage(msg map[string]any) {
	raw, _ := msg["types"].([]any)
	types := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			types = append(types, s)
		}
	}
	e.applyAcceptedTypes(types)
}

func (e *Exchanger) applyAcceptedTypes(types []string) {
	oldSet := typeSet(e.store.GetAcceptedTypes())
	e.store.SetAcceptedTypes(types)
	newSet := typeSet(types)

	unblocked := false
	for t := range oldSet {
		if !newSet[t] {
			e.reactor.Fire("message-type-acceptance-changed", t, false)
		}
	}
	for t := range newSet {
		if !oldSet[t] {
			e.reactor.Fire("message-type-acceptance-changed", t, true)
			unblocked = true
		}
	}
	if unblocked && e.store.CountPendingMessages() > 0 {
		e.ScheduleExchange(true, false)
	}
}

func typeSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func (e *Exchanger) handleSetIntervals(msg map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := secondsValue(msg["exchange"]); ok {
		e.normalInterval = v
	}
	if v, ok := secondsValue(msg["urgent-exchange"]); ok {
		e.urgentInterval = v
	}
}

func secondsValue(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case int64:
		return time.Duration(n) * time.Second, true
	case float64:
		return time.Duration(n * float64(time.Second)), true
	default:
		return 0, false
	}
}

func (e *Exchanger) handleResynchronizeMessage() {
	e.enqueueResynchronize()
	e.reactor.Fire("resynchronize-clients")
}
