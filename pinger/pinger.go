package pinger

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/canonical/landscape-client-sub002/log"
	"github.com/canonical/landscape-client-sub002/reactor"
)

// DefaultInterval is the default probe cadence, spec §6.4 ("ping_interval",
// default 30 s).
const DefaultInterval = 30 * time.Second

// Prober performs the actual HEAD request; satisfied by *transport.Client.
type Prober interface {
	Head(url string) (*http.Response, error)
}

// Exchanger is the subset of the Message Exchange the pinger drives.
type Exchanger interface {
	ScheduleExchange(urgent, force bool)
}

// Pinger periodically HEADs url, and when the server answers with the
// "has pending data" status, requests an urgent exchange. A rate.Limiter
// caps probe frequency independent of the reactor's own timer cadence, so a
// burst of reschedules (e.g. from repeated Start/Stop) can never exceed it.
type Pinger struct {
	mu sync.Mutex

	reactor  *reactor.Reactor
	client   Prober
	limiter  *rate.Limiter
	exchange Exchanger
	log      log.Logger

	url      string
	interval time.Duration

	haveTimer bool
	timerID   int
	stopped   bool
}

// New returns a Pinger probing url every interval (DefaultInterval if <= 0).
func New(r *reactor.Reactor, client Prober, exchange Exchanger, url string, interval time.Duration, logger log.Logger) *Pinger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Pinger{
		reactor:  r,
		client:   client,
		exchange: exchange,
		log:      logger.Sub(log.Fields{"component": "pinger"}),
		url:      url,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Start arms the first probe.
func (p *Pinger) Start() {
	p.scheduleNext()
}

// Stop cancels the pending probe timer.
func (p *Pinger) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.cancelLocked()
}

func (p *Pinger) cancelLocked() {
	if p.haveTimer {
		p.reactor.CancelCall(p.timerID)
		p.haveTimer = false
	}
}

func (p *Pinger) scheduleNext() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.cancelLocked()
	p.timerID = p.reactor.CallLater(p.interval, func(args ...any) { p.probe() })
	p.haveTimer = true
}

// probe runs on the reactor thread (entered by the timer); the blocking
// HTTP call itself is offloaded to a worker, as no plugin or exchange code
// may block the reactor.
func (p *Pinger) probe() {
	if !p.limiter.Allow() {
		p.scheduleNext()
		return
	}

	p.reactor.CallInThread(
		func(args ...any) (any, error) {
			return p.client.Head(p.url)
		},
		func(result any) {
			resp, _ := result.(*http.Response)
			p.handleResponse(resp)
			p.scheduleNext()
		},
		func(err error) {
			p.log.Debugf("ping probe failed: %v", err)
			p.scheduleNext()
		},
	)
}

func (p *Pinger) handleResponse(resp *http.Response) {
	if resp == nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		p.exchange.ScheduleExchange(true, false)
	}
}
