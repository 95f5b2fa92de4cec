// Package metrics exposes the broker's exchange and store instrumentation
// as Prometheus metrics, adapted from the teacher's generic Prometheus
// operator down to this domain's counters/gauges/histograms (the gRPC
// interceptor surface that operator exposed has no role here: the broker
// never runs a gRPC server, see DESIGN.md).
package metrics

import (
	"net/http"
	"runtime"
	"time"

	lib "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/canonical/landscape-client-sub002/log"
)

// Operator collects and exposes the broker's metrics.
type Operator interface {
	// GatherMetrics collects metrics on a best-effort basis.
	GatherMetrics() ([]*dto.MetricFamily, error)

	// MetricsHandler returns an HTTP handler serving the metrics in the
	// Prometheus exposition format.
	MetricsHandler() http.Handler

	// ExchangeStarted records the start of an exchange round-trip; the
	// returned func must be called with the outcome once it completes.
	ExchangeStarted() func(success bool)

	// SetPendingMessages records the store's current pending-message count.
	SetPendingMessages(n int)

	// RegistrationAttempt records the outcome of a registration attempt.
	RegistrationAttempt(success bool)
}

type handler struct {
	registry *lib.Registry
	extras   []lib.Collector

	exchangeTotal    *lib.CounterVec
	exchangeDuration lib.Histogram
	pendingMessages  lib.Gauge
	registrations    *lib.CounterVec
}

// NewOperator returns a ready-to-use operator instance. Host and runtime
// metrics are collected by default in addition to any extra collector
// provided. A nil registry creates a fresh one.
func NewOperator(reg *lib.Registry, cols ...lib.Collector) (Operator, error) {
	if reg == nil {
		reg = lib.NewRegistry()
	}
	ps := &handler{
		registry: reg,
		extras:   append([]lib.Collector{}, cols...),
		exchangeTotal: lib.NewCounterVec(lib.CounterOpts{
			Namespace: "landscape",
			Subsystem: "exchange",
			Name:      "total",
			Help:      "Number of message exchanges attempted, by outcome.",
		}, []string{"outcome"}),
		exchangeDuration: lib.NewHistogram(lib.HistogramOpts{
			Namespace: "landscape",
			Subsystem: "exchange",
			Name:      "duration_seconds",
			Help:      "Duration of a full exchange round-trip.",
			Buckets:   lib.DefBuckets,
		}),
		pendingMessages: lib.NewGauge(lib.GaugeOpts{
			Namespace: "landscape",
			Subsystem: "store",
			Name:      "pending_messages",
			Help:      "Number of messages currently pending in the outbound store.",
		}),
		registrations: lib.NewCounterVec(lib.CounterOpts{
			Namespace: "landscape",
			Subsystem: "registration",
			Name:      "attempts_total",
			Help:      "Number of registration attempts, by outcome.",
		}, []string{"outcome"}),
	}
	if err := ps.init(); err != nil {
		return nil, err
	}
	return ps, nil
}

func (ps *handler) init() error {
	// Host/process metrics: memory, CPU, file descriptors, start time.
	// The process collector only reports on Linux and Windows, so it is
	// registered only there.
	if err := ps.registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if runtime.GOOS == "linux" || runtime.GOOS == "windows" {
		po := collectors.ProcessCollectorOpts{ReportErrors: true}
		if err := ps.registry.Register(collectors.NewProcessCollector(po)); err != nil {
			return err
		}
	}

	for _, c := range []lib.Collector{ps.exchangeTotal, ps.exchangeDuration, ps.pendingMessages, ps.registrations} {
		if err := ps.registry.Register(c); err != nil {
			return err
		}
	}
	for _, c := range ps.extras {
		if err := ps.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (ps *handler) GatherMetrics() ([]*dto.MetricFamily, error) {
	return ps.registry.Gather()
}

func (ps *handler) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(ps.registry, promhttp.HandlerOpts{
		ErrorLog:            &errorLogger{ll: log.Discard()},
		ErrorHandling:       promhttp.ContinueOnError,
		Registry:            ps.registry,
		DisableCompression:  false,
		MaxRequestsInFlight: 10,
		Timeout:             5 * time.Second,
		EnableOpenMetrics:   false,
	})
}

func (ps *handler) ExchangeStarted() func(success bool) {
	start := time.Now()
	return func(success bool) {
		ps.exchangeDuration.Observe(time.Since(start).Seconds())
		outcome := "failure"
		if success {
			outcome = "success"
		}
		ps.exchangeTotal.WithLabelValues(outcome).Inc()
	}
}

func (ps *handler) SetPendingMessages(n int) {
	ps.pendingMessages.Set(float64(n))
}

func (ps *handler) RegistrationAttempt(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	ps.registrations.WithLabelValues(outcome).Inc()
}

// errorLogger adapts this package's Logger to promhttp's minimal logging
// interface.
type errorLogger struct {
	ll log.Logger
}

func (el *errorLogger) Println(v ...any) {
	el.ll.Print(log.Warning, v...)
}
