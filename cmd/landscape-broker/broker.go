package main

import (
	"os"
	"path/filepath"

	"github.com/canonical/landscape-client-sub002/config"
	"github.com/canonical/landscape-client-sub002/errors"
	"github.com/canonical/landscape-client-sub002/exchange"
	"github.com/canonical/landscape-client-sub002/identity"
	"github.com/canonical/landscape-client-sub002/log"
	"github.com/canonical/landscape-client-sub002/metrics"
	"github.com/canonical/landscape-client-sub002/persist"
	"github.com/canonical/landscape-client-sub002/pinger"
	"github.com/canonical/landscape-client-sub002/reactor"
	"github.com/canonical/landscape-client-sub002/registration"
	"github.com/canonical/landscape-client-sub002/schema"
	"github.com/canonical/landscape-client-sub002/store"
	"github.com/canonical/landscape-client-sub002/transport"
)

const (
	clientAPI = "3.3"
	userAgent = "landscape-broker/1.0"
)

// broker bundles the wired Message Store/Exchange/Registration/Pinger
// components of a single running (or about-to-run) instance.
type broker struct {
	cfg config.Config
	log log.Logger

	reactor      *reactor.Reactor
	store        *store.Store
	identity     *identity.Identity
	exchanger    *exchange.Exchanger
	registration *registration.Handler
	pinger       *pinger.Pinger
	metrics      metrics.Operator
}

// newBroker wires every component per cfg but starts nothing; call
// exchanger.Start()/pinger.Start() and reactor.Run(ctx) to bring it up.
func newBroker(cfg config.Config, logger log.Logger) (*broker, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(cfg.DataPath, 0o700); err != nil {
		return nil, errors.Wrap(err, "broker: failed to create data directory")
	}

	tree := persist.New(filepath.Join(cfg.DataPath, "broker.tree"), logger)
	_ = tree.Load()

	reg := schema.NewRegistry()
	if err := registerBuiltinSchemas(reg); err != nil {
		return nil, errors.Wrap(err, "broker: failed to register built-in schemas")
	}

	st, err := store.Open(filepath.Join(cfg.DataPath, "messages"), tree.RootAt("store"), reg, clientAPI, logger)
	if err != nil {
		return nil, errors.Wrap(err, "broker: failed to open message store")
	}

	id := identity.New(tree.RootAt("identity"), identity.Config{
		ComputerTitle:        cfg.ComputerTitle,
		AccountName:          cfg.AccountName,
		RegistrationPassword: cfg.RegistrationPassword,
	})

	r := reactor.New(logger)

	clientOpts := []transport.ClientOption{transport.WithTimeout(transport.DefaultDeadline)}
	tlsSettings, err := loadTLS(cfg)
	if err != nil {
		return nil, err
	}
	if tlsSettings != nil {
		clientOpts = append(clientOpts, transport.WithTLS(*tlsSettings))
	}

	tr, err := transport.NewExchanger(cfg.URL, userAgent, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "broker: failed to build exchange transport")
	}

	metricsOp, err := metrics.NewOperator(nil)
	if err != nil {
		return nil, errors.Wrap(err, "broker: failed to build metrics operator")
	}

	ex := exchange.New(r, st, tr, id, metricsOp, logger, exchange.Config{
		ClientAPI:      clientAPI,
		NormalInterval: cfg.ExchangeInterval(),
		UrgentInterval: cfg.UrgentExchangeInterval(),
	})

	rh := registration.New(id, r, ex, st, metricsOp, os.Hostname, cfg.Tags, cfg.AccessGroup, logger)

	var pg *pinger.Pinger
	if cfg.PingURL != "" {
		pingOpts := []transport.ClientOption{transport.WithTimeout(transport.DefaultDeadline)}
		if tlsSettings != nil {
			pingOpts = append(pingOpts, transport.WithTLS(*tlsSettings))
		}
		client, cerr := transport.NewClient(pingOpts...)
		if cerr != nil {
			return nil, errors.Wrap(cerr, "broker: failed to build ping client")
		}
		pg = pinger.New(r, client, ex, cfg.PingURL, cfg.PingInterval(), logger)
	}

	return &broker{
		cfg:          cfg,
		log:          logger,
		reactor:      r,
		store:        st,
		identity:     id,
		exchanger:    ex,
		registration: rh,
		pinger:       pg,
		metrics:      metricsOp,
	}, nil
}

// loadTLS builds the trust settings for talking to the management server
// from the configured CA file (spec §6.1: "server certificate validated
// against a configured CA file; no validation bypass in production"). It
// returns nil, nil when no ssl_public_key is configured, in which case the
// platform trust store applies.
func loadTLS(cfg config.Config) (*transport.TLS, error) {
	if cfg.SSLPublicKey == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(cfg.SSLPublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "broker: failed to read ssl_public_key")
	}
	return &transport.TLS{CustomCAs: [][]byte{pem}}, nil
}

// start arms the exchange and, if configured, the pinger. Call once,
// before reactor.Run.
func (b *broker) start() {
	b.exchanger.Start()
	if b.pinger != nil {
		b.pinger.Start()
	}
}
