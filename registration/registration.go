package registration

import (
	"context"
	"regexp"

	"github.com/canonical/landscape-client-sub002/errors"
	"github.com/canonical/landscape-client-sub002/identity"
	"github.com/canonical/landscape-client-sub002/log"
	"github.com/canonical/landscape-client-sub002/reactor"
)

// ErrInvalidCredentials is returned by Register when the server rejects
// the configured account/password pair (a `registration` message with
// info == "unknown-account").
var ErrInvalidCredentials = errors.New("registration: invalid account or password")

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Exchanger is the subset of the Message Exchange that the registration
// handler depends on, kept as an interface to avoid a circular import
// between the two packages.
type Exchanger interface {
	Send(message map[string]any, urgent bool) (int64, error)
	ScheduleExchange(urgent, force bool)
}

// Store is the subset of the Message Store the registration handler needs.
type Store interface {
	Accepts(msgType string) bool
	DeleteAllMessages() error
}

// Metrics is the subset of the metrics operator the registration handler
// reports to.
type Metrics interface {
	RegistrationAttempt(success bool)
}

// Handler is the registration state machine of spec §4.7.
type Handler struct {
	identity *identity.Identity
	reactor  *reactor.Reactor
	exchange Exchanger
	store    Store
	metrics  Metrics
	hostname    func() (string, error)
	tags        []string
	accessGroup string
	log         log.Logger

	shouldRegister bool
}

// New wires a Handler into reactor's pre-exchange/exchange-done/message
// events. tags are the caller-configured tags to present at registration
// time (spec: each must match [A-Za-z0-9_-]+, or the whole list is
// dropped and logged). accessGroup, if non-empty, is carried verbatim in
// the register message (optional attribute, §6.4). metrics may be nil, in
// which case registration attempts are simply not reported.
func New(
	id *identity.Identity,
	r *reactor.Reactor,
	exchange Exchanger,
	store Store,
	metrics Metrics,
	hostname func() (string, error),
	tags []string,
	accessGroup string,
	logger log.Logger,
) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	h := &Handler{
		identity:    id,
		reactor:     r,
		exchange:    exchange,
		store:       store,
		metrics:     metrics,
		hostname:    hostname,
		tags:        tags,
		accessGroup: accessGroup,
		log:         logger.Sub(log.Fields{"component": "registration"}),
	}
	r.CallOn("pre-exchange", h.handlePreExchange, 0)
	r.CallOn("exchange-done", h.handleExchangeDone, 0)
	r.CallOn("message", h.handleMessage, 0)
	return h
}

// ShouldRegister reports whether the broker needs to (re-)register: no
// secure_id yet, computer_title/account_name configured, and "register"
// currently accepted by the server.
func (h *Handler) ShouldRegister() bool {
	return h.identity.SecureID() == "" &&
		h.identity.ComputerTitle() != "" &&
		h.identity.AccountName() != "" &&
		h.store.Accepts("register")
}

// Register clears the identity, forces an urgent exchange that carries a
// registration attempt, and blocks until the
// server confirms (registration-done) or rejects it (registration-failed),
// or ctx is cancelled. It is the one-shot entry point for an interactive
// caller (e.g. a CLI `register` command); the listener de-registers itself
// the moment either event fires.
func (h *Handler) Register(ctx context.Context) error {
	h.identity.Clear()

	result := make(chan error, 1)
	var doneID, failedID int
	doneID = h.reactor.CallOn("registration-done", func(args ...any) (any, error) {
		h.reactor.CancelCall(doneID)
		h.reactor.CancelCall(failedID)
		select {
		case result <- nil:
		default:
		}
		return nil, nil
	}, 0)
	failedID = h.reactor.CallOn("registration-failed", func(args ...any) (any, error) {
		h.reactor.CancelCall(doneID)
		h.reactor.CancelCall(failedID)
		select {
		case result <- ErrInvalidCredentials:
		default:
		}
		return nil, nil
	}, 0)

	h.exchange.ScheduleExchange(true, true)

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		h.reactor.CancelCall(doneID)
		h.reactor.CancelCall(failedID)
		return ctx.Err()
	}
}

func (h *Handler) handlePreExchange(args ...any) (any, error) {
	h.shouldRegister = h.ShouldRegister()
	if !h.shouldRegister {
		return nil, nil
	}

	if err := h.store.DeleteAllMessages(); err != nil {
		h.log.Errorf("failed to clear store before registration: %v", err)
	}

	hostname := ""
	if h.hostname != nil {
		if name, err := h.hostname(); err == nil {
			hostname = name
		} else {
			h.log.Warningf("failed to determine hostname: %v", err)
		}
	}

	msg := map[string]any{
		"type":                  "register",
		"computer_title":        h.identity.ComputerTitle(),
		"account_name":          h.identity.AccountName(),
		"registration_password": h.identity.RegistrationPassword(),
		"hostname":              hostname,
		"tags":                  h.validTags(),
	}
	if h.accessGroup != "" {
		msg["access_group"] = h.accessGroup
	}
	if _, err := h.exchange.Send(msg, false); err != nil {
		h.log.Errorf("failed to queue register message: %v", err)
	}
	return nil, nil
}

// validTags returns the configured tags as a []any for the wire payload,
// or nil if any tag fails validation (the whole list is dropped, per spec).
func (h *Handler) validTags() any {
	if len(h.tags) == 0 {
		return nil
	}
	for _, t := range h.tags {
		if !tagPattern.MatchString(t) {
			h.log.Errorf("invalid tags provided for registration: %q", t)
			return nil
		}
	}
	out := make([]any, len(h.tags))
	for i, t := range h.tags {
		out[i] = t
	}
	return out
}

func (h *Handler) handleExchangeDone(args ...any) (any, error) {
	if h.ShouldRegister() && !h.shouldRegister {
		h.exchange.ScheduleExchange(true, true)
	}
	return nil, nil
}

func (h *Handler) handleMessage(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	msg, ok := args[0].(map[string]any)
	if !ok {
		return nil, nil
	}
	switch msg["type"] {
	case "set-id":
		h.handleSetID(msg)
	case "unknown-id":
		h.handleUnknownID(msg)
	case "registration":
		h.handleRegistration(msg)
	}
	return nil, nil
}

func (h *Handler) handleSetID(msg map[string]any) {
	secureID, _ := msg["id"].(string)
	insecureID, _ := msg["insecure-id"].(string)
	h.identity.SetIDs(secureID, insecureID)
	h.log.Infof("using new secure-id for account %s", h.identity.AccountName())
	if h.metrics != nil {
		h.metrics.RegistrationAttempt(true)
	}
	h.reactor.Fire("registration-done")
	h.reactor.Fire("resynchronize-clients")
}

func (h *Handler) handleUnknownID(_ map[string]any) {
	h.log.Infof("client has unknown secure-id for account %s", h.identity.AccountName())
	h.identity.Clear()
}

func (h *Handler) handleRegistration(msg map[string]any) {
	if info, _ := msg["info"].(string); info == "unknown-account" {
		if h.metrics != nil {
			h.metrics.RegistrationAttempt(false)
		}
		h.reactor.Fire("registration-failed")
	}
}
