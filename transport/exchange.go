package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	lib "net/http"
	"time"

	"github.com/canonical/landscape-client-sub002/errors"
	"github.com/canonical/landscape-client-sub002/wire"
)

// DefaultDeadline is the wall-clock limit the transport imposes on a single
// exchange round-trip, per spec §5. A deadline expiry is treated exactly
// like any other network error by the caller.
const DefaultDeadline = 60 * time.Second

// Response is the decoded body of a successful exchange, per spec §3 and §6.1.
type Response struct {
	// NextExpectedSequence tells the caller how many of the messages it
	// sent were consumed by the server.
	NextExpectedSequence int64
	HasNextExpectedSequence bool

	// Messages are server-originated messages to be dispatched in order.
	Messages []map[string]any

	// NextExchangeToken, when present, must be echoed as X-Exchange-Token
	// on the following request.
	NextExchangeToken string

	// ServerUUID identifies the server instance handling this exchange;
	// used only for observability (spec SUPPLEMENTED FEATURES).
	ServerUUID string

	// ClientAcceptedTypes, rarely present, lets the server preempt the
	// accepted-types digest handshake.
	ClientAcceptedTypes []string
}

// Exchanger performs the HTTPS POST round-trip of spec §4.1.D/§6.1: a
// bpickle-framed payload out, a bpickle-framed response
// (or a bare HTTP error) back.
type Exchanger struct {
	client    *Client
	url       string
	userAgent string
}

// NewExchanger returns an Exchanger posting to url, identifying itself with
// userAgent (spec: "landscape-client/<version>").
func NewExchanger(url, userAgent string, options ...ClientOption) (*Exchanger, error) {
	opts := append([]ClientOption{WithTimeout(DefaultDeadline)}, options...)
	c, err := NewClient(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "transport: failed to build client")
	}
	return &Exchanger{client: c, url: url, userAgent: userAgent}, nil
}

// Exchange posts payload and returns the server's decoded response.
// secureID is omitted from X-Computer-ID until registration completes;
// exchangeToken is omitted unless a previous response supplied one.
func (e *Exchanger) Exchange(ctx context.Context, payload map[string]any, secureID, serverAPI, exchangeToken string) (*Response, error) {
	body, err := wire.Encode(payload)
	if err != nil {
		return nil, errors.Wrap(err, "transport: failed to encode payload")
	}

	req, err := lib.NewRequestWithContext(ctx, lib.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "transport: failed to build request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("X-Message-API", serverAPI)
	if secureID != "" {
		req.Header.Set("X-Computer-ID", secureID)
	}
	if exchangeToken != "" {
		req.Header.Set("X-Exchange-Token", exchangeToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "transport: exchange request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "transport: failed to read response body")
	}
	if resp.StatusCode != lib.StatusOK {
		return nil, errors.New(fmt.Sprintf("transport: unexpected status %d", resp.StatusCode))
	}

	v, err := wire.Decode(raw)
	if err != nil {
		return nil, errors.Wrap(err, "transport: failed to decode response")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("transport: response is not a map")
	}
	return parseResponse(m), nil
}

func parseResponse(m map[string]any) *Response {
	r := &Response{}

	if n, ok := asInt64(m["next-expected-sequence"]); ok {
		r.NextExpectedSequence = n
		r.HasNextExpectedSequence = true
	}
	if list, ok := m["messages"].([]any); ok {
		for _, item := range list {
			if msg, ok := item.(map[string]any); ok {
				r.Messages = append(r.Messages, msg)
			}
		}
	}
	if s, ok := m["next-exchange-token"].(string); ok {
		r.NextExchangeToken = s
	}
	if s, ok := m["server-uuid"].(string); ok {
		r.ServerUUID = s
	}
	if list, ok := m["client-accepted-types"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				r.ClientAcceptedTypes = append(r.ClientAcceptedTypes, s)
			}
		}
	}
	return r
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
