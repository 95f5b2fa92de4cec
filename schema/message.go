package schema

import (
	"sync"

	"github.com/canonical/landscape-client-sub002/errors"
)

// reservedMessageKeys are injected by every message schema regardless of
// the caller-supplied key set: `type` pins the dispatch key to a constant,
// `timestamp` and `api` are optional metadata fields added at enqueue time.
func reservedMessageKeys(msgType string) (map[string]Schema, map[string]bool) {
	return map[string]Schema{
			"type":      Const{Value: msgType},
			"timestamp": Int{},
			"api":       Text{},
		}, map[string]bool{
			"timestamp": true,
			"api":       true,
		}
}

// Message is a fixed-key map schema that additionally pins `type` to a
// constant identifier and injects the optional `timestamp`/`api` metadata
// keys every enqueued message carries (spec §3).
type Message struct {
	// Type is the message type identifier this schema is registered for.
	Type string

	// Keys lists the payload fields beyond type/timestamp/api.
	Keys map[string]Schema

	// Optional marks which of Keys may be absent.
	Optional map[string]bool
}

// Coerce implements Schema.
func (m Message) Coerce(v any) (any, error) {
	keys, optional := reservedMessageKeys(m.Type)
	for k, s := range m.Keys {
		keys[k] = s
	}
	for k, b := range m.Optional {
		optional[k] = b
	}
	return coerceKeyDict(v, keys, optional)
}

// Registry owns every registered message schema and validates/coerces
// inbound calls to Store.Add, per spec §4.2.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Message
}

// NewRegistry returns an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]Message)}
}

// AddSchema registers a message schema, indexed by its Type.
func (r *Registry) AddSchema(m Message) error {
	if m.Type == "" {
		return errors.New("schema: message schema must declare a type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[m.Type] = m
	return nil
}

// Coerce validates and coerces `msg` against the schema registered for its
// `type` field. The `api` field, when present, is metadata: it travels with
// the message but never gates whether the payload is otherwise valid.
func (r *Registry) Coerce(msg map[string]any) (map[string]any, error) {
	t, ok := msg["type"].(string)
	if !ok {
		return nil, invalid("message is missing a type field")
	}

	r.mu.RLock()
	m, ok := r.schemas[t]
	r.mu.RUnlock()
	if !ok {
		return nil, invalid("no schema registered for type: " + t)
	}

	out, err := m.Coerce(msg)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}
