package store

import (
	"crypto/md5" //nolint:gosec // digest is a drift-detection fingerprint, not a security boundary
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/canonical/landscape-client-sub002/errors"
	"github.com/canonical/landscape-client-sub002/log"
	"github.com/canonical/landscape-client-sub002/persist"
	"github.com/canonical/landscape-client-sub002/schema"
	"github.com/canonical/landscape-client-sub002/wire"
)

// Message is a coerced, self-describing record as accepted by Add and
// returned by GetPendingMessages. It always carries at least a "type" key.
type Message = map[string]any

// Store is the durable, append-only outbound message queue of spec §4.3.
// A single Store instance must own its baseDir; no locking is required
// between Store instances, only within one (the reactor serializes all
// calls into a Store anyway, but Store remains safe to use from more than
// one goroutine).
type Store struct {
	mu sync.Mutex

	tree       persist.Store
	registry   *schema.Registry
	log        log.Logger
	defaultAPI string

	baseDir    string
	bucketSize int64

	ids    []int64
	nextID int64
}

// Open loads (or creates) a message store rooted at baseDir, with metadata
// kept in tree (already root_at'd to this component's namespace by the
// caller). defaultAPI is used for payload.server-api when no pending
// message carries one.
func Open(baseDir string, tree persist.Store, registry *schema.Registry, defaultAPI string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "store: failed to create message directory")
	}

	ids, err := scanIDs(baseDir)
	if err != nil {
		return nil, errors.Wrap(err, "store: failed to scan message directory")
	}

	var nextID int64
	if len(ids) > 0 {
		nextID = ids[len(ids)-1] + 1
	}

	s := &Store{
		tree:       tree,
		registry:   registry,
		log:        logger.Sub(log.Fields{"component": "store"}),
		defaultAPI: defaultAPI,
		baseDir:    baseDir,
		bucketSize: defaultBucketSize,
		ids:        ids,
		nextID:     nextID,
	}

	return s, nil
}

// --- accepted types -------------------------------------------------------

// SetAcceptedTypes replaces the accepted-types set. Idempotent: calling it
// twice with the same set is a no-op on the persisted tree. Hold bits are
// never stored; GetPendingMessages recomputes held-ness from this set on
// every call, so a type simply rejoins the pending stream the moment it
// reappears here.
func (s *Store) SetAcceptedTypes(types []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]string(nil), types...)
	sort.Strings(sorted)

	anyTypes := make([]any, len(sorted))
	for i, t := range sorted {
		anyTypes[i] = t
	}
	s.tree.Set("accepted_types", anyTypes)
}

// GetAcceptedTypes returns the currently accepted message types.
func (s *Store) GetAcceptedTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptedTypesLocked()
}

func (s *Store) acceptedTypesLocked() []string {
	raw, _ := s.tree.Get("accepted_types").([]any)
	types := make([]string, 0, len(raw))
	for _, v := range raw {
		if t, ok := v.(string); ok {
			types = append(types, t)
		}
	}
	return types
}

// Accepts reports whether msgType is currently in the accepted-types set.
func (s *Store) Accepts(msgType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return acceptedSet(s.acceptedTypesLocked())[msgType]
}

func acceptedSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// GetAcceptedTypesDigest returns the MD5 of the semicolon-joined, sorted
// accepted-types list, as sent in payload.accepted-types every exchange.
func (s *Store) GetAcceptedTypesDigest() [16]byte {
	types := s.GetAcceptedTypes()
	sorted := append([]string(nil), types...)
	sort.Strings(sorted)
	return md5.Sum([]byte(strings.Join(sorted, ";")))
}

// --- add / read ------------------------------------------------------------

// Add coerces message against its registered schema, assigns it a stable
// integer id plus timestamp/api defaults, and writes it to disk. It returns
// ErrInvalidSchema (via the registry) without any state change on failure.
func (s *Store) Add(message map[string]any) (int64, error) {
	coerced, err := s.registry.Coerce(message)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := coerced["timestamp"]; !ok {
		coerced["timestamp"] = time.Now().Unix()
	}
	if _, ok := coerced["api"]; !ok {
		coerced["api"] = s.getAPILocked()
	}

	id := s.nextID
	s.nextID++

	buf, err := wire.Encode(coerced)
	if err != nil {
		s.nextID--
		return 0, errors.Wrap(err, "store: failed to encode message")
	}
	if err := persist.WriteAtomic(s.messagePath(id), buf); err != nil {
		s.nextID--
		return 0, errors.Wrap(err, "store: failed to write message")
	}

	s.ids = append(s.ids, id)
	return id, nil
}

// GetPendingMessages returns the next max non-held messages at or past
// pending_offset, ordered by id, further restricted to messages sharing the
// api of the first returned message (spec §4.4 tie-break). max<=0 means
// unbounded.
func (s *Store) GetPendingMessages(max int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := acceptedSet(s.acceptedTypesLocked())
	offset := s.pendingOffsetLocked()

	var (
		out      []Message
		firstAPI string
		haveAPI  bool
	)
	for _, id := range s.candidates(offset) {
		if max > 0 && len(out) >= max {
			break
		}
		msg, ok := s.load(id)
		if !ok {
			continue
		}
		if t, _ := msg["type"].(string); !accepted[t] {
			continue
		}
		api, _ := msg["api"].(string)
		if !haveAPI {
			firstAPI, haveAPI = api, true
		} else if api != firstAPI {
			break
		}
		out = append(out, msg)
	}
	return out
}

// candidates returns the ids at or past offset, without mutating state.
func (s *Store) candidates(offset int) []int64 {
	if offset >= len(s.ids) {
		return nil
	}
	return s.ids[offset:]
}

// load reads and decodes a message, treating a corrupt or missing file as
// absent: the failure is logged and the caller moves on (spec §3, §4.3).
func (s *Store) load(id int64) (Message, bool) {
	buf, err := os.ReadFile(s.messagePath(id))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warningf("invalid message file %d: %v", id, err)
		}
		return nil, false
	}
	v, err := wire.Decode(buf)
	if err != nil {
		s.log.Warningf("invalid message file %d: %v", id, err)
		return nil, false
	}
	msg, ok := v.(map[string]any)
	if !ok {
		s.log.Warningf("invalid message file %d: unexpected shape", id)
		return nil, false
	}
	return msg, true
}

// CountPendingMessages counts every non-held message at or past
// pending_offset, independent of any max or api-split restriction.
func (s *Store) CountPendingMessages() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := acceptedSet(s.acceptedTypesLocked())
	offset := s.pendingOffsetLocked()

	count := 0
	for _, id := range s.candidates(offset) {
		msg, ok := s.load(id)
		if !ok {
			continue
		}
		if t, _ := msg["type"].(string); accepted[t] {
			count++
		}
	}
	return count
}

// IsPending reports whether id is currently at or past pending_offset and
// of an accepted type.
func (s *Store) IsPending(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := s.pendingOffsetLocked()
	pos := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	if pos >= len(s.ids) || s.ids[pos] != id || pos < offset {
		return false
	}
	msg, ok := s.load(id)
	if !ok {
		return false
	}
	accepted := acceptedSet(s.acceptedTypesLocked())
	t, _ := msg["type"].(string)
	return accepted[t]
}

// --- cursors ----------------------------------------------------------------

func (s *Store) pendingOffset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingOffsetLocked()
}

func (s *Store) pendingOffsetLocked() int {
	n, _ := s.tree.Get("pending_offset").(int64)
	if int(n) > len(s.ids) {
		return len(s.ids)
	}
	if n < 0 {
		return 0
	}
	return int(n)
}

// AddPendingOffset advances pending_offset by n, clamped to the number of
// on-disk messages.
func (s *Store) AddPendingOffset(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPendingOffsetLocked(s.pendingOffsetLocked() + n)
}

// SetPendingOffset sets pending_offset directly (used on resync/rewind).
func (s *Store) SetPendingOffset(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPendingOffsetLocked(n)
}

func (s *Store) setPendingOffsetLocked(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(s.ids) {
		n = len(s.ids)
	}
	s.tree.Set("pending_offset", int64(n))
}

func (s *Store) GetPendingOffset() int {
	return s.pendingOffset()
}

func (s *Store) GetSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.tree.Get("sequence").(int64)
	return n
}

func (s *Store) SetSequence(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Set("sequence", n)
}

// GetAPI returns the current client-side schema version new messages are
// stamped with when they don't specify one, overridable for test/replay.
func (s *Store) GetAPI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAPILocked()
}

func (s *Store) getAPILocked() string {
	if api, ok := s.tree.Get("api").(string); ok && api != "" {
		return api
	}
	return s.defaultAPI
}

// SetAPI overrides the client-side schema version.
func (s *Store) SetAPI(api string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Set("api", api)
}

func (s *Store) GetServerSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.tree.Get("server_sequence").(int64)
	return n
}

func (s *Store) SetServerSequence(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Set("server_sequence", n)
}

// --- housekeeping ------------------------------------------------------------

// DeleteAllMessages wipes every on-disk message and resets pending_offset
// to zero. Used on re-registration, when the server treats us as a clean
// slate.
func (s *Store) DeleteAllMessages() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.ids {
		path := s.messagePath(id)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "store: failed to delete message")
		}
		removeIfEmpty(filepath.Dir(path))
	}
	s.ids = nil
	s.tree.Set("pending_offset", int64(0))
	return nil
}

// DeleteOldMessages removes every message strictly below pending_offset
// (already sent and acknowledged); held messages, which always sit at or
// past the offset, are never touched. The offset is then rebased to zero
// against the remaining list.
func (s *Store) DeleteOldMessages() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := s.pendingOffsetLocked()
	for _, id := range s.ids[:offset] {
		path := s.messagePath(id)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "store: failed to delete old message")
		}
		removeIfEmpty(filepath.Dir(path))
	}
	s.ids = append([]int64(nil), s.ids[offset:]...)
	s.tree.Set("pending_offset", int64(0))
	return nil
}

// Commit persists the store's metadata (sequence, offsets, accepted types)
// by delegating to the underlying Persist tree.
func (s *Store) Commit() error {
	return s.tree.Save()
}

