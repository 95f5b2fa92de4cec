// Package persist implements a small in-memory key/value tree with a
// dotted-path addressing scheme and an atomic on-disk flush, as described
// in spec §4.1. It backs the identity, message store, and registration
// state kept across broker restarts.
package persist

import (
	"os"
	"sync"

	"github.com/canonical/landscape-client-sub002/errors"
	"github.com/canonical/landscape-client-sub002/log"
	"github.com/canonical/landscape-client-sub002/wire"
)

// Store is the common interface implemented by both the root Tree and any
// namespace View obtained through RootAt.
type Store interface {
	// Get the value registered at `path`, or nil if absent.
	Get(path string) any

	// Set the value at `path`, creating intermediate maps as needed.
	Set(path string, value any)

	// Add appends `value` to the list found at `path` (creating it first
	// as an empty list if nothing was present).
	Add(path string, value any)

	// Remove deletes whatever is registered at `path`.
	Remove(path string)

	// RootAt returns a view of this store rooted at the given dotted
	// prefix, so a component's data lives in its own namespace and
	// cannot collide with another component's keys.
	RootAt(prefix string) Store

	// Save atomically flushes the entire tree (not just this view) to
	// its configured file.
	Save() error

	// Load reads the entire tree (not just this view) back from disk.
	Load() error
}

// Tree is the root persisted key/value store.
type Tree struct {
	mu   sync.Mutex
	path string
	data map[string]any
	log  log.Logger
}

// New returns a Tree that will be flushed to/read from `path`. `logger` may
// be nil, in which case a silent logger is used.
func New(path string, logger log.Logger) *Tree {
	if logger == nil {
		logger = log.Discard()
	}
	return &Tree{
		path: path,
		data: make(map[string]any),
		log:  logger.Sub(map[string]any{"component": "persist"}),
	}
}

// Get implements Store.
func (t *Tree) Get(path string) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, _ := getPath(t.data, splitPath(path))
	return v
}

// Set implements Store.
func (t *Tree) Set(path string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	setPath(t.data, splitPath(path), value)
}

// Add implements Store.
func (t *Tree) Add(path string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	addPath(t.data, splitPath(path), value)
}

// Remove implements Store.
func (t *Tree) Remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	removePath(t.data, splitPath(path))
}

// RootAt implements Store.
func (t *Tree) RootAt(prefix string) Store {
	return &view{root: t, prefix: prefix}
}

// Save implements Store: the whole tree is atomically flushed using a
// write-to-temp-then-rename sequence so a crash mid-write never leaves a
// half-written file visible.
func (t *Tree) Save() error {
	t.mu.Lock()
	snapshot := t.data
	t.mu.Unlock()

	buf, err := wire.Encode(snapshot)
	if err != nil {
		return errors.Wrap(err, "persist: failed to encode tree")
	}
	if err := WriteAtomic(t.path, buf); err != nil {
		return errors.Wrap(err, "persist: failed to save tree")
	}
	return nil
}

// Load implements Store. A missing file is not an error and leaves the tree
// unchanged. An unreadable file logs a warning and also leaves the tree
// unchanged; a corrupted file logs a warning and empties the tree. None of
// these is fatal.
func (t *Tree) Load() error {
	buf, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // fresh install, nothing to load yet
		}
		t.log.Warningf("failed to read persisted tree, starting empty: %v", err)
		return nil
	}

	v, err := wire.Decode(buf)
	if err != nil {
		t.log.Warningf("persisted tree is corrupt, starting empty: %v", err)
		t.mu.Lock()
		t.data = make(map[string]any)
		t.mu.Unlock()
		return nil
	}

	m, ok := v.(map[string]any)
	if !ok {
		t.log.Warning("persisted tree has unexpected shape, starting empty")
		m = make(map[string]any)
	}

	t.mu.Lock()
	t.data = m
	t.mu.Unlock()
	return nil
}

// view is a namespaced Store rooted at a dotted prefix of a Tree.
type view struct {
	root   *Tree
	prefix string
}

func (v *view) Get(path string) any         { return v.root.Get(joinPath(v.prefix, path)) }
func (v *view) Set(path string, value any)   { v.root.Set(joinPath(v.prefix, path), value) }
func (v *view) Add(path string, value any)   { v.root.Add(joinPath(v.prefix, path), value) }
func (v *view) Remove(path string)           { v.root.Remove(joinPath(v.prefix, path)) }
func (v *view) RootAt(prefix string) Store   { return &view{root: v.root, prefix: joinPath(v.prefix, prefix)} }
func (v *view) Save() error                  { return v.root.Save() }
func (v *view) Load() error                  { return v.root.Load() }
