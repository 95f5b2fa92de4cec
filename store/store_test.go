package store_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/canonical/landscape-client-sub002/persist"
	"github.com/canonical/landscape-client-sub002/schema"
	"github.com/canonical/landscape-client-sub002/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*store.Store, persist.Store) {
	t.Helper()
	tree := persist.New(filepath.Join(t.TempDir(), "broker.tree"), nil)
	view := tree.RootAt("store")

	reg := schema.NewRegistry()
	require.NoError(t, reg.AddSchema(schema.Message{
		Type:     "empty",
		Keys:     map[string]schema.Schema{"n": schema.Int{}},
		Optional: map[string]bool{"n": true},
	}))
	require.NoError(t, reg.AddSchema(schema.Message{
		Type:     "X",
		Keys:     map[string]schema.Schema{"n": schema.Int{}},
		Optional: map[string]bool{"n": true},
	}))

	s, err := store.Open(filepath.Join(t.TempDir(), "messages"), view, reg, "3.3", nil)
	require.NoError(t, err)
	return s, view
}

func TestAddThenGetPendingMessagesReturnsItOnce(t *testing.T) {
	s, _ := newStore(t)
	s.SetAcceptedTypes([]string{"empty"})

	id, err := s.Add(map[string]any{"type": "empty"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, id, int64(0))

	msgs := s.GetPendingMessages(0)
	require.Len(t, msgs, 1)
	assert.Equal(t, "empty", msgs[0]["type"])
	assert.NotNil(t, msgs[0]["timestamp"])
	assert.Equal(t, "3.3", msgs[0]["api"])

	// a second read still returns it; only advancing pending_offset retires it.
	assert.Len(t, s.GetPendingMessages(0), 1)
}

func TestUnacceptedTypeIsHeldUntilAccepted(t *testing.T) {
	s, _ := newStore(t)

	_, err := s.Add(map[string]any{"type": "X"})
	require.NoError(t, err)
	assert.Empty(t, s.GetPendingMessages(0))

	s.SetAcceptedTypes([]string{"X"})
	msgs := s.GetPendingMessages(0)
	require.Len(t, msgs, 1)
	assert.Equal(t, "X", msgs[0]["type"])
}

func TestPartialAcceptAdvancesOffsetByPrefix(t *testing.T) {
	s, _ := newStore(t)
	s.SetAcceptedTypes([]string{"empty"})

	for i := 0; i < 5; i++ {
		_, err := s.Add(map[string]any{"type": "empty"})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, s.CountPendingMessages())

	s.AddPendingOffset(3)
	assert.Equal(t, 2, s.CountPendingMessages())
	assert.Len(t, s.GetPendingMessages(0), 2)
}

func TestDeleteOldMessagesRemovesAcknowledgedFilesOnly(t *testing.T) {
	s, _ := newStore(t)
	s.SetAcceptedTypes([]string{"empty"})

	ids := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := s.Add(map[string]any{"type": "empty"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	s.AddPendingOffset(2)
	require.NoError(t, s.DeleteOldMessages())

	assert.False(t, s.IsPending(ids[0]))
	assert.False(t, s.IsPending(ids[1]))
	assert.True(t, s.IsPending(ids[2]))
	assert.Equal(t, 1, s.CountPendingMessages())
}

func TestCorruptMessageFileIsSkipped(t *testing.T) {
	dataDir := t.TempDir()
	tree := persist.New(filepath.Join(t.TempDir(), "broker.tree"), nil)
	view := tree.RootAt("store")

	reg := schema.NewRegistry()
	require.NoError(t, reg.AddSchema(schema.Message{Type: "empty"}))

	s, err := store.Open(dataDir, view, reg, "3.3", nil)
	require.NoError(t, err)
	s.SetAcceptedTypes([]string{"empty"})

	first, err := s.Add(map[string]any{"type": "empty"})
	require.NoError(t, err)
	_, err = s.Add(map[string]any{"type": "empty"})
	require.NoError(t, err)

	// corrupt the on-disk file for the first message directly.
	path := filepath.Join(dataDir, "0", strconv.FormatInt(first, 10))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	msgs := s.GetPendingMessages(0)
	require.Len(t, msgs, 1)
}

func TestSetAcceptedTypesIdempotent(t *testing.T) {
	s, view := newStore(t)
	s.SetAcceptedTypes([]string{"empty", "X"})
	before := view.Get("accepted_types")
	s.SetAcceptedTypes([]string{"empty", "X"})
	after := view.Get("accepted_types")
	assert.Equal(t, before, after)
}

func TestAcceptedTypesDigestIsOrderIndependent(t *testing.T) {
	s, _ := newStore(t)
	s.SetAcceptedTypes([]string{"X", "empty"})
	d1 := s.GetAcceptedTypesDigest()
	s.SetAcceptedTypes([]string{"empty", "X"})
	d2 := s.GetAcceptedTypesDigest()
	assert.Equal(t, d1, d2)
}
