package schema_test

import (
	"testing"

	"github.com/canonical/landscape-client-sub002/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageSchemaRequiredAndOptional(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.AddSchema(schema.Message{
		Type: "register",
		Keys: map[string]schema.Schema{
			"computer_title": schema.Text{},
			"account_name":   schema.Text{},
			"tags":           schema.List{Elem: schema.Text{}},
		},
		Optional: map[string]bool{"tags": true},
	}))

	out, err := reg.Coerce(map[string]any{
		"type":           "register",
		"computer_title": "rex",
		"account_name":   "acct",
	})
	require.NoError(t, err)
	assert.Equal(t, "register", out["type"])
	assert.Equal(t, "rex", out["computer_title"])
	assert.NotContains(t, out, "tags")
}

func TestMessageSchemaRejectsUnknownKeys(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.AddSchema(schema.Message{
		Type: "empty",
		Keys: map[string]schema.Schema{"n": schema.Int{}},
	}))
	_, err := reg.Coerce(map[string]any{"type": "empty", "n": int64(1), "extra": "nope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrInvalidSchema)
}

func TestMessageSchemaRejectsMissingRequiredKeys(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.AddSchema(schema.Message{
		Type: "register",
		Keys: map[string]schema.Schema{
			"computer_title": schema.Text{},
			"account_name":   schema.Text{},
		},
	}))
	_, err := reg.Coerce(map[string]any{"type": "register", "computer_title": "rex"})
	require.Error(t, err)
}

func TestMessageSchemaIgnoresAPIMetadata(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.AddSchema(schema.Message{Type: "empty"}))
	out, err := reg.Coerce(map[string]any{
		"type":      "empty",
		"timestamp": int64(100),
		"api":       "3.3",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 100, out["timestamp"])
	assert.Equal(t, "3.3", out["api"])
}

func TestUnregisteredType(t *testing.T) {
	reg := schema.NewRegistry()
	_, err := reg.Coerce(map[string]any{"type": "nope"})
	require.Error(t, err)
}

func TestBytesOrTextCoercion(t *testing.T) {
	s := schema.BytesOrText{Charset: "utf-8"}
	out, err := s.Coerce([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = s.Coerce("already text")
	require.NoError(t, err)
	assert.Equal(t, "already text", out)

	_, err = s.Coerce(42)
	require.Error(t, err)
}

func TestDictCoercion(t *testing.T) {
	d := schema.Dict{Key: schema.Text{}, Value: schema.Int{}}
	out, err := d.Coerce(map[string]any{"a": int64(1), "b": int64(2)})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.EqualValues(t, 1, m["a"])
	assert.EqualValues(t, 2, m["b"])
}

func TestTupleCoercion(t *testing.T) {
	tup := schema.Tuple{Elems: []schema.Schema{schema.Text{}, schema.Int{}}}
	out, err := tup.Coerce([]any{"name", int64(7)})
	require.NoError(t, err)
	assert.Equal(t, []any{"name", int64(7)}, out)

	_, err = tup.Coerce([]any{"name"})
	require.Error(t, err)
}
