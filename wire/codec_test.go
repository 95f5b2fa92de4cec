package wire_test

import (
	"math/rand"
	"testing"

	"github.com/canonical/landscape-client-sub002/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripScalars(t *testing.T) {
	cases := []any{
		nil,
		true,
		false,
		int64(0),
		int64(-42),
		int64(1 << 40),
		3.14159,
		"",
		"hello, world",
		"utf-8: ñé€",
		[]byte{0x00, 0x01, 0xff, 'a', 'b'},
	}
	for _, c := range cases {
		enc, err := wire.Encode(c)
		require.NoError(t, err)
		dec, err := wire.Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, c, dec)
	}
}

func TestRoundTripCompound(t *testing.T) {
	in := map[string]any{
		"type":      "register",
		"timestamp": int64(123456),
		"tags":      []any{"a", "b", "c"},
		"nested": map[string]any{
			"ok":    true,
			"ratio": 0.5,
		},
		"empty-list": []any{},
		"missing":    nil,
	}
	enc, err := wire.Encode(in)
	require.NoError(t, err)
	dec, err := wire.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, in, dec)
}

func TestDecodeCorruption(t *testing.T) {
	_, err := wire.Decode([]byte("garbage"))
	require.Error(t, err)

	valid, err := wire.Encode(map[string]any{"a": int64(1)})
	require.NoError(t, err)
	truncated := valid[:len(valid)-2]
	_, err = wire.Decode(truncated)
	require.Error(t, err)
}

func TestRoundTripRandomGrids(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		v := randomValue(rng, 3)
		enc, err := wire.Encode(v)
		require.NoError(t, err)
		dec, err := wire.Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, v, dec)
	}
}

func randomValue(rng *rand.Rand, depth int) any {
	if depth == 0 {
		return randomScalar(rng)
	}
	switch rng.Intn(7) {
	case 0, 1:
		return randomScalar(rng)
	case 2:
		n := rng.Intn(4)
		list := make([]any, n)
		for i := range list {
			list[i] = randomValue(rng, depth-1)
		}
		return list
	default:
		n := rng.Intn(4)
		m := make(map[string]any, n)
		for i := 0; i < n; i++ {
			m[randomKey(rng)] = randomValue(rng, depth-1)
		}
		return m
	}
}

func randomScalar(rng *rand.Rand) any {
	switch rng.Intn(5) {
	case 0:
		return nil
	case 1:
		return rng.Intn(2) == 1
	case 2:
		return int64(rng.Intn(100000) - 50000)
	case 3:
		return rng.Float64()
	default:
		return randomKey(rng)
	}
}

func randomKey(rng *rand.Rand) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	n := rng.Intn(8) + 1
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}
