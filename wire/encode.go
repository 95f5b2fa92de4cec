package wire

import (
	"sort"
	"strconv"

	"github.com/canonical/landscape-client-sub002/errors"
)

// Encode serializes a value using the grammar described in the package
// documentation. Supported input shapes: nil, bool, int/int32/int64,
// uint/uint64, float32/float64, string, []byte, []any or []string, and
// map[string]any or map[string]string. Any other type returns an error.
func Encode(v any) ([]byte, error) {
	var buf []byte
	buf, err := appendValue(buf, v)
	if err != nil {
		return nil, errors.Wrap(err, "wire: encode failed")
	}
	return buf, nil
}

func appendValue(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, 'n'), nil
	case bool:
		buf = append(buf, 'b')
		if val {
			return append(buf, '1'), nil
		}
		return append(buf, '0'), nil
	case int:
		return appendInt(buf, int64(val)), nil
	case int32:
		return appendInt(buf, int64(val)), nil
	case int64:
		return appendInt(buf, val), nil
	case uint:
		return appendInt(buf, int64(val)), nil
	case uint64:
		return appendInt(buf, int64(val)), nil
	case float32:
		return appendFloat(buf, float64(val)), nil
	case float64:
		return appendFloat(buf, val), nil
	case string:
		return appendText(buf, val), nil
	case []byte:
		return appendBytes(buf, val), nil
	case []any:
		return appendList(buf, val)
	case map[string]any:
		return appendMap(buf, val)
	default:
		return encodeReflective(buf, v)
	}
}

func appendInt(buf []byte, n int64) []byte {
	buf = append(buf, 'i')
	buf = strconv.AppendInt(buf, n, 10)
	return append(buf, ';')
}

func appendFloat(buf []byte, f float64) []byte {
	buf = append(buf, 'f')
	buf = strconv.AppendFloat(buf, f, 'g', -1, 64)
	return append(buf, ';')
}

func appendText(buf []byte, s string) []byte {
	buf = append(buf, 'u')
	buf = strconv.AppendInt(buf, int64(len(s)), 10)
	buf = append(buf, ':')
	return append(buf, s...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = append(buf, 's')
	buf = strconv.AppendInt(buf, int64(len(b)), 10)
	buf = append(buf, ':')
	return append(buf, b...)
}

func appendList(buf []byte, list []any) ([]byte, error) {
	buf = append(buf, 'l')
	buf = strconv.AppendInt(buf, int64(len(list)), 10)
	buf = append(buf, ';')
	var err error
	for _, el := range list {
		buf, err = appendValue(buf, el)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendMap(buf []byte, m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys) // stable, deterministic wire output

	buf = append(buf, 'd')
	buf = strconv.AppendInt(buf, int64(len(keys)), 10)
	buf = append(buf, ';')
	var err error
	for _, k := range keys {
		buf = appendText(buf, k)
		buf, err = appendValue(buf, m[k])
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// encodeReflective handles loosely-typed slices/maps (e.g. []string,
// map[string]string) that callers may pass in without first normalizing
// to []any/map[string]any.
func encodeReflective(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case []string:
		list := make([]any, len(val))
		for i, s := range val {
			list[i] = s
		}
		return appendList(buf, list)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return appendMap(buf, m)
	}
	return nil, errors.Errorf("wire: unsupported value type %T", v)
}
