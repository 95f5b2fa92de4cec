package wire

import (
	"strconv"

	"github.com/canonical/landscape-client-sub002/errors"
)

// ErrCorrupt indicates the input bytes do not follow the wire grammar.
// The store and persist packages treat it as a corruption error: the
// offending record is skipped/discarded, never a fatal condition.
var ErrCorrupt = errors.New("wire: corrupt or truncated data")

// Decode parses a single value out of `data`, which must contain exactly
// one encoded value (trailing bytes are treated as corruption).
func Decode(data []byte) (any, error) {
	d := &decoder{buf: data}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.buf) {
		return nil, errors.Wrap(ErrCorrupt, "trailing bytes after value")
	}
	return v, nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) value() (any, error) {
	if d.pos >= len(d.buf) {
		return nil, errors.Wrap(ErrCorrupt, "unexpected end of input")
	}
	tag := d.buf[d.pos]
	d.pos++
	switch tag {
	case 'n':
		return nil, nil
	case 'b':
		return d.readBool()
	case 'i':
		return d.readInt()
	case 'f':
		return d.readFloat()
	case 'u':
		return d.readText()
	case 's':
		return d.readBytes()
	case 'l':
		return d.readList()
	case 'd':
		return d.readMap()
	default:
		return nil, errors.Wrapf(ErrCorrupt, "unknown tag %q", tag)
	}
}

func (d *decoder) readBool() (any, error) {
	if d.pos >= len(d.buf) {
		return nil, errors.Wrap(ErrCorrupt, "truncated bool")
	}
	c := d.buf[d.pos]
	d.pos++
	switch c {
	case '0':
		return false, nil
	case '1':
		return true, nil
	default:
		return nil, errors.Wrapf(ErrCorrupt, "invalid bool marker %q", c)
	}
}

// readUntil scans forward from the current position until `delim` is
// found, returning the bytes in between (exclusive of the delimiter) and
// advancing past it.
func (d *decoder) readUntil(delim byte) ([]byte, error) {
	start := d.pos
	for d.pos < len(d.buf) {
		if d.buf[d.pos] == delim {
			tok := d.buf[start:d.pos]
			d.pos++
			return tok, nil
		}
		d.pos++
	}
	return nil, errors.Wrap(ErrCorrupt, "missing delimiter")
}

func (d *decoder) readInt() (any, error) {
	tok, err := d.readUntil(';')
	if err != nil {
		return nil, errors.Wrap(err, "truncated int")
	}
	n, err := strconv.ParseInt(string(tok), 10, 64)
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, "invalid int literal")
	}
	return n, nil
}

func (d *decoder) readFloat() (any, error) {
	tok, err := d.readUntil(';')
	if err != nil {
		return nil, errors.Wrap(err, "truncated float")
	}
	f, err := strconv.ParseFloat(string(tok), 64)
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, "invalid float literal")
	}
	return f, nil
}

func (d *decoder) readLength() (int, error) {
	tok, err := d.readUntil(':')
	if err != nil {
		return 0, errors.Wrap(err, "truncated length prefix")
	}
	n, err := strconv.Atoi(string(tok))
	if err != nil || n < 0 {
		return 0, errors.Wrap(ErrCorrupt, "invalid length prefix")
	}
	return n, nil
}

func (d *decoder) readCount() (int, error) {
	tok, err := d.readUntil(';')
	if err != nil {
		return 0, errors.Wrap(err, "truncated count prefix")
	}
	n, err := strconv.Atoi(string(tok))
	if err != nil || n < 0 {
		return 0, errors.Wrap(ErrCorrupt, "invalid count prefix")
	}
	return n, nil
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.buf) {
		return nil, errors.Wrap(ErrCorrupt, "truncated payload")
	}
	tok := d.buf[d.pos : d.pos+n]
	d.pos += n
	return tok, nil
}

func (d *decoder) readText() (any, error) {
	n, err := d.readLength()
	if err != nil {
		return nil, err
	}
	tok, err := d.take(n)
	if err != nil {
		return nil, err
	}
	return string(tok), nil
}

func (d *decoder) readBytes() (any, error) {
	n, err := d.readLength()
	if err != nil {
		return nil, err
	}
	tok, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(tok))
	copy(out, tok)
	return out, nil
}

func (d *decoder) readList() (any, error) {
	n, err := d.readCount()
	if err != nil {
		return nil, err
	}
	list := make([]any, 0, n)
	for i := 0; i < n; i++ {
		el, err := d.value()
		if err != nil {
			return nil, err
		}
		list = append(list, el)
	}
	return list, nil
}

func (d *decoder) readMap() (any, error) {
	n, err := d.readCount()
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		key, err := d.value()
		if err != nil {
			return nil, err
		}
		ks, ok := key.(string)
		if !ok {
			return nil, errors.Wrap(ErrCorrupt, "map key is not text")
		}
		val, err := d.value()
		if err != nil {
			return nil, err
		}
		m[ks] = val
	}
	return m, nil
}
