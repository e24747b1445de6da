package bcs

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"

	"deepbook-sandbox/internal/domain"
)

// DecodeError reports a truncated or malformed byte stream.
type DecodeError struct {
	Path string
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Path, e.Msg)
}

func decodeErrf(path, format string, args ...any) error {
	return &DecodeError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// Decode is the inverse of Encode. Struct values come back as
// map[string]any; integers up to u64 as uint64, u128 as domain.U128, u256 as
// a decimal string, addresses as 0x-prefixed hex, options as nil or the
// inner value. Trailing bytes after the layout is consumed are an error.
func Decode(data []byte, layout *domain.Layout) (map[string]any, error) {
	st := domain.Type{Kind: domain.KindStruct, Ref: layout.TypeTag, Fields: layout.Fields}
	d := &decoder{buf: data}
	v, err := d.value(st, "$")
	if err != nil {
		return nil, err
	}
	if d.pos != len(data) {
		return nil, decodeErrf("$", "%d trailing bytes", len(data)-d.pos)
	}
	return v.(map[string]any), nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) take(n int, path string) ([]byte, error) {
	if len(d.buf)-d.pos < n {
		return nil, decodeErrf(path, "need %d bytes, have %d", n, len(d.buf)-d.pos)
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) uleb128(path string) (uint64, error) {
	var n uint64
	var shift uint
	for {
		if d.pos >= len(d.buf) {
			return 0, decodeErrf(path, "truncated length prefix")
		}
		b := d.buf[d.pos]
		d.pos++
		if shift == 63 && b > 1 {
			return 0, decodeErrf(path, "length prefix overflows u64")
		}
		n |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return n, nil
		}
		shift += 7
	}
}

func (d *decoder) value(t domain.Type, path string) (any, error) {
	switch t.Kind {
	case domain.KindBool:
		b, err := d.take(1, path)
		if err != nil {
			return nil, err
		}
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, decodeErrf(path, "invalid bool byte 0x%02x", b[0])

	case domain.KindU8:
		b, err := d.take(1, path)
		if err != nil {
			return nil, err
		}
		return uint64(b[0]), nil

	case domain.KindU16:
		b, err := d.take(2, path)
		if err != nil {
			return nil, err
		}
		return uint64(binary.LittleEndian.Uint16(b)), nil

	case domain.KindU32:
		b, err := d.take(4, path)
		if err != nil {
			return nil, err
		}
		return uint64(binary.LittleEndian.Uint32(b)), nil

	case domain.KindU64:
		b, err := d.take(8, path)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint64(b), nil

	case domain.KindU128:
		b, err := d.take(16, path)
		if err != nil {
			return nil, err
		}
		v, err := domain.U128FromLE(b)
		if err != nil {
			return nil, decodeErrf(path, "%v", err)
		}
		return v, nil

	case domain.KindU256:
		b, err := d.take(32, path)
		if err != nil {
			return nil, err
		}
		be := make([]byte, 32)
		for i := range b {
			be[31-i] = b[i]
		}
		return new(big.Int).SetBytes(be).String(), nil

	case domain.KindAddress:
		b, err := d.take(32, path)
		if err != nil {
			return nil, err
		}
		return "0x" + hex.EncodeToString(b), nil

	case domain.KindBytes:
		n, err := d.uleb128(path)
		if err != nil {
			return nil, err
		}
		b, err := d.take(int(n), path)
		if err != nil {
			return nil, err
		}
		out := make([]byte, n)
		copy(out, b)
		return out, nil

	case domain.KindString:
		n, err := d.uleb128(path)
		if err != nil {
			return nil, err
		}
		b, err := d.take(int(n), path)
		if err != nil {
			return nil, err
		}
		return string(b), nil

	case domain.KindVector:
		n, err := d.uleb128(path)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, n)
		for i := uint64(0); i < n; i++ {
			v, err := d.value(*t.Elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case domain.KindOption:
		b, err := d.take(1, path)
		if err != nil {
			return nil, err
		}
		switch b[0] {
		case 0:
			return nil, nil
		case 1:
			return d.value(*t.Elem, path)
		}
		return nil, decodeErrf(path, "invalid option byte 0x%02x", b[0])

	case domain.KindStruct:
		out := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			v, err := d.value(f.Type, path+"."+f.Name)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		return out, nil
	}
	return nil, decodeErrf(path, "unsupported kind %s", t.Kind)
}
