// Package bcs implements the canonical binary object serialization used by
// the ledger: little-endian fixed-width integers, ULEB128 length and count
// prefixes, a presence byte for options and declaration-order struct
// concatenation.
package bcs

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"deepbook-sandbox/internal/domain"
)

// EncodeError reports a shape mismatch at a specific field path.
type EncodeError struct {
	Path string
	Msg  string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %s", e.Path, e.Msg)
}

func encodeErrf(path, format string, args ...any) error {
	return &EncodeError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// Encode serializes a JSON payload against a resolved layout. Fields are
// emitted exactly in declaration order; the output is a pure function of
// (payload, layout).
func Encode(payload json.RawMessage, layout *domain.Layout) ([]byte, error) {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, encodeErrf("$", "invalid json: %v", err)
	}
	st := domain.Type{Kind: domain.KindStruct, Ref: layout.TypeTag, Fields: layout.Fields}
	return encodeValue(nil, v, st, "$")
}

func encodeValue(buf []byte, v any, t domain.Type, path string) ([]byte, error) {
	switch t.Kind {
	case domain.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, encodeErrf(path, "want bool, got %T", v)
		}
		if b {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil

	case domain.KindU8, domain.KindU16, domain.KindU32, domain.KindU64:
		n, err := asUint64(v)
		if err != nil {
			return nil, encodeErrf(path, "%v", err)
		}
		return appendUint(buf, n, t.Kind, path)

	case domain.KindU128, domain.KindU256:
		return appendBigUint(buf, v, t.Kind, path)

	case domain.KindAddress:
		s, ok := v.(string)
		if !ok {
			return nil, encodeErrf(path, "want address string, got %T", v)
		}
		addr, err := parseAddress(s)
		if err != nil {
			return nil, encodeErrf(path, "%v", err)
		}
		return append(buf, addr...), nil

	case domain.KindBytes:
		raw, err := asBytes(v)
		if err != nil {
			return nil, encodeErrf(path, "%v", err)
		}
		buf = AppendULEB128(buf, uint64(len(raw)))
		return append(buf, raw...), nil

	case domain.KindString:
		s, ok := v.(string)
		if !ok {
			return nil, encodeErrf(path, "want string, got %T", v)
		}
		buf = AppendULEB128(buf, uint64(len(s)))
		return append(buf, s...), nil

	case domain.KindVector:
		arr, ok := v.([]any)
		if !ok {
			return nil, encodeErrf(path, "want array, got %T", v)
		}
		buf = AppendULEB128(buf, uint64(len(arr)))
		for i, elem := range arr {
			var err error
			buf, err = encodeValue(buf, elem, *t.Elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
		}
		return buf, nil

	case domain.KindOption:
		if v == nil {
			return append(buf, 0), nil
		}
		// Exported options sometimes arrive as {"vec": [..]} mirroring the
		// on-chain representation.
		if m, ok := v.(map[string]any); ok {
			if vec, ok := m["vec"].([]any); ok {
				if len(vec) == 0 {
					return append(buf, 0), nil
				}
				v = vec[0]
			}
		}
		buf = append(buf, 1)
		return encodeValue(buf, v, *t.Elem, path)

	case domain.KindStruct:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, encodeErrf(path, "want object, got %T", v)
		}
		// Exported UID fields nest the address as {"id": "0x.."}.
		for _, f := range t.Fields {
			fv, present := m[f.Name]
			if !present {
				return nil, encodeErrf(path+"."+f.Name, "missing field")
			}
			if f.Type.Kind == domain.KindAddress {
				fv = unwrapID(fv)
			}
			var err error
			buf, err = encodeValue(buf, fv, f.Type, path+"."+f.Name)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	}
	return nil, encodeErrf(path, "unsupported kind %s", t.Kind)
}

// unwrapID peels {"id": x} and {"id": {"id": x}} wrappers around addresses.
func unwrapID(v any) any {
	for i := 0; i < 2; i++ {
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		inner, ok := m["id"]
		if !ok {
			return v
		}
		v = inner
	}
	return v
}

func appendUint(buf []byte, n uint64, k domain.Kind, path string) ([]byte, error) {
	switch k {
	case domain.KindU8:
		if n > 0xff {
			return nil, encodeErrf(path, "%d overflows u8", n)
		}
		return append(buf, byte(n)), nil
	case domain.KindU16:
		if n > 0xffff {
			return nil, encodeErrf(path, "%d overflows u16", n)
		}
		return binary.LittleEndian.AppendUint16(buf, uint16(n)), nil
	case domain.KindU32:
		if n > 0xffffffff {
			return nil, encodeErrf(path, "%d overflows u32", n)
		}
		return binary.LittleEndian.AppendUint32(buf, uint32(n)), nil
	default:
		return binary.LittleEndian.AppendUint64(buf, n), nil
	}
}

func appendBigUint(buf []byte, v any, k domain.Kind, path string) ([]byte, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case json.Number:
		s = x.String()
	default:
		return nil, encodeErrf(path, "want decimal string, got %T", v)
	}
	width := 16
	if k == domain.KindU256 {
		width = 32
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > width*8 {
		return nil, encodeErrf(path, "invalid %s %q", k, s)
	}
	le := make([]byte, width)
	n.FillBytes(le)
	// FillBytes is big-endian; the wire is little-endian.
	for i, j := 0, len(le)-1; i < j; i, j = i+1, j-1 {
		le[i], le[j] = le[j], le[i]
	}
	return append(buf, le...), nil
}

func asUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case json.Number:
		n, ok := new(big.Int).SetString(x.String(), 10)
		if !ok || n.Sign() < 0 || n.BitLen() > 64 {
			return 0, fmt.Errorf("invalid unsigned integer %q", x.String())
		}
		return n.Uint64(), nil
	case string:
		n, ok := new(big.Int).SetString(x, 10)
		if !ok || n.Sign() < 0 || n.BitLen() > 64 {
			return 0, fmt.Errorf("invalid unsigned integer %q", x)
		}
		return n.Uint64(), nil
	}
	return 0, fmt.Errorf("want unsigned integer, got %T", v)
}

// asBytes accepts 0x-hex strings, base64 strings and JSON byte arrays.
func asBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case string:
		if strings.HasPrefix(x, "0x") || strings.HasPrefix(x, "0X") {
			h := x[2:]
			if len(h)%2 == 1 {
				h = "0" + h
			}
			raw, err := hex.DecodeString(h)
			if err != nil {
				return nil, fmt.Errorf("invalid hex bytes: %v", err)
			}
			return raw, nil
		}
		raw, err := base64.StdEncoding.DecodeString(x)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 bytes: %v", err)
		}
		return raw, nil
	case []any:
		raw := make([]byte, len(x))
		for i, e := range x {
			n, err := asUint64(e)
			if err != nil || n > 0xff {
				return nil, fmt.Errorf("byte array element %d out of range", i)
			}
			raw[i] = byte(n)
		}
		return raw, nil
	}
	return nil, fmt.Errorf("want bytes as hex, base64 or array, got %T", v)
}

// parseAddress decodes a hex address, left-padding to 32 bytes.
func parseAddress(s string) ([]byte, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if h == "" || len(h) > 64 {
		return nil, fmt.Errorf("invalid address %q", s)
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %v", s, err)
	}
	out := make([]byte, 32)
	copy(out[32-len(raw):], raw)
	return out, nil
}

// AppendULEB128 appends the unsigned LEB128 encoding of n.
func AppendULEB128(buf []byte, n uint64) []byte {
	for n >= 0x80 {
		buf = append(buf, byte(n)|0x80)
		n >>= 7
	}
	return append(buf, byte(n))
}
