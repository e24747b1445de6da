package bcs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepbook-sandbox/internal/domain"
)

func structLayout(fields ...domain.Field) *domain.Layout {
	return &domain.Layout{TypeTag: "0xtest::m::T", Fields: fields}
}

func field(name string, k domain.Kind) domain.Field {
	return domain.Field{Name: name, Type: domain.Type{Kind: k}}
}

func TestEncodeFixedWidthLittleEndian(t *testing.T) {
	l := structLayout(
		field("a", domain.KindU8),
		field("b", domain.KindU16),
		field("c", domain.KindU32),
		field("d", domain.KindU64),
	)
	out, err := Encode(json.RawMessage(`{"a":1,"b":258,"c":5,"d":"18446744073709551615"}`), l)
	require.NoError(t, err)

	want := []byte{
		0x01,
		0x02, 0x01,
		0x05, 0x00, 0x00, 0x00,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
	assert.Equal(t, want, out)
}

func TestEncodeU128FromDecimalString(t *testing.T) {
	l := structLayout(field("v", domain.KindU128))

	// 2^64 = hi 1, lo 0.
	out, err := Encode(json.RawMessage(`{"v":"18446744073709551616"}`), l)
	require.NoError(t, err)
	want := append(make([]byte, 8), 0x01)
	want = append(want, make([]byte, 7)...)
	assert.Equal(t, want, out)
}

func TestEncodeAddressLeftPads(t *testing.T) {
	l := structLayout(field("id", domain.KindAddress))

	out, err := Encode(json.RawMessage(`{"id":"0x2"}`), l)
	require.NoError(t, err)
	require.Len(t, out, 32)
	assert.Equal(t, byte(0x02), out[31])
	for _, b := range out[:31] {
		assert.Zero(t, b)
	}
}

func TestEncodeBytesForms(t *testing.T) {
	l := structLayout(field("raw", domain.KindBytes))

	hexOut, err := Encode(json.RawMessage(`{"raw":"0xdeadbeef"}`), l)
	require.NoError(t, err)
	arrOut, err := Encode(json.RawMessage(`{"raw":[222,173,190,239]}`), l)
	require.NoError(t, err)
	b64Out, err := Encode(json.RawMessage(`{"raw":"3q2+7w=="}`), l)
	require.NoError(t, err)

	want := []byte{0x04, 0xde, 0xad, 0xbe, 0xef}
	assert.Equal(t, want, hexOut)
	assert.Equal(t, want, arrOut)
	assert.Equal(t, want, b64Out)
}

func TestEncodeOptionAndVector(t *testing.T) {
	u64t := domain.Type{Kind: domain.KindU64}
	l := structLayout(
		domain.Field{Name: "opt", Type: domain.Type{Kind: domain.KindOption, Elem: &u64t}},
		domain.Field{Name: "vec", Type: domain.Type{Kind: domain.KindVector, Elem: &u64t}},
	)

	out, err := Encode(json.RawMessage(`{"opt":null,"vec":[1,2]}`), l)
	require.NoError(t, err)
	want := []byte{
		0x00, // option absent
		0x02, // vector count
		0x01, 0, 0, 0, 0, 0, 0, 0,
		0x02, 0, 0, 0, 0, 0, 0, 0,
	}
	assert.Equal(t, want, out)

	out, err = Encode(json.RawMessage(`{"opt":7,"vec":[]}`), l)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x07, 0, 0, 0, 0, 0, 0, 0, 0x00}, out)

	// On-chain option representation.
	out, err = Encode(json.RawMessage(`{"opt":{"vec":[7]},"vec":[]}`), l)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x07, 0, 0, 0, 0, 0, 0, 0, 0x00}, out)
}

func TestEncodeULEB128Boundary(t *testing.T) {
	assert.Equal(t, []byte{0x7f}, AppendULEB128(nil, 127))
	assert.Equal(t, []byte{0x80, 0x01}, AppendULEB128(nil, 128))
	assert.Equal(t, []byte{0xe5, 0x8e, 0x26}, AppendULEB128(nil, 624485))
}

func TestEncodeFieldOrderIsDeclarationOrder(t *testing.T) {
	a := structLayout(field("x", domain.KindU8), field("y", domain.KindU8))
	b := structLayout(field("y", domain.KindU8), field("x", domain.KindU8))
	payload := json.RawMessage(`{"x":1,"y":2}`)

	outA, err := Encode(payload, a)
	require.NoError(t, err)
	outB, err := Encode(payload, b)
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2}, outA)
	assert.Equal(t, []byte{2, 1}, outB)
}

func TestEncodeDeterministic(t *testing.T) {
	inner := domain.Type{Kind: domain.KindStruct, Fields: []domain.Field{
		field("flag", domain.KindBool),
		field("rate", domain.KindU64),
	}}
	l := structLayout(
		field("id", domain.KindAddress),
		field("key", domain.KindU128),
		domain.Field{Name: "price", Type: inner},
	)
	payload := json.RawMessage(`{"key":"42","price":{"rate":9,"flag":true},"id":"0xab"}`)

	first, err := Encode(payload, l)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Encode(payload, l)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEncodeMissingFieldError(t *testing.T) {
	l := structLayout(field("a", domain.KindU64), field("b", domain.KindU64))

	_, err := Encode(json.RawMessage(`{"a":1}`), l)
	require.Error(t, err)
	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "$.b", ee.Path)
}

func TestEncodeShapeMismatchError(t *testing.T) {
	u64t := domain.Type{Kind: domain.KindU64}
	l := structLayout(domain.Field{Name: "vec", Type: domain.Type{Kind: domain.KindVector, Elem: &u64t}})

	_, err := Encode(json.RawMessage(`{"vec":["nope"]}`), l)
	require.Error(t, err)
	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "$.vec[0]", ee.Path)
}

func TestDecodeRoundTrip(t *testing.T) {
	u64t := domain.Type{Kind: domain.KindU64}
	l := structLayout(
		field("id", domain.KindAddress),
		field("key", domain.KindU128),
		field("qty", domain.KindU64),
		field("deep", domain.KindBool),
		domain.Field{Name: "opt", Type: domain.Type{Kind: domain.KindOption, Elem: &u64t}},
		domain.Field{Name: "ticks", Type: domain.Type{Kind: domain.KindVector, Elem: &u64t}},
		field("note", domain.KindString),
	)
	payload := json.RawMessage(`{
		"id":"0xabc","key":"340282366920938463463374607431768211455",
		"qty":"77","deep":true,"opt":5,"ticks":[3,1],"note":"hi"
	}`)

	raw, err := Encode(payload, l)
	require.NoError(t, err)
	got, err := Decode(raw, l)
	require.NoError(t, err)

	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000abc", got["id"])
	assert.Equal(t, domain.U128{Hi: ^uint64(0), Lo: ^uint64(0)}, got["key"])
	assert.Equal(t, uint64(77), got["qty"])
	assert.Equal(t, true, got["deep"])
	assert.Equal(t, uint64(5), got["opt"])
	assert.Equal(t, []any{uint64(3), uint64(1)}, got["ticks"])
	assert.Equal(t, "hi", got["note"])
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	l := structLayout(field("a", domain.KindU8))

	_, err := Decode([]byte{1, 2}, l)
	require.Error(t, err)
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestDecodeTruncated(t *testing.T) {
	l := structLayout(field("a", domain.KindU64))

	_, err := Decode([]byte{1, 2, 3}, l)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "$.a", de.Path)
}
