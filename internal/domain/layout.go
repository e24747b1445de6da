package domain

// Kind identifies the wire shape of a layout field.
type Kind int

// Field kinds, in rough order of encoding complexity.
const (
	KindBool Kind = iota
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindU256
	KindAddress
	KindBytes  // length-prefixed raw bytes
	KindString // length-prefixed UTF-8
	KindVector // count-prefixed repetition of Elem
	KindOption // presence byte, then Elem if present
	KindStruct // concatenation of Fields in declared order
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindU128:
		return "u128"
	case KindU256:
		return "u256"
	case KindAddress:
		return "address"
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	case KindOption:
		return "option"
	case KindStruct:
		return "struct"
	}
	return "unknown"
}

// Type describes one field's wire type. Struct types are fully resolved:
// after layout resolution, Ref is informational only and Fields carries the
// inlined field list.
type Type struct {
	Kind   Kind
	Elem   *Type   // set for vector and option
	Ref    string  // original type tag for struct references
	Fields []Field // set for struct
}

// Field is a named slot in a struct layout. Declaration order is
// load-bearing: the encoder emits fields exactly in this order.
type Field struct {
	Name string
	Type Type
}

// Layout is the resolved, ordered field layout for a type tag.
type Layout struct {
	TypeTag string
	Fields  []Field
}
