// Package layout resolves fully-qualified type tags into ordered binary
// field layouts. Resolution is backed by a pluggable definition source and
// memoized per tag, since many pages of a collection share one layout.
package layout

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"deepbook-sandbox/internal/domain"
)

var (
	// ErrUnknownType means the source has no definition for a tag.
	ErrUnknownType = errors.New("unknown type")
	// ErrCyclicType means struct definitions reference each other. Ledger
	// type graphs are acyclic, so hitting this indicates a corrupt source.
	ErrCyclicType = errors.New("cyclic type definition")
)

// Definition is an unresolved struct definition as a source provides it.
// Field types are type tag strings; generic parameters appear as "T0".."Tn"
// and are substituted with the instantiation's type arguments.
type Definition struct {
	TypeParams int
	Fields     []FieldDef
}

// FieldDef is one named field of a definition.
type FieldDef struct {
	Name string
	Type string
}

// Source supplies struct definitions by base tag (the tag with any generic
// arguments stripped).
type Source interface {
	Definition(baseTag string) (Definition, error)
}

// Resolver turns type tags into domain.Layout values.
type Resolver struct {
	src Source

	mu    sync.Mutex
	cache map[string]*domain.Layout
}

// NewResolver creates a resolver over the given definition source.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src, cache: make(map[string]*domain.Layout)}
}

// Resolve returns the fully inlined layout for a type tag. Nested struct
// references are resolved transitively; the result is cached for the
// process lifetime.
func (r *Resolver) Resolve(typeTag string) (*domain.Layout, error) {
	tag := strings.TrimSpace(typeTag)

	r.mu.Lock()
	if l, ok := r.cache[tag]; ok {
		r.mu.Unlock()
		return l, nil
	}
	r.mu.Unlock()

	t, err := r.typeOf(tag, map[string]bool{})
	if err != nil {
		return nil, err
	}
	if t.Kind != domain.KindStruct {
		return nil, fmt.Errorf("%w: %s is not a struct tag", ErrUnknownType, tag)
	}
	l := &domain.Layout{TypeTag: tag, Fields: t.Fields}

	r.mu.Lock()
	r.cache[tag] = l
	r.mu.Unlock()
	return l, nil
}

// typeOf resolves one tag into a wire type. resolving holds the struct tags
// currently on the resolution stack for cycle detection.
func (r *Resolver) typeOf(tag string, resolving map[string]bool) (domain.Type, error) {
	switch tag {
	case "bool":
		return domain.Type{Kind: domain.KindBool}, nil
	case "u8":
		return domain.Type{Kind: domain.KindU8}, nil
	case "u16":
		return domain.Type{Kind: domain.KindU16}, nil
	case "u32":
		return domain.Type{Kind: domain.KindU32}, nil
	case "u64":
		return domain.Type{Kind: domain.KindU64}, nil
	case "u128":
		return domain.Type{Kind: domain.KindU128}, nil
	case "u256":
		return domain.Type{Kind: domain.KindU256}, nil
	case "address":
		return domain.Type{Kind: domain.KindAddress}, nil
	}

	base, args, err := splitTag(tag)
	if err != nil {
		return domain.Type{}, err
	}

	// Well-known framework types with fixed wire shapes.
	switch {
	case base == "vector":
		if len(args) != 1 {
			return domain.Type{}, fmt.Errorf("%w: vector needs one argument in %q", ErrUnknownType, tag)
		}
		if args[0] == "u8" {
			return domain.Type{Kind: domain.KindBytes}, nil
		}
		elem, err := r.typeOf(args[0], resolving)
		if err != nil {
			return domain.Type{}, err
		}
		return domain.Type{Kind: domain.KindVector, Elem: &elem}, nil
	case isFrameworkTag(base, "option", "Option"):
		if len(args) != 1 {
			return domain.Type{}, fmt.Errorf("%w: option needs one argument in %q", ErrUnknownType, tag)
		}
		elem, err := r.typeOf(args[0], resolving)
		if err != nil {
			return domain.Type{}, err
		}
		return domain.Type{Kind: domain.KindOption, Elem: &elem}, nil
	case isFrameworkTag(base, "string", "String"), isFrameworkTag(base, "ascii", "String"):
		return domain.Type{Kind: domain.KindString}, nil
	case isFrameworkTag(base, "object", "UID"), isFrameworkTag(base, "object", "ID"):
		return domain.Type{Kind: domain.KindAddress}, nil
	}

	if resolving[tag] {
		return domain.Type{}, fmt.Errorf("%w: %s", ErrCyclicType, tag)
	}
	resolving[tag] = true
	defer delete(resolving, tag)

	def, err := r.src.Definition(base)
	if err != nil {
		return domain.Type{}, fmt.Errorf("%w: %s: %v", ErrUnknownType, tag, err)
	}
	if def.TypeParams != len(args) {
		return domain.Type{}, fmt.Errorf("%w: %s wants %d type arguments, got %d",
			ErrUnknownType, base, def.TypeParams, len(args))
	}

	fields := make([]domain.Field, 0, len(def.Fields))
	for _, fd := range def.Fields {
		ft, err := r.typeOf(substitute(fd.Type, args), resolving)
		if err != nil {
			return domain.Type{}, fmt.Errorf("field %s of %s: %w", fd.Name, base, err)
		}
		fields = append(fields, domain.Field{Name: fd.Name, Type: ft})
	}
	return domain.Type{Kind: domain.KindStruct, Ref: tag, Fields: fields}, nil
}

// splitTag separates a tag into its base and generic arguments, honoring
// nested angle brackets.
func splitTag(tag string) (string, []string, error) {
	open := strings.IndexByte(tag, '<')
	if open < 0 {
		return tag, nil, nil
	}
	if !strings.HasSuffix(tag, ">") {
		return "", nil, fmt.Errorf("%w: unbalanced generics in %q", ErrUnknownType, tag)
	}
	base := tag[:open]
	inner := tag[open+1 : len(tag)-1]

	var args []string
	depth, start := 0, 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return "", nil, fmt.Errorf("%w: unbalanced generics in %q", ErrUnknownType, tag)
	}
	args = append(args, strings.TrimSpace(inner[start:]))
	return base, args, nil
}

// substitute replaces generic placeholders T0..Tn with the instantiation's
// arguments.
func substitute(fieldType string, args []string) string {
	if len(args) == 0 {
		return fieldType
	}
	out := fieldType
	for i := len(args) - 1; i >= 0; i-- {
		out = strings.ReplaceAll(out, fmt.Sprintf("T%d", i), args[i])
	}
	return out
}

// isFrameworkTag matches tags like "0x1::option::Option" regardless of the
// package address, including zero-padded forms.
func isFrameworkTag(base, module, name string) bool {
	parts := strings.Split(base, "::")
	return len(parts) == 3 && parts[1] == module && parts[2] == name
}
