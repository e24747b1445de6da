package layout

import "fmt"

// PackageID is the on-chain package the bundled definitions come from.
const PackageID = "0x2c8d603bc51326b8c13cef9dd07031a408a48dddb541963357661df5d3204809"

// Bundled struct tags.
const (
	TagOrder          = PackageID + "::order::Order"
	TagOrderDeepPrice = PackageID + "::deep_price::OrderDeepPrice"
	TagSlice          = PackageID + "::big_vector::Slice"
	TagBigVector      = PackageID + "::big_vector::BigVector"
	TagField          = "0x2::dynamic_field::Field"
)

// SliceTag builds the page tag for a slice of the given element type.
func SliceTag(elem string) string { return fmt.Sprintf("%s<%s>", TagSlice, elem) }

// FieldTag builds the dynamic-field wrapper tag.
func FieldTag(name, value string) string { return fmt.Sprintf("%s<%s, %s>", TagField, name, value) }

// StaticSource serves a fixed set of struct definitions bundled into the
// binary, covering the order book containers and their entries. Field order
// mirrors the on-chain declarations exactly.
type StaticSource struct {
	defs map[string]Definition
}

// NewStaticSource returns a source with the bundled venue definitions.
func NewStaticSource() *StaticSource {
	return &StaticSource{defs: map[string]Definition{
		TagField: {
			TypeParams: 2,
			Fields: []FieldDef{
				{Name: "id", Type: "0x2::object::UID"},
				{Name: "name", Type: "T0"},
				{Name: "value", Type: "T1"},
			},
		},
		TagBigVector: {
			TypeParams: 1,
			Fields: []FieldDef{
				{Name: "id", Type: "0x2::object::UID"},
				{Name: "depth", Type: "u64"},
				{Name: "length", Type: "u64"},
				{Name: "max_slice_size", Type: "u64"},
				{Name: "max_fan_out", Type: "u64"},
				{Name: "root_id", Type: "u64"},
				{Name: "last_id", Type: "u64"},
			},
		},
		TagSlice: {
			TypeParams: 1,
			Fields: []FieldDef{
				{Name: "prev", Type: "u64"},
				{Name: "next", Type: "u64"},
				{Name: "keys", Type: "vector<u128>"},
				{Name: "vals", Type: "vector<T0>"},
			},
		},
		TagOrder: {
			Fields: []FieldDef{
				{Name: "balance_manager_id", Type: "0x2::object::ID"},
				{Name: "order_id", Type: "u128"},
				{Name: "client_order_id", Type: "u64"},
				{Name: "quantity", Type: "u64"},
				{Name: "filled_quantity", Type: "u64"},
				{Name: "fee_is_deep", Type: "bool"},
				{Name: "order_deep_price", Type: TagOrderDeepPrice},
				{Name: "epoch", Type: "u64"},
				{Name: "status", Type: "u8"},
				{Name: "expire_timestamp", Type: "u64"},
			},
		},
		TagOrderDeepPrice: {
			Fields: []FieldDef{
				{Name: "asset_is_base", Type: "bool"},
				{Name: "deep_per_asset", Type: "u64"},
			},
		},
	}}
}

// Definition implements Source.
func (s *StaticSource) Definition(baseTag string) (Definition, error) {
	def, ok := s.defs[baseTag]
	if !ok {
		return Definition{}, fmt.Errorf("no definition for %s", baseTag)
	}
	return def, nil
}

// Add registers or replaces a definition, for tests and extensions.
func (s *StaticSource) Add(baseTag string, def Definition) { s.defs[baseTag] = def }
