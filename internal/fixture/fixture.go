// Package fixture fabricates ledger export records for synthetic markets.
// It is test support shared by the engine, service and API tests: records
// produced here round-trip through the real loader, codec and page walk.
package fixture

import (
	"encoding/json"
	"fmt"
	"strings"

	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/layout"
	"deepbook-sandbox/internal/orderbook"
	"deepbook-sandbox/internal/snapshot"
)

// OrderSpec describes one resting order to fabricate.
type OrderSpec struct {
	Tick    uint64
	Seq     uint64
	Qty     uint64
	Filled  uint64
	Expire  uint64
	Manager string // balance manager id; defaulted when empty
}

// BookSpec describes a whole synthetic book.
type BookSpec struct {
	Market     domain.Market
	Depth      uint64 // 0: root is the sole leaf, 1: inner node over leaves
	LeafSize   int    // orders per leaf at depth 1; default 2
	Checkpoint uint64
	Bids       []OrderSpec
	Asks       []OrderSpec

	// OmitPages drops fabricated pages by id, for incomplete-export tests.
	OmitPages map[uint64]bool
}

// Market returns a synthetic SUI/USDC market wired to fixture object ids.
func Market() domain.Market {
	return domain.Market{
		ID:            "SUI_USDC",
		Name:          "SUI/USDC",
		PoolID:        "0xf00d",
		BidsVectorID:  "0xb1d5",
		AsksVectorID:  "0xa55e",
		BaseSymbol:    "SUI",
		QuoteSymbol:   "USDC",
		BaseDecimals:  9,
		QuoteDecimals: 6,
		LotSize:       1_000_000,
		MinSize:       100_000_000,
	}
}

// Records fabricates the container and page records for both sides.
func Records(spec BookSpec) []domain.ObjectRecord {
	var recs []domain.ObjectRecord
	recs = append(recs, sideRecords(spec, spec.Market.BidsVectorID, true, spec.Bids)...)
	recs = append(recs, sideRecords(spec, spec.Market.AsksVectorID, false, spec.Asks)...)
	return recs
}

// Set loads fabricated records through the real NDJSON loader.
func Set(spec BookSpec) (*snapshot.Set, error) {
	var sb strings.Builder
	for _, rec := range Records(spec) {
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return snapshot.Load(strings.NewReader(sb.String()))
}

func sideRecords(spec BookSpec, vectorID string, isBid bool, orders []OrderSpec) []domain.ObjectRecord {
	leafSize := spec.LeafSize
	if leafSize <= 0 {
		leafSize = 2
	}

	var leaves [][]OrderSpec
	if spec.Depth == 0 {
		leaves = [][]OrderSpec{orders}
	} else {
		for start := 0; start < len(orders); start += leafSize {
			end := start + leafSize
			if end > len(orders) {
				end = len(orders)
			}
			leaves = append(leaves, orders[start:end])
		}
		if len(leaves) == 0 {
			leaves = [][]OrderSpec{{}}
		}
	}

	rootID := uint64(1)
	var recs []domain.ObjectRecord

	if spec.Depth > 0 {
		children := make([]string, len(leaves))
		for i := range leaves {
			children[i] = fmt.Sprintf("%q", fmt.Sprint(uint64(i)+2))
		}
		innerJSON := fmt.Sprintf(
			`{"id":{"id":"%s00%d"},"name":"%d","value":{"prev":"0","next":"0","keys":[],"vals":[%s]}}`,
			vectorID, rootID, rootID, strings.Join(children, ","))
		if !spec.OmitPages[rootID] {
			recs = append(recs, pageRecord(spec, vectorID, rootID, innerJSON))
		}
	}

	for i, leafOrders := range leaves {
		name := rootID
		if spec.Depth > 0 {
			name = uint64(i) + 2
		}
		if spec.OmitPages[name] {
			continue
		}
		recs = append(recs, pageRecord(spec, vectorID, name, leafJSON(vectorID, name, isBid, leafOrders)))
	}

	recs = append(recs, domain.ObjectRecord{
		ObjectID: vectorID,
		TypeTag:  fmt.Sprintf("%s<%s>", layout.TagBigVector, layout.TagOrder),
		Version:  1,
		Payload: json.RawMessage(fmt.Sprintf(
			`{"id":{"id":"%s"},"depth":"%d","length":"%d","max_slice_size":"%d","max_fan_out":"64","root_id":"%d","last_id":"9"}`,
			vectorID, spec.Depth, len(orders), leafSize, rootID)),
		OwnerType:  domain.OwnerShared,
		Checkpoint: spec.Checkpoint,
	})
	return recs
}

func pageRecord(spec BookSpec, vectorID string, name uint64, payload string) domain.ObjectRecord {
	return domain.ObjectRecord{
		ObjectID:     fmt.Sprintf("%s00%d", vectorID, name),
		TypeTag:      layout.FieldTag("u64", layout.SliceTag(layout.TagOrder)),
		Version:      1,
		Payload:      json.RawMessage(payload),
		OwnerType:    domain.OwnerObject,
		OwnerAddress: vectorID,
		Checkpoint:   spec.Checkpoint,
	}
}

func leafJSON(vectorID string, name uint64, isBid bool, orders []OrderSpec) string {
	keys := make([]string, len(orders))
	vals := make([]string, len(orders))
	for i, o := range orders {
		id := orderbook.EncodeOrderID(isBid, o.Tick, o.Seq)
		keys[i] = fmt.Sprintf("%q", id.String())
		vals[i] = orderJSON(id, o)
	}
	return fmt.Sprintf(
		`{"id":{"id":"%s00%d"},"name":"%d","value":{"prev":"0","next":"0","keys":[%s],"vals":[%s]}}`,
		vectorID, name, name, strings.Join(keys, ","), strings.Join(vals, ","))
}

func orderJSON(id domain.U128, o OrderSpec) string {
	manager := o.Manager
	if manager == "" {
		manager = "0xbead"
	}
	return fmt.Sprintf(`{"balance_manager_id":"%s","order_id":"%s","client_order_id":"0",`+
		`"quantity":"%d","filled_quantity":"%d","fee_is_deep":false,`+
		`"order_deep_price":{"asset_is_base":true,"deep_per_asset":"0"},`+
		`"epoch":"1","status":0,"expire_timestamp":"%d"}`,
		manager, id.String(), o.Qty, o.Filled, o.Expire)
}
