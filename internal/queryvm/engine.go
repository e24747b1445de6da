// Package queryvm executes order queries against a loaded object graph. It
// re-encodes exported JSON payloads into canonical bytes, decodes the paged
// book containers out of them and serves deterministic, cursor-paginated
// order listings to the book builder.
package queryvm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"deepbook-sandbox/internal/bcs"
	"deepbook-sandbox/internal/bigvector"
	"deepbook-sandbox/internal/domain"
	"deepbook-sandbox/internal/layout"
	"deepbook-sandbox/internal/orderbook"
	"deepbook-sandbox/internal/snapshot"
)

// Engine implements orderbook.QueryRunner over a snapshot set. Sides are
// resolved once per container id and cached; queries over the same graph
// and arguments always return identical pages.
type Engine struct {
	set *snapshot.Set
	res *layout.Resolver

	mu    sync.Mutex
	sides map[string][]domain.Order // container id -> flattened collection order
}

// NewEngine creates an engine over a loaded snapshot set.
func NewEngine(set *snapshot.Set, res *layout.Resolver) *Engine {
	return &Engine{set: set, res: res, sides: make(map[string][]domain.Order)}
}

// RunQuery implements orderbook.QueryRunner.
func (e *Engine) RunQuery(ctx context.Context, q orderbook.Query) (orderbook.Page, error) {
	if err := ctx.Err(); err != nil {
		return orderbook.Page{}, err
	}

	vectorID := q.Market.AsksVectorID
	if q.Side == orderbook.SideBid {
		vectorID = q.Market.BidsVectorID
	}
	orders, err := e.sideOrders(vectorID)
	if err != nil {
		return orderbook.Page{}, err
	}

	start := 0
	if q.Cursor != nil {
		for i, o := range orders {
			if o.OrderID.Cmp(*q.Cursor) == 0 {
				start = i + 1
				break
			}
		}
	}
	end := start + q.Limit
	if q.Limit <= 0 || end > len(orders) {
		end = len(orders)
	}

	page := orderbook.Page{Orders: orders[start:end], HasNext: end < len(orders)}
	if page.HasNext {
		last := orders[end-1].OrderID
		page.Cursor = &last
	}
	return page, nil
}

func (e *Engine) sideOrders(vectorID string) ([]domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if orders, ok := e.sides[vectorID]; ok {
		return orders, nil
	}
	orders, err := e.resolveSide(vectorID)
	if err != nil {
		return nil, err
	}
	e.sides[vectorID] = orders
	return orders, nil
}

// resolveSide decodes the container metadata, walks its page index and
// flattens the leaf entries in collection order.
func (e *Engine) resolveSide(vectorID string) ([]domain.Order, error) {
	rec, ok := e.set.ByID(vectorID)
	if !ok {
		return nil, fmt.Errorf("%w: container %s not in object set",
			orderbook.ErrExecutionAborted, vectorID)
	}

	root, depth, length, err := e.containerMeta(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: container %s: %w", orderbook.ErrExecutionAborted, vectorID, err)
	}
	if length == 0 {
		return nil, nil
	}

	idx, err := e.pageIndex(vectorID)
	if err != nil {
		return nil, fmt.Errorf("%w: container %s: %w", orderbook.ErrExecutionAborted, vectorID, err)
	}
	leaves, err := bigvector.ResolveCollection(idx, root, depth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", orderbook.ErrExecutionAborted, err)
	}

	var orders []domain.Order
	for _, leaf := range leaves {
		orders = append(orders, leaf.Orders...)
	}
	return orders, nil
}

// containerMeta round-trips the container payload through the canonical
// codec and reads (root_id, depth, length) from the decoded form.
func (e *Engine) containerMeta(rec domain.ObjectRecord) (root, depth, length uint64, err error) {
	tag := fmt.Sprintf("%s<%s>", layout.TagBigVector, layout.TagOrder)
	l, err := e.res.Resolve(tag)
	if err != nil {
		return 0, 0, 0, err
	}
	raw, err := bcs.Encode(rec.Payload, l)
	if err != nil {
		return 0, 0, 0, err
	}
	meta, err := bcs.Decode(raw, l)
	if err != nil {
		return 0, 0, 0, err
	}
	return meta["root_id"].(uint64), meta["depth"].(uint64), meta["length"].(uint64), nil
}

// pageIndex decodes every dynamic child of the container into a page node.
// Exports mislabel page types, so pages are classified by the shape of
// their vals array: objects mean a leaf of orders, numbers mean an inner
// node of child ids.
func (e *Engine) pageIndex(vectorID string) (*bigvector.PageIndex, error) {
	innerLayout, err := e.res.Resolve(layout.FieldTag("u64", layout.SliceTag("u64")))
	if err != nil {
		return nil, err
	}
	leafLayout, err := e.res.Resolve(layout.FieldTag("u64", layout.SliceTag(layout.TagOrder)))
	if err != nil {
		return nil, err
	}

	var nodes []*bigvector.Node
	for _, rec := range e.set.ByOwner(vectorID) {
		l := leafLayout
		if isInnerPage(rec.Payload) {
			l = innerLayout
		}
		raw, err := bcs.Encode(rec.Payload, l)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", rec.ObjectID, err)
		}
		decoded, err := bcs.Decode(raw, l)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", rec.ObjectID, err)
		}
		node, err := buildNode(rec.ObjectID, decoded)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", rec.ObjectID, err)
		}
		nodes = append(nodes, node)
	}
	return bigvector.NewPageIndex(vectorID, nodes), nil
}

// isInnerPage sniffs the vals array of a page payload. Inner pages carry
// scalar child ids, leaves carry order objects.
func isInnerPage(payload json.RawMessage) bool {
	var probe struct {
		Value struct {
			Vals []json.RawMessage `json:"vals"`
		} `json:"value"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || len(probe.Value.Vals) == 0 {
		return false
	}
	first := probe.Value.Vals[0]
	for _, c := range first {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return false
		default:
			return true
		}
	}
	return false
}

func buildNode(objectID string, decoded map[string]any) (*bigvector.Node, error) {
	node := &bigvector.Node{ObjectID: objectID, Name: decoded["name"].(uint64)}
	slice, ok := decoded["value"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("page value is not a slice")
	}
	vals := slice["vals"].([]any)

	if len(vals) > 0 {
		if _, inner := vals[0].(uint64); inner {
			node.Children = make([]uint64, len(vals))
			for i, v := range vals {
				node.Children[i] = v.(uint64)
			}
			return node, nil
		}
	}

	for _, k := range slice["keys"].([]any) {
		node.Keys = append(node.Keys, k.(domain.U128))
	}
	for _, v := range vals {
		order, err := decodeOrder(v.(map[string]any))
		if err != nil {
			return nil, err
		}
		node.Orders = append(node.Orders, order)
	}
	if len(node.Keys) != len(node.Orders) {
		return nil, fmt.Errorf("leaf has %d keys but %d entries", len(node.Keys), len(node.Orders))
	}
	return node, nil
}

func decodeOrder(m map[string]any) (domain.Order, error) {
	id, ok := m["order_id"].(domain.U128)
	if !ok {
		return domain.Order{}, fmt.Errorf("entry has no order_id")
	}
	parts := orderbook.DecodeOrderID(id)
	return domain.Order{
		OrderID:         id,
		PriceTick:       parts.Tick,
		Sequence:        parts.Sequence,
		Quantity:        m["quantity"].(uint64),
		FilledQuantity:  m["filled_quantity"].(uint64),
		IsBid:           parts.IsBid,
		ExpireTimestamp: m["expire_timestamp"].(uint64),
	}, nil
}
