package orderbook

import "deepbook-sandbox/internal/domain"

// Packed order id bit layout: bit 127 carries the side (0 = bid, 1 = ask),
// bits 64..126 the price tick and bits 0..63 a monotonic sequence number
// used only as a FIFO tie-break within a tick.

const tickMask = uint64(1)<<63 - 1

// OrderIDParts is the unpacked form of an order id.
type OrderIDParts struct {
	IsBid    bool
	Tick     uint64
	Sequence uint64
}

// DecodeOrderID unpacks a 128-bit order id.
func DecodeOrderID(id domain.U128) OrderIDParts {
	return OrderIDParts{
		IsBid:    id.Hi>>63 == 0,
		Tick:     id.Hi & tickMask,
		Sequence: id.Lo,
	}
}

// EncodeOrderID packs side, tick and sequence back into an order id. Used
// by fixtures and tests; live ids come straight off the ledger.
func EncodeOrderID(isBid bool, tick, seq uint64) domain.U128 {
	hi := tick & tickMask
	if !isBid {
		hi |= 1 << 63
	}
	return domain.U128{Hi: hi, Lo: seq}
}
