package domain

import "encoding/json"

// ObjectRecord is a single ledger object captured by the external snapshot
// exporter. Records are unique by ObjectID; when an export contains several
// versions of the same object, the highest version wins.
type ObjectRecord struct {
	ObjectID     string          `json:"object_id"`
	TypeTag      string          `json:"type"`
	Version      uint64          `json:"version"`
	Payload      json.RawMessage `json:"object_json"`
	OwnerType    string          `json:"owner_type,omitempty"`
	OwnerAddress string          `json:"owner_address,omitempty"`
	Checkpoint   uint64          `json:"checkpoint"`
}

// Owner type constants as emitted by the exporter.
const (
	OwnerShared  = "Shared"
	OwnerAddress = "AddressOwner"
	OwnerObject  = "ObjectOwner"
)

// EncodedObject is the canonical binary form of an ObjectRecord's payload.
// It is a pure function of (Payload, layout) and immutable once produced.
type EncodedObject struct {
	ObjectID string
	TypeTag  string
	Version  uint64
	Bytes    []byte
}
