// Package kv implements the core embedded store: the append-only data
// and descriptor logs (C1), the descriptor codec (C2), the in-memory
// object index with recovery (C3), and the typed set/get/delete/list
// contract (C4).
package kv

// Kind is the closed set of value types the store understands. The tag
// byte stored in a descriptor record is the Kind's numeric value, so the
// ordering below is part of the on-disk format and must never change.
type Kind uint8

const (
	KindNumber Kind = iota
	KindBoolean
	KindString
	KindJson
	KindBlob
	KindObject
	KindJs
)

// String returns the wire name used in HTTP bodies and script calls.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindJson:
		return "json"
	case KindBlob:
		return "blob"
	case KindObject:
		return "object"
	case KindJs:
		return "js"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire name to a Kind. The second return value is false
// for any name outside the closed set.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "number":
		return KindNumber, true
	case "boolean":
		return KindBoolean, true
	case "string":
		return KindString, true
	case "json":
		return KindJson, true
	case "blob":
		return KindBlob, true
	case "object":
		return KindObject, true
	case "js":
		return KindJs, true
	default:
		return 0, false
	}
}

// MaxKeyLen is the fixed upper bound on key length, resolving the
// distilled spec's 128/255/256 ambiguity at 256 bytes.
const MaxKeyLen = 256

// Descriptor is the in-memory form of a descriptor record: everything
// the index needs to know about an object except its materialized
// bytes.
type Descriptor struct {
	Key        string
	Kind       Kind
	DataOffset uint64
	DataSize   uint64
	IsDeleted  bool
	DescOffset uint64
}

// Object is a stored value: its descriptor plus the materialized bytes
// it describes. Readers receive a copy so that concurrent mutation of
// the index can never tear an Object in a caller's hands.
type Object struct {
	Desc Descriptor
	Data []byte
}

// ListElement is the summary form returned by List/ListByKind.
type ListElement struct {
	Key        string
	Kind       Kind
	DataSize   uint64
	DataOffset uint64
}

// Stats reports operational counters for the store, in the same typed
// struct shape the write queue uses for its own depth/processed/error
// counters (see writequeue.Queue.Stats).
type Stats struct {
	LiveObjects    int
	TombstonesSeen int
	DataLogBytes   int64
	DescLogBytes   int64
}
