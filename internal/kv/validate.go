package kv

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/nodalkv/nodal/internal/kverrors"
)

// Canonicalize validates key and, per kind, canonicalizes the
// caller-supplied bytes into the exact on-disk representation the
// distilled spec's data model names (§3): 8 little-endian bytes for
// Number, a single 0/1 byte for Boolean, raw bytes otherwise (with a
// UTF-8 and/or JSON well-formedness check where the kind implies text).
func Canonicalize(key string, kind Kind, raw []byte) ([]byte, error) {
	if len(key) == 0 || len(key) > MaxKeyLen {
		return nil, fmt.Errorf("%w: key length %d exceeds %d bytes", kverrors.ErrValidation, len(key), MaxKeyLen)
	}
	if kind.String() == "unknown" {
		return nil, fmt.Errorf("%w: unrecognized kind", kverrors.ErrValidation)
	}

	switch kind {
	case KindNumber:
		return canonicalizeNumber(raw)
	case KindBoolean:
		return canonicalizeBoolean(raw)
	case KindJson:
		return canonicalizeJSON(raw)
	case KindString, KindJs:
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("%w: %s payload is not valid UTF-8", kverrors.ErrValidation, kind)
		}
		return raw, nil
	case KindBlob, KindObject:
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized kind", kverrors.ErrValidation)
	}
}

// canonicalizeNumber parses raw as decimal text — every caller, HTTP
// and script alike, submits a decimal string, never pre-encoded bytes —
// and always returns exactly 8 little-endian bytes. Only finite values
// are permitted.
func canonicalizeNumber(raw []byte) ([]byte, error) {
	f, err := parseFloat(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: number payload %q: %v", kverrors.ErrValidation, raw, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: number must be finite, got %v", kverrors.ErrValidation, f)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
	return buf, nil
}

// canonicalizeBoolean maps the input to exactly one byte, 0 or 1. It
// accepts a pre-encoded single byte, or the text "true"/"false".
func canonicalizeBoolean(raw []byte) ([]byte, error) {
	if len(raw) == 1 {
		if raw[0] == 0 || raw[0] == 1 {
			return raw, nil
		}
	}
	switch string(raw) {
	case "true", "1":
		return []byte{1}, nil
	case "false", "0":
		return []byte{0}, nil
	default:
		return nil, fmt.Errorf("%w: boolean payload %q must map to 0/1", kverrors.ErrValidation, raw)
	}
}

// canonicalizeJSON verifies raw is well-formed JSON and stores it
// compacted, using goccy/go-json for the parse since every other JSON
// touchpoint in the store (HTTP transport, status snapshot) already
// goes through it.
func canonicalizeJSON(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: invalid json payload: %v", kverrors.ErrValidation, err)
	}
	compacted, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: re-marshal json payload: %v", kverrors.ErrValidation, err)
	}
	return compacted, nil
}

func parseFloat(raw []byte) (float64, error) {
	return strconv.ParseFloat(string(raw), 64)
}

// DecodeNumber reinterprets a canonicalized Number's 8 bytes back into
// a float64, for callers (the script host's kvGetValue) that want the
// value rather than the raw on-disk bytes.
func DecodeNumber(raw []byte) float64 {
	if len(raw) != 8 {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(raw))
}

// DecodeBoolean reinterprets a canonicalized Boolean's single byte back
// into a bool.
func DecodeBoolean(raw []byte) bool {
	return len(raw) == 1 && raw[0] != 0
}
