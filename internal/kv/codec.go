package kv

import (
	"encoding/binary"
	"fmt"

	"github.com/nodalkv/nodal/internal/kverrors"
)

// RecordSize is the fixed byte length R of every descriptor record:
//
//	Offset  Size  Field
//	0x000   256   Key (zero-padded)
//	0x100   1     Kind tag
//	0x101   8     DataOffset (uint64 LE)
//	0x109   8     DataSize (uint64 LE)
//	0x111   1     IsDeleted (0 or 1)
//	0x112   8     DescOffset (uint64 LE, self-pointer)
//
// R is a property of the codec and must be stable for the life of a
// database; it is sized directly off the field layout the distilled
// spec's data model names (§3), the way storage/binary/format.go fixes
// its own 128-byte header and 112-byte index-entry sizes once and for
// all at the top of the file.
const RecordSize = MaxKeyLen + 1 + 8 + 8 + 1 + 8 // 282

const (
	offKey        = 0
	offKind       = MaxKeyLen
	offDataOffset = offKind + 1
	offDataSize   = offDataOffset + 8
	offIsDeleted  = offDataSize + 8
	offDescOffset = offIsDeleted + 1
)

// descPlaceholder is the self-pointer value a caller should set on a
// Descriptor before its first AppendDesc, since the real offset is not
// known until the bytes have actually landed in the file. AppendDesc
// patches the encoded record's last 8 bytes with the real offset once
// it knows where the record landed (see logfile.go); PatchAt, used to
// rewrite an existing record in place, relies on EncodeDescriptor
// preserving whatever DescOffset the caller already set.
const descPlaceholder = ^uint64(0)

// EncodeDescriptor serializes desc into a RecordSize-byte buffer,
// including its DescOffset field verbatim. A brand-new record's caller
// should set DescOffset to descPlaceholder and let AppendDesc overwrite
// it with the real offset; a patched record's caller already knows its
// real offset and sets DescOffset accordingly before encoding.
func EncodeDescriptor(desc Descriptor) []byte {
	buf := make([]byte, RecordSize)
	n := copy(buf[offKey:offKind], desc.Key)
	for i := offKey + n; i < offKind; i++ {
		buf[i] = 0
	}
	buf[offKind] = byte(desc.Kind)
	binary.LittleEndian.PutUint64(buf[offDataOffset:], desc.DataOffset)
	binary.LittleEndian.PutUint64(buf[offDataSize:], desc.DataSize)
	if desc.IsDeleted {
		buf[offIsDeleted] = 1
	}
	binary.LittleEndian.PutUint64(buf[offDescOffset:], desc.DescOffset)
	return buf
}

// DecodeDescriptor parses a RecordSize-byte buffer into a Descriptor.
// Any structural failure (wrong length, unrecognized kind tag) yields
// kverrors.ErrDecode; the caller is expected to skip the record and
// continue scanning, per the distilled spec's recovery contract.
func DecodeDescriptor(buf []byte) (Descriptor, error) {
	if len(buf) != RecordSize {
		return Descriptor{}, fmt.Errorf("%w: record is %d bytes, want %d", kverrors.ErrDecode, len(buf), RecordSize)
	}

	keyEnd := offKind
	for keyEnd > offKey && buf[keyEnd-1] == 0 {
		keyEnd--
	}
	key := string(buf[offKey:keyEnd])

	kind := Kind(buf[offKind])
	if kind.String() == "unknown" {
		return Descriptor{}, fmt.Errorf("%w: unrecognized kind tag %d", kverrors.ErrDecode, buf[offKind])
	}

	return Descriptor{
		Key:        key,
		Kind:       kind,
		DataOffset: binary.LittleEndian.Uint64(buf[offDataOffset:]),
		DataSize:   binary.LittleEndian.Uint64(buf[offDataSize:]),
		IsDeleted:  buf[offIsDeleted] != 0,
		DescOffset: binary.LittleEndian.Uint64(buf[offDescOffset:]),
	}, nil
}
