package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDescriptorRoundTrip(t *testing.T) {
	desc := Descriptor{
		Key:        "my-key",
		Kind:       KindJson,
		DataOffset: 128,
		DataSize:   64,
		IsDeleted:  false,
		DescOffset: 4096,
	}

	buf := EncodeDescriptor(desc)
	require.Len(t, buf, RecordSize)

	got, err := DecodeDescriptor(buf)
	require.NoError(t, err)

	assert.Equal(t, desc.Key, got.Key)
	assert.Equal(t, desc.Kind, got.Kind)
	assert.Equal(t, desc.DataOffset, got.DataOffset)
	assert.Equal(t, desc.DataSize, got.DataSize)
	assert.Equal(t, desc.IsDeleted, got.IsDeleted)
	assert.Equal(t, desc.DescOffset, got.DescOffset)
}

func TestEncodeDescriptorPreservesPlaceholder(t *testing.T) {
	desc := Descriptor{Key: "fresh", Kind: KindString, DescOffset: descPlaceholder}
	buf := EncodeDescriptor(desc)
	got, err := DecodeDescriptor(buf)
	require.NoError(t, err)
	assert.Equal(t, descPlaceholder, got.DescOffset)
}

func TestDecodeDescriptorRejectsWrongLength(t *testing.T) {
	_, err := DecodeDescriptor(make([]byte, RecordSize-1))
	require.Error(t, err)
}

func TestDecodeDescriptorRejectsUnknownKind(t *testing.T) {
	buf := EncodeDescriptor(Descriptor{Key: "k", Kind: KindString})
	buf[offKind] = 0xEE
	_, err := DecodeDescriptor(buf)
	require.Error(t, err)
}

func TestEncodeDescriptorPadsKeyWithZeros(t *testing.T) {
	buf := EncodeDescriptor(Descriptor{Key: "short", Kind: KindBlob})
	for i := len("short"); i < MaxKeyLen; i++ {
		if buf[i] != 0 {
			t.Fatalf("expected zero padding at byte %d, got %d", i, buf[i])
		}
	}
}
