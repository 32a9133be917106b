package kv

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodalkv/nodal/internal/kverrors"
)

func TestCanonicalizeNumber(t *testing.T) {
	raw, err := Canonicalize("k", KindNumber, []byte("3.5"))
	require.NoError(t, err)
	require.Len(t, raw, 8)
	assert.Equal(t, 3.5, math.Float64frombits(binary.LittleEndian.Uint64(raw)))
	assert.Equal(t, 3.5, DecodeNumber(raw))
}

func TestCanonicalizeNumberParsesEightCharacterDecimalText(t *testing.T) {
	for _, s := range []string{"100000.5", "12345.67", "3.141593", "-123.456"} {
		raw, err := Canonicalize("k", KindNumber, []byte(s))
		require.NoError(t, err)
		require.Len(t, raw, 8)
		want, err := strconv.ParseFloat(s, 64)
		require.NoError(t, err)
		assert.Equal(t, want, DecodeNumber(raw))
	}
}

func TestCanonicalizeNumberRejectsNonFinite(t *testing.T) {
	_, err := Canonicalize("k", KindNumber, []byte("NaN"))
	assert.ErrorIs(t, err, kverrors.ErrValidation)
}

func TestCanonicalizeBoolean(t *testing.T) {
	raw, err := Canonicalize("k", KindBoolean, []byte("true"))
	require.NoError(t, err)
	assert.True(t, DecodeBoolean(raw))

	raw, err = Canonicalize("k", KindBoolean, []byte("false"))
	require.NoError(t, err)
	assert.False(t, DecodeBoolean(raw))
}

func TestCanonicalizeBooleanRejectsGarbage(t *testing.T) {
	_, err := Canonicalize("k", KindBoolean, []byte("maybe"))
	assert.ErrorIs(t, err, kverrors.ErrValidation)
}

func TestCanonicalizeJSONCompactsAndValidates(t *testing.T) {
	raw, err := Canonicalize("k", KindJson, []byte(`{ "a" : 1 }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))

	_, err = Canonicalize("k", KindJson, []byte(`{not json`))
	assert.ErrorIs(t, err, kverrors.ErrValidation)
}

func TestCanonicalizeStringRequiresUTF8(t *testing.T) {
	_, err := Canonicalize("k", KindString, []byte{0xff, 0xfe})
	assert.True(t, errors.Is(err, kverrors.ErrValidation))
}

func TestCanonicalizeRejectsOversizedKey(t *testing.T) {
	big := make([]byte, MaxKeyLen+1)
	for i := range big {
		big[i] = 'a'
	}
	_, err := Canonicalize(string(big), KindString, []byte("v"))
	assert.ErrorIs(t, err, kverrors.ErrValidation)
}

func TestCanonicalizeBlobAndObjectPassThrough(t *testing.T) {
	raw, err := Canonicalize("k", KindBlob, []byte{0x00, 0x01, 0xff})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0xff}, raw)
}
