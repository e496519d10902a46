package bitutil_test

import (
	"testing"

	"github.com/bitvm-labs/bitvmd/bitutil"
	"github.com/stretchr/testify/require"
)

func TestNumberRoundTrip(t *testing.T) {
	cases := []struct {
		n      uint64
		length int
	}{
		{0, 8},
		{1, 8},
		{255, 8},
		{633, 64},
		{15, 64},
		{648, 64},
	}
	for _, c := range cases {
		bits := bitutil.NumberToBoolArray(c.n, c.length)
		require.Len(t, bits, c.length)
		require.Equal(t, c.n, bitutil.BoolArrayToNumber(bits))
	}
}

func TestNumberToBoolArrayTruncates(t *testing.T) {
	bits := bitutil.NumberToBoolArray(1<<9, 8)
	require.Equal(t, uint64(0), bitutil.BoolArrayToNumber(bits))
}

func TestHexRoundTrip(t *testing.T) {
	bits := bitutil.NumberToBoolArray(0xCAFE, 16)
	hexStr, err := bitutil.BoolArrayToHexString(bits)
	require.NoError(t, err)

	back, err := bitutil.HexStringToBoolArray(hexStr)
	require.NoError(t, err)
	require.Equal(t, bits, back)
}

func TestBoolArrayToHexStringRejectsNonNibble(t *testing.T) {
	_, err := bitutil.BoolArrayToHexString([]bool{true, false, true})
	require.Error(t, err)
}

func TestHexStringToBoolArrayRejectsBadDigit(t *testing.T) {
	_, err := bitutil.HexStringToBoolArray("zz")
	require.Error(t, err)
}

func TestBytesHexRoundTrip(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	s := bitutil.BytesToHex(raw)
	back, err := bitutil.HexToBytes(s, 4)
	require.NoError(t, err)
	require.Equal(t, raw, back)

	_, err = bitutil.HexToBytes(s, 5)
	require.Error(t, err)
}
