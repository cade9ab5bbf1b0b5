package mysql

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPacketSplittingExactMultiple exercises the 16 MiB packet-splitting
// rule (spec §4.7, SPEC_FULL.md §8 scenario 5): a payload that is an exact
// multiple of maxPacketPayload must still end with a zero-length
// terminator packet, or the reader would block waiting for more.
func TestPacketSplittingExactMultiple(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, maxPacketPayload*2)

	var out bytes.Buffer
	w := newPacketConn(nil, bufio.NewWriter(&out))
	require.NoError(t, w.writePacket(payload))
	require.NoError(t, w.flush())

	r := newPacketConn(bufio.NewReader(&out), nil)
	got, err := r.readPacket()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestPacketSplittingWithRemainder covers a payload that splits into one
// full chunk plus a shorter 100-byte remainder chunk.
func TestPacketSplittingWithRemainder(t *testing.T) {
	payload := bytes.Repeat([]byte{'y'}, maxPacketPayload+100)

	var out bytes.Buffer
	w := newPacketConn(nil, bufio.NewWriter(&out))
	require.NoError(t, w.writePacket(payload))
	require.NoError(t, w.flush())

	r := newPacketConn(bufio.NewReader(&out), nil)
	got, err := r.readPacket()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestLenencIntRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 250, 251, 65535, 65536, 16777215, 16777216, 1 << 40} {
		enc := putLenencInt(nil, v)
		got, n := lenencInt(enc)
		require.Equal(t, len(enc), n)
		require.Equal(t, v, got)
	}
}
