package vnetalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveSkipsNetworkAndBroadcastAddresses(t *testing.T) {
	a, err := New("10.88.0.0/30")
	require.NoError(t, err)
	assert.Equal(t, 2, a.Capacity())
}

func TestReserveIsIdempotentPerInstance(t *testing.T) {
	a, err := New("10.88.0.0/29")
	require.NoError(t, err)

	ip1, err := a.Reserve("inst-a")
	require.NoError(t, err)
	ip2, err := a.Reserve("inst-a")
	require.NoError(t, err)
	assert.Equal(t, ip1, ip2)
}

func TestReserveFailsWhenPoolExhausted(t *testing.T) {
	a, err := New("10.88.0.0/30") // 2 usable addresses
	require.NoError(t, err)

	_, err = a.Reserve("inst-a")
	require.NoError(t, err)
	_, err = a.Reserve("inst-b")
	require.NoError(t, err)

	_, err = a.Reserve("inst-c")
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestReleaseFreesAddressForReuse(t *testing.T) {
	a, err := New("10.88.0.0/30")
	require.NoError(t, err)

	ip, err := a.Reserve("inst-a")
	require.NoError(t, err)
	a.Release("inst-a")

	assert.Equal(t, 0, a.InUse())

	again, err := a.Reserve("inst-b")
	require.NoError(t, err)
	assert.Equal(t, ip, again)
}

func TestReleaseOfUnknownInstanceIsNoOp(t *testing.T) {
	a, err := New("10.88.0.0/29")
	require.NoError(t, err)
	a.Release("never-reserved")
	assert.Equal(t, 0, a.InUse())
}
