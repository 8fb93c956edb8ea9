package sku

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestD2MatchesDocumentedDimensions(t *testing.T) {
	s, err := Get("d2")
	require.NoError(t, err)
	assert.Equal(t, 4096, s.MemoryMB)
	assert.Equal(t, 2.0, s.VCPU)
	assert.Equal(t, 50, s.StorageGB)
}

func TestMemorySeriesAvoidsOOMKill(t *testing.T) {
	s, err := Get("e4")
	require.NoError(t, err)
	require.NotNil(t, s.Hints.OOMScoreAdj)
	assert.Equal(t, -500, *s.Hints.OOMScoreAdj)
	require.NotNil(t, s.Hints.Swappiness)
	assert.EqualValues(t, 0, *s.Hints.Swappiness)
}

func TestComputeSeriesHasHighestCPUShares(t *testing.T) {
	s, err := Get("f1")
	require.NoError(t, err)
	assert.EqualValues(t, 2048, s.Hints.CPUShares)
}

func TestUnknownSkuIsAnError(t *testing.T) {
	_, err := Get("z99")
	require.Error(t, err)
}

func TestCustomSkuIsMarked(t *testing.T) {
	c := Custom(1024, 0.5, 10)
	assert.True(t, c.Custom)
	assert.Equal(t, "custom", c.ID)
}

func TestListCoversAllFourSeries(t *testing.T) {
	all := List()
	seen := map[Series]bool{}
	for _, s := range all {
		seen[s.Series] = true
	}
	assert.Len(t, seen, 4)
}
