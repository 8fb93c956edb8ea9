package hostinfo

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coralcp/dbaas/vnetalloc"
)

func TestSnapshotReportsCPUCoresWithNoCollaboratorsWired(t *testing.T) {
	r := &Reporter{}
	cap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runtime.NumCPU(), cap.CPUCores)
	assert.Zero(t, cap.VNetAddressesTotal)
}

func TestSnapshotReportsVNetCapacityWhenAllocatorWired(t *testing.T) {
	alloc, err := vnetalloc.New("10.50.0.0/29")
	require.NoError(t, err)
	_, err = alloc.Reserve("inst-1")
	require.NoError(t, err)

	r := &Reporter{VNet: alloc}
	cap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cap.VNetAddressesUsed)
	assert.Equal(t, alloc.Capacity(), cap.VNetAddressesTotal)
}
