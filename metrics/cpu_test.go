package metrics

import (
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
)

func TestCPUPercentFromComputesStandardDelta(t *testing.T) {
	stats := types.StatsJSON{}
	stats.CPUStats.CPUUsage.TotalUsage = 2000
	stats.PreCPUStats.CPUUsage.TotalUsage = 1000
	stats.CPUStats.SystemUsage = 20000
	stats.PreCPUStats.SystemUsage = 10000
	stats.CPUStats.OnlineCPUs = 2

	pct := cpuPercentFrom(stats)
	assert.InDelta(t, 20.0, pct, 0.001)
}

func TestCPUPercentFromReturnsZeroWhenDeltasAreNonPositive(t *testing.T) {
	stats := types.StatsJSON{}
	stats.CPUStats.CPUUsage.TotalUsage = 1000
	stats.PreCPUStats.CPUUsage.TotalUsage = 1000
	stats.CPUStats.SystemUsage = 10000
	stats.PreCPUStats.SystemUsage = 5000

	assert.Equal(t, 0.0, cpuPercentFrom(stats))
}
