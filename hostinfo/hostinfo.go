// Package hostinfo reports static and environment-derived capacity
// figures for the HostCapacity() API operation, replacing the teacher
// stack's multi-host worker registry (this control plane manages one
// host) with a single local snapshot.
package hostinfo

import (
	"context"
	"runtime"

	"github.com/coralcp/dbaas/container"
	"github.com/coralcp/dbaas/vnetalloc"
)

// Capacity summarizes the host this control plane manages.
type Capacity struct {
	CPUCores           int   `json:"cpu_cores"`
	RunningInstances   int64 `json:"running_instances"`
	StoppedInstances   int64 `json:"stopped_instances"`
	VNetAddressesUsed  int   `json:"vnet_addresses_used"`
	VNetAddressesTotal int   `json:"vnet_addresses_total"`
}

// Reporter reads the current host snapshot on demand; it holds no state
// of its own beyond references to the services it queries.
type Reporter struct {
	Containers *container.Client
	VNet       *vnetalloc.Allocator
}

func (r *Reporter) Snapshot(ctx context.Context) (Capacity, error) {
	c := Capacity{CPUCores: runtime.NumCPU()}
	if r.Containers != nil {
		stats, err := r.Containers.StatsSnapshot(ctx)
		if err != nil {
			return Capacity{}, err
		}
		c.RunningInstances = stats.Running
		c.StoppedInstances = stats.Stopped
	}
	if r.VNet != nil {
		c.VNetAddressesUsed = r.VNet.InUse()
		c.VNetAddressesTotal = r.VNet.Capacity()
	}
	return c, nil
}
