// Package sku holds the static SKU catalog: named tiers fixing memory, CPU,
// storage, and container-scheduling hints, immutable after package init the
// same way the engine registry is.
package sku

import (
	"fmt"
	"strings"
)

// Series is one of the four scheduling-hint families named in the external
// interfaces section.
type Series string

const (
	SeriesBurstable Series = "B"
	SeriesGeneral   Series = "D"
	SeriesMemory    Series = "E"
	SeriesCompute   Series = "F"
)

// SchedulingHints are applied verbatim by the Container Orchestrator when
// creating a container for an instance on this SKU.
type SchedulingHints struct {
	CPUShares    int64
	Swappiness   *int64 // nil means "leave at the runtime default"
	OOMScoreAdj  *int
}

// Sku is one catalog entry, e.g. "d2".
type Sku struct {
	ID         string          `json:"id"`
	Series     Series          `json:"series"`
	MemoryMB   int             `json:"memory_mb"`
	VCPU       float64         `json:"vcpu"`
	StorageGB  int             `json:"storage_gb"`
	Hints      SchedulingHints `json:"-"`
	Custom     bool            `json:"custom"`
}

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }

func hintsFor(series Series) SchedulingHints {
	switch series {
	case SeriesBurstable:
		return SchedulingHints{CPUShares: 512}
	case SeriesGeneral:
		return SchedulingHints{CPUShares: 1024}
	case SeriesMemory:
		return SchedulingHints{CPUShares: 1024, Swappiness: int64p(0), OOMScoreAdj: intp(-500)}
	case SeriesCompute:
		return SchedulingHints{CPUShares: 2048, Swappiness: int64p(0)}
	default:
		return SchedulingHints{CPUShares: 1024}
	}
}

// sizeTable maps the numeric size suffix to (memory_mb, vcpu, storage_gb).
// Sizes are shared across all four series; only the scheduling hints differ
// by series.
var sizeTable = map[int]struct {
	MemoryMB  int
	VCPU      float64
	StorageGB int
}{
	1:  {2048, 1, 25},
	2:  {4096, 2, 50},
	4:  {8192, 4, 100},
	8:  {16384, 8, 200},
	16: {32768, 16, 400},
	32: {65536, 32, 800},
	64: {131072, 64, 1600},
}

var catalog = map[string]Sku{}

func init() {
	for _, series := range []Series{SeriesBurstable, SeriesGeneral, SeriesMemory, SeriesCompute} {
		for size, dims := range sizeTable {
			id := strings.ToLower(fmt.Sprintf("%s%d", series, size))
			catalog[id] = Sku{
				ID:        id,
				Series:    series,
				MemoryMB:  dims.MemoryMB,
				VCPU:      dims.VCPU,
				StorageGB: dims.StorageGB,
				Hints:     hintsFor(series),
			}
		}
	}
}

// ErrSkuUnknown is returned by Get for an id that is neither in the static
// catalog nor a well-formed "custom" spec.
type ErrSkuUnknown struct{ ID string }

func (e *ErrSkuUnknown) Error() string { return fmt.Sprintf("sku: unknown sku id %q", e.ID) }

// Get looks up a catalog entry by id.
func Get(id string) (Sku, error) {
	s, ok := catalog[id]
	if !ok {
		return Sku{}, &ErrSkuUnknown{ID: id}
	}
	return s, nil
}

// Custom builds an ad-hoc Sku from user-specified dimensions, applying the
// general-series scheduling hints since a custom SKU declares no intent.
func Custom(memoryMB int, vcpu float64, storageGB int) Sku {
	return Sku{
		ID:        "custom",
		Series:    SeriesGeneral,
		MemoryMB:  memoryMB,
		VCPU:      vcpu,
		StorageGB: storageGB,
		Hints:     hintsFor(SeriesGeneral),
		Custom:    true,
	}
}

// List returns every catalog entry (excluding "custom", which is not a
// fixed row) for the /skus endpoint.
func List() []Sku {
	out := make([]Sku, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s)
	}
	return out
}
