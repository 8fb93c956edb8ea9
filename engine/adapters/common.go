package adapters

import (
	"strconv"
	"time"
)

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }

func parseInt(s string) *int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

const defaultHealthInterval = 30 * time.Second

// mergeEnv copies base then overlays extra, letting an instance spec's
// ExtraEnv win over engine defaults without every adapter re-implementing
// the merge.
func mergeEnv(base map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
