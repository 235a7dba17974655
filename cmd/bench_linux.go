//go:build linux
// +build linux

package cmd

import (
	perf "github.com/hodgesds/perf-utils"
)

// countInstructions reads the hardware instruction counter around one call
// of f. Requires perf_event access; failures report ok=false and the
// benchmark falls back to wall-clock numbers only.
func countInstructions(f func() error) (instr uint64, ok bool) {
	pv, err := perf.CPUInstructions(f)
	if err != nil || pv == nil {
		return 0, false
	}
	return pv.Value, true
}
