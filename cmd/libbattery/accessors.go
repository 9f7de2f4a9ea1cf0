package main

import (
	"github.com/cptspacemanspiff/battery-probe/internal/abi"
	"github.com/cptspacemanspiff/battery-probe/internal/battery"
)

// noCycleCount is returned by battery_get_cycle_count for an absent count.
const noCycleCount = ^uint32(0)

func metricValue(r *abi.Registry, b abi.Handle, m battery.Metric) float64 {
	v, _ := r.Metric(b, m)
	return v
}

func metricPresent(r *abi.Registry, b abi.Handle, m battery.Metric) int32 {
	if _, ok := r.Metric(b, m); ok {
		return 1
	}
	return 0
}

func cycleCount(r *abi.Registry, b abi.Handle) uint32 {
	if n, ok := r.CycleCount(b); ok {
		return n
	}
	return noCycleCount
}

func cycleCountPresent(r *abi.Registry, b abi.Handle) int32 {
	if _, ok := r.CycleCount(b); ok {
		return 1
	}
	return 0
}

// refreshStatus is 0 when b was re-read and 1 when it keeps stale values.
func refreshStatus(r *abi.Registry, m, b abi.Handle) int32 {
	if err := r.Refresh(m, b); err != nil {
		return 1
	}
	return 0
}

func haveLastError(r *abi.Registry) int32 {
	if r.LastError() != nil {
		return 1
	}
	return 0
}

// lastErrorMessage consumes the last error into buf. A nil buf stands for
// a NULL pointer and leaves the error in place.
func lastErrorMessage(r *abi.Registry, buf []byte) int32 {
	if buf == nil {
		return -1
	}
	err := r.TakeLastError()
	if err == nil {
		return 0
	}
	return int32(abi.CopyMessage(err, buf))
}
