// Package metrics derives per-operation signals from a performance row:
// bound classification, roofline efficiency, utilization and host overhead.
//
// Every function here is pure. Inputs that the report did not carry yield
// trace.Undefined, never a fabricated zero, and nothing returns an error.
package metrics

import (
	"math"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// BoundClass says which resource limits an operation.
type BoundClass string

const (
	Compute  BoundClass = "Compute"
	Memory   BoundClass = "Memory"
	Balanced BoundClass = "Balanced"
)

// Config holds the bound-classification thresholds, in percent.
type Config struct {
	// ComputeFloorPercent is the utilization an op must exceed to be bound by it.
	ComputeFloorPercent float64 `yaml:"compute_floor_percent"`
	// TieBandPercent: FPU and DRAM utilizations this close are Balanced.
	TieBandPercent float64 `yaml:"tie_band_percent"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{ComputeFloorPercent: 10, TieBandPercent: 5}
}

// Validate rejects negative or non-finite thresholds.
func (c Config) Validate() error {
	if err := trace.RequireNonNegative("metrics.compute_floor_percent", c.ComputeFloorPercent); err != nil {
		return err
	}
	return trace.RequireNonNegative("metrics.tie_band_percent", c.TieBandPercent)
}

// Bound classifies an op from its FPU and DRAM utilization. Missing
// utilizations count as 0. The tie band is checked before either floor.
func (c Config) Bound(p trace.OperationPerf) BoundClass {
	fpu := p.FPUUtilPercent.Or(0)
	dram := p.DRAMUtilPercent.Or(0)
	switch {
	case fpu == 0 && dram == 0:
		return Balanced
	case math.Abs(fpu-dram) <= c.TieBandPercent:
		return Balanced
	case fpu >= dram && fpu > c.ComputeFloorPercent:
		return Compute
	case dram >= fpu && dram > c.ComputeFloorPercent:
		return Memory
	}
	return Balanced
}

// Efficiency is ideal (model) time over measured device time, as a ratio.
// Undefined when device time is not positive or the ideal is unknown.
func Efficiency(p trace.OperationPerf) trace.Float {
	device, ok := p.DeviceTimeNs.Get()
	if !ok || device <= 0 {
		return trace.Undefined
	}
	ideal, ok := p.PMIdealNs.Get()
	if !ok {
		return trace.Undefined
	}
	return trace.Known(ideal / device)
}

// HostOverheadRatio is gap / (gap + device time). It is 0 when both are 0
// and undefined when either is unknown.
func HostOverheadRatio(p trace.OperationPerf) trace.Float {
	gap, gapOK := p.OpToOpGapNs.Get()
	device, devOK := p.DeviceTimeNs.Get()
	if !gapOK || !devOK {
		return trace.Undefined
	}
	total := gap + device
	if gap == 0 && device == 0 {
		return trace.Known(0)
	}
	if total <= 0 {
		return trace.Undefined
	}
	return trace.Known(gap / total)
}

// CoreUtilization is the share of the device's compute grid an op ran on.
func CoreUtilization(p trace.OperationPerf, device *trace.Device) trace.Float {
	if device == nil || p.CoreCount <= 0 {
		return trace.Undefined
	}
	grid := device.ComputeCores()
	if grid <= 0 {
		return trace.Undefined
	}
	return trace.Known(float64(p.CoreCount) / float64(grid))
}

// Derived is the full set of metrics for one operation.
type Derived struct {
	OperationID   int64           `json:"operation_id"`
	KeySource     trace.KeySource `json:"key_source"`
	OpCode        string          `json:"op_code"`
	OpName        string          `json:"op_name"`
	OperationName string          `json:"operation_name,omitempty"`
	DeviceID      *int64          `json:"device_id"`
	CoreCount     int             `json:"core_count"`
	MathFidelity  string          `json:"math_fidelity,omitempty"`

	DurationNs      trace.Float `json:"duration_ns"`
	DeviceTimeNs    trace.Float `json:"device_time_ns"`
	OpToOpGapNs     trace.Float `json:"op_to_op_gap_ns"`
	PMIdealNs       trace.Float `json:"pm_ideal_ns"`
	FPUUtilPercent  trace.Float `json:"fpu_util_percent"`
	DRAMUtilPercent trace.Float `json:"dram_util_percent"`
	CoreUtilization trace.Float `json:"core_utilization"`

	DispatchCQCmdNs trace.Float `json:"dispatch_cq_cmd_time_ns"`
	DispatchWaitNs  trace.Float `json:"dispatch_wait_time_ns"`
	ERISCKernelNs   trace.Float `json:"erisc_kernel_duration_ns"`

	Bound             BoundClass  `json:"bound"`
	Efficiency        trace.Float `json:"efficiency"`
	HostOverheadRatio trace.Float `json:"host_overhead_ratio"`
}

// Derive computes every metric for p. op and device are the records p
// correlates with and may be nil.
func (c Config) Derive(p trace.OperationPerf, op *trace.Operation, device *trace.Device) Derived {
	d := Derived{
		OperationID:       p.ID,
		KeySource:         p.KeySource,
		OpCode:            p.OpCode,
		OpName:            p.OpName,
		DeviceID:          p.DeviceID,
		CoreCount:         p.CoreCount,
		MathFidelity:      p.MathFidelity,
		DeviceTimeNs:      p.DeviceTimeNs,
		OpToOpGapNs:       p.OpToOpGapNs,
		PMIdealNs:         p.PMIdealNs,
		FPUUtilPercent:    p.FPUUtilPercent,
		DRAMUtilPercent:   p.DRAMUtilPercent,
		CoreUtilization:   CoreUtilization(p, device),
		DispatchCQCmdNs:   p.DispatchCQCmdNs,
		DispatchWaitNs:    p.DispatchWaitNs,
		ERISCKernelNs:     p.ERISCKernelNs,
		Bound:             c.Bound(p),
		Efficiency:        Efficiency(p),
		HostOverheadRatio: HostOverheadRatio(p),
	}
	if op != nil {
		d.OperationName = op.Name
		d.DurationNs = op.Duration
		if d.DeviceID == nil {
			d.DeviceID = op.DeviceID
		}
	}
	return d
}
