package metrics

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
	"github.com/ttnn-vis/ttnn-vis-cli/internal/testutil"
)

func perf(fpu, dram trace.Float) trace.OperationPerf {
	return trace.OperationPerf{FPUUtilPercent: fpu, DRAMUtilPercent: dram}
}

func TestBound_Table(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		p    trace.OperationPerf
		want BoundClass
	}{
		{"fpu dominant", perf(trace.Known(58.4), trace.Known(2.0)), Compute},
		{"dram dominant", perf(trace.Known(3), trace.Known(71)), Memory},
		{"both zero", perf(trace.Known(0), trace.Known(0)), Balanced},
		{"both missing", perf(trace.Undefined, trace.Undefined), Balanced},
		{"inside tie band", perf(trace.Known(40), trace.Known(44)), Balanced},
		{"tie band edge is balanced", perf(trace.Known(40), trace.Known(45)), Balanced},
		{"below floor", perf(trace.Known(9), trace.Known(1)), Balanced},
		{"missing dram counts as zero", perf(trace.Known(30), trace.Undefined), Compute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cfg.Bound(tc.p))
		})
	}
}

func TestBound_AlwaysOneOfThreeClasses(t *testing.T) {
	cfg := DefaultConfig()
	valid := map[BoundClass]bool{Compute: true, Memory: true, Balanced: true}
	for fpu := 0.0; fpu <= 100; fpu += 7.5 {
		for dram := 0.0; dram <= 100; dram += 7.5 {
			got := cfg.Bound(perf(trace.Known(fpu), trace.Known(dram)))
			if !valid[got] {
				t.Fatalf("fpu=%v dram=%v: invalid class %q", fpu, dram, got)
			}
		}
	}
}

func TestEfficiency(t *testing.T) {
	// GIVEN ideal 1500ns over device 2000ns
	p := trace.OperationPerf{DeviceTimeNs: trace.Known(2000), PMIdealNs: trace.Known(1500)}

	// THEN efficiency is the 0.75 ratio
	e := Efficiency(p)
	assert.True(t, e.Valid)
	testutil.AssertFloat64Equal(t, "efficiency", 0.75, e.Value, 1e-12)
}

func TestEfficiency_ZeroDeviceTime_IsUndefined(t *testing.T) {
	// GIVEN a zero device time
	p := trace.OperationPerf{DeviceTimeNs: trace.Known(0), PMIdealNs: trace.Known(1500)}

	// WHEN efficiency is derived
	e := Efficiency(p)

	// THEN it is undefined, never 0 or infinity
	assert.False(t, e.Valid)
	assert.False(t, math.IsInf(e.Value, 0))
}

func TestEfficiency_UnknownIdeal_IsUndefined(t *testing.T) {
	p := trace.OperationPerf{DeviceTimeNs: trace.Known(10)}
	assert.False(t, Efficiency(p).Valid)
}

func TestHostOverheadRatio(t *testing.T) {
	tests := []struct {
		name   string
		gap    trace.Float
		device trace.Float
		want   trace.Float
	}{
		{"quarter", trace.Known(100), trace.Known(300), trace.Known(0.25)},
		{"both zero", trace.Known(0), trace.Known(0), trace.Known(0)},
		{"gap unknown", trace.Undefined, trace.Known(300), trace.Undefined},
		{"device unknown", trace.Known(100), trace.Undefined, trace.Undefined},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := HostOverheadRatio(trace.OperationPerf{OpToOpGapNs: tc.gap, DeviceTimeNs: tc.device})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCoreUtilization(t *testing.T) {
	dev := &trace.Device{NumXComputeCores: 8, NumYComputeCores: 8}

	got := CoreUtilization(trace.OperationPerf{CoreCount: 16}, dev)
	assert.Equal(t, trace.Known(0.25), got)

	assert.False(t, CoreUtilization(trace.OperationPerf{CoreCount: 16}, nil).Valid)
	assert.False(t, CoreUtilization(trace.OperationPerf{}, dev).Valid)
}

func TestDerive_JoinsOperationAndDevice(t *testing.T) {
	// GIVEN a perf row without a device id, and its correlated operation
	devID := int64(1)
	op := &trace.Operation{ID: 3, Name: "ttnn.matmul", DeviceID: &devID, Duration: trace.Known(1200)}
	p := trace.OperationPerf{
		ID: 3, OpCode: "Matmul", CoreCount: 32,
		DeviceTimeNs: trace.Known(1000), PMIdealNs: trace.Known(400),
		OpToOpGapNs: trace.Known(1000), FPUUtilPercent: trace.Known(58.4), DRAMUtilPercent: trace.Known(2),
	}

	// WHEN derived
	d := DefaultConfig().Derive(p, op, &trace.Device{NumComputeCores: 64})

	// THEN identity fields come from both records
	assert.Equal(t, "ttnn.matmul", d.OperationName)
	assert.Equal(t, trace.Known(1200), d.DurationNs)
	assert.Equal(t, &devID, d.DeviceID)
	assert.Equal(t, Compute, d.Bound)
	assert.Equal(t, trace.Known(0.4), d.Efficiency)
	assert.Equal(t, trace.Known(0.5), d.HostOverheadRatio)
	assert.Equal(t, trace.Known(0.5), d.CoreUtilization)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	err := Config{ComputeFloorPercent: -1}.Validate()
	var ce *trace.ConfigError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, "metrics.compute_floor_percent", ce.Field)

	assert.Error(t, Config{TieBandPercent: math.NaN()}.Validate())
}
