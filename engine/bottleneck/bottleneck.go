// Package bottleneck scans derived metrics for operations that waste device
// time: low roofline efficiency, large host gaps before an op, and
// memory-bound ops that still leave DRAM bandwidth on the table.
package bottleneck

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/metrics"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// Category names the kind of bottleneck.
type Category string

const (
	LowEfficiency     Category = "low_efficiency"
	HighGap           Category = "high_gap"
	MemoryInefficient Category = "memory_inefficient"
)

// Severity grades how far past its threshold a value is.
type Severity string

const (
	Warning  Severity = "warning"
	Critical Severity = "critical"
)

// Config holds the scan thresholds.
type Config struct {
	// EfficiencyThresholdPercent flags ops whose efficiency is below it.
	EfficiencyThresholdPercent float64 `yaml:"efficiency_threshold_percent"`
	// GapThresholdMs flags ops whose op-to-op gap reaches it.
	GapThresholdMs float64 `yaml:"gap_threshold_ms"`
	// DRAMFloorPercent flags memory-bound ops with DRAM utilization below it.
	DRAMFloorPercent float64 `yaml:"dram_floor_percent"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{EfficiencyThresholdPercent: 50, GapThresholdMs: 100, DRAMFloorPercent: 30}
}

// Validate rejects negative or non-finite thresholds.
func (c Config) Validate() error {
	if err := trace.RequireNonNegative("bottlenecks.efficiency_threshold_percent", c.EfficiencyThresholdPercent); err != nil {
		return err
	}
	if err := trace.RequireNonNegative("bottlenecks.gap_threshold_ms", c.GapThresholdMs); err != nil {
		return err
	}
	return trace.RequireNonNegative("bottlenecks.dram_floor_percent", c.DRAMFloorPercent)
}

// Bottleneck is one flagged operation.
type Bottleneck struct {
	OperationID int64    `json:"operation_id"`
	OpCode      string   `json:"op_code"`
	Category    Category `json:"category"`
	Metric      string   `json:"metric"`
	Value       float64  `json:"value"`
	Threshold   float64  `json:"threshold"`
	Severity    Severity `json:"severity"`
	Reason      string   `json:"reason"`
	// TimeNs is the time the bottleneck costs: device time, or the gap for
	// HighGap.
	TimeNs trace.Float `json:"time_ns"`
}

// Counts is the number of bottlenecks per category.
type Counts struct {
	LowEfficiency     int `json:"low_efficiency_count"`
	HighGap           int `json:"high_gap_count"`
	MemoryInefficient int `json:"memory_inefficient_count"`
}

// Total is the sum over categories. An op can count in more than one.
func (c Counts) Total() int {
	return c.LowEfficiency + c.HighGap + c.MemoryInefficient
}

// Result partitions bottlenecks by category, each in input order.
type Result struct {
	LowEfficiency     []Bottleneck `json:"low_efficiency"`
	HighGap           []Bottleneck `json:"high_gap"`
	MemoryInefficient []Bottleneck `json:"memory_inefficient"`
	Counts            Counts       `json:"summary"`
}

// Scan checks every derived op against c in one pass. It does not validate
// c; callers do that at the config boundary.
func (c Config) Scan(derived []metrics.Derived) Result {
	r := Result{
		LowEfficiency:     []Bottleneck{},
		HighGap:           []Bottleneck{},
		MemoryInefficient: []Bottleneck{},
	}
	for _, d := range derived {
		if b, ok := c.lowEfficiency(d); ok {
			r.LowEfficiency = append(r.LowEfficiency, b)
		}
		if b, ok := c.highGap(d); ok {
			r.HighGap = append(r.HighGap, b)
		}
		if b, ok := c.memoryInefficient(d); ok {
			r.MemoryInefficient = append(r.MemoryInefficient, b)
		}
	}
	r.Counts = Counts{
		LowEfficiency:     len(r.LowEfficiency),
		HighGap:           len(r.HighGap),
		MemoryInefficient: len(r.MemoryInefficient),
	}
	return r
}

func (c Config) lowEfficiency(d metrics.Derived) (Bottleneck, bool) {
	eff, ok := d.Efficiency.Get()
	if !ok {
		return Bottleneck{}, false
	}
	pct := eff * 100
	if pct >= c.EfficiencyThresholdPercent {
		return Bottleneck{}, false
	}
	sev := Warning
	if pct < c.EfficiencyThresholdPercent/2 {
		sev = Critical
	}
	return Bottleneck{
		OperationID: d.OperationID,
		OpCode:      opCode(d),
		Category:    LowEfficiency,
		Metric:      "efficiency_percent",
		Value:       pct,
		Threshold:   c.EfficiencyThresholdPercent,
		Severity:    sev,
		Reason: fmt.Sprintf("efficiency %s%% below %s%% threshold",
			formatValue(pct), formatValue(c.EfficiencyThresholdPercent)),
		TimeNs: d.DeviceTimeNs,
	}, true
}

func (c Config) highGap(d metrics.Derived) (Bottleneck, bool) {
	gap, ok := d.OpToOpGapNs.Get()
	if !ok {
		return Bottleneck{}, false
	}
	ms := gap / 1e6
	if ms < c.GapThresholdMs {
		return Bottleneck{}, false
	}
	sev := Warning
	if ms >= 2*c.GapThresholdMs {
		sev = Critical
	}
	return Bottleneck{
		OperationID: d.OperationID,
		OpCode:      opCode(d),
		Category:    HighGap,
		Metric:      "op_to_op_gap_ms",
		Value:       ms,
		Threshold:   c.GapThresholdMs,
		Severity:    sev,
		Reason: fmt.Sprintf("op-to-op gap %sms >= %sms threshold (host overhead / data transfer)",
			formatValue(ms), formatValue(c.GapThresholdMs)),
		TimeNs: d.OpToOpGapNs,
	}, true
}

func (c Config) memoryInefficient(d metrics.Derived) (Bottleneck, bool) {
	if d.Bound != metrics.Memory {
		return Bottleneck{}, false
	}
	dram, ok := d.DRAMUtilPercent.Get()
	if !ok || dram >= c.DRAMFloorPercent {
		return Bottleneck{}, false
	}
	sev := Warning
	if dram < c.DRAMFloorPercent/2 {
		sev = Critical
	}
	return Bottleneck{
		OperationID: d.OperationID,
		OpCode:      opCode(d),
		Category:    MemoryInefficient,
		Metric:      "dram_util_percent",
		Value:       dram,
		Threshold:   c.DRAMFloorPercent,
		Severity:    sev,
		Reason: fmt.Sprintf("memory-bound with DRAM utilization %s%% below %s%% floor",
			formatValue(dram), formatValue(c.DRAMFloorPercent)),
		TimeNs: d.DeviceTimeNs,
	}, true
}

// Sorted returns a copy with each category ordered by the time it costs,
// largest first, and cut to limit entries (0 keeps all). Counts still
// describe the full scan.
func (r Result) Sorted(limit int) Result {
	return Result{
		LowEfficiency:     sortByTime(r.LowEfficiency, limit),
		HighGap:           sortByTime(r.HighGap, limit),
		MemoryInefficient: sortByTime(r.MemoryInefficient, limit),
		Counts:            r.Counts,
	}
}

func sortByTime(in []Bottleneck, limit int) []Bottleneck {
	out := append([]Bottleneck{}, in...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, iok := out[i].TimeNs.Get()
		tj, jok := out[j].TimeNs.Get()
		if iok != jok {
			return iok
		}
		if ti != tj {
			return ti > tj
		}
		return out[i].OperationID < out[j].OperationID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func opCode(d metrics.Derived) string {
	if d.OpCode == "" {
		return "Unknown"
	}
	return d.OpCode
}

// formatValue prints v with the shortest exact representation, after
// dropping float noise beyond six decimals.
func formatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e6)/1e6, 'f', -1, 64)
}
