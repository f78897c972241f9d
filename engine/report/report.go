// Package report folds per-operation metrics into the aggregate tables
// shown by the CLI: op-type distribution, core-count efficiency, top-N,
// the overall summary, host overhead, multi-CQ I/O, data formats and
// matmul/conv rollups.
//
// Inputs are plain slices; nothing here reads files or formats output.
// Undefined values are skipped by sums and means rather than counted as 0.
package report

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/bottleneck"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/metrics"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

const unknownOpCode = "Unknown"

// OpShare is one op code's slice of the total.
type OpShare struct {
	OpCode       string  `json:"op_code"`
	Count        int     `json:"count"`
	TotalTimeNs  float64 `json:"total_time_ns"`
	AvgTimeNs    float64 `json:"avg_time_ns"`
	PercentTime  float64 `json:"percent_time"`
	PercentCount float64 `json:"percent_count"`
}

// OpDistribution groups ops by op code, sorted by total device time
// descending then op code. limit <= 0 keeps every group.
func OpDistribution(derived []metrics.Derived, limit int) []OpShare {
	out := []OpShare{}
	if len(derived) == 0 {
		return out
	}
	groups := make(map[string]*OpShare)
	var total float64
	for _, d := range derived {
		code := opCodeOf(d)
		g, ok := groups[code]
		if !ok {
			g = &OpShare{OpCode: code}
			groups[code] = g
		}
		g.Count++
		t := d.DeviceTimeNs.Or(0)
		g.TotalTimeNs += t
		total += t
	}
	for _, g := range groups {
		g.AvgTimeNs = g.TotalTimeNs / float64(g.Count)
		g.PercentTime = percent(g.TotalTimeNs, total)
		g.PercentCount = percent(float64(g.Count), float64(len(derived)))
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTimeNs != out[j].TotalTimeNs {
			return out[i].TotalTimeNs > out[j].TotalTimeNs
		}
		return out[i].OpCode < out[j].OpCode
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CoreBucket groups ops that ran on the same number of cores.
type CoreBucket struct {
	CoreCount   int         `json:"core_count"`
	OpCount     int         `json:"op_count"`
	TotalTimeNs float64     `json:"total_time_ns"`
	AvgTimeNs   float64     `json:"avg_time_ns"`
	AvgFPUUtil  trace.Float `json:"avg_fpu_util"`
	Compute     int         `json:"compute_bound"`
	Memory      int         `json:"memory_bound"`
	Balanced    int         `json:"balanced"`
}

// CoreEfficiency buckets ops by core count, ascending. Ops without a core
// count are left out.
func CoreEfficiency(derived []metrics.Derived) []CoreBucket {
	byCores := make(map[int][]metrics.Derived)
	for _, d := range derived {
		if d.CoreCount > 0 {
			byCores[d.CoreCount] = append(byCores[d.CoreCount], d)
		}
	}
	out := make([]CoreBucket, 0, len(byCores))
	for cores, ops := range byCores {
		b := CoreBucket{CoreCount: cores, OpCount: len(ops)}
		fpu := make([]trace.Float, 0, len(ops))
		for _, d := range ops {
			b.TotalTimeNs += d.DeviceTimeNs.Or(0)
			fpu = append(fpu, d.FPUUtilPercent)
			switch d.Bound {
			case metrics.Compute:
				b.Compute++
			case metrics.Memory:
				b.Memory++
			default:
				b.Balanced++
			}
		}
		b.AvgTimeNs = b.TotalTimeNs / float64(b.OpCount)
		b.AvgFPUUtil = meanPositive(fpu)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CoreCount < out[j].CoreCount })
	return out
}

// SortKey selects the value TopN ranks by.
type SortKey string

const (
	ByDuration   SortKey = "duration"
	ByDeviceTime SortKey = "device-time"
	ByGap        SortKey = "gap"
)

// ParseSortKey validates a user-supplied sort key.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case ByDuration, ByDeviceTime, ByGap:
		return k, nil
	}
	return "", &trace.ConfigError{Field: "sort", Reason: fmt.Sprintf("unknown sort key %q (want duration, device-time or gap)", s)}
}

func (k SortKey) value(d metrics.Derived) trace.Float {
	switch k {
	case ByDuration:
		return d.DurationNs
	case ByGap:
		return d.OpToOpGapNs
	}
	return d.DeviceTimeNs
}

// TopN returns the n ops with the largest key value. Ties keep ascending
// operation id and undefined values sort last. n <= 0 returns every op.
func TopN(derived []metrics.Derived, key SortKey, n int) []metrics.Derived {
	out := append([]metrics.Derived{}, derived...)
	sort.SliceStable(out, func(i, j int) bool {
		vi, iok := key.value(out[i]).Get()
		vj, jok := key.value(out[j]).Get()
		if iok != jok {
			return iok
		}
		if iok && vi != vj {
			return vi > vj
		}
		return out[i].OperationID < out[j].OperationID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Summary is the one-screen overview of a performance report.
type Summary struct {
	TotalOperations   int         `json:"total_operations"`
	TotalDeviceTimeNs float64     `json:"total_device_time_ns"`
	TotalOpToOpGapNs  float64     `json:"total_op_to_op_gap_ns"`
	ComputeBound      int         `json:"compute_bound_count"`
	MemoryBound       int         `json:"memory_bound_count"`
	Balanced          int         `json:"balanced_count"`
	AvgFPUUtil        trace.Float `json:"avg_fpu_util"`
	AvgDRAMUtil       trace.Float `json:"avg_dram_util"`
	TopOpCodes        []OpShare   `json:"top_op_codes"`

	LowEfficiencyCount     int `json:"low_efficiency_count"`
	HighGapCount           int `json:"high_gap_count"`
	MemoryInefficientCount int `json:"memory_inefficient_count"`
}

// Summarize totals derived and attaches the bottleneck counts.
func Summarize(derived []metrics.Derived, counts bottleneck.Counts) Summary {
	s := Summary{
		TotalOperations:        len(derived),
		TopOpCodes:             OpDistribution(derived, 5),
		LowEfficiencyCount:     counts.LowEfficiency,
		HighGapCount:           counts.HighGap,
		MemoryInefficientCount: counts.MemoryInefficient,
	}
	fpu := make([]trace.Float, 0, len(derived))
	dram := make([]trace.Float, 0, len(derived))
	for _, d := range derived {
		s.TotalDeviceTimeNs += d.DeviceTimeNs.Or(0)
		s.TotalOpToOpGapNs += d.OpToOpGapNs.Or(0)
		switch d.Bound {
		case metrics.Compute:
			s.ComputeBound++
		case metrics.Memory:
			s.MemoryBound++
		default:
			s.Balanced++
		}
		fpu = append(fpu, d.FPUUtilPercent)
		dram = append(dram, d.DRAMUtilPercent)
	}
	s.AvgFPUUtil = meanPositive(fpu)
	s.AvgDRAMUtil = meanPositive(dram)
	return s
}

func opCodeOf(d metrics.Derived) string {
	if d.OpCode == "" {
		return unknownOpCode
	}
	return d.OpCode
}

// meanPositive is the mean of the defined values above zero.
func meanPositive(values []trace.Float) trace.Float {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		if x, ok := v.Get(); ok && x > 0 {
			xs = append(xs, x)
		}
	}
	if len(xs) == 0 {
		return trace.Undefined
	}
	return trace.Known(stat.Mean(xs, nil))
}

func percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part / total * 100
}

// Share is a named count and its percentage of the total.
type Share struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// shares turns counts into Shares sorted by count descending then name.
func shares(counts map[string]int, total int) []Share {
	out := make([]Share, 0, len(counts))
	for name, n := range counts {
		out = append(out, Share{Name: name, Count: n, Percent: percent(float64(n), float64(total))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Bucket counts ops whose percentage falls in Range.
type Bucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

var bucketBounds = []struct {
	label string
	upper float64
}{
	{"0-10%", 10}, {"10-20%", 20}, {"20-30%", 30}, {"30-50%", 50},
}

// bucketize spreads percentages over the fixed 0-10/10-20/20-30/30-50/50+
// ranges. An empty input yields no buckets.
func bucketize(percents []float64) []Bucket {
	if len(percents) == 0 {
		return []Bucket{}
	}
	out := make([]Bucket, len(bucketBounds)+1)
	for i, b := range bucketBounds {
		out[i].Range = b.label
	}
	out[len(bucketBounds)].Range = "50%+"
	for _, p := range percents {
		i := len(bucketBounds)
		for j, b := range bucketBounds {
			if p < b.upper {
				i = j
				break
			}
		}
		out[i].Count++
	}
	return out
}
