package report

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/metrics"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// HostOverheadConfig holds the host-overhead thresholds.
type HostOverheadConfig struct {
	// HostBoundPercent: overhead above this marks the model host-bound.
	HostBoundPercent float64 `yaml:"host_bound_percent"`
	// TraceRecommendedPercent: overhead above this recommends trace capture.
	TraceRecommendedPercent float64 `yaml:"trace_recommended_percent"`
	// GapVarianceMultiplier and GapVarianceMinNs flag a max gap larger than
	// multiplier x mean gap and larger than the floor.
	GapVarianceMultiplier float64 `yaml:"gap_variance_multiplier"`
	GapVarianceMinNs      float64 `yaml:"gap_variance_min_ns"`
}

// DefaultHostOverheadConfig returns the standard thresholds.
func DefaultHostOverheadConfig() HostOverheadConfig {
	return HostOverheadConfig{
		HostBoundPercent:        30,
		TraceRecommendedPercent: 20,
		GapVarianceMultiplier:   3,
		GapVarianceMinNs:        10000,
	}
}

// Validate rejects negative or non-finite thresholds.
func (c HostOverheadConfig) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"host_overhead.host_bound_percent", c.HostBoundPercent},
		{"host_overhead.trace_recommended_percent", c.TraceRecommendedPercent},
		{"host_overhead.gap_variance_multiplier", c.GapVarianceMultiplier},
		{"host_overhead.gap_variance_min_ns", c.GapVarianceMinNs},
	}
	for _, f := range fields {
		if err := trace.RequireNonNegative(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

// HostOverheadSummary compares time spent between ops with time on device.
type HostOverheadSummary struct {
	OperationCount           int         `json:"operation_count"`
	TotalDeviceTimeNs        float64     `json:"total_device_time_ns"`
	TotalOpToOpGapNs         float64     `json:"total_op_to_op_gap_ns"`
	TotalE2ETimeNs           float64     `json:"total_e2e_time_ns"`
	HostOverheadPercent      float64     `json:"host_overhead_percent"`
	DeviceUtilizationPercent float64     `json:"device_utilization_percent"`
	AvgGapNs                 trace.Float `json:"avg_op_to_op_gap_ns"`
	MaxGapNs                 trace.Float `json:"max_op_to_op_gap_ns"`
	P50GapNs                 trace.Float `json:"p50_op_to_op_gap_ns"`
	P90GapNs                 trace.Float `json:"p90_op_to_op_gap_ns"`
	P99GapNs                 trace.Float `json:"p99_op_to_op_gap_ns"`
	HostBound                bool        `json:"is_host_bound"`
	TraceRecommended         bool        `json:"metal_trace_recommended"`
	Recommendations          []string    `json:"recommendations"`
}

// HostOverhead summarizes op-to-op gaps against device time.
func HostOverhead(derived []metrics.Derived, cfg HostOverheadConfig) HostOverheadSummary {
	s := HostOverheadSummary{OperationCount: len(derived), Recommendations: []string{}}
	if len(derived) == 0 {
		s.Recommendations = append(s.Recommendations, "No operations found in performance data")
		return s
	}
	gaps := make([]float64, 0, len(derived))
	for _, d := range derived {
		s.TotalDeviceTimeNs += d.DeviceTimeNs.Or(0)
		if g, ok := d.OpToOpGapNs.Get(); ok {
			s.TotalOpToOpGapNs += g
			gaps = append(gaps, g)
		}
	}
	s.TotalE2ETimeNs = s.TotalDeviceTimeNs + s.TotalOpToOpGapNs
	s.HostOverheadPercent = percent(s.TotalOpToOpGapNs, s.TotalE2ETimeNs)
	s.DeviceUtilizationPercent = percent(s.TotalDeviceTimeNs, s.TotalE2ETimeNs)

	if len(gaps) > 0 {
		sort.Float64s(gaps)
		s.AvgGapNs = trace.Known(stat.Mean(gaps, nil))
		s.MaxGapNs = trace.Known(gaps[len(gaps)-1])
		s.P50GapNs = trace.Known(stat.Quantile(0.50, stat.Empirical, gaps, nil))
		s.P90GapNs = trace.Known(stat.Quantile(0.90, stat.Empirical, gaps, nil))
		s.P99GapNs = trace.Known(stat.Quantile(0.99, stat.Empirical, gaps, nil))
	}

	s.HostBound = s.HostOverheadPercent > cfg.HostBoundPercent
	s.TraceRecommended = s.HostOverheadPercent > cfg.TraceRecommendedPercent
	s.Recommendations = hostRecommendations(s, cfg)
	return s
}

func hostRecommendations(s HostOverheadSummary, cfg HostOverheadConfig) []string {
	recs := []string{}
	if s.HostBound {
		recs = append(recs, fmt.Sprintf(
			"Model is HOST-BOUND (%.1f%% overhead): device is waiting for host dispatch", s.HostOverheadPercent))
	}
	if s.TraceRecommended {
		recs = append(recs,
			"METAL TRACE RECOMMENDED: capture and replay operations to eliminate host overhead",
			"Prerequisites: all tensor shapes must be static and the same operations run repeatedly")
	}
	avgGap, avgOK := s.AvgGapNs.Get()
	maxGap, maxOK := s.MaxGapNs.Get()
	if avgOK && maxOK && maxGap > avgGap*cfg.GapVarianceMultiplier && maxGap > cfg.GapVarianceMinNs {
		recs = append(recs, fmt.Sprintf(
			"Large gap variance detected (max: %.1fus, avg: %.1fus): investigate operations with high gaps",
			maxGap/1000, avgGap/1000))
	}
	if s.HostOverheadPercent < cfg.TraceRecommendedPercent {
		recs = append(recs, fmt.Sprintf(
			"Model is DEVICE-BOUND (%.1f%% device utilization): focus on kernel optimization rather than host overhead",
			100-s.HostOverheadPercent))
	}
	if len(recs) == 0 {
		recs = append(recs, "Host overhead is within acceptable range")
	}
	return recs
}

// OperationOverhead is the gap share of one op.
type OperationOverhead struct {
	OperationID     int64       `json:"operation_id"`
	OpCode          string      `json:"op_code"`
	OpName          string      `json:"op_name"`
	CoreCount       int         `json:"core_count"`
	DeviceTimeNs    trace.Float `json:"device_time_ns"`
	OpToOpGapNs     trace.Float `json:"op_to_op_gap_ns"`
	OverheadPercent trace.Float `json:"overhead_percent"`
}

// TopOverhead lists ops by op-to-op gap, largest first, ties by id.
func TopOverhead(derived []metrics.Derived, limit int) []OperationOverhead {
	out := make([]OperationOverhead, 0, len(derived))
	for _, d := range TopN(derived, ByGap, limit) {
		o := OperationOverhead{
			OperationID:  d.OperationID,
			OpCode:       opCodeOf(d),
			OpName:       d.OpName,
			CoreCount:    d.CoreCount,
			DeviceTimeNs: d.DeviceTimeNs,
			OpToOpGapNs:  d.OpToOpGapNs,
		}
		if r, ok := d.HostOverheadRatio.Get(); ok {
			o.OverheadPercent = trace.Known(r * 100)
		}
		out = append(out, o)
	}
	return out
}

// OverheadDistribution buckets ops by per-op host overhead percent. Ops
// whose ratio is undefined, or with no time at all, are left out.
func OverheadDistribution(derived []metrics.Derived) []Bucket {
	pcts := make([]float64, 0, len(derived))
	for _, d := range derived {
		if d.OpToOpGapNs.Or(0)+d.DeviceTimeNs.Or(0) == 0 {
			continue
		}
		if r, ok := d.HostOverheadRatio.Get(); ok {
			pcts = append(pcts, r*100)
		}
	}
	return bucketize(pcts)
}
