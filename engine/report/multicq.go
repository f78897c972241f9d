package report

import (
	"fmt"
	"sort"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/metrics"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// MultiCQConfig holds the I/O thresholds used to recommend a second
// command queue.
type MultiCQConfig struct {
	IOBoundPercent     float64 `yaml:"io_bound_percent"`
	RecommendedPercent float64 `yaml:"recommended_percent"`
	DominanceRatio     float64 `yaml:"dominance_ratio"`
}

// DefaultMultiCQConfig returns the standard thresholds.
func DefaultMultiCQConfig() MultiCQConfig {
	return MultiCQConfig{IOBoundPercent: 30, RecommendedPercent: 20, DominanceRatio: 0.5}
}

// Validate rejects negative or non-finite thresholds.
func (c MultiCQConfig) Validate() error {
	if err := trace.RequireNonNegative("multi_cq.io_bound_percent", c.IOBoundPercent); err != nil {
		return err
	}
	if err := trace.RequireNonNegative("multi_cq.recommended_percent", c.RecommendedPercent); err != nil {
		return err
	}
	return trace.RequireNonNegative("multi_cq.dominance_ratio", c.DominanceRatio)
}

// OperationIO splits one op's time into device and I/O components.
type OperationIO struct {
	OperationID       int64   `json:"operation_id"`
	OpCode            string  `json:"op_code"`
	OpName            string  `json:"op_name"`
	DeviceTimeNs      float64 `json:"device_time_ns"`
	DispatchNs        float64 `json:"dispatch_time_ns"`
	WaitNs            float64 `json:"wait_time_ns"`
	ERISCNs           float64 `json:"erisc_time_ns"`
	IOTimeNs          float64 `json:"total_io_time_ns"`
	IOOverheadPercent float64 `json:"io_overhead_percent"`
	IOBound           bool    `json:"is_io_bound"`
	// HasTime is false when the op has neither device nor dispatch time.
	HasTime bool `json:"-"`
}

func operationIO(d metrics.Derived, cfg MultiCQConfig) OperationIO {
	o := OperationIO{
		OperationID:  d.OperationID,
		OpCode:       opCodeOf(d),
		OpName:       d.OpName,
		DeviceTimeNs: d.DeviceTimeNs.Or(0),
		DispatchNs:   d.DispatchCQCmdNs.Or(0),
		WaitNs:       d.DispatchWaitNs.Or(0),
		ERISCNs:      d.ERISCKernelNs.Or(0),
	}
	o.IOTimeNs = o.DispatchNs + o.WaitNs + o.ERISCNs
	total := o.DeviceTimeNs + o.DispatchNs + o.WaitNs
	o.HasTime = total > 0
	o.IOOverheadPercent = percent(o.IOTimeNs, total)
	o.IOBound = o.IOOverheadPercent > cfg.IOBoundPercent
	return o
}

// MultiCQSummary totals dispatch, wait and ERISC time across a run.
type MultiCQSummary struct {
	TotalOperations    int      `json:"total_operations"`
	TotalDeviceTimeNs  float64  `json:"total_device_time_ns"`
	TotalIOTimeNs      float64  `json:"total_io_time_ns"`
	TotalDispatchNs    float64  `json:"total_dispatch_cq_time_ns"`
	TotalWaitNs        float64  `json:"total_wait_time_ns"`
	TotalERISCNs       float64  `json:"total_erisc_time_ns"`
	TotalComputeNs     float64  `json:"total_compute_time_ns"`
	IOOverheadPercent  float64  `json:"io_overhead_percent"`
	IOBound            bool     `json:"is_io_bound"`
	MultiCQRecommended bool     `json:"multi_cq_recommended"`
	IOBoundOperations  int      `json:"io_bound_operations"`
	Recommendations    []string `json:"recommendations"`
}

// MultiCQ summarizes I/O overhead and recommends a second command queue
// when it is large.
func MultiCQ(derived []metrics.Derived, cfg MultiCQConfig) MultiCQSummary {
	s := MultiCQSummary{TotalOperations: len(derived), Recommendations: []string{}}
	if len(derived) == 0 {
		s.Recommendations = append(s.Recommendations, "No operations found in performance data")
		return s
	}
	for _, d := range derived {
		o := operationIO(d, cfg)
		s.TotalDeviceTimeNs += o.DeviceTimeNs
		s.TotalDispatchNs += o.DispatchNs
		s.TotalWaitNs += o.WaitNs
		s.TotalERISCNs += o.ERISCNs
		if o.HasTime && o.IOBound {
			s.IOBoundOperations++
		}
	}
	s.TotalIOTimeNs = s.TotalDispatchNs + s.TotalWaitNs + s.TotalERISCNs
	s.TotalComputeNs = s.TotalDeviceTimeNs - s.TotalERISCNs
	if s.TotalComputeNs < 0 {
		s.TotalComputeNs = 0
	}
	s.IOOverheadPercent = percent(s.TotalIOTimeNs, s.TotalDeviceTimeNs+s.TotalDispatchNs+s.TotalWaitNs)
	s.IOBound = s.IOOverheadPercent > cfg.IOBoundPercent
	s.MultiCQRecommended = s.IOOverheadPercent > cfg.RecommendedPercent
	s.Recommendations = ioRecommendations(s, cfg)
	return s
}

func ioRecommendations(s MultiCQSummary, cfg MultiCQConfig) []string {
	recs := []string{}
	if s.IOBound {
		recs = append(recs, fmt.Sprintf(
			"Model is I/O-BOUND (%.1f%% I/O overhead): device compute is waiting for data transfers", s.IOOverheadPercent))
	}
	if s.MultiCQRecommended {
		recs = append(recs,
			"2CQ RECOMMENDED: enable 2 command queues to overlap I/O with compute",
			"With 2CQ, one queue handles compute while the other handles data transfers")
	}
	if io := s.TotalIOTimeNs; io > 0 {
		switch {
		case s.TotalDispatchNs/io > cfg.DominanceRatio:
			recs = append(recs, fmt.Sprintf(
				"Dispatch CQ time dominates I/O (%.0f%%): consider batching operations to reduce command overhead", s.TotalDispatchNs/io*100))
		case s.TotalWaitNs/io > cfg.DominanceRatio:
			recs = append(recs, fmt.Sprintf(
				"Wait time dominates I/O (%.0f%%): consider async execution or pipelining", s.TotalWaitNs/io*100))
		case s.TotalERISCNs/io > cfg.DominanceRatio:
			recs = append(recs, fmt.Sprintf(
				"ERISC (data transfer) dominates I/O (%.0f%%): consider optimizing data placement or using sharding", s.TotalERISCNs/io*100))
		}
	}
	if s.IOBoundOperations > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d operations (%.1f%%) are I/O-bound: focus optimization on these operations",
			s.IOBoundOperations, percent(float64(s.IOBoundOperations), float64(s.TotalOperations))))
	}
	if !s.MultiCQRecommended && !s.IOBound {
		recs = append(recs, fmt.Sprintf(
			"Model is COMPUTE-BOUND (%.1f%% compute): focus on kernel optimization rather than I/O overlap",
			100-s.IOOverheadPercent))
	}
	return recs
}

// IOOperations lists ops by I/O overhead percent, largest first, ties by id.
func IOOperations(derived []metrics.Derived, cfg MultiCQConfig, limit int) []OperationIO {
	out := make([]OperationIO, 0, len(derived))
	for _, d := range derived {
		out = append(out, operationIO(d, cfg))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IOOverheadPercent != out[j].IOOverheadPercent {
			return out[i].IOOverheadPercent > out[j].IOOverheadPercent
		}
		return out[i].OperationID < out[j].OperationID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// IODistribution buckets ops by I/O overhead percent.
func IODistribution(derived []metrics.Derived, cfg MultiCQConfig) []Bucket {
	pcts := make([]float64, 0, len(derived))
	for _, d := range derived {
		if o := operationIO(d, cfg); o.HasTime {
			pcts = append(pcts, o.IOOverheadPercent)
		}
	}
	return bucketize(pcts)
}
