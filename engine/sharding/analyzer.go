package sharding

import (
	"fmt"
	"sort"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// Config holds the sharding recommendation thresholds.
type Config struct {
	// InterleavedWarnPercent flags heavy INTERLEAVED usage above this share.
	InterleavedWarnPercent float64 `yaml:"interleaved_warn_percent"`
	// ReshardWarnCount flags more reshards than this.
	ReshardWarnCount int `yaml:"reshard_warn_count"`
	// HeightPreferredRatio: below this HEIGHT share of sharded tensors,
	// suggest HEIGHT when WIDTH is more common.
	HeightPreferredRatio float64 `yaml:"height_preferred_ratio"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{InterleavedWarnPercent: 50, ReshardWarnCount: 10, HeightPreferredRatio: 0.5}
}

// Validate rejects negative or non-finite thresholds.
func (c Config) Validate() error {
	if err := trace.RequireNonNegative("sharding.interleaved_warn_percent", c.InterleavedWarnPercent); err != nil {
		return err
	}
	if c.ReshardWarnCount < 0 {
		return &trace.ConfigError{Field: "sharding.reshard_warn_count", Reason: fmt.Sprintf("must be >= 0, got %d", c.ReshardWarnCount)}
	}
	return trace.RequireNonNegative("sharding.height_preferred_ratio", c.HeightPreferredRatio)
}

// Distribution is the tensor count for one strategy.
type Distribution struct {
	Strategy  trace.Strategy `json:"strategy"`
	Count     int            `json:"count"`
	Percent   float64        `json:"percent"`
	L1Count   int            `json:"l1_count"`
	DRAMCount int            `json:"dram_count"`
}

// TensorSharding is the sharding view of one tensor.
type TensorSharding struct {
	TensorID  int64           `json:"tensor_id"`
	Shape     string          `json:"shape"`
	DType     trace.DType     `json:"dtype"`
	Strategy  trace.Strategy  `json:"strategy"`
	Placement trace.Placement `json:"placement"`
}

// Summary counts strategies and carries recommendations.
type Summary struct {
	TotalTensors       int      `json:"total_tensors"`
	HeightCount        int      `json:"height_sharded_count"`
	WidthCount         int      `json:"width_sharded_count"`
	BlockCount         int      `json:"block_sharded_count"`
	InterleavedCount   int      `json:"interleaved_count"`
	SingleBankCount    int      `json:"single_bank_count"`
	UnknownCount       int      `json:"unknown_count"`
	ShardedPercent     float64  `json:"sharded_percent"`
	InterleavedPercent float64  `json:"interleaved_percent"`
	ReshardCount       int      `json:"reshard_count"`
	Recommendations    []string `json:"recommendations"`
}

// Analyzer answers distribution questions over a tensor set.
type Analyzer struct {
	cfg     Config
	tensors []trace.Tensor
}

// NewAnalyzer returns an Analyzer over tensors, sorted by id.
func NewAnalyzer(cfg Config, tensors []trace.Tensor) *Analyzer {
	sorted := append([]trace.Tensor(nil), tensors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Analyzer{cfg: cfg, tensors: sorted}
}

// Distribution counts tensors per strategy, sorted by count descending then
// strategy name.
func (a *Analyzer) Distribution() []Distribution {
	byStrategy := make(map[trace.Strategy]*Distribution)
	for _, t := range a.tensors {
		d, ok := byStrategy[t.Strategy]
		if !ok {
			d = &Distribution{Strategy: t.Strategy}
			byStrategy[t.Strategy] = d
		}
		d.Count++
		switch t.Placement {
		case trace.PlacementL1:
			d.L1Count++
		case trace.PlacementDRAM:
			d.DRAMCount++
		}
	}
	out := make([]Distribution, 0, len(byStrategy))
	for _, d := range byStrategy {
		d.Percent = float64(d.Count) / float64(len(a.tensors)) * 100
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

// TensorFilter narrows Tensors. Empty fields match everything.
type TensorFilter struct {
	Strategy  trace.Strategy
	Placement trace.Placement
	Limit     int
}

// Tensors lists per-tensor sharding, in tensor id order.
func (a *Analyzer) Tensors(filter TensorFilter) []TensorSharding {
	out := []TensorSharding{}
	for _, t := range a.tensors {
		if filter.Strategy != "" && t.Strategy != filter.Strategy {
			continue
		}
		if filter.Placement != "" && t.Placement != filter.Placement {
			continue
		}
		out = append(out, TensorSharding{
			TensorID:  t.ID,
			Shape:     t.ShapeText,
			DType:     t.DType,
			Strategy:  t.Strategy,
			Placement: t.Placement,
		})
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// Summary counts strategies and produces recommendations given the number
// of reshards found by DetectReshards.
func (a *Analyzer) Summary(reshardCount int) Summary {
	s := Summary{ReshardCount: reshardCount, Recommendations: []string{}}
	if len(a.tensors) == 0 {
		return s
	}
	counts := make(map[trace.Strategy]int)
	for _, t := range a.tensors {
		counts[t.Strategy]++
	}
	total := len(a.tensors)
	sharded := counts[trace.StrategyHeight] + counts[trace.StrategyWidth] + counts[trace.StrategyBlock]

	s.TotalTensors = total
	s.HeightCount = counts[trace.StrategyHeight]
	s.WidthCount = counts[trace.StrategyWidth]
	s.BlockCount = counts[trace.StrategyBlock]
	s.InterleavedCount = counts[trace.StrategyInterleaved]
	s.SingleBankCount = counts[trace.StrategySingleBank]
	s.UnknownCount = counts[trace.StrategyNone]
	s.ShardedPercent = float64(sharded) / float64(total) * 100
	s.InterleavedPercent = float64(s.InterleavedCount) / float64(total) * 100

	if s.InterleavedPercent > a.cfg.InterleavedWarnPercent {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"High INTERLEAVED usage (%.1f%%): consider sharding for better L1 utilization", s.InterleavedPercent))
	}
	if reshardCount > a.cfg.ReshardWarnCount {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"High reshard count (%d): consider a consistent sharding strategy across operations", reshardCount))
	}
	if sharded > 0 {
		ratio := float64(s.HeightCount) / float64(sharded)
		if ratio < a.cfg.HeightPreferredRatio && s.HeightCount < s.WidthCount {
			s.Recommendations = append(s.Recommendations,
				"Consider HEIGHT_SHARDED for most operations (recommended for spatial operations)")
		}
	}
	if s.UnknownCount > 0 {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"%d tensors have no sharding information", s.UnknownCount))
	}
	if len(s.Recommendations) == 0 {
		s.Recommendations = append(s.Recommendations, "Sharding configuration looks reasonable")
	}
	return s
}
