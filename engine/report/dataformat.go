package report

import (
	"fmt"
	"strings"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/metrics"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// DataFormatConfig holds the dtype, layout and fidelity thresholds.
type DataFormatConfig struct {
	BFloat8BLowPercent float64 `yaml:"bfloat8_b_low_percent"`
	TileLowPercent     float64 `yaml:"tile_low_percent"`
	LoFiLowPercent     float64 `yaml:"lofi_low_percent"`
}

// DefaultDataFormatConfig returns the standard thresholds.
func DefaultDataFormatConfig() DataFormatConfig {
	return DataFormatConfig{BFloat8BLowPercent: 20, TileLowPercent: 50, LoFiLowPercent: 50}
}

// Validate rejects negative or non-finite thresholds.
func (c DataFormatConfig) Validate() error {
	if err := trace.RequireNonNegative("data_format.bfloat8_b_low_percent", c.BFloat8BLowPercent); err != nil {
		return err
	}
	if err := trace.RequireNonNegative("data_format.tile_low_percent", c.TileLowPercent); err != nil {
		return err
	}
	return trace.RequireNonNegative("data_format.lofi_low_percent", c.LoFiLowPercent)
}

// DataFormatSummary describes tensor dtypes and layouts.
type DataFormatSummary struct {
	TotalTensors    int      `json:"total_tensors"`
	DTypes          []Share  `json:"dtype_distribution"`
	Layouts         []Share  `json:"layout_distribution"`
	BFloat16Count   int      `json:"bfloat16_count"`
	BFloat8BCount   int      `json:"bfloat8_b_count"`
	Float32Count    int      `json:"float32_count"`
	TileCount       int      `json:"tile_layout_count"`
	RowMajorCount   int      `json:"row_major_count"`
	BFloat8BPercent float64  `json:"bfloat8_b_usage_percent"`
	TilePercent     float64  `json:"tile_layout_percent"`
	Recommendations []string `json:"recommendations"`
}

// DataFormats counts tensor dtypes and layouts.
func DataFormats(tensors []trace.Tensor, cfg DataFormatConfig) DataFormatSummary {
	s := DataFormatSummary{
		TotalTensors:    len(tensors),
		DTypes:          []Share{},
		Layouts:         []Share{},
		Recommendations: []string{},
	}
	if len(tensors) == 0 {
		s.Recommendations = append(s.Recommendations, "No tensors found")
		return s
	}
	dtypes := make(map[string]int)
	layouts := make(map[string]int)
	for _, t := range tensors {
		dtypes[string(t.DType)]++
		layouts[string(t.Layout)]++
	}
	total := len(tensors)
	s.DTypes = shares(dtypes, total)
	s.Layouts = shares(layouts, total)
	s.BFloat16Count = dtypes[string(trace.DTypeBFloat16)]
	s.BFloat8BCount = dtypes[string(trace.DTypeBFloat8B)]
	s.Float32Count = dtypes[string(trace.DTypeFloat32)]
	s.TileCount = layouts[string(trace.LayoutTile)]
	s.RowMajorCount = layouts[string(trace.LayoutRowMajor)]
	s.BFloat8BPercent = percent(float64(s.BFloat8BCount), float64(total))
	s.TilePercent = percent(float64(s.TileCount), float64(total))

	if s.BFloat8BPercent < cfg.BFloat8BLowPercent && s.BFloat16Count > 0 {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"Low bfloat8_b usage (%.1f%%): consider bfloat8_b for weights (2x memory reduction)", s.BFloat8BPercent))
	}
	if s.TilePercent < cfg.TileLowPercent {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"Low TILE layout usage (%.1f%%): TILE layout is required for most compute operations", s.TilePercent))
	}
	if s.Float32Count > 0 {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"%d tensors use FLOAT32: consider BFLOAT16 for activations to reduce memory", s.Float32Count))
	}
	if len(s.Recommendations) == 0 {
		s.Recommendations = append(s.Recommendations, "Data format configuration looks good")
	}
	return s
}

// NormalizeFidelity maps raw fidelity text such as "MathFidelity.HiFi4" to
// LoFi, HiFi2, HiFi3 or HiFi4. Anything else is returned trimmed.
func NormalizeFidelity(raw string) string {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "LOFI"):
		return "LoFi"
	case strings.Contains(upper, "HIFI4"):
		return "HiFi4"
	case strings.Contains(upper, "HIFI3"):
		return "HiFi3"
	case strings.Contains(upper, "HIFI2"):
		return "HiFi2"
	}
	return strings.TrimSpace(raw)
}

// FidelitySummary describes the math fidelity of the ops that report one.
type FidelitySummary struct {
	TotalOperations int      `json:"total_operations"`
	Distribution    []Share  `json:"fidelity_distribution"`
	LoFiCount       int      `json:"lofi_count"`
	HiFi2Count      int      `json:"hifi2_count"`
	HiFi3Count      int      `json:"hifi3_count"`
	HiFi4Count      int      `json:"hifi4_count"`
	LoFiPercent     float64  `json:"lofi_percent"`
	Recommendations []string `json:"recommendations"`
}

// MathFidelity counts fidelity settings over ops that carry one.
func MathFidelity(derived []metrics.Derived, cfg DataFormatConfig) FidelitySummary {
	s := FidelitySummary{Distribution: []Share{}, Recommendations: []string{}}
	counts := make(map[string]int)
	for _, d := range derived {
		if strings.TrimSpace(d.MathFidelity) == "" {
			continue
		}
		counts[NormalizeFidelity(d.MathFidelity)]++
		s.TotalOperations++
	}
	if s.TotalOperations == 0 {
		s.Recommendations = append(s.Recommendations, "No math fidelity data in performance report")
		return s
	}
	s.Distribution = shares(counts, s.TotalOperations)
	s.LoFiCount = counts["LoFi"]
	s.HiFi2Count = counts["HiFi2"]
	s.HiFi3Count = counts["HiFi3"]
	s.HiFi4Count = counts["HiFi4"]
	s.LoFiPercent = percent(float64(s.LoFiCount), float64(s.TotalOperations))

	if s.LoFiPercent < cfg.LoFiLowPercent {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"LoFi usage is %.1f%%: consider starting with LoFi and increase only if PCC is insufficient", s.LoFiPercent))
	}
	if s.HiFi4Count > 0 {
		s.Recommendations = append(s.Recommendations, fmt.Sprintf(
			"%d operations use HiFi4: HiFi4 has the lowest throughput, consider HiFi2/HiFi3 if precision allows", s.HiFi4Count))
	}
	if len(s.Recommendations) == 0 {
		s.Recommendations = append(s.Recommendations, "Math fidelity configuration looks reasonable")
	}
	return s
}
