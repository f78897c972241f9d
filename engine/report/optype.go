package report

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/metrics"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// Op codes matched, case-insensitively by substring, for the rollups.
var (
	MatmulCodes = []string{"Matmul", "MatmulDeviceOperation"}
	ConvCodes   = []string{"Conv", "Conv2d", "ConvDeviceOperation", "OptimizedConvNew"}
)

// OpTypeEntry is one matched op.
type OpTypeEntry struct {
	OperationID       int64              `json:"operation_id"`
	OpCode            string             `json:"op_code"`
	CoreCount         int                `json:"core_count"`
	DeviceTimeNs      trace.Float        `json:"device_time_ns"`
	PMIdealNs         trace.Float        `json:"ideal_time_ns"`
	EfficiencyPercent trace.Float        `json:"efficiency"`
	FPUUtilPercent    trace.Float        `json:"fpu_util"`
	Bound             metrics.BoundClass `json:"bound"`
	MathFidelity      string             `json:"math_fidelity"`
}

// OpTypeReport rolls up every op matching a set of op codes.
type OpTypeReport struct {
	Operations           []OpTypeEntry `json:"operations"`
	TotalCount           int           `json:"total_count"`
	TotalTimeNs          float64       `json:"total_time_ns"`
	PercentOfAll         float64       `json:"percent_of_all_ops"`
	AvgEfficiencyPercent trace.Float   `json:"avg_efficiency"`
	AvgFPUUtil           trace.Float   `json:"avg_fpu_util"`
	HighEfficiency       int           `json:"high"`
	MediumEfficiency     int           `json:"medium"`
	LowEfficiency        int           `json:"low"`
	Fidelity             []Share       `json:"math_fidelity"`
}

func matchesAny(opCode string, codes []string) bool {
	lower := strings.ToLower(opCode)
	for _, c := range codes {
		if strings.Contains(lower, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// OpTypeAnalysis rolls up ops matching codes. Efficiency is bucketed high
// (>80%), medium (50-80%) or low (<50%); ops without one are not bucketed.
// Operations are sorted by device time descending and cut to limit.
func OpTypeAnalysis(derived []metrics.Derived, codes []string, limit int) OpTypeReport {
	r := OpTypeReport{Operations: []OpTypeEntry{}, Fidelity: []Share{}}
	var allTime float64
	effs := []float64{}
	fpu := []trace.Float{}
	fidelity := make(map[string]int)
	for _, d := range derived {
		allTime += d.DeviceTimeNs.Or(0)
		if !matchesAny(d.OpCode, codes) {
			continue
		}
		e := OpTypeEntry{
			OperationID:    d.OperationID,
			OpCode:         d.OpCode,
			CoreCount:      d.CoreCount,
			DeviceTimeNs:   d.DeviceTimeNs,
			PMIdealNs:      d.PMIdealNs,
			FPUUtilPercent: d.FPUUtilPercent,
			Bound:          d.Bound,
			MathFidelity:   d.MathFidelity,
		}
		if eff, ok := d.Efficiency.Get(); ok {
			pct := eff * 100
			e.EfficiencyPercent = trace.Known(pct)
			effs = append(effs, pct)
			switch {
			case pct > 80:
				r.HighEfficiency++
			case pct >= 50:
				r.MediumEfficiency++
			default:
				r.LowEfficiency++
			}
		}
		if d.MathFidelity != "" {
			fidelity[NormalizeFidelity(d.MathFidelity)]++
		}
		fpu = append(fpu, d.FPUUtilPercent)
		r.TotalTimeNs += d.DeviceTimeNs.Or(0)
		r.Operations = append(r.Operations, e)
	}
	r.TotalCount = len(r.Operations)
	r.PercentOfAll = percent(r.TotalTimeNs, allTime)
	if len(effs) > 0 {
		r.AvgEfficiencyPercent = trace.Known(stat.Mean(effs, nil))
	}
	r.AvgFPUUtil = meanPositive(fpu)
	r.Fidelity = shares(fidelity, r.TotalCount)

	sort.SliceStable(r.Operations, func(i, j int) bool {
		ti, tj := r.Operations[i].DeviceTimeNs.Or(-1), r.Operations[j].DeviceTimeNs.Or(-1)
		if ti != tj {
			return ti > tj
		}
		return r.Operations[i].OperationID < r.Operations[j].OperationID
	})
	if limit > 0 && len(r.Operations) > limit {
		r.Operations = r.Operations[:limit]
	}
	return r
}
