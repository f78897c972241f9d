package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/bottleneck"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/metrics"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/report"
)

var sortKeyArg string // perf/top ranking key

// limitFlag reads --limit from the running command. Commands register it
// with different defaults, so it is not bound to a shared variable.
func limitFlag(cmd *cobra.Command) int {
	n, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return 0
	}
	return n
}

func derivedTable(derived []metrics.Derived) *table {
	t := newTable("ID", "OP_CODE", "CORES", "DEVICE_NS", "GAP_NS", "IDEAL_NS", "EFFICIENCY", "FPU", "DRAM", "BOUND")
	for _, d := range derived {
		t.add(i64(d.OperationID), d.OpCode, itoa(d.CoreCount), fmtNs(d.DeviceTimeNs), fmtNs(d.OpToOpGapNs),
			fmtNs(d.PMIdealNs), fmtRatioPercent(d.Efficiency), fmtPercentOpt(d.FPUUtilPercent),
			fmtPercentOpt(d.DRAMUtilPercent), string(d.Bound))
	}
	return t
}

func mustSortKey() report.SortKey {
	key, err := report.ParseSortKey(sortKeyArg)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	return key
}

var perfCmd = &cobra.Command{
	Use:   "perf",
	Short: "List per-operation performance metrics",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, _ := mustAnalyze(cmd)
		rows := a.Derived
		if cmd.Flags().Changed("top") {
			rows = report.TopN(rows, mustSortKey(), limitFlag(cmd))
		} else {
			rows = limited(rows, limitFlag(cmd))
		}
		mustRender(cmd, rows, derivedTable(rows))
	},
}

var analysisCmd = &cobra.Command{
	Use:   "analysis",
	Short: "Aggregate performance analysis",
}

var opDistributionCmd = &cobra.Command{
	Use:   "op-distribution",
	Short: "Device time grouped by op code",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, _ := mustAnalyze(cmd)
		dist := report.OpDistribution(a.Derived, limitFlag(cmd))
		t := newTable("OP_CODE", "COUNT", "TOTAL_NS", "AVG_NS", "TIME", "OPS")
		for _, s := range dist {
			t.add(s.OpCode, itoa(s.Count), fmtNsValue(s.TotalTimeNs), fmtNsValue(s.AvgTimeNs),
				fmtPercent(s.PercentTime), fmtPercent(s.PercentCount))
		}
		mustRender(cmd, dist, t)
	},
}

var coreEfficiencyCmd = &cobra.Command{
	Use:   "core-efficiency",
	Short: "Operations grouped by core count",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, _ := mustAnalyze(cmd)
		buckets := report.CoreEfficiency(a.Derived)
		t := newTable("CORES", "OPS", "TOTAL_NS", "AVG_NS", "AVG_FPU", "COMPUTE", "MEMORY", "BALANCED")
		for _, b := range buckets {
			t.add(itoa(b.CoreCount), itoa(b.OpCount), fmtNsValue(b.TotalTimeNs), fmtNsValue(b.AvgTimeNs),
				fmtPercentOpt(b.AvgFPUUtil), itoa(b.Compute), itoa(b.Memory), itoa(b.Balanced))
		}
		mustRender(cmd, buckets, t)
	},
}

func opTypeCmd(use, short string, codes []string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			_, a, _ := mustAnalyze(cmd)
			r := report.OpTypeAnalysis(a.Derived, codes, limitFlag(cmd))
			t := newTable("ID", "OP_CODE", "CORES", "DEVICE_NS", "IDEAL_NS", "EFFICIENCY", "FPU", "BOUND", "FIDELITY")
			for _, e := range r.Operations {
				t.add(i64(e.OperationID), e.OpCode, itoa(e.CoreCount), fmtNs(e.DeviceTimeNs), fmtNs(e.PMIdealNs),
					fmtPercentOpt(e.EfficiencyPercent), fmtPercentOpt(e.FPUUtilPercent), string(e.Bound), e.MathFidelity)
			}
			if f, _ := parseFormat(outputFormat); f == formatTable {
				fmt.Fprintf(cmd.OutOrStdout(), "%d ops, %s of device time, avg efficiency %s (high %d, medium %d, low %d)\n\n",
					r.TotalCount, fmtPercent(r.PercentOfAll), fmtPercentOpt(r.AvgEfficiencyPercent),
					r.HighEfficiency, r.MediumEfficiency, r.LowEfficiency)
			}
			mustRender(cmd, r, t)
		},
	}
}

var bottlenecksCmd = &cobra.Command{
	Use:   "bottlenecks",
	Short: "Flag low-efficiency, high-gap and memory-inefficient operations",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, _ := mustAnalyze(cmd)
		r := a.Bottlenecks.Sorted(limitFlag(cmd))
		t := newTable("CATEGORY", "SEVERITY", "ID", "OP_CODE", "METRIC", "VALUE", "THRESHOLD", "TIME_NS", "REASON")
		for _, group := range [][]bottleneck.Bottleneck{r.LowEfficiency, r.HighGap, r.MemoryInefficient} {
			for _, b := range group {
				t.add(string(b.Category), string(b.Severity), i64(b.OperationID), b.OpCode, b.Metric,
					fmtFloat(b.Value), fmtFloat(b.Threshold), fmtNs(b.TimeNs), b.Reason)
			}
		}
		mustRender(cmd, r, t)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "One-screen performance overview",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, _ := mustAnalyze(cmd)
		s := a.Summary
		t := fields(
			"total_operations", itoa(s.TotalOperations),
			"total_device_time_ns", fmtNsValue(s.TotalDeviceTimeNs),
			"total_op_to_op_gap_ns", fmtNsValue(s.TotalOpToOpGapNs),
			"compute_bound", itoa(s.ComputeBound),
			"memory_bound", itoa(s.MemoryBound),
			"balanced", itoa(s.Balanced),
			"avg_fpu_util", fmtPercentOpt(s.AvgFPUUtil),
			"avg_dram_util", fmtPercentOpt(s.AvgDRAMUtil),
			"low_efficiency", itoa(s.LowEfficiencyCount),
			"high_gap", itoa(s.HighGapCount),
			"memory_inefficient", itoa(s.MemoryInefficientCount),
		)
		for _, op := range s.TopOpCodes {
			t.add("top_op_code", op.OpCode+" ("+fmtPercent(op.PercentTime)+")")
		}
		mustRender(cmd, s, t)
	},
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Slowest operations",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, _ := mustAnalyze(cmd)
		rows := report.TopN(a.Derived, mustSortKey(), limitFlag(cmd))
		mustRender(cmd, rows, derivedTable(rows))
	},
}

func init() {
	perfCmd.Flags().StringVar(&sortKeyArg, "top", string(report.ByDeviceTime), "Rank by duration, device-time or gap")
	perfCmd.Flags().Int("limit", 0, "Maximum rows to show (0 for all)")

	matmulCmd := opTypeCmd("matmul", "Matmul efficiency rollup", report.MatmulCodes)
	convCmd := opTypeCmd("conv", "Convolution efficiency rollup", report.ConvCodes)
	for _, c := range []*cobra.Command{opDistributionCmd, matmulCmd, convCmd, bottlenecksCmd} {
		c.Flags().Int("limit", 20, "Maximum rows to show (0 for all)")
	}
	topCmd.Flags().Int("limit", 10, "Number of operations")
	topCmd.Flags().StringVar(&sortKeyArg, "sort", string(report.ByDeviceTime), "Rank by duration, device-time or gap")

	bottlenecksCmd.Flags().Float64Var(&efficiencyThreshold, "efficiency-threshold", 50, "Flag ops below this efficiency (percent)")
	bottlenecksCmd.Flags().Float64Var(&gapThresholdMs, "gap-threshold-ms", 100, "Flag ops whose op-to-op gap reaches this (ms)")
	bottlenecksCmd.Flags().Float64Var(&dramFloor, "dram-floor", 30, "Flag memory-bound ops below this DRAM utilization (percent)")

	analysisCmd.AddCommand(opDistributionCmd, coreEfficiencyCmd, matmulCmd, convCmd, bottlenecksCmd, summaryCmd, topCmd)
	rootCmd.AddCommand(perfCmd, analysisCmd)
}
