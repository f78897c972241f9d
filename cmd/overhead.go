package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/report"
)

func bucketTable(buckets []report.Bucket) *table {
	t := newTable("RANGE", "OPS")
	for _, b := range buckets {
		t.add(b.Range, itoa(b.Count))
	}
	return t
}

func shareRows(t *table, prefix string, shares []report.Share) {
	for _, s := range shares {
		t.add(prefix+"."+s.Name, itoa(s.Count)+" ("+fmtPercent(s.Percent)+")")
	}
}

var hostOverheadCmd = &cobra.Command{
	Use:   "host-overhead",
	Short: "Time spent between operations versus on device",
}

var hostOverheadSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Host overhead totals and trace-capture recommendation",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, cfg := mustAnalyze(cmd)
		s := report.HostOverhead(a.Derived, cfg.HostOverhead)
		t := fields(
			"operations", itoa(s.OperationCount),
			"device_time_ns", fmtNsValue(s.TotalDeviceTimeNs),
			"op_to_op_gap_ns", fmtNsValue(s.TotalOpToOpGapNs),
			"e2e_time_ns", fmtNsValue(s.TotalE2ETimeNs),
			"host_overhead", fmtPercent(s.HostOverheadPercent),
			"device_utilization", fmtPercent(s.DeviceUtilizationPercent),
			"avg_gap_ns", fmtNs(s.AvgGapNs),
			"p50_gap_ns", fmtNs(s.P50GapNs),
			"p90_gap_ns", fmtNs(s.P90GapNs),
			"p99_gap_ns", fmtNs(s.P99GapNs),
			"max_gap_ns", fmtNs(s.MaxGapNs),
			"host_bound", yesNo(s.HostBound),
			"trace_recommended", yesNo(s.TraceRecommended),
		).recommendations(s.Recommendations)
		mustRender(cmd, s, t)
	},
}

var hostOverheadTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Operations with the largest op-to-op gap",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, _ := mustAnalyze(cmd)
		ops := report.TopOverhead(a.Derived, limitFlag(cmd))
		t := newTable("ID", "OP_CODE", "CORES", "DEVICE_NS", "GAP_NS", "OVERHEAD")
		for _, o := range ops {
			t.add(i64(o.OperationID), o.OpCode, itoa(o.CoreCount), fmtNs(o.DeviceTimeNs), fmtNs(o.OpToOpGapNs),
				fmtPercentOpt(o.OverheadPercent))
		}
		mustRender(cmd, ops, t)
	},
}

var hostOverheadDistributionCmd = &cobra.Command{
	Use:   "distribution",
	Short: "Operations bucketed by host overhead percent",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, _ := mustAnalyze(cmd)
		buckets := report.OverheadDistribution(a.Derived)
		mustRender(cmd, buckets, bucketTable(buckets))
	},
}

var multiCQCmd = &cobra.Command{
	Use:   "multi-cq",
	Short: "Command-queue I/O overhead and 2CQ recommendation",
}

var multiCQSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Dispatch, wait and ERISC totals",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, cfg := mustAnalyze(cmd)
		s := report.MultiCQ(a.Derived, cfg.MultiCQ)
		t := fields(
			"operations", itoa(s.TotalOperations),
			"device_time_ns", fmtNsValue(s.TotalDeviceTimeNs),
			"compute_time_ns", fmtNsValue(s.TotalComputeNs),
			"io_time_ns", fmtNsValue(s.TotalIOTimeNs),
			"dispatch_cq_ns", fmtNsValue(s.TotalDispatchNs),
			"wait_ns", fmtNsValue(s.TotalWaitNs),
			"erisc_ns", fmtNsValue(s.TotalERISCNs),
			"io_overhead", fmtPercent(s.IOOverheadPercent),
			"io_bound", yesNo(s.IOBound),
			"io_bound_operations", itoa(s.IOBoundOperations),
			"multi_cq_recommended", yesNo(s.MultiCQRecommended),
		).recommendations(s.Recommendations)
		mustRender(cmd, s, t)
	},
}

var multiCQOperationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "Operations ranked by I/O overhead",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, cfg := mustAnalyze(cmd)
		ops := report.IOOperations(a.Derived, cfg.MultiCQ, limitFlag(cmd))
		t := newTable("ID", "OP_CODE", "DEVICE_NS", "DISPATCH_NS", "WAIT_NS", "ERISC_NS", "IO_OVERHEAD", "IO_BOUND")
		for _, o := range ops {
			t.add(i64(o.OperationID), o.OpCode, fmtNsValue(o.DeviceTimeNs), fmtNsValue(o.DispatchNs),
				fmtNsValue(o.WaitNs), fmtNsValue(o.ERISCNs), fmtPercent(o.IOOverheadPercent), yesNo(o.IOBound))
		}
		mustRender(cmd, ops, t)
	},
}

var multiCQDistributionCmd = &cobra.Command{
	Use:   "distribution",
	Short: "Operations bucketed by I/O overhead percent",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, cfg := mustAnalyze(cmd)
		buckets := report.IODistribution(a.Derived, cfg.MultiCQ)
		mustRender(cmd, buckets, bucketTable(buckets))
	},
}

var dataFormatCmd = &cobra.Command{
	Use:   "data-format",
	Short: "Tensor dtypes, layouts and math fidelity",
}

var dataFormatSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Dtype and layout distribution",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig(cmd)
		snap := mustLoad()
		mustRequire(snap, true, false)
		s := report.DataFormats(snap.Tensors, cfg.DataFormat)
		t := fields(
			"total_tensors", itoa(s.TotalTensors),
			"bfloat8_b_usage", fmtPercent(s.BFloat8BPercent),
			"tile_layout", fmtPercent(s.TilePercent),
		)
		shareRows(t, "dtype", s.DTypes)
		shareRows(t, "layout", s.Layouts)
		mustRender(cmd, s, t.recommendations(s.Recommendations))
	},
}

var mathFidelityCmd = &cobra.Command{
	Use:   "math-fidelity",
	Short: "Math fidelity distribution",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, cfg := mustAnalyze(cmd)
		s := report.MathFidelity(a.Derived, cfg.DataFormat)
		t := fields(
			"operations", itoa(s.TotalOperations),
			"lofi", fmtPercent(s.LoFiPercent),
		)
		shareRows(t, "fidelity", s.Distribution)
		mustRender(cmd, s, t.recommendations(s.Recommendations))
	},
}

func init() {
	hostOverheadTopCmd.Flags().Int("limit", 20, "Number of operations")
	multiCQOperationsCmd.Flags().Int("limit", 20, "Number of operations")

	hostOverheadCmd.AddCommand(hostOverheadSummaryCmd, hostOverheadTopCmd, hostOverheadDistributionCmd)
	multiCQCmd.AddCommand(multiCQSummaryCmd, multiCQOperationsCmd, multiCQDistributionCmd)
	dataFormatCmd.AddCommand(dataFormatSummaryCmd, mathFidelityCmd)
	rootCmd.AddCommand(hostOverheadCmd, multiCQCmd, dataFormatCmd)
}
