package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/sharding"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

var (
	strategyArg  string // sharding tensors --strategy
	placementArg string // sharding tensors --placement
	reshardsOnly bool   // sharding operations --reshards-only
)

// shardingInputs loads the trace and detects reshards.
func shardingInputs(cmd *cobra.Command) (*trace.Snapshot, *sharding.Analyzer, []sharding.ReshardEvent) {
	cfg := mustConfig(cmd)
	snap := mustLoad()
	mustRequire(snap, true, false)
	events := sharding.DetectReshards(snap.Operations, snap.TensorMap())
	return snap, sharding.NewAnalyzer(cfg.Sharding, snap.Tensors), events
}

var shardingCmd = &cobra.Command{
	Use:   "sharding",
	Short: "Tensor sharding strategies and reshard transitions",
}

var shardingSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Strategy counts and recommendations",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, events := shardingInputs(cmd)
		s := a.Summary(len(events))
		t := fields(
			"total_tensors", itoa(s.TotalTensors),
			"height_sharded", itoa(s.HeightCount),
			"width_sharded", itoa(s.WidthCount),
			"block_sharded", itoa(s.BlockCount),
			"interleaved", itoa(s.InterleavedCount),
			"single_bank", itoa(s.SingleBankCount),
			"unknown", itoa(s.UnknownCount),
			"sharded", fmtPercent(s.ShardedPercent),
			"interleaved_share", fmtPercent(s.InterleavedPercent),
			"reshards", itoa(s.ReshardCount),
		).recommendations(s.Recommendations)
		mustRender(cmd, s, t)
	},
}

var shardingDistributionCmd = &cobra.Command{
	Use:   "distribution",
	Short: "Tensor count per strategy",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, _ := shardingInputs(cmd)
		dist := a.Distribution()
		t := newTable("STRATEGY", "COUNT", "SHARE", "L1", "DRAM")
		for _, d := range dist {
			t.add(string(d.Strategy), itoa(d.Count), fmtPercent(d.Percent), itoa(d.L1Count), itoa(d.DRAMCount))
		}
		mustRender(cmd, dist, t)
	},
}

var shardingTensorsCmd = &cobra.Command{
	Use:   "tensors",
	Short: "Per-tensor strategy and placement",
	Run: func(cmd *cobra.Command, args []string) {
		_, a, _ := shardingInputs(cmd)
		filter := sharding.TensorFilter{Limit: listLimit}
		if strategyArg != "" {
			filter.Strategy = trace.ParseStrategy(strategyArg)
		}
		if placementArg != "" {
			filter.Placement = trace.ParsePlacement("", strings.ToUpper(placementArg))
		}
		tensors := a.Tensors(filter)
		t := newTable("ID", "SHAPE", "DTYPE", "STRATEGY", "PLACEMENT")
		for _, x := range tensors {
			t.add(i64(x.TensorID), x.Shape, string(x.DType), string(x.Strategy), string(x.Placement))
		}
		mustRender(cmd, tensors, t)
	},
}

var shardingReshardsCmd = &cobra.Command{
	Use:   "reshards",
	Short: "Strategy changes between producing and consuming operations",
	Run: func(cmd *cobra.Command, args []string) {
		_, _, events := shardingInputs(cmd)
		events = limited(events, listLimit)
		t := newTable("PRODUCER", "CONSUMER", "TENSOR", "TRANSITION")
		for _, e := range events {
			t.add(i64(e.ProducerID), i64(e.ConsumerID), i64(e.TensorID), e.Detail())
		}
		mustRender(cmd, events, t)
	},
}

var shardingOperationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "Input and output strategies per operation",
	Run: func(cmd *cobra.Command, args []string) {
		snap, _, events := shardingInputs(cmd)
		ops := sharding.OperationShardings(snap.Operations, snap.TensorMap(), events)
		if reshardsOnly {
			kept := ops[:0]
			for _, op := range ops {
				if op.HasReshard {
					kept = append(kept, op)
				}
			}
			ops = kept
		}
		ops = limited(ops, listLimit)
		t := newTable("ID", "NAME", "INPUTS", "OUTPUTS", "RESHARD")
		for _, op := range ops {
			t.add(i64(op.OperationID), op.OperationName, joinStrategies(op.Inputs), joinStrategies(op.Outputs), op.ReshardDetail)
		}
		mustRender(cmd, ops, t)
	},
}

func init() {
	for _, c := range []*cobra.Command{shardingTensorsCmd, shardingReshardsCmd, shardingOperationsCmd} {
		c.Flags().IntVar(&listLimit, "limit", 0, "Maximum rows to show (0 for all)")
	}
	shardingTensorsCmd.Flags().StringVar(&strategyArg, "strategy", "", "Only tensors with this strategy (e.g. HEIGHT_SHARDED)")
	shardingTensorsCmd.Flags().StringVar(&placementArg, "placement", "", "Only tensors in this memory (L1, DRAM)")
	shardingOperationsCmd.Flags().BoolVar(&reshardsOnly, "reshards-only", false, "Only operations that consume a resharded tensor")

	shardingCmd.AddCommand(shardingSummaryCmd, shardingDistributionCmd, shardingTensorsCmd, shardingReshardsCmd, shardingOperationsCmd)
	rootCmd.AddCommand(shardingCmd)
}
