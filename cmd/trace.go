package cmd

import (
	"context"
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/report"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/store"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

var (
	listLimit     int    // Row cap for listings, 0 for all
	hexAddresses  bool   // Print addresses in hex
	bufferDevice  int64  // buffers --device
	bufferOp      int64  // buffers --operation
	bufferTypeArg string // buffers --type
)

func mustRender(cmd *cobra.Command, data any, t *table) {
	f, err := parseFormat(outputFormat)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	if err := render(cmd.OutOrStdout(), f, data, t); err != nil {
		logrus.Fatalf("Failed to write output: %v", err)
	}
}

func mustID(arg, what string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		logrus.Fatalf("Invalid %s id %q", what, arg)
	}
	return id
}

// mustOpenStore opens the profiler database for queries the snapshot does
// not carry. The caller closes the store and calls cancel.
func mustOpenStore() (*store.Store, context.Context, context.CancelFunc) {
	if profilerPath == "" {
		logrus.Fatalf("This command needs a profiler database (--profiler)")
	}
	ctx, cancel := loadContext()
	s, err := store.Open(ctx, profilerPath)
	if err != nil {
		cancel()
		logrus.Fatalf("Failed to open trace database: %v", err)
	}
	return s, ctx, cancel
}

func limited[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show what the loaded trace and report contain",
	Run: func(cmd *cobra.Command, args []string) {
		info := trace.Summarize(mustLoad())
		t := fields(
			"run_id", info.RunID,
			"profiler", info.ProfilerPath,
			"performance_report", info.PerformancePath,
			"devices", itoa(info.DeviceCount),
			"operations", itoa(info.OperationCount),
			"tensors", itoa(info.TensorCount),
			"buffers", itoa(info.BufferCount),
			"perf_rows", itoa(info.PerfRowCount),
			"total_duration_ns", fmtNsValue(info.TotalDurationNs),
			"warnings", itoa(info.WarningCount),
		)
		mustRender(cmd, info, t)
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices and their L1 geometry",
	Run: func(cmd *cobra.Command, args []string) {
		snap := mustLoad()
		mustRequire(snap, true, false)
		t := newTable("ID", "ARCH", "GRID", "COMPUTE_CORES", "L1_BANKS", "L1_BANK_SIZE", "L1_FOR_TENSORS")
		for _, d := range snap.Devices {
			t.add(i64(d.ID), d.Arch,
				i64(d.NumXComputeCores)+"x"+i64(d.NumYComputeCores),
				i64(d.ComputeCores()), i64(d.L1NumBanks),
				fmtBytes(d.L1BankSize), fmtBytes(d.L1Capacity()))
		}
		mustRender(cmd, snap.Devices, t)
	},
}

var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "List operations in execution order",
	Run: func(cmd *cobra.Command, args []string) {
		snap := mustLoad()
		mustRequire(snap, true, false)
		ops := limited(snap.Operations, listLimit)
		t := newTable("ID", "NAME", "DEVICE", "DURATION_NS", "INPUTS", "OUTPUTS")
		for _, op := range ops {
			t.add(i64(op.ID), op.Name, fmtOptInt(op.DeviceID), fmtNs(op.Duration),
				joinIDs(op.Inputs), joinIDs(op.Outputs))
		}
		mustRender(cmd, ops, t)
	},
}

// operationDetail is one operation with everything recorded about it.
type operationDetail struct {
	Operation  trace.Operation           `json:"operation"`
	Perf       *trace.OperationPerf      `json:"perf,omitempty"`
	Arguments  []trace.OperationArgument `json:"arguments"`
	StackTrace string                    `json:"stack_trace,omitempty"`
}

var operationCmd = &cobra.Command{
	Use:   "operation <id>",
	Short: "Show one operation with its arguments, stack trace and performance row",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := mustID(args[0], "operation")
		snap := mustLoad()
		mustRequire(snap, true, false)
		op, err := snap.Operation(id)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		detail := operationDetail{Operation: op}
		if p, ok := snap.PerfFor(id); ok {
			detail.Perf = &p
		}

		s, ctx, cancel := mustOpenStore()
		defer cancel()
		defer func() { _ = s.Close() }()
		if detail.Arguments, err = s.OperationArguments(ctx, id); err != nil {
			logrus.Fatalf("Failed to read arguments: %v", err)
		}
		if op.StackTraceID != nil {
			text, err := s.StackTrace(ctx, *op.StackTraceID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				logrus.Debugf("stack trace %d not recorded", *op.StackTraceID)
			case err != nil:
				logrus.Fatalf("Failed to read stack trace: %v", err)
			default:
				detail.StackTrace = text
			}
		}

		t := fields(
			"id", i64(op.ID),
			"name", op.Name,
			"device", fmtOptInt(op.DeviceID),
			"duration_ns", fmtNs(op.Duration),
			"inputs", joinIDs(op.Inputs),
			"outputs", joinIDs(op.Outputs),
		)
		if detail.Perf != nil {
			t.add("op_code", detail.Perf.OpCode)
			t.add("device_time_ns", fmtNs(detail.Perf.DeviceTimeNs))
			t.add("op_to_op_gap_ns", fmtNs(detail.Perf.OpToOpGapNs))
			t.add("core_count", itoa(detail.Perf.CoreCount))
		}
		for _, a := range detail.Arguments {
			t.add("arg."+a.Name, a.Value)
		}
		if detail.StackTrace != "" {
			t.add("stack_trace", detail.StackTrace)
		}
		mustRender(cmd, detail, t)
	},
}

func tensorRow(t *table, x trace.Tensor) {
	t.add(i64(x.ID), x.ShapeText, string(x.DType), string(x.Layout), string(x.Placement),
		string(x.Strategy), fmtOptInt(x.DeviceID), fmtOptAddr(x.Address, hexAddresses))
}

var tensorHeader = []string{"ID", "SHAPE", "DTYPE", "LAYOUT", "PLACEMENT", "STRATEGY", "DEVICE", "ADDRESS"}

var tensorsCmd = &cobra.Command{
	Use:   "tensors",
	Short: "List tensors",
	Run: func(cmd *cobra.Command, args []string) {
		snap := mustLoad()
		mustRequire(snap, true, false)
		tensors := limited(snap.Tensors, listLimit)
		t := newTable(tensorHeader...)
		for _, x := range tensors {
			tensorRow(t, x)
		}
		mustRender(cmd, tensors, t)
	},
}

var tensorCmd = &cobra.Command{
	Use:   "tensor <id>",
	Short: "Show one tensor",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := mustID(args[0], "tensor")
		snap := mustLoad()
		mustRequire(snap, true, false)
		x, err := snap.Tensor(id)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		t := newTable(tensorHeader...)
		tensorRow(t, x)
		mustRender(cmd, x, t)
	},
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Summarize recorded L1 and DRAM buffer usage",
	Run: func(cmd *cobra.Command, args []string) {
		snap := mustLoad()
		mustRequire(snap, true, false)
		m := report.Memory(snap)
		t := fields(
			"l1_used", fmtBytes(m.L1UsedBytes),
			"l1_total", fmtBytes(m.L1TotalBytes),
			"l1_usage", fmtPercent(m.L1UsagePercent),
			"l1_buffers", itoa(m.L1BufferCount),
			"dram_used", fmtBytes(m.DRAMUsedBytes),
			"dram_buffers", itoa(m.DRAMBufferCount),
		)
		mustRender(cmd, m, t)
	},
}

var buffersCmd = &cobra.Command{
	Use:   "buffers",
	Short: "List buffers recorded in the trace database",
	Run: func(cmd *cobra.Command, args []string) {
		filter := store.BufferFilter{Limit: listLimit}
		if cmd.Flags().Changed("device") {
			filter.DeviceID = &bufferDevice
		}
		if cmd.Flags().Changed("operation") {
			filter.OperationID = &bufferOp
		}
		if bufferTypeArg != "" {
			bt, ok := trace.ParseBufferType(bufferTypeArg)
			if !ok {
				logrus.Fatalf("Unknown buffer type %q", bufferTypeArg)
			}
			filter.Type = &bt
		}

		s, ctx, cancel := mustOpenStore()
		defer cancel()
		defer func() { _ = s.Close() }()
		buffers, err := s.Buffers(ctx, filter)
		if err != nil {
			logrus.Fatalf("Failed to read buffers: %v", err)
		}
		t := newTable("ID", "OPERATION", "DEVICE", "TYPE", "ADDRESS", "SIZE")
		for _, b := range buffers {
			t.add(i64(b.ID), fmtOptInt(b.OperationID), i64(b.DeviceID), b.Type.String(),
				fmtAddr(b.Address, hexAddresses), fmtBytes(b.Size))
		}
		mustRender(cmd, buffers, t)
	},
}

func init() {
	operationsCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum rows to show (0 for all)")
	tensorsCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum rows to show (0 for all)")
	tensorsCmd.Flags().BoolVar(&hexAddresses, "hex", true, "Print addresses in hex")
	tensorCmd.Flags().BoolVar(&hexAddresses, "hex", true, "Print addresses in hex")
	buffersCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum rows to show (0 for all)")
	buffersCmd.Flags().BoolVar(&hexAddresses, "hex", true, "Print addresses in hex")
	buffersCmd.Flags().Int64Var(&bufferDevice, "device", 0, "Only buffers on this device")
	buffersCmd.Flags().Int64Var(&bufferOp, "operation", 0, "Only buffers recorded for this operation")
	buffersCmd.Flags().StringVar(&bufferTypeArg, "type", "", "Only buffers of this type (DRAM, L1, L1_SMALL, SYSTEM_MEMORY, TRACE)")

	rootCmd.AddCommand(infoCmd, devicesCmd, operationsCmd, operationCmd, tensorsCmd, tensorCmd, memoryCmd, buffersCmd)
}
