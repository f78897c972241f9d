package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ttnn-vis/ttnn-vis-cli/engine"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/memmap"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

var (
	l1Device     int64 // l1-report --device
	l1NoHex      bool  // l1-report --no-hex
	l1Previous   bool  // l1-report --previous
	l1PreviousOp int64 // l1-report --previous-op
)

// l1Devices picks the devices to render: those holding L1 buffers at opID,
// or every device when none do.
func l1Devices(snap *trace.Snapshot, opID int64) []int64 {
	var withBuffers, all []int64
	for _, d := range snap.Devices {
		all = append(all, d.ID)
		if len(memmap.LiveSet(snap, d.ID, opID)) > 0 {
			withBuffers = append(withBuffers, d.ID)
		}
	}
	if len(withBuffers) > 0 {
		return withBuffers
	}
	return all
}

// l1PreviousOf resolves the operation to compare against: the one named by
// --previous-op, else the operation before opID. nil means opID is first.
func l1PreviousOf(cmd *cobra.Command, snap *trace.Snapshot, opID int64) *int64 {
	if cmd.Flags().Changed("previous-op") {
		id := l1PreviousOp
		return &id
	}
	if prev, ok := memmap.PreviousOperation(snap, opID); ok {
		return &prev.ID
	}
	return nil
}

// buildL1Reports renders one report per device concurrently. Each entry is
// a memmap.Map, or a memmap.Comparison when compare is set.
func buildL1Reports(snap *trace.Snapshot, devices []int64, opID int64, compare bool, prevOpID *int64, cfg engine.Config) ([]any, error) {
	out := make([]any, len(devices))
	var g errgroup.Group
	for i, dev := range devices {
		g.Go(func() error {
			if compare {
				c, err := memmap.BuildComparison(snap, dev, prevOpID, opID, cfg.MemoryMap)
				if err != nil {
					return err
				}
				out[i] = c
				return nil
			}
			m, err := memmap.Build(snap, dev, opID, cfg.MemoryMap)
			if err != nil {
				return err
			}
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func writeL1Map(w io.Writer, title string, m memmap.Map, hex bool) {
	fmt.Fprintf(w, "%s: device %d, operation %d\n", title, m.DeviceID, m.OperationID)
	fmt.Fprintf(w, "L1 %s, %d%% occupied, %d%% allocated (%s occupied, %s allocated, %d buffers)\n",
		fmtBytes(m.Capacity), m.FillPercent, m.UsedPercent, fmtBytes(m.OccupiedBytes), fmtBytes(m.UsedBytes), len(m.Rows))
	fmt.Fprintf(w, "|%s|\n", m.Bar)
	fmt.Fprintf(w, " %s\n", m.LabelRow)
	fmt.Fprintf(w, " %s .. %s (%s per cell)\n\n", fmtAddr(0, hex), fmtAddr(m.Capacity, hex), fmtBytes(m.CellWidth))
	for _, warn := range m.Warnings {
		logrus.Warn(warn.String())
	}
}

func l1Table(m memmap.Map, hex bool) *table {
	t := newTable("NEW", "BUFFER", "TENSOR", "TYPE", "ADDRESS", "SIZE", "SHAPE", "DTYPE", "LAYOUT", "STRATEGY")
	for _, r := range m.Rows {
		mark := ""
		if r.New {
			mark = "*"
		}
		t.add(mark, i64(r.BufferID), fmtOptInt(r.TensorID), r.Type.String(), fmtAddr(r.Address, hex),
			fmtBytes(r.Size), r.Shape, string(r.DType), string(r.Layout), string(r.Strategy))
	}
	return t
}

var l1ReportCmd = &cobra.Command{
	Use:   "l1-report <operation-id>",
	Short: "Render the L1 memory map of an operation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opID := mustID(args[0], "operation")
		cfg := mustConfig(cmd)
		snap := mustLoad()
		mustRequire(snap, true, false)
		hex := hexAddresses && !l1NoHex

		devices := []int64{l1Device}
		if !cmd.Flags().Changed("device") {
			devices = l1Devices(snap, opID)
		}
		reports, err := buildL1Reports(snap, devices, opID, l1Previous, l1PreviousOf(cmd, snap, opID), cfg)
		if err != nil {
			logrus.Fatalf("Failed to build L1 report: %v", err)
		}

		f, _ := parseFormat(outputFormat)
		w := cmd.OutOrStdout()
		if f == formatJSON {
			mustRender(cmd, reports, nil)
			return
		}
		combined := newTable()
		for _, r := range reports {
			switch v := r.(type) {
			case memmap.Comparison:
				if f == formatTable {
					if v.HasPrevious {
						writeL1Map(w, "Previous", v.Previous, hex)
					} else {
						fmt.Fprint(w, "Previous: no earlier operation, every buffer is new\n\n")
					}
					writeL1Map(w, "Current", v.Current, hex)
					fmt.Fprintf(w, "added %d, retained %d, removed %d\n\n", len(v.Added), len(v.Retained), len(v.Removed))
				}
				combined = mergeTables(combined, l1Table(v.Current, hex))
			case memmap.Map:
				if f == formatTable {
					writeL1Map(w, "L1", v, hex)
				}
				combined = mergeTables(combined, l1Table(v, hex))
			}
		}
		mustRender(cmd, reports, combined)
	},
}

func mergeTables(dst, src *table) *table {
	if len(dst.header) == 0 {
		dst.header = src.header
	}
	dst.rows = append(dst.rows, src.rows...)
	return dst
}

func init() {
	l1ReportCmd.Flags().Int64Var(&l1Device, "device", 0, "Device to render (default: every device with L1 buffers)")
	l1ReportCmd.Flags().BoolVar(&hexAddresses, "hex", true, "Print addresses in hex")
	l1ReportCmd.Flags().BoolVar(&l1NoHex, "no-hex", false, "Print addresses in decimal")
	l1ReportCmd.Flags().BoolVar(&l1Previous, "previous", true, "Compare with a previous operation and mark new buffers")
	l1ReportCmd.Flags().Int64Var(&l1PreviousOp, "previous-op", 0, "Operation to compare with (default: the operation before)")
	l1ReportCmd.Flags().IntVar(&mapCells, "cells", 50, "Width of the memory bar in characters")

	rootCmd.AddCommand(l1ReportCmd)
}
