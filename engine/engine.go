package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/bottleneck"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/metrics"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/perfcsv"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/report"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/sharding"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/store"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// ErrNoInput is returned by Load when neither input path is set.
var ErrNoInput = errors.New("no profiler database or performance report given")

// LoadOptions names the inputs of a run. Either may be empty, not both.
type LoadOptions struct {
	ProfilerPath    string
	PerformancePath string
}

// Load reads both inputs concurrently and returns one snapshot. The first
// reader to fail cancels the other.
func Load(ctx context.Context, opts LoadOptions) (*trace.Snapshot, error) {
	if opts.ProfilerPath == "" && opts.PerformancePath == "" {
		return nil, ErrNoInput
	}

	var db, perf trace.Source
	g, gctx := errgroup.WithContext(ctx)
	if opts.ProfilerPath != "" {
		g.Go(func() error {
			s, err := store.Open(gctx, opts.ProfilerPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			db, err = s.Load(gctx)
			if err != nil {
				return fmt.Errorf("loading %s: %w", opts.ProfilerPath, err)
			}
			return nil
		})
	}
	if opts.PerformancePath != "" {
		g.Go(func() error {
			file, err := perfcsv.Find(opts.PerformancePath)
			if err != nil {
				return err
			}
			rows, ws, err := perfcsv.Load(file)
			if err != nil {
				return err
			}
			perf = trace.Source{PerformancePath: file, Perf: rows, Warnings: ws}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	src := db
	src.PerformancePath = perf.PerformancePath
	src.Perf = perf.Perf
	src.Warnings = append(src.Warnings, perf.Warnings...)
	snap := trace.NewSnapshot(src)

	logrus.WithField("run", snap.RunID).Infof("snapshot ready: %d operations, %d performance rows, %d warnings",
		len(snap.Operations), len(snap.Perf), len(snap.Warnings))
	return snap, nil
}

// Analysis is the result of one Analyze call.
type Analysis struct {
	Derived     []metrics.Derived       `json:"derived"`
	Bottlenecks bottleneck.Result       `json:"bottlenecks"`
	Reshards    []sharding.ReshardEvent `json:"reshards"`
	Summary     report.Summary          `json:"summary"`
	// Warnings holds the snapshot's warnings followed by correlation
	// problems found while joining performance rows to operations.
	Warnings trace.Warnings `json:"warnings"`
}

// Analyze derives metrics for every non-signpost performance row and runs
// the bottleneck and reshard scans. cfg must already be valid.
func Analyze(snap *trace.Snapshot, cfg Config) Analysis {
	a := Analysis{
		Derived:  make([]metrics.Derived, 0, len(snap.Perf)),
		Warnings: append(trace.Warnings(nil), snap.Warnings...),
	}
	correlate := len(snap.Operations) > 0
	for _, p := range perfcsv.WithoutSignposts(snap.Perf) {
		var opRef *trace.Operation
		var devRef *trace.Device
		if correlate && p.Correlatable() {
			op, err := snap.Operation(p.ID)
			switch {
			case err == nil:
				opRef = &op
			case p.KeySource != trace.KeyRowIndex:
				a.Warnings.Add(trace.WarnCorrelation, snap.PerformancePath,
					"row %d: %s %d has no operation in the trace", p.Row, p.KeySource, p.ID)
			}
		}
		deviceID := p.DeviceID
		if deviceID == nil && opRef != nil {
			deviceID = opRef.DeviceID
		}
		if deviceID != nil {
			if dev, err := snap.Device(*deviceID); err == nil {
				devRef = &dev
			}
		}
		a.Derived = append(a.Derived, cfg.Metrics.Derive(p, opRef, devRef))
	}

	a.Bottlenecks = cfg.Bottlenecks.Scan(a.Derived)
	a.Reshards = sharding.DetectReshards(snap.Operations, snap.TensorMap())
	a.Summary = report.Summarize(a.Derived, a.Bottlenecks.Counts)

	logrus.WithField("run", snap.RunID).Debugf("analyzed %d operations: %d bottlenecks, %d reshards",
		len(a.Derived), a.Bottlenecks.Counts.Total(), len(a.Reshards))
	return a
}
