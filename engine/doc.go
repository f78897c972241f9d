// Package engine ties the trace readers and the analyzers together.
//
// # Reading Guide
//
// A run has two steps:
//   - Load opens the profiler database (engine/store) and the performance
//     report (engine/perfcsv) concurrently and returns one immutable
//     trace.Snapshot.
//   - Analyze derives per-operation metrics (engine/metrics), scans them for
//     bottlenecks (engine/bottleneck), detects reshards (engine/sharding) and
//     rolls everything into a report.Summary.
//
// The memory map (engine/memmap) and the secondary rollups in engine/report
// work directly on a Snapshot or on Analysis.Derived and are called by the
// CLI as needed.
//
// # Configuration
//
// Config groups every analyzer's thresholds. DefaultConfig returns the
// standard values; Validate must pass before Analyze is called.
package engine
