package cmd

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ttnn-vis/ttnn-vis-cli/engine"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

var (
	logLevel     string        // Log verbosity level
	outputFormat string        // table, json or csv
	configPath   string        // Optional thresholds YAML
	loadTimeout  time.Duration // Upper bound on reading both inputs
	profilerPath string        // Profiler SQLite database
	perfPath     string        // Performance report CSV, or a directory holding one
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "ttnn-vis",
	Short: "Performance and memory analysis for TTNN profiler traces",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		if _, err := parseFormat(outputFormat); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// loadContext bounds input reads by --load-timeout; 0 means no bound.
func loadContext() (context.Context, context.CancelFunc) {
	if loadTimeout > 0 {
		return context.WithTimeout(context.Background(), loadTimeout)
	}
	return context.WithCancel(context.Background())
}

// mustLoad reads the inputs named by --profiler and --perf within
// --load-timeout and logs every data warning.
func mustLoad() *trace.Snapshot {
	ctx, cancel := loadContext()
	defer cancel()
	snap, err := engine.Load(ctx, engine.LoadOptions{ProfilerPath: profilerPath, PerformancePath: perfPath})
	if err != nil {
		logrus.Fatalf("Failed to load trace: %v", err)
	}
	for _, w := range snap.Warnings {
		logrus.Warn(w.String())
	}
	return snap
}

// mustRequire exits when the snapshot lacks the input a command needs.
func mustRequire(snap *trace.Snapshot, needProfiler, needPerf bool) {
	if needProfiler && snap.ProfilerPath == "" {
		logrus.Fatalf("This command needs a profiler database (--profiler)")
	}
	if needPerf && snap.PerformancePath == "" {
		logrus.Fatalf("This command needs a performance report (--perf)")
	}
}

// mustConfig resolves thresholds: defaults, then --config, then changed
// flags of cmd. The result is validated.
func mustConfig(cmd *cobra.Command) engine.Config {
	cfg, err := loadConfig(configPath)
	if err != nil {
		logrus.Fatalf("Failed to read config: %v", err)
	}
	applyFlagOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}
	return cfg
}

// mustAnalyze loads the inputs and runs the standard analysis.
func mustAnalyze(cmd *cobra.Command) (*trace.Snapshot, engine.Analysis, engine.Config) {
	cfg := mustConfig(cmd)
	snap := mustLoad()
	mustRequire(snap, false, true)
	a := engine.Analyze(snap, cfg)
	for _, w := range a.Warnings[len(snap.Warnings):] {
		logrus.Warn(w.String())
	}
	return snap, a, cfg
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up the global flags
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	flags.StringVar(&outputFormat, "format", string(formatTable), "Output format (table, json, csv)")
	flags.StringVar(&configPath, "config", "", "Thresholds YAML file")
	flags.DurationVar(&loadTimeout, "load-timeout", 2*time.Minute, "Maximum time to read the inputs (0 disables)")
	flags.StringVar(&profilerPath, "profiler", "", "Path to the profiler SQLite database")
	flags.StringVar(&perfPath, "perf", "", "Path to the performance report CSV or a directory containing one")
}
