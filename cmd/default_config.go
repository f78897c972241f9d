package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ttnn-vis/ttnn-vis-cli/engine"
)

// Threshold flags that override the config file when set explicitly.
var (
	efficiencyThreshold float64 // Bottleneck efficiency threshold, percent
	gapThresholdMs      float64 // Bottleneck op-to-op gap threshold, ms
	dramFloor           float64 // Bottleneck DRAM utilization floor, percent
	mapCells            int     // Memory map bar width
)

// loadConfig reads a thresholds file over the defaults. Sections and keys
// left out keep their default values; an empty path returns the defaults.
// Uses strict field checking: unknown keys are errors.
func loadConfig(path string) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// applyFlagOverrides copies explicitly set threshold flags into cfg.
// Flags the command does not define are never Changed.
func applyFlagOverrides(cmd *cobra.Command, cfg *engine.Config) {
	flags := cmd.Flags()
	if flags.Changed("efficiency-threshold") {
		cfg.Bottlenecks.EfficiencyThresholdPercent = efficiencyThreshold
	}
	if flags.Changed("gap-threshold-ms") {
		cfg.Bottlenecks.GapThresholdMs = gapThresholdMs
	}
	if flags.Changed("dram-floor") {
		cfg.Bottlenecks.DRAMFloorPercent = dramFloor
	}
	if flags.Changed("cells") {
		cfg.MemoryMap.Cells = mapCells
	}
}
