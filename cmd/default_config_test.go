package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttnn-vis/ttnn-vis-cli/engine"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_EmptyPath_ReturnsDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultConfig(), cfg)
}

func TestLoadConfig_EmptyFile_ReturnsDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultConfig(), cfg)
}

func TestLoadConfig_PartialFile_KeepsDefaultsForOmittedKeys(t *testing.T) {
	// GIVEN a file that sets one bottleneck threshold and the bar width
	path := writeConfig(t, "bottlenecks:\n  gap_threshold_ms: 5\nmemory_map:\n  cells: 80\n")

	// WHEN loaded
	cfg, err := loadConfig(path)

	// THEN only the named keys change
	require.NoError(t, err)
	want := engine.DefaultConfig()
	want.Bottlenecks.GapThresholdMs = 5
	want.MemoryMap.Cells = 80
	assert.Equal(t, want, cfg)
}

func TestLoadConfig_UnknownKey_IsRejected(t *testing.T) {
	// GIVEN a typo in a key name
	path := writeConfig(t, "bottlenecks:\n  gap_threshold: 5\n")

	// WHEN loaded
	_, err := loadConfig(path)

	// THEN strict parsing reports it
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gap_threshold")
}

func TestLoadConfig_MissingFile_ReturnsError(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestApplyFlagOverrides_OnlyChangedFlagsWin(t *testing.T) {
	// GIVEN a config file value and a command with two threshold flags
	cmd := &cobra.Command{Use: "probe"}
	cmd.Flags().Float64Var(&gapThresholdMs, "gap-threshold-ms", 100, "")
	cmd.Flags().Float64Var(&efficiencyThreshold, "efficiency-threshold", 50, "")
	cfg := engine.DefaultConfig()
	cfg.Bottlenecks.EfficiencyThresholdPercent = 42

	// WHEN only the gap flag is set explicitly
	require.NoError(t, cmd.Flags().Set("gap-threshold-ms", "7"))
	applyFlagOverrides(cmd, &cfg)

	// THEN the gap comes from the flag and the file value survives
	assert.Equal(t, 7.0, cfg.Bottlenecks.GapThresholdMs)
	assert.Equal(t, 42.0, cfg.Bottlenecks.EfficiencyThresholdPercent)
	assert.Equal(t, engine.DefaultConfig().MemoryMap, cfg.MemoryMap, "undefined flags are never changed")
}
