package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/metrics"
	"github.com/ttnn-vis/ttnn-vis-cli/engine/report"
	"github.com/ttnn-vis/ttnn-vis-cli/internal/testutil"
)

const (
	heightL1 = "MemoryConfig(memory_layout=TensorMemoryLayout::HEIGHT_SHARDED,buffer_type=BufferType::L1)"
	widthL1  = "MemoryConfig(memory_layout=TensorMemoryLayout::WIDTH_SHARDED,buffer_type=BufferType::L1)"
)

// fixture writes a two-op trace and its performance report. Op 2 consumes
// op 1's HEIGHT output and produces a WIDTH tensor; between the ops one L1
// buffer is freed, one kept and one allocated.
func fixture(t *testing.T) (db, perf string) {
	t.Helper()
	f := testutil.NewTraceDB(t, testutil.SchemaCurrent)
	f.AddDevice(0, 1474560)
	f.AddOperation(1, "ttnn.matmul", 1200)
	f.AddOperation(2, "ttnn.add", 300)
	f.AddTensor(10, "Shape([1, 1, 32, 64])", "DataType.BFLOAT16", "Layout.TILE", heightL1, 0, 0x100000, 1)
	f.AddTensor(11, "Shape([1, 1, 32, 64])", "DataType.BFLOAT8_B", "Layout.TILE", heightL1, 0, 0x110000, 1)
	f.AddTensor(12, "Shape([1, 1, 32, 64])", "DataType.BFLOAT16", "Layout.ROW_MAJOR", widthL1, 0, 0x120000, 1)
	f.AddInput(1, 10)
	f.AddOutput(1, 11)
	f.AddInput(2, 11)
	f.AddOutput(2, 12)
	f.AddBuffer(1, 0, 0x100000, 65536, 1)
	f.AddBuffer(1, 0, 0x110000, 32768, 1)
	f.AddBuffer(2, 0, 0x110000, 32768, 1)
	f.AddBuffer(2, 0, 0x120000, 16384, 1)
	f.AddBuffer(2, 0, 0x0, 4096, 0)

	perf = filepath.Join(t.TempDir(), "ops_perf_results.csv")
	report := "OP CODE,OP TYPE,GLOBAL CALL COUNT,DEVICE ID,CORE COUNT,DEVICE KERNEL DURATION [ns],OP TO OP LATENCY [ns],PM IDEAL [ns],PM FPU UTIL (%),DRAM BW UTIL (%),MATH FIDELITY\n" +
		"MatmulDeviceOperation,tt_dnn_device,1,0,64,2000,100,1500,58.4,2.0,HiFi4\n" +
		"BinaryDeviceOperation,tt_dnn_device,2,0,32,400,5000,40,1.0,60.0,LoFi\n"
	require.NoError(t, os.WriteFile(perf, []byte(report), 0o644))
	return f.Path, perf
}

// run executes the CLI against the fixture and returns stdout. Every call
// names its inputs and format since flag values persist between runs.
func run(t *testing.T, args ...string) string {
	t.Helper()
	db, perf := fixture(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--log", "error", "--profiler", db, "--perf", perf}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestCLI_AnalysisSummary_JSON(t *testing.T) {
	out := run(t, "--format", "json", "analysis", "summary")

	var s report.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 2, s.TotalOperations)
	assert.Equal(t, 1, s.ComputeBound)
	assert.Equal(t, 1, s.MemoryBound)
	assert.Equal(t, 2400.0, s.TotalDeviceTimeNs)
}

func TestCLI_Info_Table(t *testing.T) {
	out := run(t, "--format", "table", "info")

	assert.Contains(t, out, "FIELD")
	assert.Regexp(t, `operations\s+2\n`, out)
	assert.Regexp(t, `tensors\s+3\n`, out)
	assert.Regexp(t, `buffers\s+5\n`, out)
}

func TestCLI_AnalysisTop_RanksByGap(t *testing.T) {
	// WHEN ranking by op-to-op gap and keeping one row
	out := run(t, "--format", "json", "analysis", "top", "--sort", "gap", "--limit", "1")

	// THEN the op with the 5000ns gap is returned
	var rows []metrics.Derived
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].OperationID)
	assert.Equal(t, "ttnn.add", rows[0].OperationName)
}

func TestCLI_Bottlenecks_GapFlagOverridesConfig(t *testing.T) {
	// GIVEN a gap threshold of 1us, between the two ops' gaps
	out := run(t, "--format", "json", "analysis", "bottlenecks", "--gap-threshold-ms", "0.001", "--limit", "0")

	// THEN only the 5us gap is flagged
	var r struct {
		HighGap []struct {
			OperationID int64 `json:"operation_id"`
		} `json:"high_gap"`
		Counts struct {
			HighGap int `json:"high_gap_count"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 1, r.Counts.HighGap)
	require.Len(t, r.HighGap, 1)
	assert.Equal(t, int64(2), r.HighGap[0].OperationID)
}

func TestCLI_ShardingReshards_CSV(t *testing.T) {
	out := run(t, "--format", "csv", "sharding", "reshards", "--limit", "0")

	assert.Equal(t, "PRODUCER,CONSUMER,TENSOR,TRANSITION\n1,2,11,HEIGHT_SHARDED -> WIDTH_SHARDED\n", out)
}

func TestCLI_L1ReportPrevious_MarksNewBuffers(t *testing.T) {
	// WHEN comparing operation 2 with operation 1
	out := run(t, "--format", "json", "l1-report", "2", "--previous", "--cells", "40")

	// THEN one device report shows one buffer added, one kept and one freed
	var reports []struct {
		Added    []json.RawMessage `json:"added"`
		Retained []json.RawMessage `json:"retained"`
		Removed  []json.RawMessage `json:"removed"`
		Current  struct {
			Cells int `json:"cells"`
			Rows  []struct {
				Address uint64 `json:"address"`
				New     bool   `json:"new"`
			} `json:"rows"`
		} `json:"current"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	c := reports[0]
	assert.Len(t, c.Added, 1)
	assert.Len(t, c.Retained, 1)
	assert.Len(t, c.Removed, 1)
	assert.Equal(t, 40, c.Current.Cells)
	require.Len(t, c.Current.Rows, 2, "the DRAM buffer is not part of the L1 map")
	assert.False(t, c.Current.Rows[0].New)
	assert.Equal(t, uint64(0x120000), c.Current.Rows[1].Address)
	assert.True(t, c.Current.Rows[1].New)
}

type l1Comparison struct {
	HasPrevious bool              `json:"has_previous"`
	Added       []json.RawMessage `json:"added"`
	Retained    []json.RawMessage `json:"retained"`
	Removed     []json.RawMessage `json:"removed"`
	Previous    struct {
		OperationID int64 `json:"operation_id"`
	} `json:"previous"`
	Current struct {
		Rows []struct {
			New bool `json:"new"`
		} `json:"rows"`
	} `json:"current"`
}

func TestCLI_L1ReportFirstOperation_EveryBufferIsNew(t *testing.T) {
	// GIVEN comparison is on by default
	assert.Equal(t, "true", l1ReportCmd.Flags().Lookup("previous").DefValue)

	// WHEN reporting the first operation, which has no predecessor
	out := run(t, "--format", "json", "l1-report", "1", "--previous")

	// THEN the previous panel is empty and both buffers are new
	var reports []l1Comparison
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	c := reports[0]
	assert.False(t, c.HasPrevious)
	assert.Len(t, c.Added, 2)
	assert.Empty(t, c.Retained)
	require.Len(t, c.Current.Rows, 2)
	assert.True(t, c.Current.Rows[0].New)
	assert.True(t, c.Current.Rows[1].New)
}

// Runs last among the l1-report tests: --previous-op stays Changed on the
// shared command once set.
func TestCLI_L1ReportPreviousOp_ComparesWithChosenOperation(t *testing.T) {
	// WHEN operation 2 is compared with itself
	out := run(t, "--format", "json", "l1-report", "2", "--previous-op", "2")

	// THEN nothing is added or removed
	var reports []l1Comparison
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	c := reports[0]
	assert.True(t, c.HasPrevious)
	assert.Equal(t, int64(2), c.Previous.OperationID)
	assert.Empty(t, c.Added)
	assert.Len(t, c.Retained, 2)
	assert.Empty(t, c.Removed)
}

func TestCLI_MathFidelity_Table(t *testing.T) {
	out := run(t, "--format", "table", "data-format", "math-fidelity")

	assert.Regexp(t, `operations\s+2\n`, out)
	assert.Regexp(t, `fidelity\.HiFi4\s+1 \(50\.0%\)`, out)
	assert.True(t, strings.Contains(out, "HiFi4 has the lowest throughput"))
}
