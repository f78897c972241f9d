package memmap

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

func opID(id int64) *int64 { return &id }

func buf(id int64, addr, size uint64, tensors ...int64) trace.Buffer {
	return trace.Buffer{ID: id, Address: addr, Size: size, Type: trace.BufferL1, TensorIDs: tensors}
}

func TestRender_FillPercent_TwoBuffers(t *testing.T) {
	// GIVEN a 1,474,560 byte L1 with 64KB at 0x100000 and 32KB at 0x110000
	buffers := []trace.Buffer{
		buf(2, 0x110000, 32*1024, 11),
		buf(1, 0x100000, 64*1024, 10),
	}

	// WHEN rendered on the default 50 cells
	m, err := Render(1474560, buffers, nil, DefaultOptions())
	require.NoError(t, err)

	// THEN occupancy rounds to 7% and the bar covers cells 35..38
	assert.Equal(t, 7, m.FillPercent)
	assert.Equal(t, uint64(98304), m.UsedBytes)
	assert.Equal(t, uint64(98304), m.OccupiedBytes)
	assert.Equal(t, uint64(29492), m.CellWidth)
	assert.Equal(t, strings.Repeat(".", 35)+"####"+strings.Repeat(".", 11), m.Bar)
	assert.Empty(t, m.Warnings)

	// AND rows are in address order
	require.Len(t, m.Rows, 2)
	assert.Equal(t, int64(1), m.Rows[0].BufferID)
	assert.Equal(t, int64(10), *m.Rows[0].TensorID)
}

func TestRender_LabelTruncatedIntoFreeColumns(t *testing.T) {
	m, err := Render(1474560, []trace.Buffer{
		buf(1, 0x100000, 64*1024, 10),
		buf(2, 0x110000, 32*1024, 11),
	}, nil, DefaultOptions())
	require.NoError(t, err)

	// the first label is centered on its span, the second only gets one column
	require.Len(t, m.Placements, 2)
	assert.Equal(t, Placement{BufferID: 1, Label: "T10", Text: "T10", Column: 35}, m.Placements[0])
	assert.Equal(t, Placement{BufferID: 2, Label: "T11", Text: "T", Column: 38, Truncated: true}, m.Placements[1])
	assert.Equal(t, "T10T", strings.TrimSpace(m.LabelRow))
	assert.Len(t, m.LabelRow, 50)
}

func TestRender_LabelCollision_MergesWithoutDropping(t *testing.T) {
	// GIVEN two aliased buffers inside the same cell
	m, err := Render(5000, []trace.Buffer{
		buf(1, 100, 50, 1),
		buf(2, 120, 10, 2),
	}, nil, DefaultOptions())
	require.NoError(t, err)

	// THEN the second label is merged into the first, marked with '+'
	require.Len(t, m.Placements, 2)
	assert.Equal(t, byte('+'), m.LabelRow[1])
	merged := m.Placements[1]
	assert.Equal(t, -1, merged.Column)
	require.NotNil(t, merged.MergedInto)
	assert.Equal(t, int64(1), *merged.MergedInto)

	// AND the overlap is reported and counted once
	assert.Equal(t, 1, m.Warnings.Count(trace.WarnOverlap))
	assert.Equal(t, uint64(50), m.OccupiedBytes)
	assert.Equal(t, uint64(60), m.UsedBytes)
	assert.Len(t, m.Rows, 2)
}

func TestRender_UsedPercentCountsOverlapTwice(t *testing.T) {
	// GIVEN two buffers sharing 200 bytes of a 1000 byte L1
	m, err := Render(1000, []trace.Buffer{buf(1, 0, 400), buf(2, 200, 400)}, nil, DefaultOptions())
	require.NoError(t, err)

	// THEN the byte sum and the union give different percentages
	assert.Equal(t, 80, m.UsedPercent)
	assert.Equal(t, 60, m.FillPercent)
}

func TestRender_MalformedBuffersExcluded(t *testing.T) {
	tests := []struct {
		name string
		b    trace.Buffer
	}{
		{"address at capacity", buf(1, 5000, 10)},
		{"end past capacity", buf(2, 4990, 20)},
		{"address overflow", buf(3, math.MaxUint64-4, 10)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Render(5000, []trace.Buffer{tc.b, buf(9, 0, 100)}, nil, DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, 1, m.Warnings.Count(trace.WarnMalformedRecord))
			require.Len(t, m.Rows, 1)
			assert.Equal(t, int64(9), m.Rows[0].BufferID)
		})
	}
}

func TestRender_ZeroSizeBuffers(t *testing.T) {
	// GIVEN a zero-size placeholder at 0 and a zero-size buffer at 250
	m, err := Render(5000, []trace.Buffer{buf(1, 0, 0), buf(2, 250, 0)}, nil, DefaultOptions())
	require.NoError(t, err)

	// THEN only the nonzero address occupies a cell, and nothing adds bytes
	assert.Equal(t, "..#"+strings.Repeat(".", 47), m.Bar)
	assert.Equal(t, 0, m.FillPercent)
	assert.Len(t, m.Rows, 2)
	require.Len(t, m.Placements, 1)
	assert.Equal(t, "B2", m.Placements[0].Label)
}

func TestRender_FillPercentMonotonic(t *testing.T) {
	// GIVEN buffers added one at a time, some overlapping earlier ones
	all := []trace.Buffer{
		buf(1, 0, 700), buf(2, 500, 900), buf(3, 3000, 10),
		buf(4, 2000, 1500), buf(5, 100, 100), buf(6, 4900, 100),
	}
	last := -1
	var lastBytes uint64
	for i := range all {
		m, err := Render(5000, all[:i+1], nil, DefaultOptions())
		require.NoError(t, err)
		// THEN occupancy never decreases
		assert.GreaterOrEqual(t, m.FillPercent, last)
		assert.GreaterOrEqual(t, m.OccupiedBytes, lastBytes)
		last, lastBytes = m.FillPercent, m.OccupiedBytes
	}
}

func TestRender_Errors(t *testing.T) {
	_, err := Render(0, nil, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoCapacity)

	_, err = Render(5000, nil, nil, Options{Cells: 0})
	var ce *trace.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestRender_RowsCarryTensorDetails(t *testing.T) {
	tensors := map[int64]trace.Tensor{
		10: {ID: 10, ShapeText: "Shape([1, 32])", DType: trace.DTypeBFloat16, Layout: trace.LayoutTile, Strategy: trace.StrategyHeight},
	}
	m, err := Render(5000, []trace.Buffer{buf(1, 0, 64, 10)}, tensors, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, m.Rows, 1)
	assert.Equal(t, "Shape([1, 32])", m.Rows[0].Shape)
	assert.Equal(t, trace.StrategyHeight, m.Rows[0].Strategy)
}

func TestDiff_NewOnlyForKeysAbsentBefore(t *testing.T) {
	// GIVEN A,B live before and B,C live now (B re-reported under a new row id)
	prev, err := Render(5000, []trace.Buffer{buf(1, 0, 100), buf(2, 200, 100)}, nil, DefaultOptions())
	require.NoError(t, err)
	cur, err := Render(5000, []trace.Buffer{buf(7, 200, 100), buf(8, 400, 100)}, nil, DefaultOptions())
	require.NoError(t, err)

	// WHEN diffed
	c := Diff(prev, cur)

	// THEN New marks exactly the keys missing from the previous set
	require.Len(t, c.Current.Rows, 2)
	assert.False(t, c.Current.Rows[0].New)
	assert.True(t, c.Current.Rows[1].New)
	require.Len(t, c.Added, 1)
	assert.Equal(t, uint64(400), c.Added[0].Address)
	require.Len(t, c.Retained, 1)
	assert.Equal(t, uint64(200), c.Retained[0].Address)
	require.Len(t, c.Removed, 1)
	assert.Equal(t, uint64(0), c.Removed[0].Address)

	// AND the inputs are untouched
	assert.False(t, cur.Rows[1].New)
}

func TestDiff_SameAddressDifferentSizeIsNew(t *testing.T) {
	prev, _ := Render(5000, []trace.Buffer{buf(1, 0, 100)}, nil, DefaultOptions())
	cur, _ := Render(5000, []trace.Buffer{buf(1, 0, 200)}, nil, DefaultOptions())

	c := Diff(prev, cur)

	assert.True(t, c.Current.Rows[0].New)
}

func snapshot() *trace.Snapshot {
	return trace.NewSnapshot(trace.Source{
		Devices:    []trace.Device{{ID: 0, TotalL1ForTensors: 5000}},
		Operations: []trace.Operation{{ID: 1, Sequence: 0}, {ID: 2, Sequence: 1}},
		Buffers: []trace.Buffer{
			{ID: 1, DeviceID: 0, Address: 0, Size: 100, Type: trace.BufferL1, OperationID: opID(1)},
			{ID: 2, DeviceID: 0, Address: 0, Size: 100, Type: trace.BufferL1, OperationID: opID(2)},
			{ID: 3, DeviceID: 0, Address: 1000, Size: 50, Type: trace.BufferL1Small, OperationID: opID(2)},
			{ID: 4, DeviceID: 0, Address: 0, Size: 4096, Type: trace.BufferDRAM, OperationID: opID(2)},
			{ID: 5, DeviceID: 1, Address: 0, Size: 64, Type: trace.BufferL1, OperationID: opID(2)},
		},
	})
}

func TestLiveSet_FiltersDeviceTypeAndOperation(t *testing.T) {
	live := LiveSet(snapshot(), 0, 2)

	ids := []int64{}
	for _, b := range live {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []int64{2, 3}, ids)
}

func TestBuildComparison(t *testing.T) {
	// WHEN op 2 is compared with op 1
	c, err := BuildComparison(snapshot(), 0, opID(1), 2, DefaultOptions())
	require.NoError(t, err)

	// THEN the L1_SMALL buffer is new and the one at 0 is retained
	assert.True(t, c.HasPrevious)
	assert.Equal(t, int64(1), c.Previous.OperationID)
	assert.Equal(t, int64(2), c.Current.OperationID)
	require.Len(t, c.Current.Rows, 2)
	assert.False(t, c.Current.Rows[0].New)
	assert.True(t, c.Current.Rows[1].New)
	assert.Empty(t, c.Removed)
}

func TestBuildComparison_NoPrevious_EveryBufferIsNew(t *testing.T) {
	// WHEN op 1 is compared with nothing
	c, err := BuildComparison(snapshot(), 0, nil, 1, DefaultOptions())
	require.NoError(t, err)

	// THEN the previous panel is an empty map of the same device
	assert.False(t, c.HasPrevious)
	assert.Empty(t, c.Previous.Rows)
	assert.Equal(t, c.Current.Capacity, c.Previous.Capacity)
	assert.Equal(t, strings.Repeat(".", 50), c.Previous.Bar)

	// AND every current buffer is new
	require.Len(t, c.Current.Rows, 1)
	assert.True(t, c.Current.Rows[0].New)
	assert.Len(t, c.Added, 1)
	assert.Empty(t, c.Retained)
	assert.Empty(t, c.Removed)
}

func TestBuildComparison_CallerChosenPrevious(t *testing.T) {
	// WHEN op 1 is compared against the later op 2
	c, err := BuildComparison(snapshot(), 0, opID(2), 1, DefaultOptions())
	require.NoError(t, err)

	// THEN op 2's L1_SMALL buffer is the one removed
	assert.Equal(t, int64(2), c.Previous.OperationID)
	assert.Equal(t, int64(1), c.Current.OperationID)
	assert.Empty(t, c.Added)
	require.Len(t, c.Removed, 1)
	assert.Equal(t, uint64(1000), c.Removed[0].Address)
}

func TestBuildComparison_UnknownPrevious(t *testing.T) {
	_, err := BuildComparison(snapshot(), 0, opID(42), 2, DefaultOptions())
	assert.True(t, errors.Is(err, trace.ErrMissingData))
}

func TestBuild_UnknownDevice(t *testing.T) {
	_, err := Build(snapshot(), 9, 1, DefaultOptions())
	var missing *trace.MissingDataError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "device", missing.Kind)
}
