package trace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot_SortsOperationsBySequence(t *testing.T) {
	// GIVEN operations recorded out of order
	snap := NewSnapshot(Source{Operations: []Operation{
		{ID: 7, Sequence: 3},
		{ID: 5, Sequence: 1},
		{ID: 6, Sequence: 2},
	}})

	// THEN they are held in sequence order
	ids := []int64{}
	for _, op := range snap.Operations {
		ids = append(ids, op.ID)
	}
	assert.Equal(t, []int64{5, 6, 7}, ids)
}

func TestSnapshot_Lookup_MissingIDReturnsMissingDataError(t *testing.T) {
	snap := NewSnapshot(Source{Devices: []Device{{ID: 0}}})

	_, err := snap.Device(4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingData))

	var mde *MissingDataError
	require.True(t, errors.As(err, &mde))
	assert.Equal(t, "device", mde.Kind)
	assert.Equal(t, int64(4), mde.ID)

	_, err = snap.Operation(1)
	assert.ErrorIs(t, err, ErrMissingData)
	_, err = snap.Tensor(1)
	assert.ErrorIs(t, err, ErrMissingData)
}

func TestSnapshot_Previous(t *testing.T) {
	snap := NewSnapshot(Source{Operations: []Operation{
		{ID: 10, Sequence: 10},
		{ID: 12, Sequence: 12},
		{ID: 11, Sequence: 11},
	}})

	prev, ok := snap.Previous(12)
	require.True(t, ok)
	assert.Equal(t, int64(11), prev.ID)

	_, ok = snap.Previous(10)
	assert.False(t, ok, "first operation has no predecessor")

	_, ok = snap.Previous(99)
	assert.False(t, ok, "unknown operation has no predecessor")
}

func TestSnapshot_PerfFor_FirstRowWinsOnDuplicateKey(t *testing.T) {
	snap := NewSnapshot(Source{Perf: []OperationPerf{
		{ID: 1, OpCode: "first"},
		{ID: 1, OpCode: "second"},
	}})

	p, ok := snap.PerfFor(1)
	require.True(t, ok)
	assert.Equal(t, "first", p.OpCode)

	_, ok = snap.PerfFor(2)
	assert.False(t, ok)
}

func TestSnapshot_PerfFor_IgnoresUncorrelatableRows(t *testing.T) {
	// GIVEN an unkeyed row and a signpost ahead of the real row for op 2
	snap := NewSnapshot(Source{Perf: []OperationPerf{
		{ID: 0, KeySource: KeyNone, OpCode: "blank"},
		{ID: 2, KeySource: KeyGlobalCallCount, OpName: "signpost", OpCode: "start"},
		{ID: 2, KeySource: KeyGlobalCallCount, OpCode: "BinaryDeviceOperation", DeviceTimeNs: Known(400)},
	}})

	// WHEN op 2 is looked up
	p, ok := snap.PerfFor(2)

	// THEN the real row is returned
	require.True(t, ok)
	assert.Equal(t, "BinaryDeviceOperation", p.OpCode)
	assert.Equal(t, Known(400), p.DeviceTimeNs)

	// AND the unkeyed row is not reachable by its placeholder id
	_, ok = snap.PerfFor(0)
	assert.False(t, ok)
}
