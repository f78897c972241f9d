package sharding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

func tensorsOf(ts ...trace.Tensor) map[int64]trace.Tensor {
	m := make(map[int64]trace.Tensor, len(ts))
	for _, t := range ts {
		m[t.ID] = t
	}
	return m
}

func tensor(id int64, s trace.Strategy) trace.Tensor {
	return trace.Tensor{ID: id, Strategy: s}
}

func TestDetectReshards_HeightHeightBlock_EmitsOneEvent(t *testing.T) {
	// GIVEN op1 -> op2 -> op3 with outputs HEIGHT, HEIGHT, BLOCK
	ops := []trace.Operation{
		{ID: 1, Sequence: 0, Outputs: []int64{11}},
		{ID: 2, Sequence: 1, Inputs: []int64{11}, Outputs: []int64{12}},
		{ID: 3, Sequence: 2, Inputs: []int64{12}, Outputs: []int64{13}},
	}
	tensors := tensorsOf(
		tensor(11, trace.StrategyHeight),
		tensor(12, trace.StrategyHeight),
		tensor(13, trace.StrategyBlock),
	)

	// WHEN reshards are detected
	events := DetectReshards(ops, tensors)

	// THEN exactly one event, on the op2 -> op3 edge
	require.Len(t, events, 1)
	assert.Equal(t, ReshardEvent{ProducerID: 2, ConsumerID: 3, TensorID: 12,
		From: trace.StrategyHeight, To: trace.StrategyBlock}, events[0])
	assert.Equal(t, "HEIGHT_SHARDED -> BLOCK_SHARDED", events[0].Detail())
}

func TestDetectReshards_FirstUse_NeverEmits(t *testing.T) {
	// GIVEN an op whose input has no producer in the trace
	ops := []trace.Operation{{ID: 1, Inputs: []int64{5}, Outputs: []int64{6}}}
	tensors := tensorsOf(tensor(5, trace.StrategyHeight), tensor(6, trace.StrategyWidth))

	assert.Empty(t, DetectReshards(ops, tensors))
}

func TestDetectReshards_NoneInheritsLineage(t *testing.T) {
	// GIVEN a middle op whose output carries no sharding information
	ops := []trace.Operation{
		{ID: 1, Outputs: []int64{11}},
		{ID: 2, Inputs: []int64{11}, Outputs: []int64{12}},
		{ID: 3, Inputs: []int64{12}, Outputs: []int64{13}},
	}
	tensors := tensorsOf(
		tensor(11, trace.StrategyHeight),
		tensor(12, trace.StrategyNone),
		tensor(13, trace.StrategyHeight),
	)

	// THEN the HEIGHT lineage passes through and nothing is emitted
	assert.Empty(t, DetectReshards(ops, tensors))
}

func TestDetectReshards_DisagreeingInputsWithoutOutputStrategy_NeverEmit(t *testing.T) {
	tests := []struct {
		name   string
		inputs []int64
	}{
		{name: "height first", inputs: []int64{11, 21}},
		{name: "block first", inputs: []int64{21, 11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN an op reading HEIGHT and BLOCK tensors whose output has no strategy
			ops := []trace.Operation{
				{ID: 1, Outputs: []int64{11}},
				{ID: 2, Outputs: []int64{21}},
				{ID: 3, Inputs: tt.inputs, Outputs: []int64{12}},
			}
			tensors := tensorsOf(
				tensor(11, trace.StrategyHeight),
				tensor(21, trace.StrategyBlock),
				tensor(12, trace.StrategyNone),
			)

			// WHEN reshards are detected
			events := DetectReshards(ops, tensors)

			// THEN no consumer strategy was observed, so nothing is emitted
			assert.Empty(t, events)
		})
	}
}

func TestDetectReshards_AgreeingInputsWithoutOutputStrategy_PassLineageOn(t *testing.T) {
	// GIVEN two HEIGHT producers joined by an op with no output strategy,
	// followed by a WIDTH consumer
	ops := []trace.Operation{
		{ID: 1, Outputs: []int64{11}},
		{ID: 2, Outputs: []int64{21}},
		{ID: 3, Inputs: []int64{11, 21}, Outputs: []int64{12}},
		{ID: 4, Inputs: []int64{12}, Outputs: []int64{13}},
	}
	tensors := tensorsOf(
		tensor(11, trace.StrategyHeight),
		tensor(21, trace.StrategyHeight),
		tensor(12, trace.StrategyNone),
		tensor(13, trace.StrategyWidth),
	)

	events := DetectReshards(ops, tensors)

	// THEN the shared HEIGHT lineage reaches op 4 and only that edge emits
	require.Len(t, events, 1)
	assert.Equal(t, ReshardEvent{ProducerID: 3, ConsumerID: 4, TensorID: 12,
		From: trace.StrategyHeight, To: trace.StrategyWidth}, events[0])
}

func TestDetectReshards_UnrelatedInterveningOp_NeverEmits(t *testing.T) {
	// GIVEN a HEIGHT producer, an unrelated BLOCK op, then a HEIGHT consumer
	// of the first producer
	ops := []trace.Operation{
		{ID: 1, Sequence: 0, Outputs: []int64{11}},
		{ID: 2, Sequence: 1, Inputs: []int64{30}, Outputs: []int64{31}},
		{ID: 3, Sequence: 2, Inputs: []int64{11}, Outputs: []int64{12}},
	}
	tensors := tensorsOf(
		tensor(11, trace.StrategyHeight),
		tensor(30, trace.StrategyInterleaved),
		tensor(31, trace.StrategyBlock),
		tensor(12, trace.StrategyHeight),
	)

	// WHEN reshards are detected
	events := DetectReshards(ops, tensors)

	// THEN the BLOCK op in between does not break the HEIGHT hand-off
	assert.Empty(t, events)
}

func TestDetectReshards_InterleavedIsDistinct(t *testing.T) {
	ops := []trace.Operation{
		{ID: 1, Outputs: []int64{11}},
		{ID: 2, Inputs: []int64{11}, Outputs: []int64{12}},
	}
	tensors := tensorsOf(tensor(11, trace.StrategyInterleaved), tensor(12, trace.StrategyWidth))

	events := DetectReshards(ops, tensors)

	require.Len(t, events, 1)
	assert.Equal(t, trace.StrategyInterleaved, events[0].From)
	assert.Equal(t, trace.StrategyWidth, events[0].To)
}

func TestDetectReshards_OneEventPerProducerConsumerPair(t *testing.T) {
	// GIVEN a consumer reading two HEIGHT outputs of the same producer
	ops := []trace.Operation{
		{ID: 1, Outputs: []int64{11, 12}},
		{ID: 2, Inputs: []int64{11, 12}, Outputs: []int64{13}},
	}
	tensors := tensorsOf(
		tensor(11, trace.StrategyHeight),
		tensor(12, trace.StrategyHeight),
		tensor(13, trace.StrategyBlock),
	)

	events := DetectReshards(ops, tensors)

	require.Len(t, events, 1)
	assert.Equal(t, int64(11), events[0].TensorID, "first input wins")
}

func TestDetectReshards_Deterministic(t *testing.T) {
	ops := []trace.Operation{
		{ID: 1, Outputs: []int64{11}},
		{ID: 2, Outputs: []int64{12}},
		{ID: 3, Inputs: []int64{11, 12}, Outputs: []int64{13}},
	}
	tensors := tensorsOf(
		tensor(11, trace.StrategyHeight),
		tensor(12, trace.StrategyWidth),
		tensor(13, trace.StrategyBlock),
	)

	first := DetectReshards(ops, tensors)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, DetectReshards(ops, tensors))
	}
	assert.Len(t, first, 2)
}

func TestOperationShardings_MarksConsumers(t *testing.T) {
	ops := []trace.Operation{
		{ID: 1, Name: "a", Outputs: []int64{11}},
		{ID: 2, Name: "b", Inputs: []int64{11}, Outputs: []int64{12}},
	}
	tensors := tensorsOf(tensor(11, trace.StrategyHeight), tensor(12, trace.StrategyWidth))
	events := DetectReshards(ops, tensors)

	views := OperationShardings(ops, tensors, events)

	require.Len(t, views, 2)
	assert.False(t, views[0].HasReshard)
	assert.True(t, views[1].HasReshard)
	assert.Equal(t, "HEIGHT_SHARDED -> WIDTH_SHARDED", views[1].ReshardDetail)
	assert.Equal(t, []trace.Strategy{trace.StrategyHeight}, views[1].Inputs)
}

func TestAnalyzer_Distribution(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), []trace.Tensor{
		{ID: 1, Strategy: trace.StrategyHeight, Placement: trace.PlacementL1},
		{ID: 2, Strategy: trace.StrategyHeight, Placement: trace.PlacementL1},
		{ID: 3, Strategy: trace.StrategyInterleaved, Placement: trace.PlacementDRAM},
		{ID: 4, Strategy: trace.StrategyBlock, Placement: trace.PlacementL1},
	})

	dist := a.Distribution()

	require.Len(t, dist, 3)
	assert.Equal(t, trace.StrategyHeight, dist[0].Strategy)
	assert.Equal(t, 2, dist[0].L1Count)
	assert.Equal(t, 50.0, dist[0].Percent)
	// equal counts tie-break on name
	assert.Equal(t, trace.StrategyBlock, dist[1].Strategy)
	assert.Equal(t, trace.StrategyInterleaved, dist[2].Strategy)
	assert.Equal(t, 1, dist[2].DRAMCount)
}

func TestAnalyzer_Summary_Recommendations(t *testing.T) {
	tests := []struct {
		name     string
		tensors  []trace.Tensor
		reshards int
		contains string
	}{
		{
			name:     "mostly interleaved",
			tensors:  []trace.Tensor{tensor(1, trace.StrategyInterleaved), tensor(2, trace.StrategyInterleaved), tensor(3, trace.StrategyHeight)},
			contains: "High INTERLEAVED usage (66.7%)",
		},
		{
			name:     "many reshards",
			tensors:  []trace.Tensor{tensor(1, trace.StrategyHeight)},
			reshards: 11,
			contains: "High reshard count (11)",
		},
		{
			name:     "width over height",
			tensors:  []trace.Tensor{tensor(1, trace.StrategyWidth), tensor(2, trace.StrategyWidth), tensor(3, trace.StrategyHeight)},
			contains: "Consider HEIGHT_SHARDED",
		},
		{
			name:     "unknown strategies",
			tensors:  []trace.Tensor{tensor(1, trace.StrategyNone)},
			contains: "1 tensors have no sharding information",
		},
		{
			name:     "healthy",
			tensors:  []trace.Tensor{tensor(1, trace.StrategyHeight)},
			contains: "looks reasonable",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewAnalyzer(DefaultConfig(), tc.tensors).Summary(tc.reshards)
			found := false
			for _, r := range s.Recommendations {
				if strings.Contains(r, tc.contains) {
					found = true
				}
			}
			assert.True(t, found, "recommendations %v should mention %q", s.Recommendations, tc.contains)
		})
	}
}

func TestAnalyzer_Tensors_Filter(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), []trace.Tensor{
		{ID: 2, Strategy: trace.StrategyHeight, Placement: trace.PlacementL1},
		{ID: 1, Strategy: trace.StrategyHeight, Placement: trace.PlacementDRAM},
		{ID: 3, Strategy: trace.StrategyWidth, Placement: trace.PlacementL1},
	})

	got := a.Tensors(TensorFilter{Strategy: trace.StrategyHeight})
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].TensorID)

	got = a.Tensors(TensorFilter{Placement: trace.PlacementL1, Limit: 1})
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].TensorID)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{ReshardWarnCount: -1}.Validate())
	assert.Error(t, Config{InterleavedWarnPercent: -5}.Validate())
}
