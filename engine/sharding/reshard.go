// Package sharding analyzes how tensors are partitioned across cores and
// detects reshard transitions along the producer/consumer graph.
package sharding

import (
	"fmt"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// ReshardEvent is a strategy change between a producing op and the op that
// consumes its output.
type ReshardEvent struct {
	ProducerID int64          `json:"producer_operation_id"`
	ConsumerID int64          `json:"consumer_operation_id"`
	TensorID   int64          `json:"tensor_id"`
	From       trace.Strategy `json:"from"`
	To         trace.Strategy `json:"to"`
}

// Detail renders the transition as "FROM -> TO".
func (e ReshardEvent) Detail() string {
	return fmt.Sprintf("%s -> %s", e.From, e.To)
}

type lineage struct {
	producer int64
	strategy trace.Strategy
}

// DetectReshards walks ops in the given order (which must be sequence order)
// and emits one event per producer/consumer pair whose strategies differ.
//
// Each produced tensor carries its lineage strategy: its own strategy, or,
// when it has none, the one strategy shared by all of the op's inputs. A
// consumer's strategy is its first observed output strategy, else that
// shared input strategy; inputs that disagree leave it unknown. Inputs with no
// producer are first uses and never emit. StrategyNone on either side never
// emits; INTERLEAVED is an ordinary strategy.
func DetectReshards(ops []trace.Operation, tensors map[int64]trace.Tensor) []ReshardEvent {
	events := []ReshardEvent{}
	carried := make(map[int64]lineage)

	strategyOf := func(id int64) trace.Strategy {
		if t, ok := tensors[id]; ok {
			return t.Strategy
		}
		return trace.StrategyNone
	}

	for _, op := range ops {
		inherited := trace.StrategyNone
		for _, in := range op.Inputs {
			s := strategyOf(in)
			if l, ok := carried[in]; ok && l.strategy != trace.StrategyNone {
				s = l.strategy
			}
			if s == trace.StrategyNone {
				continue
			}
			if inherited != trace.StrategyNone && inherited != s {
				// inputs disagree, so nothing is known about this op's side
				inherited = trace.StrategyNone
				break
			}
			inherited = s
		}

		consumer := trace.StrategyNone
		for _, out := range op.Outputs {
			if s := strategyOf(out); s != trace.StrategyNone {
				consumer = s
				break
			}
		}
		if consumer == trace.StrategyNone {
			consumer = inherited
		}

		if consumer != trace.StrategyNone {
			emitted := make(map[int64]bool)
			for _, in := range op.Inputs {
				l, ok := carried[in]
				if !ok || l.producer == op.ID || emitted[l.producer] {
					continue
				}
				if l.strategy == trace.StrategyNone || l.strategy == consumer {
					continue
				}
				emitted[l.producer] = true
				events = append(events, ReshardEvent{
					ProducerID: l.producer,
					ConsumerID: op.ID,
					TensorID:   in,
					From:       l.strategy,
					To:         consumer,
				})
			}
		}

		for _, out := range op.Outputs {
			s := strategyOf(out)
			if s == trace.StrategyNone {
				s = consumer
			}
			carried[out] = lineage{producer: op.ID, strategy: s}
		}
	}
	return events
}

// OperationSharding is the per-op view of input and output strategies.
type OperationSharding struct {
	OperationID   int64            `json:"operation_id"`
	OperationName string           `json:"operation_name"`
	Inputs        []trace.Strategy `json:"input_shardings"`
	Outputs       []trace.Strategy `json:"output_shardings"`
	HasReshard    bool             `json:"has_reshard"`
	ReshardDetail string           `json:"reshard_detail,omitempty"`
}

// OperationShardings builds the per-op view, marking each consumer of events.
func OperationShardings(ops []trace.Operation, tensors map[int64]trace.Tensor, events []ReshardEvent) []OperationSharding {
	byConsumer := make(map[int64]ReshardEvent, len(events))
	for _, e := range events {
		if _, ok := byConsumer[e.ConsumerID]; !ok {
			byConsumer[e.ConsumerID] = e
		}
	}
	strategies := func(ids []int64) []trace.Strategy {
		out := make([]trace.Strategy, 0, len(ids))
		for _, id := range ids {
			s := trace.StrategyNone
			if t, ok := tensors[id]; ok {
				s = t.Strategy
			}
			out = append(out, s)
		}
		return out
	}

	views := make([]OperationSharding, 0, len(ops))
	for _, op := range ops {
		v := OperationSharding{
			OperationID:   op.ID,
			OperationName: op.Name,
			Inputs:        strategies(op.Inputs),
			Outputs:       strategies(op.Outputs),
		}
		if e, ok := byConsumer[op.ID]; ok {
			v.HasReshard = true
			v.ReshardDetail = e.Detail()
		}
		views = append(views, v)
	}
	return views
}
