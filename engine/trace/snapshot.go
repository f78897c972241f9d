package trace

import (
	"sort"

	"github.com/google/uuid"
)

// Source carries the raw record sets handed to NewSnapshot by the readers.
type Source struct {
	ProfilerPath    string
	PerformancePath string
	Devices         []Device
	Operations      []Operation
	Tensors         []Tensor
	Buffers         []Buffer
	Perf            []OperationPerf
	Warnings        Warnings
}

// Snapshot is one immutable load of a trace plus its performance report.
// Every analysis run owns its Snapshot; nothing mutates it after NewSnapshot.
type Snapshot struct {
	RunID           string
	ProfilerPath    string
	PerformancePath string
	Devices         []Device
	Operations      []Operation // sorted by Sequence
	Tensors         []Tensor
	Buffers         []Buffer
	Perf            []OperationPerf
	Warnings        Warnings

	deviceIdx map[int64]int
	opIdx     map[int64]int
	tensorIdx map[int64]int
	perfIdx   map[int64]int
}

// NewSnapshot indexes src and tags it with a fresh run id.
func NewSnapshot(src Source) *Snapshot {
	s := &Snapshot{
		RunID:           uuid.NewString(),
		ProfilerPath:    src.ProfilerPath,
		PerformancePath: src.PerformancePath,
		Devices:         src.Devices,
		Operations:      append([]Operation(nil), src.Operations...),
		Tensors:         src.Tensors,
		Buffers:         src.Buffers,
		Perf:            src.Perf,
		Warnings:        src.Warnings,
		deviceIdx:       make(map[int64]int, len(src.Devices)),
		opIdx:           make(map[int64]int, len(src.Operations)),
		tensorIdx:       make(map[int64]int, len(src.Tensors)),
		perfIdx:         make(map[int64]int, len(src.Perf)),
	}
	sort.SliceStable(s.Operations, func(i, j int) bool {
		a, b := s.Operations[i], s.Operations[j]
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.ID < b.ID
	})
	for i, d := range s.Devices {
		s.deviceIdx[d.ID] = i
	}
	for i, op := range s.Operations {
		s.opIdx[op.ID] = i
	}
	for i, t := range s.Tensors {
		s.tensorIdx[t.ID] = i
	}
	for i, p := range s.Perf {
		if !p.Correlatable() {
			continue
		}
		if _, dup := s.perfIdx[p.ID]; !dup {
			s.perfIdx[p.ID] = i
		}
	}
	return s
}

// Device returns the device with the given id.
func (s *Snapshot) Device(id int64) (Device, error) {
	i, ok := s.deviceIdx[id]
	if !ok {
		return Device{}, &MissingDataError{Kind: "device", ID: id}
	}
	return s.Devices[i], nil
}

// Operation returns the operation with the given id.
func (s *Snapshot) Operation(id int64) (Operation, error) {
	i, ok := s.opIdx[id]
	if !ok {
		return Operation{}, &MissingDataError{Kind: "operation", ID: id}
	}
	return s.Operations[i], nil
}

// Tensor returns the tensor with the given id.
func (s *Snapshot) Tensor(id int64) (Tensor, error) {
	i, ok := s.tensorIdx[id]
	if !ok {
		return Tensor{}, &MissingDataError{Kind: "tensor", ID: id}
	}
	return s.Tensors[i], nil
}

// TensorMap returns the tensors keyed by id.
func (s *Snapshot) TensorMap() map[int64]Tensor {
	m := make(map[int64]Tensor, len(s.Tensors))
	for _, t := range s.Tensors {
		m[t.ID] = t
	}
	return m
}

// PerfFor returns the performance row correlated with an operation id.
// Signposts and rows without a usable key are never returned.
func (s *Snapshot) PerfFor(opID int64) (OperationPerf, bool) {
	i, ok := s.perfIdx[opID]
	if !ok {
		return OperationPerf{}, false
	}
	return s.Perf[i], true
}

// Previous returns the operation immediately before id in sequence order.
func (s *Snapshot) Previous(id int64) (Operation, bool) {
	i, ok := s.opIdx[id]
	if !ok || i == 0 {
		return Operation{}, false
	}
	return s.Operations[i-1], true
}
