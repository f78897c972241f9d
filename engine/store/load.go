package store

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// Load reads every record set and resolves which tensors reside in each
// buffer. Decoding problems come back as warnings on the Source; only
// query failures are returned as errors.
func (s *Store) Load(ctx context.Context) (trace.Source, error) {
	src := trace.Source{ProfilerPath: s.path}
	var err error

	if src.Devices, err = s.devices(ctx, &src.Warnings, ""); err != nil {
		return trace.Source{}, err
	}
	if src.Operations, err = s.operations(ctx, &src.Warnings, nil); err != nil {
		return trace.Source{}, err
	}
	if src.Tensors, err = s.tensors(ctx, &src.Warnings, ""); err != nil {
		return trace.Source{}, err
	}
	if src.Buffers, err = s.buffers(ctx, &src.Warnings, BufferFilter{}); err != nil {
		return trace.Source{}, err
	}
	ResolveResidents(src.Buffers, src.Operations, src.Tensors)

	logrus.Infof("loaded %s: %d devices, %d operations, %d tensors, %d buffers",
		s.path, len(src.Devices), len(src.Operations), len(src.Tensors), len(src.Buffers))
	return src, nil
}

type addrKey struct {
	device  int64
	address uint64
}

// ResolveResidents fills Buffer.TensorIDs with the tensors stored at the
// buffer's address. Tensors attached to the buffer's operation are preferred;
// otherwise any tensor at that address on the device matches. Tensors with no
// recorded device match on address alone.
func ResolveResidents(buffers []trace.Buffer, ops []trace.Operation, tensors []trace.Tensor) {
	byAddr := make(map[addrKey][]int64)
	anyDevice := make(map[uint64][]int64)
	for _, t := range tensors {
		if t.Address == nil {
			continue
		}
		if t.DeviceID == nil {
			anyDevice[*t.Address] = append(anyDevice[*t.Address], t.ID)
			continue
		}
		k := addrKey{device: *t.DeviceID, address: *t.Address}
		byAddr[k] = append(byAddr[k], t.ID)
	}

	attached := make(map[int64]map[int64]bool, len(ops))
	for _, op := range ops {
		set := make(map[int64]bool, len(op.Inputs)+len(op.Outputs))
		for _, id := range op.Inputs {
			set[id] = true
		}
		for _, id := range op.Outputs {
			set[id] = true
		}
		attached[op.ID] = set
	}

	for i := range buffers {
		b := &buffers[i]
		candidates := append(append([]int64(nil), byAddr[addrKey{device: b.DeviceID, address: b.Address}]...), anyDevice[b.Address]...)
		if len(candidates) == 0 {
			continue
		}
		var preferred []int64
		if b.OperationID != nil {
			for _, id := range candidates {
				if attached[*b.OperationID][id] {
					preferred = append(preferred, id)
				}
			}
		}
		if len(preferred) == 0 {
			preferred = candidates
		}
		sort.Slice(preferred, func(x, y int) bool { return preferred[x] < preferred[y] })
		b.TensorIDs = preferred
	}
}
