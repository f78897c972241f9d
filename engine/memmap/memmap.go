// Package memmap packs a device's live L1 buffers into an address-ordered
// layout and renders it as a fixed-width ASCII occupancy bar with a label
// row and a detail table. Two maps can be diffed by allocation identity.
//
// Everything returned is raw data: addresses and sizes are plain integers
// and the bar uses only '#' and '.'. Hex/decimal and byte humanization are
// left to the caller.
package memmap

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// ErrNoCapacity is returned when the device reports no L1 capacity.
var ErrNoCapacity = errors.New("device L1 capacity not available")

const (
	filledCell = '#'
	emptyCell  = '.'
)

// Options controls rendering.
type Options struct {
	// Cells is the width of the bar in characters.
	Cells int `yaml:"cells"`
}

// DefaultOptions returns a 50-cell bar.
func DefaultOptions() Options {
	return Options{Cells: 50}
}

// Validate rejects a non-positive cell count.
func (o Options) Validate() error {
	return trace.RequirePositiveInt("memory_map.cells", o.Cells)
}

// Interval is a half-open byte range [Start, End).
type Interval struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Row is one live buffer in the detail table.
type Row struct {
	BufferID int64            `json:"buffer_id"`
	TensorID *int64           `json:"tensor_id"`
	Key      trace.BufferKey  `json:"key"`
	Address  uint64           `json:"address"`
	Size     uint64           `json:"size"`
	Type     trace.BufferType `json:"type"`
	Shape    string           `json:"shape,omitempty"`
	DType    trace.DType      `json:"dtype,omitempty"`
	Layout   trace.Layout     `json:"layout,omitempty"`
	Strategy trace.Strategy   `json:"strategy,omitempty"`
	New      bool             `json:"new"`
}

// Map is the rendered layout of one device at one operation.
type Map struct {
	DeviceID    int64  `json:"device_id"`
	OperationID int64  `json:"operation_id"`
	Capacity    uint64 `json:"capacity"`
	Cells       int    `json:"cells"`
	CellWidth   uint64 `json:"cell_width"`

	Bar        string      `json:"bar"`
	LabelRow   string      `json:"label_row"`
	Placements []Placement `json:"labels"`
	Rows       []Row       `json:"rows"`
	Intervals  []Interval  `json:"intervals"`

	// UsedBytes is the plain sum of live buffer sizes and drives
	// UsedPercent. OccupiedBytes is the size of their union and drives
	// FillPercent. The two differ only when buffers overlap, where
	// UsedPercent counts the shared bytes twice and may pass 100.
	UsedBytes     uint64 `json:"used_bytes"`
	OccupiedBytes uint64 `json:"occupied_bytes"`
	UsedPercent   int    `json:"used_percent"`
	FillPercent   int    `json:"fill_percent"`

	Warnings trace.Warnings `json:"warnings"`
}

// LiveSet returns the L1 and L1_SMALL buffers recorded on deviceID for opID,
// ordered by address then id.
func LiveSet(snap *trace.Snapshot, deviceID, opID int64) []trace.Buffer {
	live := []trace.Buffer{}
	for _, b := range snap.Buffers {
		if b.DeviceID != deviceID || !b.Type.IsL1() {
			continue
		}
		if b.OperationID == nil || *b.OperationID != opID {
			continue
		}
		live = append(live, b)
	}
	sortBuffers(live)
	return live
}

// PreviousOperation returns the operation executed immediately before opID.
func PreviousOperation(snap *trace.Snapshot, opID int64) (trace.Operation, bool) {
	return snap.Previous(opID)
}

// Build renders the L1 map of deviceID at opID from a snapshot.
func Build(snap *trace.Snapshot, deviceID, opID int64, opts Options) (Map, error) {
	dev, err := snap.Device(deviceID)
	if err != nil {
		return Map{}, err
	}
	if _, err := snap.Operation(opID); err != nil {
		return Map{}, err
	}
	m, err := Render(dev.L1Capacity(), LiveSet(snap, deviceID, opID), snap.TensorMap(), opts)
	if err != nil {
		return Map{}, fmt.Errorf("device %d operation %d: %w", deviceID, opID, err)
	}
	m.DeviceID = deviceID
	m.OperationID = opID
	return m, nil
}

// Render lays out buffers over [0, capacity). tensors resolves the tensor
// details shown in the rows and may be nil.
//
// Buffers that start at or beyond capacity, end beyond it, or whose end
// overflows are excluded with a malformed-record warning. Overlapping
// buffers are kept and reported; the fill percentage counts overlapped
// bytes once.
func Render(capacity uint64, buffers []trace.Buffer, tensors map[int64]trace.Tensor, opts Options) (Map, error) {
	if err := opts.Validate(); err != nil {
		return Map{}, err
	}
	if capacity == 0 {
		return Map{}, ErrNoCapacity
	}
	m := Map{
		Capacity:   capacity,
		Cells:      opts.Cells,
		CellWidth:  (capacity + uint64(opts.Cells) - 1) / uint64(opts.Cells),
		Placements: []Placement{},
		Rows:       []Row{},
		Intervals:  []Interval{},
	}

	live := make([]trace.Buffer, 0, len(buffers))
	for _, b := range buffers {
		source := fmt.Sprintf("buffer %d", b.ID)
		end, ok := b.End()
		switch {
		case !ok:
			m.Warnings.Add(trace.WarnMalformedRecord, source, "address 0x%x + size %d overflows", b.Address, b.Size)
			continue
		case b.Address >= capacity:
			m.Warnings.Add(trace.WarnMalformedRecord, source, "address 0x%x beyond L1 capacity 0x%x", b.Address, capacity)
			continue
		case end > capacity:
			m.Warnings.Add(trace.WarnMalformedRecord, source, "end 0x%x beyond L1 capacity 0x%x", end, capacity)
			continue
		}
		live = append(live, b)
	}
	sortBuffers(live)

	m.Intervals = m.pack(live)
	for _, iv := range m.Intervals {
		m.OccupiedBytes += iv.End - iv.Start
	}
	for _, b := range live {
		m.UsedBytes += b.Size
	}
	m.UsedPercent = int(math.Round(float64(m.UsedBytes) / float64(capacity) * 100))
	m.FillPercent = int(math.Round(float64(m.OccupiedBytes) / float64(capacity) * 100))
	m.Bar = m.bar(live)
	m.LabelRow, m.Placements = m.labels(live)
	for _, b := range live {
		m.Rows = append(m.Rows, newRow(b, tensors))
	}
	return m, nil
}

// pack merges the extents of sorted buffers into disjoint intervals and
// warns about each overlap it absorbs.
func (m *Map) pack(live []trace.Buffer) []Interval {
	out := []Interval{}
	var cur Interval
	var curOwner int64
	open := false
	for _, b := range live {
		if b.Size == 0 {
			continue
		}
		end := b.Address + b.Size
		if open && b.Address < cur.End {
			m.Warnings.Add(trace.WarnOverlap, fmt.Sprintf("buffer %d", b.ID),
				"[0x%x, 0x%x) overlaps buffer %d ending at 0x%x", b.Address, end, curOwner, cur.End)
			if end > cur.End {
				cur.End = end
				curOwner = b.ID
			}
			continue
		}
		if open {
			out = append(out, cur)
		}
		cur = Interval{Start: b.Address, End: end}
		curOwner = b.ID
		open = true
	}
	if open {
		out = append(out, cur)
	}
	return out
}

// cellSpan returns the first and last cell a buffer occupies. A zero-size
// buffer at a nonzero address occupies the cell holding its address; one
// at address 0 occupies nothing.
func (m *Map) cellSpan(b trace.Buffer) (first, last int, ok bool) {
	if b.Size == 0 {
		if b.Address == 0 {
			return 0, 0, false
		}
		c := m.cellOf(b.Address)
		return c, c, true
	}
	return m.cellOf(b.Address), m.cellOf(b.Address + b.Size - 1), true
}

func (m *Map) cellOf(addr uint64) int {
	c := int(addr / m.CellWidth)
	if c >= m.Cells {
		c = m.Cells - 1
	}
	return c
}

func (m *Map) bar(live []trace.Buffer) string {
	cells := make([]byte, m.Cells)
	for i := range cells {
		cells[i] = emptyCell
	}
	for _, b := range live {
		first, last, ok := m.cellSpan(b)
		if !ok {
			continue
		}
		for c := first; c <= last; c++ {
			cells[c] = filledCell
		}
	}
	return string(cells)
}

func newRow(b trace.Buffer, tensors map[int64]trace.Tensor) Row {
	r := Row{
		BufferID: b.ID,
		Key:      b.Key(),
		Address:  b.Address,
		Size:     b.Size,
		Type:     b.Type,
	}
	if len(b.TensorIDs) == 0 {
		return r
	}
	id := b.TensorIDs[0]
	r.TensorID = &id
	if t, ok := tensors[id]; ok {
		r.Shape = t.ShapeText
		r.DType = t.DType
		r.Layout = t.Layout
		r.Strategy = t.Strategy
	}
	return r
}

func sortBuffers(bs []trace.Buffer) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Address != bs[j].Address {
			return bs[i].Address < bs[j].Address
		}
		return bs[i].ID < bs[j].ID
	})
}
