package memmap

import (
	"sort"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// Comparison is a pair of maps diffed by allocation key. When HasPrevious
// is false the previous map is empty and every current buffer is new.
type Comparison struct {
	HasPrevious bool              `json:"has_previous"`
	Previous    Map               `json:"previous"`
	Current     Map               `json:"current"`
	Added       []trace.BufferKey `json:"added"`
	Retained    []trace.BufferKey `json:"retained"`
	Removed     []trace.BufferKey `json:"removed"`
}

type keySet map[trace.BufferKey]struct{}

func keysOf(m Map) keySet {
	s := make(keySet, len(m.Rows))
	for _, r := range m.Rows {
		s[r.Key] = struct{}{}
	}
	return s
}

// minus returns the keys of s absent from other, sorted.
func (s keySet) minus(other keySet) []trace.BufferKey {
	out := []trace.BufferKey{}
	for k := range s {
		if _, ok := other[k]; !ok {
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out
}

func (s keySet) intersect(other keySet) []trace.BufferKey {
	out := []trace.BufferKey{}
	for k := range s {
		if _, ok := other[k]; ok {
			out = append(out, k)
		}
	}
	sortKeys(out)
	return out
}

// Diff compares two independently rendered maps. The returned Current has
// New set on every row whose key is absent from prev; neither input is
// modified.
func Diff(prev, cur Map) Comparison {
	before, after := keysOf(prev), keysOf(cur)
	c := Comparison{
		Previous: prev,
		Current:  cur,
		Added:    after.minus(before),
		Retained: after.intersect(before),
		Removed:  before.minus(after),
	}
	c.Current.Rows = make([]Row, len(cur.Rows))
	for i, r := range cur.Rows {
		_, existed := before[r.Key]
		r.New = !existed
		c.Current.Rows[i] = r
	}
	return c
}

// BuildComparison renders deviceID's map at opID and at prevOpID, then
// diffs them. A nil prevOpID compares against an empty map, which is how
// the first operation of a trace is shown.
func BuildComparison(snap *trace.Snapshot, deviceID int64, prevOpID *int64, opID int64, opts Options) (Comparison, error) {
	cur, err := Build(snap, deviceID, opID, opts)
	if err != nil {
		return Comparison{}, err
	}
	if prevOpID == nil {
		empty, err := Render(cur.Capacity, nil, nil, opts)
		if err != nil {
			return Comparison{}, err
		}
		empty.DeviceID = deviceID
		return Diff(empty, cur), nil
	}
	prev, err := Build(snap, deviceID, *prevOpID, opts)
	if err != nil {
		return Comparison{}, err
	}
	c := Diff(prev, cur)
	c.HasPrevious = true
	return c, nil
}

func sortKeys(keys []trace.BufferKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		if a.Address != b.Address {
			return a.Address < b.Address
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Size < b.Size
	})
}
