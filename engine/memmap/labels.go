package memmap

import (
	"strconv"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// Placement records where a buffer's label landed in the label row.
//
// Labels are placed in ascending (address, id) order. A label is centered
// under its cell span when those columns are free. Otherwise it is
// truncated into the longest free run inside its span. When the span has no
// free column the label is merged into the label already there: that
// label's last column becomes '+', Column is -1 and MergedInto names the
// buffer that owns it. Every occupying buffer gets a Placement.
type Placement struct {
	BufferID   int64  `json:"buffer_id"`
	Label      string `json:"label"`
	Text       string `json:"text"`
	Column     int    `json:"column"`
	Truncated  bool   `json:"truncated"`
	MergedInto *int64 `json:"merged_into,omitempty"`
}

const (
	blankColumn = ' '
	mergeMark   = '+'
)

// labelFor returns "T<tensor>" for the first resident tensor, or
// "B<buffer>" when none is known.
func labelFor(b trace.Buffer) string {
	if len(b.TensorIDs) > 0 {
		return "T" + strconv.FormatInt(b.TensorIDs[0], 10)
	}
	return "B" + strconv.FormatInt(b.ID, 10)
}

func (m *Map) labels(live []trace.Buffer) (string, []Placement) {
	row := make([]byte, m.Cells)
	owner := make([]int, m.Cells)
	for i := range row {
		row[i] = blankColumn
		owner[i] = -1
	}
	placements := []Placement{}

	for _, b := range live {
		first, last, ok := m.cellSpan(b)
		if !ok {
			continue
		}
		label := labelFor(b)
		p := Placement{BufferID: b.ID, Label: label}

		start, width := centered(row, first, last, len(label))
		if width == 0 {
			start, width = longestFreeRun(row, first, last)
		}
		if width == 0 {
			host := placements[owner[first]]
			hostEnd := host.Column + len(host.Text) - 1
			row[hostEnd] = mergeMark
			id := host.BufferID
			p.Column = -1
			p.MergedInto = &id
			placements = append(placements, p)
			continue
		}

		text := label
		if len(text) > width {
			text = text[:width]
			p.Truncated = true
		}
		// center inside the free run when it is wider than the text
		start += (width - len(text)) / 2
		p.Column = start
		p.Text = text
		for i := 0; i < len(text); i++ {
			row[start+i] = text[i]
			owner[start+i] = len(placements)
		}
		placements = append(placements, p)
	}
	return string(row), placements
}

// centered returns the centered position of an n-wide label in [first,
// last] when the label fits and all of its columns are free.
func centered(row []byte, first, last, n int) (start, width int) {
	span := last - first + 1
	if n > span {
		return 0, 0
	}
	start = first + (span-n)/2
	for c := start; c < start+n; c++ {
		if row[c] != blankColumn {
			return 0, 0
		}
	}
	return start, n
}

// longestFreeRun returns the first longest run of blank columns in
// [first, last].
func longestFreeRun(row []byte, first, last int) (start, width int) {
	runStart := -1
	for c := first; c <= last+1; c++ {
		if c <= last && row[c] == blankColumn {
			if runStart < 0 {
				runStart = c
			}
			continue
		}
		if runStart >= 0 && c-runStart > width {
			start, width = runStart, c-runStart
		}
		runStart = -1
	}
	return start, width
}
