package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

type format string

const (
	formatTable format = "table"
	formatJSON  format = "json"
	formatCSV   format = "csv"
)

func parseFormat(s string) (format, error) {
	switch f := format(strings.ToLower(s)); f {
	case formatTable, formatJSON, formatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or csv)", s)
}

// table is the flat rendering of a result for table and CSV output. JSON
// output encodes the result value itself.
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

// fields builds a two-column key/value table.
func fields(pairs ...string) *table {
	t := newTable("FIELD", "VALUE")
	for i := 0; i+1 < len(pairs); i += 2 {
		t.add(pairs[i], pairs[i+1])
	}
	return t
}

func (t *table) recommendations(recs []string) *table {
	for _, r := range recs {
		t.add("recommendation", r)
	}
	return t
}

// render writes data as JSON, or t as an aligned table or CSV.
func render(w io.Writer, f format, data any, t *table) error {
	switch f {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case formatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(t.header); err != nil {
			return err
		}
		if err := cw.WriteAll(t.rows); err != nil {
			return err
		}
		return cw.Error()
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.header, "\t"))
	for _, row := range t.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

const missing = "-"

func fmtNs(v trace.Float) string {
	ns, ok := v.Get()
	if !ok {
		return missing
	}
	return fmtNsValue(ns)
}

func fmtNsValue(ns float64) string {
	return humanize.Comma(int64(math.Round(ns)))
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func fmtPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

func fmtPercentOpt(v trace.Float) string {
	p, ok := v.Get()
	if !ok {
		return missing
	}
	return fmtPercent(p)
}

// fmtRatioPercent formats a 0-1 ratio as a percentage.
func fmtRatioPercent(v trace.Float) string {
	r, ok := v.Get()
	if !ok {
		return missing
	}
	return fmtPercent(r * 100)
}

func fmtBytes(n uint64) string {
	return humanize.IBytes(n)
}

func fmtAddr(addr uint64, hex bool) string {
	if hex {
		return fmt.Sprintf("0x%08x", addr)
	}
	return strconv.FormatUint(addr, 10)
}

func fmtOptInt(v *int64) string {
	if v == nil {
		return missing
	}
	return strconv.FormatInt(*v, 10)
}

func fmtOptAddr(v *uint64, hex bool) string {
	if v == nil {
		return missing
	}
	return fmtAddr(*v, hex)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func i64(n int64) string {
	return strconv.FormatInt(n, 10)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = i64(id)
	}
	return strings.Join(parts, ",")
}

func joinStrategies(ss []trace.Strategy) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
