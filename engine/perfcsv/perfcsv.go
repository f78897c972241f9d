// Package perfcsv reads the device profiler's per-operation performance
// report (ops_perf_results*.csv) into trace.OperationPerf rows.
//
// Column names vary between profiler releases. Headers are normalized
// (trimmed, lower-cased, spaces to underscores) and each field is matched
// against an ordered alias list. A field whose column is absent, or whose
// cell is blank, is undefined rather than zero.
package perfcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// FilePattern matches report file names inside a profiler output directory.
const FilePattern = "ops_perf_results*.csv"

// ErrNoReport is returned by Find when a directory holds no report.
var ErrNoReport = errors.New("no performance report found")

type field int

const (
	fOperationID field = iota
	fGlobalCallCount
	fOpCode
	fOpName
	fDeviceID
	fCoreCount
	fParallelization
	fDeviceTime
	fHostTime
	fMathUtil
	fDRAMUtil
	fFPUUtil
	fPMIdeal
	fPMCompute
	fPMBandwidth
	fPMReqInputBW
	fPMReqOutputBW
	fOpToOpGap
	fInput0Memory
	fInput0Layout
	fMathFidelity
	fDispatchCQCmd
	fDispatchWait
	fERISCKernel
	numFields
)

// aliases lists accepted normalized header names per field, in priority order.
var aliases = [numFields][]string{
	fOperationID:     {"operation_id"},
	fGlobalCallCount: {"global_call_count"},
	fOpCode:          {"op_code", "opcode", "op"},
	fOpName:          {"op_name", "name", "operation_name", "op_type"},
	fDeviceID:        {"device_id", "device"},
	fCoreCount:       {"core_count", "cores", "num_cores"},
	fParallelization: {"parallelization_strategy", "strategy"},
	fDeviceTime:      {"device_kernel_duration_[ns]", "device_kernel_duration_ns", "kernel_duration_[ns]", "kernel_duration_ns", "execution_time_ns", "exec_time_ns", "duration_ns"},
	fHostTime:       {"host_time_ns", "host_duration_ns", "host_duration_[ns]"},
	fMathUtil:       {"math_utilization", "math_util", "compute_utilization"},
	fDRAMUtil:       {"dram_bw_util_(%)", "output_dram_bw_peak_utilization_[%]", "dram_read_bw", "dram_bw_read"},
	fFPUUtil:        {"pm_fpu_util_(%)", "fpu_util_(%)", "fpu_util_percent"},
	fPMIdeal:        {"pm_ideal_[ns]", "pm_ideal_ns"},
	fPMCompute:      {"pm_compute_[ns]", "pm_compute_ns"},
	fPMBandwidth:    {"pm_bandwidth_[ns]", "pm_bandwidth_ns"},
	fPMReqInputBW:   {"pm_req_i_bw"},
	fPMReqOutputBW:  {"pm_req_o_bw"},
	fOpToOpGap:      {"op_to_op_latency_[ns]", "op_to_op_latency_ns", "op_to_op_gap_ns"},
	fInput0Memory:   {"input_0_memory"},
	fInput0Layout:   {"input_0_layout"},
	fMathFidelity:   {"math_fidelity"},
	fDispatchCQCmd:  {"dispatch_cq_cmd_time_[ns]", "dispatch_cq_cmd_time_ns"},
	fDispatchWait:   {"dispatch_wait_time_[ns]", "dispatch_wait_time_ns"},
	fERISCKernel:    {"erisc_kernel_duration_[ns]", "erisc_kernel_duration_ns"},
}

var fieldNames = [numFields]string{
	fOperationID: "operation_id", fGlobalCallCount: "global_call_count", fOpCode: "op_code",
	fOpName: "op_name", fDeviceID: "device_id", fCoreCount: "core_count",
	fParallelization: "parallelization_strategy", fDeviceTime: "device_time_ns",
	fHostTime: "host_time_ns", fMathUtil: "math_utilization", fDRAMUtil: "dram_util_percent",
	fFPUUtil: "fpu_util_percent", fPMIdeal: "pm_ideal_ns", fPMCompute: "pm_compute_ns",
	fPMBandwidth: "pm_bandwidth_ns", fPMReqInputBW: "pm_req_i_bw", fPMReqOutputBW: "pm_req_o_bw",
	fOpToOpGap: "op_to_op_gap_ns", fInput0Memory: "input_0_memory", fInput0Layout: "input_0_layout",
	fMathFidelity: "math_fidelity", fDispatchCQCmd: "dispatch_cq_cmd_time_ns",
	fDispatchWait: "dispatch_wait_time_ns", fERISCKernel: "erisc_kernel_duration_ns",
}

// NormalizeHeader applies the header normalization used for alias matching.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

// Find resolves path to a report file. A file path is returned as is; a
// directory is searched for the most recently modified report, first at its
// top level and then recursively.
func Find(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("locating performance report: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}

	top, err := filepath.Glob(filepath.Join(path, FilePattern))
	if err != nil {
		return "", fmt.Errorf("locating performance report: %w", err)
	}
	if newest := newestFile(top); newest != "" {
		return newest, nil
	}

	var nested []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(FilePattern, d.Name()); ok {
			nested = append(nested, p)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("locating performance report: %w", err)
	}
	if newest := newestFile(nested); newest != "" {
		return newest, nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrNoReport)
}

func newestFile(paths []string) string {
	var (
		newest string
		best   int64
	)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if mt := info.ModTime().UnixNano(); newest == "" || mt > best {
			newest, best = p, mt
		}
	}
	return newest
}

// Load reads the report at path, which may be a directory (see Find).
func Load(path string) ([]trace.OperationPerf, trace.Warnings, error) {
	file, err := Find(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, fmt.Errorf("opening performance report: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, ws, err := Read(f, file)
	if err != nil {
		return nil, nil, err
	}
	logrus.Infof("loaded %s: %d performance rows", file, len(rows))
	return rows, ws, nil
}

// Read decodes a report from r. source names the input in warnings.
func Read(r io.Reader, source string) ([]trace.OperationPerf, trace.Warnings, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []trace.OperationPerf{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading CSV header: %w", err)
	}

	cols := mapColumns(header)
	var ws trace.Warnings
	keyField, keySource := fRowIndex, trace.KeyRowIndex
	switch {
	case cols[fOperationID] >= 0:
		keyField, keySource = fOperationID, trace.KeyOperationID
	case cols[fGlobalCallCount] >= 0:
		keyField, keySource = fGlobalCallCount, trace.KeyGlobalCallCount
	default:
		ws.Add(trace.WarnCorrelation, source, "no operation_id or global_call_count column; rows are keyed by position")
	}
	if cols[fDeviceTime] < 0 {
		ws.Add(trace.WarnMissingColumn, source, "no device kernel duration column; device time is undefined for every row")
	}

	perf := []trace.OperationPerf{}
	seen := make(map[int64]int)
	for rowNum := 1; ; rowNum++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading CSV row %d: %w", rowNum, err)
		}
		p := parseRow(row, cols, source, rowNum, &ws)
		p.Row = rowNum
		p.ID, p.KeySource = int64(rowNum), keySource
		if keyField != fRowIndex {
			if id, ok := parseInt(cell(row, cols, keyField)); ok {
				p.ID = id
			} else {
				p.ID, p.KeySource = 0, trace.KeyNone
				if !p.IsSignpost() {
					ws.Add(trace.WarnCorrelation, source, "row %d: blank or invalid %s; row is not correlated", rowNum, fieldNames[keyField])
				}
			}
		}
		if !p.Correlatable() {
			perf = append(perf, p)
			continue
		}
		if prev, dup := seen[p.ID]; dup {
			ws.Add(trace.WarnCorrelation, source, "row %d: key %d already used by row %d", rowNum, p.ID, prev)
		} else {
			seen[p.ID] = rowNum
		}
		perf = append(perf, p)
	}
	return perf, ws, nil
}

// fRowIndex marks "no key column"; it is never a column index.
const fRowIndex field = -1

func mapColumns(header []string) [numFields]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		n := NormalizeHeader(h)
		if _, dup := index[n]; !dup {
			index[n] = i
		}
	}
	var cols [numFields]int
	for f := range cols {
		cols[f] = -1
		for _, alias := range aliases[f] {
			if i, ok := index[alias]; ok {
				cols[f] = i
				break
			}
		}
	}
	return cols
}

func cell(row []string, cols [numFields]int, f field) string {
	i := cols[f]
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	// integer columns are sometimes exported as "12.0"
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != float64(int64(v)) {
		return 0, false
	}
	return int64(v), true
}

func parseRow(row []string, cols [numFields]int, source string, rowNum int, ws *trace.Warnings) trace.OperationPerf {
	num := func(f field) trace.Float {
		s := cell(row, cols, f)
		if s == "" || strings.EqualFold(s, "nan") || s == "-" {
			return trace.Undefined
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			ws.Add(trace.WarnMalformedRecord, source, "row %d: %s %q is not a number", rowNum, fieldNames[f], s)
			return trace.Undefined
		}
		return trace.Known(v)
	}

	p := trace.OperationPerf{
		OpCode:                  cell(row, cols, fOpCode),
		OpName:                  cell(row, cols, fOpName),
		ParallelizationStrategy: cell(row, cols, fParallelization),
		DeviceTimeNs:            num(fDeviceTime),
		OpToOpGapNs:             num(fOpToOpGap),
		HostTimeNs:              num(fHostTime),
		FPUUtilPercent:          num(fFPUUtil),
		DRAMUtilPercent:         num(fDRAMUtil),
		MathUtilization:         num(fMathUtil),
		PMIdealNs:               num(fPMIdeal),
		PMComputeNs:             num(fPMCompute),
		PMBandwidthNs:           num(fPMBandwidth),
		PMReqInputBW:            num(fPMReqInputBW),
		PMReqOutputBW:           num(fPMReqOutputBW),
		MathFidelity:            cell(row, cols, fMathFidelity),
		Input0Memory:            cell(row, cols, fInput0Memory),
		Input0Layout:            cell(row, cols, fInput0Layout),
		DispatchCQCmdNs:         num(fDispatchCQCmd),
		DispatchWaitNs:          num(fDispatchWait),
		ERISCKernelNs:           num(fERISCKernel),
	}
	if id, ok := parseInt(cell(row, cols, fDeviceID)); ok {
		p.DeviceID = &id
	}
	if n, ok := parseInt(cell(row, cols, fCoreCount)); ok && n > 0 {
		p.CoreCount = int(n)
	}
	return p
}

// WithoutSignposts drops profiler marker rows.
func WithoutSignposts(rows []trace.OperationPerf) []trace.OperationPerf {
	out := make([]trace.OperationPerf, 0, len(rows))
	for _, r := range rows {
		if !r.IsSignpost() {
			out = append(out, r)
		}
	}
	return out
}
