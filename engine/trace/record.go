// Package trace holds the typed records of one profiled run: devices,
// operations, tensors, buffers and per-operation performance rows.
// It imports nothing from engine/ and holds no analysis logic.
package trace

import (
	"strconv"
	"strings"
)

// DType is a tensor element type.
type DType string

const (
	DTypeBFloat16 DType = "BFLOAT16"
	DTypeBFloat8B DType = "BFLOAT8_B"
	DTypeBFloat4B DType = "BFLOAT4_B"
	DTypeFloat32  DType = "FLOAT32"
	DTypeFloat16  DType = "FLOAT16"
	DTypeUint32   DType = "UINT32"
	DTypeUint16   DType = "UINT16"
	DTypeUint8    DType = "UINT8"
	DTypeInt32    DType = "INT32"
	DTypeUnknown  DType = "UNKNOWN"
)

// dtypeMatchOrder is checked by substring; longer names precede their suffixes.
var dtypeMatchOrder = []DType{
	DTypeBFloat8B, DTypeBFloat16, DTypeBFloat4B, DTypeFloat32, DTypeFloat16,
	DTypeUint32, DTypeUint16, DTypeUint8, DTypeInt32,
}

// ParseDType normalizes raw dtype text such as "DataType.BFLOAT16".
func ParseDType(raw string) DType {
	upper := strings.ToUpper(raw)
	for _, d := range dtypeMatchOrder {
		if strings.Contains(upper, string(d)) {
			return d
		}
	}
	return DTypeUnknown
}

// Layout is the tensor data layout.
type Layout string

const (
	LayoutTile     Layout = "TILE"
	LayoutRowMajor Layout = "ROW_MAJOR"
	LayoutUnknown  Layout = "UNKNOWN"
)

// ParseLayout normalizes raw layout text such as "Layout.TILE".
func ParseLayout(raw string) Layout {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "TILE"):
		return LayoutTile
	case strings.Contains(upper, "ROW_MAJOR"), strings.Contains(upper, "STRIDED"):
		return LayoutRowMajor
	}
	return LayoutUnknown
}

// Placement is the memory a tensor resides in.
type Placement string

const (
	PlacementL1      Placement = "L1"
	PlacementDRAM    Placement = "DRAM"
	PlacementSystem  Placement = "SYSTEM_MEMORY"
	PlacementUnknown Placement = "UNKNOWN"
)

// ParsePlacement resolves placement from the buffer type text first and
// falls back to the memory config text.
func ParsePlacement(memoryConfig, bufferType string) Placement {
	for _, s := range []string{bufferType, memoryConfig} {
		upper := strings.ToUpper(s)
		switch {
		case strings.Contains(upper, "DRAM"):
			return PlacementDRAM
		case strings.Contains(upper, "L1"):
			return PlacementL1
		case strings.Contains(upper, "SYSTEM"):
			return PlacementSystem
		}
	}
	return PlacementUnknown
}

// Strategy is how a tensor is partitioned across cores.
type Strategy string

const (
	StrategyHeight      Strategy = "HEIGHT_SHARDED"
	StrategyWidth       Strategy = "WIDTH_SHARDED"
	StrategyBlock       Strategy = "BLOCK_SHARDED"
	StrategyInterleaved Strategy = "INTERLEAVED"
	StrategySingleBank  Strategy = "SINGLE_BANK"
	// StrategyNone means the record carries no sharding information.
	StrategyNone Strategy = "NONE"
)

// Strategies lists every strategy in display order.
var Strategies = []Strategy{
	StrategyHeight, StrategyWidth, StrategyBlock, StrategyInterleaved, StrategySingleBank, StrategyNone,
}

// ParseStrategy extracts the sharding strategy from memory config text.
func ParseStrategy(memoryConfig string) Strategy {
	upper := strings.ToUpper(memoryConfig)
	for _, s := range Strategies[:5] {
		if strings.Contains(upper, string(s)) {
			return s
		}
	}
	return StrategyNone
}

// IsSharded reports whether s partitions the tensor across cores.
func (s Strategy) IsSharded() bool {
	return s == StrategyHeight || s == StrategyWidth || s == StrategyBlock
}

// BufferType is the memory kind recorded for a buffer.
type BufferType int

const (
	BufferDRAM         BufferType = 0
	BufferL1           BufferType = 1
	BufferSystemMemory BufferType = 2
	BufferL1Small      BufferType = 3
	BufferTrace        BufferType = 4
)

var bufferTypeNames = map[BufferType]string{
	BufferDRAM:         "DRAM",
	BufferL1:           "L1",
	BufferSystemMemory: "SYSTEM_MEMORY",
	BufferL1Small:      "L1_SMALL",
	BufferTrace:        "TRACE",
}

// BufferTypeFromInt maps the stored integer code to a BufferType.
func BufferTypeFromInt(v int64) (BufferType, bool) {
	bt := BufferType(v)
	_, ok := bufferTypeNames[bt]
	return bt, ok
}

// ParseBufferType accepts either a name ("L1_SMALL") or an integer code ("3").
func ParseBufferType(s string) (BufferType, bool) {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return BufferTypeFromInt(n)
	}
	upper := strings.ToUpper(strings.TrimSpace(s))
	upper = strings.TrimPrefix(upper, "BUFFERTYPE.")
	for bt, name := range bufferTypeNames {
		if name == upper {
			return bt, true
		}
	}
	return 0, false
}

func (b BufferType) String() string {
	if name, ok := bufferTypeNames[b]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText encodes the type by name.
func (b BufferType) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// IsL1 reports whether the buffer lives in core-local L1 (L1 or L1_SMALL).
func (b BufferType) IsL1() bool {
	return b == BufferL1 || b == BufferL1Small
}

// Device describes one accelerator chip. Immutable after load.
type Device struct {
	ID                       int64  `json:"id"`
	NumYCores                int64  `json:"num_y_cores"`
	NumXCores                int64  `json:"num_x_cores"`
	NumYComputeCores         int64  `json:"num_y_compute_cores"`
	NumXComputeCores         int64  `json:"num_x_compute_cores"`
	WorkerL1Size             uint64 `json:"worker_l1_size"`
	L1NumBanks               int64  `json:"l1_num_banks"`
	L1BankSize               uint64 `json:"l1_bank_size"`
	AddressAtFirstL1Bank     uint64 `json:"address_at_first_l1_bank"`
	AddressAtFirstL1CBBuffer uint64 `json:"address_at_first_l1_cb_buffer"`
	NumBanksPerStorageCore   int64  `json:"num_banks_per_storage_core"`
	NumComputeCores          int64  `json:"num_compute_cores"`
	NumStorageCores          int64  `json:"num_storage_cores"`
	TotalL1Memory            uint64 `json:"total_l1_memory"`
	TotalL1ForTensors        uint64 `json:"total_l1_for_tensors"`
	CBLimit                  uint64 `json:"cb_limit"`
	Arch                     string `json:"arch,omitempty"`
	ChipID                   int64  `json:"chip_id"`
}

// L1Capacity is the L1 address space available to tensors.
func (d Device) L1Capacity() uint64 {
	if d.TotalL1ForTensors > 0 {
		return d.TotalL1ForTensors
	}
	return d.WorkerL1Size
}

// ComputeCores is the size of the compute grid.
func (d Device) ComputeCores() int64 {
	if d.NumComputeCores > 0 {
		return d.NumComputeCores
	}
	return d.NumXComputeCores * d.NumYComputeCores
}

// Tensor is a logical multi-dimensional array produced or consumed by operations.
type Tensor struct {
	ID           int64     `json:"id"`
	Shape        []int64   `json:"shape"`
	ShapeText    string    `json:"shape_text"`
	DType        DType     `json:"dtype"`
	Layout       Layout    `json:"layout"`
	Placement    Placement `json:"placement"`
	Strategy     Strategy  `json:"strategy"`
	DeviceID     *int64    `json:"device_id"`
	Address      *uint64   `json:"address"`
	MemoryConfig string    `json:"memory_config,omitempty"`
}

// ParseShape extracts the dimensions from shape text such as "Shape([1, 1, 32, 64])".
func ParseShape(text string) []int64 {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r < '0' || r > '9' })
	dims := make([]int64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			continue
		}
		dims = append(dims, n)
	}
	return dims
}

// BufferKey identifies an allocation across snapshots. Buffer row ids are
// per-report and are not stable.
type BufferKey struct {
	DeviceID int64      `json:"device_id"`
	Type     BufferType `json:"type"`
	Address  uint64     `json:"address"`
	Size     uint64     `json:"size"`
}

// Buffer is a contiguous allocation in device memory.
type Buffer struct {
	ID          int64      `json:"id"`
	DeviceID    int64      `json:"device_id"`
	Address     uint64     `json:"address"`
	Size        uint64     `json:"size"`
	Type        BufferType `json:"type"`
	OperationID *int64     `json:"operation_id"`
	TensorIDs   []int64    `json:"tensor_ids"`
}

// Key returns the allocation identity of b.
func (b Buffer) Key() BufferKey {
	return BufferKey{DeviceID: b.DeviceID, Type: b.Type, Address: b.Address, Size: b.Size}
}

// End returns the first address past the buffer and false on overflow.
func (b Buffer) End() (uint64, bool) {
	end := b.Address + b.Size
	return end, end >= b.Address
}

// Operation is one executed kernel-level op.
type Operation struct {
	ID              int64   `json:"id"`
	Sequence        int     `json:"sequence"`
	Name            string  `json:"name"`
	DeviceID        *int64  `json:"device_id"`
	Duration        Float   `json:"duration"`
	StackTraceID    *int64  `json:"stack_trace_id"`
	CapturedGraphID *int64  `json:"captured_graph_id"`
	Inputs          []int64 `json:"inputs"`
	Outputs         []int64 `json:"outputs"`
}

// OperationArgument is one recorded argument of an operation.
type OperationArgument struct {
	OperationID int64  `json:"operation_id"`
	Name        string `json:"name"`
	Value       string `json:"value"`
}

// KeySource records which column an OperationPerf correlation id came from.
type KeySource string

const (
	KeyOperationID     KeySource = "operation_id"
	KeyGlobalCallCount KeySource = "global_call_count"
	KeyRowIndex        KeySource = "row_index"
	// KeyNone marks a row from a keyed report whose key cell is blank or
	// invalid. Such rows are never correlated with an operation.
	KeyNone            KeySource = "none"
)

// OperationPerf is one row of the performance report. Every numeric field
// that the report can omit is a Float.
type OperationPerf struct {
	ID        int64     `json:"id"`
	KeySource KeySource `json:"key_source"`
	Row       int       `json:"row"`

	OpCode   string `json:"op_code"`
	OpName   string `json:"op_name"`
	DeviceID *int64 `json:"device_id"`
	// CoreCount is 0 when the report does not carry it.
	CoreCount int `json:"core_count"`

	DeviceTimeNs    Float `json:"device_time_ns"`
	OpToOpGapNs     Float `json:"op_to_op_gap_ns"`
	HostTimeNs      Float `json:"host_time_ns"`
	FPUUtilPercent  Float `json:"fpu_util_percent"`
	DRAMUtilPercent Float `json:"dram_util_percent"`
	MathUtilization Float `json:"math_utilization"`
	PMIdealNs       Float `json:"pm_ideal_ns"`
	PMComputeNs     Float `json:"pm_compute_ns"`
	PMBandwidthNs   Float `json:"pm_bandwidth_ns"`
	PMReqInputBW    Float `json:"pm_req_i_bw"`
	PMReqOutputBW   Float `json:"pm_req_o_bw"`

	MathFidelity            string `json:"math_fidelity,omitempty"`
	Input0Memory            string `json:"input_0_memory,omitempty"`
	Input0Layout            string `json:"input_0_layout,omitempty"`
	ParallelizationStrategy string `json:"parallelization_strategy,omitempty"`

	DispatchCQCmdNs Float `json:"dispatch_cq_cmd_time_ns"`
	DispatchWaitNs  Float `json:"dispatch_wait_time_ns"`
	ERISCKernelNs   Float `json:"erisc_kernel_duration_ns"`
}

// IsSignpost reports whether the row is a profiler marker rather than an op.
func (p OperationPerf) IsSignpost() bool {
	return p.OpName == "signpost"
}

// Correlatable reports whether the row's ID may be matched to an operation.
func (p OperationPerf) Correlatable() bool {
	return p.KeySource != KeyNone && !p.IsSignpost()
}
