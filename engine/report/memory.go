package report

import "github.com/ttnn-vis/ttnn-vis-cli/engine/trace"

// MemorySummary totals recorded buffer bytes by memory kind.
type MemorySummary struct {
	L1UsedBytes     uint64  `json:"l1_used"`
	L1TotalBytes    uint64  `json:"l1_total"`
	L1UsagePercent  float64 `json:"l1_usage_percent"`
	L1BufferCount   int     `json:"l1_buffer_count"`
	DRAMUsedBytes   uint64  `json:"dram_used"`
	DRAMBufferCount int     `json:"dram_buffer_count"`
}

// Memory sums every recorded buffer row: L1 and L1_SMALL as L1, DRAM as
// DRAM. The L1 total is the sum of each device's tensor L1 capacity. Rows
// are summed as recorded, so a buffer reported for several ops counts once
// per op.
func Memory(snap *trace.Snapshot) MemorySummary {
	var s MemorySummary
	for _, b := range snap.Buffers {
		switch {
		case b.Type.IsL1():
			s.L1UsedBytes += b.Size
			s.L1BufferCount++
		case b.Type == trace.BufferDRAM:
			s.DRAMUsedBytes += b.Size
			s.DRAMBufferCount++
		}
	}
	for _, d := range snap.Devices {
		s.L1TotalBytes += d.L1Capacity()
	}
	s.L1UsagePercent = percent(float64(s.L1UsedBytes), float64(s.L1TotalBytes))
	return s
}
