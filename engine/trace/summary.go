package trace

// ReportInfo aggregates record counts from a Snapshot.
type ReportInfo struct {
	RunID           string   `json:"run_id"`
	ProfilerPath    string   `json:"profiler_path,omitempty"`
	PerformancePath string   `json:"performance_path,omitempty"`
	OperationCount  int      `json:"operation_count"`
	TensorCount     int      `json:"tensor_count"`
	BufferCount     int      `json:"buffer_count"`
	DeviceCount     int      `json:"device_count"`
	PerfRowCount    int      `json:"perf_row_count"`
	TotalDurationNs float64  `json:"total_duration_ns"`
	WarningCount    int      `json:"warning_count"`
	Devices         []Device `json:"devices"`
}

// Summarize computes record counts from a Snapshot.
// Safe for nil or empty snapshots (returns zero-value fields).
func Summarize(s *Snapshot) *ReportInfo {
	info := &ReportInfo{Devices: []Device{}}
	if s == nil {
		return info
	}

	info.RunID = s.RunID
	info.ProfilerPath = s.ProfilerPath
	info.PerformancePath = s.PerformancePath
	info.OperationCount = len(s.Operations)
	info.TensorCount = len(s.Tensors)
	info.BufferCount = len(s.Buffers)
	info.DeviceCount = len(s.Devices)
	info.PerfRowCount = len(s.Perf)
	info.WarningCount = len(s.Warnings)
	info.Devices = append(info.Devices, s.Devices...)

	for _, op := range s.Operations {
		info.TotalDurationNs += op.Duration.Or(0)
	}

	return info
}
