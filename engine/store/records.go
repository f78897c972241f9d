package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ttnn-vis/ttnn-vis-cli/engine/trace"
)

// deviceColumns are read in this order; device_id must stay first.
var deviceColumns = []string{
	"device_id", "num_y_cores", "num_x_cores", "num_y_compute_cores", "num_x_compute_cores",
	"worker_l1_size", "l1_num_banks", "l1_bank_size", "address_at_first_l1_bank",
	"address_at_first_l1_cb_buffer", "num_banks_per_storage_core", "num_compute_cores",
	"num_storage_cores", "total_l1_memory", "total_l1_for_tensors", "cb_limit", "chip_id",
}

// BufferFilter narrows a Buffers query. Nil fields match everything.
type BufferFilter struct {
	DeviceID    *int64
	OperationID *int64
	Type        *trace.BufferType
	Limit       int
}

func optInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func optFloat(n sql.NullFloat64) trace.Float {
	if !n.Valid {
		return trace.Undefined
	}
	return trace.Known(n.Float64)
}

func unsigned(n sql.NullInt64) uint64 {
	if !n.Valid || n.Int64 < 0 {
		return 0
	}
	return uint64(n.Int64)
}

func logWarnings(ws trace.Warnings) {
	for _, w := range ws {
		logrus.Warn(w.String())
	}
}

// Devices returns every device ordered by id.
func (s *Store) Devices(ctx context.Context) ([]trace.Device, error) {
	var ws trace.Warnings
	devices, err := s.devices(ctx, &ws, "")
	logWarnings(ws)
	return devices, err
}

// Device returns one device or ErrNotFound.
func (s *Store) Device(ctx context.Context, id int64) (trace.Device, error) {
	var ws trace.Warnings
	devices, err := s.devices(ctx, &ws, " WHERE device_id = ?", id)
	logWarnings(ws)
	if err != nil {
		return trace.Device{}, err
	}
	if len(devices) == 0 {
		return trace.Device{}, fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	return devices[0], nil
}

func (s *Store) devices(ctx context.Context, ws *trace.Warnings, where string, args ...any) ([]trace.Device, error) {
	if !s.HasTable("devices") {
		return []trace.Device{}, nil
	}
	exprs := make([]string, len(deviceColumns))
	for i, c := range deviceColumns {
		exprs[i] = s.colOrNull("devices", c)
	}
	query := fmt.Sprintf("SELECT %s, %s FROM devices%s ORDER BY device_id",
		strings.Join(exprs, ", "), s.colOrNull("devices", "arch"), where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	devices := []trace.Device{}
	for row := 0; rows.Next(); row++ {
		vals := make([]sql.NullInt64, len(deviceColumns))
		var arch sql.NullString
		dest := make([]any, 0, len(vals)+1)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		dest = append(dest, &arch)
		if err := rows.Scan(dest...); err != nil {
			ws.Add(trace.WarnMalformedRecord, "devices", "row %d: %v", row, err)
			continue
		}
		if !vals[0].Valid {
			ws.Add(trace.WarnMalformedRecord, "devices", "row %d: missing device_id", row)
			continue
		}
		devices = append(devices, trace.Device{
			ID:                       vals[0].Int64,
			NumYCores:                vals[1].Int64,
			NumXCores:                vals[2].Int64,
			NumYComputeCores:         vals[3].Int64,
			NumXComputeCores:         vals[4].Int64,
			WorkerL1Size:             unsigned(vals[5]),
			L1NumBanks:               vals[6].Int64,
			L1BankSize:               unsigned(vals[7]),
			AddressAtFirstL1Bank:     unsigned(vals[8]),
			AddressAtFirstL1CBBuffer: unsigned(vals[9]),
			NumBanksPerStorageCore:   vals[10].Int64,
			NumComputeCores:          vals[11].Int64,
			NumStorageCores:          vals[12].Int64,
			TotalL1Memory:            unsigned(vals[13]),
			TotalL1ForTensors:        unsigned(vals[14]),
			CBLimit:                  unsigned(vals[15]),
			ChipID:                   vals[16].Int64,
			Arch:                     arch.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	return devices, nil
}

// Operations returns every operation in id order with its tensor edges.
// Sequence is the rank in that order.
func (s *Store) Operations(ctx context.Context) ([]trace.Operation, error) {
	var ws trace.Warnings
	ops, err := s.operations(ctx, &ws, nil)
	logWarnings(ws)
	return ops, err
}

// Operation returns one operation with its tensor edges, or ErrNotFound.
func (s *Store) Operation(ctx context.Context, id int64) (trace.Operation, error) {
	var ws trace.Warnings
	ops, err := s.operations(ctx, &ws, &id)
	logWarnings(ws)
	if err != nil {
		return trace.Operation{}, err
	}
	if len(ops) == 0 {
		return trace.Operation{}, fmt.Errorf("operation %d: %w", id, ErrNotFound)
	}
	var rank int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operations WHERE operation_id < ?", id).Scan(&rank); err != nil {
		return trace.Operation{}, fmt.Errorf("ranking operation %d: %w", id, err)
	}
	ops[0].Sequence = rank
	return ops[0], nil
}

func (s *Store) operations(ctx context.Context, ws *trace.Warnings, only *int64) ([]trace.Operation, error) {
	if !s.HasTable("operations") {
		return []trace.Operation{}, nil
	}
	query := fmt.Sprintf("SELECT operation_id, %s, %s, %s, %s, %s FROM operations",
		s.colOrNull("operations", "name"),
		s.colOrNull("operations", "duration"),
		s.colOrNull("operations", "device_id"),
		s.colOrNull("operations", "stack_trace_id"),
		s.colOrNull("operations", "captured_graph_id"))
	var args []any
	if only != nil {
		query += " WHERE operation_id = ?"
		args = append(args, *only)
	}
	query += " ORDER BY operation_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ops := []trace.Operation{}
	for row := 0; rows.Next(); row++ {
		var (
			id                     sql.NullInt64
			name                   sql.NullString
			duration               sql.NullFloat64
			device, stack, capture sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &duration, &device, &stack, &capture); err != nil {
			ws.Add(trace.WarnMalformedRecord, "operations", "row %d: %v", row, err)
			continue
		}
		if !id.Valid {
			ws.Add(trace.WarnMalformedRecord, "operations", "row %d: missing operation_id", row)
			continue
		}
		ops = append(ops, trace.Operation{
			ID:              id.Int64,
			Sequence:        len(ops),
			Name:            name.String,
			Duration:        optFloat(duration),
			DeviceID:        optInt(device),
			StackTraceID:    optInt(stack),
			CapturedGraphID: optInt(capture),
			Inputs:          []int64{},
			Outputs:         []int64{},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying operations: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("querying operations: %w", err)
	}

	inputs, err := s.edges(ctx, ws, "input_tensors", "input_index", only)
	if err != nil {
		return nil, err
	}
	outputs, err := s.edges(ctx, ws, "output_tensors", "output_index", only)
	if err != nil {
		return nil, err
	}
	for i := range ops {
		if in, ok := inputs[ops[i].ID]; ok {
			ops[i].Inputs = in
		}
		if out, ok := outputs[ops[i].ID]; ok {
			ops[i].Outputs = out
		}
	}
	return ops, nil
}

// edges reads an operation -> tensor association table in recorded order.
func (s *Store) edges(ctx context.Context, ws *trace.Warnings, table, indexColumn string, only *int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64)
	if !s.HasTable(table) {
		ws.Add(trace.WarnMissingColumn, table, "table not present; operations have no %s edges", table)
		return out, nil
	}
	order := "rowid"
	if s.hasColumn(table, indexColumn) {
		order = indexColumn
	}
	query := fmt.Sprintf("SELECT operation_id, tensor_id FROM %s", table)
	var args []any
	if only != nil {
		query += " WHERE operation_id = ?"
		args = append(args, *only)
	}
	query += fmt.Sprintf(" ORDER BY operation_id, %s", order)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	for row := 0; rows.Next(); row++ {
		var op, tensor sql.NullInt64
		if err := rows.Scan(&op, &tensor); err != nil || !op.Valid || !tensor.Valid {
			ws.Add(trace.WarnMalformedRecord, table, "row %d: unusable edge", row)
			continue
		}
		out[op.Int64] = append(out[op.Int64], tensor.Int64)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	return out, nil
}

// OperationArguments returns the recorded arguments of an operation.
func (s *Store) OperationArguments(ctx context.Context, opID int64) ([]trace.OperationArgument, error) {
	args := []trace.OperationArgument{}
	if !s.HasTable("operation_arguments") {
		return args, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT operation_id, name, value FROM operation_arguments WHERE operation_id = ? ORDER BY rowid", opID)
	if err != nil {
		return nil, fmt.Errorf("querying arguments of operation %d: %w", opID, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			id          int64
			name, value sql.NullString
		)
		if err := rows.Scan(&id, &name, &value); err != nil {
			return nil, fmt.Errorf("querying arguments of operation %d: %w", opID, err)
		}
		args = append(args, trace.OperationArgument{OperationID: id, Name: name.String, Value: value.String})
	}
	return args, rows.Err()
}

// StackTrace returns the stack trace text for an id, or ErrNotFound.
func (s *Store) StackTrace(ctx context.Context, id int64) (string, error) {
	if !s.HasTable("stack_traces") {
		return "", fmt.Errorf("stack trace %d: %w", id, ErrNotFound)
	}
	var text sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT stack_trace FROM stack_traces WHERE stack_trace_id = ?", id).Scan(&text)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("stack trace %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying stack trace %d: %w", id, err)
	}
	return text.String, nil
}

// Tensors returns every tensor ordered by id.
func (s *Store) Tensors(ctx context.Context) ([]trace.Tensor, error) {
	var ws trace.Warnings
	tensors, err := s.tensors(ctx, &ws, "")
	logWarnings(ws)
	return tensors, err
}

// Tensor returns one tensor or ErrNotFound.
func (s *Store) Tensor(ctx context.Context, id int64) (trace.Tensor, error) {
	var ws trace.Warnings
	tensors, err := s.tensors(ctx, &ws, " WHERE tensor_id = ?", id)
	logWarnings(ws)
	if err != nil {
		return trace.Tensor{}, err
	}
	if len(tensors) == 0 {
		return trace.Tensor{}, fmt.Errorf("tensor %d: %w", id, ErrNotFound)
	}
	return tensors[0], nil
}

func (s *Store) tensors(ctx context.Context, ws *trace.Warnings, where string, args ...any) ([]trace.Tensor, error) {
	if !s.HasTable("tensors") {
		return []trace.Tensor{}, nil
	}
	query := fmt.Sprintf("SELECT tensor_id, %s, %s, %s, %s, %s, %s, %s FROM tensors%s ORDER BY tensor_id",
		s.colOrNull("tensors", "shape"),
		s.colOrNull("tensors", "dtype"),
		s.colOrNull("tensors", "layout"),
		s.colOrNull("tensors", "memory_config"),
		s.colOrNull("tensors", "device_id"),
		s.colOrNull("tensors", "address"),
		s.colOrNull("tensors", "buffer_type"),
		where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tensors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tensors := []trace.Tensor{}
	for row := 0; rows.Next(); row++ {
		var (
			id, device, address                   sql.NullInt64
			shape, dtype, layout, memCfg, bufType sql.NullString
		)
		if err := rows.Scan(&id, &shape, &dtype, &layout, &memCfg, &device, &address, &bufType); err != nil {
			ws.Add(trace.WarnMalformedRecord, "tensors", "row %d: %v", row, err)
			continue
		}
		if !id.Valid {
			ws.Add(trace.WarnMalformedRecord, "tensors", "row %d: missing tensor_id", row)
			continue
		}
		t := trace.Tensor{
			ID:           id.Int64,
			Shape:        trace.ParseShape(shape.String),
			ShapeText:    shape.String,
			DType:        trace.ParseDType(dtype.String),
			Layout:       trace.ParseLayout(layout.String),
			Strategy:     trace.ParseStrategy(memCfg.String),
			DeviceID:     optInt(device),
			MemoryConfig: memCfg.String,
		}
		bufName := bufType.String
		if bt, ok := trace.ParseBufferType(bufType.String); ok {
			bufName = bt.String()
		}
		t.Placement = trace.ParsePlacement(memCfg.String, bufName)
		if address.Valid {
			if address.Int64 < 0 {
				ws.Add(trace.WarnMalformedRecord, "tensors", "tensor %d: negative address %d ignored", id.Int64, address.Int64)
			} else {
				a := uint64(address.Int64)
				t.Address = &a
			}
		}
		tensors = append(tensors, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying tensors: %w", err)
	}
	return tensors, nil
}

// Buffers returns the buffers matching filter, ordered by operation then address.
// Rows without a buffer_id column get their row position as id.
func (s *Store) Buffers(ctx context.Context, filter BufferFilter) ([]trace.Buffer, error) {
	var ws trace.Warnings
	buffers, err := s.buffers(ctx, &ws, filter)
	logWarnings(ws)
	return buffers, err
}

func (s *Store) buffers(ctx context.Context, ws *trace.Warnings, filter BufferFilter) ([]trace.Buffer, error) {
	if !s.HasTable("buffers") {
		return []trace.Buffer{}, nil
	}
	sizeCol := s.bufferSizeColumn()
	if sizeCol == "NULL" {
		ws.Add(trace.WarnMissingColumn, "buffers", "no max_size or max_size_per_bank column; sizes read as 0")
	}
	query := fmt.Sprintf("SELECT %s, %s, %s, address, %s, buffer_type FROM buffers WHERE 1=1",
		s.colOrNull("buffers", "buffer_id"),
		s.colOrNull("buffers", "operation_id"),
		s.colOrNull("buffers", "device_id"),
		sizeCol)
	var args []any
	if filter.DeviceID != nil {
		query += " AND device_id = ?"
		args = append(args, *filter.DeviceID)
	}
	if filter.OperationID != nil {
		query += " AND operation_id = ?"
		args = append(args, *filter.OperationID)
	}
	if filter.Type != nil {
		query += " AND buffer_type = ?"
		args = append(args, int64(*filter.Type))
	}
	query += " ORDER BY operation_id, address"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying buffers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	buffers := []trace.Buffer{}
	for row := 0; rows.Next(); row++ {
		var (
			id, op, device, address, size sql.NullInt64
			bufType                       sql.NullString
		)
		if err := rows.Scan(&id, &op, &device, &address, &size, &bufType); err != nil {
			ws.Add(trace.WarnMalformedRecord, "buffers", "row %d: %v", row, err)
			continue
		}
		bt, ok := trace.ParseBufferType(bufType.String)
		switch {
		case !address.Valid || address.Int64 < 0:
			ws.Add(trace.WarnMalformedRecord, "buffers", "row %d: missing or negative address", row)
			continue
		case size.Valid && size.Int64 < 0:
			ws.Add(trace.WarnMalformedRecord, "buffers", "row %d: negative size %d", row, size.Int64)
			continue
		case !ok:
			ws.Add(trace.WarnMalformedRecord, "buffers", "row %d: unknown buffer type %q", row, bufType.String)
			continue
		}
		b := trace.Buffer{
			ID:          int64(row),
			DeviceID:    device.Int64,
			Address:     uint64(address.Int64),
			Size:        unsigned(size),
			Type:        bt,
			OperationID: optInt(op),
			TensorIDs:   []int64{},
		}
		if id.Valid {
			b.ID = id.Int64
		}
		buffers = append(buffers, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying buffers: %w", err)
	}
	return buffers, nil
}
