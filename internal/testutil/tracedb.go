package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Schema selects the buffers table layout a TraceDB is created with.
type Schema int

const (
	// SchemaCurrent has max_size_per_bank and no buffer_id column.
	SchemaCurrent Schema = iota
	// SchemaLegacy has buffer_id and max_size columns.
	SchemaLegacy
)

var commonDDL = []string{
	`CREATE TABLE devices (
		device_id INTEGER, num_y_cores INTEGER, num_x_cores INTEGER,
		num_y_compute_cores INTEGER, num_x_compute_cores INTEGER,
		worker_l1_size INTEGER, l1_num_banks INTEGER, l1_bank_size INTEGER,
		address_at_first_l1_bank INTEGER, address_at_first_l1_cb_buffer INTEGER,
		num_banks_per_storage_core INTEGER, num_compute_cores INTEGER,
		num_storage_cores INTEGER, total_l1_memory INTEGER,
		total_l1_for_tensors INTEGER, cb_limit INTEGER)`,
	`CREATE TABLE operations (operation_id INTEGER, name TEXT, duration REAL)`,
	`CREATE TABLE operation_arguments (operation_id INTEGER, name TEXT, value TEXT)`,
	`CREATE TABLE tensors (tensor_id INTEGER, shape TEXT, dtype TEXT, layout TEXT,
		memory_config TEXT, device_id INTEGER, address INTEGER, buffer_type INTEGER)`,
	`CREATE TABLE input_tensors (operation_id INTEGER, input_index INTEGER, tensor_id INTEGER)`,
	`CREATE TABLE output_tensors (operation_id INTEGER, output_index INTEGER, tensor_id INTEGER)`,
	`CREATE TABLE stack_traces (stack_trace_id INTEGER, stack_trace TEXT)`,
}

// TraceDB is a throwaway profiler database under t.TempDir().
type TraceDB struct {
	t    *testing.T
	DB   *sql.DB
	Path string
}

// NewTraceDB creates an empty trace database with the given buffers schema.
func NewTraceDB(t *testing.T, schema Schema) *TraceDB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening fixture database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ddl := append([]string(nil), commonDDL...)
	switch schema {
	case SchemaLegacy:
		ddl = append(ddl, `CREATE TABLE buffers (buffer_id INTEGER, operation_id INTEGER,
			device_id INTEGER, address INTEGER, max_size INTEGER, buffer_type INTEGER)`)
	default:
		ddl = append(ddl, `CREATE TABLE buffers (operation_id INTEGER, device_id INTEGER,
			address INTEGER, max_size_per_bank INTEGER, buffer_type INTEGER)`)
	}
	f := &TraceDB{t: t, DB: db, Path: path}
	for _, stmt := range ddl {
		f.Exec(stmt)
	}
	return f
}

// Exec runs a statement and fails the test on error.
func (f *TraceDB) Exec(query string, args ...any) {
	f.t.Helper()
	if _, err := f.DB.Exec(query, args...); err != nil {
		f.t.Fatalf("fixture statement %q: %v", query, err)
	}
}

// AddDevice inserts a device with an 8x8 compute grid.
func (f *TraceDB) AddDevice(id int64, l1ForTensors uint64) {
	f.t.Helper()
	f.Exec(`INSERT INTO devices VALUES (?, 10, 12, 8, 8, 1499136, 64, 1499136, 0, 0, 1, 64, 0, 1499136, ?, 0)`,
		id, int64(l1ForTensors))
}

// AddOperation inserts an operation row.
func (f *TraceDB) AddOperation(id int64, name string, durationNs float64) {
	f.t.Helper()
	f.Exec(`INSERT INTO operations VALUES (?, ?, ?)`, id, name, durationNs)
}

// AddTensor inserts a tensor resident on a device at address.
func (f *TraceDB) AddTensor(id int64, shape, dtype, layout, memoryConfig string, deviceID int64, address uint64, bufferType int) {
	f.t.Helper()
	f.Exec(`INSERT INTO tensors VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, shape, dtype, layout, memoryConfig, deviceID, int64(address), bufferType)
}

// AddInput records tensorID as the next input of opID.
func (f *TraceDB) AddInput(opID, tensorID int64) {
	f.t.Helper()
	f.Exec(`INSERT INTO input_tensors VALUES (?, (SELECT COUNT(*) FROM input_tensors WHERE operation_id = ?), ?)`,
		opID, opID, tensorID)
}

// AddOutput records tensorID as the next output of opID.
func (f *TraceDB) AddOutput(opID, tensorID int64) {
	f.t.Helper()
	f.Exec(`INSERT INTO output_tensors VALUES (?, (SELECT COUNT(*) FROM output_tensors WHERE operation_id = ?), ?)`,
		opID, opID, tensorID)
}

// AddBuffer inserts a buffer into the current-schema buffers table.
func (f *TraceDB) AddBuffer(opID, deviceID int64, address, size uint64, bufferType int) {
	f.t.Helper()
	f.Exec(`INSERT INTO buffers VALUES (?, ?, ?, ?, ?)`, opID, deviceID, int64(address), int64(size), bufferType)
}

// AddLegacyBuffer inserts a buffer into the legacy-schema buffers table.
func (f *TraceDB) AddLegacyBuffer(id, opID, deviceID int64, address, size uint64, bufferType int) {
	f.t.Helper()
	f.Exec(`INSERT INTO buffers VALUES (?, ?, ?, ?, ?, ?)`, id, opID, deviceID, int64(address), int64(size), bufferType)
}
