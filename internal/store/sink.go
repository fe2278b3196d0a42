// Package store persists pipeline records into relational and analytical
// sinks and keeps the run history.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"ecommerce-analytics-pipeline/internal/config"
)

// DefaultBatchSize is used when a caller passes a non-positive batch size.
const DefaultBatchSize = 1000

// Row is one record keyed by column name.
type Row = map[string]interface{}

// Sink accepts batches of rows for the registered tables.
type Sink interface {
	// InsertBatch writes rows in chunks of batchSize, ignoring rows whose
	// primary key already exists. It returns the number of rows written.
	InsertBatch(ctx context.Context, table string, rows []Row, batchSize int) (int, error)
	// UpsertBatch writes rows, replacing non-key columns of rows that
	// conflict on conflictKeys.
	UpsertBatch(ctx context.Context, table string, rows []Row, conflictKeys []string) (int, error)
	// Query runs a read statement in the sink's native placeholder style.
	Query(ctx context.Context, query string, params ...interface{}) ([]Row, error)
	Close() error
}

// ErrSink is matched by every SinkError.
var ErrSink = errors.New("sink error")

// SinkError wraps a failed sink operation.
type SinkError struct {
	Op    string
	Table string
	Err   error
}

func (e *SinkError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("sink %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sink %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Is matches ErrSink.
func (e *SinkError) Is(target error) bool { return target == ErrSink }

// Open connects to the sink described by cfg and creates any missing tables.
func Open(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := OpenPostgres(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, &SinkError{Op: "open", Err: fmt.Errorf("unknown driver %q", cfg.Driver)}
	}
}

// CountRows returns the number of rows in table.
func CountRows(ctx context.Context, s Sink, table string) (int64, error) {
	if _, err := lookupTable(table); err != nil {
		return 0, &SinkError{Op: "count", Table: table, Err: err}
	}
	rows, err := s.Query(ctx, "SELECT COUNT(*) AS n FROM "+quoteIdentifier(table))
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, &SinkError{Op: "count", Table: table, Err: fmt.Errorf("got %d rows", len(rows))}
	}
	switch n := rows[0]["n"].(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, &SinkError{Op: "count", Table: table, Err: fmt.Errorf("unexpected count type %T", n)}
	}
}

// dialect captures the SQL differences between drivers.
type dialect struct {
	name        string
	types       map[ColumnType]string
	placeholder func(n int) string
}

var sqliteDialect = dialect{
	name: config.DriverSQLite,
	types: map[ColumnType]string{
		TypeText:      "TEXT",
		TypeReal:      "REAL",
		TypeInteger:   "INTEGER",
		TypeBool:      "BOOLEAN",
		TypeJSON:      "TEXT",
		TypeTimestamp: "DATETIME",
	},
	placeholder: func(int) string { return "?" },
}

var postgresDialect = dialect{
	name: config.DriverPostgres,
	types: map[ColumnType]string{
		TypeText:      "TEXT",
		TypeReal:      "DOUBLE PRECISION",
		TypeInteger:   "BIGINT",
		TypeBool:      "BOOLEAN",
		TypeJSON:      "JSONB",
		TypeTimestamp: "TIMESTAMPTZ",
	},
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

// writePlan is a prepared single-row INSERT for one table and column set.
type writePlan struct {
	table   Table
	columns []string
	sql     string
}

// planInsert builds a single-row insert for the columns present in rows.
// With no conflict keys the primary key is used and conflicts are ignored;
// with conflict keys the remaining columns are overwritten.
func planInsert(d dialect, table string, rows []Row, conflictKeys []string) (*writePlan, error) {
	t, err := lookupTable(table)
	if err != nil {
		return nil, err
	}
	present := map[string]bool{}
	for _, r := range rows {
		for k := range r {
			present[k] = true
		}
	}
	var cols []string
	for _, c := range t.Columns {
		if present[c.Name] {
			cols = append(cols, c.Name)
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no known columns for table %s", table)
	}

	upsert := len(conflictKeys) > 0
	keys := conflictKeys
	if !upsert {
		keys = t.PrimaryKey
	}
	isKey := map[string]bool{}
	for _, k := range keys {
		if !t.hasColumn(k) {
			return nil, fmt.Errorf("unknown conflict column %q for table %s", k, table)
		}
		isKey[k] = true
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = d.placeholder(i + 1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		quoteIdentifier(t.Name), quoteList(cols), strings.Join(placeholders, ", "), quoteList(keys))

	var sets []string
	if upsert {
		for _, c := range cols {
			if !isKey[c] {
				sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdentifier(c), quoteIdentifier(c)))
			}
		}
	}
	if len(sets) == 0 {
		b.WriteString("DO NOTHING")
	} else {
		b.WriteString("DO UPDATE SET " + strings.Join(sets, ", "))
	}
	return &writePlan{table: t, columns: cols, sql: b.String()}, nil
}

// args returns the row's values in plan column order.
func (p *writePlan) args(r Row) []interface{} {
	out := make([]interface{}, len(p.columns))
	for i, c := range p.columns {
		out[i] = normalizeValue(r[c])
	}
	return out
}

// normalizeValue dereferences pointers and JSON-encodes maps and slices.
func normalizeValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case string, bool, int, int32, int64, float32, float64, time.Time, []byte:
		return val
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalizeValue(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return v
	}
}

func chunk(rows []Row, size int) [][]Row {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]Row
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// rowValue converts driver output into plain Go values.
func rowValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
