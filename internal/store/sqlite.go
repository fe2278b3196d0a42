package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink is a Sink backed by a SQLite database file.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &SinkError{Op: "open", Err: err}
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	s := &SQLiteSink{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates every registered table that does not exist yet.
func (s *SQLiteSink) EnsureSchema(ctx context.Context) error {
	for _, name := range TableNames {
		if _, err := s.db.ExecContext(ctx, Tables[name].createSQL(sqliteDialect)); err != nil {
			return &SinkError{Op: "create", Table: name, Err: err}
		}
	}
	return nil
}

func (s *SQLiteSink) InsertBatch(ctx context.Context, table string, rows []Row, batchSize int) (int, error) {
	return s.write(ctx, "insert", table, rows, batchSize, nil)
}

func (s *SQLiteSink) UpsertBatch(ctx context.Context, table string, rows []Row, conflictKeys []string) (int, error) {
	if len(conflictKeys) == 0 {
		return 0, &SinkError{Op: "upsert", Table: table, Err: fmt.Errorf("conflict keys required")}
	}
	return s.write(ctx, "upsert", table, rows, DefaultBatchSize, conflictKeys)
}

// write runs one transaction per chunk. A failing chunk is rolled back and
// ends the batch; earlier chunks stay committed.
func (s *SQLiteSink) write(ctx context.Context, op, table string, rows []Row, batchSize int, conflictKeys []string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	plan, err := planInsert(sqliteDialect, table, rows, conflictKeys)
	if err != nil {
		return 0, &SinkError{Op: op, Table: table, Err: err}
	}

	written := 0
	for _, part := range chunk(rows, batchSize) {
		n, err := s.writeChunk(ctx, plan, part)
		if err != nil {
			return written, &SinkError{Op: op, Table: table, Err: err}
		}
		written += n
	}
	return written, nil
}

func (s *SQLiteSink) writeChunk(ctx context.Context, plan *writePlan, rows []Row) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, plan.sql)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	written := 0
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, plan.args(r)...)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

func (s *SQLiteSink) Query(ctx context.Context, query string, params ...interface{}) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, &SinkError{Op: "query", Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &SinkError{Op: "query", Err: err}
	}
	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &SinkError{Op: "query", Err: err}
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			r[c] = rowValue(values[i])
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &SinkError{Op: "query", Err: err}
	}
	return out, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
