package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink is a Sink backed by a pgx connection pool.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &SinkError{Op: "open", Err: fmt.Errorf("parse database url: %w", err)}
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &SinkError{Op: "open", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &SinkError{Op: "ping", Err: err}
	}
	s := &PostgresSink{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates every registered table that does not exist yet.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	for _, name := range TableNames {
		if _, err := s.pool.Exec(ctx, Tables[name].createSQL(postgresDialect)); err != nil {
			return &SinkError{Op: "create", Table: name, Err: err}
		}
	}
	return nil
}

func (s *PostgresSink) InsertBatch(ctx context.Context, table string, rows []Row, batchSize int) (int, error) {
	return s.write(ctx, "insert", table, rows, batchSize, nil)
}

func (s *PostgresSink) UpsertBatch(ctx context.Context, table string, rows []Row, conflictKeys []string) (int, error) {
	if len(conflictKeys) == 0 {
		return 0, &SinkError{Op: "upsert", Table: table, Err: fmt.Errorf("conflict keys required")}
	}
	return s.write(ctx, "upsert", table, rows, DefaultBatchSize, conflictKeys)
}

func (s *PostgresSink) write(ctx context.Context, op, table string, rows []Row, batchSize int, conflictKeys []string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	plan, err := planInsert(postgresDialect, table, rows, conflictKeys)
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

// writeChunk sends one pgx batch inside a transaction.
func (s *PostgresSink) writeChunk(ctx context.Context, plan *writePlan, rows []Row) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // No-op if already committed

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(plan.sql, plan.args(r)...)
	}
	results := tx.SendBatch(ctx, batch)
	written := 0
	for range rows {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, err
		}
		written += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return written, nil
}

func (s *PostgresSink) Query(ctx context.Context, query string, params ...interface{}) ([]Row, error) {
	rows, err := s.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, &SinkError{Op: "query", Err: err}
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, &SinkError{Op: "query", Err: fmt.Errorf("read row values: %w", err)}
		}
		r := make(Row, len(fields))
		for i, f := range fields {
			r[f.Name] = rowValue(values[i])
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &SinkError{Op: "query", Err: err}
	}
	return out, nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
