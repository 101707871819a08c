// Package database provides the PostgreSQL-backed ingest store using pgx.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zetlen/csvstream/internal/core"
)

// Store implements core.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// schema is applied idempotently at startup.
const schema = `
CREATE TABLE IF NOT EXISTS ingests (
	id           UUID PRIMARY KEY,
	dataset_key  TEXT NOT NULL,
	file_name    TEXT,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	rows         INTEGER NOT NULL DEFAULT 0,
	lines        INTEGER NOT NULL DEFAULT 0,
	stored       INTEGER NOT NULL DEFAULT 0,
	invalid      INTEGER NOT NULL DEFAULT 0,
	bytes        BIGINT NOT NULL DEFAULT 0,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS ingests_started_at_idx ON ingests (started_at DESC);

CREATE TABLE IF NOT EXISTS ingest_rows (
	ingest_id  UUID NOT NULL REFERENCES ingests(id) ON DELETE CASCADE,
	line       INTEGER NOT NULL,
	row_values JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS ingest_rows_ingest_idx ON ingest_rows (ingest_id, line);

CREATE TABLE IF NOT EXISTS ingest_failed_rows (
	ingest_id UUID NOT NULL REFERENCES ingests(id) ON DELETE CASCADE,
	line      INTEGER NOT NULL,
	reasons   TEXT[] NOT NULL,
	fields    TEXT[] NOT NULL
);

CREATE INDEX IF NOT EXISTS ingest_failed_rows_ingest_idx ON ingest_failed_rows (ingest_id, line);
`

// EnsureSchema creates the ingest tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) CreateIngest(ctx context.Context, id uuid.UUID, datasetKey, fileName string, startedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingests (id, dataset_key, file_name, started_at) VALUES ($1, $2, $3, $4)`,
		toPgUUID(id), datasetKey, toPgText(fileName),
		pgtype.Timestamptz{Time: startedAt, Valid: true})
	if err != nil {
		return fmt.Errorf("create ingest: %w", err)
	}
	return nil
}

func (s *Store) AppendRows(ctx context.Context, id uuid.UUID, rows []core.StoredRow) error {
	if len(rows) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"ingest_rows"},
		[]string{"ingest_id", "line", "row_values"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			values, err := json.Marshal(rows[i].Values)
			if err != nil {
				return nil, fmt.Errorf("marshal row values: %w", err)
			}
			return []any{toPgUUID(id), rows[i].Line, values}, nil
		}))
	if err != nil {
		return fmt.Errorf("append rows: %w", err)
	}
	return nil
}

func (s *Store) AppendFailedRows(ctx context.Context, id uuid.UUID, rows []core.FailedRow) error {
	if len(rows) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"ingest_failed_rows"},
		[]string{"ingest_id", "line", "reasons", "fields"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{toPgUUID(id), rows[i].Line, rows[i].Reasons, rows[i].Fields}, nil
		}))
	if err != nil {
		return fmt.Errorf("append failed rows: %w", err)
	}
	return nil
}

func (s *Store) CompleteIngest(ctx context.Context, result core.IngestResult) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingests
		 SET completed_at = now(), rows = $2, lines = $3, stored = $4,
		     invalid = $5, bytes = $6, duration_ms = $7, error = $8
		 WHERE id = $1`,
		toPgUUID(result.ID), result.Rows, result.Lines, result.Stored,
		result.Invalid, result.Bytes, result.Duration.Milliseconds(),
		toPgText(result.Error))
	if err != nil {
		return fmt.Errorf("complete ingest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrIngestNotFound
	}
	return nil
}

func (s *Store) GetIngest(ctx context.Context, id uuid.UUID) (core.IngestResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, dataset_key, file_name, rows, lines, stored, invalid, bytes, duration_ms, error
		 FROM ingests WHERE id = $1`, toPgUUID(id))

	result, err := scanIngest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.IngestResult{}, core.ErrIngestNotFound
	}
	if err != nil {
		return core.IngestResult{}, fmt.Errorf("get ingest: %w", err)
	}
	return result, nil
}

func (s *Store) ListIngests(ctx context.Context, limit int) ([]core.IngestResult, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, dataset_key, file_name, rows, lines, stored, invalid, bytes, duration_ms, error
		 FROM ingests ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingests: %w", err)
	}
	defer rows.Close()

	var results []core.IngestResult
	for rows.Next() {
		result, err := scanIngest(rows)
		if err != nil {
			return nil, fmt.Errorf("list ingests: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ingests: %w", err)
	}
	return results, nil
}

func (s *Store) FailedRows(ctx context.Context, id uuid.UUID) ([]core.FailedRow, error) {
	// Distinguish "no failed rows" from "no such ingest".
	if _, err := s.GetIngest(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT line, reasons, fields FROM ingest_failed_rows
		 WHERE ingest_id = $1 ORDER BY line`, toPgUUID(id))
	if err != nil {
		return nil, fmt.Errorf("failed rows: %w", err)
	}
	defer rows.Close()

	var failed []core.FailedRow
	for rows.Next() {
		var fr core.FailedRow
		if err := rows.Scan(&fr.Line, &fr.Reasons, &fr.Fields); err != nil {
			return nil, fmt.Errorf("failed rows: %w", err)
		}
		failed = append(failed, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed rows: %w", err)
	}
	return failed, nil
}

func scanIngest(row pgx.Row) (core.IngestResult, error) {
	var (
		result     core.IngestResult
		id         pgtype.UUID
		fileName   pgtype.Text
		errText    pgtype.Text
		durationMs int64
	)
	err := row.Scan(&id, &result.DatasetKey, &fileName, &result.Rows, &result.Lines,
		&result.Stored, &result.Invalid, &result.Bytes, &durationMs, &errText)
	if err != nil {
		return core.IngestResult{}, err
	}

	result.ID = uuid.UUID(id.Bytes)
	result.FileName = fileName.String
	result.Error = errText.String
	result.Duration = time.Duration(durationMs) * time.Millisecond
	return result, nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
