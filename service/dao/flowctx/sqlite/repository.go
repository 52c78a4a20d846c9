// Package sqlite provides a context row repository on database/sql with the modernc SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/dao/flowctx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS flow_context (
	id TEXT PRIMARY KEY,
	stream_id TEXT NOT NULL,
	trace_id TEXT NOT NULL,
	position TEXT NOT NULL,
	batch_id TEXT,
	task_id TEXT,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS flow_context_position ON flow_context(stream_id, position, status);
CREATE INDEX IF NOT EXISTS flow_context_trace ON flow_context(trace_id);`

const upsert = `
INSERT INTO flow_context (id, stream_id, trace_id, position, batch_id, task_id, status, created_at, updated_at, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	stream_id = excluded.stream_id,
	trace_id = excluded.trace_id,
	position = excluded.position,
	batch_id = excluded.batch_id,
	task_id = excluded.task_id,
	status = excluded.status,
	updated_at = excluded.updated_at,
	payload = excluded.payload`

const update = `
UPDATE flow_context
SET stream_id = ?, trace_id = ?, position = ?, batch_id = ?, task_id = ?, status = ?, updated_at = ?, payload = ?
WHERE id = ? AND status = ?`

// Repository implements flowctx.Repository on SQLite
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ flowctx.Repository = (*Repository)(nil)

// Open opens a SQLite database; a single connection serializes writers and keeps ":memory:" databases shared.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %v: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// New initializes the schema and returns a repository
func New(db *sql.DB) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize flow_context schema: %w", err)
	}
	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]*flow.Context, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.query(ctx, "SELECT payload FROM flow_context WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*flow.Context, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	result := make([]*flow.Context, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			result = append(result, row)
		}
	}
	return result, nil
}

func (r *Repository) Save(ctx context.Context, rows ...*flow.Context) error {
	for _, row := range rows {
		if err := flowctx.Validate(row); err != nil {
			return err
		}
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := r.now()
	for _, row := range rows {
		flowctx.Touch(row, now)
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode context %s: %w", row.ID, err)
		}
		if _, err = tx.ExecContext(ctx, upsert, row.ID, row.StreamID, row.TraceID, row.Position, row.BatchID, row.TaskID,
			string(row.Status), row.CreatedAt.UnixNano(), row.UpdatedAt.UnixNano(), payload); err != nil {
			return fmt.Errorf("failed to save context %s: %w", row.ID, err)
		}
	}
	return tx.Commit()
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status flow.Status) (*flow.Context, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	row, err := load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err = flow.Transit(row.Status, status); err != nil {
		return nil, fmt.Errorf("row %s: %w", id, err)
	}
	previous := row.Status
	row.Status = status
	row.UpdatedAt = r.now()
	if err = r.write(ctx, tx, previous, row); err != nil {
		return nil, err
	}
	return row, tx.Commit()
}

func (r *Repository) CompareAndSave(ctx context.Context, expected flow.Status, row *flow.Context) error {
	if err := flowctx.Validate(row); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stored, err := load(ctx, tx, row.ID)
	if err != nil {
		return err
	}
	if err = flowctx.CheckCompare(stored.Status, expected, row.Status, row.ID); err != nil {
		return err
	}
	flowctx.Touch(row, r.now())
	if err = r.write(ctx, tx, expected, row); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) List(ctx context.Context, query *flowctx.Query) ([]*flow.Context, error) {
	var conditions []string
	var args []interface{}
	if query != nil {
		for _, column := range []struct {
			name  string
			value string
		}{
			{"stream_id", query.StreamID},
			{"trace_id", query.TraceID},
			{"position", query.Position},
			{"batch_id", query.BatchID},
			{"task_id", query.TaskID},
		} {
			if column.value != "" {
				conditions = append(conditions, column.name+" = ?")
				args = append(args, column.value)
			}
		}
		if len(query.Statuses) > 0 {
			conditions = append(conditions, "status IN ("+placeholders(len(query.Statuses))+")")
			for _, status := range query.Statuses {
				args = append(args, string(status))
			}
		}
	}
	SQL := "SELECT payload FROM flow_context"
	if len(conditions) > 0 {
		SQL += " WHERE " + strings.Join(conditions, " AND ")
	}
	rows, err := r.query(ctx, SQL+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, err
	}
	var result []*flow.Context
	for _, row := range rows {
		if query.Match(row) {
			result = append(result, row)
		}
	}
	return query.Finalize(result), nil
}

func (r *Repository) write(ctx context.Context, tx *sql.Tx, expected flow.Status, row *flow.Context) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode context %s: %w", row.ID, err)
	}
	result, err := tx.ExecContext(ctx, update, row.StreamID, row.TraceID, row.Position, row.BatchID, row.TaskID,
		string(row.Status), row.UpdatedAt.UnixNano(), payload, row.ID, string(expected))
	if err != nil {
		return fmt.Errorf("failed to update context %s: %w", row.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: row %s changed concurrently", flowctx.ErrStatusMismatch, row.ID)
	}
	return nil
}

func (r *Repository) query(ctx context.Context, SQL string, args ...interface{}) ([]*flow.Context, error) {
	rows, err := r.db.QueryContext(ctx, SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts: %w", err)
	}
	defer rows.Close()
	var result []*flow.Context
	for rows.Next() {
		var payload []byte
		if err = rows.Scan(&payload); err != nil {
			return nil, err
		}
		row, err := decode(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func load(ctx context.Context, tx *sql.Tx, id string) (*flow.Context, error) {
	var payload []byte
	err := tx.QueryRowContext(ctx, "SELECT payload FROM flow_context WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, flowctx.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load context %s: %w", id, err)
	}
	return decode(payload)
}

func decode(payload []byte) (*flow.Context, error) {
	row := &flow.Context{}
	if err := json.Unmarshal(payload, row); err != nil {
		return nil, fmt.Errorf("failed to decode context: %w", err)
	}
	return row, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
