// Package redis provides a context row repository on Redis.
//
// Key layout:
//
//	<prefix>ctx:<id>                        => JSON encoded row
//	<prefix>idx:all                         => SET of all row ids
//	<prefix>idx:trace:<traceId>             => SET of row ids of one instance
//	<prefix>idx:pos:<streamId>:<position>   => SET of row ids ever positioned at a node
//
// Index entries are never removed; List re-checks every row against the query.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viant/fluxflow/model/flow"
	"github.com/viant/fluxflow/service/dao/flowctx"
)

const maxWatchRetries = 16

// Repository implements flowctx.Repository with optimistic WATCH/MULTI transactions
type Repository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ flowctx.Repository = (*Repository)(nil)

// New creates a repository; prefix defaults to "fluxflow:"
func New(client redis.UniversalClient, prefix string) *Repository {
	if prefix == "" {
		prefix = "fluxflow:"
	}
	return &Repository{client: client, prefix: prefix, now: time.Now}
}

func (r *Repository) keyContext(id string) string {
	return r.prefix + "ctx:" + id
}

func (r *Repository) keyAll() string {
	return r.prefix + "idx:all"
}

func (r *Repository) keyTrace(traceID string) string {
	return r.prefix + "idx:trace:" + traceID
}

func (r *Repository) keyPosition(streamID, position string) string {
	return r.prefix + "idx:pos:" + streamID + ":" + position
}

func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]*flow.Context, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.keyContext(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load contexts: %w", err)
	}
	result := make([]*flow.Context, 0, len(ids))
	for _, value := range values {
		encoded, ok := value.(string)
		if !ok {
			continue
		}
		row, err := decode([]byte(encoded))
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, nil
}

func (r *Repository) Save(ctx context.Context, rows ...*flow.Context) error {
	for _, row := range rows {
		if err := flowctx.Validate(row); err != nil {
			return err
		}
	}
	now := r.now()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, row := range rows {
			flowctx.Touch(row, now)
			if err := r.stage(ctx, pipe, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save contexts: %w", err)
	}
	return nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status flow.Status) (*flow.Context, error) {
	var updated *flow.Context
	err := r.watch(ctx, id, func(tx *redis.Tx, stored *flow.Context) error {
		if err := flow.Transit(stored.Status, status); err != nil {
			return fmt.Errorf("row %s: %w", id, err)
		}
		stored.Status = status
		stored.UpdatedAt = r.now()
		updated = stored
		return r.commit(ctx, tx, stored)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Repository) CompareAndSave(ctx context.Context, expected flow.Status, row *flow.Context) error {
	if err := flowctx.Validate(row); err != nil {
		return err
	}
	return r.watch(ctx, row.ID, func(tx *redis.Tx, stored *flow.Context) error {
		if err := flowctx.CheckCompare(stored.Status, expected, row.Status, row.ID); err != nil {
			return err
		}
		flowctx.Touch(row, r.now())
		return r.commit(ctx, tx, row)
	})
}

func (r *Repository) List(ctx context.Context, query *flowctx.Query) ([]*flow.Context, error) {
	index := r.keyAll()
	if query != nil {
		switch {
		case query.TraceID != "":
			index = r.keyTrace(query.TraceID)
		case query.StreamID != "" && query.Position != "":
			index = r.keyPosition(query.StreamID, query.Position)
		}
	}
	ids, err := r.client.SMembers(ctx, index).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list contexts: %w", err)
	}
	rows, err := r.GetByIDs(ctx, ids)
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

func (r *Repository) watch(ctx context.Context, id string, fn func(tx *redis.Tx, stored *flow.Context) error) error {
	key := r.keyContext(id)
	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return flowctx.NotFound(id)
			}
			if err != nil {
				return err
			}
			stored, err := decode(data)
			if err != nil {
				return err
			}
			return fn(tx, stored)
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: row %s kept changing", flowctx.ErrStatusMismatch, id)
}

func (r *Repository) commit(ctx context.Context, tx *redis.Tx, row *flow.Context) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return r.stage(ctx, pipe, row)
	})
	return err
}

func (r *Repository) stage(ctx context.Context, pipe redis.Pipeliner, row *flow.Context) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode context %s: %w", row.ID, err)
	}
	pipe.Set(ctx, r.keyContext(row.ID), data, 0)
	pipe.SAdd(ctx, r.keyAll(), row.ID)
	pipe.SAdd(ctx, r.keyTrace(row.TraceID), row.ID)
	pipe.SAdd(ctx, r.keyPosition(row.StreamID, row.Position), row.ID)
	return nil
}

func decode(data []byte) (*flow.Context, error) {
	row := &flow.Context{}
	if err := json.Unmarshal(data, row); err != nil {
		return nil, fmt.Errorf("failed to decode context: %w", err)
	}
	return row, nil
}
