// Package memory provides a go-cache backed definition repository.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/patrickmn/go-cache"
	model "github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/service/dao"
	"github.com/viant/fluxflow/service/dao/criteria"
	"github.com/viant/fluxflow/service/dao/definition"
)

// Repository keeps definitions in process memory
type Repository struct {
	cache *cache.Cache
	mux   sync.Mutex
}

var _ definition.Repository = (*Repository)(nil)

// Save publishes a definition; saving an equal definition again is a no-op.
func (r *Repository) Save(_ context.Context, d *model.Definition) error {
	if err := definition.Validate(d); err != nil {
		return err
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	streamID := d.StreamID()
	if existing, ok := r.cache.Get(streamID); ok {
		return definition.CheckConflict(existing.(*model.Definition), d)
	}
	r.cache.Set(streamID, d, cache.NoExpiration)
	return nil
}

// FindByStreamID returns a definition by stream id
func (r *Repository) FindByStreamID(_ context.Context, streamID string) (*model.Definition, error) {
	if streamID == "" {
		return nil, dao.ErrInvalidID
	}
	value, ok := r.cache.Get(streamID)
	if !ok {
		return nil, fmt.Errorf("%w: definition %s", dao.ErrNotFound, streamID)
	}
	return value.(*model.Definition), nil
}

// FindByMetaIDAndVersion returns a definition by meta id and version
func (r *Repository) FindByMetaIDAndVersion(ctx context.Context, metaID, version string) (*model.Definition, error) {
	if metaID == "" || version == "" {
		return nil, dao.ErrInvalidID
	}
	return r.FindByStreamID(ctx, model.StreamID(metaID, version))
}

// List returns definitions ordered by stream id
func (r *Repository) List(_ context.Context, parameters ...*dao.Parameter) ([]*model.Definition, error) {
	var result []*model.Definition
	for _, item := range r.cache.Items() {
		d := item.Object.(*model.Definition)
		if criteria.Match(definition.Attributes(d), parameters) {
			result = append(result, d)
		}
	}
	definition.Sort(result)
	return result, nil
}

// New creates a memory definition repository
func New() *Repository {
	return &Repository{cache: cache.New(cache.NoExpiration, 0)}
}
