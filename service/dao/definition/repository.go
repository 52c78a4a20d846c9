// Package definition defines the flow definition repository.
package definition

import (
	"context"
	"errors"
	"fmt"
	"sort"

	model "github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/service/dao"
)

// ErrConflict is returned when a different definition is saved under a published stream id
var ErrConflict = errors.New("definition: stream id already published")

// Repository stores compiled definitions. Returned definitions are shared and must not be modified.
type Repository interface {
	Save(ctx context.Context, d *model.Definition) error

	FindByStreamID(ctx context.Context, streamID string) (*model.Definition, error)

	FindByMetaIDAndVersion(ctx context.Context, metaID, version string) (*model.Definition, error)

	// List supports metaId, version, status, name and streamId parameters.
	List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Definition, error)
}

// Attributes returns list-filterable attributes
func Attributes(d *model.Definition) map[string]string {
	return map[string]string{
		"metaId":   d.MetaID,
		"version":  d.Version,
		"status":   string(d.Status),
		"name":     d.Name,
		"streamId": d.StreamID(),
	}
}

// Validate checks that d can be stored
func Validate(d *model.Definition) error {
	if d == nil {
		return dao.ErrNilEntity
	}
	if d.MetaID == "" || d.Version == "" {
		return fmt.Errorf("%w: definition requires metaId and version", dao.ErrInvalidID)
	}
	return nil
}

// CheckConflict returns ErrConflict when existing differs from candidate
func CheckConflict(existing, candidate *model.Definition) error {
	if existing == nil || existing.Equal(candidate) {
		return nil
	}
	existingCopy, candidateCopy := *existing, *candidate
	existingCopy.Source, candidateCopy.Source = nil, nil
	if existingCopy.Equal(&candidateCopy) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConflict, candidate.StreamID())
}

// Sort orders definitions by stream id
func Sort(definitions []*model.Definition) {
	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].StreamID() < definitions[j].StreamID()
	})
}
