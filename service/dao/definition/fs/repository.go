// Package fs provides a definition repository over graph documents stored with afs.
// Documents are compiled on load and kept in a go-cache with a configurable TTL.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/fluxflow/internal/logger"
	model "github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/service/compiler"
	"github.com/viant/fluxflow/service/dao"
	"github.com/viant/fluxflow/service/dao/criteria"
	"github.com/viant/fluxflow/service/dao/definition"
	"go.uber.org/zap"
)

var extensions = []string{".json", ".yaml", ".yml"}

// Repository implements definition.Repository on a file system location
type Repository struct {
	baseURL string
	fs      afs.Service
	cache   *cache.Cache
	mux     sync.Mutex
}

var _ definition.Repository = (*Repository)(nil)

// Option customises a Repository
type Option func(r *Repository)

// WithTTL sets how long a compiled document stays cached
func WithTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		r.cache = cache.New(ttl, 2*ttl)
	}
}

// WithFS sets the storage service
func WithFS(fs afs.Service) Option {
	return func(r *Repository) {
		r.fs = fs
	}
}

// Save writes the source document of d as <streamId>.json
func (r *Repository) Save(ctx context.Context, d *model.Definition) error {
	if err := definition.Validate(d); err != nil {
		return err
	}
	if len(d.Source) == 0 {
		return fmt.Errorf("definition %s has no source document", d.StreamID())
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	existing, err := r.load(ctx, d.StreamID())
	if err != nil && !errors.Is(err, dao.ErrNotFound) {
		return err
	}
	if existing != nil {
		return definition.CheckConflict(existing, d)
	}
	URL := r.documentURL(d.StreamID(), ".json")
	if err = r.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(d.Source)); err != nil {
		return fmt.Errorf("failed to save definition %s: %w", URL, err)
	}
	r.cache.SetDefault(d.StreamID(), d)
	return nil
}

// FindByStreamID returns a definition by stream id
func (r *Repository) FindByStreamID(ctx context.Context, streamID string) (*model.Definition, error) {
	if streamID == "" {
		return nil, dao.ErrInvalidID
	}
	return r.load(ctx, streamID)
}

// FindByMetaIDAndVersion returns a definition by meta id and version
func (r *Repository) FindByMetaIDAndVersion(ctx context.Context, metaID, version string) (*model.Definition, error) {
	if metaID == "" || version == "" {
		return nil, dao.ErrInvalidID
	}
	return r.load(ctx, model.StreamID(metaID, version))
}

// List compiles every document under the base location; invalid documents are logged and skipped.
func (r *Repository) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Definition, error) {
	objects, err := r.fs.List(ctx, r.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	var result []*model.Definition
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		ext := path.Ext(object.Name())
		if !supported(ext) {
			continue
		}
		streamID := strings.TrimSuffix(object.Name(), ext)
		d, err := r.load(ctx, streamID)
		if err != nil {
			logger.Warn("skipping definition document", zap.String("url", object.URL()), zap.Error(err))
			continue
		}
		if criteria.Match(definition.Attributes(d), parameters) {
			result = append(result, d)
		}
	}
	definition.Sort(result)
	return result, nil
}

func (r *Repository) load(ctx context.Context, streamID string) (*model.Definition, error) {
	if cached, ok := r.cache.Get(streamID); ok {
		return cached.(*model.Definition), nil
	}
	for _, ext := range extensions {
		URL := r.documentURL(streamID, ext)
		exists, err := r.fs.Exists(ctx, URL)
		if err != nil {
			return nil, fmt.Errorf("failed to check definition %s: %w", URL, err)
		}
		if !exists {
			continue
		}
		data, err := r.fs.DownloadWithURL(ctx, URL)
		if err != nil {
			return nil, fmt.Errorf("failed to read definition %s: %w", URL, err)
		}
		var d *model.Definition
		if ext == ".json" {
			d, err = compiler.Compile(data)
		} else {
			d, err = compiler.CompileYAML(data)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", URL, err)
		}
		if d.StreamID() != streamID {
			return nil, fmt.Errorf("document %s declares stream %s", URL, d.StreamID())
		}
		r.cache.SetDefault(streamID, d)
		return d, nil
	}
	return nil, fmt.Errorf("%w: definition %s", dao.ErrNotFound, streamID)
}

func (r *Repository) documentURL(streamID, ext string) string {
	return url.Join(r.baseURL, streamID+ext)
}

func supported(ext string) bool {
	for _, candidate := range extensions {
		if candidate == ext {
			return true
		}
	}
	return false
}

// New creates a file system definition repository rooted at baseURL
func New(baseURL string, opts ...Option) (*Repository, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	ret := &Repository{baseURL: url.Normalize(baseURL, file.Scheme)}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	if ret.cache == nil {
		ret.cache = cache.New(5*time.Minute, 10*time.Minute)
	}
	ctx := context.Background()
	if exists, _ := ret.fs.Exists(ctx, ret.baseURL); !exists {
		if err := ret.fs.Create(ctx, ret.baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create definition location: %w", err)
		}
	}
	return ret, nil
}
