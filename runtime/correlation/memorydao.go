package correlation

import (
	"context"
	"sync"
)

// MemoryDAO stores correlation groups in memory; Load returns nil for unknown ids.
type MemoryDAO struct {
	mu     sync.RWMutex
	groups map[string]*Group
}

func NewMemoryDAO() *MemoryDAO {
	return &MemoryDAO{groups: make(map[string]*Group)}
}

func (d *MemoryDAO) Save(_ context.Context, g *Group) error {
	if g == nil {
		return nil
	}
	d.mu.Lock()
	d.groups[g.ID] = g.Clone()
	d.mu.Unlock()
	return nil
}

func (d *MemoryDAO) Load(_ context.Context, id string) (*Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[id]
	if !ok {
		return nil, nil
	}
	return g.Clone(), nil
}

func (d *MemoryDAO) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	delete(d.groups, id)
	d.mu.Unlock()
	return nil
}

func (d *MemoryDAO) List(_ context.Context) ([]*Group, error) {
	d.mu.RLock()
	out := make([]*Group, 0, len(d.groups))
	for _, g := range d.groups {
		out = append(out, g.Clone())
	}
	d.mu.RUnlock()
	return out, nil
}
