package correlation

import "context"

// DAO abstracts persistence of correlation groups so join state can outlive a process.
type DAO interface {
	Save(ctx context.Context, g *Group) error
	Load(ctx context.Context, id string) (*Group, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Group, error)
}
