package deployment

import "context"

type Repository interface {
	Create(ctx context.Context, event *Event) error
	// FindAll returns the newest events first; limit <= 0 returns all of them.
	FindAll(ctx context.Context, limit int) ([]Event, error)
	FindByTag(ctx context.Context, tag string) ([]Event, error)
}
