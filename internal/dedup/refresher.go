package dedup

import "context"

const refreshKey = "credential-refresh"

// Refresher guarantees at most one credential refresh is outstanding. Every
// caller that needs a fresh credential while a refresh runs awaits that same
// refresh.
type Refresher[T any] struct {
	group   Group
	refresh func(ctx context.Context) (T, error)
}

// NewRefresher wraps the refresh function.
func NewRefresher[T any](refresh func(ctx context.Context) (T, error)) *Refresher[T] {
	return &Refresher[T]{refresh: refresh}
}

// Refresh joins the outstanding refresh or starts a new one.
func (r *Refresher[T]) Refresh(ctx context.Context) (T, error) {
	v, _, err := Do(ctx, &r.group, refreshKey, r.refresh)
	return v, err
}
