// Package docstore turns a path-addressed document backend into live,
// filtered, ordered streams with latency-compensated writes.
package docstore

import (
	"context"

	"github.com/rpggio/lanes/internal/live"
)

// Store is the document store contract the repositories are built on.
type Store interface {
	SubscribeCollection(ctx context.Context, q Query, onNext func([]Document), onError func(error)) (*live.Subscription, error)
	SubscribeDocument(ctx context.Context, collection, id string, onNext func(*Document), onError func(error)) (*live.Subscription, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Create(ctx context.Context, collection, id string, fields map[string]any) error
	Write(ctx context.Context, collection, id string, fields map[string]any, opts ...WriteOption) error
	UpdatePartial(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	NewID(collection string) string
}

type writeOptions struct {
	merge bool
}

// WriteOption adjusts Write.
type WriteOption func(*writeOptions)

// WithMerge sets whether Write merges into the existing document (the
// default) or replaces it.
func WithMerge(merge bool) WriteOption {
	return func(o *writeOptions) {
		o.merge = merge
	}
}
