package mocks

import (
	"context"

	"github.com/rpggio/lanes/internal/docstore"
	"github.com/rpggio/lanes/internal/live"
	"github.com/stretchr/testify/mock"
)

// Store is a mock for docstore.Store.
type Store struct {
	mock.Mock
}

func (m *Store) SubscribeCollection(ctx context.Context, q docstore.Query, onNext func([]docstore.Document), onError func(error)) (*live.Subscription, error) {
	args := m.Called(ctx, q, onNext, onError)
	if sub, ok := args.Get(0).(*live.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) SubscribeDocument(ctx context.Context, collection, id string, onNext func(*docstore.Document), onError func(error)) (*live.Subscription, error) {
	args := m.Called(ctx, collection, id, onNext, onError)
	if sub, ok := args.Get(0).(*live.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	args := m.Called(ctx, q)
	if docs, ok := args.Get(0).([]docstore.Document); ok {
		return docs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	args := m.Called(ctx, collection, id)
	if doc, ok := args.Get(0).(*docstore.Document); ok {
		return doc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) Create(ctx context.Context, collection, id string, fields map[string]any) error {
	args := m.Called(ctx, collection, id, fields)
	return args.Error(0)
}

func (m *Store) Write(ctx context.Context, collection, id string, fields map[string]any, opts ...docstore.WriteOption) error {
	args := m.Called(ctx, collection, id, fields)
	return args.Error(0)
}

func (m *Store) UpdatePartial(ctx context.Context, collection, id string, fields map[string]any) error {
	args := m.Called(ctx, collection, id, fields)
	return args.Error(0)
}

func (m *Store) Delete(ctx context.Context, collection, id string) error {
	args := m.Called(ctx, collection, id)
	return args.Error(0)
}

func (m *Store) NewID(collection string) string {
	args := m.Called(collection)
	return args.String(0)
}

var _ docstore.Store = (*Store)(nil)
