package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/lanes/internal/docstore"
	"github.com/rpggio/lanes/internal/live"
	"github.com/stretchr/testify/require"
)

func TestDocumentBackend_CommitAndList(t *testing.T) {
	ctx := context.Background()
	backend := NewDocumentBackend(NewTestDB(t))
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 123, time.UTC)
	backend.now = func() time.Time { return fixed }

	var changes []docstore.Change
	cancel := backend.Watch(func(c docstore.Change) { changes = append(changes, c) })
	defer cancel()

	change, err := backend.Commit(ctx, docstore.Mutation{
		Kind:       docstore.MutationSet,
		Collection: "projects/p1/todos",
		ID:         "t1",
		Fields: map[string]any{
			"title":    "Write tests",
			"position": 2,
			"weight":   0.5,
			"tags":     []any{"a", "b"},
			"due":      fixed,
			"created":  docstore.ServerTimestamp(),
			"meta":     map[string]any{"owner": "u1"},
		},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, change.Version)
	require.NotNil(t, change.Document)

	docs, err := backend.List(ctx, "projects/p1/todos")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	require.Equal(t, "t1", doc.ID)
	require.Equal(t, "projects/p1/todos", doc.Collection)
	require.EqualValues(t, 1, doc.Version)
	require.Equal(t, "Write tests", doc.Fields["title"])
	require.Equal(t, int64(2), doc.Fields["position"])
	require.Equal(t, 0.5, doc.Fields["weight"])
	require.Equal(t, []any{"a", "b"}, doc.Fields["tags"])
	require.True(t, fixed.Equal(doc.Fields["due"].(time.Time)))
	require.True(t, fixed.Equal(doc.Fields["created"].(time.Time)))
	require.Equal(t, map[string]any{"owner": "u1"}, doc.Fields["meta"])
	require.True(t, fixed.Equal(doc.CreateTime))

	require.Len(t, changes, 1)
}

func TestDocumentBackend_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	backend := NewDocumentBackend(NewTestDB(t))

	_, err := backend.Commit(ctx, docstore.Mutation{
		Kind:       docstore.MutationUpdate,
		Collection: "projects",
		ID:         "missing",
		Fields:     map[string]any{"name": "x"},
	})
	require.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = backend.Commit(ctx, docstore.Mutation{
		Kind:       docstore.MutationSet,
		Collection: "projects",
		ID:         "p1",
		Fields:     map[string]any{"name": "A", "owner": "u1"},
	})
	require.NoError(t, err)

	change, err := backend.Commit(ctx, docstore.Mutation{
		Kind:       docstore.MutationUpdate,
		Collection: "projects",
		ID:         "p1",
		Fields:     map[string]any{"name": "B"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, change.Version)
	require.Equal(t, map[string]any{"name": "B", "owner": "u1"}, change.Document.Fields)

	change, err = backend.Commit(ctx, docstore.Mutation{
		Kind:       docstore.MutationDelete,
		Collection: "projects",
		ID:         "p1",
	})
	require.NoError(t, err)
	require.Nil(t, change.Document)

	docs, err := backend.List(ctx, "projects")
	require.NoError(t, err)
	require.Empty(t, docs)

	_, err = backend.Commit(ctx, docstore.Mutation{Kind: docstore.MutationDelete, Collection: "projects", ID: "p1"})
	require.NoError(t, err)
}

func TestDocumentBackend_GetAndCreate(t *testing.T) {
	ctx := context.Background()
	backend := NewDocumentBackend(NewTestDB(t))

	_, err := backend.Get(ctx, "projects", "p1")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = backend.Commit(ctx, docstore.Mutation{
		Kind:       docstore.MutationCreate,
		Collection: "projects",
		ID:         "p1",
		Fields:     map[string]any{"owner": "u1"},
	})
	require.NoError(t, err)

	_, err = backend.Commit(ctx, docstore.Mutation{
		Kind:       docstore.MutationCreate,
		Collection: "projects",
		ID:         "p1",
		Fields:     map[string]any{"owner": "u3"},
	})
	require.ErrorIs(t, err, docstore.ErrAlreadyExists)

	doc, err := backend.Get(ctx, "projects", "p1")
	require.NoError(t, err)
	require.Equal(t, "p1", doc.ID)
	require.Equal(t, "u1", doc.Fields["owner"])
	require.EqualValues(t, 1, doc.Version)
}

func TestDocumentBackend_InvalidPath(t *testing.T) {
	backend := NewDocumentBackend(NewTestDB(t))
	_, err := backend.Commit(context.Background(), docstore.Mutation{
		Kind:       docstore.MutationSet,
		Collection: "projects/p1",
		ID:         "x",
	})
	require.ErrorIs(t, err, docstore.ErrInvalidPath)
}

func TestDocumentBackend_WithClient(t *testing.T) {
	ctx := context.Background()
	queue := live.NewQueue(nil)
	defer queue.Close()
	client := docstore.NewClient(NewDocumentBackend(NewTestDB(t)), queue, nil)
	defer client.Close()

	require.NoError(t, client.Write(ctx, "items", "a", map[string]any{"rank": 3}))
	require.NoError(t, client.Write(ctx, "items", "b", map[string]any{"rank": 1}))

	var got [][]string
	sub, err := client.SubscribeCollection(ctx, docstore.Query{Collection: "items", OrderBy: "rank"},
		func(docs []docstore.Document) {
			ids := make([]string, len(docs))
			for i, d := range docs {
				ids[i] = d.ID
			}
			got = append(got, ids)
		}, nil)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, client.UpdatePartial(ctx, "items", "b", map[string]any{"rank": 9}))

	syncCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, queue.Sync(syncCtx))

	require.Equal(t, []string{"b", "a"}, got[0])
	require.Equal(t, []string{"a", "b"}, got[len(got)-1])
}
