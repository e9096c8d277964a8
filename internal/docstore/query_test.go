package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueryApply_MixedTypesAndTies(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []Document{
		{ID: "s", Collection: "c", Fields: map[string]any{"k": "text"}},
		{ID: "t", Collection: "c", Fields: map[string]any{"k": now}},
		{ID: "n2", Collection: "c", Fields: map[string]any{"k": 2.5}},
		{ID: "n1", Collection: "c", Fields: map[string]any{"k": int64(2)}},
		{ID: "b", Collection: "c", Fields: map[string]any{"k": true}},
		{ID: "z", Collection: "c", Fields: map[string]any{"k": nil}},
		{ID: "x", Collection: "c", Fields: map[string]any{}},
	}

	got := Query{Collection: "c", OrderBy: "k"}.Apply(docs)
	require.Equal(t, []string{"z", "b", "n1", "n2", "t", "s"}, docIDs(got))

	got = Query{Collection: "c", OrderBy: "k", Direction: Descending}.Apply(docs)
	require.Equal(t, []string{"s", "t", "n2", "n1", "b", "z"}, docIDs(got))
}

func TestFilterMatches(t *testing.T) {
	fields := map[string]any{
		"owner":        "u1",
		"contributors": []string{"u2", "u3"},
		"count":        3,
	}
	require.True(t, Where("owner", OpEqual, "u1").Matches(fields))
	require.False(t, Where("owner", OpEqual, "u2").Matches(fields))
	require.True(t, Where("contributors", OpArrayContains, "u3").Matches(fields))
	require.False(t, Where("contributors", OpArrayContains, "u1").Matches(fields))
	require.True(t, Where("count", OpEqual, 3.0).Matches(fields))
	require.False(t, Where("missing", OpEqual, nil).Matches(fields))
}

func TestValidateCollection(t *testing.T) {
	require.NoError(t, ValidateCollection("projects"))
	require.NoError(t, ValidateCollection("projects/p1/todos"))
	require.ErrorIs(t, ValidateCollection("projects/p1"), ErrInvalidPath)
	require.ErrorIs(t, ValidateCollection("projects//todos"), ErrInvalidPath)
	require.ErrorIs(t, ValidateID("a/b"), ErrInvalidPath)
}

func docIDs(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
