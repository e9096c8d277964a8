package task_test

import (
	"context"
	"testing"

	"github.com/rpggio/lanes/internal/domain/task"
	"github.com/stretchr/testify/require"
)

func TestBoard_TracksAllLanes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	t1 := h.seed(t, "p1", "t1", task.StatusBacklog)
	h.seed(t, "p1", "t2", task.StatusDone)
	h.seed(t, "p2", "t3", task.StatusBacklog)

	board, err := h.svc.OpenBoard(ctx, h.queue, "p1")
	require.NoError(t, err)
	require.True(t, board.Active())

	var seen []task.Lanes
	sub := board.Subscribe(func(l task.Lanes) { seen = append(seen, l) })
	defer sub.Unsubscribe()
	h.drain(t)

	lanes := board.Lanes()
	require.Len(t, lanes.Backlog, 1)
	require.Empty(t, lanes.InProgress)
	require.Len(t, lanes.Done, 1)

	require.NoError(t, h.svc.Transition(ctx, "p1", t1, task.StatusInProgress))
	h.drain(t)

	lanes = board.Lanes()
	require.Empty(t, lanes.Backlog)
	moved, ok := lanes.Find("t1")
	require.True(t, ok)
	require.Equal(t, task.StatusInProgress, moved.Status)
	require.NotEmpty(t, seen)

	board.Close()
	require.False(t, board.Active())
}
