package project_test

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/lanes/internal/domain/project"
	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/live"
	"github.com/stretchr/testify/require"
)

type stateSource struct {
	value *live.Value[identity.State]
}

func (s stateSource) Observe(onNext func(identity.State)) *live.Subscription {
	return s.value.Subscribe(onNext)
}

func TestFeed_FollowsIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Create(ctx, project.Draft{ID: "p1", Title: "Site"}, u1)
	require.NoError(t, err)

	states := stateSource{value: live.NewValue(h.queue, identity.Unknown())}
	feed := project.NewFeed(h.svc, states, h.queue, nil)
	feed.Start(ctx)
	defer feed.Close()

	rec := &listRecorder{}
	sub := feed.Subscribe(rec.next)
	defer sub.Unsubscribe()

	settle := func(want []string) {
		t.Helper()
		require.Eventually(t, func() bool {
			if err := h.queue.Sync(ctx); err != nil {
				return false
			}
			got := rec.ids()
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		}, 2*time.Second, 10*time.Millisecond)
	}

	states.value.Set(identity.SignedOut())
	settle([]string{})
	require.False(t, feed.Active())

	states.value.Set(identity.SignedIn(u1))
	settle([]string{"p1"})
	require.Eventually(t, feed.Active, 2*time.Second, 10*time.Millisecond)

	states.value.Set(identity.SignedIn(u3))
	settle([]string{})
	require.Eventually(t, feed.Active, 2*time.Second, 10*time.Millisecond)

	_, err = h.svc.Create(ctx, project.Draft{ID: "p3", Title: "Other"}, u3)
	require.NoError(t, err)
	settle([]string{"p3"})

	states.value.Set(identity.SignedOut())
	settle([]string{})
	require.Eventually(t, func() bool { return !feed.Active() }, 2*time.Second, 10*time.Millisecond)
}

func TestFeed_ViewsPartition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Create(ctx, project.Draft{ID: "p1", Title: "A"}, u1)
	require.NoError(t, err)
	_, err = h.svc.Create(ctx, project.Draft{ID: "p2", Title: "B"}, u1)
	require.NoError(t, err)
	require.NoError(t, h.svc.SetArchived(ctx, "p2", true))

	states := stateSource{value: live.NewValue(h.queue, identity.SignedIn(u1))}
	feed := project.NewFeed(h.svc, states, h.queue, nil)
	feed.Start(ctx)
	defer feed.Close()

	views := make(chan project.Views, 16)
	sub := feed.SubscribeViews(func(v project.Views) { views <- v })
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool {
		select {
		case v := <-views:
			return len(v.Active) == 1 && v.Active[0].ID == "p1" &&
				len(v.Archived) == 1 && v.Archived[0].ID == "p2"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
