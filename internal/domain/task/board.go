package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/rpggio/lanes/internal/live"
)

// Board holds the three lane subscriptions of one project.
type Board struct {
	ProjectID string

	lanes *live.Value[Lanes]
	subs  live.Set

	mu  sync.Mutex
	cur Lanes
	err error
}

// OpenBoard subscribes to every lane of projectID. Close releases them.
func (s *Service) OpenBoard(ctx context.Context, queue *live.Queue, projectID string) (*Board, error) {
	b := &Board{
		ProjectID: projectID,
		lanes:     live.NewValue(queue, Lanes{}),
	}
	for _, status := range Statuses {
		status := status
		sub, err := s.ObserveLane(ctx, projectID, status, func(tasks []Task) {
			b.mu.Lock()
			b.cur.set(status, tasks)
			snapshot := b.cur
			b.mu.Unlock()
			b.lanes.Set(snapshot)
		}, func(err error) {
			b.mu.Lock()
			b.err = err
			b.mu.Unlock()
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("opening board: %w", err)
		}
		b.subs.Add(sub)
	}
	return b, nil
}

// Subscribe delivers the lanes now and after every change to any lane.
func (b *Board) Subscribe(onNext func(Lanes)) *live.Subscription {
	return b.lanes.Subscribe(onNext)
}

// Lanes returns the latest lanes.
func (b *Board) Lanes() Lanes {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

// Err returns the error that terminated a lane, if any.
func (b *Board) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Active reports whether all lane subscriptions are held.
func (b *Board) Active() bool {
	return b.subs.Len() == len(Statuses)
}

// Close releases every lane subscription.
func (b *Board) Close() {
	b.subs.Release()
}
