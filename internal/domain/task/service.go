package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rpggio/lanes/internal/docstore"
	"github.com/rpggio/lanes/internal/live"
	"golang.org/x/sync/errgroup"
)

// removeConcurrency bounds parallel deletes in RemoveAll.
const removeConcurrency = 8

// Service handles task lane operations.
type Service struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewService creates a new task service.
func NewService(store docstore.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// LaneQuery selects the tasks of one lane, oldest first.
func LaneQuery(projectID string, status Status) docstore.Query {
	return docstore.Query{
		Collection: Collection(projectID),
		Filters:    []docstore.Filter{docstore.Where("status", docstore.OpEqual, string(status))},
		OrderBy:    "createdAt",
		Direction:  docstore.Ascending,
	}
}

// ObserveLane streams the tasks in one lane of a project.
func (s *Service) ObserveLane(ctx context.Context, projectID string, status Status, onNext func([]Task), onError func(error)) (*live.Subscription, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	sub, err := s.store.SubscribeCollection(ctx, LaneQuery(projectID, status), func(docs []docstore.Document) {
		onNext(s.decodeAll(docs))
	}, onError)
	if err != nil {
		return nil, fmt.Errorf("observing %s lane: %w", status, err)
	}
	return sub, nil
}

// Get fetches a task by ID.
func (s *Service) Get(ctx context.Context, projectID, id string) (*Task, error) {
	doc, err := s.store.Get(ctx, Collection(projectID), id)
	if err != nil {
		return nil, mapStoreError("getting task", err)
	}
	t, err := fromDocument(*doc)
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}
	return &t, nil
}

// Transition moves t into another lane and marks it moved. The local view
// updates at once; if the write is rejected the store rolls the view back and
// the error is returned. A task deleted in the meantime fails with
// ErrTaskNotFound.
func (s *Service) Transition(ctx context.Context, projectID string, t Task, to Status) error {
	if err := ValidateTransition(t.Status, to); err != nil {
		return err
	}
	err := s.store.UpdatePartial(ctx, Collection(projectID), t.ID, map[string]any{
		"status": string(to),
		"moved":  true,
	})
	if err != nil {
		s.logger.Warn("task transition rejected", "project", projectID, "task", t.ID, "from", t.Status, "to", to, "error", err)
		return mapStoreError("moving task", err)
	}
	s.logger.Debug("task moved", "project", projectID, "task", t.ID, "from", t.Status, "to", to)
	return nil
}

// Drop handles a drag-and-drop gesture. Reordering inside a lane is not
// persisted, so dropping into the source lane does nothing. It reports
// whether a transition was written.
func (s *Service) Drop(ctx context.Context, projectID string, t Task, from, to Status) (bool, error) {
	if from == to {
		return false, nil
	}
	t.Status = from
	if err := s.Transition(ctx, projectID, t, to); err != nil {
		return false, err
	}
	return true, nil
}

// Upsert creates a task when t has no ID and updates it otherwise. New tasks
// start in the backlog. An update that names another lane is a transition and
// marks the task moved.
func (s *Service) Upsert(ctx context.Context, projectID string, t Task) (*Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	collection := Collection(projectID)

	if t.ID == "" {
		t.ID = s.store.NewID(collection)
		t.Status = StatusBacklog
		t.Moved = false
		err := s.store.Create(ctx, collection, t.ID, map[string]any{
			"id":        t.ID,
			"title":     t.Title,
			"status":    string(t.Status),
			"moved":     false,
			"createdAt": docstore.ServerTimestamp(),
		})
		if err != nil {
			return nil, fmt.Errorf("creating task: %w", err)
		}
		return &t, nil
	}

	current, err := s.Get(ctx, projectID, t.ID)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{"title": t.Title}
	if t.Status != "" && t.Status != current.Status {
		if err := ValidateTransition(current.Status, t.Status); err != nil {
			return nil, err
		}
		fields["status"] = string(t.Status)
		fields["moved"] = true
	}
	if err := s.store.UpdatePartial(ctx, collection, t.ID, fields); err != nil {
		return nil, mapStoreError("updating task", err)
	}
	return s.Get(ctx, projectID, t.ID)
}

// Remove deletes a task.
func (s *Service) Remove(ctx context.Context, projectID, id string) error {
	if err := s.store.Delete(ctx, Collection(projectID), id); err != nil {
		return fmt.Errorf("removing task: %w", err)
	}
	return nil
}

// RemoveAll deletes every task of a project. It attempts every delete and
// returns the joined failures.
func (s *Service) RemoveAll(ctx context.Context, projectID string) error {
	docs, err := s.store.Query(ctx, docstore.Query{Collection: Collection(projectID)})
	if err != nil {
		return fmt.Errorf("listing tasks: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(removeConcurrency)
	for _, doc := range docs {
		id := doc.ID
		g.Go(func() error {
			if err := s.store.Delete(ctx, Collection(projectID), id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("removing task %s: %w", id, err))
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("project tasks removed", "project", projectID, "count", len(docs))
	return nil
}

func (s *Service) decodeAll(docs []docstore.Document) []Task {
	tasks := make([]Task, 0, len(docs))
	for _, doc := range docs {
		t, err := fromDocument(doc)
		if err != nil {
			s.logger.Warn("skipping malformed task", "path", doc.Path(), "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}

func mapStoreError(op string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrTaskNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func fromDocument(doc docstore.Document) (Task, error) {
	var t Task
	if err := doc.Decode(&t); err != nil {
		return Task{}, err
	}
	if t.ID == "" {
		t.ID = doc.ID
	}
	t.Pending = doc.HasPendingWrites
	return t, nil
}
