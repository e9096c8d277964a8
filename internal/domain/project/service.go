package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rpggio/lanes/internal/docstore"
	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/live"
)

// Service handles project operations.
type Service struct {
	store  docstore.Store
	tasks  TaskRemover
	logger *slog.Logger
}

// NewService creates a new project service. tasks may be nil, in which case
// Remove does not cascade.
func NewService(store docstore.Store, tasks TaskRemover, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, tasks: tasks, logger: logger}
}

// VisibleQuery selects the projects principal owns or contributes to, newest
// first.
func VisibleQuery(principal identity.Principal) docstore.Query {
	anyOf := []docstore.Filter{docstore.Where("ownerId", docstore.OpEqual, principal.ID)}
	if principal.Email != "" {
		anyOf = append(anyOf, docstore.Where("contributors", docstore.OpArrayContains, principal.Email))
	}
	return docstore.Query{
		Collection: Collection,
		AnyOf:      anyOf,
		OrderBy:    "createdAt",
		Direction:  docstore.Descending,
	}
}

// ListVisible streams the projects visible to principal.
func (s *Service) ListVisible(ctx context.Context, principal identity.Principal, onNext func([]Project), onError func(error)) (*live.Subscription, error) {
	sub, err := s.store.SubscribeCollection(ctx, VisibleQuery(principal), func(docs []docstore.Document) {
		projects := make([]Project, 0, len(docs))
		for _, doc := range docs {
			proj, err := fromDocument(doc)
			if err != nil {
				s.logger.Warn("skipping malformed project", "path", doc.Path(), "error", err)
				continue
			}
			projects = append(projects, proj)
		}
		onNext(projects)
	}, onError)
	if err != nil {
		return nil, fmt.Errorf("listing visible projects: %w", err)
	}
	return sub, nil
}

// Observe streams one project; onNext receives nil while it does not exist.
func (s *Service) Observe(ctx context.Context, id string, onNext func(*Project), onError func(error)) (*live.Subscription, error) {
	sub, err := s.store.SubscribeDocument(ctx, Collection, id, func(doc *docstore.Document) {
		if doc == nil {
			onNext(nil)
			return
		}
		proj, err := fromDocument(*doc)
		if err != nil {
			s.logger.Warn("malformed project", "path", doc.Path(), "error", err)
			onNext(nil)
			return
		}
		onNext(&proj)
	}, onError)
	if err != nil {
		return nil, fmt.Errorf("observing project: %w", err)
	}
	return sub, nil
}

// Get fetches a project by ID.
func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return nil, mapStoreError("getting project", err)
	}
	proj, err := fromDocument(*doc)
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return &proj, nil
}

// List returns the projects visible to principal once, in feed order.
func (s *Service) List(ctx context.Context, principal identity.Principal) ([]Project, error) {
	docs, err := s.store.Query(ctx, VisibleQuery(principal))
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	projects := make([]Project, 0, len(docs))
	for _, doc := range docs {
		proj, err := fromDocument(doc)
		if err != nil {
			s.logger.Warn("skipping malformed project", "path", doc.Path(), "error", err)
			continue
		}
		projects = append(projects, proj)
	}
	return projects, nil
}

// Create creates a new project owned by owner. A draft without an ID gets a
// fresh one; an ID that is already taken fails with ErrProjectExists.
func (s *Service) Create(ctx context.Context, draft Draft, owner identity.Principal) (*Project, error) {
	if strings.TrimSpace(owner.ID) == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	title, contributors, err := normalizeDraft(draft)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(draft.ID)
	if id == "" {
		id = s.store.NewID(Collection)
	}

	fields := map[string]any{
		"id":           id,
		"title":        title,
		"description":  draft.Description,
		"ownerId":      owner.ID,
		"contributors": contributors,
		"archived":     false,
		"createdAt":    docstore.ServerTimestamp(),
		"updatedAt":    docstore.ServerTimestamp(),
	}
	if err := s.store.Create(ctx, Collection, id, fields); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return nil, fmt.Errorf("creating project %s: %w", id, ErrProjectExists)
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}
	s.logger.Info("project created", "project", id, "owner", owner.ID)

	now := time.Now().UTC()
	return &Project{
		ID:           id,
		Title:        title,
		Description:  draft.Description,
		OwnerID:      owner.ID,
		Contributors: contributors,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Update rewrites the owner-editable fields of a project. The owner and
// creation time are kept.
func (s *Service) Update(ctx context.Context, id string, draft Draft) error {
	title, contributors, err := normalizeDraft(draft)
	if err != nil {
		return err
	}
	err = s.store.UpdatePartial(ctx, Collection, id, map[string]any{
		"title":        title,
		"description":  draft.Description,
		"contributors": contributors,
		"updatedAt":    docstore.ServerTimestamp(),
	})
	if err != nil {
		return mapStoreError("updating project", err)
	}
	return nil
}

// SetArchived moves a project between the active and archived views. Both
// directions are always allowed and repeating a call changes nothing.
func (s *Service) SetArchived(ctx context.Context, id string, archived bool) error {
	if err := s.store.UpdatePartial(ctx, Collection, id, map[string]any{"archived": archived}); err != nil {
		return mapStoreError("archiving project", err)
	}
	s.logger.Info("project archive state changed", "project", id, "archived", archived)
	return nil
}

// Remove permanently deletes a project after deleting its tasks. If any task
// cannot be deleted the project is kept and the error returned.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := docstore.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if s.tasks != nil {
		if err := s.tasks.RemoveAll(ctx, id); err != nil {
			return fmt.Errorf("removing tasks of project %s: %w", id, err)
		}
	}
	if err := s.store.Delete(ctx, Collection, id); err != nil {
		return fmt.Errorf("removing project: %w", err)
	}
	s.logger.Info("project removed", "project", id)
	return nil
}

func normalizeDraft(draft Draft) (string, []string, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return "", nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	contributors, err := NormalizeContributors(draft.Contributors)
	if err != nil {
		return "", nil, err
	}
	return title, contributors, nil
}

// NormalizeContributors trims, lower-cases and de-duplicates contributor
// emails, rejecting invalid ones.
func NormalizeContributors(emails []string) ([]string, error) {
	out := make([]string, 0, len(emails))
	seen := make(map[string]bool, len(emails))
	for _, email := range emails {
		if strings.TrimSpace(email) == "" {
			continue
		}
		normalized, err := identity.NormalizeEmail(email)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out, nil
}

func fromDocument(doc docstore.Document) (Project, error) {
	var proj Project
	if err := doc.Decode(&proj); err != nil {
		return Project{}, err
	}
	if proj.ID == "" {
		proj.ID = doc.ID
	}
	if proj.Contributors == nil {
		proj.Contributors = []string{}
	}
	proj.Pending = doc.HasPendingWrites
	return proj, nil
}

func mapStoreError(op string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrProjectNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
