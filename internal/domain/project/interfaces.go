package project

import (
	"context"

	"github.com/rpggio/lanes/internal/identity"
	"github.com/rpggio/lanes/internal/live"
)

// TaskRemover deletes every task of a project.
type TaskRemover interface {
	RemoveAll(ctx context.Context, projectID string) error
}

// StateSource is the live identity state a Feed follows.
type StateSource interface {
	Observe(onNext func(identity.State)) *live.Subscription
}
