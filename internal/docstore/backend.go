package docstore

import (
	"context"
	"time"
)

// MutationKind identifies a single-document write.
type MutationKind int

const (
	MutationSet MutationKind = iota
	MutationUpdate
	MutationDelete
	MutationCreate
)

func (k MutationKind) String() string {
	switch k {
	case MutationSet:
		return "set"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	case MutationCreate:
		return "create"
	default:
		return "unknown"
	}
}

// Mutation is one atomic single-document write.
type Mutation struct {
	Kind       MutationKind
	Collection string
	ID         string
	Fields     map[string]any
	Merge      bool
}

// Change is a committed change reported by a backend. Document is nil for a
// deletion. A change with Err set ends every subscription on Collection.
type Change struct {
	Collection string
	ID         string
	Document   *Document
	Version    int64
	Err        error
}

// Backend is the authoritative document store shared by every client.
type Backend interface {
	// List returns every document of a collection.
	List(ctx context.Context, collection string) ([]Document, error)
	// Get returns one document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Commit applies m atomically and returns the committed change.
	Commit(ctx context.Context, m Mutation) (Change, error)
	// Watch registers fn for committed changes, delivered in commit order.
	Watch(fn func(Change)) (cancel func())
}

// Apply computes the state produced by m on top of current at time now.
// It returns nil for a deletion, ErrNotFound when an update targets an
// absent document and ErrAlreadyExists when a create targets an existing one.
func Apply(current *Document, m Mutation, now time.Time) (*Document, error) {
	switch m.Kind {
	case MutationDelete:
		return nil, nil
	case MutationUpdate:
		if current == nil {
			return nil, ErrNotFound
		}
	case MutationCreate:
		if current != nil {
			return nil, ErrAlreadyExists
		}
	}

	fields := cloneFields(m.Fields)
	if fields == nil {
		fields = map[string]any{}
	}
	resolveTimestamps(fields, now)

	next := &Document{
		ID:         m.ID,
		Collection: m.Collection,
		CreateTime: now,
		UpdateTime: now,
	}
	if current != nil {
		next.CreateTime = current.CreateTime
	}

	if current != nil && (m.Kind == MutationUpdate || m.Merge) {
		merged := cloneFields(current.Fields)
		if merged == nil {
			merged = map[string]any{}
		}
		if m.Kind == MutationUpdate {
			for k, v := range fields {
				merged[k] = v
			}
		} else {
			mergeFields(merged, fields)
		}
		next.Fields = merged
	} else {
		next.Fields = fields
	}
	return next, nil
}
