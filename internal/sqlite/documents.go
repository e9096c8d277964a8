package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rpggio/lanes/internal/docstore"
)

// DocumentBackend implements docstore.Backend on SQLite.
type DocumentBackend struct {
	db  *DB
	now func() time.Time

	mu sync.Mutex

	emitMu   sync.Mutex
	watchers map[int]func(docstore.Change)
	nextID   int
}

// NewDocumentBackend creates a new DocumentBackend
func NewDocumentBackend(db *DB) *DocumentBackend {
	return &DocumentBackend{
		db:       db,
		now:      time.Now,
		watchers: make(map[int]func(docstore.Change)),
	}
}

// List returns every document of collection ordered by id.
func (b *DocumentBackend) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	query := `
		SELECT id, fields, create_time, update_time, version
		FROM documents
		WHERE collection = ?
		ORDER BY id
	`

	rows, err := b.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, mapError(err))
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		doc, err := scanDocument(rows, collection)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, mapError(err))
	}
	return docs, nil
}

// Get returns one document of collection.
func (b *DocumentBackend) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, fields, create_time, update_time, version
		FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)
	doc, err := scanDocument(row, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Commit applies m in one transaction and notifies watchers.
func (b *DocumentBackend) Commit(ctx context.Context, m docstore.Mutation) (docstore.Change, error) {
	if err := docstore.ValidateCollection(m.Collection); err != nil {
		return docstore.Change{}, err
	}
	if err := docstore.ValidateID(m.ID); err != nil {
		return docstore.Change{}, err
	}

	b.mu.Lock()
	change, err := b.commit(ctx, m)
	if err != nil {
		b.mu.Unlock()
		return docstore.Change{}, err
	}

	b.emitMu.Lock()
	b.mu.Unlock()
	b.emitLocked(change)
	b.emitMu.Unlock()

	return change, nil
}

func (b *DocumentBackend) commit(ctx context.Context, m docstore.Mutation) (docstore.Change, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return docstore.Change{}, fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, fields, create_time, update_time, version
		FROM documents
		WHERE collection = ? AND id = ?
	`, m.Collection, m.ID)
	current, err := scanDocument(row, m.Collection)
	if errors.Is(err, sql.ErrNoRows) {
		current = nil
	} else if err != nil {
		return docstore.Change{}, err
	}

	next, err := docstore.Apply(current, m, b.now().UTC().Round(0))
	if err != nil {
		return docstore.Change{}, err
	}

	var version int64
	err = tx.QueryRowContext(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = 'commit' RETURNING value`,
	).Scan(&version)
	if err != nil {
		return docstore.Change{}, fmt.Errorf("failed to advance commit counter: %w", mapError(err))
	}

	change := docstore.Change{Collection: m.Collection, ID: m.ID, Version: version}
	if next == nil {
		_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, m.Collection, m.ID)
		if err != nil {
			return docstore.Change{}, fmt.Errorf("failed to delete document: %w", mapError(err))
		}
	} else {
		next.Version = version
		fields, err := encodeFields(next.Fields)
		if err != nil {
			return docstore.Change{}, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, fields, create_time, update_time, version)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET
				fields = excluded.fields,
				update_time = excluded.update_time,
				version = excluded.version
		`,
			m.Collection,
			m.ID,
			fields,
			next.CreateTime.Format(time.RFC3339Nano),
			next.UpdateTime.Format(time.RFC3339Nano),
			version,
		)
		if err != nil {
			return docstore.Change{}, fmt.Errorf("failed to write document: %w", mapError(err))
		}
		change.Document = next
	}

	if err := tx.Commit(); err != nil {
		return docstore.Change{}, fmt.Errorf("failed to commit: %w", mapError(err))
	}
	return change, nil
}

// Watch registers fn for committed changes, delivered in commit order.
func (b *DocumentBackend) Watch(fn func(docstore.Change)) func() {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	id := b.nextID
	b.nextID++
	b.watchers[id] = fn
	return func() {
		b.emitMu.Lock()
		defer b.emitMu.Unlock()
		delete(b.watchers, id)
	}
}

func (b *DocumentBackend) emitLocked(change docstore.Change) {
	for _, fn := range b.watchers {
		fn(change)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, collection string) (*docstore.Document, error) {
	var (
		doc        docstore.Document
		fields     string
		createTime string
		updateTime string
	)
	err := row.Scan(&doc.ID, &fields, &createTime, &updateTime, &doc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", mapError(err))
	}

	doc.Collection = collection
	if doc.Fields, err = decodeFields(fields); err != nil {
		return nil, err
	}
	if doc.CreateTime, err = time.Parse(time.RFC3339Nano, createTime); err != nil {
		return nil, fmt.Errorf("failed to parse create_time: %w", err)
	}
	if doc.UpdateTime, err = time.Parse(time.RFC3339Nano, updateTime); err != nil {
		return nil, fmt.Errorf("failed to parse update_time: %w", err)
	}
	return &doc, nil
}

var _ docstore.Backend = (*DocumentBackend)(nil)
