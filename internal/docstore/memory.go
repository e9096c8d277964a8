package docstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBackend keeps documents in process memory. Clients sharing one
// MemoryBackend behave like sessions sharing one remote store.
type MemoryBackend struct {
	now func() time.Time

	mu      sync.Mutex
	docs    map[string]map[string]Document
	version int64
	reject  map[string]error
	gate    chan struct{}

	// emitMu keeps watch delivery in commit order.
	emitMu   sync.Mutex
	watchers map[int]func(Change)
	nextID   int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		now:      time.Now,
		docs:     make(map[string]map[string]Document),
		reject:   make(map[string]error),
		watchers: make(map[int]func(Change)),
	}
}

// SetClock overrides the commit clock.
func (b *MemoryBackend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// List returns every document of collection ordered by id.
func (b *MemoryBackend) List(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	docs := make([]Document, 0, len(b.docs[collection]))
	for _, doc := range b.docs[collection] {
		docs = append(docs, doc.clone())
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Get returns one document of collection.
func (b *MemoryBackend) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	d := doc.clone()
	return &d, nil
}

// Commit applies m and notifies watchers.
func (b *MemoryBackend) Commit(ctx context.Context, m Mutation) (Change, error) {
	if err := ctx.Err(); err != nil {
		return Change{}, err
	}
	if err := validateDocument(m.Collection, m.ID); err != nil {
		return Change{}, err
	}

	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Change{}, ctx.Err()
		}
	}

	b.mu.Lock()
	if err := b.reject[m.Collection]; err != nil {
		b.mu.Unlock()
		return Change{}, err
	}
	var current *Document
	if doc, ok := b.docs[m.Collection][m.ID]; ok {
		current = &doc
	}
	next, err := Apply(current, m, b.now().UTC())
	if err != nil {
		b.mu.Unlock()
		return Change{}, err
	}

	b.version++
	change := Change{Collection: m.Collection, ID: m.ID, Version: b.version}
	if next == nil {
		delete(b.docs[m.Collection], m.ID)
	} else {
		next.Version = b.version
		if b.docs[m.Collection] == nil {
			b.docs[m.Collection] = make(map[string]Document)
		}
		b.docs[m.Collection][m.ID] = *next
		stored := next.clone()
		change.Document = &stored
	}

	b.emitMu.Lock()
	b.mu.Unlock()
	b.emitLocked(change)
	b.emitMu.Unlock()

	return change, nil
}

// Reject makes every later commit to collection fail with err. A nil err
// accepts commits again.
func (b *MemoryBackend) Reject(collection string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.reject, collection)
		return
	}
	b.reject[collection] = err
}

// Hold blocks commits until the returned function is called.
func (b *MemoryBackend) Hold() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.gate == gate {
				b.gate = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// Fail reports err to watchers of collection, ending their subscriptions.
func (b *MemoryBackend) Fail(collection string, err error) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	b.emitLocked(Change{Collection: collection, Err: err})
}

// Watch registers fn for committed changes.
func (b *MemoryBackend) Watch(fn func(Change)) func() {
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

func (b *MemoryBackend) emitLocked(change Change) {
	for _, fn := range b.watchers {
		c := change
		if c.Document != nil {
			doc := c.Document.clone()
			c.Document = &doc
		}
		fn(c)
	}
}
