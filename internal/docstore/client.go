package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/lanes/internal/live"
)

// Client is the process-wide connection to a Backend. It keeps an
// acknowledged cache of every subscribed collection, overlays pending local
// writes on it, and re-delivers subscription results on the event queue
// whenever they change.
type Client struct {
	backend Backend
	queue   *live.Queue
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	caches  map[string]*collectionCache
	pending map[string][]*pendingWrite
	subs    map[*subscription]struct{}
	seq     int64

	stopWatch func()
}

type collectionCache struct {
	docs    map[string]Document
	deleted map[string]int64
	refs    int
	ready   chan struct{}
	err     error
}

type pendingWrite struct {
	seq int64
	m   Mutation
	at  time.Time
}

type subscription struct {
	handle     *live.Subscription
	collection string
	query      *Query
	docID      string

	onDocs  func([]Document)
	onDoc   func(*Document)
	onError func(error)

	delivered bool
	lastDocs  []Document
	lastDoc   *Document
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock overrides the clock used to estimate pending server timestamps.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient connects to backend and dispatches notifications on queue.
func NewClient(backend Backend, queue *live.Queue, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		backend: backend,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
		caches:  make(map[string]*collectionCache),
		pending: make(map[string][]*pendingWrite),
		subs:    make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stopWatch = backend.Watch(c.onChange)
	return c
}

// Close stops watching the backend and ends every subscription.
func (c *Client) Close() {
	if c.stopWatch != nil {
		c.stopWatch()
	}
	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()
	for _, sub := range subs {
		sub.handle.Unsubscribe()
	}
}

// NewID returns a fresh document id. No write happens.
func (c *Client) NewID(collection string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SubscribeCollection delivers the ordered result of q now and after every
// change that alters it, until the returned subscription is released or the
// backend reports an error for the collection.
func (c *Client) SubscribeCollection(ctx context.Context, q Query, onNext func([]Document), onError func(error)) (*live.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, newStoreError("subscribe", q.Collection, err)
	}
	query := q
	sub := &subscription{
		collection: q.Collection,
		query:      &query,
		onDocs:     onNext,
		onError:    onError,
	}
	if err := c.register(ctx, sub); err != nil {
		return nil, newStoreError("subscribe", q.Collection, err)
	}
	c.logger.Debug("collection subscribed", "query", q.String())
	return sub.handle, nil
}

// SubscribeDocument delivers the document, or nil while it does not exist,
// now and after every write to it.
func (c *Client) SubscribeDocument(ctx context.Context, collection, id string, onNext func(*Document), onError func(error)) (*live.Subscription, error) {
	if err := validateDocument(collection, id); err != nil {
		return nil, newStoreError("subscribe", documentPath(collection, id), err)
	}
	sub := &subscription{
		collection: collection,
		docID:      id,
		onDoc:      onNext,
		onError:    onError,
	}
	if err := c.register(ctx, sub); err != nil {
		return nil, newStoreError("subscribe", documentPath(collection, id), err)
	}
	return sub.handle, nil
}

// Query returns the current result of q, including pending local writes.
func (c *Client) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, newStoreError("query", q.Collection, err)
	}
	docs, err := c.backend.List(ctx, q.Collection)
	if err != nil {
		return nil, newStoreError("query", q.Collection, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	base := make(map[string]Document, len(docs))
	for _, doc := range docs {
		base[doc.ID] = doc
	}
	return q.Apply(c.overlayLocked(q.Collection, base)), nil
}

// Get returns one document, including pending local writes. It fails with
// ErrNotFound if the document does not exist.
func (c *Client) Get(ctx context.Context, collection, id string) (*Document, error) {
	path := documentPath(collection, id)
	if err := validateDocument(collection, id); err != nil {
		return nil, newStoreError("get", path, err)
	}
	current, err := c.backend.Get(ctx, collection, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, newStoreError("get", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pw := range c.pending[path] {
		next, err := Apply(current, pw.m, pw.at)
		if err != nil {
			continue
		}
		if next != nil {
			next.HasPendingWrites = true
		}
		current = next
	}
	if current == nil {
		return nil, newStoreError("get", path, ErrNotFound)
	}
	return current, nil
}

// Create writes a new document. It fails with ErrAlreadyExists if the id is
// taken.
func (c *Client) Create(ctx context.Context, collection, id string, fields map[string]any) error {
	return c.commit(ctx, "create", Mutation{
		Kind:       MutationCreate,
		Collection: collection,
		ID:         id,
		Fields:     fields,
	})
}

// Write creates or upserts a document. Fields missing from fields are kept
// unless WithMerge(false) is given.
func (c *Client) Write(ctx context.Context, collection, id string, fields map[string]any, opts ...WriteOption) error {
	o := writeOptions{merge: true}
	for _, opt := range opts {
		opt(&o)
	}
	return c.commit(ctx, "write", Mutation{
		Kind:       MutationSet,
		Collection: collection,
		ID:         id,
		Fields:     fields,
		Merge:      o.merge,
	})
}

// UpdatePartial updates fields of an existing document. It fails with
// ErrNotFound if the document does not exist.
func (c *Client) UpdatePartial(ctx context.Context, collection, id string, fields map[string]any) error {
	return c.commit(ctx, "update", Mutation{
		Kind:       MutationUpdate,
		Collection: collection,
		ID:         id,
		Fields:     fields,
	})
}

// Delete removes a document. Deleting an absent document succeeds.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.commit(ctx, "delete", Mutation{
		Kind:       MutationDelete,
		Collection: collection,
		ID:         id,
	})
}

// commit shows m to local subscribers immediately, then waits for the backend.
// A rejected write is dropped from the overlay so subscribers fall back to the
// acknowledged state.
func (c *Client) commit(ctx context.Context, op string, m Mutation) error {
	path := documentPath(m.Collection, m.ID)
	if err := validateDocument(m.Collection, m.ID); err != nil {
		return newStoreError(op, path, err)
	}

	c.mu.Lock()
	c.seq++
	pw := &pendingWrite{seq: c.seq, m: m, at: c.now().UTC()}
	c.pending[path] = append(c.pending[path], pw)
	c.refreshLocked(m.Collection)
	c.mu.Unlock()

	change, err := c.backend.Commit(ctx, m)

	c.mu.Lock()
	c.dropPendingLocked(path, pw)
	if err == nil {
		if cache, ok := c.caches[m.Collection]; ok {
			cache.apply(change)
		}
	}
	c.refreshLocked(m.Collection)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("write rejected", "op", op, "path", path, "error", err)
		return newStoreError(op, path, err)
	}
	return nil
}

func (c *Client) register(ctx context.Context, sub *subscription) error {
	if err := c.retain(ctx, sub.collection); err != nil {
		return err
	}
	sub.handle = live.NewSubscription(c.queue, func() { c.unregister(sub) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[sub] = struct{}{}
	c.deliverLocked(sub)
	return nil
}

func (c *Client) unregister(sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[sub]; !ok {
		return
	}
	delete(c.subs, sub)
	c.releaseLocked(sub.collection)
}

// retain loads collection into the cache, or joins an existing load.
func (c *Client) retain(ctx context.Context, collection string) error {
	c.mu.Lock()
	cache, ok := c.caches[collection]
	if ok {
		cache.refs++
		c.mu.Unlock()
		select {
		case <-cache.ready:
		case <-ctx.Done():
			c.mu.Lock()
			c.releaseCacheLocked(collection, cache)
			c.mu.Unlock()
			return ctx.Err()
		}
		if cache.err != nil {
			return cache.err
		}
		return nil
	}
	cache = &collectionCache{
		docs:    make(map[string]Document),
		deleted: make(map[string]int64),
		refs:    1,
		ready:   make(chan struct{}),
	}
	c.caches[collection] = cache
	c.mu.Unlock()

	docs, err := c.backend.List(ctx, collection)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		cache.err = err
		if c.caches[collection] == cache {
			delete(c.caches, collection)
		}
		close(cache.ready)
		return err
	}
	for i := range docs {
		doc := docs[i]
		cache.apply(Change{Collection: collection, ID: doc.ID, Document: &doc, Version: doc.Version})
	}
	close(cache.ready)
	return nil
}

func (c *Client) releaseLocked(collection string) {
	if cache, ok := c.caches[collection]; ok {
		c.releaseCacheLocked(collection, cache)
	}
}

func (c *Client) releaseCacheLocked(collection string, cache *collectionCache) {
	cache.refs--
	if cache.refs <= 0 && c.caches[collection] == cache {
		delete(c.caches, collection)
	}
}

func (c *Client) onChange(change Change) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if change.Err != nil {
		c.failLocked(change.Collection, change.Err)
		return
	}
	cache, ok := c.caches[change.Collection]
	if !ok {
		return
	}
	cache.apply(change)
	c.refreshLocked(change.Collection)
}

func (c *Client) failLocked(collection string, err error) {
	storeErr := newStoreError("listen", collection, err)
	for sub := range c.subs {
		if sub.collection != collection {
			continue
		}
		c.logger.Warn("subscription terminated", "collection", collection, "error", err)
		sub.handle.Terminate(storeErr, sub.onError)
	}
}

func (c *Client) refreshLocked(collection string) {
	for sub := range c.subs {
		if sub.collection == collection {
			c.deliverLocked(sub)
		}
	}
}

// deliverLocked posts the subscription's current result if it differs from
// the last delivered one.
func (c *Client) deliverLocked(sub *subscription) {
	cache, ok := c.caches[sub.collection]
	if !ok {
		return
	}
	view := c.overlayLocked(sub.collection, cache.docs)

	if sub.query != nil {
		docs := sub.query.Apply(view)
		if sub.delivered && equalDocuments(docs, sub.lastDocs) {
			return
		}
		sub.delivered = true
		sub.lastDocs = docs
		next := sub.onDocs
		sub.handle.Deliver(func() { next(cloneDocuments(docs)) })
		return
	}

	var doc *Document
	for i := range view {
		if view[i].ID == sub.docID {
			d := view[i]
			doc = &d
			break
		}
	}
	if sub.delivered && equalDocument(doc, sub.lastDoc) {
		return
	}
	sub.delivered = true
	sub.lastDoc = doc
	next := sub.onDoc
	var out *Document
	if doc != nil {
		d := doc.clone()
		out = &d
	}
	sub.handle.Deliver(func() { next(out) })
}

// overlayLocked returns the acknowledged docs of collection with pending
// writes applied in the order they were issued.
func (c *Client) overlayLocked(collection string, base map[string]Document) []Document {
	merged := make(map[string]*Document, len(base))
	for id, doc := range base {
		d := doc
		merged[id] = &d
	}

	var writes []*pendingWrite
	for _, list := range c.pending {
		for _, pw := range list {
			if pw.m.Collection == collection {
				writes = append(writes, pw)
			}
		}
	}
	sort.Slice(writes, func(i, j int) bool { return writes[i].seq < writes[j].seq })

	for _, pw := range writes {
		next, err := Apply(merged[pw.m.ID], pw.m, pw.at)
		if err != nil {
			continue
		}
		if next == nil {
			delete(merged, pw.m.ID)
			continue
		}
		next.HasPendingWrites = true
		merged[pw.m.ID] = next
	}

	out := make([]Document, 0, len(merged))
	for _, doc := range merged {
		out = append(out, *doc)
	}
	return out
}

func (c *Client) dropPendingLocked(path string, pw *pendingWrite) {
	list := c.pending[path]
	for i, p := range list {
		if p == pw {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.pending, path)
		return
	}
	c.pending[path] = list
}

// apply records change unless the cache already holds a newer state.
func (cc *collectionCache) apply(change Change) {
	if existing, ok := cc.docs[change.ID]; ok && existing.Version > change.Version {
		return
	}
	if v, ok := cc.deleted[change.ID]; ok && v > change.Version {
		return
	}
	if change.Document == nil {
		delete(cc.docs, change.ID)
		cc.deleted[change.ID] = change.Version
		return
	}
	delete(cc.deleted, change.ID)
	cc.docs[change.ID] = change.Document.clone()
}

func cloneDocuments(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, doc := range docs {
		out[i] = doc.clone()
	}
	return out
}

// IsNotFound reports whether err is a NotFound store error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var _ Store = (*Client)(nil)

func (c *Client) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("docstore.Client{subscriptions: %d, pending: %d}", len(c.subs), len(c.pending))
}
