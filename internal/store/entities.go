// Package store implements the collection-oriented document store on top of a
// key-value backend: one JSON array per collection, read and rewritten whole
// under a per-collection lock.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"mindfulspace.app/backend/internal/kv"
	"mindfulspace.app/backend/internal/logging"
)

// CollectionPolicy configures optional behavior of a named collection.
type CollectionPolicy struct {
	// Seed is written the first time the collection is accessed.
	Seed []Document
	// UniqueKey names a string field whose non-empty values are unique. Create
	// merges into the record holding the same value instead of appending.
	UniqueKey string
}

// Database is the shared state behind every Collection handle.
type Database struct {
	kv  kv.Store
	log *logging.Logger

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	policies map[string]CollectionPolicy
}

type Option func(*Database)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(db *Database) { db.now = now }
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(gen func() string) Option {
	return func(db *Database) { db.newID = gen }
}

// WithPolicies registers policies up front.
func WithPolicies(p map[string]CollectionPolicy) Option {
	return func(db *Database) {
		for name, pol := range p {
			db.policies[name] = pol
		}
	}
}

func NewDatabase(store kv.Store, log *logging.Logger, opts ...Option) *Database {
	db := &Database{
		kv:       store,
		log:      log.Sub("store"),
		now:      time.Now,
		newID:    newID,
		locks:    make(map[string]*sync.Mutex),
		policies: make(map[string]CollectionPolicy),
	}
	for _, o := range opts {
		o(db)
	}
	return db
}

// Register sets the policy for a collection, replacing any previous one.
func (db *Database) Register(name string, p CollectionPolicy) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.policies[name] = p
}

// Collections returns the names of all registered collections.
func (db *Database) Collections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := make([]string, 0, len(db.policies))
	for n := range db.policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// KV exposes the underlying key-value store.
func (db *Database) KV() kv.Store { return db.kv }

func (db *Database) policy(name string) CollectionPolicy {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.policies[name]
}

func (db *Database) lockFor(key string) *sync.Mutex {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.locks[key]
	if !ok {
		l = &sync.Mutex{}
		db.locks[key] = l
	}
	return l
}

func (db *Database) timestamp() string {
	return db.now().UTC().Format(time.RFC3339Nano)
}

// Collection returns a handle for the named collection. Handles are cheap and
// share locks through the Database. The name "conversations" belongs to the
// conversation log; every operation on it fails validation.
func (db *Database) Collection(name string) *Collection {
	return &Collection{db: db, name: name, key: "db_" + name}
}

type Collection struct {
	db   *Database
	name string
	key  string
}

func (c *Collection) Name() string { return c.name }

// load reads the collection. Callers must hold the collection lock. A
// collection that has never been written gets its seed set persisted here.
func (c *Collection) load(ctx context.Context) ([]Document, error) {
	if c.key == conversationsKey {
		return nil, invalid("collection", c.name+" is reserved for the conversation log")
	}
	raw, ok, err := c.db.kv.Get(ctx, c.key)
	if err != nil {
		return nil, &StorageError{Op: "read", Key: c.key, Err: err}
	}
	if !ok {
		seed := c.db.policy(c.name).Seed
		if len(seed) == 0 {
			return []Document{}, nil
		}
		items, err := cloneDocuments(seed)
		if err != nil {
			return nil, err
		}
		if err := c.save(ctx, items); err != nil {
			return nil, err
		}
		c.db.log.Info().Str("collection", c.name).Int("count", len(items)).Msg("seeded collection")
		return items, nil
	}

	var items []Document
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, &StorageError{Op: "decode", Key: c.key, Err: err}
	}
	if items == nil {
		items = []Document{}
	}
	return items, nil
}

func (c *Collection) save(ctx context.Context, items []Document) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return &StorageError{Op: "encode", Key: c.key, Err: err}
	}
	if err := c.db.kv.Set(ctx, c.key, string(raw)); err != nil {
		return &StorageError{Op: "write", Key: c.key, Err: err}
	}
	return nil
}

func (c *Collection) lock() func() {
	l := c.db.lockFor(c.key)
	l.Lock()
	return l.Unlock
}

// List returns every record, optionally ordered. Unknown orderBy values leave
// the persisted order untouched.
func (c *Collection) List(ctx context.Context, orderBy string) ([]Document, error) {
	unlock := c.lock()
	items, err := c.load(ctx)
	unlock()
	if err != nil {
		return nil, err
	}
	sortDocuments(items, orderBy)
	return items, nil
}

// Seed forces the first-access seeding without returning the records.
func (c *Collection) Seed(ctx context.Context) error {
	_, err := c.List(ctx, "")
	return err
}

// Get returns the record with the given id, or nil.
func (c *Collection) Get(ctx context.Context, id string) (Document, error) {
	unlock := c.lock()
	defer unlock()
	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexByID(items, id); i >= 0 {
		return items[i], nil
	}
	return nil, nil
}

// FindBy returns the first record whose string field equals value, or nil.
func (c *Collection) FindBy(ctx context.Context, field, value string) (Document, error) {
	unlock := c.lock()
	defer unlock()
	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexByField(items, field, value); i >= 0 {
		return items[i], nil
	}
	return nil, nil
}

// Create appends a new record with a fresh id and creation timestamp. When the
// collection has a unique key and data carries a value already present, the
// existing record is updated in place instead and keeps its id.
func (c *Collection) Create(ctx context.Context, data Document) (Document, error) {
	return c.create(ctx, data, true)
}

// Insert is Create without the merge: a unique key clash yields ErrDuplicate.
func (c *Collection) Insert(ctx context.Context, data Document) (Document, error) {
	return c.create(ctx, data, false)
}

func (c *Collection) create(ctx context.Context, data Document, merge bool) (Document, error) {
	if c.name == "" {
		return nil, invalid("collection", "name is required")
	}
	uniqueKey := c.db.policy(c.name).UniqueKey

	unlock := c.lock()
	defer unlock()
	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	if value, ok := uniqueValue(data, uniqueKey); ok {
		if i := indexByField(items, uniqueKey, value); i >= 0 {
			if !merge {
				return nil, fmt.Errorf("%s %s=%q: %w", c.name, uniqueKey, value, ErrDuplicate)
			}
			merged, err := mergeDocument(items[i], data)
			if err != nil {
				return nil, err
			}
			items[i] = merged
			if err := c.save(ctx, items); err != nil {
				return nil, err
			}
			c.db.log.Debug().Str("collection", c.name).Str("id", merged.ID()).Msg("merged on unique key")
			return merged, nil
		}
	}

	item := Document{}
	for k, v := range data {
		item[k] = v
	}
	item[FieldID] = c.db.newID()
	item[FieldCreatedDate] = c.db.timestamp()
	item, err = normalize(item)
	if err != nil {
		return nil, err
	}

	items = append(items, item)
	if err := c.save(ctx, items); err != nil {
		return nil, err
	}
	return item, nil
}

// Update shallow-merges patch over the record with the given id. It returns
// nil, nil when no such record exists.
func (c *Collection) Update(ctx context.Context, id string, patch Document) (Document, error) {
	uniqueKey := c.db.policy(c.name).UniqueKey

	unlock := c.lock()
	defer unlock()
	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	i := indexByID(items, id)
	if i < 0 {
		return nil, nil
	}
	if len(patch) == 0 {
		return items[i], nil
	}
	if value, ok := uniqueValue(patch, uniqueKey); ok {
		if j := indexByField(items, uniqueKey, value); j >= 0 && j != i {
			return nil, fmt.Errorf("%s %s=%q: %w", c.name, uniqueKey, value, ErrDuplicate)
		}
	}

	merged, err := mergeDocument(items[i], patch)
	if err != nil {
		return nil, err
	}
	items[i] = merged
	if err := c.save(ctx, items); err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete removes the record and reports whether it existed. An emptied
// collection stays empty; it is never seeded again.
func (c *Collection) Delete(ctx context.Context, id string) (bool, error) {
	unlock := c.lock()
	defer unlock()
	items, err := c.load(ctx)
	if err != nil {
		return false, err
	}
	i := indexByID(items, id)
	if i < 0 {
		return false, nil
	}
	items = append(items[:i], items[i+1:]...)
	if err := c.save(ctx, items); err != nil {
		return false, err
	}
	return true, nil
}

// mergeDocument returns base overlaid with patch. The store-owned fields of
// base always survive.
func mergeDocument(base, patch Document) (Document, error) {
	out := make(Document, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if k == FieldID || k == FieldCreatedDate {
			continue
		}
		out[k] = v
	}
	return normalize(out)
}

// normalize round-trips a document through JSON so callers see exactly what a
// later List will decode.
func normalize(d Document) (Document, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, invalid("", fmt.Sprintf("payload is not serializable: %v", err))
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneDocuments(docs []Document) ([]Document, error) {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		n, err := normalize(d)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func uniqueValue(d Document, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	v, ok := d[key].(string)
	return v, ok && v != ""
}

func indexByID(items []Document, id string) int {
	if id == "" {
		return -1
	}
	for i, it := range items {
		if it.ID() == id {
			return i
		}
	}
	return -1
}

func indexByField(items []Document, field, value string) int {
	for i, it := range items {
		if v, ok := it[field].(string); ok && v == value {
			return i
		}
	}
	return -1
}
