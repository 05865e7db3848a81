package applier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/core/query"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"github.com/asaidimu/go-anansi-bootstrap/utils"
)

type fakeCollection struct {
	options persistence.CollectionOptions
	indexes []schema.IndexDefinition
	docs    []schema.Document
}

// fakeDB is an in-memory interactor. failures holds scripted errors keyed by
// "<method>:<collection>" or "<method>:<collection>.<index>".
type fakeDB struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	pingErr     error
	failures    map[string]error
	onCall      func(call string)
	calls       []string
	inserts     []*persistence.InsertOptions
}

var _ persistence.DatabaseInteractor = (*fakeDB)(nil)

func newFakeDB() *fakeDB {
	return &fakeDB{
		collections: make(map[string]*fakeCollection),
		failures:    make(map[string]error),
	}
}

func (f *fakeDB) record(call string) error {
	f.calls = append(f.calls, call)
	if f.onCall != nil {
		f.onCall(call)
	}
	return f.failures[call]
}

func (f *fakeDB) ensure(name string) *fakeCollection {
	c, ok := f.collections[name]
	if !ok {
		c = &fakeCollection{}
		f.collections[name] = c
	}
	return c
}

func (f *fakeDB) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeDB) CollectionExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CollectionExists:" + name); err != nil {
		return false, err
	}
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeDB) CreateCollection(ctx context.Context, name string, options persistence.CollectionOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCollection:" + name); err != nil {
		return err
	}
	if _, ok := f.collections[name]; ok {
		return fmt.Errorf("%w: %s", persistence.ErrCollectionExists, name)
	}
	f.collections[name] = &fakeCollection{options: options}
	return nil
}

func (f *fakeDB) ListIndexes(ctx context.Context, collection string) ([]schema.IndexDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListIndexes:" + collection); err != nil {
		return nil, err
	}
	c, ok := f.collections[collection]
	if !ok {
		return nil, nil
	}
	return append([]schema.IndexDefinition(nil), c.indexes...), nil
}

func (f *fakeDB) CreateIndex(ctx context.Context, collection string, index schema.IndexDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateIndex:" + collection + "." + index.Name); err != nil {
		return err
	}
	c := f.ensure(collection)
	for _, other := range c.indexes {
		if other.Name == index.Name || other.SameShape(index) {
			return fmt.Errorf("%w: %s", persistence.ErrIndexExists, index.Name)
		}
	}
	if index.Unique {
		seen := make(map[string]bool)
		for _, doc := range c.docs {
			key := uniqueKey(index, doc)
			if seen[key] {
				return persistence.WrapDriverError(persistence.ErrDuplicateKey,
					fmt.Errorf("E11000 duplicate key error collection: %s index: %s dup key: %s", collection, index.Name, key))
			}
			seen[key] = true
		}
	}
	c.indexes = append(c.indexes, index)
	return nil
}

func (f *fakeDB) FindDocument(ctx context.Context, collection string, dsl *query.QueryDSL) (schema.Document, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FindDocument:" + collection); err != nil {
		return nil, false, err
	}
	c, ok := f.collections[collection]
	if !ok {
		return nil, false, nil
	}
	for _, doc := range c.docs {
		matched, err := query.Match(dsl.Filters, doc)
		if err != nil {
			return nil, false, err
		}
		if matched {
			return utils.CloneDocument(doc), true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeDB) InsertDocument(ctx context.Context, collection string, doc schema.Document, options *persistence.InsertOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("InsertDocument:" + collection); err != nil {
		return err
	}
	f.inserts = append(f.inserts, options)
	c := f.ensure(collection)
	if (options == nil || !options.BypassValidation) && c.options.Validator != nil {
		if valid, issues := schema.NewValidator(c.options.Validator).Validate(doc); !valid {
			return &persistence.DocumentValidationError{Collection: collection, Issues: issues}
		}
	}
	for _, index := range c.indexes {
		if !index.Unique {
			continue
		}
		key := uniqueKey(index, doc)
		for _, other := range c.docs {
			if uniqueKey(index, other) == key {
				return persistence.WrapDriverError(persistence.ErrDuplicateKey, fmt.Errorf("E11000 duplicate key error index: %s", index.Name))
			}
		}
	}
	c.docs = append(c.docs, utils.CloneDocument(doc))
	return nil
}

func (f *fakeDB) CollectionStats(ctx context.Context, collection string) (*persistence.CollectionStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrCollectionNotFound, collection)
	}
	sizes := make(map[string]int64, len(c.indexes))
	for _, index := range c.indexes {
		sizes[index.Name] = int64(len(c.docs)) * 16
	}
	return &persistence.CollectionStats{Name: collection, Documents: int64(len(c.docs)), IndexSizes: sizes}, nil
}

func (f *fakeDB) Close(ctx context.Context) error {
	return nil
}

// insert seeds a document directly, without validation.
func (f *fakeDB) insert(collection string, doc schema.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.ensure(collection)
	c.docs = append(c.docs, doc)
}

func (f *fakeDB) docs(collection string) []schema.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.collections[collection]; ok {
		return c.docs
	}
	return nil
}

func uniqueKey(index schema.IndexDefinition, doc schema.Document) string {
	parts := make([]string, len(index.Keys))
	for i, key := range index.Keys {
		v, _ := utils.LookupPath(doc, key.Field)
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, "|")
}
