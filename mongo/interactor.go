// Package mongo implements persistence.DatabaseInteractor on MongoDB. Validators
// become $jsonSchema documents and indexes are created through createIndexes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/core/query"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Config holds the connection settings of a MongoDB deployment.
type Config struct {
	URI        string
	Database   string
	Username   string
	Password   string
	AuthSource string
}

// MongoInteractor implements persistence.DatabaseInteractor for MongoDB.
type MongoInteractor struct {
	client  *mongodriver.Client
	db      *mongodriver.Database
	logger  *zap.Logger
	options *persistence.InteractorOptions

	mu sync.Mutex
	// validators remembers the validators of collections created through this
	// interactor, used to normalize inserted documents.
	validators map[string]*schema.SchemaDefinition
}

var _ persistence.DatabaseInteractor = (*MongoInteractor)(nil)

// Connect dials the deployment described by cfg. The connection is verified by
// the first Ping, not here.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger, interactorOptions *persistence.InteractorOptions) (*MongoInteractor, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database name is empty")
	}
	clientOptions := connectOptions(cfg)
	client, err := mongodriver.Connect(ctx, clientOptions)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to connect to mongodb: %w", err))
	}
	return NewMongoInteractor(client, cfg.Database, logger, interactorOptions), nil
}

func connectOptions(cfg Config) *options.ClientOptions {
	clientOptions := options.Client().ApplyURI(cfg.URI)
	if cfg.Username != "" {
		credential := options.Credential{Username: cfg.Username, Password: cfg.Password, AuthSource: cfg.AuthSource}
		if credential.AuthSource == "" {
			credential.AuthSource = "admin"
		}
		clientOptions.SetAuth(credential)
	}
	return clientOptions
}

// NewMongoInteractor wraps a connected client.
func NewMongoInteractor(client *mongodriver.Client, database string, logger *zap.Logger, interactorOptions *persistence.InteractorOptions) *MongoInteractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interactorOptions == nil {
		interactorOptions = &persistence.InteractorOptions{}
	}
	return &MongoInteractor{
		client:     client,
		db:         client.Database(database),
		logger:     logger,
		options:    interactorOptions,
		validators: make(map[string]*schema.SchemaDefinition),
	}
}

func (m *MongoInteractor) collectionName(name string) string {
	return m.options.CollectionPrefix + name
}

func (m *MongoInteractor) collection(name string) *mongodriver.Collection {
	return m.db.Collection(m.collectionName(name))
}

// Ping verifies the primary is reachable.
func (m *MongoInteractor) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return persistence.WrapDriverError(persistence.ErrUnavailable, err)
	}
	return nil
}

// Close disconnects the client.
func (m *MongoInteractor) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// CollectionExists checks if a collection exists in the database.
func (m *MongoInteractor) CollectionExists(ctx context.Context, name string) (bool, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: m.collectionName(name)}})
	if err != nil {
		return false, mapError(fmt.Errorf("failed to list collections: %w", err))
	}
	return len(names) > 0, nil
}

// CreateCollection creates a collection and attaches its validator as $jsonSchema.
func (m *MongoInteractor) CreateCollection(ctx context.Context, name string, opts persistence.CollectionOptions) error {
	if name == "" {
		return fmt.Errorf("%w: collection name is empty", persistence.ErrInvalidDefinition)
	}
	if err := opts.Validator.CheckError(); err != nil {
		return fmt.Errorf("%w: %w", persistence.ErrInvalidDefinition, err)
	}

	createOptions := options.CreateCollection()
	if opts.Validator != nil {
		createOptions.SetValidator(jsonSchemaValidator(opts.Validator))
	}
	if opts.ValidationLevel != "" {
		createOptions.SetValidationLevel(string(opts.ValidationLevel))
	}
	if opts.ValidationAction != "" {
		createOptions.SetValidationAction(string(opts.ValidationAction))
	}

	if err := m.db.CreateCollection(ctx, m.collectionName(name), createOptions); err != nil {
		return mapError(fmt.Errorf("failed to create collection %s: %w", name, err))
	}

	m.mu.Lock()
	m.validators[name] = opts.Validator
	m.mu.Unlock()

	m.logger.Info("Created collection", zap.String("collection", name), zap.Bool("validator", opts.Validator != nil))
	return nil
}

type listedIndex struct {
	Name       string `bson:"name"`
	Key        bson.D `bson:"key"`
	Unique     bool   `bson:"unique,omitempty"`
	Background bool   `bson:"background,omitempty"`
}

// ListIndexes returns the indexes of a collection without the implicit _id index.
func (m *MongoInteractor) ListIndexes(ctx context.Context, collection string) ([]schema.IndexDefinition, error) {
	cursor, err := m.collection(collection).Indexes().List(ctx)
	if err != nil {
		if errors.Is(mapError(err), persistence.ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, mapError(fmt.Errorf("failed to list indexes of %s: %w", collection, err))
	}
	defer cursor.Close(ctx)

	var indexes []schema.IndexDefinition
	for cursor.Next(ctx) {
		var listed listedIndex
		if err := cursor.Decode(&listed); err != nil {
			return nil, fmt.Errorf("failed to decode index of %s: %w", collection, err)
		}
		if listed.Name == "_id_" {
			continue
		}
		indexes = append(indexes, schema.IndexDefinition{
			Name:       listed.Name,
			Keys:       keyPattern(listed.Key),
			Unique:     listed.Unique,
			Background: listed.Background,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, mapError(fmt.Errorf("failed to list indexes of %s: %w", collection, err))
	}
	return indexes, nil
}

// CreateIndex creates a single index. The server treats an identical index as a
// no-op, so existing indexes are checked first to report ErrIndexExists.
func (m *MongoInteractor) CreateIndex(ctx context.Context, collection string, index schema.IndexDefinition) error {
	if index.Name == "" || len(index.Keys) == 0 {
		return fmt.Errorf("%w: index needs a name and keys", persistence.ErrInvalidDefinition)
	}

	existing, err := m.ListIndexes(ctx, collection)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.Name == index.Name || other.SameShape(index) {
			return fmt.Errorf("%w: index %s on %s", persistence.ErrIndexExists, other.Name, collection)
		}
	}

	model := mongodriver.IndexModel{
		Keys:    indexKeys(index.Keys),
		Options: options.Index().SetName(index.Name).SetUnique(index.Unique).SetBackground(index.Background),
	}
	m.logger.Debug("Creating index", zap.String("collection", collection), zap.String("index", index.Name), zap.Stringer("keys", index.Keys))
	if _, err := m.collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return mapError(fmt.Errorf("failed to create index %s on %s: %w", index.Name, collection, err))
	}
	return nil
}

// FindDocument returns the first document matching the query.
func (m *MongoInteractor) FindDocument(ctx context.Context, collection string, dsl *query.QueryDSL) (schema.Document, bool, error) {
	var filter *query.QueryFilter
	if dsl != nil {
		filter = dsl.Filters
	}
	f, err := buildFilter(filter)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build filter: %w", err)
	}

	var raw bson.M
	err = m.collection(collection).FindOne(ctx, f).Decode(&raw)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapError(fmt.Errorf("failed to find document in %s: %w", collection, err))
	}
	return fromBSON(raw).(map[string]any), true, nil
}

// InsertDocument inserts a single document. Validation is enforced by the server.
func (m *MongoInteractor) InsertDocument(ctx context.Context, collection string, doc schema.Document, opts *persistence.InsertOptions) error {
	validator := m.insertValidator(collection, opts)

	insertOptions := options.InsertOne()
	if opts != nil && opts.BypassValidation {
		insertOptions.SetBypassDocumentValidation(true)
	}

	if _, err := m.collection(collection).InsertOne(ctx, normalizeDocument(doc, validator), insertOptions); err != nil {
		return mapError(fmt.Errorf("failed to insert document into %s: %w", collection, err))
	}
	return nil
}

// insertValidator picks the validator used to shape an inserted document: the one
// declared by the caller, else the one this interactor created the collection with.
func (m *MongoInteractor) insertValidator(collection string, opts *persistence.InsertOptions) *schema.SchemaDefinition {
	if opts != nil && opts.Validator != nil {
		return opts.Validator
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validators[collection]
}

// CollectionStats runs collStats for a collection.
func (m *MongoInteractor) CollectionStats(ctx context.Context, collection string) (*persistence.CollectionStats, error) {
	exists, err := m.CollectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", persistence.ErrCollectionNotFound, collection)
	}

	var raw bson.M
	err = m.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: m.collectionName(collection)}}).Decode(&raw)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to read stats of %s: %w", collection, err))
	}
	return statsFromCommand(collection, raw), nil
}

func statsFromCommand(collection string, raw bson.M) *persistence.CollectionStats {
	stats := &persistence.CollectionStats{Name: collection, IndexSizes: map[string]int64{}}
	if n, ok := numberOf(raw["count"]); ok {
		stats.Documents = int64(n)
	}
	if n, ok := numberOf(raw["storageSize"]); ok {
		stats.StorageSize = int64(n)
	}
	if n, ok := numberOf(raw["totalIndexSize"]); ok {
		stats.TotalIndexSize = int64(n)
	}
	// The implicit _id_ index is left out, as in ListIndexes.
	if sizes, ok := raw["indexSizes"].(bson.M); ok {
		stats.TotalIndexSize = 0
		for name, size := range sizes {
			if name == "_id_" {
				continue
			}
			if n, ok := numberOf(size); ok {
				stats.IndexSizes[name] = int64(n)
				stats.TotalIndexSize += int64(n)
			}
		}
	}
	return stats
}
