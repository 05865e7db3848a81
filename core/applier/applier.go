// Package applier reconciles a manifest against a live database. It creates the
// collections, indexes and seed documents a manifest declares when they are
// missing and never alters or removes anything that exists.
package applier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/manifest"
	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	"github.com/asaidimu/go-anansi-bootstrap/core/query"
	"github.com/asaidimu/go-anansi-bootstrap/core/schema"
	"github.com/asaidimu/go-anansi-bootstrap/utils"
	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options configures an Applier.
type Options struct {
	Logger *zap.Logger
	// Registerer receives the applier metrics. A private registry is used when nil.
	Registerer prometheus.Registerer
	// Now stamps seed timestamps and reports. Defaults to time.Now.
	Now func() time.Time
	// CollectStats attaches collection statistics to every report.
	CollectStats bool
}

// Applier reconciles manifests against a single database. It is meant for one
// run at a time; entries are applied sequentially.
type Applier struct {
	db           persistence.DatabaseInteractor
	logger       *zap.Logger
	now          func() time.Time
	collectStats bool
	metrics      *metrics

	bus           *events.TypedEventBus[ApplyEvent]
	subscriptions map[string]*SubscriptionInfo
	subMu         sync.RWMutex
}

// New creates an Applier over db. The interactor stays owned by the caller.
func New(db persistence.DatabaseInteractor, opts *Options) (*Applier, error) {
	if db == nil {
		return nil, fmt.Errorf("applier needs a database interactor")
	}
	if opts == nil {
		opts = &Options{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	bus, err := events.NewTypedEventBus[ApplyEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	return &Applier{
		db:            db,
		logger:        logger,
		now:           now,
		collectStats:  opts.CollectStats,
		metrics:       m,
		bus:           bus,
		subscriptions: make(map[string]*SubscriptionInfo),
	}, nil
}

// EnsureCollection creates a collection with its validator when it is missing.
// An existing collection is left as it is, whatever its validator.
func (a *Applier) EnsureCollection(ctx context.Context, spec *manifest.CollectionSpec) EntryResult {
	return a.ensureCollection(ctx, "", spec)
}

// EnsureIndex creates an index when no index of the same name exists on the
// collection.
func (a *Applier) EnsureIndex(ctx context.Context, spec *manifest.IndexSpec) EntryResult {
	return a.ensureIndex(ctx, "", spec)
}

// EnsureSeed inserts a seed document unless a document with the same natural key
// exists. Existing documents are never overwritten. Apply also hands the declared
// validator of the collection to the driver; EnsureSeed has none to pass.
func (a *Applier) EnsureSeed(ctx context.Context, spec *manifest.SeedRecord) EntryResult {
	return a.ensureSeed(ctx, "", spec, nil)
}

func (a *Applier) ensureCollection(ctx context.Context, runID string, spec *manifest.CollectionSpec) EntryResult {
	result := EntryResult{Kind: manifest.KindCollection, Collection: spec.Name}
	return a.track(runID, result, func(r *EntryResult) error {
		exists, err := a.db.CollectionExists(ctx, spec.Name)
		if err != nil {
			return &CreationError{Collection: spec.Name, Err: err}
		}
		if exists {
			r.Outcome = OutcomeAlreadyPresent
			return nil
		}

		err = a.db.CreateCollection(ctx, spec.Name, spec.Options())
		switch {
		case err == nil:
			r.Outcome = OutcomeCreated
		case errors.Is(err, persistence.ErrCollectionExists):
			r.Outcome = OutcomeAlreadyPresent
			r.Detail = "created concurrently"
		default:
			return &CreationError{Collection: spec.Name, Err: err}
		}
		return nil
	})
}

func (a *Applier) ensureIndex(ctx context.Context, runID string, spec *manifest.IndexSpec) EntryResult {
	result := EntryResult{Kind: manifest.KindIndex, Collection: spec.Collection, Name: spec.Name}
	return a.track(runID, result, func(r *EntryResult) error {
		live, err := a.db.ListIndexes(ctx, spec.Collection)
		if err != nil {
			return &IndexCreationError{Collection: spec.Collection, Index: spec.Name, Err: err}
		}
		for _, index := range live {
			if index.Name != spec.Name {
				continue
			}
			r.Outcome = OutcomeAlreadyPresent
			if !index.SameShape(spec.IndexDefinition) {
				r.Detail = fmt.Sprintf("live index differs: keys %s unique=%t, declared keys %s unique=%t",
					index.Keys, index.Unique, spec.Keys, spec.Unique)
				a.logger.Warn("Index exists with a different definition, leaving it unchanged",
					zap.String("collection", spec.Collection), zap.String("index", spec.Name), zap.String("detail", r.Detail))
			}
			return nil
		}

		err = a.db.CreateIndex(ctx, spec.Collection, spec.IndexDefinition)
		switch {
		case err == nil:
			r.Outcome = OutcomeCreated
		case errors.Is(err, persistence.ErrDuplicateKey):
			return &IndexConflictError{Collection: spec.Collection, Index: spec.Name, Err: err}
		case errors.Is(err, persistence.ErrIndexExists):
			r.Outcome = OutcomeAlreadyPresent
			r.Detail = err.Error()
		default:
			return &IndexCreationError{Collection: spec.Collection, Index: spec.Name, Err: err}
		}
		return nil
	})
}

func (a *Applier) ensureSeed(ctx context.Context, runID string, spec *manifest.SeedRecord, validator *schema.SchemaDefinition) EntryResult {
	values := make(map[string]any, len(spec.Key))
	for _, key := range spec.Key {
		values[key], _ = utils.LookupPath(spec.Document, key)
	}
	key := seedKey(spec.Key, values)

	result := EntryResult{Kind: manifest.KindSeed, Collection: spec.Collection, Name: key}
	return a.track(runID, result, func(r *EntryResult) error {
		dsl := query.MatchAll(spec.Key, values)
		_, found, err := a.db.FindDocument(ctx, spec.Collection, &dsl)
		if err != nil {
			return &SeedConflictError{Collection: spec.Collection, Key: key, Err: err}
		}
		if found {
			r.Outcome = OutcomeAlreadyPresent
			return nil
		}

		doc := utils.CloneDocument(spec.Document)
		now := a.now().UTC()
		for _, field := range spec.Timestamps {
			if _, ok := utils.LookupPath(doc, field); !ok {
				utils.SetPath(doc, field, now)
			}
		}

		err = a.db.InsertDocument(ctx, spec.Collection, doc, &persistence.InsertOptions{Validator: validator})
		switch {
		case err == nil:
			r.Outcome = OutcomeCreated
		case errors.Is(err, persistence.ErrDuplicateKey):
			return &SeedConflictError{Collection: spec.Collection, Key: key, Err: err}
		default:
			return &SeedInsertError{Collection: spec.Collection, Key: key, Err: err}
		}
		return nil
	})
}

// track runs one entry, recording its duration, outcome, log line, metrics and
// events.
func (a *Applier) track(runID string, result EntryResult, fn func(r *EntryResult) error) EntryResult {
	start := a.now()
	started := result
	a.emit(ApplyEvent{Type: EntryStart, RunID: runID, Entry: &started})

	err := fn(&result)
	elapsed := a.now().Sub(start)
	result.DurationMs = elapsed.Milliseconds()
	duration := result.DurationMs

	fields := []zap.Field{zap.String("collection", result.Collection), zap.String("entry", result.ID())}
	if result.Kind == manifest.KindIndex {
		fields = append(fields, zap.String("index", result.Name))
	}

	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		result.Error = err.Error()
		var hinter Hinter
		if errors.As(err, &hinter) {
			result.Hint = hinter.Hint()
		}
		a.logger.Error("Entry failed", append(fields, zap.Error(err))...)
	} else if result.Outcome == OutcomeCreated {
		a.logger.Info("Entry created", fields...)
	} else {
		a.logger.Debug("Entry already present", fields...)
	}

	a.metrics.observeEntry(result, elapsed)

	done := result
	event := ApplyEvent{Type: EntrySuccess, RunID: runID, Entry: &done, Duration: &duration}
	if err != nil {
		event.Type = EntryFailed
		event.Error = &result.Error
	}
	a.emit(event)
	return result
}

// Apply reconciles a manifest: every collection, then every index, then every
// seed, each in manifest order. Entry failures are recorded in the report and do
// not stop the run. The returned error is a *ConnectionError when the database is
// unreachable, or the context error when ctx ends; the partial report is returned
// with it.
func (a *Applier) Apply(ctx context.Context, m *manifest.Manifest) (*ApplyReport, error) {
	if m == nil {
		return nil, fmt.Errorf("manifest is nil")
	}

	report := &ApplyReport{
		RunID:     uuid.New().String(),
		Manifest:  m.Name,
		Database:  m.Database,
		StartedAt: a.now().UTC(),
		Entries:   make([]EntryResult, 0, len(m.Entries)),
	}
	a.logger.Info("Applying manifest", zap.String("manifest", m.Name), zap.String("runId", report.RunID), zap.Int("entries", len(m.Entries)))
	a.emit(ApplyEvent{Type: ApplyStart, RunID: report.RunID, Manifest: m.Name})

	if err := a.db.Ping(ctx); err != nil {
		return a.finish(report, &ConnectionError{Err: err})
	}

	for _, run := range a.plan(m) {
		if err := ctx.Err(); err != nil {
			return a.finish(report, err)
		}
		result := run(ctx, report.RunID)
		report.Entries = append(report.Entries, result)
		if errors.Is(result.Err, persistence.ErrUnavailable) {
			return a.finish(report, &ConnectionError{Err: result.Err})
		}
	}

	if a.collectStats {
		stats, err := a.Stats(ctx, m)
		if err != nil {
			a.logger.Warn("Could not collect statistics", zap.Error(err))
		} else {
			report.Stats = stats
		}
	}
	return a.finish(report, nil)
}

type step func(ctx context.Context, runID string) EntryResult

// plan orders the entries of a manifest by phase.
func (a *Applier) plan(m *manifest.Manifest) []step {
	var steps []step
	for _, spec := range m.Collections() {
		steps = append(steps, func(ctx context.Context, runID string) EntryResult { return a.ensureCollection(ctx, runID, spec) })
	}
	for _, spec := range m.Indexes() {
		steps = append(steps, func(ctx context.Context, runID string) EntryResult { return a.ensureIndex(ctx, runID, spec) })
	}
	validators := make(map[string]*schema.SchemaDefinition)
	for _, spec := range m.Collections() {
		validators[spec.Name] = spec.Validator
	}
	for _, spec := range m.Seeds() {
		validator := validators[spec.Collection]
		steps = append(steps, func(ctx context.Context, runID string) EntryResult {
			return a.ensureSeed(ctx, runID, spec, validator)
		})
	}
	return steps
}

func (a *Applier) finish(report *ApplyReport, err error) (*ApplyReport, error) {
	report.FinishedAt = a.now().UTC()
	duration := report.Duration().Milliseconds()

	event := ApplyEvent{Type: ApplySuccess, RunID: report.RunID, Manifest: report.Manifest, Report: report, Duration: &duration}
	fields := []zap.Field{
		zap.String("manifest", report.Manifest),
		zap.String("runId", report.RunID),
		zap.Int("created", report.Count(OutcomeCreated)),
		zap.Int("alreadyPresent", report.Count(OutcomeAlreadyPresent)),
		zap.Int("failed", report.Count(OutcomeFailed)),
		zap.Int64("durationMs", duration),
	}

	switch {
	case err != nil:
		a.metrics.observeRun("error")
		msg := err.Error()
		event.Type = ApplyFailed
		event.Error = &msg
		a.logger.Error("Manifest application aborted", append(fields, zap.Error(err))...)
	case report.HasFailures():
		a.metrics.observeRun("failed")
		event.Type = ApplyFailed
		a.logger.Warn("Manifest applied with failures", fields...)
	default:
		a.metrics.observeRun("success")
		a.logger.Info("Manifest applied", fields...)
	}
	a.emit(event)
	return report, err
}

// Stats reports the statistics of every collection the manifest declares or
// references. Collections that do not exist are skipped.
func (a *Applier) Stats(ctx context.Context, m *manifest.Manifest) ([]persistence.CollectionStats, error) {
	var out []persistence.CollectionStats
	for _, name := range m.CollectionNames() {
		stats, err := a.db.CollectionStats(ctx, name)
		if errors.Is(err, persistence.ErrCollectionNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read stats of %s: %w", name, err)
		}
		out = append(out, *stats)
	}
	return out, nil
}
