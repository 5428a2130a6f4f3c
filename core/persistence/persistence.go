// Package persistence is the versioned store: collections with chains of
// schema versions and documents with chains of content versions. The latest
// version of a document is stored as a full snapshot and every version as a
// forward JSON Patch from its predecessor, so any version can be rebuilt by
// replaying deltas. Summaries and blocking keys are derived through the
// sandbox on a best-effort basis; migrations run in the sandbox too but abort
// the whole schema change on the first failure.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asaidimu/go-events"
	"go.uber.org/zap"

	"github.com/asaidimu/go-quire/blob"
	"github.com/asaidimu/go-quire/core/ids"
	"github.com/asaidimu/go-quire/core/query"
	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/search"
)

// Recorder receives one observation per mutating operation.
type Recorder interface {
	ObserveWrite(operation, outcome string, elapsed time.Duration)
}

// Persistence is the main implementation of the PersistenceInterface. It orchestrates
// interactions with the database through a DatabaseInteractor, runs derived
// computations in the sandbox, keeps the search index current and handles
// event subscriptions for observability.
type Persistence struct {
	interactor    DatabaseInteractor
	sandbox       *sandbox.Sandbox
	blobs         blob.Store
	search        *search.Service
	filters       *query.DataProcessor
	ids           ids.Generator
	now           func() time.Time
	recorder      Recorder
	logger        *zap.Logger
	subscriptions map[string]*SubscriptionInfo // To store unsubscribe functions
	subMu         sync.RWMutex                 // Mutex to protect subscriptions map
	bus           *events.TypedEventBus[PersistenceEvent]
}

var _ PersistenceInterface = (*Persistence)(nil)

// Option configures a Persistence.
type Option func(*Persistence)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Persistence) { p.logger = logger }
}

func WithSandbox(sb *sandbox.Sandbox) Option {
	return func(p *Persistence) { p.sandbox = sb }
}

func WithBlobStore(store blob.Store) Option {
	return func(p *Persistence) { p.blobs = store }
}

// WithSearch replaces the search service. By default the service persists
// its shards through the interactor.
func WithSearch(svc *search.Service) Option {
	return func(p *Persistence) { p.search = svc }
}

func WithIDGenerator(gen ids.Generator) Option {
	return func(p *Persistence) { p.ids = gen }
}

func WithClock(now func() time.Time) Option {
	return func(p *Persistence) { p.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(p *Persistence) { p.recorder = r }
}

// NewPersistence creates a new instance of the Persistence service. Call Open
// before serving searches.
func NewPersistence(interactor DatabaseInteractor, opts ...Option) (*Persistence, error) {
	bus, err := events.NewTypedEventBus[PersistenceEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	p := &Persistence{
		interactor:    interactor,
		ids:           ids.UUIDGenerator{},
		now:           time.Now,
		logger:        zap.NewNop(),
		subscriptions: make(map[string]*SubscriptionInfo),
		bus:           bus,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sandbox == nil {
		p.sandbox = sandbox.New(sandbox.Options{Logger: p.logger})
	}
	if p.blobs == nil {
		p.blobs = blob.NewMemoryStore()
	}
	p.filters = query.NewDataProcessor(p.logger)
	if p.search == nil {
		p.search = search.NewService(interactor, search.WithLogger(p.logger))
	}
	return p, nil
}

// Open rehydrates the search index from its persisted shards.
func (p *Persistence) Open(ctx context.Context) error {
	if err := p.search.Open(ctx); err != nil {
		return fmt.Errorf("opening search index: %w", err)
	}
	return nil
}

// Filters exposes the processor ListDocuments evaluates filters with, so
// callers can register custom operators.
func (p *Persistence) Filters() *query.DataProcessor {
	return p.filters
}

// SearchService exposes the shared search service, for indexes owned by
// other components such as conversations.
func (p *Persistence) SearchService() *search.Service {
	return p.search
}

func (p *Persistence) timestamp() time.Time {
	return p.now().UTC()
}

// flushSearch exports dirty shards. A failed flush leaves them dirty for the
// next batch and never fails the write that caused it.
func (p *Persistence) flushSearch(ctx context.Context) {
	if err := p.search.Flush(ctx); err != nil {
		p.logger.Warn("search index flush failed", zap.Error(err))
	}
}
