package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Well-known index names.
const (
	Documents     = "documents"
	Conversations = "conversations"
)

// Shard is the persisted form of one slice of an index.
type Shard struct {
	Index string
	Key   int
	Data  []byte
}

// ShardStore persists exported shards.
type ShardStore interface {
	LoadShards(ctx context.Context, index string) ([]Shard, error)
	SaveShards(ctx context.Context, shards []Shard) error
	// DeleteShards removes the shards of index whose key is fromKey or more.
	DeleteShards(ctx context.Context, index string, fromKey int) error
}

// Observer receives one call per query.
type Observer interface {
	ObserveSearch(index string, hits int, elapsed time.Duration)
}

// Service owns the named indexes of a process and their persistence
// lifecycle: Open rehydrates, Flush exports dirty shards.
type Service struct {
	store      ShardStore
	shardCount int
	logger     *zap.Logger
	observer   Observer

	mu      sync.Mutex
	indexes map[string]*Index
	opened  bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithShardCount sets how many shards each index is split into.
func WithShardCount(n int) Option {
	return func(s *Service) { s.shardCount = n }
}

// WithObserver reports query metrics.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// NewService creates a service with the Documents and Conversations indexes.
func NewService(store ShardStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		shardCount: 8,
		logger:     zap.NewNop(),
		indexes:    make(map[string]*Index),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, name := range []string{Documents, Conversations} {
		s.indexes[name] = NewIndex(name, s.shardCount)
	}
	return s
}

// Open rehydrates every registered index from the store. Calling it again
// is a no-op.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}
	for name, ix := range s.indexes {
		if err := s.load(ctx, ix); err != nil {
			return fmt.Errorf("loading index %s: %w", name, err)
		}
	}
	s.opened = true
	return nil
}

func (s *Service) load(ctx context.Context, ix *Index) error {
	shards, err := s.store.LoadShards(ctx, ix.name)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, shard := range shards {
		var entries []Entry
		if err := json.Unmarshal(shard.Data, &entries); err != nil {
			return fmt.Errorf("decoding shard %d: %w", shard.Key, err)
		}
		for _, e := range entries {
			ix.remove(e.ID)
			ix.add(e)
		}
	}
	// shard counts may have changed since export; rewrite everything once
	// and drop the keys the current count no longer uses
	for _, shard := range shards {
		if shard.Key >= ix.shardCount {
			ix.stale = true
			break
		}
	}
	if ix.stale || (len(shards) > 0 && len(shards) != ix.shardCount) {
		for i := 0; i < ix.shardCount; i++ {
			ix.dirty[i] = struct{}{}
		}
	}
	s.logger.Debug("search index rehydrated", zap.String("index", ix.name), zap.Int("entries", len(ix.entries)))
	return nil
}

// Index returns the named index, creating an empty one if needed.
func (s *Service) Index(name string) *Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	ix, ok := s.indexes[name]
	if !ok {
		ix = NewIndex(name, s.shardCount)
		s.indexes[name] = ix
	}
	return ix
}

// Search queries the named index.
func (s *Service) Search(name, query string, opts Options) []Hit {
	start := time.Now()
	hits := s.Index(name).Search(query, opts)
	if s.observer != nil {
		s.observer.ObserveSearch(name, len(hits), time.Since(start))
	}
	return hits
}

// Flush exports the dirty shards of every index to the store in one
// SaveShards call, then deletes shard keys left over from a larger shard
// count.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		batch    []Shard
		exported = make(map[string][]Shard, len(names))
	)
	for _, name := range names {
		shards, err := s.indexes[name].export()
		if err != nil {
			return fmt.Errorf("exporting index %s: %w", name, err)
		}
		if len(shards) > 0 {
			batch = append(batch, shards...)
			exported[name] = shards
		}
	}
	if len(batch) > 0 {
		if err := s.store.SaveShards(ctx, batch); err != nil {
			return fmt.Errorf("saving search shards: %w", err)
		}
		for name, shards := range exported {
			s.indexes[name].markClean(shards)
		}
	}

	for _, name := range names {
		ix := s.indexes[name]
		if !ix.isStale() {
			continue
		}
		if err := s.store.DeleteShards(ctx, name, ix.shardCount); err != nil {
			return fmt.Errorf("pruning index %s: %w", name, err)
		}
		ix.markPruned()
		s.logger.Debug("pruned stale search shards", zap.String("index", name), zap.Int("from", ix.shardCount))
	}
	return nil
}

// export serializes the dirty shards without clearing them.
func (ix *Index) export() ([]Shard, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.dirty) == 0 {
		return nil, nil
	}

	grouped := make(map[int][]Entry, len(ix.dirty))
	for key := range ix.dirty {
		grouped[key] = []Entry{}
	}
	for _, ent := range ix.entries {
		if _, ok := ix.dirty[ent.shard]; ok {
			grouped[ent.shard] = append(grouped[ent.shard], ent.entry)
		}
	}

	shards := make([]Shard, 0, len(grouped))
	for key, entries := range grouped {
		sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
		data, err := json.Marshal(entries)
		if err != nil {
			return nil, err
		}
		shards = append(shards, Shard{Index: ix.name, Key: key, Data: data})
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Key < shards[j].Key })
	return shards, nil
}

func (ix *Index) markClean(shards []Shard) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, sh := range shards {
		delete(ix.dirty, sh.Key)
	}
}

func (ix *Index) isStale() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.stale
}

func (ix *Index) markPruned() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.stale = false
}

// Dirty reports whether the index has unexported changes.
func (ix *Index) Dirty() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.dirty) > 0
}
