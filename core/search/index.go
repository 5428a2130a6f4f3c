// Package search is an in-process lexical index over the text derived from
// documents and conversations. Terms are lowercased and accent-folded, query
// terms match by prefix, and consecutive query terms that appear next to
// each other in the text score higher. Indexes are persisted as shards
// through a ShardStore and rehydrated explicitly by Service.Open.
package search

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

const (
	exactWeight     = 2.0
	prefixWeight    = 1.0
	adjacencyWeight = 1.5

	// DefaultLimit caps the hits returned when Options.Limit is zero.
	DefaultLimit = 20
)

// Entry is one indexed owner: a document or a conversation.
type Entry struct {
	ID     string   `json:"id"`
	Scope  string   `json:"scope,omitempty"`
	Chunks []string `json:"chunks"`
}

// Hit is one search result.
type Hit struct {
	ID      string  `json:"id"`
	Scope   string  `json:"scope,omitempty"`
	Score   float64 `json:"score"`
	Excerpt string  `json:"excerpt"`
}

// Options narrow a search.
type Options struct {
	// Scope restricts results to entries with this scope, typically a
	// collection id. Empty means all entries.
	Scope string
	Limit int
}

type indexed struct {
	entry  Entry
	tokens [][]token
	shard  int
}

// Index is a named, sharded inverted index. It is safe for concurrent use.
type Index struct {
	name       string
	shardCount int

	mu       sync.RWMutex
	entries  map[string]*indexed
	postings map[string]map[string]struct{}
	dirty    map[int]struct{}
	// stale is set when the store holds shard keys at or above shardCount,
	// left over from an export with more shards.
	stale bool
}

// NewIndex creates an empty index. shardCount below one is treated as one.
func NewIndex(name string, shardCount int) *Index {
	if shardCount < 1 {
		shardCount = 1
	}
	return &Index{
		name:       name,
		shardCount: shardCount,
		entries:    make(map[string]*indexed),
		postings:   make(map[string]map[string]struct{}),
		dirty:      make(map[int]struct{}),
	}
}

// Name returns the index name.
func (ix *Index) Name() string {
	return ix.name
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func (ix *Index) shardOf(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(ix.shardCount))
}

// Upsert replaces whatever was indexed for e.ID.
func (ix *Index) Upsert(e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.remove(e.ID)
	ix.add(e)
	ix.dirty[ix.shardOf(e.ID)] = struct{}{}
}

// Remove drops id from the index. Removing an unknown id is a no-op.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.remove(id) {
		ix.dirty[ix.shardOf(id)] = struct{}{}
	}
}

// RemoveScope drops every entry with the given scope and returns their ids.
func (ix *Index) RemoveScope(scope string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var removed []string
	for id, ent := range ix.entries {
		if ent.entry.Scope == scope {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		ix.remove(id)
		ix.dirty[ix.shardOf(id)] = struct{}{}
	}
	sort.Strings(removed)
	return removed
}

func (ix *Index) add(e Entry) {
	ent := &indexed{entry: e, shard: ix.shardOf(e.ID), tokens: make([][]token, len(e.Chunks))}
	for i, chunk := range e.Chunks {
		ent.tokens[i] = tokenize(chunk)
		for _, tok := range ent.tokens[i] {
			ids, ok := ix.postings[tok.Term]
			if !ok {
				ids = make(map[string]struct{})
				ix.postings[tok.Term] = ids
			}
			ids[e.ID] = struct{}{}
		}
	}
	ix.entries[e.ID] = ent
}

func (ix *Index) remove(id string) bool {
	ent, ok := ix.entries[id]
	if !ok {
		return false
	}
	for _, chunk := range ent.tokens {
		for _, tok := range chunk {
			if ids, ok := ix.postings[tok.Term]; ok {
				delete(ids, id)
				if len(ids) == 0 {
					delete(ix.postings, tok.Term)
				}
			}
		}
	}
	delete(ix.entries, id)
	return true
}

// Search returns entries matching every query term, best first.
func (ix *Index) Search(query string, opts Options) []Hit {
	qterms := terms(query)
	if len(qterms) == 0 {
		return nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// candidate ids per query term, from every indexed term it prefixes
	var candidates map[string]struct{}
	for _, q := range qterms {
		matched := make(map[string]struct{})
		for term, ids := range ix.postings {
			if !strings.HasPrefix(term, q) {
				continue
			}
			for id := range ids {
				matched[id] = struct{}{}
			}
		}
		if candidates == nil {
			candidates = matched
			continue
		}
		for id := range candidates {
			if _, ok := matched[id]; !ok {
				delete(candidates, id)
			}
		}
	}

	hits := make([]Hit, 0, len(candidates))
	for id := range candidates {
		ent := ix.entries[id]
		if opts.Scope != "" && ent.entry.Scope != opts.Scope {
			continue
		}
		score, best := ix.score(ent, qterms)
		hits = append(hits, Hit{
			ID:      id,
			Scope:   ent.entry.Scope,
			Score:   score,
			Excerpt: excerpt(ent.entry.Chunks[best], matchSpans(ent.tokens[best], qterms), maxExcerptRunes),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// score sums term matches and adjacency bonuses over all chunks and returns
// the index of the chunk that contributed most.
func (ix *Index) score(ent *indexed, qterms []string) (float64, int) {
	total, best, bestScore := 0.0, 0, -1.0
	for i, toks := range ent.tokens {
		chunkScore := 0.0
		for j, tok := range toks {
			for k, q := range qterms {
				w := termWeight(tok.Term, q)
				if w == 0 {
					continue
				}
				chunkScore += w
				if k+1 < len(qterms) && j+1 < len(toks) && termWeight(toks[j+1].Term, qterms[k+1]) > 0 {
					chunkScore += adjacencyWeight
				}
			}
		}
		if chunkScore > bestScore {
			best, bestScore = i, chunkScore
		}
		total += chunkScore
	}
	return total, best
}

func termWeight(term, q string) float64 {
	switch {
	case term == q:
		return exactWeight
	case strings.HasPrefix(term, q):
		return prefixWeight
	default:
		return 0
	}
}

func matchSpans(toks []token, qterms []string) []token {
	var spans []token
	for _, tok := range toks {
		for _, q := range qterms {
			if strings.HasPrefix(tok.Term, q) {
				spans = append(spans, tok)
				break
			}
		}
	}
	return spans
}
