package keyword

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/dshills/coderag/pkg/types"
)

// Name boosts applied on top of the idf score
const (
	ExactNameBoost     = 100.0
	NameContainsBoost  = 50.0
	QueryContainsBoost = 30.0

	// MinBoostNameLength is the shortest name eligible for the query-contains-name boost
	MinBoostNameLength = 4

	// ScoreScale divides final scores so magnitudes stay roughly comparable within this path
	ScoreScale = 100.0

	// MinTokenLength is the shortest token that is indexed
	MinTokenLength = 3
)

// Tokenize lowercases text, treats every non-alphanumeric rune as a
// separator and keeps tokens longer than two characters
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= MinTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Index is an in-memory inverted index over chunks.
// It has no external dependencies and is always available.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[string]struct{}
	docs     map[string]types.Chunk
}

// New creates an empty index
func New() *Index {
	return &Index{
		postings: make(map[string]map[string]struct{}),
		docs:     make(map[string]types.Chunk),
	}
}

// Build creates an index from chunks in one call
func Build(chunks []types.Chunk) *Index {
	idx := New()
	idx.Index(chunks)
	return idx
}

// Index adds chunks to the index, replacing any chunk with the same ID
func (idx *Index) Index(chunks []types.Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, c := range chunks {
		if _, exists := idx.docs[c.ID]; exists {
			idx.removeLocked(c.ID)
		}
		idx.docs[c.ID] = c
		for _, tok := range Tokenize(c.IndexText()) {
			set, ok := idx.postings[tok]
			if !ok {
				set = make(map[string]struct{})
				idx.postings[tok] = set
			}
			set[c.ID] = struct{}{}
		}
	}
}

func (idx *Index) removeLocked(id string) {
	c := idx.docs[id]
	for _, tok := range Tokenize(c.IndexText()) {
		if set, ok := idx.postings[tok]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(idx.postings, tok)
			}
		}
	}
	delete(idx.docs, id)
}

// Len returns the number of indexed documents
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Get returns an indexed chunk by ID
func (idx *Index) Get(id string) (types.Chunk, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.docs[id]
	return c, ok
}

// Chunks returns all indexed chunks sorted by ID
func (idx *Index) Chunks() []types.Chunk {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]types.Chunk, 0, len(idx.docs))
	for _, c := range idx.docs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search scores documents by summed idf of matching query tokens, adds
// name boosts and returns the top k with scores divided by ScoreScale
func (idx *Index) Search(query string, k int) []types.SearchResult {
	if k <= 0 {
		return []types.SearchResult{}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	corpus := float64(len(idx.docs))
	if corpus == 0 {
		return []types.SearchResult{}
	}

	scores := make(map[string]float64)
	seen := make(map[string]bool)
	for _, tok := range Tokenize(query) {
		if seen[tok] {
			continue
		}
		seen[tok] = true

		set, ok := idx.postings[tok]
		if !ok || len(set) == 0 {
			continue
		}
		idf := math.Log(corpus/float64(len(set)) + 1)
		for id := range set {
			scores[id] += idf
		}
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q != "" {
		for id, c := range idx.docs {
			if boost := nameBoost(strings.ToLower(c.Metadata.Name), q); boost > 0 {
				scores[id] += boost
			}
		}
	}

	results := make([]types.SearchResult, 0, len(scores))
	for id, score := range scores {
		c := idx.docs[id]
		results = append(results, types.SearchResult{
			ID:       c.ID,
			Content:  c.Content,
			Metadata: c.Metadata,
			Score:    score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Score /= ScoreScale
	}
	return results
}

// nameBoost applies exactly one of the metadata-name boosts
func nameBoost(name, query string) float64 {
	switch {
	case name == "":
		return 0
	case name == query:
		return ExactNameBoost
	case strings.Contains(name, query):
		return NameContainsBoost
	case len([]rune(name)) >= MinBoostNameLength && strings.Contains(query, name):
		return QueryContainsBoost
	default:
		return 0
	}
}
