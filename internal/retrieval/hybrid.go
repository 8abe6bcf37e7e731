package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/crmdex/crmdex/internal/crm"
	"github.com/crmdex/crmdex/internal/semindex"
)

// Fuse merges a semantic result list and a lexical result list for the
// same query into one ranked top-k list, deduplicated by record id.
//
// Each record accumulates a semantic contribution (similarity score
// scaled by semanticWeight) and a lexical contribution derived from rank
// position: max(0.1, 1 - position/len) scaled by (1 - semanticWeight),
// so top-ranked lexical hits score highest but every lexical hit keeps a
// nonzero floor. A record present in both lists sums both contributions.
// Records without an id cannot be deduplicated and are dropped. Ties
// keep first-appearance order.
func Fuse(semantic []semindex.ScoredRecord, lexical []crm.Record, semanticWeight float64, k int) []crm.Record {
	if k <= 0 {
		k = 10
	}

	type fused struct {
		record crm.Record
		score  float64
		seen   int // first-appearance order for stable ties
	}

	byID := make(map[string]*fused)
	var order []*fused

	upsert := func(rec crm.Record, contribution float64) {
		if rec.ID == "" {
			return
		}
		if existing, ok := byID[rec.ID]; ok {
			existing.score += contribution
			return
		}
		// first-seen payload wins when the same id carries different
		// payloads across lists
		f := &fused{record: rec, score: contribution, seen: len(order)}
		byID[rec.ID] = f
		order = append(order, f)
	}

	for _, sr := range semantic {
		upsert(sr.Record, sr.Score*semanticWeight)
	}

	lexicalWeight := 1 - semanticWeight
	for pos, rec := range lexical {
		rankScore := 1 - float64(pos)/float64(len(lexical))
		if rankScore < 0.1 {
			rankScore = 0.1
		}
		upsert(rec, rankScore*lexicalWeight)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].seen < order[j].seen
	})

	if len(order) > k {
		order = order[:k]
	}
	out := make([]crm.Record, len(order))
	for i, f := range order {
		out[i] = f.record
	}
	return out
}

// HybridRetriever runs the semantic and lexical searches for a query and
// fuses their results.
type HybridRetriever struct {
	manager *semindex.Manager
	lexical LexicalSearcher
}

// NewHybridRetriever combines a semantic index manager with a lexical
// collaborator. lexical may be nil for semantic-only retrieval.
func NewHybridRetriever(manager *semindex.Manager, lexical LexicalSearcher) *HybridRetriever {
	return &HybridRetriever{manager: manager, lexical: lexical}
}

// SearchOptions configures a hybrid search.
type SearchOptions struct {
	TopK                int
	SimilarityThreshold float64
	SemanticWeight      float64 // 0 = lexical only, 1 = semantic only
}

// Search returns the fused top-k records for a free-text query. Each
// candidate list fetches more than TopK so fusion has overlap to work
// with.
func (h *HybridRetriever) Search(ctx context.Context, query string, opts SearchOptions) ([]crm.Record, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.SemanticWeight < 0 || opts.SemanticWeight > 1 {
		return nil, fmt.Errorf("semantic weight must be in [0,1], got %v", opts.SemanticWeight)
	}

	candidateK := opts.TopK * 2

	var semantic []semindex.ScoredRecord
	if opts.SemanticWeight > 0 {
		var err error
		semantic, err = h.manager.Search(ctx, query, candidateK, opts.SimilarityThreshold)
		if err != nil {
			return nil, fmt.Errorf("semantic search failed: %w", err)
		}
	}

	var lexical []crm.Record
	if opts.SemanticWeight < 1 && h.lexical != nil {
		var err error
		lexical, err = h.lexical.Search(query, candidateK)
		if err != nil {
			return nil, fmt.Errorf("lexical search failed: %w", err)
		}
	}

	return Fuse(semantic, lexical, opts.SemanticWeight, opts.TopK), nil
}
