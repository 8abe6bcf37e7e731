package semindex

import (
	"context"
	"fmt"

	"github.com/crmdex/crmdex/internal/crm"
)

// ScoredRecord is a search result: the original record and its
// similarity score in (0, 1], derived from distance as 1/(1+d).
type ScoredRecord struct {
	Record crm.Record
	Score  float64
}

// Search embeds the query, finds its nearest neighbors, and returns
// records whose similarity meets the threshold, in descending-similarity
// order. An index that has not been built yet returns no results and no
// error.
func (m *Manager) Search(ctx context.Context, query string, k int, threshold float64) ([]ScoredRecord, error) {
	m.mu.RLock()
	index := m.index
	entries := m.entries
	m.mu.RUnlock()

	if index == nil || index.Count() == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	vector, err := m.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := index.Search(vector, k)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	results := make([]ScoredRecord, 0, len(hits))
	for _, hit := range hits {
		score := 1 / (1 + float64(hit.Distance))
		if score < threshold {
			continue
		}
		// A row without metadata means index and entries desynced;
		// skip it rather than failing the query.
		if hit.Row < 0 || hit.Row >= len(entries) {
			continue
		}
		results = append(results, ScoredRecord{
			Record: entries[hit.Row].Record,
			Score:  score,
		})
	}
	return results, nil
}
