// Package retrieval layers lexical search and hybrid ranking fusion on
// top of the semantic index.
package retrieval

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/crmdex/crmdex/internal/crm"
	"github.com/crmdex/crmdex/internal/extract"
)

// LexicalSearcher supplies the keyword-ranked record list consumed by
// Fuse. The semantic core treats it as a black box.
type LexicalSearcher interface {
	Search(query string, k int) ([]crm.Record, error)
}

// BleveSearcher is an in-memory full-text index over record search text.
type BleveSearcher struct {
	index   bleve.Index
	records map[string]crm.Record
}

type lexicalDoc struct {
	Content string `json:"content"`
	Kind    string `json:"kind"`
}

// NewBleveSearcher indexes the records' derived search text. Records
// with empty search text are skipped, mirroring the semantic build.
func NewBleveSearcher(records []crm.Record, kind crm.EntityKind, extractor *extract.Extractor) (*BleveSearcher, error) {
	if extractor == nil {
		extractor = &extract.Extractor{}
	}

	index, err := bleve.NewMemOnly(buildLexicalMapping())
	if err != nil {
		return nil, fmt.Errorf("create lexical index: %w", err)
	}

	s := &BleveSearcher{
		index:   index,
		records: make(map[string]crm.Record, len(records)),
	}
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		text := extractor.Extract(rec, kind)
		if text == "" {
			continue
		}
		doc := lexicalDoc{Content: text, Kind: string(kind)}
		if err := index.Index(rec.ID, doc); err != nil {
			return nil, fmt.Errorf("index record %s: %w", rec.ID, err)
		}
		s.records[rec.ID] = rec
	}
	return s, nil
}

func buildLexicalMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.DefaultField = "content"

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	kindField := bleve.NewTextFieldMapping()
	kindField.Store = true
	kindField.Index = true
	kindField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("kind", kindField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Search returns up to k records ranked by bleve's relevance score.
// Only the ordering is exposed; fusion derives its lexical contribution
// from rank position.
func (s *BleveSearcher) Search(query string, k int) ([]crm.Record, error) {
	if k <= 0 {
		k = 10
	}

	matchQuery := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(matchQuery, k, 0, false)
	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	records := make([]crm.Record, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if rec, ok := s.records[hit.ID]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Close releases the underlying bleve index.
func (s *BleveSearcher) Close() error {
	return s.index.Close()
}
