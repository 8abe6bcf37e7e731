package main

import (
	"github.com/crmdex/crmdex/internal/config"
	"github.com/crmdex/crmdex/internal/embedding"
	"github.com/crmdex/crmdex/internal/extract"
	"github.com/crmdex/crmdex/internal/semindex"
)

// newManager assembles the embedding service and index lifecycle
// manager from configuration.
func newManager(cfg *config.Config) *semindex.Manager {
	embedder := embedding.NewServiceFromConfig(&cfg.Embedding, embedding.NewCache())
	extractor := &extract.Extractor{ExcludePatterns: cfg.Index.ExcludeProperties}
	manager := semindex.NewManager(embedder, extractor, cfg.Index)
	manager.SetBatchSize(cfg.Embedding.BatchSize)
	return manager
}
