// Package semindex owns the lifecycle of the semantic index: building it
// from CRM records, serving similarity queries against it, and persisting
// it across runs. A build never mutates the live index; it constructs a
// replacement off to the side and publishes it atomically.
package semindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/crmdex/crmdex/internal/config"
	"github.com/crmdex/crmdex/internal/crm"
	"github.com/crmdex/crmdex/internal/embedding"
	"github.com/crmdex/crmdex/internal/extract"
	"github.com/crmdex/crmdex/internal/vecindex"
)

// Status values reported by Stats.
const (
	StatusNotInitialized = "not_initialized"
	StatusReady          = "ready"
)

// ErrNoIndexableRecords is returned by Build when every record in the
// batch produced empty search text. The previously live index, if any,
// is left untouched.
var ErrNoIndexableRecords = errors.New("semindex: no indexable records in batch")

// Entry ties a vector row back to its originating record.
type Entry struct {
	Record crm.Record     `json:"entity"`
	Kind   crm.EntityKind `json:"entity_type"`
	Text   string         `json:"text"`
}

// Stats is the structured introspection surface for health checks.
type Stats struct {
	Status        string `json:"status"`
	TotalEntities int    `json:"total_entities"`
	Dimension     int    `json:"dimension"`
	IndexType     string `json:"index_type"`
	ModelName     string `json:"model_name"`
	CacheSize     int    `json:"cache_size"`
}

// BuildResult summarizes one build cycle.
type BuildResult struct {
	Indexed int // records added to the index
	Skipped int // unindexable records dropped from the batch
}

// Manager orchestrates extraction, embedding and indexing, and guards
// the live index with a read-write lock. Mutating operations (Build,
// Clear, Restore) from concurrent callers must still be externally
// serialized; the lock only protects readers from observing a
// half-built state.
type Manager struct {
	embedder  *embedding.Service
	extractor *extract.Extractor
	indexCfg  config.IndexConfig
	progress  ProgressReporter
	batchSize int

	mu        sync.RWMutex
	index     vecindex.Index
	entries   []Entry
	modelName string
}

// NewManager wires a lifecycle manager. extractor may be nil for an
// extractor with no exclude patterns.
func NewManager(embedder *embedding.Service, extractor *extract.Extractor, indexCfg config.IndexConfig) *Manager {
	if extractor == nil {
		extractor = &extract.Extractor{ExcludePatterns: indexCfg.ExcludeProperties}
	}
	if indexCfg.Type == "" {
		indexCfg.Type = vecindex.TypeFlat
	}
	return &Manager{
		embedder:  embedder,
		extractor: extractor,
		indexCfg:  indexCfg,
	}
}

// SetProgress installs a build progress reporter (CLI use only).
func (m *Manager) SetProgress(p ProgressReporter) {
	m.progress = p
}

// SetBatchSize caps how many texts each embedding model call carries.
// Values below 1 keep the default of 100.
func (m *Manager) SetBatchSize(n int) {
	m.batchSize = n
}

// Build replaces the live index with one built from records. Records
// whose derived search text is empty are skipped. On any failure the
// previously live index and metadata remain visible and unchanged.
func (m *Manager) Build(ctx context.Context, records []crm.Record, kind crm.EntityKind) (*BuildResult, error) {
	texts := make([]string, 0, len(records))
	entries := make([]Entry, 0, len(records))
	skipped := 0
	for _, rec := range records {
		text := m.extractor.Extract(rec, kind)
		if text == "" {
			skipped++
			continue
		}
		texts = append(texts, text)
		entries = append(entries, Entry{Record: rec, Kind: kind, Text: text})
	}

	if len(texts) == 0 {
		return nil, ErrNoIndexableRecords
	}

	if m.progress != nil {
		m.progress.Start(len(texts))
		defer m.progress.Finish()
	}

	vectors, err := m.embedBatches(ctx, texts)
	if err != nil {
		return nil, err
	}

	index, err := m.newIndex(vectors)
	if err != nil {
		return nil, err
	}
	if err := index.Add(vectors); err != nil {
		return nil, fmt.Errorf("add vectors to index: %w", err)
	}

	m.mu.Lock()
	m.index = index
	m.entries = entries
	m.modelName = m.embedder.ModelName()
	m.mu.Unlock()

	return &BuildResult{Indexed: len(entries), Skipped: skipped}, nil
}

// embedBatches chunks the texts so progress advances between model
// calls; each chunk is a single batched model invocation for its misses.
func (m *Manager) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	chunkSize := m.batchSize
	if chunkSize <= 0 {
		chunkSize = 100
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += chunkSize {
		end := start + chunkSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := m.embedder.EmbedMany(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed records %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
		if m.progress != nil {
			for range batch {
				m.progress.Increment()
			}
		}
	}
	return vectors, nil
}

// newIndex constructs the configured index variant. The approximate
// variant is trained on the full vector batch; a cluster count the
// corpus cannot satisfy is a configuration error, not a downgrade.
func (m *Manager) newIndex(vectors [][]float32) (vecindex.Index, error) {
	switch m.indexCfg.Type {
	case vecindex.TypeFlat:
		return vecindex.NewFlat(), nil
	case vecindex.TypeIVF:
		ix := vecindex.NewIVF(m.indexCfg.NList, m.indexCfg.NProbe)
		if err := ix.Train(vectors); err != nil {
			return nil, err
		}
		return ix, nil
	default:
		return nil, &vecindex.ConfigError{Reason: "unsupported index type: " + m.indexCfg.Type}
	}
}

// Stats reports the current state of the index and cache.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	index := m.index
	total := len(m.entries)
	modelName := m.modelName
	m.mu.RUnlock()

	// A restored index knows its model name from metadata even when the
	// embedding client has not been constructed yet.
	if modelName == "" {
		modelName = m.embedder.ModelName()
	}

	stats := Stats{
		Status:    StatusNotInitialized,
		ModelName: modelName,
		IndexType: m.indexCfg.Type,
		CacheSize: m.embedder.Cache().Size(),
	}
	if index != nil && index.Count() > 0 {
		stats.Status = StatusReady
		stats.TotalEntities = total
		stats.Dimension = index.Dimension()
		stats.IndexType = index.Type()
	}
	return stats
}

// Clear discards the live index and metadata. The embedding cache is
// cleared only when clearCache is set; it can usefully outlive many
// index rebuilds.
func (m *Manager) Clear(clearCache bool) {
	m.mu.Lock()
	m.index = nil
	m.entries = nil
	m.modelName = ""
	m.mu.Unlock()

	if clearCache {
		m.embedder.Cache().Clear()
	}
}

// metadata is the JSON persistence artifact: entries keyed by row
// index, plus bookkeeping needed to validate a restore.
type metadata struct {
	IndexType string           `json:"index_type"`
	Dimension int              `json:"dimension"`
	ModelName string           `json:"model_name"`
	Entries   map[string]Entry `json:"entries"`
}

func artifactPaths(basePath string) (index, meta, cache string) {
	return basePath + ".index", basePath + ".meta.json", basePath + ".cache.db"
}

// Persist writes three co-located artifacts sharing basePath: the index
// in its native binary form, the entry metadata as JSON, and the
// embedding cache as a SQLite blob.
func (m *Manager) Persist(basePath string) error {
	m.mu.RLock()
	index := m.index
	entries := m.entries
	modelName := m.modelName
	m.mu.RUnlock()

	if index == nil || index.Count() == 0 {
		return fmt.Errorf("semindex: nothing to persist, index is %s", StatusNotInitialized)
	}
	if err := os.MkdirAll(filepath.Dir(basePath), 0o755); err != nil {
		return fmt.Errorf("create persist dir: %w", err)
	}

	indexPath, metaPath, cachePath := artifactPaths(basePath)

	if err := index.WriteFile(indexPath); err != nil {
		return err
	}

	meta := metadata{
		IndexType: index.Type(),
		Dimension: index.Dimension(),
		ModelName: modelName,
		Entries:   make(map[string]Entry, len(entries)),
	}
	for row, entry := range entries {
		meta.Entries[strconv.Itoa(row)] = entry
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode index metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return fmt.Errorf("write index metadata: %w", err)
	}

	return m.embedder.Cache().SaveTo(cachePath)
}

// Restore loads the artifacts written by Persist. Nothing in memory is
// replaced until every artifact has fully parsed: a failed restore,
// including one tripped by a corrupt cache artifact, leaves the prior
// index and metadata exactly as they were. A missing cache artifact is
// tolerated (the cache starts empty).
func (m *Manager) Restore(basePath string) error {
	indexPath, metaPath, cachePath := artifactPaths(basePath)

	index, err := vecindex.ReadFile(indexPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("read index metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("parse index metadata: %w", err)
	}
	if len(meta.Entries) != index.Count() {
		return fmt.Errorf("semindex: metadata has %d entries but index has %d vectors",
			len(meta.Entries), index.Count())
	}

	entries := make([]Entry, index.Count())
	for key, entry := range meta.Entries {
		row, err := strconv.Atoi(key)
		if err != nil || row < 0 || row >= len(entries) {
			return fmt.Errorf("semindex: metadata has invalid row index %q", key)
		}
		entries[row] = entry
	}

	// The cache artifact may be absent (it starts empty), but a corrupt
	// one fails the restore before anything in memory changes.
	if err := m.embedder.Cache().LoadFrom(cachePath); err != nil {
		return err
	}

	m.mu.Lock()
	m.index = index
	m.entries = entries
	m.modelName = meta.ModelName
	m.mu.Unlock()

	return nil
}

// RemoveArtifacts deletes the persisted artifacts for basePath. Missing
// files are not an error.
func RemoveArtifacts(basePath string) error {
	indexPath, metaPath, cachePath := artifactPaths(basePath)
	for _, path := range []string{indexPath, metaPath, cachePath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}
