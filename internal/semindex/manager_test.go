package semindex

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/crmdex/crmdex/internal/config"
	"github.com/crmdex/crmdex/internal/crm"
	"github.com/crmdex/crmdex/internal/embedding"
	"github.com/crmdex/crmdex/internal/vecindex"
)

// fakeClient embeds texts deterministically from their digest so that
// identical text maps to an identical vector.
type fakeClient struct {
	batchCalls int
}

func (f *fakeClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, 8)
		for d := range vec {
			vec[d] = float32(sum[d])
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeClient) Dimensions() int { return 8 }
func (f *fakeClient) Model() string   { return "fake-embedding-model" }

func newTestManager(indexCfg config.IndexConfig) *Manager {
	svc := embedding.NewService(&fakeClient{}, embedding.NewCache())
	return NewManager(svc, nil, indexCfg)
}

func contactRecord(id, first, last string) crm.Record {
	return crm.Record{ID: id, Properties: map[string]any{
		"firstname": first,
		"lastname":  last,
	}}
}

func TestManager_EmptyCorpus(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	if _, err := m.Build(ctx, nil, crm.KindContacts); !errors.Is(err, ErrNoIndexableRecords) {
		t.Errorf("Build(nil) error = %v, want ErrNoIndexableRecords", err)
	}

	stats := m.Stats()
	if stats.Status != StatusNotInitialized {
		t.Errorf("Status = %q, want %q", stats.Status, StatusNotInitialized)
	}

	results, err := m.Search(ctx, "anything", 5, 0.5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() = %+v, want empty", results)
	}
}

func TestManager_UnindexableRecordsSkipped(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	records := []crm.Record{
		contactRecord("1", "Ada", "Lovelace"),
		{ID: "2", Properties: map[string]any{"firstname": "  ", "lastname": ""}},
		contactRecord("3", "Alan", "Turing"),
	}

	result, err := m.Build(ctx, records, crm.KindContacts)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if result.Indexed != 2 || result.Skipped != 1 {
		t.Errorf("BuildResult = %+v, want Indexed 2 Skipped 1", result)
	}

	stats := m.Stats()
	if stats.Status != StatusReady || stats.TotalEntities != 2 {
		t.Errorf("Stats = %+v, want ready with 2 entities", stats)
	}
}

func TestManager_AllUnindexableLeavesPriorState(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	if _, err := m.Build(ctx, []crm.Record{contactRecord("1", "Ada", "Lovelace")}, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	blank := []crm.Record{{ID: "9", Properties: map[string]any{"firstname": ""}}}
	if _, err := m.Build(ctx, blank, crm.KindContacts); !errors.Is(err, ErrNoIndexableRecords) {
		t.Fatalf("Build(blank) error = %v, want ErrNoIndexableRecords", err)
	}

	stats := m.Stats()
	if stats.Status != StatusReady || stats.TotalEntities != 1 {
		t.Errorf("prior index disturbed by failed build: %+v", stats)
	}
}

func TestManager_SingleRecordExactMatch(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	rec := crm.Record{ID: "1", Properties: map[string]any{
		"firstname": "Ada", "lastname": "Lovelace",
		"email": "", "jobtitle": "", "company": "", "phone": "",
	}}
	if _, err := m.Build(ctx, []crm.Record{rec}, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	results, err := m.Search(ctx, "Ada Lovelace", 1, 0.0)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Record.ID != "1" {
		t.Errorf("Record.ID = %q, want 1", results[0].Record.ID)
	}
	if results[0].Score <= 0.9 {
		t.Errorf("Score = %v, want > 0.9 for an exact-text query", results[0].Score)
	}
}

func TestManager_ThresholdExclusion(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	if _, err := m.Build(ctx, []crm.Record{contactRecord("1", "Ada", "Lovelace")}, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	results, err := m.Search(ctx, "completely unrelated query about spacecraft", 1, 0.99)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() = %+v, want empty at threshold 0.99", results)
	}
}

func TestManager_ThresholdMonotonicity(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	records := []crm.Record{
		contactRecord("1", "Ada", "Lovelace"),
		contactRecord("2", "Alan", "Turing"),
		contactRecord("3", "Grace", "Hopper"),
	}
	if _, err := m.Build(ctx, records, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	prev := -1
	for _, threshold := range []float64{0.0, 0.2, 0.5, 0.9, 1.0} {
		results, err := m.Search(ctx, "Ada Lovelace", 3, threshold)
		if err != nil {
			t.Fatalf("Search(threshold=%v) error: %v", threshold, err)
		}
		if prev >= 0 && len(results) > prev {
			t.Errorf("raising threshold to %v increased results from %d to %d",
				threshold, prev, len(results))
		}
		prev = len(results)
	}
}

func TestManager_PersistRestoreRoundTrip(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	records := []crm.Record{
		contactRecord("1", "Ada", "Lovelace"),
		contactRecord("2", "Alan", "Turing"),
		contactRecord("3", "Grace", "Hopper"),
	}
	if _, err := m.Build(ctx, records, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	basePath := filepath.Join(t.TempDir(), "semantic")
	if err := m.Persist(basePath); err != nil {
		t.Fatalf("Persist() error: %v", err)
	}

	restored := newTestManager(config.IndexConfig{Type: "flat"})
	if err := restored.Restore(basePath); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	origStats, gotStats := m.Stats(), restored.Stats()
	if gotStats != origStats {
		t.Errorf("Stats() after restore = %+v, want %+v", gotStats, origStats)
	}

	orig, err := m.Search(ctx, "Grace Hopper", 3, 0.0)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	got, err := restored.Search(ctx, "Grace Hopper", 3, 0.0)
	if err != nil {
		t.Fatalf("Search() after restore error: %v", err)
	}
	if len(got) != len(orig) {
		t.Fatalf("got %d results, want %d", len(got), len(orig))
	}
	for i := range got {
		if got[i].Record.ID != orig[i].Record.ID || got[i].Score != orig[i].Score {
			t.Errorf("result[%d] = %+v, want %+v", i, got[i], orig[i])
		}
	}
}

func TestManager_RestoreToleratesMissingCache(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	if _, err := m.Build(ctx, []crm.Record{contactRecord("1", "Ada", "Lovelace")}, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	basePath := filepath.Join(t.TempDir(), "semantic")
	if err := m.Persist(basePath); err != nil {
		t.Fatalf("Persist() error: %v", err)
	}
	_, _, cachePath := artifactPaths(basePath)
	if err := os.Remove(cachePath); err != nil {
		t.Fatal(err)
	}

	restored := newTestManager(config.IndexConfig{Type: "flat"})
	if err := restored.Restore(basePath); err != nil {
		t.Fatalf("Restore() without cache artifact error: %v", err)
	}
	stats := restored.Stats()
	if stats.Status != StatusReady || stats.CacheSize != 0 {
		t.Errorf("Stats = %+v, want ready with empty cache", stats)
	}
}

func TestManager_RestoreRejectsCorruptCache(t *testing.T) {
	source := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	records := []crm.Record{
		contactRecord("1", "Ada", "Lovelace"),
		contactRecord("2", "Alan", "Turing"),
	}
	if _, err := source.Build(ctx, records, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	basePath := filepath.Join(t.TempDir(), "semantic")
	if err := source.Persist(basePath); err != nil {
		t.Fatalf("Persist() error: %v", err)
	}
	_, _, cachePath := artifactPaths(basePath)
	if err := os.WriteFile(cachePath, []byte("not a sqlite file"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(config.IndexConfig{Type: "flat"})
	if _, err := m.Build(ctx, []crm.Record{contactRecord("9", "Grace", "Hopper")}, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	before := m.Stats()
	beforeCacheSize := before.CacheSize

	if err := m.Restore(basePath); err == nil {
		t.Fatal("Restore() with corrupt cache artifact should fail")
	}

	after := m.Stats()
	if after.Status != StatusReady || after.TotalEntities != 1 {
		t.Errorf("failed restore disturbed the index: %+v", after)
	}
	if after.CacheSize != beforeCacheSize {
		t.Errorf("failed restore disturbed the cache: size %d, want %d",
			after.CacheSize, beforeCacheSize)
	}
}

func TestManager_RestoredStatsReportModelName(t *testing.T) {
	source := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	if _, err := source.Build(ctx, []crm.Record{contactRecord("1", "Ada", "Lovelace")}, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	basePath := filepath.Join(t.TempDir(), "semantic")
	if err := source.Persist(basePath); err != nil {
		t.Fatalf("Persist() error: %v", err)
	}

	// A restored manager may never construct its embedding client; the
	// model name must come from the persisted metadata.
	lazy := embedding.NewServiceFromConfig(&config.EmbeddingConfig{
		Provider: "openai",
		APIKey:   "unused",
	}, embedding.NewCache())
	restored := NewManager(lazy, nil, config.IndexConfig{Type: "flat"})
	if err := restored.Restore(basePath); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	stats := restored.Stats()
	if stats.Status != StatusReady {
		t.Fatalf("Status = %q, want %q", stats.Status, StatusReady)
	}
	if stats.ModelName != "fake-embedding-model" {
		t.Errorf("ModelName = %q, want the persisted model name", stats.ModelName)
	}
}

func TestManager_BatchSizeChunksEmbedding(t *testing.T) {
	client := &fakeClient{}
	svc := embedding.NewService(client, embedding.NewCache())
	m := NewManager(svc, nil, config.IndexConfig{Type: "flat"})
	m.SetBatchSize(2)
	ctx := context.Background()

	records := []crm.Record{
		contactRecord("1", "Ada", "Lovelace"),
		contactRecord("2", "Alan", "Turing"),
		contactRecord("3", "Grace", "Hopper"),
		contactRecord("4", "Edsger", "Dijkstra"),
		contactRecord("5", "Barbara", "Liskov"),
	}
	if _, err := m.Build(ctx, records, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if client.batchCalls != 3 {
		t.Errorf("batchCalls = %d, want 3 for 5 texts at batch size 2", client.batchCalls)
	}
}

func TestManager_FailedRestoreLeavesPriorState(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	if _, err := m.Build(ctx, []crm.Record{contactRecord("1", "Ada", "Lovelace")}, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if err := m.Restore(filepath.Join(t.TempDir(), "nonexistent")); err == nil {
		t.Fatal("Restore() of missing artifacts should fail")
	}

	stats := m.Stats()
	if stats.Status != StatusReady || stats.TotalEntities != 1 {
		t.Errorf("failed restore disturbed in-memory state: %+v", stats)
	}
}

func TestManager_Clear(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "flat"})
	ctx := context.Background()

	if _, err := m.Build(ctx, []crm.Record{contactRecord("1", "Ada", "Lovelace")}, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	m.Clear(false)
	stats := m.Stats()
	if stats.Status != StatusNotInitialized {
		t.Errorf("Status after Clear = %q, want %q", stats.Status, StatusNotInitialized)
	}
	if stats.CacheSize == 0 {
		t.Error("Clear(false) should keep the embedding cache")
	}

	m.Clear(true)
	if m.Stats().CacheSize != 0 {
		t.Error("Clear(true) should empty the embedding cache")
	}
}

func TestManager_IVFConfigErrorPropagates(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "ivf", NList: 8, NProbe: 2})
	ctx := context.Background()

	records := []crm.Record{
		contactRecord("1", "Ada", "Lovelace"),
		contactRecord("2", "Alan", "Turing"),
		contactRecord("3", "Grace", "Hopper"),
	}
	_, err := m.Build(ctx, records, crm.KindContacts)
	if err == nil {
		t.Fatal("Build() succeeded, want IVF configuration error")
	}
	var cfgErr *vecindex.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Build() error = %v, want *vecindex.ConfigError", err)
	}
	if m.Stats().Status != StatusNotInitialized {
		t.Error("failed build must leave the index uninitialized")
	}
}

func TestManager_IVFBuildAndSearch(t *testing.T) {
	m := newTestManager(config.IndexConfig{Type: "ivf", NProbe: 2})
	ctx := context.Background()

	records := []crm.Record{
		contactRecord("1", "Ada", "Lovelace"),
		contactRecord("2", "Alan", "Turing"),
		contactRecord("3", "Grace", "Hopper"),
	}
	if _, err := m.Build(ctx, records, crm.KindContacts); err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	stats := m.Stats()
	if stats.IndexType != vecindex.TypeIVF {
		t.Errorf("IndexType = %q, want ivf", stats.IndexType)
	}

	results, err := m.Search(ctx, "Alan Turing", 1, 0.5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 || results[0].Record.ID != "2" {
		t.Errorf("Search() = %+v, want record 2", results)
	}
}
