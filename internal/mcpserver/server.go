// Package mcpserver exposes semantic and hybrid CRM search over MCP
// stdio. The semantic index, embedding cache and model client are
// process-wide: every tool invocation in the same process shares them.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/crmdex/crmdex/internal/config"
	"github.com/crmdex/crmdex/internal/crm"
	"github.com/crmdex/crmdex/internal/embedding"
	"github.com/crmdex/crmdex/internal/extract"
	"github.com/crmdex/crmdex/internal/retrieval"
	"github.com/crmdex/crmdex/internal/semindex"
)

// Server wires the shared search services behind MCP tools.
type Server struct {
	cfg     *config.Config
	version string

	manager *semindex.Manager
	store   *crm.RecordStore

	mu      sync.Mutex
	lexical map[crm.EntityKind]*retrieval.BleveSearcher
}

// New builds the composition root: one embedding service, one lifecycle
// manager and one record store, shared across all tool invocations.
func New(cfg *config.Config, version string) (*Server, error) {
	embedder := embedding.NewServiceFromConfig(&cfg.Embedding, embedding.NewCache())
	extractor := &extract.Extractor{ExcludePatterns: cfg.Index.ExcludeProperties}
	manager := semindex.NewManager(embedder, extractor, cfg.Index)
	manager.SetBatchSize(cfg.Embedding.BatchSize)

	store, err := crm.NewRecordStore(cfg.Database.RecordsPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		version: version,
		manager: manager,
		store:   store,
		lexical: make(map[crm.EntityKind]*retrieval.BleveSearcher),
	}

	// Warm start from the last persisted index, if one exists.
	if err := manager.Restore(cfg.Database.IndexPath); err != nil {
		log.Printf("no persisted index restored: %v", err)
	}
	return s, nil
}

// Run starts the MCP stdio server and blocks until the transport closes.
func (s *Server) Run(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "crmdex",
		Title:   "CRM Semantic Search",
		Version: s.version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "crm_build_index",
		Description: `Build (or rebuild) the semantic search index for an entity kind.

Fetches records from the local cache by default; set refresh to pull
fresh records from the CRM API first. Building replaces the previous
index atomically; a failed build leaves it untouched.`,
	}, s.buildTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "crm_semantic_search",
		Description: `Search indexed CRM records by meaning rather than keywords.

Returns records ranked by embedding similarity. An index that has not
been built yet returns no results; use crm_index_status to check.`,
	}, s.searchTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "crm_hybrid_search",
		Description: `Search CRM records combining semantic similarity and keyword relevance.

semantic_weight controls the blend: 1.0 is semantic-only, 0.0 is
keyword-only. Results are deduplicated by record id.`,
	}, s.hybridTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "crm_index_status",
		Description: `Report the semantic index status: entity count, dimension, index
type, embedding model and cache size. Use this to distinguish "index
not built yet" from an unhealthy index.`,
	}, s.statusTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "crm_clear_index",
		Description: "Discard the semantic index (and optionally the embedding cache). Visible to all concurrent callers immediately.",
	}, s.clearTool)

	return server.Run(ctx, &mcp.StdioTransport{})
}

// Close releases the record store and lexical indexes.
func (s *Server) Close() error {
	s.mu.Lock()
	for _, lex := range s.lexical {
		_ = lex.Close()
	}
	s.lexical = make(map[crm.EntityKind]*retrieval.BleveSearcher)
	s.mu.Unlock()
	return s.store.Close()
}

func (s *Server) buildTool(ctx context.Context, _ *mcp.CallToolRequest, input BuildInput) (*mcp.CallToolResult, BuildOutput, error) {
	if input.Kind == "" {
		return nil, BuildOutput{}, fmt.Errorf("kind is required")
	}
	kind := crm.ParseEntityKind(input.Kind)

	records, err := s.loadRecords(ctx, kind, input.Limit, input.Refresh)
	if err != nil {
		return nil, BuildOutput{}, err
	}

	result, err := s.manager.Build(ctx, records, kind)
	if err != nil {
		if errors.Is(err, semindex.ErrNoIndexableRecords) {
			return nil, BuildOutput{
				Kind:   string(kind),
				Status: "no indexable records; previous index unchanged",
			}, nil
		}
		return nil, BuildOutput{}, err
	}

	if err := s.refreshLexical(records, kind); err != nil {
		return nil, BuildOutput{}, err
	}

	if input.Persist {
		if err := s.manager.Persist(s.cfg.Database.IndexPath); err != nil {
			return nil, BuildOutput{}, err
		}
	}

	return nil, BuildOutput{
		Kind:    string(kind),
		Indexed: result.Indexed,
		Skipped: result.Skipped,
		Status:  semindex.StatusReady,
	}, nil
}

func (s *Server) searchTool(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, fmt.Errorf("query is required")
	}
	topK := input.TopK
	if topK <= 0 {
		topK = s.cfg.Search.DefaultTopK
	}
	threshold := input.Threshold
	if threshold == 0 {
		threshold = s.cfg.Search.SimilarityThreshold
	}

	results, err := s.manager.Search(ctx, input.Query, topK, threshold)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Query: input.Query, Count: len(results)}
	for _, sr := range results {
		out.Results = append(out.Results, SearchResultItem{
			ID:      sr.Record.ID,
			Display: formatRecord(sr.Record),
			Score:   sr.Score,
		})
	}
	return nil, out, nil
}

func (s *Server) hybridTool(ctx context.Context, _ *mcp.CallToolRequest, input HybridInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, fmt.Errorf("query is required")
	}
	if input.Kind == "" {
		return nil, SearchOutput{}, fmt.Errorf("kind is required")
	}
	kind := crm.ParseEntityKind(input.Kind)

	weight := input.SemanticWeight
	if weight == 0 {
		weight = s.cfg.Search.SemanticWeight
	}
	topK := input.TopK
	if topK <= 0 {
		topK = s.cfg.Search.DefaultTopK
	}
	threshold := input.Threshold
	if threshold == 0 {
		threshold = s.cfg.Search.SimilarityThreshold
	}

	lexical, err := s.ensureLexical(ctx, kind)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	retriever := retrieval.NewHybridRetriever(s.manager, lexical)
	records, err := retriever.Search(ctx, input.Query, retrieval.SearchOptions{
		TopK:                topK,
		SimilarityThreshold: threshold,
		SemanticWeight:      weight,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Query: input.Query, Count: len(records)}
	for _, rec := range records {
		out.Results = append(out.Results, SearchResultItem{
			ID:      rec.ID,
			Display: formatRecord(rec),
		})
	}
	return nil, out, nil
}

func (s *Server) statusTool(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	stats := s.manager.Stats()

	message := "semantic search is ready"
	if stats.Status == semindex.StatusNotInitialized {
		message = "index not built yet; run crm_build_index first"
	}

	return nil, StatusOutput{
		Status:        stats.Status,
		TotalEntities: stats.TotalEntities,
		Dimension:     stats.Dimension,
		IndexType:     stats.IndexType,
		ModelName:     stats.ModelName,
		CacheSize:     stats.CacheSize,
		Message:       message,
	}, nil
}

func (s *Server) clearTool(ctx context.Context, _ *mcp.CallToolRequest, input ClearInput) (*mcp.CallToolResult, ClearOutput, error) {
	s.manager.Clear(input.ClearCache)

	s.mu.Lock()
	for _, lex := range s.lexical {
		_ = lex.Close()
	}
	s.lexical = make(map[crm.EntityKind]*retrieval.BleveSearcher)
	s.mu.Unlock()

	return nil, ClearOutput{Status: semindex.StatusNotInitialized}, nil
}

// loadRecords serves records from the local store, falling back to (or
// forced onto) the upstream API.
func (s *Server) loadRecords(ctx context.Context, kind crm.EntityKind, limit int, refresh bool) ([]crm.Record, error) {
	if !refresh {
		records, err := s.store.LoadRecords(ctx, kind)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records, nil
		}
	}

	client, err := crm.NewClient(s.cfg.CRM.BaseURL, s.cfg.CRM.AccessToken)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.CRM.FetchLimit
	}
	records, err := client.ListAll(ctx, kind, limit)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveRecords(ctx, kind, records); err != nil {
		log.Printf("Warning: failed to cache fetched records: %v", err)
	}
	return records, nil
}

func (s *Server) refreshLexical(records []crm.Record, kind crm.EntityKind) error {
	extractor := &extract.Extractor{ExcludePatterns: s.cfg.Index.ExcludeProperties}
	lex, err := retrieval.NewBleveSearcher(records, kind, extractor)
	if err != nil {
		return fmt.Errorf("build lexical index: %w", err)
	}

	s.mu.Lock()
	if old, ok := s.lexical[kind]; ok {
		_ = old.Close()
	}
	s.lexical[kind] = lex
	s.mu.Unlock()
	return nil
}

// ensureLexical returns the lexical index for a kind, building it from
// the record store when the warm copy is missing (e.g. after a restore).
func (s *Server) ensureLexical(ctx context.Context, kind crm.EntityKind) (*retrieval.BleveSearcher, error) {
	s.mu.Lock()
	lex, ok := s.lexical[kind]
	s.mu.Unlock()
	if ok {
		return lex, nil
	}

	records, err := s.store.LoadRecords(ctx, kind)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no cached records for kind %s; run crm_build_index first", kind)
	}
	if err := s.refreshLexical(records, kind); err != nil {
		return nil, err
	}

	s.mu.Lock()
	lex = s.lexical[kind]
	s.mu.Unlock()
	return lex, nil
}

// formatRecord renders a record as a compact display string from a few
// common properties, falling back to the id.
func formatRecord(rec crm.Record) string {
	candidates := []string{
		"firstname", "lastname", "email",
		"name", "domain",
		"dealname", "dealstage",
		"hs_engagement_subject", "hs_body_preview",
	}
	parts := make([]string, 0, 4)
	for _, key := range candidates {
		if val := strings.TrimSpace(rec.Prop(key)); val != "" {
			parts = append(parts, val)
		}
		if len(parts) >= 4 {
			break
		}
	}
	if len(parts) == 0 {
		return "record " + rec.ID
	}
	return strings.Join(parts, " · ")
}
