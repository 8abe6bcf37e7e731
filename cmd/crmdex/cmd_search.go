package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/crmdex/crmdex/internal/config"
	"github.com/crmdex/crmdex/internal/crm"
	"github.com/crmdex/crmdex/internal/extract"
	"github.com/crmdex/crmdex/internal/retrieval"
	"github.com/crmdex/crmdex/internal/semindex"
)

// handleSearch implements the search subcommand
func handleSearch(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)

	var topK int
	var threshold, weight float64
	var hybrid, jsonOutput bool
	var kindArg string

	fs.IntVar(&topK, "k", 0, "Number of results to return (0 = config default)")
	fs.Float64Var(&threshold, "threshold", 0, "Minimum similarity score (0 = config default)")
	fs.BoolVar(&hybrid, "hybrid", false, "Blend semantic and keyword relevance")
	fs.Float64Var(&weight, "weight", 0, "Semantic weight for hybrid search in [0,1] (0 = config default)")
	fs.StringVar(&kindArg, "kind", "", "Entity kind for hybrid search")
	fs.BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    crmdex search [options] "<query>"

DESCRIPTION:
    Search indexed CRM records using natural language queries.
    Results are ranked by embedding similarity; with -hybrid, keyword
    relevance is blended in.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Semantic search
    crmdex search "enterprise customers in fintech"

    # Top 20 results
    crmdex search "renewal deals closing soon" -k 20

    # Hybrid search over companies
    crmdex search -hybrid -kind companies "acme annual contract"

    # JSON output for scripting
    crmdex search "decision makers" -json
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: search query is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	query := fs.Arg(0)

	if topK <= 0 {
		topK = cfg.Search.DefaultTopK
	}
	if threshold == 0 {
		threshold = cfg.Search.SimilarityThreshold
	}
	if weight == 0 {
		weight = cfg.Search.SemanticWeight
	}

	manager := newManager(cfg)
	if err := manager.Restore(cfg.Database.IndexPath); err != nil {
		log.Fatalf("No index available (run `crmdex index` first): %v", err)
	}

	ctx := context.Background()

	if hybrid {
		if kindArg == "" {
			fmt.Fprintf(os.Stderr, "Error: -kind is required for hybrid search\n\n")
			fs.Usage()
			os.Exit(1)
		}
		records, err := hybridSearch(ctx, cfg, manager, query, kindArg, topK, threshold, weight)
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		outputRecords(records, query, jsonOutput)
		return
	}

	results, err := manager.Search(ctx, query, topK, threshold)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	outputScored(results, query, jsonOutput)
}

// hybridSearch builds the lexical side from cached records and runs a
// blended query.
func hybridSearch(ctx context.Context, cfg *config.Config, manager *semindex.Manager, query, kindArg string, topK int, threshold, weight float64) ([]crm.Record, error) {
	kind := crm.ParseEntityKind(kindArg)

	store, err := crm.NewRecordStore(cfg.Database.RecordsPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	records, err := store.LoadRecords(ctx, kind)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no cached records for kind %s (run `crmdex index -kind %s` first)", kind, kind)
	}

	extractor := &extract.Extractor{ExcludePatterns: cfg.Index.ExcludeProperties}
	lexical, err := retrieval.NewBleveSearcher(records, kind, extractor)
	if err != nil {
		return nil, err
	}
	defer lexical.Close()

	retriever := retrieval.NewHybridRetriever(manager, lexical)
	return retriever.Search(ctx, query, retrieval.SearchOptions{
		TopK:                topK,
		SimilarityThreshold: threshold,
		SemanticWeight:      weight,
	})
}

// outputScored prints semantic results with their similarity scores.
func outputScored(results []semindex.ScoredRecord, query string, jsonOutput bool) {
	if jsonOutput {
		outputJSON(results, query, len(results))
		return
	}
	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("Found %d result(s) for: %s\n\n", len(results), query)
	for i, result := range results {
		fmt.Printf("%d. %s\n", i+1, displayRecord(result.Record))
		fmt.Printf("   ID:    %s\n", result.Record.ID)
		fmt.Printf("   Score: %.3f\n", result.Score)
		fmt.Println()
	}
}

// outputRecords prints hybrid results (fusion scores are internal).
func outputRecords(records []crm.Record, query string, jsonOutput bool) {
	if jsonOutput {
		outputJSON(records, query, len(records))
		return
	}
	if len(records) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("Found %d result(s) for: %s\n\n", len(records), query)
	for i, rec := range records {
		fmt.Printf("%d. %s\n", i+1, displayRecord(rec))
		fmt.Printf("   ID: %s\n", rec.ID)
		fmt.Println()
	}
}

func outputJSON(results interface{}, query string, count int) {
	output := map[string]interface{}{
		"query":   query,
		"count":   count,
		"results": results,
	}
	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal results: %v", err)
	}
	fmt.Println(string(jsonData))
}

// displayRecord renders a compact one-line summary from common
// properties, falling back to the record id.
func displayRecord(rec crm.Record) string {
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
	return strings.Join(parts, " ")
}
