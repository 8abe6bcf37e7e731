package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/crmdex/crmdex/internal/config"
	"github.com/crmdex/crmdex/internal/crm"
	"github.com/crmdex/crmdex/internal/semindex"
)

// handleIndex implements the index subcommand
func handleIndex(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)

	var kindArg string
	var limit int
	var refresh, noPersist bool

	fs.StringVar(&kindArg, "kind", "", "Entity kind: contacts, companies, deals or engagements")
	fs.IntVar(&limit, "limit", 0, "Max records to fetch (0 = config default)")
	fs.BoolVar(&refresh, "refresh", false, "Refetch records from the CRM API instead of the local cache")
	fs.BoolVar(&noPersist, "no-persist", false, "Keep the built index in memory only")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    crmdex index -kind <kind> [options]

DESCRIPTION:
    Build the semantic search index for one CRM entity kind.
    This will:
      1. Load records from the local cache (or fetch via the CRM API)
      2. Extract searchable text from each record
      3. Generate embeddings, reusing cached vectors where possible
      4. Build the similarity index and persist it to disk

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Index cached contacts
    crmdex index -kind contacts

    # Refetch companies from the API, capped at 500 records
    crmdex index -kind companies -refresh -limit 500
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if kindArg == "" {
		fmt.Fprintf(os.Stderr, "Error: -kind is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	kind := crm.ParseEntityKind(kindArg)

	store, err := crm.NewRecordStore(cfg.Database.RecordsPath)
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	records, err := loadRecords(ctx, cfg, store, kind, limit, refresh)
	if err != nil {
		log.Fatalf("Failed to load records: %v", err)
	}

	fmt.Printf("Building %s index over %d record(s)\n\n", kind, len(records))

	manager := newManager(cfg)
	manager.SetProgress(semindex.NewBuildProgress(semindex.DefaultProgressEnabled()))

	startTime := time.Now()
	result, err := manager.Build(ctx, records, kind)
	if err != nil {
		log.Fatalf("Indexing failed: %v", err)
	}

	if !noPersist {
		if err := manager.Persist(cfg.Database.IndexPath); err != nil {
			log.Fatalf("Failed to persist index: %v", err)
		}
	}

	duration := time.Since(startTime)
	stats := manager.Stats()

	fmt.Println()
	fmt.Println("Indexing completed successfully.")
	fmt.Printf("\nDuration: %v\n", duration)
	fmt.Println("\nStatistics:")
	fmt.Printf("   Indexed:    %6d\n", result.Indexed)
	fmt.Printf("   Skipped:    %6d\n", result.Skipped)
	fmt.Printf("   Dimension:  %6d\n", stats.Dimension)
	fmt.Printf("   Index type: %6s\n", stats.IndexType)
}

// loadRecords serves records from the local store, falling back to (or
// forced onto) the upstream CRM API.
func loadRecords(ctx context.Context, cfg *config.Config, store *crm.RecordStore, kind crm.EntityKind, limit int, refresh bool) ([]crm.Record, error) {
	if !refresh {
		records, err := store.LoadRecords(ctx, kind)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records, nil
		}
		fmt.Printf("No cached %s records, fetching from the CRM API...\n", kind)
	}

	client, err := crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.AccessToken)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = cfg.CRM.FetchLimit
	}
	records, err := client.ListAll(ctx, kind, limit)
	if err != nil {
		return nil, err
	}
	if err := store.SaveRecords(ctx, kind, records); err != nil {
		log.Printf("Warning: failed to cache fetched records: %v", err)
	}
	return records, nil
}
