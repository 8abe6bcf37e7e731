package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/crmdex/crmdex/internal/config"
	"github.com/crmdex/crmdex/internal/semindex"
)

// handleStats implements the stats subcommand
func handleStats(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	var jsonOutput bool
	fs.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    crmdex stats [options]

DESCRIPTION:
    Show statistics about the persisted semantic index.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Show human-readable statistics
    crmdex stats

    # JSON output
    crmdex stats -json
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	manager := newManager(cfg)
	if err := manager.Restore(cfg.Database.IndexPath); err != nil {
		log.Printf("No persisted index: %v", err)
	}
	stats := manager.Stats()

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("Index Statistics")
	fmt.Println()
	fmt.Printf("Status:     %s\n", stats.Status)
	if stats.Status == semindex.StatusNotInitialized {
		fmt.Println("\nRun `crmdex index -kind <kind>` to build the index.")
		return
	}
	fmt.Printf("Entities:   %6d\n", stats.TotalEntities)
	fmt.Printf("Dimension:  %6d\n", stats.Dimension)
	fmt.Printf("Index type: %6s\n", stats.IndexType)
	fmt.Printf("Model:      %s\n", stats.ModelName)
	fmt.Printf("Cache size: %6d\n", stats.CacheSize)
}
