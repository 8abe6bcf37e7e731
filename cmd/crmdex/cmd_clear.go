package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/crmdex/crmdex/internal/config"
	"github.com/crmdex/crmdex/internal/crm"
	"github.com/crmdex/crmdex/internal/semindex"
)

// handleClear implements the clear subcommand
func handleClear(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)

	var kindArg string
	fs.StringVar(&kindArg, "records", "", "Also delete cached records of this entity kind")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    crmdex clear [options]

DESCRIPTION:
    Delete the persisted index artifacts (index, metadata and embedding
    cache). Cached CRM records are kept unless -records is given.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Delete the persisted index
    crmdex clear

    # Also drop cached contact records
    crmdex clear -records contacts
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if err := semindex.RemoveArtifacts(cfg.Database.IndexPath); err != nil {
		log.Fatalf("Failed to remove index artifacts: %v", err)
	}
	fmt.Println("Deleted persisted index artifacts.")

	if kindArg != "" {
		kind := crm.ParseEntityKind(kindArg)
		store, err := crm.NewRecordStore(cfg.Database.RecordsPath)
		if err != nil {
			log.Fatalf("Failed to open record store: %v", err)
		}
		defer store.Close()
		if err := store.DeleteKind(context.Background(), kind); err != nil {
			log.Fatalf("Failed to delete cached records: %v", err)
		}
		fmt.Printf("Deleted cached %s records.\n", kind)
	}
}
