package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/crmdex/crmdex/cmd/crmdex/internal"
	"github.com/crmdex/crmdex/internal/config"
	"github.com/crmdex/crmdex/internal/mcpserver"
)

// handleMCP implements the MCP stdio server subcommand
func handleMCP(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    crmdex mcp

DESCRIPTION:
    Run an MCP stdio server exposing:
      - crm_build_index
      - crm_semantic_search
      - crm_hybrid_search
      - crm_index_status
      - crm_clear_index
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	server, err := mcpserver.New(cfg, internal.Version)
	if err != nil {
		log.Fatalf("Failed to start MCP server: %v", err)
	}
	defer server.Close()

	if err := server.Run(context.Background()); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}
}
