package internal

import (
	"fmt"
	"os"
)

const Version = "0.3.1"

// PrintUsage writes the top-level usage and subcommand list to stderr.
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `crmdex - Semantic Search for CRM Records

Version: %s

USAGE:
    crmdex [global options] <command> [command options]

GLOBAL OPTIONS:
    -config <path>
        Path to config file (default: ~/.crmdex/config/crmdex.yaml)

    -v, -version
        Show version information

    -h, -help
        Show this help message

COMMANDS:
    index
        Fetch CRM records and build the semantic index

    search
        Search indexed records by meaning, optionally blended with
        keyword relevance

    stats
        Show index statistics

    clear
        Delete the persisted index artifacts

    mcp
        Run MCP stdio server (tools: crm_build_index, crm_semantic_search,
        crm_hybrid_search, crm_index_status, crm_clear_index)

EXAMPLES:
    # Index all contacts
    crmdex index -kind contacts

    # Refetch from the CRM API and persist the rebuilt index
    crmdex index -kind deals -refresh

    # Semantic search
    crmdex search "enterprise customers in fintech"

    # Hybrid search over companies
    crmdex search -hybrid -kind companies "acme renewals"

    # Show statistics
    crmdex stats

    # Run MCP server over stdio
    crmdex mcp

For detailed help on each command, use:
    crmdex <command> -help
`, Version)
}
