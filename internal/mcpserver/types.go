package mcpserver

// BuildInput defines inputs for the crm_build_index MCP tool.
type BuildInput struct {
	Kind    string `json:"kind" jsonschema:"entity kind: contacts, companies, deals or engagements"`
	Limit   int    `json:"limit,omitempty" jsonschema:"max records to fetch (0 = no cap)"`
	Refresh bool   `json:"refresh,omitempty" jsonschema:"refetch records from the CRM API instead of the local cache"`
	Persist bool   `json:"persist,omitempty" jsonschema:"persist the built index to disk"`
}

// BuildOutput is the output for crm_build_index.
type BuildOutput struct {
	Kind    string `json:"kind"`
	Indexed int    `json:"indexed"`
	Skipped int    `json:"skipped"`
	Status  string `json:"status"`
}

// SearchInput defines inputs for the crm_semantic_search MCP tool.
type SearchInput struct {
	Query     string  `json:"query" jsonschema:"free-text search query"`
	TopK      int     `json:"top_k,omitempty" jsonschema:"number of results to return"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"minimum similarity score in (0,1]"`
}

// SearchResultItem is a compact representation of one search result.
type SearchResultItem struct {
	ID      string  `json:"id"`
	Display string  `json:"display"`
	Score   float64 `json:"score,omitempty"`
}

// SearchOutput is the output for crm_semantic_search and
// crm_hybrid_search.
type SearchOutput struct {
	Query   string             `json:"query"`
	Count   int                `json:"count"`
	Results []SearchResultItem `json:"results"`
}

// HybridInput defines inputs for the crm_hybrid_search MCP tool.
type HybridInput struct {
	Query          string  `json:"query" jsonschema:"free-text search query"`
	Kind           string  `json:"kind" jsonschema:"entity kind to search"`
	TopK           int     `json:"top_k,omitempty" jsonschema:"number of results to return"`
	SemanticWeight float64 `json:"semantic_weight,omitempty" jsonschema:"semantic vs lexical blend in [0,1]"`
	Threshold      float64 `json:"threshold,omitempty" jsonschema:"minimum semantic similarity score"`
}

// StatusInput defines inputs for the crm_index_status MCP tool.
type StatusInput struct{}

// StatusOutput is the output for crm_index_status.
type StatusOutput struct {
	Status        string `json:"status"`
	TotalEntities int    `json:"total_entities"`
	Dimension     int    `json:"dimension"`
	IndexType     string `json:"index_type"`
	ModelName     string `json:"model_name"`
	CacheSize     int    `json:"cache_size"`
	Message       string `json:"message"`
}

// ClearInput defines inputs for the crm_clear_index MCP tool.
type ClearInput struct {
	ClearCache bool `json:"clear_cache,omitempty" jsonschema:"also clear the embedding cache"`
}

// ClearOutput is the output for crm_clear_index.
type ClearOutput struct {
	Status string `json:"status"`
}
