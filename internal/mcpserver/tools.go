package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memoryforge/mnemo/internal/engine"
)

var (
	summaryDescription          = "Return a compact one-line summary of the persistent memory store: date, total fact count, and top categories."
	searchDescription           = "Search the persistent memory store by prefix, exact keys, free text (fused vector + keyword search), or verdict filters."
	storeDescription            = "Store a fact under a dotted key (e.g. user.city). Supersedes any existing active value for that key."
	listInstinctsDescription    = "List all active agent.instinct.* records, most confident first."
	showInstinctDescription     = "Show a single instinct record by its full key."
	deleteInstinctDescription   = "Close (deactivate) an instinct record by its full key."
	extractInstinctsDescription = "Mine cases and patterns from transcripts and the store's own history, then distill and optionally persist instincts."
)

// SummaryInput takes no parameters.
type SummaryInput struct{}

// SummaryOutput is the `summary` op's result.
type SummaryOutput struct {
	Summary string `json:"summary"`
}

func (s *Server) handleSummary(ctx context.Context, _ *mcp.CallToolRequest, _ SummaryInput) (*mcp.CallToolResult, SummaryOutput, error) {
	summary, err := s.config.Engine.Summary(ctx)
	if err != nil {
		return errorResult("summary failed: %v", err), SummaryOutput{}, nil
	}
	output := SummaryOutput{Summary: summary}
	result, err := jsonResult(output)
	if err != nil {
		return errorResult("failed to serialize results: %v", err), SummaryOutput{}, nil
	}
	return result, output, nil
}

// SearchInput is the `search` op's parameters.
type SearchInput struct {
	Prefix         string   `json:"prefix,omitempty" jsonschema:"restrict results to keys with this dotted prefix"`
	Keys           []string `json:"keys,omitempty" jsonschema:"restrict results to this exact set of normalized keys"`
	Text           string   `json:"text,omitempty" jsonschema:"free text query, fused across vector and keyword search"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum results to return, default 10"`
	SourceVerified bool     `json:"source_verified,omitempty" jsonschema:"exclude inferred.* facts"`
	Subject        string   `json:"subject,omitempty" jsonschema:"substring filter on the fact's key"`
	MaxAgeDays     int      `json:"max_age_days,omitempty" jsonschema:"exclude facts older than this many days"`
	Type           string   `json:"type,omitempty" jsonschema:"restrict results to a configured type_mappings category"`
}

// SearchOutput is the `search` op's result.
type SearchOutput struct {
	Results []engine.SearchResultItem `json:"results"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	results, err := s.config.Engine.Search(ctx, engine.SearchRequest{
		Prefix:         input.Prefix,
		Keys:           input.Keys,
		Text:           input.Text,
		Limit:          input.Limit,
		SourceVerified: input.SourceVerified,
		Subject:        input.Subject,
		MaxAgeDays:     input.MaxAgeDays,
		Type:           input.Type,
	})
	if err != nil {
		return errorResult("search failed: %v", err), SearchOutput{}, nil
	}
	output := SearchOutput{Results: results}
	result, err := jsonResult(output)
	if err != nil {
		return errorResult("failed to serialize results: %v", err), SearchOutput{}, nil
	}
	return result, output, nil
}

// StoreInput is the `store` op's parameters.
type StoreInput struct {
	Key   string `json:"key" jsonschema:"the dotted fact key, e.g. user.city"`
	Value string `json:"value" jsonschema:"the fact value"`
}

// StoreOutput is the `store` op's result.
type StoreOutput struct {
	Key    string `json:"key"`
	Result string `json:"result"`
	RowID  int64  `json:"row_id"`
}

func (s *Server) handleStore(ctx context.Context, _ *mcp.CallToolRequest, input StoreInput) (*mcp.CallToolResult, StoreOutput, error) {
	if input.Key == "" || input.Value == "" {
		return errorResult("key and value are required"), StoreOutput{}, nil
	}
	res, err := s.config.Engine.Store(ctx, input.Key, input.Value)
	if err != nil {
		return errorResult("store failed: %v", err), StoreOutput{}, nil
	}
	output := StoreOutput{Key: res.Key, Result: string(res.Result), RowID: res.RowID}
	result, err := jsonResult(output)
	if err != nil {
		return errorResult("failed to serialize results: %v", err), StoreOutput{}, nil
	}
	return result, output, nil
}

// ListInstinctsInput takes no parameters.
type ListInstinctsInput struct{}

// InstinctItem mirrors engine.InstinctItem with JSON tags for the wire.
type InstinctItem struct {
	Key        string  `json:"key"`
	Trigger    string  `json:"trigger"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Domain     string  `json:"domain"`
	Evidence   int     `json:"evidence_count"`
}

func toInstinctItem(i engine.InstinctItem) InstinctItem {
	return InstinctItem{
		Key:        i.Key,
		Trigger:    i.Instinct.Trigger,
		Action:     i.Instinct.Action,
		Confidence: i.Instinct.Confidence,
		Domain:     i.Instinct.Domain,
		Evidence:   i.Instinct.EvidenceCount,
	}
}

// ListInstinctsOutput is the `list_instincts` op's result.
type ListInstinctsOutput struct {
	Instincts []InstinctItem `json:"instincts"`
}

func (s *Server) handleListInstincts(ctx context.Context, _ *mcp.CallToolRequest, _ ListInstinctsInput) (*mcp.CallToolResult, ListInstinctsOutput, error) {
	items, err := s.config.Engine.ListInstincts(ctx)
	if err != nil {
		return errorResult("list_instincts failed: %v", err), ListInstinctsOutput{}, nil
	}
	out := make([]InstinctItem, len(items))
	for i, it := range items {
		out[i] = toInstinctItem(it)
	}
	output := ListInstinctsOutput{Instincts: out}
	result, err := jsonResult(output)
	if err != nil {
		return errorResult("failed to serialize results: %v", err), ListInstinctsOutput{}, nil
	}
	return result, output, nil
}

// ShowInstinctInput is the `show_instinct` op's parameters.
type ShowInstinctInput struct {
	Key string `json:"key" jsonschema:"the instinct's full key, e.g. agent.instinct.error.not_found"`
}

func (s *Server) handleShowInstinct(ctx context.Context, _ *mcp.CallToolRequest, input ShowInstinctInput) (*mcp.CallToolResult, InstinctItem, error) {
	if input.Key == "" {
		return errorResult("key is required"), InstinctItem{}, nil
	}
	item, err := s.config.Engine.ShowInstinct(ctx, input.Key)
	if err != nil {
		return errorResult("show_instinct failed: %v", err), InstinctItem{}, nil
	}
	output := toInstinctItem(item)
	result, err := jsonResult(output)
	if err != nil {
		return errorResult("failed to serialize results: %v", err), InstinctItem{}, nil
	}
	return result, output, nil
}

// DeleteInstinctInput is the `delete_instinct` op's parameters.
type DeleteInstinctInput struct {
	Key string `json:"key" jsonschema:"the instinct's full key to close"`
}

// DeleteInstinctOutput confirms closure.
type DeleteInstinctOutput struct {
	Deleted string `json:"deleted"`
}

func (s *Server) handleDeleteInstinct(ctx context.Context, _ *mcp.CallToolRequest, input DeleteInstinctInput) (*mcp.CallToolResult, DeleteInstinctOutput, error) {
	if input.Key == "" {
		return errorResult("key is required"), DeleteInstinctOutput{}, nil
	}
	if err := s.config.Engine.DeleteInstinct(ctx, input.Key); err != nil {
		return errorResult("delete_instinct failed: %v", err), DeleteInstinctOutput{}, nil
	}
	output := DeleteInstinctOutput{Deleted: input.Key}
	result, err := jsonResult(output)
	if err != nil {
		return errorResult("failed to serialize results: %v", err), DeleteInstinctOutput{}, nil
	}
	return result, output, nil
}

// ExtractInstinctsInput is the `extract_instincts` op's parameters.
type ExtractInstinctsInput struct {
	MinConfidence float64  `json:"min_confidence,omitempty" jsonschema:"minimum confidence to keep, default 0.5"`
	Store         bool     `json:"store,omitempty" jsonschema:"persist generated instincts instead of a dry run"`
	Transcripts   []string `json:"transcripts,omitempty" jsonschema:"paths to normalized transcript JSONL files to mine in addition to the store's own history"`
}

// ExtractedInstinct mirrors learn.NamedInstinct with JSON tags for the wire.
type ExtractedInstinct struct {
	Key        string  `json:"key"`
	Trigger    string  `json:"trigger"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Domain     string  `json:"domain"`
	Evidence   int     `json:"evidence_count"`
}

// ExtractInstinctsOutput is the `extract_instincts` op's result.
type ExtractInstinctsOutput struct {
	Instincts []ExtractedInstinct `json:"instincts"`
}

func (s *Server) handleExtractInstincts(ctx context.Context, _ *mcp.CallToolRequest, input ExtractInstinctsInput) (*mcp.CallToolResult, ExtractInstinctsOutput, error) {
	instincts, err := s.config.Engine.ExtractInstincts(ctx, engine.ExtractInstinctsRequest{
		MinConfidence: input.MinConfidence,
		Store:         input.Store,
		Transcripts:   input.Transcripts,
	})
	if err != nil {
		return errorResult("extract_instincts failed: %v", err), ExtractInstinctsOutput{}, nil
	}
	out := make([]ExtractedInstinct, len(instincts))
	for i, ni := range instincts {
		out[i] = ExtractedInstinct{
			Key:        ni.Key,
			Trigger:    ni.Instinct.Trigger,
			Action:     ni.Instinct.Action,
			Confidence: ni.Instinct.Confidence,
			Domain:     ni.Instinct.Domain,
			Evidence:   ni.Instinct.EvidenceCount,
		}
	}
	output := ExtractInstinctsOutput{Instincts: out}
	result, err := jsonResult(output)
	if err != nil {
		return errorResult("failed to serialize results: %v", err), ExtractInstinctsOutput{}, nil
	}
	return result, output, nil
}
