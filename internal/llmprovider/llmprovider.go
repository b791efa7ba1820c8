// Package llmprovider is the pluggable "text → text" LLM abstraction used
// by the Fact Extractor (spec.md §4.C) and the Semantic Deduper's decision
// call (spec.md §4.E). Per spec.md §1, the model implementation itself is
// an external collaborator; this package fixes only the call contract and
// the provider-resolution chain.
//
// Grounded on the teacher's pkg/deck/facets_llm.go: the same CallFunc
// shape, the same explicit-key > credentials-manager > env-var > ollama-
// fallback resolution order, and the same per-provider HTTP callers
// (openai chat/completions, anthropic messages, ollama chat), generalized
// from session-facet extraction to arbitrary fact-extraction/dedup-decision
// prompts.
package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/memoryforge/mnemo/pkg/credentials"
)

// CallFunc invokes an LLM with a fully-formed prompt and returns its raw
// text response. Implementations MUST enforce their own deadline at or
// below the ctx deadline.
type CallFunc func(ctx context.Context, prompt string) (string, error)

// Config selects and authenticates a provider.
type Config struct {
	Provider string // "openai" | "anthropic" | "ollama"
	Model    string
	APIKey   string // explicit override, highest precedence
	BaseURL  string
	CredMgr  *credentials.Manager
}

const defaultCallTimeout = 30 * time.Second

// HasCredentials reports whether a usable credential exists for cfg's
// provider without constructing a caller — used by callers that want to
// skip LLM-dependent stages entirely rather than fail mid-pipeline.
func HasCredentials(cfg Config) bool {
	if cfg.Provider == "ollama" || cfg.Provider == "" {
		return true // local daemon, no key required
	}
	return resolveAPIKey(cfg) != ""
}

// New resolves cfg into a concrete CallFunc. Resolution order for the API
// key: explicit cfg.APIKey > credentials manager > environment variable.
// If the provider requires a key and none is found, New falls back to a
// local ollama caller rather than failing outright, unless the caller
// explicitly asked for ollama already (in which case there is nothing to
// fall back from).
func New(cfg Config) (CallFunc, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "ollama"
	}

	switch provider {
	case "openai":
		key := resolveAPIKey(cfg)
		if key == "" {
			return newOllamaCaller(cfg), nil
		}
		return newOpenAICaller(cfg, key), nil
	case "anthropic":
		key := resolveAPIKey(cfg)
		if key == "" {
			return newOllamaCaller(cfg), nil
		}
		return newAnthropicCaller(cfg, key), nil
	case "ollama":
		return newOllamaCaller(cfg), nil
	default:
		return nil, fmt.Errorf("llmprovider: unsupported provider %q", provider)
	}
}

func resolveAPIKey(cfg Config) string {
	return cfg.CredMgr.Resolve(cfg.Provider, cfg.APIKey)
}

func postJSON(ctx context.Context, url string, headers map[string]string, body any, timeout time.Duration) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func newOpenAICaller(cfg Config, apiKey string) CallFunc {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := map[string]any{
			"model": model,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
			"response_format": map[string]string{"type": "json_object"},
		}
		headers := map[string]string{"Authorization": "Bearer " + apiKey}

		respBody, err := postJSON(ctx, baseURL+"/v1/chat/completions", headers, reqBody, defaultCallTimeout)
		if err != nil {
			return "", err
		}

		var parsed struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("decoding openai response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("openai response had no choices")
		}
		return parsed.Choices[0].Message.Content, nil
	}
}

func newAnthropicCaller(cfg Config, apiKey string) CallFunc {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}

	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := map[string]any{
			"model":      model,
			"max_tokens": 4096,
			"messages": []map[string]string{
				{"role": "user", "content": prompt + "\n\nReturn ONLY valid JSON, no prose, no markdown fences."},
			},
		}
		headers := map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": "2023-06-01",
		}

		respBody, err := postJSON(ctx, baseURL+"/v1/messages", headers, reqBody, defaultCallTimeout)
		if err != nil {
			return "", err
		}

		var parsed struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("decoding anthropic response: %w", err)
		}
		for _, block := range parsed.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", fmt.Errorf("anthropic response had no text block")
	}
}

func newOllamaCaller(cfg Config) CallFunc {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}

	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := map[string]any{
			"model":  model,
			"stream": false,
			"format": "json",
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
		}

		respBody, err := postJSON(ctx, baseURL+"/api/chat", nil, reqBody, defaultCallTimeout)
		if err != nil {
			return "", err
		}

		var parsed struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("decoding ollama response: %w", err)
		}
		return parsed.Message.Content, nil
	}
}
