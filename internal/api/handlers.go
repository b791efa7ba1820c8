package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/memoryforge/mnemo/internal/engine"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleSummary handles GET /v1/summary — the `summary` op.
func (s *Server) handleSummary(c *fiber.Ctx) error {
	summary, err := s.engine.Summary(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"summary": summary})
}

// handleSearch handles GET /v1/search — the `search` op. Query
// parameters: prefix, keys (comma-separated), text, limit, source_verified,
// subject, max_age_days, type.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	req := engine.SearchRequest{
		Prefix:         c.Query("prefix"),
		Text:           c.Query("text"),
		Subject:        c.Query("subject"),
		Type:           c.Query("type"),
		SourceVerified: c.QueryBool("source_verified"),
	}
	if keys := c.Query("keys"); keys != "" {
		req.Keys = splitCSV(keys)
	}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			req.Limit = n
		}
	}
	if maxAge := c.Query("max_age_days"); maxAge != "" {
		if n, err := strconv.Atoi(maxAge); err == nil {
			req.MaxAgeDays = n
		}
	}

	results, err := s.engine.Search(c.Context(), req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"results": results})
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// storeRequest is the `store` op's JSON body.
type storeRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// handleStore handles POST /v1/store — the `store` op.
func (s *Server) handleStore(c *fiber.Ctx) error {
	var req storeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Key == "" || req.Value == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "key and value are required"})
	}

	result, err := s.engine.Store(c.Context(), req.Key, req.Value)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(result)
}

// handleListInstincts handles GET /v1/instincts — the `list_instincts` op.
func (s *Server) handleListInstincts(c *fiber.Ctx) error {
	items, err := s.engine.ListInstincts(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"instincts": items})
}

// handleShowInstinct handles GET /v1/instincts/:key — the `show_instinct` op.
func (s *Server) handleShowInstinct(c *fiber.Ctx) error {
	key := c.Params("key")
	item, err := s.engine.ShowInstinct(c.Context(), key)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(item)
}

// handleDeleteInstinct handles DELETE /v1/instincts/:key — the
// `delete_instinct` op.
func (s *Server) handleDeleteInstinct(c *fiber.Ctx) error {
	key := c.Params("key")
	if err := s.engine.DeleteInstinct(c.Context(), key); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"deleted": key})
}

// extractInstinctsRequest is the `extract_instincts` op's JSON body.
type extractInstinctsRequest struct {
	MinConfidence float64  `json:"min_confidence"`
	Store         bool     `json:"store"`
	Transcripts   []string `json:"transcripts"`
}

// handleExtractInstincts handles POST /v1/instincts/extract — the
// `extract_instincts` op.
func (s *Server) handleExtractInstincts(c *fiber.Ctx) error {
	var req extractInstinctsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	instincts, err := s.engine.ExtractInstincts(c.Context(), engine.ExtractInstinctsRequest{
		MinConfidence: req.MinConfidence,
		Store:         req.Store,
		Transcripts:   req.Transcripts,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.JSON(fiber.Map{"instincts": instincts})
}
