package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dataguard/agent/internal/pipeline"
	"github.com/dataguard/agent/pkg/logger"
)

type AnalyzeHandler struct {
	engine *pipeline.Engine
}

func NewAnalyzeHandler(engine *pipeline.Engine) *AnalyzeHandler {
	return &AnalyzeHandler{engine: engine}
}

func (h *AnalyzeHandler) HandleAnalyze(c *fiber.Ctx) error {
	var req struct {
		Query       string   `json:"query"`
		Regulations []string `json:"regulations"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	result := h.engine.Process(c.Context(), pipeline.Request{
		Query:       req.Query,
		Regulations: req.Regulations,
	})

	return c.JSON(result)
}

func (h *AnalyzeHandler) HandleBatch(c *fiber.Ctx) error {
	var req struct {
		Queries []string `json:"queries"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.Queries) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one query is required",
		})
	}

	batch := h.engine.ProcessBatch(c.Context(), req.Queries)
	return c.JSON(batch)
}
