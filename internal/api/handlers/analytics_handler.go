package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dataguard/agent/internal/pipeline"
	"github.com/dataguard/agent/internal/storage/sqlite"
	"github.com/dataguard/agent/pkg/logger"
)

type AnalyticsHandler struct {
	engine *pipeline.Engine
	store  *sqlite.Client
}

func NewAnalyticsHandler(engine *pipeline.Engine, store *sqlite.Client) *AnalyticsHandler {
	return &AnalyticsHandler{engine: engine, store: store}
}

func (h *AnalyticsHandler) HandleAnalytics(c *fiber.Ctx) error {
	analytics, err := h.engine.SystemAnalytics()
	if err != nil {
		logger.Error("Failed to assemble system analytics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to assemble system analytics",
		})
	}

	return c.JSON(analytics)
}

func (h *AnalyticsHandler) HandleRecommendations(c *fiber.Ctx) error {
	recommendations, err := h.store.Recommendations()
	if err != nil {
		logger.Error("Failed to derive recommendations", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to derive recommendations",
		})
	}

	return c.JSON(fiber.Map{
		"recommendations": recommendations,
	})
}

func (h *AnalyticsHandler) HandleInsights(c *fiber.Ctx) error {
	insightType := c.Query("type")
	limit := c.QueryInt("limit", 5)

	insights, err := h.store.RecentInsights(insightType, limit)
	if err != nil {
		logger.Error("Failed to read insights", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read insights",
		})
	}

	return c.JSON(fiber.Map{
		"insights": insights,
	})
}
