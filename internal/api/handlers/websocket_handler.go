package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/dataguard/agent/internal/pipeline"
	"github.com/dataguard/agent/pkg/logger"
)

type WebSocketHandler struct {
	engine *pipeline.Engine
}

func NewWebSocketHandler(engine *pipeline.Engine) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type        string   `json:"type"`
			Query       string   `json:"query"`
			Regulations []string `json:"regulations"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "analyze" {
			continue
		}

		logger.Info("Processing WebSocket analysis", zap.String("query", msg.Query))

		err = h.streamAnalysis(c, msg.Query, msg.Regulations)
		if err != nil {
			logger.Error("Failed to stream analysis", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

// streamAnalysis pushes every pipeline state transition to the client as it
// happens, then the full result. Write errors during streaming are swallowed
// so the pipeline run itself is never interrupted mid-flight.
func (h *WebSocketHandler) streamAnalysis(c *websocket.Conn, query string, regulations []string) error {
	result := h.engine.Process(context.Background(), pipeline.Request{
		Query:       query,
		Regulations: regulations,
		OnStage: func(stage pipeline.Stage) {
			h.sendStage(c, stage)
		},
	})

	return c.WriteJSON(map[string]interface{}{
		"type":   "complete",
		"result": result,
	})
}

func (h *WebSocketHandler) sendStage(c *websocket.Conn, stage pipeline.Stage) {
	msg := map[string]interface{}{
		"type":  "stage",
		"stage": string(stage),
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Warn("Failed to send stage update", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Error("Failed to send error message", zap.Error(err))
	}
}
