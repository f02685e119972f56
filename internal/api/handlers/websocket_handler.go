package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/pipeline"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
)

// WebSocketHandler runs analyses on request and streams their progress
// events back to the client.
type WebSocketHandler struct {
	guard *RunGuard
}

func NewWebSocketHandler(guard *RunGuard) *WebSocketHandler {
	return &WebSocketHandler{
		guard: guard,
	}
}

// Upgrade rejects plain HTTP requests on the WebSocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type string `json:"type"`
			runRequest
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			return
		}

		if msg.Type != "run" {
			h.sendError(c, "unsupported message type "+msg.Type)
			continue
		}
		if err := msg.runRequest.validate(); err != nil {
			h.sendError(c, err.Error())
			continue
		}

		logger.Info("Running analysis over WebSocket",
			zap.String("subject_code", msg.SubjectCode),
			zap.String("semester", msg.Semester),
		)

		if err := h.streamRun(c, msg.runRequest); err != nil {
			if errors.Is(err, errClientGone) {
				return
			}
			logger.Error("Analysis over WebSocket failed", zap.Error(err))
			h.sendError(c, err.Error())
		}
	}
}

var errClientGone = errors.New("websocket client went away")

// streamRun forwards every progress event. A failed write cancels the run so
// an abandoned analysis is marked failed rather than left running.
func (h *WebSocketHandler) streamRun(c *websocket.Conn, req runRequest) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeErr error
	progress := func(ev pipeline.Event) {
		if writeErr != nil {
			return
		}
		if err := c.WriteJSON(ev); err != nil {
			writeErr = err
			logger.Warn("Failed to stream progress", zap.Error(err))
			cancel()
		}
	}

	_, err := h.guard.Run(ctx, req.options(), progress)
	if writeErr != nil {
		return errClientGone
	}
	return err
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to send WebSocket error", zap.Error(err))
	}
}
