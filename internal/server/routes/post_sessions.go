package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/strataline/alignd/internal/queue"
	"github.com/strataline/alignd/internal/server/middleware"
	"github.com/strataline/alignd/internal/storage"
	"github.com/strataline/alignd/pkg/logger"
)

// CreateSessionHandler accepts plan text, creates a pending session row and
// enqueues the analysis job. The run itself happens in the worker.
func CreateSessionHandler(c echo.Context) error {
	type createSessionParams struct {
		StrategicText string `json:"strategic_text" validate:"required"`
		ActionText    string `json:"action_text" validate:"required"`
		Model         string `json:"model"`
	}

	params := new(createSessionParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "strategic_text and action_text are required"})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	id, err := gonanoid.New()
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	err = app.Sessions.Create(ctx, storage.CreateSessionParams{
		ID:            id,
		Model:         params.Model,
		StrategicText: params.StrategicText,
		ActionText:    params.ActionText,
	})
	if err != nil {
		logger.Error("[Server] Failed to create session", "err", err)
		return c.String(http.StatusInternalServerError, err.Error())
	}

	msg, err := json.Marshal(queue.AnalyzeSessionMsg{
		SessionID:     id,
		Model:         params.Model,
		StrategicText: params.StrategicText,
		ActionText:    params.ActionText,
	})
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if err := queue.PublishFIFO(app.Queue, queue.AnalyzeQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue session", "session_id", id, "err", err)
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"session_id": id,
		"status":     storage.StatusPending,
	})
}
