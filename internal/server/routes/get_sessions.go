package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/strataline/alignd/internal/server/middleware"
	"github.com/strataline/alignd/internal/storage"
)

func sessionID(c echo.Context) (string, error) {
	type sessionParams struct {
		ID string `param:"id" validate:"required"`
	}
	params := new(sessionParams)
	if err := c.Bind(params); err != nil {
		return "", err
	}
	if err := c.Validate(params); err != nil {
		return "", err
	}
	return params.ID, nil
}

func storageError(c echo.Context, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}
	return c.String(http.StatusInternalServerError, err.Error())
}

// GetSessionHandler returns the session status summary without the plan
// text or result payloads.
func GetSessionHandler(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid session id"})
	}

	app := c.(*middleware.AppContext).App
	sess, err := app.Sessions.Get(c.Request().Context(), id)
	if err != nil {
		return storageError(c, err)
	}

	type sessionSummary struct {
		ID           string    `json:"id"`
		Status       string    `json:"status"`
		Model        string    `json:"model"`
		LayersDone   int       `json:"layers_done"`
		ErrorMessage string    `json:"error_message,omitempty"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}

	return c.JSON(http.StatusOK, sessionSummary{
		ID:           sess.ID,
		Status:       sess.Status,
		Model:        sess.Model,
		LayersDone:   sess.LayersDone,
		ErrorMessage: sess.ErrorMessage,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	})
}

func resultsFieldHandler(c echo.Context, field string) error {
	id, err := sessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid session id"})
	}

	app := c.(*middleware.AppContext).App
	data, err := app.Sessions.ResultsField(c.Request().Context(), id, field)
	if err != nil {
		return storageError(c, err)
	}
	if string(data) == "null" {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Results not available yet"})
	}
	return c.JSONBlob(http.StatusOK, data)
}

// GetSessionMetricsHandler returns the derived metric report.
func GetSessionMetricsHandler(c echo.Context) error {
	return resultsFieldHandler(c, "metrics")
}

// GetSessionRecommendationsHandler returns the benchmarking output: the six
// dimension verdicts and the prioritized recommendations.
func GetSessionRecommendationsHandler(c echo.Context) error {
	return resultsFieldHandler(c, "benchmark")
}

// GetSessionValidationHandler returns the per-layer validation reports.
func GetSessionValidationHandler(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid session id"})
	}

	app := c.(*middleware.AppContext).App
	sess, err := app.Sessions.Get(c.Request().Context(), id)
	if err != nil {
		return storageError(c, err)
	}
	if len(sess.Validations) == 0 || string(sess.Validations) == "null" {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Results not available yet"})
	}
	return c.JSONBlob(http.StatusOK, sess.Validations)
}

// GetSessionGraphHandler returns the serialized triple text of the final
// graph state.
func GetSessionGraphHandler(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid session id"})
	}

	app := c.(*middleware.AppContext).App
	sess, err := app.Sessions.Get(c.Request().Context(), id)
	if err != nil {
		return storageError(c, err)
	}
	if sess.GraphText == "" {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Results not available yet"})
	}
	return c.String(http.StatusOK, sess.GraphText)
}

// GetSessionOracleLogHandler returns the oracle call log with aggregate
// stats.
func GetSessionOracleLogHandler(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid session id"})
	}

	app := c.(*middleware.AppContext).App
	sess, err := app.Sessions.Get(c.Request().Context(), id)
	if err != nil {
		return storageError(c, err)
	}
	if len(sess.OracleLog) == 0 || string(sess.OracleLog) == "null" {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Results not available yet"})
	}
	return c.JSONBlob(http.StatusOK, sess.OracleLog)
}

func loadStoredSnapshots(sess storage.Session) ([]storage.StoredSnapshot, error) {
	if len(sess.Snapshots) == 0 || string(sess.Snapshots) == "null" {
		return nil, nil
	}
	var snapshots []storage.StoredSnapshot
	if err := json.Unmarshal(sess.Snapshots, &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}
