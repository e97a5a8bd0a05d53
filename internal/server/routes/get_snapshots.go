package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/strataline/alignd/internal/server/middleware"
	"github.com/strataline/alignd/pkg/state"
)

// GetSessionSnapshotsHandler returns the per-layer snapshots without their
// serialized graph text, which can run to megabytes.
func GetSessionSnapshotsHandler(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid session id"})
	}

	app := c.(*middleware.AppContext).App
	sess, err := app.Sessions.Get(c.Request().Context(), id)
	if err != nil {
		return storageError(c, err)
	}

	stored, err := loadStoredSnapshots(sess)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if stored == nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Results not available yet"})
	}

	snapshots := make([]state.Snapshot, 0, len(stored))
	for _, sn := range stored {
		snapshots = append(snapshots, sn.Snapshot)
	}
	return c.JSON(http.StatusOK, snapshots)
}

// GetSessionDiffHandler recomputes the triple diff between two captured
// layers, e.g. ?before=1&after=2.
func GetSessionDiffHandler(c echo.Context) error {
	type diffParams struct {
		ID     string `param:"id" validate:"required"`
		Before int    `query:"before"`
		After  int    `query:"after"`
	}
	params := new(diffParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	sess, err := app.Sessions.Get(c.Request().Context(), params.ID)
	if err != nil {
		return storageError(c, err)
	}

	stored, err := loadStoredSnapshots(sess)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if stored == nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Results not available yet"})
	}

	var before, after *state.Snapshot
	for i := range stored {
		sn := stored[i].Snapshot
		sn.Serialized = stored[i].SerializedGraph
		if sn.Layer == params.Before {
			before = &sn
		}
		if sn.Layer == params.After {
			after = &sn
		}
	}
	if before == nil || after == nil {
		missing := &state.MissingSnapshotError{
			LayerBefore: params.Before,
			LayerAfter:  params.After,
		}
		return c.JSON(http.StatusNotFound, map[string]string{"error": missing.Error()})
	}

	diff, err := state.DiffSnapshots(*before, *after)
	if err != nil {
		var missing *state.MissingSnapshotError
		if errors.As(err, &missing) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": missing.Error()})
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, diff)
}
