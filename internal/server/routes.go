package server

import (
	"github.com/labstack/echo/v4"

	"github.com/strataline/alignd/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Session routes
	apiRoutes.POST("/sessions", routes.CreateSessionHandler)
	apiRoutes.GET("/sessions/:id", routes.GetSessionHandler)
	apiRoutes.GET("/sessions/:id/metrics", routes.GetSessionMetricsHandler)
	apiRoutes.GET("/sessions/:id/recommendations", routes.GetSessionRecommendationsHandler)
	apiRoutes.GET("/sessions/:id/snapshots", routes.GetSessionSnapshotsHandler)
	apiRoutes.GET("/sessions/:id/diff", routes.GetSessionDiffHandler)
	apiRoutes.GET("/sessions/:id/validation", routes.GetSessionValidationHandler)
	apiRoutes.GET("/sessions/:id/graph", routes.GetSessionGraphHandler)
	apiRoutes.GET("/sessions/:id/oracle-log", routes.GetSessionOracleLogHandler)
}
