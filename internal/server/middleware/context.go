package middleware

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/strataline/alignd/internal/storage"
)

type App struct {
	DBConn   *pgxpool.Pool
	Queue    *amqp091.Channel
	Sessions *storage.SessionStore
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(
	db *pgxpool.Pool,
	queue *amqp091.Channel,
) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			app := &App{
				DBConn:   db,
				Queue:    queue,
				Sessions: storage.NewSessionStore(db),
			}
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
