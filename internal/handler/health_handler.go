package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// RegisterHealthRoutes wires liveness and readiness probes. sqlDB is nil
// unless the postgres storage driver is selected.
func RegisterHealthRoutes(app fiber.Router, rdb *redis.Client, sqlDB *sql.DB) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(rdb, sqlDB))
	app.Get("/health", ReadyzHandler(rdb, sqlDB))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(rdb *redis.Client, sqlDB *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		checks := fiber.Map{}
		ready := true

		if rdb != nil {
			redisStatus := "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "down"
				ready = false
			}
			checks["redis"] = redisStatus
		}

		if sqlDB != nil {
			pgStatus := "ok"
			if err := sqlDB.PingContext(ctx); err != nil {
				pgStatus = "down"
				ready = false
			}
			checks["postgres"] = pgStatus
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
