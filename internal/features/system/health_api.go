package system

import (
	"context"
	"time"

	"go-erp/internal/database"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type HealthApi struct {
	mongodb *database.MongodbDB
	redis   redis.UniversalClient
}

// NewHealthApi accepts nil backends; a nil store reports "memory" and a nil
// Redis client reports "local" locks.
func NewHealthApi(mongodb *database.MongodbDB, client redis.UniversalClient) *HealthApi {
	return &HealthApi{mongodb: mongodb, redis: client}
}

// Setup registers health check routes
func (h *HealthApi) Setup(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/health/ready", h.Ready)
}

// HealthCheck godoc
// @Summary      Health Check
// @Description  Check if the server is up
// @Tags         health
// @Produce      plain
// @Success      200  {string}  string  "OK"
// @Router       /health [get]
func (h *HealthApi) HealthCheck(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Ready godoc
// @Summary      Readiness Check
// @Description  Ping the request store and the lock backend
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /health/ready [get]
func (h *HealthApi) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.Map{"store": "memory", "locks": "local"}
	ready := true

	if h.mongodb != nil {
		status["store"] = "mongodb"
		if err := h.mongodb.DB.Client().Ping(ctx, nil); err != nil {
			status["store_error"] = err.Error()
			ready = false
		}
	}
	if h.redis != nil {
		status["locks"] = "redis"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			status["locks_error"] = err.Error()
			ready = false
		}
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}
