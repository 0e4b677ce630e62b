package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"reflecta/internal/database"
	"reflecta/internal/services"
)

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	mongoDB *database.MongoDB
	redis   *services.RedisService // nil when Redis is not configured
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(mongoDB *database.MongoDB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{mongoDB: mongoDB, redis: redis}
}

// Handle responds with server health status. Degraded dependencies turn the
// response 503 so load balancers can rotate the instance out.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	code := fiber.StatusOK
	checks := fiber.Map{}

	if err := h.mongoDB.Ping(c.Context()); err != nil {
		checks["mongodb"] = err.Error()
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	} else {
		checks["mongodb"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Context()); err != nil {
			checks["redis"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
