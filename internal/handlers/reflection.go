package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"

	"reflecta/internal/middleware"
	"reflecta/internal/models"
	"reflecta/internal/services"
	"reflecta/internal/weekutil"
)

// ReflectionHandler serves the reflection generation and status API.
type ReflectionHandler struct {
	operations *services.OperationService
	users      *services.UserService
	snippets   *services.ReflectionService
	dispatcher *services.Dispatcher
}

// NewReflectionHandler creates the API handler.
func NewReflectionHandler(operations *services.OperationService, users *services.UserService, snippets *services.ReflectionService, dispatcher *services.Dispatcher) *ReflectionHandler {
	return &ReflectionHandler{
		operations: operations,
		users:      users,
		snippets:   snippets,
		dispatcher: dispatcher,
	}
}

// Generate handles POST /api/reflections/generate. The operation is created
// synchronously so the dedup answer is immediate; the pipeline itself runs in
// the background and is polled through the operations endpoint.
func (h *ReflectionHandler) Generate(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req models.GenerateReflectionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	trigger := req.TriggerType
	if trigger == "" {
		trigger = models.TriggerManual
	}
	if trigger != models.TriggerManual && trigger != models.TriggerScheduled {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "triggerType must be manual or scheduled",
		})
	}

	if !h.dispatcher.HandlerRegistered(models.OperationTypeWeeklyReflection) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Reflection generation is not available",
		})
	}

	week := weekutil.ISOWeekOf(time.Now())
	input := models.ReflectionJobInput{
		UserID:                 userID,
		WeekStart:              week.Start,
		WeekEnd:                week.End,
		WeekNumber:             week.WeekNumber,
		Year:                   week.Year,
		IncludePreviousContext: req.IncludePreviousContext,
		IncludeIntegrations:    req.IncludeIntegrations,
	}
	metadata := map[string]any{"triggerType": trigger}

	op, err := h.operations.Create(c.Context(), userID, models.OperationTypeWeeklyReflection, week, input, metadata)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateOperation) {
			return c.JSON(fiber.Map{
				"operationId": op.ID.Hex(),
				"status":      "already_processing",
			})
		}
		log.Printf("❌ [API] Failed to create operation for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create operation",
		})
	}

	// Detached context: the job outlives the HTTP request.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := h.dispatcher.ProcessJob(ctx, models.OperationTypeWeeklyReflection, userID, op.ID.Hex(), &input); err != nil {
			log.Printf("❌ [API] Operation %s failed: %v", op.ID.Hex(), err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"operationId": op.ID.Hex(),
		"status":      op.Status,
	})
}

// GetOperation handles GET /api/operations/:id.
func (h *ReflectionHandler) GetOperation(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	op, err := h.operations.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, services.ErrOperationNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Operation not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch operation",
		})
	}
	if op.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Operation not found",
		})
	}

	return c.JSON(op.ToResponse())
}

// ListOperations handles GET /api/operations.
func (h *ReflectionHandler) ListOperations(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	limit := int64(c.QueryInt("limit", 20))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	ops, err := h.operations.ListForUser(c.Context(), userID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list operations",
		})
	}

	responses := make([]*models.OperationResponse, 0, len(ops))
	for i := range ops {
		responses = append(responses, ops[i].ToResponse())
	}
	return c.JSON(fiber.Map{"operations": responses})
}

// GetSnippet handles GET /api/reflections/:year/:week.
func (h *ReflectionHandler) GetSnippet(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	year, err := strconv.Atoi(c.Params("year"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid year"})
	}
	weekNumber, err := strconv.Atoi(c.Params("week"))
	if err != nil || weekNumber < 1 || weekNumber > 53 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid week number"})
	}

	snippet, err := h.snippets.FindSnippet(c.Context(), userID, weekutil.Week{WeekNumber: weekNumber, Year: year})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch reflection",
		})
	}
	if snippet == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No reflection stored for that week",
		})
	}
	return c.JSON(snippet)
}

// GetSchedule handles GET /api/reflections/schedule: when the user's next
// automatic generation would run, in their own timezone.
func (h *ReflectionHandler) GetSchedule(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	user, err := h.users.GetUserProfile(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load profile",
		})
	}
	if user == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User profile not found",
		})
	}

	prefs := user.ReflectionPreferences
	response := fiber.Map{
		"autoGenerate":  prefs.AutoGenerate,
		"preferredDay":  prefs.PreferredDay,
		"preferredHour": prefs.PreferredHour,
		"timezone":      prefs.Timezone,
	}

	if prefs.AutoGenerate {
		nextRun, err := nextScheduledRun(prefs, time.Now())
		if err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "Preferences do not form a valid schedule: " + err.Error(),
			})
		}
		response["nextRun"] = nextRun.Format(time.RFC3339)
	}

	return c.JSON(response)
}

// nextScheduledRun computes the next generation instant from the preferred
// day and hour, evaluated in the user's timezone.
func nextScheduledRun(prefs models.ReflectionPreferences, now time.Time) (time.Time, error) {
	location, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	dayOfWeek := prefs.CronDayOfWeek()
	if dayOfWeek < 0 {
		return time.Time{}, errors.New("unrecognized preferred day: " + prefs.PreferredDay)
	}

	spec := "0 " + strconv.Itoa(prefs.PreferredHour) + " * * " + strconv.Itoa(dayOfWeek)
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.In(location)), nil
}
