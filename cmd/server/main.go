package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"reflecta/internal/config"
	"reflecta/internal/database"
	"reflecta/internal/handlers"
	"reflecta/internal/jobs"
	"reflecta/internal/logging"
	"reflecta/internal/middleware"
	"reflecta/internal/models"
	"reflecta/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️  No .env file found, using environment variables")
	}

	logging.Init()
	cfg := config.Load()
	services.InitMetrics()

	// MongoDB
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	if err := mongoDB.Initialize(context.Background()); err != nil {
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}

	// Redis is optional: without it the hourly scan runs unlocked, which is
	// fine for a single instance.
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
	} else {
		log.Println("⚠️  REDIS_URL not set, running without distributed scan locking")
	}

	// Career guidelines with hot reload
	guidelines, err := config.LoadGuidelines(cfg.GuidelinesPath)
	if err != nil {
		log.Fatalf("❌ Failed to load career guidelines: %v", err)
	}
	go guidelines.Watch()

	// Services
	llmService := services.NewLLMService(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMMaxRetries, cfg.LLMRequestsPerMinute)
	operationService := services.NewOperationService(mongoDB)
	userService := services.NewUserService(mongoDB)
	calendarGateway := services.NewCalendarGateway(mongoDB)
	consolidationService := services.NewConsolidationService(mongoDB, llmService, guidelines)
	reflectionService := services.NewReflectionService(mongoDB, llmService)

	reflectionHandler := services.NewWeeklyReflectionHandler(
		userService,
		reflectionService,
		calendarGateway,
		consolidationService,
		reflectionService,
	)
	dispatcher := services.NewDispatcher(operationService, map[string]services.JobHandler{
		models.OperationTypeWeeklyReflection: reflectionHandler,
	})

	// Background jobs
	scheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}

	if cfg.SchedulerEnabled {
		var locker jobs.Locker
		if redisService != nil {
			locker = redisService
		}
		reflectionScheduler := jobs.NewReflectionScheduler(userService, operationService, dispatcher, locker)
		if err := scheduler.Register("reflection-scan", "0 * * * *", reflectionScheduler.Run); err != nil {
			log.Fatalf("❌ Failed to register reflection scan: %v", err)
		}
	} else {
		log.Println("⚠️  SCHEDULER_ENABLED=false, automatic generation disabled")
	}

	staleTimeout := time.Duration(cfg.StaleOperationTimeoutMins) * time.Minute
	sweeper := jobs.NewStaleOperationSweeper(operationService, staleTimeout)
	if err := scheduler.Register("stale-operations", "*/15 * * * *", sweeper.Run); err != nil {
		log.Fatalf("❌ Failed to register stale operation sweeper: %v", err)
	}

	scheduler.Start()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName:      "Reflecta v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("reflecta")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins: getAllowedOrigins(),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-User-ID",
	}))

	healthHandler := handlers.NewHealthHandler(mongoDB, redisService)
	app.Get("/health", healthHandler.Handle)

	apiHandler := handlers.NewReflectionHandler(operationService, userService, reflectionService, dispatcher)
	api := app.Group("/api", middleware.RequireUser())
	api.Post("/reflections/generate", apiHandler.Generate)
	api.Get("/reflections/schedule", apiHandler.GetSchedule)
	api.Get("/reflections/:year/:week", apiHandler.GetSnippet)
	api.Get("/operations", apiHandler.ListOperations)
	api.Get("/operations/:id", apiHandler.GetOperation)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := scheduler.Shutdown(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
		if redisService != nil {
			if err := redisService.Close(); err != nil {
				log.Printf("⚠️ Error closing Redis: %v", err)
			}
		}
		if err := mongoDB.Close(context.Background()); err != nil {
			log.Printf("⚠️ Error closing MongoDB: %v", err)
		}
	}()

	log.Printf("🚀 Reflecta listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

func getAllowedOrigins() string {
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		return origins
	}
	log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	return "http://localhost:5173,http://localhost:3000"
}
