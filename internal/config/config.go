package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// Language model service (OpenAI-compatible chat completions endpoint)
	LLMBaseURL           string
	LLMAPIKey            string
	LLMModel             string
	LLMMaxRetries        int
	LLMRequestsPerMinute int

	// Career guideline context for the consolidation prompt
	GuidelinesPath string

	// Hourly reflection scheduler
	SchedulerEnabled bool

	// Operations stuck in processing longer than this are failed by the
	// stale operation sweeper (minutes)
	StaleOperationTimeoutMins int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", "mongodb://localhost:27017/reflecta"),
		RedisURL: getEnv("REDIS_URL", ""),

		LLMBaseURL:           getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:            getEnv("LLM_API_KEY", ""),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxRetries:        getIntEnv("LLM_MAX_RETRIES", 2),
		LLMRequestsPerMinute: getIntEnv("LLM_REQUESTS_PER_MINUTE", 30),

		GuidelinesPath: getEnv("CAREER_GUIDELINES_PATH", "career_guidelines.yaml"),

		SchedulerEnabled: getBoolEnv("SCHEDULER_ENABLED", true),

		StaleOperationTimeoutMins: getIntEnv("STALE_OPERATION_TIMEOUT_MINUTES", 60),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
