package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	ConversationQueueURL  string
	AnalysisQueueURL      string
	ConversationJobsTable string
	TranscriptBucket      string

	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string

	// LLMFailureMode controls what happens when every completion provider is
	// unreachable while generating a question: "fallback" sends a canned
	// question, "fail" surfaces the error so the queue retries the job.
	LLMFailureMode string

	ConversationTTL     time.Duration
	ConversationLockTTL time.Duration

	WeeklyInteractionTarget int
	DispatchHorizon         time.Duration
	DispatchPollInterval    time.Duration

	AnalysisWorkerCount int

	SlackBotToken      string
	SlackSigningSecret string

	WebhookRateLimit int
	WebhookBurst     int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ConversationQueueURL:  getEnv("CONVERSATION_QUEUE_URL", ""),
		AnalysisQueueURL:      getEnv("ANALYSIS_QUEUE_URL", ""),
		ConversationJobsTable: getEnv("CONVERSATION_JOBS_TABLE", "conversation_jobs"),
		TranscriptBucket:      getEnv("TRANSCRIPT_BUCKET", ""),

		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		LLMFailureMode: strings.ToLower(strings.TrimSpace(getEnv("LLM_FAILURE_MODE", "fallback"))),

		ConversationTTL:     getEnvAsDuration("CONVERSATION_TTL", 24*time.Hour),
		ConversationLockTTL: getEnvAsDuration("CONVERSATION_LOCK_TTL", 30*time.Second),

		WeeklyInteractionTarget: getEnvAsInt("WEEKLY_INTERACTION_TARGET", 2),
		DispatchHorizon:         getEnvAsDuration("DISPATCH_HORIZON", 15*time.Minute),
		DispatchPollInterval:    getEnvAsDuration("DISPATCH_POLL_INTERVAL", time.Minute),

		AnalysisWorkerCount: getEnvAsInt("ANALYSIS_WORKER_COUNT", 3),

		SlackBotToken:      getEnv("SLACK_BOT_TOKEN", ""),
		SlackSigningSecret: getEnv("SLACK_SIGNING_SECRET", ""),

		WebhookRateLimit: getEnvAsInt("WEBHOOK_RATE_LIMIT", 10),
		WebhookBurst:     getEnvAsInt("WEBHOOK_BURST", 20),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
