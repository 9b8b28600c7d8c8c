package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	"github.com/pulsekit/pulsekit/internal/channels"
	"github.com/pulsekit/pulsekit/internal/channels/slack"
	appconfig "github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/internal/observability/metrics"
	"github.com/pulsekit/pulsekit/internal/questionnaire"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// BuildLLMClient assembles the completion stack: Bedrock primary with a
// Gemini fallback. Either provider alone is enough; neither configured is
// a startup error.
func BuildLLMClient(ctx context.Context, awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) (conversation.LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var primary conversation.LLMClient
	if cfg.BedrockModelID != "" {
		primary = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		logger.Info("bedrock completion client configured", "model", cfg.BedrockModelID)
	}

	var fallback conversation.LLMClient
	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini client unavailable", "error", err)
		} else {
			fallback = gemini
			logger.Info("gemini fallback configured", "model", cfg.GeminiModelID)
		}
	}

	switch {
	case primary != nil && fallback != nil:
		return conversation.NewFallbackLLMClient(primary, fallback, logger), nil
	case primary != nil:
		return primary, nil
	case fallback != nil:
		return fallback, nil
	default:
		return nil, fmt.Errorf("bootstrap: no completion provider configured")
	}
}

// BuildOrchestrator wires the conversation state machine from config.
func BuildOrchestrator(
	cfg *appconfig.Config,
	llm conversation.LLMClient,
	questionnaires questionnaire.Repository,
	dir directory.Repository,
	m *metrics.ConversationMetrics,
	logger *logging.Logger,
) *Orchestration {
	policy := conversation.FailurePolicy(cfg.LLMFailureMode)
	questions := conversation.NewQuestionGenerator(
		conversation.NewInstrumentedLLMClient(llm, m, "question"),
		cfg.BedrockModelID, policy, logger)
	decisions := conversation.NewDecisionEngine(
		conversation.NewInstrumentedLLMClient(llm, m, "decision"),
		cfg.BedrockModelID, logger)
	orchestrator := conversation.NewOrchestrator(questionnaires, dir, questions, decisions, logger)
	return &Orchestration{Orchestrator: orchestrator, Questions: questions, Decisions: decisions}
}

// Orchestration bundles the conversation state machine with its engines.
type Orchestration struct {
	Orchestrator *conversation.Orchestrator
	Questions    *conversation.QuestionGenerator
	Decisions    *conversation.DecisionEngine
}

// BuildConversationStores wires the Redis state store and reply lock.
func BuildConversationStores(redisClient *redis.Client, cfg *appconfig.Config) (*conversation.StateStore, *conversation.Lock) {
	if redisClient == nil {
		return nil, nil
	}
	states := conversation.NewStateStore(redisClient, cfg.ConversationTTL)
	lock := conversation.NewLock(redisClient, cfg.ConversationLockTTL)
	return states, lock
}

// BuildChannelRegistry registers every configured chat platform. Slack is
// the only adapter today; unconfigured platforms are simply absent.
func BuildChannelRegistry(cfg *appconfig.Config, logger *logging.Logger) *channels.Registry {
	if logger == nil {
		logger = logging.Default()
	}
	registry := channels.NewRegistry(logger)
	if cfg.SlackBotToken != "" {
		client := slack.NewClient(cfg.SlackBotToken)
		registry.Register(slack.NewAdapter(client, logger))
		logger.Info("slack adapter registered")
	} else {
		logger.Warn("no slack bot token configured; outbound messages will be dropped")
	}
	return registry
}

// BuildConversationQueue returns the configured broker: in-memory for
// local development, SQS otherwise.
func BuildConversationQueue(cfg *appconfig.Config, sqsFactory func(queueURL string) *conversation.SQSQueue, queueURL string, logger *logging.Logger) conversation.Queue {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue || queueURL == "" {
		logger.Info("using in-memory queue", "queue_url", queueURL)
		return conversation.NewMemoryQueue(64)
	}
	return sqsFactory(queueURL)
}
