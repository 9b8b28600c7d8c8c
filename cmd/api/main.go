package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsekit/pulsekit/internal/api/router"
	"github.com/pulsekit/pulsekit/internal/app/bootstrap"
	"github.com/pulsekit/pulsekit/internal/channels/slack"
	appconfig "github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting pulsekit API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	awsCfg, err := bootstrap.BuildAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, false)
	if redisClient == nil {
		logger.Error("redis is required to correlate inbound webhooks")
		os.Exit(1)
	}
	channelIndex := conversation.NewChannelIndex(redisClient, cfg.ConversationTTL)

	sqsClient := bootstrap.BuildSQSClient(awsCfg, cfg)
	queue := bootstrap.BuildConversationQueue(cfg, func(url string) *conversation.SQSQueue {
		return conversation.NewSQSQueue(sqsClient, url)
	}, cfg.ConversationQueueURL, logger)
	publisher := conversation.NewPublisher(queue, logger)

	// Inbound Slack messages are correlated to their conversation through
	// the channel index, then re-enqueued as reply jobs for the worker.
	webhook := slack.NewWebhookHandler(cfg.SlackSigningSecret, func(msg slack.InboundMessage) {
		pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pubCancel()

		binding, err := channelIndex.Lookup(pubCtx, "slack", msg.ChannelID)
		if err != nil {
			logger.Error("failed to look up channel", "error", err, "channel_id", msg.ChannelID)
			return
		}
		if binding == nil {
			logger.Debug("ignoring message on channel with no active conversation", "channel_id", msg.ChannelID)
			return
		}

		if err := publisher.PublishReply(pubCtx, conversation.ReplyPayload{
			ConversationID: binding.ConversationID,
			OrgID:          binding.OrgID,
			UserMessage:    msg.Text,
		}); err != nil {
			logger.Error("failed to enqueue reply", "error", err, "conversation_id", binding.ConversationID)
		}
	})

	r := router.New(&router.Config{
		Logger:           logger,
		SlackWebhook:     webhook.HandleEvent,
		MetricsHandler:   promhttp.Handler(),
		WebhookRateLimit: float64(cfg.WebhookRateLimit),
		WebhookBurst:     cfg.WebhookBurst,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("API server stopped")
}
