package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsekit/pulsekit/internal/app/bootstrap"
	"github.com/pulsekit/pulsekit/internal/archive"
	appconfig "github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/internal/observability/metrics"
	"github.com/pulsekit/pulsekit/internal/questionnaire"
	"github.com/pulsekit/pulsekit/internal/scheduling"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := bootstrap.BuildAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, false)
	if redisClient == nil {
		logger.Error("redis is required for conversation state")
		os.Exit(1)
	}
	states, lock := bootstrap.BuildConversationStores(redisClient, cfg)

	pool, err := bootstrap.BuildPgxPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}

	var (
		dir            directory.Repository
		questionnaires questionnaire.Repository
	)
	if pool != nil {
		dir = directory.NewPostgresRepository(pool)
		questionnaires = questionnaire.NewPostgresRepository(pool)
	} else {
		logger.Warn("no database configured; using empty in-memory directory")
		dir = directory.NewInMemoryRepository()
		questionnaires = questionnaire.NewInMemoryRepository()
	}

	llm, err := bootstrap.BuildLLMClient(ctx, awsCfg, cfg, logger)
	if err != nil {
		logger.Error("failed to build completion client", "error", err)
		os.Exit(1)
	}

	convMetrics := metrics.NewConversationMetrics(nil)
	orchestration := bootstrap.BuildOrchestrator(cfg, llm, questionnaires, dir, convMetrics, logger)
	registry := bootstrap.BuildChannelRegistry(cfg, logger)

	sqsClient := bootstrap.BuildSQSClient(awsCfg, cfg)
	queue := bootstrap.BuildConversationQueue(cfg, func(url string) *conversation.SQSQueue {
		return conversation.NewSQSQueue(sqsClient, url)
	}, cfg.ConversationQueueURL, logger)
	analysisQueue := bootstrap.BuildConversationQueue(cfg, func(url string) *conversation.SQSQueue {
		return conversation.NewSQSQueue(sqsClient, url)
	}, cfg.AnalysisQueueURL, logger)

	dynamoClient := bootstrap.BuildDynamoClient(awsCfg, cfg)
	jobStore := conversation.NewJobStore(dynamoClient, cfg.ConversationJobsTable, logger)

	s3Client := bootstrap.BuildS3Client(awsCfg, cfg)
	archiveStore := archive.NewStore(s3Client, cfg.TranscriptBucket, logger)

	worker := conversation.NewWorker(
		orchestration.Orchestrator,
		queue,
		states,
		lock,
		registry,
		logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithJobStore(jobStore),
		conversation.WithTranscriptArchiver(archiveStore),
		conversation.WithAnalysisEnqueuer(conversation.NewPublisher(analysisQueue, logger)),
		conversation.WithChannelIndex(conversation.NewChannelIndex(redisClient, cfg.ConversationTTL)),
		conversation.WithMetrics(convMetrics),
	)

	worker.Start(ctx)
	logger.Info("conversation worker started", "workers", cfg.WorkerCount)

	// The dispatcher bridges schedule entries whose send time is beyond the
	// queue's delay ceiling. It needs the schedule store, so it only runs
	// when a database is configured.
	if pool != nil {
		entries := scheduling.NewStore(pool)
		publisher := conversation.NewPublisher(queue, logger)
		dispatcher := bootstrap.BuildDispatcher(cfg, entries, dir, publisher, logger).
			WithDispatchMetrics(metrics.NewSchedulerMetrics(nil))
		go dispatcher.Run(ctx)
		logger.Info("schedule dispatcher started", "horizon", cfg.DispatchHorizon.String())
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
