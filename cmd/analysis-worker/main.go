package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsekit/pulsekit/internal/analysis"
	"github.com/pulsekit/pulsekit/internal/app/bootstrap"
	"github.com/pulsekit/pulsekit/internal/archive"
	appconfig "github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/conversation"
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

	pool, err := bootstrap.BuildPgxPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	if pool == nil {
		logger.Error("DATABASE_URL is required for analysis results")
		os.Exit(1)
	}

	llm, err := bootstrap.BuildLLMClient(ctx, awsCfg, cfg, logger)
	if err != nil {
		logger.Error("failed to build completion client", "error", err)
		os.Exit(1)
	}

	sqsClient := bootstrap.BuildSQSClient(awsCfg, cfg)
	queue := bootstrap.BuildConversationQueue(cfg, func(url string) *conversation.SQSQueue {
		return conversation.NewSQSQueue(sqsClient, url)
	}, cfg.AnalysisQueueURL, logger)

	s3Client := bootstrap.BuildS3Client(awsCfg, cfg)
	archiveStore := archive.NewStore(s3Client, cfg.TranscriptBucket, logger)

	worker := analysis.NewWorker(
		queue,
		archiveStore,
		analysis.NewSummarizer(llm, cfg.BedrockModelID, logger),
		analysis.NewStore(pool),
		logger,
		analysis.WithConcurrency(cfg.AnalysisWorkerCount),
	)

	worker.Start(ctx)
	logger.Info("analysis worker started", "concurrency", cfg.AnalysisWorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down analysis worker...")
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
		logger.Info("analysis worker stopped")
	case <-doneCtx.Done():
		logger.Error("analysis worker shutdown timed out", "error", doneCtx.Err())
	}
}
