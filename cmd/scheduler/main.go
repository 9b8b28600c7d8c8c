package main

import (
	"context"
	"os"

	"github.com/pulsekit/pulsekit/internal/app/bootstrap"
	appconfig "github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/internal/questionnaire"
	"github.com/pulsekit/pulsekit/internal/scheduling"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// One-shot daily scheduling pass over every organization, invoked by cron.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	result, err := runPass(ctx, cfg, logger)
	if err != nil {
		logger.Error("scheduling pass failed", "error", err)
		os.Exit(1)
	}
	logger.Info("scheduling pass complete", "scheduled", result.Scheduled, "skipped", result.Skipped)
}

func runPass(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (scheduling.Result, error) {
	pool, err := bootstrap.BuildPgxPool(ctx, cfg, logger)
	if err != nil {
		return scheduling.Result{}, err
	}
	if pool == nil {
		logger.Error("DATABASE_URL is required for scheduling")
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := bootstrap.BuildAWSConfig(ctx, cfg)
	if err != nil {
		return scheduling.Result{}, err
	}
	sqsClient := bootstrap.BuildSQSClient(awsCfg, cfg)
	queue := bootstrap.BuildConversationQueue(cfg, func(url string) *conversation.SQSQueue {
		return conversation.NewSQSQueue(sqsClient, url)
	}, cfg.ConversationQueueURL, logger)
	publisher := conversation.NewPublisher(queue, logger)

	dir := directory.NewPostgresRepository(pool)
	questionnaires := questionnaire.NewPostgresRepository(pool)
	entries := scheduling.NewStore(pool)
	scheduler := bootstrap.BuildScheduler(cfg, dir, questionnaires, entries, publisher, nil, logger)

	orgIDs, err := dir.ListOrgIDs(ctx)
	if err != nil {
		return scheduling.Result{}, err
	}

	var total scheduling.Result
	for _, orgID := range orgIDs {
		result, err := scheduler.RunForOrg(ctx, orgID)
		if err != nil {
			logger.Error("org scheduling pass failed", "error", err, "org_id", orgID)
			continue
		}
		total.Scheduled += result.Scheduled
		total.Skipped += result.Skipped
	}
	return total, nil
}
