package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/pulsekit/pulsekit/internal/app/bootstrap"
	appconfig "github.com/pulsekit/pulsekit/internal/config"
	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/internal/questionnaire"
	"github.com/pulsekit/pulsekit/internal/scheduling"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// The same daily scheduling pass as cmd/scheduler, packaged for an
// EventBridge cron rule.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) error {
		return runPass(ctx, cfg, logger)
	})
}

func runPass(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	pool, err := bootstrap.BuildPgxPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool == nil {
		return fmt.Errorf("DATABASE_URL is required for scheduling")
	}
	defer pool.Close()

	awsCfg, err := bootstrap.BuildAWSConfig(ctx, cfg)
	if err != nil {
		return err
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
		return err
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

	logger.Info("scheduling pass complete", "scheduled", total.Scheduled, "skipped", total.Skipped)
	return nil
}
