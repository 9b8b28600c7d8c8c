package bootstrap

import (
	"time"

	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/internal/observability/metrics"
	"github.com/pulsekit/pulsekit/internal/questionnaire"
	"github.com/pulsekit/pulsekit/internal/scheduling"
	"github.com/pulsekit/pulsekit/pkg/logging"

	appconfig "github.com/pulsekit/pulsekit/internal/config"
)

// BuildScheduler wires the daily batch planner.
func BuildScheduler(
	cfg *appconfig.Config,
	dir directory.Repository,
	questionnaires questionnaire.Repository,
	entries *scheduling.Store,
	publisher scheduling.InitiatePublisher,
	m *metrics.SchedulerMetrics,
	logger *logging.Logger,
) *scheduling.Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	subjects := scheduling.NewSubjectSelector(dir, entries, nil, logger)
	return scheduling.NewScheduler(dir, questionnaires, subjects, entries, publisher, logger,
		scheduling.WithWeeklyTarget(cfg.WeeklyInteractionTarget),
		scheduling.WithSchedulerMetrics(m),
	)
}

// BuildDispatcher wires the pending-entry dispatcher.
func BuildDispatcher(
	cfg *appconfig.Config,
	entries *scheduling.Store,
	dir directory.Repository,
	publisher scheduling.InitiatePublisher,
	logger *logging.Logger,
) *scheduling.Dispatcher {
	horizon := cfg.DispatchHorizon
	if horizon <= 0 {
		horizon = 15 * time.Minute
	}
	interval := cfg.DispatchPollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return scheduling.NewDispatcher(entries, dir, publisher, horizon, interval, logger)
}
