package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/internal/observability/metrics"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// DueLister is the schedule-store slice the dispatcher needs.
// *Store satisfies it.
type DueLister interface {
	ListDue(ctx context.Context, asOf time.Time) ([]ScheduleEntry, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) error
}

// Dispatcher periodically publishes pending schedule entries whose send time
// falls inside the next horizon. It exists because the broker caps per-message
// delay; the scheduler can plan a send many hours out, and the dispatcher
// bridges the gap.
type Dispatcher struct {
	entries   DueLister
	directory directory.Repository
	publisher InitiatePublisher
	horizon   time.Duration
	interval  time.Duration
	now       func() time.Time
	metrics   *metrics.SchedulerMetrics
	logger    *logging.Logger
}

// NewDispatcher creates a dispatcher polling every interval and publishing
// entries due within horizon.
func NewDispatcher(
	entries DueLister,
	dir directory.Repository,
	publisher InitiatePublisher,
	horizon time.Duration,
	interval time.Duration,
	logger *logging.Logger,
) *Dispatcher {
	if entries == nil || dir == nil || publisher == nil {
		panic("scheduling: dispatcher requires entry store, directory, and publisher")
	}
	if horizon <= 0 {
		horizon = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		entries:   entries,
		directory: dir,
		publisher: publisher,
		horizon:   horizon,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// WithDispatchMetrics records dispatched-entry counters.
func (d *Dispatcher) WithDispatchMetrics(m *metrics.SchedulerMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.ProcessDue(ctx); err != nil {
				d.logger.Error("dispatch pass failed", "error", err)
			}
		}
	}
}

// ProcessDue publishes every pending entry due within the horizon and marks
// it dispatched. Returns the number of entries published.
func (d *Dispatcher) ProcessDue(ctx context.Context) (int, error) {
	now := d.now().UTC()
	due, err := d.entries.ListDue(ctx, now.Add(d.horizon))
	if err != nil {
		return 0, fmt.Errorf("scheduling: dispatcher list due: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	d.logger.Info("dispatching due schedule entries", "count", len(due))

	dispatched := 0
	for i := range due {
		entry := &due[i]
		if err := d.dispatchOne(ctx, entry, now); err != nil {
			d.logger.Error("failed to dispatch schedule entry", "error", err, "entry_id", entry.ID)
			continue
		}
		dispatched++
	}
	d.metrics.ObserveDispatched(dispatched)
	return dispatched, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, entry *ScheduleEntry, now time.Time) error {
	user, err := d.directory.GetUser(ctx, entry.UserID)
	if err != nil {
		return fmt.Errorf("load reviewer: %w", err)
	}

	delay := entry.SendAt.Sub(now)
	if delay < 0 {
		delay = 0
	}

	err = d.publisher.PublishInitiate(ctx, conversation.InitiatePayload{
		OrgID:           entry.OrgID,
		ReviewerID:      entry.UserID,
		SubjectID:       entry.SubjectID,
		InteractionType: entry.InteractionType,
		Platform:        user.Platform,
		ChannelID:       user.ChannelID,
		QuestionnaireID: entry.QuestionnaireID,
		ScheduleEntryID: entry.ID.String(),
	}, delay)
	if err != nil {
		return fmt.Errorf("publish initiate: %w", err)
	}

	if err := d.entries.MarkDispatched(ctx, entry.ID); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}

	d.logger.Info("schedule entry dispatched",
		"entry_id", entry.ID,
		"user_id", entry.UserID,
		"send_at", entry.SendAt.Format(time.RFC3339),
	)
	return nil
}
