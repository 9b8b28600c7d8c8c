package scheduling

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/internal/observability/metrics"
	"github.com/pulsekit/pulsekit/internal/questionnaire"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// DefaultWeeklyTarget is the interactions-per-week quota for users without
// an explicit one.
const DefaultWeeklyTarget = 2

// maxQueueDelay is the longest delay the broker accepts on a single message
// (the SQS DelaySeconds ceiling). Entries further out stay pending until the
// dispatcher picks them up.
const maxQueueDelay = 900 * time.Second

// EntryStore is the schedule-entry persistence used by the scheduler.
// *Store satisfies it.
type EntryStore interface {
	Create(ctx context.Context, e *ScheduleEntry) error
	ListWindow(ctx context.Context, orgID string, from, to time.Time) ([]ScheduleEntry, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) error
}

// InitiatePublisher enqueues delayed initiate jobs.
// *conversation.Publisher satisfies it.
type InitiatePublisher interface {
	PublishInitiate(ctx context.Context, req conversation.InitiatePayload, delay time.Duration) error
}

// Scheduler runs the daily per-org batch pass: for every active, onboarded
// user it decides whether to schedule an interaction this run, with whom,
// from which questionnaire, and when to send it.
type Scheduler struct {
	directory      directory.Repository
	questionnaires questionnaire.Repository
	subjects       *SubjectSelector
	entries        EntryStore
	metrics        *metrics.SchedulerMetrics
	publisher      InitiatePublisher
	weeklyTarget   int
	rng            *rand.Rand
	now            func() time.Time
	logger         *logging.Logger
}

// SchedulerOption customizes scheduler behavior.
type SchedulerOption func(*Scheduler)

// WithWeeklyTarget overrides the default weekly interaction quota.
func WithWeeklyTarget(target int) SchedulerOption {
	return func(s *Scheduler) {
		if target > 0 {
			s.weeklyTarget = target
		}
	}
}

// WithRand injects a seedable random source for jitter and fallback picks.
func WithRand(rng *rand.Rand) SchedulerOption {
	return func(s *Scheduler) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithSchedulerMetrics records pass counters.
func WithSchedulerMetrics(m *metrics.SchedulerMetrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler wires the daily batch planner.
func NewScheduler(
	dir directory.Repository,
	questionnaires questionnaire.Repository,
	subjects *SubjectSelector,
	entries EntryStore,
	publisher InitiatePublisher,
	logger *logging.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if dir == nil || questionnaires == nil || subjects == nil || entries == nil {
		panic("scheduling: scheduler requires directory, questionnaires, subjects, and entry store")
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &Scheduler{
		directory:      dir,
		questionnaires: questionnaires,
		subjects:       subjects,
		entries:        entries,
		publisher:      publisher,
		weeklyTarget:   DefaultWeeklyTarget,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		now:            time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunForOrg executes one scheduling pass for an organization. A failure for
// one user degrades to a skip; only org-wide lookups abort the pass.
func (s *Scheduler) RunForOrg(ctx context.Context, orgID string) (Result, error) {
	now := s.now().UTC()

	users, err := s.directory.ListActiveUsers(ctx, orgID)
	if err != nil {
		return Result{}, fmt.Errorf("scheduling: list users: %w", err)
	}

	weekStart, weekEnd := weekWindow(now)
	existing, err := s.entries.ListWindow(ctx, orgID, weekStart, weekEnd)
	if err != nil {
		return Result{}, fmt.Errorf("scheduling: list week entries: %w", err)
	}
	byUser := map[string][]ScheduleEntry{}
	for _, e := range existing {
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}

	allQuestionnaires, err := s.questionnaires.ListActive(ctx, orgID)
	if err != nil {
		return Result{}, fmt.Errorf("scheduling: list questionnaires: %w", err)
	}

	var result Result
	for i := range users {
		user := &users[i]
		if s.scheduleUser(ctx, orgID, user, byUser[user.ID], allQuestionnaires, now) {
			result.Scheduled++
		} else {
			result.Skipped++
		}
	}

	s.metrics.ObservePass(orgID, result.Scheduled, result.Skipped)
	s.logger.Info("scheduling pass finished",
		"org_id", orgID,
		"scheduled", result.Scheduled,
		"skipped", result.Skipped,
	)
	return result, nil
}

// scheduleUser plans at most one interaction for a user. Returns true when
// an entry was persisted.
func (s *Scheduler) scheduleUser(
	ctx context.Context,
	orgID string,
	user *directory.User,
	thisWeek []ScheduleEntry,
	allQuestionnaires []questionnaire.Questionnaire,
	now time.Time,
) bool {
	target := user.WeeklyTarget
	if target <= 0 {
		target = s.weeklyTarget
	}
	if len(thisWeek) >= target {
		s.logger.Debug("weekly quota reached", "user_id", user.ID, "entries", len(thisWeek), "target", target)
		return false
	}

	if user.QuietOn(now.In(user.Location()).Weekday()) {
		s.logger.Debug("quiet day", "user_id", user.ID)
		return false
	}

	interactionType := nextInteractionType(thisWeek)

	subjectID := user.ID
	if interactionType != conversation.InteractionSelfReflection {
		var err error
		subjectID, err = s.subjects.Select(ctx, orgID, user.ID)
		if err != nil {
			s.logger.Warn("subject selection failed, skipping user", "error", err, "user_id", user.ID)
			return false
		}
		if subjectID == "" {
			s.logger.Debug("no subject available", "user_id", user.ID)
			return false
		}
	}

	q := SelectQuestionnaire(allQuestionnaires, interactionType)
	if q == nil {
		s.logger.Debug("no questionnaire available", "user_id", user.ID, "interaction_type", interactionType)
		return false
	}

	sendAt := ComputeSendAt(now, user, s.rng)

	entry := &ScheduleEntry{
		OrgID:           orgID,
		UserID:          user.ID,
		SubjectID:       subjectID,
		InteractionType: interactionType,
		QuestionnaireID: q.ID,
		SendAt:          sendAt,
		Status:          StatusPending,
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to persist schedule entry, skipping user", "error", err, "user_id", user.ID)
		return false
	}

	// Short horizons go straight onto the delayed queue; anything past the
	// broker's delay ceiling waits for the dispatcher.
	if delay := sendAt.Sub(now); s.publisher != nil && delay <= maxQueueDelay {
		err := s.publisher.PublishInitiate(ctx, conversation.InitiatePayload{
			OrgID:           orgID,
			ReviewerID:      user.ID,
			SubjectID:       subjectID,
			InteractionType: interactionType,
			Platform:        user.Platform,
			ChannelID:       user.ChannelID,
			QuestionnaireID: q.ID,
			ScheduleEntryID: entry.ID.String(),
		}, delay)
		if err != nil {
			// Entry stays pending; the dispatcher will retry.
			s.logger.Warn("failed to enqueue initiate job", "error", err, "entry_id", entry.ID)
		} else if err := s.entries.MarkDispatched(ctx, entry.ID); err != nil {
			s.logger.Warn("failed to mark entry dispatched", "error", err, "entry_id", entry.ID)
		}
	}

	s.logger.Info("interaction scheduled",
		"user_id", user.ID,
		"subject_id", subjectID,
		"interaction_type", interactionType,
		"send_at", sendAt.Format(time.RFC3339),
	)
	return true
}

// nextInteractionType rotates peer reviews with self reflections: once the
// user has a peer review this week but no self reflection yet, the next
// interaction is a self reflection.
func nextInteractionType(thisWeek []ScheduleEntry) conversation.InteractionType {
	var peer, self int
	for _, e := range thisWeek {
		switch e.InteractionType {
		case conversation.InteractionPeerReview:
			peer++
		case conversation.InteractionSelfReflection:
			self++
		}
	}
	if self == 0 && peer > 0 {
		return conversation.InteractionSelfReflection
	}
	return conversation.InteractionPeerReview
}
