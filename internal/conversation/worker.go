package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pulsekit/pulsekit/internal/channels"
	"github.com/pulsekit/pulsekit/internal/observability/metrics"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// MessageSender delivers outbound chat messages. *channels.Registry
// satisfies it.
type MessageSender interface {
	SendMessage(ctx context.Context, msg channels.Message) error
}

// TranscriptArchiver persists the transcript of a closed conversation.
type TranscriptArchiver interface {
	ArchiveState(ctx context.Context, state *State) error
}

// AnalysisEnqueuer hands closed conversations to the analysis pipeline.
// *Publisher on the analysis queue satisfies it.
type AnalysisEnqueuer interface {
	PublishAnalyze(ctx context.Context, req AnalyzePayload) error
}

// Worker consumes conversation jobs (initiate, reply, close) from the queue
// and drives the orchestrator. Replies for the same conversation are
// serialized with a Redis lock; a contended job is left on the queue for
// redelivery.
type Worker struct {
	orchestrator *Orchestrator
	queue        Queue
	states       *StateStore
	lock         *Lock
	sender       MessageSender
	jobs         JobUpdater
	archiver     TranscriptArchiver
	analysis     AnalysisEnqueuer
	index        *ChannelIndex
	metrics      *metrics.ConversationMetrics
	logger       *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobs             JobUpdater
	archiver         TranscriptArchiver
	analysis         AnalysisEnqueuer
	index            *ChannelIndex
	metrics          *metrics.ConversationMetrics
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the queue long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobStore mirrors job status to a job store.
func WithJobStore(jobs JobUpdater) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.jobs = jobs
	}
}

// WithTranscriptArchiver archives transcripts when conversations close.
func WithTranscriptArchiver(archiver TranscriptArchiver) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.archiver = archiver
	}
}

// WithAnalysisEnqueuer enqueues analyze jobs when conversations close.
func WithAnalysisEnqueuer(enqueuer AnalysisEnqueuer) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.analysis = enqueuer
	}
}

// WithChannelIndex keeps a channel-to-conversation mapping so inbound
// webhooks can correlate replies.
func WithChannelIndex(index *ChannelIndex) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.index = index
	}
}

// WithMetrics records conversation lifecycle counters.
func WithMetrics(m *metrics.ConversationMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// NewWorker creates a conversation job worker.
func NewWorker(
	orchestrator *Orchestrator,
	queue Queue,
	states *StateStore,
	lock *Lock,
	sender MessageSender,
	logger *logging.Logger,
	opts ...WorkerOption,
) *Worker {
	if orchestrator == nil || queue == nil || states == nil {
		panic("conversation: worker requires orchestrator, queue, and state store")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		orchestrator: orchestrator,
		queue:        queue,
		states:       states,
		lock:         lock,
		sender:       sender,
		jobs:         cfg.jobs,
		archiver:     cfg.archiver,
		analysis:     cfg.analysis,
		index:        cfg.index,
		metrics:      cfg.metrics,
		logger:       logger,
		cfg:          cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	w.logger.Debug("worker processing job", "job_id", payload.ID, "kind", payload.Kind, "msg_id", msg.ID)

	var (
		err    error
		convID string
	)
	switch payload.Kind {
	case jobTypeInitiate:
		convID, err = w.handleInitiate(ctx, payload.Initiate)
	case jobTypeReply:
		convID, err = w.handleReply(ctx, payload.Reply)
	case jobTypeClose:
		convID, err = w.handleClose(ctx, payload.Close)
	default:
		// Redelivering an unrecognized job would never help.
		w.logger.Error("unknown conversation job type", "job_id", payload.ID, "kind", payload.Kind)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if errors.Is(err, ErrLockHeld) {
		// Another worker owns this conversation. Leave the message on the
		// queue so the broker redelivers it.
		w.logger.Info("conversation locked, deferring job", "job_id", payload.ID, "conversation_id", convID)
		return
	}

	if err != nil {
		// Leave the message on the queue so the broker's retry policy
		// redelivers it.
		w.logger.Error("conversation job failed, leaving message for redelivery", "error", err, "job_id", payload.ID, "kind", payload.Kind)
		if w.jobs != nil {
			if storeErr := w.jobs.MarkFailed(ctx, payload.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
		return
	}

	w.logger.Debug("conversation job processed", "job_id", payload.ID, "kind", payload.Kind)
	if w.jobs != nil {
		if storeErr := w.jobs.MarkCompleted(ctx, payload.ID, convID); storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
		}
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) handleInitiate(ctx context.Context, payload *InitiatePayload) (string, error) {
	if payload == nil {
		return "", errors.New("conversation: initiate job missing payload")
	}

	state, err := w.orchestrator.Initiate(ctx, InitiateRequest{
		OrgID:           payload.OrgID,
		ReviewerID:      payload.ReviewerID,
		SubjectID:       payload.SubjectID,
		InteractionType: payload.InteractionType,
		Platform:        payload.Platform,
		ChannelID:       payload.ChannelID,
		QuestionnaireID: payload.QuestionnaireID,
		ScheduleEntryID: payload.ScheduleEntryID,
	})
	if err != nil {
		return "", err
	}

	if err := w.states.Set(ctx, state); err != nil {
		return state.ConversationID, err
	}
	if w.index != nil {
		if err := w.index.Bind(ctx, state); err != nil {
			w.logger.Error("failed to bind channel index", "error", err, "conversation_id", state.ConversationID)
		}
	}

	w.metrics.ObserveStarted(string(state.InteractionType), state.Platform)
	w.deliver(ctx, state)
	return state.ConversationID, nil
}

func (w *Worker) handleReply(ctx context.Context, payload *ReplyPayload) (string, error) {
	if payload == nil {
		return "", errors.New("conversation: reply job missing payload")
	}
	convID := payload.ConversationID

	release, err := w.acquire(ctx, convID)
	if err != nil {
		return convID, err
	}
	defer release()

	state, err := w.states.Get(ctx, convID)
	if err != nil {
		return convID, err
	}
	if state == nil {
		// Expired or already closed. Replies to dead conversations are
		// dropped, not failed.
		w.logger.Info("reply for unknown conversation, ignoring", "conversation_id", convID)
		return convID, nil
	}

	result, err := w.orchestrator.HandleReply(ctx, state, payload.UserMessage)
	if err != nil {
		return convID, err
	}
	w.metrics.ObserveDecision(string(result.Decision))

	if result.Closed {
		w.metrics.ObserveClosed(string(result.State.InteractionType), "decision")
		return convID, w.finishClosed(ctx, result.State)
	}

	if err := w.states.Set(ctx, result.State); err != nil {
		return convID, err
	}
	w.deliver(ctx, result.State)
	return convID, nil
}

func (w *Worker) handleClose(ctx context.Context, payload *ClosePayload) (string, error) {
	if payload == nil {
		return "", errors.New("conversation: close job missing payload")
	}
	convID := payload.ConversationID

	release, err := w.acquire(ctx, convID)
	if err != nil {
		return convID, err
	}
	defer release()

	state, err := w.states.Get(ctx, convID)
	if err != nil {
		return convID, err
	}
	if state == nil {
		w.logger.Info("close for unknown conversation, ignoring", "conversation_id", convID)
		return convID, nil
	}

	result := w.orchestrator.ForceClose(state)
	w.metrics.ObserveClosed(string(result.State.InteractionType), "forced")
	return convID, w.finishClosed(ctx, result.State)
}

// finishClosed archives the transcript, removes the live state, enqueues
// analysis, and sends the farewell message.
func (w *Worker) finishClosed(ctx context.Context, state *State) error {
	if w.archiver != nil {
		if err := w.archiver.ArchiveState(ctx, state); err != nil {
			return err
		}
	}

	if err := w.states.Delete(ctx, state.ConversationID); err != nil {
		return err
	}
	if w.index != nil {
		if err := w.index.Unbind(ctx, state); err != nil {
			w.logger.Error("failed to unbind channel index", "error", err, "conversation_id", state.ConversationID)
		}
	}

	if w.analysis != nil {
		err := w.analysis.PublishAnalyze(ctx, AnalyzePayload{
			ConversationID: state.ConversationID,
			OrgID:          state.OrgID,
		})
		if err != nil {
			w.logger.Error("failed to enqueue analysis", "error", err, "conversation_id", state.ConversationID)
		}
	}

	w.deliver(ctx, state)
	return nil
}

// deliver sends the latest assistant message. Delivery failures are logged
// and do not fail the job; the broker must not replay an already-persisted
// state transition over a flaky chat API.
func (w *Worker) deliver(ctx context.Context, state *State) {
	if w.sender == nil {
		return
	}
	text := lastAssistantMessage(state)
	if text == "" {
		return
	}
	err := w.sender.SendMessage(ctx, channels.Message{
		Platform:  state.Platform,
		ChannelID: state.ChannelID,
		ThreadID:  state.ThreadID,
		Text:      text,
	})
	if err != nil {
		w.logger.Error("failed to deliver conversation message",
			"error", err,
			"conversation_id", state.ConversationID,
			"platform", state.Platform,
		)
	}
}

// acquire takes the per-conversation lock when one is configured. The
// returned func releases it.
func (w *Worker) acquire(ctx context.Context, conversationID string) (func(), error) {
	if w.lock == nil {
		return func() {}, nil
	}
	token, err := w.lock.Acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := w.lock.Release(context.Background(), conversationID, token); err != nil {
			w.logger.Warn("failed to release conversation lock", "error", err, "conversation_id", conversationID)
		}
	}, nil
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}

func lastAssistantMessage(state *State) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == ChatRoleAssistant {
			return state.Messages[i].Content
		}
	}
	return ""
}
