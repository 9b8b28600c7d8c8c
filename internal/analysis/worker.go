package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pulsekit/pulsekit/internal/archive"
	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

const (
	defaultConcurrency   = 3
	receiveWaitSeconds   = 2
	receiveBatchSize     = 5
	deleteTimeoutSeconds = 5
)

// queueClient is the analyze-queue slice the worker needs.
// *conversation.SQSQueue and *conversation.MemoryQueue satisfy it.
type queueClient interface {
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]conversation.QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// TranscriptLoader fetches archived transcripts. *archive.Store satisfies it.
type TranscriptLoader interface {
	GetTranscript(ctx context.Context, conversationID string) (*archive.TranscriptRecord, error)
}

// ResultWriter persists analysis results. *Store satisfies it.
type ResultWriter interface {
	Insert(ctx context.Context, r *Result) error
}

// analyzeJob mirrors the wire shape of analyze messages published by
// conversation.Publisher.
type analyzeJob struct {
	ID      string                       `json:"id"`
	Kind    string                       `json:"kind"`
	Analyze *conversation.AnalyzePayload `json:"analyze"`
}

// Worker consumes analyze jobs and runs summarization with bounded
// parallelism. Summarization failures are terminal and recorded as failed
// rows; only transient transcript-load errors leave the message on the
// queue for redelivery.
type Worker struct {
	queue      queueClient
	archive    TranscriptLoader
	summarizer *Summarizer
	results    ResultWriter
	logger     *logging.Logger

	concurrency int
	sem         chan struct{}
	wg          sync.WaitGroup
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*Worker)

// WithConcurrency bounds how many transcripts are summarized at once.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// NewWorker creates an analysis job worker.
func NewWorker(
	queue queueClient,
	archiveStore TranscriptLoader,
	summarizer *Summarizer,
	results ResultWriter,
	logger *logging.Logger,
	opts ...WorkerOption,
) *Worker {
	if queue == nil || archiveStore == nil || summarizer == nil || results == nil {
		panic("analysis: worker requires queue, archive, summarizer, and result store")
	}
	if logger == nil {
		logger = logging.Default()
	}

	w := &Worker{
		queue:       queue,
		archive:     archiveStore,
		summarizer:  summarizer,
		results:     results,
		logger:      logger,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.sem = make(chan struct{}, w.concurrency)
	return w
}

// Start launches the receive loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Wait blocks until the receive loop and all in-flight jobs finish.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Debug("analysis worker started", "concurrency", w.concurrency)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("analysis worker stopping")
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, receiveBatchSize, receiveWaitSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive analyze jobs", "error", err)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.sem <- struct{}{}
			w.wg.Add(1)
			go func(msg conversation.QueueMessage) {
				defer w.wg.Done()
				defer func() { <-w.sem }()
				w.handleMessage(ctx, msg)
			}(msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg conversation.QueueMessage) {
	var job analyzeJob
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("failed to decode analyze job", "error", err)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}
	if job.Analyze == nil {
		w.logger.Error("analyze job missing payload", "job_id", job.ID, "kind", job.Kind)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	if err := w.process(ctx, job.Analyze); err != nil {
		// Transient failure. The broker redelivers the message.
		w.logger.Error("analyze job failed", "error", err, "job_id", job.ID,
			"conversation_id", job.Analyze.ConversationID)
		return
	}
	w.deleteMessage(msg.ReceiptHandle)
}

// process loads the transcript and stores a result row. Summarization
// errors degrade to a failed row rather than a retry; the model output is
// not going to improve on redelivery.
func (w *Worker) process(ctx context.Context, payload *conversation.AnalyzePayload) error {
	record, err := w.archive.GetTranscript(ctx, payload.ConversationID)
	if errors.Is(err, archive.ErrTranscriptNotFound) {
		return w.storeFailure(ctx, payload, "transcript not archived")
	}
	if err != nil {
		return fmt.Errorf("analysis: load transcript: %w", err)
	}

	summary, err := w.summarizer.Summarize(ctx, record)
	if err != nil {
		w.logger.Warn("summarization failed, recording failed result",
			"error", err, "conversation_id", payload.ConversationID)
		return w.storeFailure(ctx, payload, err.Error())
	}

	result := &Result{
		ConversationID: payload.ConversationID,
		OrgID:          payload.OrgID,
		Status:         StatusCompleted,
		Summary:        summary.Summary,
		Sentiment:      summary.Sentiment,
		Highlights:     summary.Highlights,
		Model:          w.summarizer.model,
	}
	if err := w.results.Insert(ctx, result); err != nil {
		return err
	}

	w.logger.Info("conversation analyzed",
		"conversation_id", payload.ConversationID,
		"org_id", payload.OrgID,
		"sentiment", result.Sentiment,
	)
	return nil
}

func (w *Worker) storeFailure(ctx context.Context, payload *conversation.AnalyzePayload, reason string) error {
	return w.results.Insert(ctx, &Result{
		ConversationID: payload.ConversationID,
		OrgID:          payload.OrgID,
		Status:         StatusFailed,
		Model:          w.summarizer.model,
		FailureReason:  reason,
	})
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete analyze job message", "error", err)
	}
}
