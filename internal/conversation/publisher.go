package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsekit/pulsekit/pkg/logging"
)

// Publisher enqueues conversation jobs for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// PublishInitiate enqueues an "initiate" job, optionally delayed.
func (p *Publisher) PublishInitiate(ctx context.Context, req InitiatePayload, delay time.Duration) error {
	return p.enqueue(ctx, queuePayload{Kind: jobTypeInitiate, Initiate: &req}, delay)
}

// PublishReply enqueues a "reply" job for an inbound reviewer message.
func (p *Publisher) PublishReply(ctx context.Context, req ReplyPayload) error {
	return p.enqueue(ctx, queuePayload{Kind: jobTypeReply, Reply: &req}, 0)
}

// PublishClose enqueues a "close" job.
func (p *Publisher) PublishClose(ctx context.Context, req ClosePayload) error {
	return p.enqueue(ctx, queuePayload{Kind: jobTypeClose, Close: &req}, 0)
}

// PublishAnalyze hands a closed conversation to the analysis pipeline.
func (p *Publisher) PublishAnalyze(ctx context.Context, req AnalyzePayload) error {
	return p.enqueue(ctx, queuePayload{Kind: jobTypeAnalyze, Analyze: &req}, 0)
}

func (p *Publisher) enqueue(ctx context.Context, payload queuePayload, delay time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body, delay); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "kind", payload.Kind, "delay", delay.String())
	return nil
}
