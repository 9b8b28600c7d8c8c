package conversation

import (
	"context"
	"time"

	"github.com/pulsekit/pulsekit/internal/observability/metrics"
)

// InstrumentedLLMClient records completion latency under an operation label.
type InstrumentedLLMClient struct {
	inner     LLMClient
	metrics   *metrics.ConversationMetrics
	operation string
}

// NewInstrumentedLLMClient wraps a completion client with latency metrics.
func NewInstrumentedLLMClient(inner LLMClient, m *metrics.ConversationMetrics, operation string) *InstrumentedLLMClient {
	if inner == nil {
		panic("conversation: completion client is required")
	}
	return &InstrumentedLLMClient{inner: inner, metrics: m, operation: operation}
}

func (c *InstrumentedLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	start := time.Now()
	resp, err := c.inner.Complete(ctx, req)
	c.metrics.ObserveLLMLatency(c.operation, time.Since(start).Seconds())
	return resp, err
}
