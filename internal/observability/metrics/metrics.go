package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the conversation
// pipeline.
type ConversationMetrics struct {
	startedTotal   *prometheus.CounterVec
	closedTotal    *prometheus.CounterVec
	decisionsTotal *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		startedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsekit",
			Subsystem: "conversation",
			Name:      "started_total",
			Help:      "Total conversations initiated",
		}, []string{"interaction_type", "platform"}),
		closedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsekit",
			Subsystem: "conversation",
			Name:      "closed_total",
			Help:      "Total conversations closed",
		}, []string{"interaction_type", "reason"}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsekit",
			Subsystem: "conversation",
			Name:      "decisions_total",
			Help:      "Total flow decisions by outcome",
		}, []string{"decision"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pulsekit",
			Subsystem: "conversation",
			Name:      "llm_latency_seconds",
			Help:      "Latency of completion-model calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.startedTotal, m.closedTotal, m.decisionsTotal, m.llmLatency)
	return m
}

func (m *ConversationMetrics) ObserveStarted(interactionType, platform string) {
	if m == nil {
		return
	}
	m.startedTotal.WithLabelValues(interactionType, platform).Inc()
}

func (m *ConversationMetrics) ObserveClosed(interactionType, reason string) {
	if m == nil {
		return
	}
	m.closedTotal.WithLabelValues(interactionType, reason).Inc()
}

func (m *ConversationMetrics) ObserveDecision(decision string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(decision).Inc()
}

func (m *ConversationMetrics) ObserveLLMLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(operation).Observe(seconds)
}

// SchedulerMetrics exposes counters for the daily scheduling pass.
type SchedulerMetrics struct {
	scheduledTotal *prometheus.CounterVec
	skippedTotal   *prometheus.CounterVec
	dispatchTotal  prometheus.Counter
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		scheduledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsekit",
			Subsystem: "scheduler",
			Name:      "scheduled_total",
			Help:      "Total interactions scheduled",
		}, []string{"org_id"}),
		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsekit",
			Subsystem: "scheduler",
			Name:      "skipped_total",
			Help:      "Total users skipped during scheduling passes",
		}, []string{"org_id"}),
		dispatchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsekit",
			Subsystem: "scheduler",
			Name:      "dispatched_total",
			Help:      "Total schedule entries handed to the queue by the dispatcher",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.scheduledTotal, m.skippedTotal, m.dispatchTotal)
	return m
}

func (m *SchedulerMetrics) ObservePass(orgID string, scheduled, skipped int) {
	if m == nil {
		return
	}
	m.scheduledTotal.WithLabelValues(orgID).Add(float64(scheduled))
	m.skippedTotal.WithLabelValues(orgID).Add(float64(skipped))
}

func (m *SchedulerMetrics) ObserveDispatched(count int) {
	if m == nil {
		return
	}
	m.dispatchTotal.Add(float64(count))
}
