package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestConversationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)
	m.ObserveStarted("peer_review", "slack")
	m.ObserveClosed("peer_review", "themes_exhausted")
	m.ObserveDecision("close")
	m.ObserveLLMLatency("question", 0.5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if got := counterValue(families, "pulsekit_conversation_started_total"); got != 1 {
		t.Errorf("started_total = %v, want 1", got)
	}
	if got := counterValue(families, "pulsekit_conversation_closed_total"); got != 1 {
		t.Errorf("closed_total = %v, want 1", got)
	}
}

func TestSchedulerMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulerMetrics(reg)
	m.ObservePass("org_1", 3, 2)
	m.ObserveDispatched(4)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if got := counterValue(families, "pulsekit_scheduler_scheduled_total"); got != 3 {
		t.Errorf("scheduled_total = %v, want 3", got)
	}
	if got := counterValue(families, "pulsekit_scheduler_skipped_total"); got != 2 {
		t.Errorf("skipped_total = %v, want 2", got)
	}
	if got := counterValue(families, "pulsekit_scheduler_dispatched_total"); got != 4 {
		t.Errorf("dispatched_total = %v, want 4", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var cm *ConversationMetrics
	cm.ObserveStarted("peer_review", "slack")
	cm.ObserveClosed("peer_review", "forced")
	cm.ObserveDecision("next_theme")
	cm.ObserveLLMLatency("decision", 0.1)

	var sm *SchedulerMetrics
	sm.ObservePass("org_1", 1, 0)
	sm.ObserveDispatched(1)
}

func counterValue(families []*dto.MetricFamily, name string) float64 {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		var total float64
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return -1
}
