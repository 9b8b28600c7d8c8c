package conversation

import (
	"context"
	"errors"
	"testing"
)

func midConversationState() *State {
	return &State{
		ConversationID:    "conv_test",
		InteractionType:   InteractionPeerReview,
		SelectedThemes:    []string{"t1", "t2"},
		CurrentThemeIndex: 0,
		MessageCount:      2,
		MaxMessages:       5,
		Phase:             PhaseExploring,
	}
}

func TestDecideClosesWhenThemesExhausted(t *testing.T) {
	llm := &stubLLM{responses: []string{"follow_up"}}
	engine := NewDecisionEngine(llm, "test-model", nil)

	state := midConversationState()
	state.CurrentThemeIndex = 1 // last theme

	if got := engine.Decide(context.Background(), state, "some reply"); got != DecisionClose {
		t.Errorf("Decide = %s, want close", got)
	}
	if llm.callCount() != 0 {
		t.Errorf("theme-exhausted close made %d completion calls, want 0", llm.callCount())
	}
}

func TestDecideClosesOnMessageBudget(t *testing.T) {
	llm := &stubLLM{responses: []string{"follow_up"}}
	engine := NewDecisionEngine(llm, "test-model", nil)

	state := midConversationState()
	state.MessageCount = 4 // MaxMessages-1

	if got := engine.Decide(context.Background(), state, "some reply"); got != DecisionClose {
		t.Errorf("Decide = %s, want close", got)
	}
	if llm.callCount() != 0 {
		t.Errorf("budget close made %d completion calls, want 0", llm.callCount())
	}
}

func TestDecideOpeningPhaseSkipsThemeShortCircuit(t *testing.T) {
	// A pulse check with one theme is still on it after the opening; the
	// engine must consult the model rather than close instantly.
	llm := &stubLLM{responses: []string{"follow_up"}}
	engine := NewDecisionEngine(llm, "test-model", nil)

	state := &State{
		InteractionType:   InteractionPulseCheck,
		SelectedThemes:    []string{"t1"},
		CurrentThemeIndex: 0,
		MessageCount:      1,
		MaxMessages:       3,
		Phase:             PhaseOpening,
	}

	if got := engine.Decide(context.Background(), state, "going well"); got != DecisionFollowUp {
		t.Errorf("Decide = %s, want follow_up", got)
	}
	if llm.callCount() != 1 {
		t.Errorf("completion calls = %d, want 1", llm.callCount())
	}
}

func TestDecideClassifierParameters(t *testing.T) {
	llm := &stubLLM{responses: []string{"next_theme"}}
	engine := NewDecisionEngine(llm, "test-model", nil)

	engine.Decide(context.Background(), midConversationState(), "we shipped on time")

	req := llm.lastRequest()
	if req.MaxTokens != 8 {
		t.Errorf("MaxTokens = %d, want 8", req.MaxTokens)
	}
	if req.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", req.Temperature)
	}
}

func TestDecideDefaultsToNextThemeOnError(t *testing.T) {
	llm := &stubLLM{err: errors.New("model unavailable")}
	engine := NewDecisionEngine(llm, "test-model", nil)

	if got := engine.Decide(context.Background(), midConversationState(), "reply"); got != DecisionNextTheme {
		t.Errorf("Decide = %s, want next_theme on classification error", got)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		text string
		want Decision
	}{
		{"follow_up", DecisionFollowUp},
		{"FOLLOW_UP", DecisionFollowUp},
		{"I think follow_up is right", DecisionFollowUp},
		{"close", DecisionClose},
		{"Close.", DecisionClose},
		{"next_theme", DecisionNextTheme},
		{"", DecisionNextTheme},
		{"gibberish output", DecisionNextTheme},
	}
	for _, tt := range tests {
		if got := parseDecision(tt.text); got != tt.want {
			t.Errorf("parseDecision(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestDecideSendsTranscriptWithoutDuplicateReply(t *testing.T) {
	llm := &stubLLM{responses: []string{"next_theme"}}
	engine := NewDecisionEngine(llm, "test-model", nil)

	state := midConversationState()
	state.Messages = []ChatMessage{
		{Role: ChatRoleAssistant, Content: "How was the week with Dana?"},
		{Role: ChatRoleUser, Content: "we shipped on time"},
	}

	engine.Decide(context.Background(), state, "we shipped on time")

	req := llm.lastRequest()
	if len(req.Messages) != len(state.Messages) {
		t.Fatalf("transcript messages = %d, want %d", len(req.Messages), len(state.Messages))
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != ChatRoleUser || last.Content != "we shipped on time" {
		t.Errorf("last turn = %+v, want the reviewer reply as the only final user turn", last)
	}
	for i := 1; i < len(req.Messages); i++ {
		if req.Messages[i].Role == req.Messages[i-1].Role {
			t.Errorf("consecutive %s turns at index %d", req.Messages[i].Role, i)
		}
	}
}
