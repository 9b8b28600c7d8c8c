package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/internal/questionnaire"
)

func testQuestionnaire(id string, verbatim bool, themeIDs ...string) questionnaire.Questionnaire {
	q := questionnaire.Questionnaire{
		ID:       id,
		OrgID:    "org_1",
		Name:     "Peer Review Standard",
		Category: "peer_review",
		Source:   questionnaire.SourceBuiltIn,
		Verbatim: verbatim,
		Active:   true,
	}
	for i, tid := range themeIDs {
		q.Themes = append(q.Themes, questionnaire.Theme{
			ID:               tid,
			Intent:           "intent for " + tid,
			DataGoal:         "data goal for " + tid,
			ExamplePhrasings: []string{"Example question about " + tid + "?"},
			Position:         i,
		})
	}
	return q
}

func newTestOrchestrator(t *testing.T, llm LLMClient, qs ...questionnaire.Questionnaire) *Orchestrator {
	t.Helper()

	repo := questionnaire.NewInMemoryRepository()
	for _, q := range qs {
		repo.Put(q)
	}

	dir := directory.NewInMemoryRepository()
	dir.PutUser(directory.User{ID: "user_rev", OrgID: "org_1", DisplayName: "Alex", Active: true})
	dir.PutUser(directory.User{ID: "user_sub", OrgID: "org_1", DisplayName: "Dana", Active: true})

	gen := NewQuestionGenerator(llm, "test-model", FailureFallback, nil)
	eng := NewDecisionEngine(llm, "test-model", nil)
	return NewOrchestrator(repo, dir, gen, eng, nil)
}

func initiateRequest(questionnaireID string, it InteractionType) InitiateRequest {
	return InitiateRequest{
		OrgID:           "org_1",
		ReviewerID:      "user_rev",
		SubjectID:       "user_sub",
		InteractionType: it,
		Platform:        "slack",
		ChannelID:       "D123",
		QuestionnaireID: questionnaireID,
		ScheduleEntryID: "sched_1",
	}
}

func TestInitiateBuildsOpeningState(t *testing.T) {
	llm := &stubLLM{responses: []string{"Hi Alex! How has working with Dana been this week?"}}
	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false, "t1", "t2", "t3"))

	state, err := orch.Initiate(context.Background(), initiateRequest("q1", InteractionPeerReview))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(state.ConversationID, "conv_") {
		t.Errorf("conversation ID = %q, want conv_ prefix", state.ConversationID)
	}
	if state.Phase != PhaseOpening {
		t.Errorf("phase = %s, want opening", state.Phase)
	}
	if state.MessageCount != 1 {
		t.Errorf("message count = %d, want 1", state.MessageCount)
	}
	if state.MaxMessages != 5 {
		t.Errorf("max messages = %d, want 5 for peer_review", state.MaxMessages)
	}
	// Peer review selects two themes, in questionnaire order.
	if len(state.SelectedThemes) != 2 || state.SelectedThemes[0] != "t1" || state.SelectedThemes[1] != "t2" {
		t.Errorf("selected themes = %v, want [t1 t2]", state.SelectedThemes)
	}
	if len(state.Messages) != 1 || state.Messages[0].Role != ChatRoleAssistant {
		t.Fatalf("transcript = %+v, want single assistant message", state.Messages)
	}
}

func TestInitiateSelfReflectionThemeBudget(t *testing.T) {
	llm := &stubLLM{}
	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false, "t1", "t2", "t3", "t4"))

	req := initiateRequest("q1", InteractionSelfReflection)
	req.SubjectID = req.ReviewerID

	state, err := orch.Initiate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.SelectedThemes) != 3 {
		t.Errorf("selected themes = %d, want 3 for self_reflection", len(state.SelectedThemes))
	}
	if state.MaxMessages != 4 {
		t.Errorf("max messages = %d, want 4", state.MaxMessages)
	}
}

func TestInitiateEmptyQuestionnaireOpensWithWrapUp(t *testing.T) {
	// A questionnaire with no themes still produces a polite conversation
	// rather than an error.
	llm := &stubLLM{}
	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false))

	state, err := orch.Initiate(context.Background(), initiateRequest("q1", InteractionPeerReview))
	if err != nil {
		t.Fatal(err)
	}
	if len(state.SelectedThemes) != 0 {
		t.Fatalf("selected themes = %v, want none", state.SelectedThemes)
	}
	if !strings.HasPrefix(state.Messages[0].Content, "Thanks for your time!") {
		t.Errorf("opening = %q, want generic wrap-up question", state.Messages[0].Content)
	}
	if llm.callCount() != 0 {
		t.Errorf("completion calls = %d, want 0", llm.callCount())
	}
}

func TestInitiateVerbatimUsesFirstPhrasing(t *testing.T) {
	llm := &stubLLM{}
	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", true, "t1", "t2"))

	state, err := orch.Initiate(context.Background(), initiateRequest("q1", InteractionPeerReview))
	if err != nil {
		t.Fatal(err)
	}
	if state.Messages[0].Content != "Example question about t1?" {
		t.Errorf("opening = %q, want verbatim phrasing", state.Messages[0].Content)
	}
	if llm.callCount() != 0 {
		t.Errorf("completion calls = %d, want 0", llm.callCount())
	}
}

func TestHandleReplyNextThemeAdvances(t *testing.T) {
	llm := &stubLLM{responses: []string{"next_theme", "What about how deadlines were handled?"}}
	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false, "t1", "t2"))

	state := &State{
		ConversationID:  "conv_1",
		OrgID:           "org_1",
		ReviewerID:      "user_rev",
		SubjectID:       "user_sub",
		QuestionnaireID: "q1",
		InteractionType: InteractionPeerReview,
		SelectedThemes:  []string{"t1", "t2"},
		MessageCount:    1,
		MaxMessages:     5,
		Phase:           PhaseOpening,
		Messages:        []ChatMessage{{Role: ChatRoleAssistant, Content: "opening"}},
	}

	result, err := orch.HandleReply(context.Background(), state, "It went really well.")
	if err != nil {
		t.Fatal(err)
	}
	if result.Closed {
		t.Fatal("conversation closed unexpectedly")
	}
	if state.CurrentThemeIndex != 1 {
		t.Errorf("theme index = %d, want 1", state.CurrentThemeIndex)
	}
	if state.Phase != PhaseExploring {
		t.Errorf("phase = %s, want exploring", state.Phase)
	}
	if state.MessageCount != 3 {
		t.Errorf("message count = %d, want 3", state.MessageCount)
	}
	last := state.Messages[len(state.Messages)-1]
	if last.Role != ChatRoleAssistant || last.Content != "What about how deadlines were handled?" {
		t.Errorf("last message = %+v", last)
	}
}

func TestHandleReplyFollowUpKeepsTheme(t *testing.T) {
	llm := &stubLLM{responses: []string{"follow_up", "Could you give a concrete example?"}}
	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false, "t1", "t2"))

	state := &State{
		ConversationID:  "conv_1",
		QuestionnaireID: "q1",
		InteractionType: InteractionPeerReview,
		SelectedThemes:  []string{"t1", "t2"},
		MessageCount:    1,
		MaxMessages:     5,
		Phase:           PhaseOpening,
		Messages:        []ChatMessage{{Role: ChatRoleAssistant, Content: "opening"}},
	}

	result, err := orch.HandleReply(context.Background(), state, "Mostly smooth.")
	if err != nil {
		t.Fatal(err)
	}
	if result.Closed {
		t.Fatal("conversation closed unexpectedly")
	}
	if state.CurrentThemeIndex != 0 {
		t.Errorf("theme index = %d, want 0", state.CurrentThemeIndex)
	}
	if state.Phase != PhaseFollowUp {
		t.Errorf("phase = %s, want follow_up", state.Phase)
	}
}

func TestHandleReplyClosesOnDecision(t *testing.T) {
	llm := &stubLLM{responses: []string{"close"}}
	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false, "t1", "t2"))

	state := &State{
		ConversationID:  "conv_1",
		QuestionnaireID: "q1",
		InteractionType: InteractionPeerReview,
		SelectedThemes:  []string{"t1", "t2"},
		MessageCount:    1,
		MaxMessages:     5,
		Phase:           PhaseOpening,
		Messages:        []ChatMessage{{Role: ChatRoleAssistant, Content: "opening"}},
	}

	result, err := orch.HandleReply(context.Background(), state, "I'd rather not continue.")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Closed {
		t.Fatal("expected closed conversation")
	}
	if state.Phase != PhaseClosing {
		t.Errorf("phase = %s, want closing", state.Phase)
	}
	last := state.Messages[len(state.Messages)-1]
	if last.Content != ClosingMessage(InteractionPeerReview) {
		t.Errorf("closing message = %q", last.Content)
	}
}

func TestConversationNeverExceedsMaxMessages(t *testing.T) {
	for _, tt := range []struct {
		it  InteractionType
		max int
	}{
		{InteractionPeerReview, 5},
		{InteractionSelfReflection, 4},
		{InteractionThreeSixty, 5},
		{InteractionPulseCheck, 3},
	} {
		t.Run(string(tt.it), func(t *testing.T) {
			// The stub never answers "close", so only the hard budget and
			// theme exhaustion can end the conversation.
			llm := &stubLLM{responses: []string{"Another engaged question?"}}
			orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false, "t1", "t2", "t3"))

			state, err := orch.Initiate(context.Background(), initiateRequest("q1", tt.it))
			if err != nil {
				t.Fatal(err)
			}
			if state.MaxMessages != tt.max {
				t.Fatalf("max messages = %d, want %d", state.MaxMessages, tt.max)
			}

			for i := 0; i < 10; i++ {
				result, err := orch.HandleReply(context.Background(), state, "an engaged answer")
				if err != nil {
					t.Fatal(err)
				}
				if result.Closed {
					break
				}
			}
			if state.Phase != PhaseClosing {
				t.Fatalf("conversation never closed, phase = %s", state.Phase)
			}
			if state.MessageCount > tt.max+1 {
				t.Errorf("message count = %d, exceeds budget %d plus farewell", state.MessageCount, tt.max)
			}
		})
	}
}

func TestForceClose(t *testing.T) {
	llm := &stubLLM{}
	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false, "t1"))

	state := &State{
		ConversationID:  "conv_1",
		InteractionType: InteractionPulseCheck,
		Phase:           PhaseExploring,
		MessageCount:    2,
		MaxMessages:     3,
	}

	result := orch.ForceClose(state)
	if !result.Closed {
		t.Fatal("force close did not close")
	}
	if state.Phase != PhaseClosing {
		t.Errorf("phase = %s, want closing", state.Phase)
	}
	if llm.callCount() != 0 {
		t.Errorf("force close made %d completion calls, want 0", llm.callCount())
	}
}
