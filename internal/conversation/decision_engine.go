package conversation

import (
	"context"
	"strings"

	"github.com/pulsekit/pulsekit/pkg/logging"
)

// Decision is the next step chosen after a reviewer reply.
type Decision string

const (
	DecisionFollowUp  Decision = "follow_up"
	DecisionNextTheme Decision = "next_theme"
	DecisionClose     Decision = "close"
)

const classifierMaxTokens = 8

const classifierPrompt = `You are classifying the last reply in a workplace feedback chat.
Answer with exactly one word:
- "follow_up" if the reply is substantive and a specific follow-up question would surface more detail
- "next_theme" if the reply answered the question and the conversation should move on
- "close" if the reviewer is disengaged, wants to stop, or has nothing more to add
Answer with the single word only.`

// DecisionEngine classifies a reviewer reply into follow_up / next_theme / close.
type DecisionEngine struct {
	llm    LLMClient
	model  string
	logger *logging.Logger
}

// NewDecisionEngine creates a decision engine backed by the given completion client.
func NewDecisionEngine(llm LLMClient, model string, logger *logging.Logger) *DecisionEngine {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DecisionEngine{llm: llm, model: model, logger: logger}
}

// Decide returns the next step for the conversation. Hard budget conditions
// are checked before any completion call:
//
//  1. all themes exhausted (and past the opening) -> close
//  2. one exchange budget left -> close
//
// Only then is the model consulted. Its output is parsed by substring match,
// defaulting to next_theme on malformed or failed completions.
func (e *DecisionEngine) Decide(ctx context.Context, state *State, reply string) Decision {
	if state.CurrentThemeIndex >= len(state.SelectedThemes)-1 && state.Phase != PhaseOpening {
		return DecisionClose
	}
	if state.MessageCount >= state.MaxMessages-1 {
		return DecisionClose
	}

	// The reply under classification is already the last transcript turn.
	resp, err := e.llm.Complete(ctx, LLMRequest{
		Model:       e.model,
		System:      []string{classifierPrompt},
		Messages:    state.Messages,
		MaxTokens:   classifierMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		e.logger.Warn("decision classification failed, defaulting to next_theme",
			"error", err, "conversation_id", state.ConversationID)
		return DecisionNextTheme
	}

	return parseDecision(resp.Text)
}

func parseDecision(text string) Decision {
	lowered := strings.ToLower(text)
	switch {
	case strings.Contains(lowered, "follow_up"):
		return DecisionFollowUp
	case strings.Contains(lowered, "close"):
		return DecisionClose
	default:
		return DecisionNextTheme
	}
}
