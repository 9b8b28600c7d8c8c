package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/pulsekit/pulsekit/internal/questionnaire"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// FailurePolicy decides what happens when every completion provider is
// unreachable while generating a question.
type FailurePolicy string

const (
	// FailureFallback keeps the conversation moving with a canned question.
	FailureFallback FailurePolicy = "fallback"
	// FailureFail surfaces the error so the job queue retries later.
	FailureFail FailurePolicy = "fail"
)

// genericWrapUpQuestion is returned when all themes are exhausted.
const genericWrapUpQuestion = "Thanks for your time! Before we wrap up, is there anything else on your mind you'd like to share?"

// cannedQuestion is the FailureFallback stand-in when no provider responds.
const cannedQuestion = "Could you tell me a bit more about how that went from your perspective?"

const questionMaxTokens = 150
const questionTemperature = 0.7

// QuestionInput carries everything the generator needs for one question.
type QuestionInput struct {
	Theme           *questionnaire.Theme
	Verbatim        bool
	ReviewerName    string
	SubjectName     string
	InteractionType InteractionType
	Opening         bool
	Transcript      []ChatMessage
}

// QuestionGenerator produces the next question text, verbatim or AI-adapted.
type QuestionGenerator struct {
	llm    LLMClient
	model  string
	policy FailurePolicy
	logger *logging.Logger
}

// NewQuestionGenerator creates a generator backed by the given completion client.
func NewQuestionGenerator(llm LLMClient, model string, policy FailurePolicy, logger *logging.Logger) *QuestionGenerator {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if policy == "" {
		policy = FailureFallback
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &QuestionGenerator{llm: llm, model: model, policy: policy, logger: logger}
}

// Next returns the next question for the conversation.
//
// A nil theme means all themes are exhausted and yields a fixed wrap-up
// question. Verbatim themes with at least one example phrasing return that
// phrasing unchanged, with no completion call.
func (g *QuestionGenerator) Next(ctx context.Context, in QuestionInput) (string, error) {
	if in.Theme == nil {
		return genericWrapUpQuestion, nil
	}
	if in.Verbatim && len(in.Theme.ExamplePhrasings) > 0 {
		return in.Theme.ExamplePhrasings[0], nil
	}

	req := LLMRequest{
		Model:       g.model,
		System:      []string{g.systemPrompt(in)},
		MaxTokens:   questionMaxTokens,
		Temperature: questionTemperature,
	}
	if !in.Opening {
		req.Messages = append(req.Messages, in.Transcript...)
	}
	if len(req.Messages) == 0 {
		req.Messages = []ChatMessage{{Role: ChatRoleUser, Content: "Begin the conversation now."}}
	}

	resp, err := g.llm.Complete(ctx, req)
	if err != nil {
		if g.policy == FailureFail {
			return "", fmt.Errorf("conversation: question generation failed: %w", err)
		}
		g.logger.Warn("question generation failed, using canned question",
			"error", err, "theme_id", in.Theme.ID)
		return cannedQuestion, nil
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		if g.policy == FailureFail {
			return "", fmt.Errorf("conversation: question generation returned empty text")
		}
		g.logger.Warn("question generation returned empty text, using canned question",
			"theme_id", in.Theme.ID)
		return cannedQuestion, nil
	}
	return text, nil
}

func (g *QuestionGenerator) systemPrompt(in QuestionInput) string {
	var sb strings.Builder

	sb.WriteString("You are a friendly colleague running a short feedback check-in over chat. ")
	sb.WriteString("Ask exactly one short, conversational question and nothing else.\n\n")

	subject := in.SubjectName
	if subject == "" {
		subject = "their colleague"
	}
	if in.InteractionType == InteractionSelfReflection {
		fmt.Fprintf(&sb, "The reviewer %s is reflecting on their own work.\n", in.ReviewerName)
	} else {
		fmt.Fprintf(&sb, "The reviewer %s is sharing feedback about %s.\n", in.ReviewerName, subject)
	}

	fmt.Fprintf(&sb, "\nTheme intent: %s\n", in.Theme.Intent)
	fmt.Fprintf(&sb, "Data goal: %s\n", in.Theme.DataGoal)

	if len(in.Theme.ExamplePhrasings) > 0 {
		sb.WriteString("\nExample phrasings, for inspiration only — do not copy them verbatim:\n")
		for _, p := range in.Theme.ExamplePhrasings {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}

	sb.WriteString("\nRules:\n")
	if in.Opening {
		fmt.Fprintf(&sb, "- Greet %s warmly by name, then ask the question.\n", in.ReviewerName)
	} else {
		sb.WriteString("- Do not greet or address the reviewer by name again.\n")
		sb.WriteString("- Acknowledge their previous answer in a few words before asking.\n")
	}
	sb.WriteString("- Never mention that a questionnaire, theme, or script exists.\n")
	sb.WriteString("- Keep it under two sentences.\n")

	return sb.String()
}

// ClosingMessage returns the fixed farewell for an interaction type.
// No completion call is involved.
func ClosingMessage(t InteractionType) string {
	switch t {
	case InteractionPeerReview:
		return "That's everything I wanted to ask — thank you for the thoughtful feedback! It makes a real difference for your colleague."
	case InteractionSelfReflection:
		return "That's a wrap — thanks for taking a moment to reflect. These check-ins add up over time."
	case InteractionThreeSixty:
		return "All done — thank you! Your perspective is an important part of the full picture."
	case InteractionPulseCheck:
		return "Thanks for the quick pulse check — talk to you again soon!"
	default:
		return "That's all for today — thanks for sharing your thoughts!"
	}
}
