package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pulsekit/pulsekit/internal/archive"
	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

const summaryMaxTokens = 500
const summaryTemperature = 0.2

// Summary is the structured output extracted from one transcript.
type Summary struct {
	Summary    string   `json:"summary"`
	Sentiment  string   `json:"sentiment"`
	Highlights []string `json:"highlights"`
}

// Summarizer condenses a feedback transcript into a Summary via the
// completion model.
type Summarizer struct {
	llm    conversation.LLMClient
	model  string
	logger *logging.Logger
}

// NewSummarizer creates a transcript summarizer.
func NewSummarizer(llm conversation.LLMClient, model string, logger *logging.Logger) *Summarizer {
	if llm == nil {
		panic("analysis: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Summarizer{llm: llm, model: model, logger: logger}
}

// Summarize asks the model for a structured summary of the transcript.
func (s *Summarizer) Summarize(ctx context.Context, record *archive.TranscriptRecord) (Summary, error) {
	req := conversation.LLMRequest{
		Model:       s.model,
		System:      []string{summarySystemPrompt(record)},
		Messages:    transcriptMessages(record),
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	}

	resp, err := s.llm.Complete(ctx, req)
	if err != nil {
		return Summary{}, fmt.Errorf("analysis: summarize conversation %s: %w", record.ConversationID, err)
	}

	summary, err := parseSummary(resp.Text)
	if err != nil {
		return Summary{}, fmt.Errorf("analysis: parse summary for conversation %s: %w", record.ConversationID, err)
	}

	s.logger.Debug("transcript summarized",
		"conversation_id", record.ConversationID,
		"sentiment", summary.Sentiment,
		"highlights", len(summary.Highlights),
	)
	return summary, nil
}

func summarySystemPrompt(record *archive.TranscriptRecord) string {
	var b strings.Builder
	b.WriteString("You analyze workplace feedback conversations. ")
	b.WriteString("Summarize the reviewer's feedback from the transcript below.\n\n")
	fmt.Fprintf(&b, "Interaction type: %s\n", record.InteractionType)
	if len(record.ThemesCovered) > 0 {
		fmt.Fprintf(&b, "Themes covered: %s\n", strings.Join(record.ThemesCovered, ", "))
	}
	b.WriteString("\nRespond with a single JSON object and nothing else:\n")
	b.WriteString(`{"summary": "2-3 sentence synthesis", "sentiment": "positive|neutral|negative|mixed", "highlights": ["up to 3 short key points"]}`)
	return b.String()
}

// transcriptMessages replays the archived exchange for the model, mapping
// any non-reviewer role to assistant.
func transcriptMessages(record *archive.TranscriptRecord) []conversation.ChatMessage {
	msgs := make([]conversation.ChatMessage, 0, len(record.Messages))
	for _, m := range record.Messages {
		role := conversation.ChatRoleAssistant
		if m.Role == conversation.ChatRoleUser {
			role = conversation.ChatRoleUser
		}
		msgs = append(msgs, conversation.ChatMessage{Role: role, Content: m.Content})
	}
	return msgs
}

// parseSummary extracts the JSON object from the model output, tolerating
// prose or code fences around it.
func parseSummary(text string) (Summary, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Summary{}, fmt.Errorf("no JSON object in model output")
	}

	var s Summary
	if err := json.Unmarshal([]byte(text[start:end+1]), &s); err != nil {
		return Summary{}, err
	}
	if strings.TrimSpace(s.Summary) == "" {
		return Summary{}, fmt.Errorf("model output missing summary")
	}
	return s, nil
}
