package archive

import (
	"context"
	"time"

	"github.com/pulsekit/pulsekit/internal/conversation"
)

// TranscriptRecord is the top-level structure archived to S3 when a
// conversation closes.
type TranscriptRecord struct {
	Version         string    `json:"version"` // "1.0"
	ConversationID  string    `json:"conversation_id"`
	OrgID           string    `json:"org_id"`
	ReviewerID      string    `json:"reviewer_id"`
	SubjectID       string    `json:"subject_id,omitempty"`
	QuestionnaireID string    `json:"questionnaire_id"`
	InteractionType string    `json:"interaction_type"`
	Platform        string    `json:"platform"`
	StartedAt       time.Time `json:"started_at"`
	ArchivedAt      time.Time `json:"archived_at"`
	MessageCount    int       `json:"message_count"`
	ThemesCovered   []string  `json:"themes_covered"`
	Messages        []Message `json:"messages"`
}

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	ConversationID  string `json:"conversation_id"`
	S3Key           string `json:"s3_key"`
	OrgID           string `json:"org_id"`
	InteractionType string `json:"interaction_type"`
	ArchivedAt      string `json:"archived_at"`
	MessageCount    int    `json:"message_count"`
}

// ArchiveState archives the transcript of a closed conversation state.
func (s *Store) ArchiveState(ctx context.Context, state *conversation.State) error {
	return s.ArchiveTranscript(ctx, NewTranscriptRecord(state, time.Now().UTC()))
}

// NewTranscriptRecord builds a record from a closed conversation.
func NewTranscriptRecord(state *conversation.State, archivedAt time.Time) *TranscriptRecord {
	rec := &TranscriptRecord{
		Version:         "1.0",
		ConversationID:  state.ConversationID,
		OrgID:           state.OrgID,
		ReviewerID:      state.ReviewerID,
		SubjectID:       state.SubjectID,
		QuestionnaireID: state.QuestionnaireID,
		InteractionType: string(state.InteractionType),
		Platform:        state.Platform,
		StartedAt:       state.CreatedAt,
		ArchivedAt:      archivedAt.UTC(),
		MessageCount:    state.MessageCount,
		ThemesCovered:   state.SelectedThemes,
	}
	for _, m := range state.Messages {
		rec.Messages = append(rec.Messages, Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return rec
}
