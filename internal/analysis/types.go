// Package analysis turns closed-conversation transcripts into stored
// feedback summaries. A queue worker loads the archived transcript, asks
// the completion model for a structured summary, and persists the result.
package analysis

import (
	"time"

	"github.com/google/uuid"
)

// ResultStatus marks whether summarization succeeded for a conversation.
type ResultStatus string

const (
	StatusCompleted ResultStatus = "completed"
	StatusFailed    ResultStatus = "failed"
)

// Result is one analysis_results row.
type Result struct {
	ID             uuid.UUID
	ConversationID string
	OrgID          string
	Status         ResultStatus
	Summary        string
	Sentiment      string
	Highlights     []string
	Model          string
	FailureReason  string
	CreatedAt      time.Time
}
