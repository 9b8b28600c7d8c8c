// Package scheduling plans recurring feedback interactions: the daily
// per-org batch pass, subject and questionnaire selection, send-time
// computation, and the dispatcher that turns due schedule entries into
// delayed initiate jobs.
package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit/internal/conversation"
)

// EntryStatus tracks a schedule entry through its lifecycle.
type EntryStatus string

const (
	StatusPending    EntryStatus = "pending"
	StatusDispatched EntryStatus = "dispatched"
)

// ScheduleEntry is a durable record of one planned interaction. Entries are
// created by the scheduler, counted against the weekly quota on the next
// run, and flipped to dispatched once the initiate job is on the queue.
type ScheduleEntry struct {
	ID              uuid.UUID
	OrgID           string
	UserID          string // reviewer
	SubjectID       string
	InteractionType conversation.InteractionType
	QuestionnaireID string
	SendAt          time.Time // UTC
	Status          EntryStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Result aggregates one scheduler pass for observability.
type Result struct {
	Scheduled int
	Skipped   int
}

// weekWindow returns the current ISO week [Monday 00:00, Sunday
// 23:59:59.999] in UTC.
func weekWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the week that started 6 days ago
	}
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -(weekday - 1))
	sundayEnd := monday.AddDate(0, 0, 7).Add(-time.Millisecond)
	return monday, sundayEnd
}
