package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulsekit/pulsekit/internal/conversation"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const entryColumns = "id, org_id, user_id, subject_id, interaction_type, questionnaire_id, send_at, status, created_at, updated_at"

// Store provides CRUD operations for schedule_entries.
type Store struct {
	db DB
}

// NewStore creates a schedule-entry store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Create inserts a new schedule entry.
func (s *Store) Create(ctx context.Context, e *ScheduleEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = StatusPending
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO schedule_entries (id, org_id, user_id, subject_id, interaction_type, questionnaire_id, send_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OrgID, e.UserID, e.SubjectID, string(e.InteractionType),
		e.QuestionnaireID, e.SendAt, string(e.Status), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: create entry: %w", err)
	}
	return nil
}

// ListWindow returns all entries for an org with send_at inside [from, to].
func (s *Store) ListWindow(ctx context.Context, orgID string, from, to time.Time) ([]ScheduleEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM schedule_entries
		WHERE org_id = $1 AND send_at >= $2 AND send_at <= $3
		ORDER BY send_at ASC`, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list window: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListDue returns all pending entries whose send_at is on or before asOf.
func (s *Store) ListDue(ctx context.Context, asOf time.Time) ([]ScheduleEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM schedule_entries
		WHERE status = 'pending' AND send_at <= $1
		ORDER BY send_at ASC`, asOf)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list due: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// MarkDispatched transitions an entry from pending to dispatched.
func (s *Store) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE schedule_entries SET status = 'dispatched', updated_at = $1
		WHERE id = $2 AND status = 'pending'`, now, id)
	if err != nil {
		return fmt.Errorf("scheduling: mark dispatched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scheduling: mark dispatched: no pending entry with id %s", id)
	}
	return nil
}

// RecentSubjectIDs returns the subject IDs from the user's most recent
// scheduled interactions, newest first, excluding self-reflections.
func (s *Store) RecentSubjectIDs(ctx context.Context, orgID, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(ctx, `
		SELECT subject_id
		FROM schedule_entries
		WHERE org_id = $1 AND user_id = $2 AND subject_id <> $2 AND subject_id <> ''
		ORDER BY created_at DESC
		LIMIT $3`, orgID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("scheduling: recent subjects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scheduling: scan recent subject: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanEntries(rows pgx.Rows) ([]ScheduleEntry, error) {
	var entries []ScheduleEntry
	for rows.Next() {
		var (
			e               ScheduleEntry
			interactionType string
			status          string
		)
		err := rows.Scan(&e.ID, &e.OrgID, &e.UserID, &e.SubjectID, &interactionType,
			&e.QuestionnaireID, &e.SendAt, &status, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan entry: %w", err)
		}
		e.InteractionType = conversation.InteractionType(interactionType)
		e.Status = EntryStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
