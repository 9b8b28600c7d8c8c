package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists analysis results.
type Store struct {
	db DB
}

// NewStore creates an analysis result store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Insert writes one result row. Re-analysis of the same conversation
// upserts so the job stays idempotent under queue redelivery.
func (s *Store) Insert(ctx context.Context, r *Result) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO analysis_results (id, conversation_id, org_id, status, summary, sentiment, highlights, model, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (conversation_id) DO UPDATE SET
			status = EXCLUDED.status,
			summary = EXCLUDED.summary,
			sentiment = EXCLUDED.sentiment,
			highlights = EXCLUDED.highlights,
			model = EXCLUDED.model,
			failure_reason = EXCLUDED.failure_reason`,
		r.ID, r.ConversationID, r.OrgID, string(r.Status), r.Summary,
		r.Sentiment, r.Highlights, r.Model, r.FailureReason, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("analysis: insert result: %w", err)
	}
	return nil
}

// GetByConversation loads the result for one conversation, or nil when
// the conversation has not been analyzed.
func (s *Store) GetByConversation(ctx context.Context, conversationID string) (*Result, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, conversation_id, org_id, status, summary, sentiment, highlights, model, failure_reason, created_at
		FROM analysis_results
		WHERE conversation_id = $1`, conversationID)

	var (
		r      Result
		status string
	)
	err := row.Scan(&r.ID, &r.ConversationID, &r.OrgID, &status, &r.Summary,
		&r.Sentiment, &r.Highlights, &r.Model, &r.FailureReason, &r.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("analysis: get result: %w", err)
	}
	r.Status = ResultStatus(status)
	return &r, nil
}
