package questionnaire

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads questionnaires and themes from Postgres.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a questionnaire repository backed by pgx.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("questionnaire: db is required")
	}
	return &PostgresRepository{db: db}
}

// ListActive returns active questionnaires for an org with themes attached,
// ordered by name.
func (r *PostgresRepository) ListActive(ctx context.Context, orgID string) ([]Questionnaire, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, org_id, name, category, source, verbatim, active
		FROM questionnaires
		WHERE org_id = $1 AND active = true
		ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("questionnaire: list active: %w", err)
	}
	defer rows.Close()

	var out []Questionnaire
	for rows.Next() {
		var q Questionnaire
		var source string
		if err := rows.Scan(&q.ID, &q.OrgID, &q.Name, &q.Category, &source, &q.Verbatim, &q.Active); err != nil {
			return nil, fmt.Errorf("questionnaire: scan: %w", err)
		}
		q.Source = Source(source)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("questionnaire: rows: %w", err)
	}

	for i := range out {
		themes, err := r.listThemes(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Themes = themes
	}
	return out, nil
}

// GetByID returns a questionnaire with its themes.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Questionnaire, error) {
	var q Questionnaire
	var source string
	err := r.db.QueryRow(ctx, `
		SELECT id, org_id, name, category, source, verbatim, active
		FROM questionnaires
		WHERE id = $1`, id).
		Scan(&q.ID, &q.OrgID, &q.Name, &q.Category, &source, &q.Verbatim, &q.Active)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("questionnaire: get %s: %w", id, err)
	}
	q.Source = Source(source)

	themes, err := r.listThemes(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.Themes = themes
	return &q, nil
}

func (r *PostgresRepository) listThemes(ctx context.Context, questionnaireID string) ([]Theme, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, intent, data_goal, example_phrasings, position
		FROM questionnaire_themes
		WHERE questionnaire_id = $1
		ORDER BY position ASC`, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("questionnaire: list themes: %w", err)
	}
	defer rows.Close()

	var themes []Theme
	for rows.Next() {
		var t Theme
		if err := rows.Scan(&t.ID, &t.Intent, &t.DataGoal, &t.ExamplePhrasings, &t.Position); err != nil {
			return nil, fmt.Errorf("questionnaire: scan theme: %w", err)
		}
		themes = append(themes, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("questionnaire: theme rows: %w", err)
	}
	return themes, nil
}
