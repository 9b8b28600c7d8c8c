package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads the org directory from Postgres.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a directory repository backed by pgx.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("directory: db is required")
	}
	return &PostgresRepository{db: db}
}

const userColumns = `id, org_id, team_id, display_name, platform, channel_id,
	timezone, preferred_time, quiet_days, weekly_target, active, onboarded`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var quietDays []int16
	err := row.Scan(&u.ID, &u.OrgID, &u.TeamID, &u.DisplayName, &u.Platform,
		&u.ChannelID, &u.Timezone, &u.PreferredTime, &quietDays, &u.WeeklyTarget,
		&u.Active, &u.Onboarded)
	if err != nil {
		return nil, err
	}
	for _, d := range quietDays {
		u.QuietDays = append(u.QuietDays, time.Weekday(d))
	}
	return &u, nil
}

func (r *PostgresRepository) ListOrgIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT org_id FROM users ORDER BY org_id`)
	if err != nil {
		return nil, fmt.Errorf("directory: list orgs: %w", err)
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("directory: scan org: %w", err)
		}
		orgs = append(orgs, id)
	}
	return orgs, rows.Err()
}

func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get user %s: %w", id, err)
	}
	return u, nil
}

func (r *PostgresRepository) ListActiveUsers(ctx context.Context, orgID string) ([]User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE org_id = $1 AND active = true AND onboarded = true
		ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("directory: list active users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *PostgresRepository) ListTeamMembers(ctx context.Context, orgID, teamID string) ([]User, error) {
	var rows pgx.Rows
	var err error
	if teamID == "" {
		rows, err = r.db.Query(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE org_id = $1 AND active = true
			ORDER BY id`, orgID)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE org_id = $1 AND team_id = $2 AND active = true
			ORDER BY id`, orgID, teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("directory: list team members: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *PostgresRepository) ListRelationships(ctx context.Context, orgID, userID string) ([]Relationship, error) {
	rows, err := r.db.Query(ctx, `
		SELECT from_user_id, to_user_id, strength, active
		FROM relationships
		WHERE org_id = $1 AND active = true AND (from_user_id = $2 OR to_user_id = $2)`,
		orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("directory: list relationships: %w", err)
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		var rel Relationship
		if err := rows.Scan(&rel.FromUserID, &rel.ToUserID, &rel.Strength, &rel.Active); err != nil {
			return nil, fmt.Errorf("directory: scan relationship: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("directory: scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}
