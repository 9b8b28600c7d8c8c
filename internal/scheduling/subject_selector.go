package scheduling

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// recentSubjectWindow is how many recent interactions to check when biasing
// away from repeat subjects.
const recentSubjectWindow = 5

// RecentSubjects reports who a user recently reviewed. *Store satisfies it.
type RecentSubjects interface {
	RecentSubjectIDs(ctx context.Context, orgID, userID string, limit int) ([]string, error)
}

// SubjectSelector ranks candidate review subjects by relationship strength,
// avoiding recent repeats. The random source is injected so the team
// fallback is deterministic under test.
type SubjectSelector struct {
	directory directory.Repository
	recents   RecentSubjects
	rng       *rand.Rand
	logger    *logging.Logger
}

// NewSubjectSelector creates a subject selector.
func NewSubjectSelector(dir directory.Repository, recents RecentSubjects, rng *rand.Rand, logger *logging.Logger) *SubjectSelector {
	if dir == nil {
		panic("scheduling: directory repository cannot be nil")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SubjectSelector{directory: dir, recents: recents, rng: rng, logger: logger}
}

// Select returns the subject for userID's next peer interaction, or "" when
// no candidate exists. When the user has relationships, a subject is always
// returned: recently reviewed subjects are avoided, but once every
// connection is a recent repeat the strongest one is reused rather than
// stalling the schedule.
func (s *SubjectSelector) Select(ctx context.Context, orgID, userID string) (string, error) {
	rels, err := s.directory.ListRelationships(ctx, orgID, userID)
	if err != nil {
		return "", fmt.Errorf("scheduling: list relationships: %w", err)
	}

	active := rels[:0:0]
	for _, r := range rels {
		if r.Active {
			active = append(active, r)
		}
	}

	if len(active) == 0 {
		return s.teamFallback(ctx, orgID, userID)
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Strength > active[j].Strength
	})

	recent := map[string]bool{}
	if s.recents != nil {
		ids, err := s.recents.RecentSubjectIDs(ctx, orgID, userID, recentSubjectWindow)
		if err != nil {
			s.logger.Warn("failed to load recent subjects, repeats possible",
				"error", err, "user_id", userID)
		}
		for _, id := range ids {
			recent[id] = true
		}
	}

	for _, r := range active {
		if other := r.Other(userID); !recent[other] {
			return other, nil
		}
	}

	// Everyone was reviewed recently. Repeat the strongest connection.
	return active[0].Other(userID), nil
}

// teamFallback picks a random active teammate, or any active org member when
// the user has no team.
func (s *SubjectSelector) teamFallback(ctx context.Context, orgID, userID string) (string, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("scheduling: load user for fallback: %w", err)
	}

	var pool []directory.User
	if user.TeamID != "" {
		pool, err = s.directory.ListTeamMembers(ctx, orgID, user.TeamID)
	} else {
		pool, err = s.directory.ListActiveUsers(ctx, orgID)
	}
	if err != nil {
		return "", fmt.Errorf("scheduling: list fallback candidates: %w", err)
	}

	candidates := pool[:0:0]
	for _, u := range pool {
		if u.Active && u.ID != userID {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	return candidates[s.rng.Intn(len(candidates))].ID, nil
}
