package directory

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = errors.New("directory: user not found")

// Repository provides read access to the org directory.
type Repository interface {
	ListOrgIDs(ctx context.Context) ([]string, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// ListActiveUsers returns active, onboarded users for an org.
	ListActiveUsers(ctx context.Context, orgID string) ([]User, error)
	// ListTeamMembers returns active users sharing a team. An empty teamID
	// means the whole org.
	ListTeamMembers(ctx context.Context, orgID, teamID string) ([]User, error)
	// ListRelationships returns active relationships touching userID.
	ListRelationships(ctx context.Context, orgID, userID string) ([]Relationship, error)
}

// InMemoryRepository is a map-backed Repository for tests and local development.
type InMemoryRepository struct {
	mu            sync.RWMutex
	users         map[string]User
	relationships []Relationship
}

// NewInMemoryRepository creates an empty in-memory directory.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{users: make(map[string]User)}
}

// PutUser stores or replaces a user.
func (r *InMemoryRepository) PutUser(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// PutRelationship appends a relationship edge.
func (r *InMemoryRepository) PutRelationship(rel Relationship) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relationships = append(r.relationships, rel)
}

func (r *InMemoryRepository) ListOrgIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var orgs []string
	for _, u := range r.users {
		if _, ok := seen[u.OrgID]; !ok {
			seen[u.OrgID] = struct{}{}
			orgs = append(orgs, u.OrgID)
		}
	}
	sort.Strings(orgs)
	return orgs, nil
}

func (r *InMemoryRepository) GetUser(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *InMemoryRepository) ListActiveUsers(ctx context.Context, orgID string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []User
	for _, u := range r.users {
		if u.OrgID == orgID && u.Active && u.Onboarded {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *InMemoryRepository) ListTeamMembers(ctx context.Context, orgID, teamID string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []User
	for _, u := range r.users {
		if u.OrgID != orgID || !u.Active {
			continue
		}
		if teamID != "" && u.TeamID != teamID {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *InMemoryRepository) ListRelationships(ctx context.Context, orgID, userID string) ([]Relationship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Relationship
	for _, rel := range r.relationships {
		if !rel.Active {
			continue
		}
		if rel.FromUserID == userID || rel.ToUserID == userID {
			out = append(out, rel)
		}
	}
	return out, nil
}
