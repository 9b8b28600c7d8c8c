package questionnaire

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound indicates the requested questionnaire does not exist.
var ErrNotFound = errors.New("questionnaire: not found")

// Repository provides read access to questionnaires. Questionnaires are
// authored through the dashboard; this core only reads them.
type Repository interface {
	ListActive(ctx context.Context, orgID string) ([]Questionnaire, error)
	GetByID(ctx context.Context, id string) (*Questionnaire, error)
}

// InMemoryRepository holds questionnaires in memory. Used in tests and the
// local development stack.
type InMemoryRepository struct {
	mu             sync.RWMutex
	questionnaires map[string]Questionnaire
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{questionnaires: make(map[string]Questionnaire)}
}

// Put stores or replaces a questionnaire.
func (r *InMemoryRepository) Put(q Questionnaire) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questionnaires[q.ID] = q
}

// ListActive returns active questionnaires for an org, ordered by name for
// deterministic iteration.
func (r *InMemoryRepository) ListActive(ctx context.Context, orgID string) ([]Questionnaire, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Questionnaire
	for _, q := range r.questionnaires {
		if q.OrgID == orgID && q.Active {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetByID returns a questionnaire by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Questionnaire, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.questionnaires[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}
