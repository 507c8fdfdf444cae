package incidents

import (
	"context"
	"errors"
	"sync"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// ErrIncidentNotArchived is returned when an id is not in the archive.
var ErrIncidentNotArchived = errors.New("incident not archived")

// Archive keeps the audit trail of closed incidents.
type Archive interface {
	Store(ctx context.Context, inc models.SecurityIncident) error
	Get(ctx context.Context, id string) (models.SecurityIncident, error)
	// List returns the most recently resolved incidents first.
	List(ctx context.Context, limit int) ([]models.SecurityIncident, error)
	Close() error
}

// MemoryArchive keeps the last capacity closed incidents in process.
type MemoryArchive struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	byID     map[string]models.SecurityIncident
}

// NewMemoryArchive creates an archive bounded to capacity entries
// (1000 when capacity <= 0).
func NewMemoryArchive(capacity int) *MemoryArchive {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryArchive{
		capacity: capacity,
		byID:     make(map[string]models.SecurityIncident),
	}
}

func (a *MemoryArchive) Store(_ context.Context, inc models.SecurityIncident) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.byID[inc.ID]; !exists {
		a.order = append(a.order, inc.ID)
	}
	a.byID[inc.ID] = inc.Clone()

	for len(a.order) > a.capacity {
		delete(a.byID, a.order[0])
		a.order = a.order[1:]
	}
	return nil
}

func (a *MemoryArchive) Get(_ context.Context, id string) (models.SecurityIncident, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	inc, ok := a.byID[id]
	if !ok {
		return models.SecurityIncident{}, ErrIncidentNotArchived
	}
	return inc.Clone(), nil
}

func (a *MemoryArchive) List(_ context.Context, limit int) ([]models.SecurityIncident, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if limit <= 0 || limit > len(a.order) {
		limit = len(a.order)
	}
	out := make([]models.SecurityIncident, 0, limit)
	for i := len(a.order) - 1; i >= 0 && len(out) < limit; i-- {
		inc := a.byID[a.order[i]]
		out = append(out, inc.Clone())
	}
	return out, nil
}

func (a *MemoryArchive) Close() error { return nil }
