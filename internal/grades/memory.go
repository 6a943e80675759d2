package grades

import (
	"context"
	"sort"
	"sync"
	"time"

	"gradebook.dev/internal/auth"
)

var _ Store = (*InMemory)(nil)

// InMemory keeps grades in process.
type InMemory struct {
	mu     sync.RWMutex
	nextID int64
	grades map[int64]Grade
}

func NewInMemory() *InMemory {
	return &InMemory{grades: make(map[int64]Grade)}
}

func (m *InMemory) Create(ctx context.Context, g *Grade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now().UTC()
	g.ID = m.nextID
	g.CreatedAt = now
	g.UpdatedAt = now
	m.grades[g.ID] = *g
	return nil
}

func (m *InMemory) Get(ctx context.Context, id int64) (Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grades[id]
	if !ok {
		return Grade{}, auth.ErrNotFound
	}
	return g, nil
}

func (m *InMemory) Update(ctx context.Context, g *Grade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grades[g.ID]; !ok {
		return auth.ErrNotFound
	}
	g.UpdatedAt = time.Now().UTC()
	m.grades[g.ID] = *g
	return nil
}

func (m *InMemory) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grades[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.grades, id)
	return nil
}

func (m *InMemory) ListByStudent(ctx context.Context, studentID int64) ([]Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Grade, 0)
	for _, g := range m.grades {
		if g.StudentID == studentID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
