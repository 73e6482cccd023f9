package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"cardamage/internal/models"
)

// MemoryAssessmentRepository keeps assessments in-process. It backs tests and
// local runs without Postgres and follows the same ordering rules as the SQL
// repository.
type MemoryAssessmentRepository struct {
	mu    sync.RWMutex
	items map[string]models.Assessment
}

func NewMemoryAssessmentRepository() *MemoryAssessmentRepository {
	return &MemoryAssessmentRepository{items: make(map[string]models.Assessment)}
}

func (m *MemoryAssessmentRepository) Create(_ context.Context, a models.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[a.ID]; exists {
		return ErrDuplicateID
	}
	if a.Damages == nil {
		a.Damages = []models.Damage{}
	}
	m.items[a.ID] = a
	return nil
}

func (m *MemoryAssessmentRepository) GetByID(_ context.Context, id string) (models.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.items[id]
	if !ok {
		return models.Assessment{}, ErrAssessmentNotFound
	}
	return a, nil
}

func (m *MemoryAssessmentRepository) List(_ context.Context, limit, offset int) ([]models.Assessment, error) {
	sorted := m.sorted()
	if offset < 0 || offset >= len(sorted) {
		return []models.Assessment{}, nil
	}
	end := len(sorted)
	if limit < end-offset {
		end = offset + limit
	}
	return sorted[offset:end], nil
}

func (m *MemoryAssessmentRepository) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.items)), nil
}

func (m *MemoryAssessmentRepository) ListStale(_ context.Context, before time.Time, limit int) ([]models.Assessment, error) {
	sorted := m.sorted()
	res := make([]models.Assessment, 0)
	// oldest first
	for i := len(sorted) - 1; i >= 0 && len(res) < limit; i-- {
		a := sorted[i]
		if a.Status == models.AssessmentStatusProcessing && a.CreatedAt.Before(before) {
			res = append(res, a)
		}
	}
	return res, nil
}

func (m *MemoryAssessmentRepository) Ping(context.Context) error { return nil }

// sorted returns a snapshot ordered by created_at desc, id desc.
func (m *MemoryAssessmentRepository) sorted() []models.Assessment {
	m.mu.RLock()
	res := make([]models.Assessment, 0, len(m.items))
	for _, a := range m.items {
		res = append(res, a)
	}
	m.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID > res[j].ID
	})
	return res
}
