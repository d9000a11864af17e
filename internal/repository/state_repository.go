package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/signalhouse/notify/internal/models"
)

// StateRepository reads lifecycle states. States are seeded at startup and
// never edited afterwards, so name lookups are cached per process.
type StateRepository interface {
	GetByName(ctx context.Context, name string) (*models.State, error)
	List(ctx context.Context) ([]models.State, error)
}

type stateRepository struct {
	db *gorm.DB

	mu    sync.RWMutex
	cache map[string]*models.State
}

// NewStateRepository creates a new state repository
func NewStateRepository(db *gorm.DB) StateRepository {
	return &stateRepository{db: db, cache: make(map[string]*models.State)}
}

func (r *stateRepository) GetByName(ctx context.Context, name string) (*models.State, error) {
	r.mu.RLock()
	if state, ok := r.cache[name]; ok {
		r.mu.RUnlock()
		return state, nil
	}
	r.mu.RUnlock()

	var state models.State
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&state).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	r.mu.Lock()
	r.cache[name] = &state
	r.mu.Unlock()

	return &state, nil
}

func (r *stateRepository) List(ctx context.Context) ([]models.State, error) {
	var states []models.State
	if err := r.db.WithContext(ctx).Order("date_created DESC").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}
