package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/signalhouse/notify/internal/models"
)

// SystemRepository handles tenant database operations. System names are
// stored lowercase; lookups expect the caller to pass a normalized name.
type SystemRepository interface {
	Create(ctx context.Context, system *models.System) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.System, error)
	GetByName(ctx context.Context, name string) (*models.System, error)
	List(ctx context.Context) ([]models.System, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
}

type systemRepository struct {
	db *gorm.DB
}

// NewSystemRepository creates a new system repository
func NewSystemRepository(db *gorm.DB) SystemRepository {
	return &systemRepository{db: db}
}

func (r *systemRepository) Create(ctx context.Context, system *models.System) error {
	system.Name = strings.ToLower(strings.TrimSpace(system.Name))
	return r.db.WithContext(ctx).Create(system).Error
}

func (r *systemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.System, error) {
	var system models.System
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&system).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &system, nil
}

func (r *systemRepository) GetByName(ctx context.Context, name string) (*models.System, error) {
	var system models.System
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&system).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &system, nil
}

func (r *systemRepository) List(ctx context.Context) ([]models.System, error) {
	var systems []models.System
	if err := r.db.WithContext(ctx).Order("date_created DESC").Find(&systems).Error; err != nil {
		return nil, err
	}
	return systems, nil
}

func (r *systemRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["date_modified"] = time.Now()
	return r.db.WithContext(ctx).Model(&models.System{}).Where("id = ?", id).Updates(updates).Error
}
