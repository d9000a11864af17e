package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/signalhouse/notify/internal/models"
)

// ProviderRepository handles provider database operations.
type ProviderRepository interface {
	Create(ctx context.Context, provider *models.Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	GetByName(ctx context.Context, name string) (*models.Provider, error)
	// ListActiveByType returns the active providers for a delivery channel
	// in fan-out order: priority ascending with nulls last, newest first
	// within the same priority.
	ListActiveByType(ctx context.Context, notificationTypeID uuid.UUID) ([]models.Provider, error)
	List(ctx context.Context) ([]models.Provider, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
}

type providerRepository struct {
	db *gorm.DB
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *gorm.DB) ProviderRepository {
	return &providerRepository{db: db}
}

func (r *providerRepository) Create(ctx context.Context, provider *models.Provider) error {
	return r.db.WithContext(ctx).Create(provider).Error
}

func (r *providerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&provider).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

func (r *providerRepository) GetByName(ctx context.Context, name string) (*models.Provider, error) {
	var provider models.Provider
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&provider).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

func (r *providerRepository) ListActiveByType(ctx context.Context, notificationTypeID uuid.UUID) ([]models.Provider, error) {
	var providers []models.Provider
	err := r.db.WithContext(ctx).
		Where("notification_type_id = ? AND is_active = ?", notificationTypeID, true).
		Order("priority ASC NULLS LAST").
		Order("date_created DESC").
		Find(&providers).Error
	if err != nil {
		return nil, err
	}
	return providers, nil
}

func (r *providerRepository) List(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	if err := r.db.WithContext(ctx).Order("date_created DESC").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}

func (r *providerRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["date_modified"] = time.Now()
	return r.db.WithContext(ctx).Model(&models.Provider{}).Where("id = ?", id).Updates(updates).Error
}
