package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/signalhouse/notify/internal/models"
)

// TemplateRepository handles template database operations.
type TemplateRepository interface {
	Create(ctx context.Context, template *models.Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error)
	GetByName(ctx context.Context, name string) (*models.Template, error)
	List(ctx context.Context, filters TemplateFilters) ([]models.Template, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
}

// TemplateFilters for listing templates
type TemplateFilters struct {
	NotificationTypeID *uuid.UUID
	ActiveOnly         bool
}

type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) Create(ctx context.Context, template *models.Template) error {
	template.Name = strings.ToLower(strings.TrimSpace(template.Name))
	return r.db.WithContext(ctx).Create(template).Error
}

func (r *templateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	var template models.Template
	err := r.db.WithContext(ctx).
		Preload("NotificationType").
		Where("id = ?", id).
		First(&template).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &template, nil
}

func (r *templateRepository) GetByName(ctx context.Context, name string) (*models.Template, error) {
	var template models.Template
	err := r.db.WithContext(ctx).
		Preload("NotificationType").
		Where("name = ?", name).
		First(&template).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &template, nil
}

func (r *templateRepository) List(ctx context.Context, filters TemplateFilters) ([]models.Template, error) {
	query := r.db.WithContext(ctx)

	if filters.NotificationTypeID != nil {
		query = query.Where("notification_type_id = ?", *filters.NotificationTypeID)
	}
	if filters.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var templates []models.Template
	if err := query.Order("date_created DESC").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *templateRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["date_modified"] = time.Now()
	return r.db.WithContext(ctx).Model(&models.Template{}).Where("id = ?", id).Updates(updates).Error
}
