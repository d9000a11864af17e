package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/signalhouse/notify/internal/models"
)

// NotificationRepository handles ledger database operations.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	// GetByUniqueIdentifier returns the newest notification carrying the
	// caller-supplied correlation key.
	GetByUniqueIdentifier(ctx context.Context, uniqueIdentifier string) (*models.Notification, error)
	List(ctx context.Context, filters NotificationFilters) ([]models.Notification, int64, error)
	// UpdateStatus moves a notification to a new lifecycle state,
	// optionally recording the winning provider and the send timestamp.
	UpdateStatus(ctx context.Context, id uuid.UUID, statusID uuid.UUID, providerID *uuid.UUID, sentTime *time.Time) error
}

// NotificationFilters for listing ledger rows
type NotificationFilters struct {
	SystemID           *uuid.UUID
	NotificationTypeID *uuid.UUID
	StatusID           *uuid.UUID
	UniqueIdentifier   string
	FromDate           *time.Time
	ToDate             *time.Time
	Limit              int
	Offset             int
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("System").
		Preload("Organisation").
		Preload("NotificationType").
		Preload("Template").
		Preload("Provider").
		Preload("Status")
}

func (r *notificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var notification models.Notification
	err := r.preloaded(ctx).Where("id = ?", id).First(&notification).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &notification, nil
}

func (r *notificationRepository) GetByUniqueIdentifier(ctx context.Context, uniqueIdentifier string) (*models.Notification, error) {
	if uniqueIdentifier == "" {
		return nil, nil
	}
	var notification models.Notification
	err := r.preloaded(ctx).
		Where("unique_identifier = ?", uniqueIdentifier).
		Order("date_created DESC").
		First(&notification).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &notification, nil
}

func (r *notificationRepository) List(ctx context.Context, filters NotificationFilters) ([]models.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{})

	if filters.SystemID != nil {
		query = query.Where("system_id = ?", *filters.SystemID)
	}
	if filters.NotificationTypeID != nil {
		query = query.Where("notification_type_id = ?", *filters.NotificationTypeID)
	}
	if filters.StatusID != nil {
		query = query.Where("status_id = ?", *filters.StatusID)
	}
	if filters.UniqueIdentifier != "" {
		query = query.Where("unique_identifier = ?", filters.UniqueIdentifier)
	}
	if filters.FromDate != nil {
		query = query.Where("date_created >= ?", filters.FromDate)
	}
	if filters.ToDate != nil {
		query = query.Where("date_created <= ?", filters.ToDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit <= 0 {
		filters.Limit = 50
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}

	var notifications []models.Notification
	err := query.Order("date_created DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&notifications).Error

	return notifications, total, err
}

func (r *notificationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, statusID uuid.UUID, providerID *uuid.UUID, sentTime *time.Time) error {
	updates := map[string]interface{}{
		"status_id":     statusID,
		"date_modified": time.Now(),
	}
	if providerID != nil {
		updates["provider_id"] = *providerID
	}
	if sentTime != nil {
		updates["sent_time"] = *sentTime
	}

	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Updates(updates).Error
}
