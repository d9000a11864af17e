package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/signalhouse/notify/internal/models"
)

// NotificationTypeRepository reads the supported delivery channels.
type NotificationTypeRepository interface {
	GetByName(ctx context.Context, name string) (*models.NotificationType, error)
	List(ctx context.Context) ([]models.NotificationType, error)
}

type notificationTypeRepository struct {
	db *gorm.DB
}

// NewNotificationTypeRepository creates a new notification type repository
func NewNotificationTypeRepository(db *gorm.DB) NotificationTypeRepository {
	return &notificationTypeRepository{db: db}
}

func (r *notificationTypeRepository) GetByName(ctx context.Context, name string) (*models.NotificationType, error) {
	var notificationType models.NotificationType
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&notificationType).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &notificationType, nil
}

func (r *notificationTypeRepository) List(ctx context.Context) ([]models.NotificationType, error) {
	var types []models.NotificationType
	if err := r.db.WithContext(ctx).Order("date_created DESC").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}
