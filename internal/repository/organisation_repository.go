package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/signalhouse/notify/internal/models"
)

// OrganisationRepository handles sub-tenant database operations.
// Organisation names are unique per system.
type OrganisationRepository interface {
	Create(ctx context.Context, organisation *models.Organisation) error
	GetByName(ctx context.Context, systemID uuid.UUID, name string) (*models.Organisation, error)
	List(ctx context.Context, systemID uuid.UUID) ([]models.Organisation, error)
}

type organisationRepository struct {
	db *gorm.DB
}

// NewOrganisationRepository creates a new organisation repository
func NewOrganisationRepository(db *gorm.DB) OrganisationRepository {
	return &organisationRepository{db: db}
}

func (r *organisationRepository) Create(ctx context.Context, organisation *models.Organisation) error {
	organisation.Name = strings.ToLower(strings.TrimSpace(organisation.Name))
	return r.db.WithContext(ctx).Create(organisation).Error
}

func (r *organisationRepository) GetByName(ctx context.Context, systemID uuid.UUID, name string) (*models.Organisation, error) {
	var organisation models.Organisation
	err := r.db.WithContext(ctx).
		Where("system_id = ? AND name = ?", systemID, name).
		First(&organisation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &organisation, nil
}

func (r *organisationRepository) List(ctx context.Context, systemID uuid.UUID) ([]models.Organisation, error) {
	var organisations []models.Organisation
	err := r.db.WithContext(ctx).
		Where("system_id = ?", systemID).
		Order("date_created DESC").
		Find(&organisations).Error
	if err != nil {
		return nil, err
	}
	return organisations, nil
}
