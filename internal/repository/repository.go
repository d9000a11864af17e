package repository

import (
	"gorm.io/gorm"
)

// Store bundles the per-entity repositories so wiring stays in one place.
// The fields are interfaces; tests swap in in-memory implementations.
type Store struct {
	States        StateRepository
	Types         NotificationTypeRepository
	Systems       SystemRepository
	Organisations OrganisationRepository
	Templates     TemplateRepository
	Providers     ProviderRepository
	Notifications NotificationRepository
}

// NewStore creates a Store backed by the given database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		States:        NewStateRepository(db),
		Types:         NewNotificationTypeRepository(db),
		Systems:       NewSystemRepository(db),
		Organisations: NewOrganisationRepository(db),
		Templates:     NewTemplateRepository(db),
		Providers:     NewProviderRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}
