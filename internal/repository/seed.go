package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/signalhouse/notify/internal/models"
)

// Seed inserts the reserved lifecycle states and notification types.
// Idempotent, so it runs on every server startup after migration.
func Seed(db *gorm.DB) error {
	states := []models.State{
		{Name: models.StatePending, Description: "Queued and awaiting dispatch"},
		{Name: models.StateSent, Description: "Delivered by a provider"},
		{Name: models.StateFailed, Description: "No provider could deliver"},
		{Name: models.StateConfirmationPending, Description: "Accepted by a provider, awaiting delivery report"},
	}
	for i := range states {
		if err := db.Where("name = ?", states[i].Name).FirstOrCreate(&states[i]).Error; err != nil {
			return fmt.Errorf("seed state %s: %w", states[i].Name, err)
		}
	}

	types := []models.NotificationType{
		{Name: models.TypeEmail, Description: "Email notifications"},
		{Name: models.TypeSMS, Description: "SMS notifications"},
		{Name: models.TypePush, Description: "Push notifications"},
	}
	for i := range types {
		if err := db.Where("name = ?", types[i].Name).FirstOrCreate(&types[i]).Error; err != nil {
			return fmt.Errorf("seed notification type %s: %w", types[i].Name, err)
		}
	}

	return nil
}
