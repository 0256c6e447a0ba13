package testutil

import (
	"testing"

	"gorm.io/gorm"
)

// CreateFixtures inserts models directly, bypassing store validation.
func CreateFixtures(t *testing.T, db *gorm.DB, models ...interface{}) {
	t.Helper()
	for _, model := range models {
		if err := db.Create(model).Error; err != nil {
			t.Fatalf("failed to create fixture: %v", err)
		}
	}
}
