package taskrun

import (
	"testing"

	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/hairizuanbinnoorazman/cua-agent/testutil"
	"gorm.io/gorm"
)

// setupTestStore creates a test database and task run store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &Run{})

	log := logger.NewTestLogger()
	store := NewGormStore(db, log)

	return db, store
}
