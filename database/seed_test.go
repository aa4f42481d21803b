package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"service-marketplace-server/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestLoadSeedCategories(t *testing.T) {
	categories, err := LoadSeedCategories()
	require.NoError(t, err)
	require.Len(t, categories, 10)

	names := map[string]bool{}
	for _, c := range categories {
		assert.NotEmpty(t, c.Description, c.Name)
		assert.False(t, names[c.Name], "duplicate seed %s", c.Name)
		names[c.Name] = true
	}
	assert.True(t, names["Plumbing"])
}

func TestSeedCategoriesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.ServiceCategory{Name: "Plumbing", Description: "custom"}).Error)

	created, err := SeedCategories(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 9, created)

	created, err = SeedCategories(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, created)

	var plumbing models.ServiceCategory
	require.NoError(t, db.Where("name = ?", "Plumbing").First(&plumbing).Error)
	assert.Equal(t, "custom", plumbing.Description)

	var total int64
	require.NoError(t, db.Model(&models.ServiceCategory{}).Count(&total).Error)
	assert.Equal(t, int64(10), total)
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasIndex(&models.ProviderRequest{}, "idx_provider_requests_one_pending"))

	user := models.User{Email: "migrate@example.com", Username: "migrate", PasswordHash: "x", Role: models.RoleCommon}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.ProviderRequest{UserID: user.ID, Status: models.ProviderRequestPending, Reason: "first"}).Error)
	assert.Error(t, db.Create(&models.ProviderRequest{UserID: user.ID, Status: models.ProviderRequestPending, Reason: "second"}).Error,
		"a second pending request must violate the partial unique index")
	assert.NoError(t, db.Create(&models.ProviderRequest{UserID: user.ID, Status: models.ProviderRequestRejected, Reason: "old"}).Error)
}
