package dao

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/vietanh2810/sdeconomy/internal/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "economy.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func migratedDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := openTestDB(t)
	m, err := NewMigrator(db, domain.DefaultDecayPolicy(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	return db
}

func seedProduct(t *testing.T, db *gorm.DB, alias string) Product {
	t.Helper()

	p := Product{
		Alias:         alias,
		ItemType:      "STONE",
		ModFactor:     0.1,
		BasePrice:     1,
		Supply:        1,
		Demand:        1,
		DecayAmount:   64,
		DecayInterval: 43200000,
	}
	require.NoError(t, NewProductDAO(db).Upsert(context.Background(), p))

	stored, err := NewProductDAO(db).FindByAlias(context.Background(), alias)
	require.NoError(t, err)

	return stored
}
