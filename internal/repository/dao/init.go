package dao

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vietanh2810/sdeconomy/internal/domain"
)

// InitTables brings the schema to the latest version. Any step failure is
// returned and the caller must not start serving.
func InitTables(ctx context.Context, db *gorm.DB, decay domain.DecayPolicy, logger *zap.Logger) error {
	m, err := NewMigrator(db, decay, logger)
	if err != nil {
		return err
	}

	return m.Run(ctx)
}

// dropAllTables removes every table of the economy schema, children first.
func dropAllTables(db *gorm.DB) error {
	return db.Migrator().DropTable("ledger", "actors", "products", "schema_version")
}
