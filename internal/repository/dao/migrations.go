package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/migrate"
)

const schemaVersionKey = "sql_version"

// ErrAliasCollision stops the alias normalization step when two legacy rows
// differ only by case. One of them has to be renamed or removed by hand.
var ErrAliasCollision = errors.New("legacy product aliases collide")

// SchemaVersion holds the schema version marker under schemaVersionKey.
type SchemaVersion struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value int    `gorm:"not null"`
}

func (SchemaVersion) TableName() string {
	return "schema_version"
}

// Historical table shapes. Each one carries only what its migration step
// needs to create or inspect.

type ledgerV1 struct {
	ID        uint          `gorm:"primaryKey"`
	ActorUUID string        `gorm:"column:actor_uuid;size:36;not null"`
	Action    int8          `gorm:"not null"`
	ProductID uint          `gorm:"not null;index"`
	Product   LegacyProduct `gorm:"constraint:OnDelete:CASCADE"`
	Amount    float64       `gorm:"not null"`
	CreatedAt time.Time     `gorm:"not null"`
}

func (ledgerV1) TableName() string { return "ledger" }

type ledgerV2 struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"not null;index:idx_ledger_created_at"`
}

func (ledgerV2) TableName() string { return "ledger" }

type productV3 struct {
	ID            uint    `gorm:"primaryKey"`
	ModFactor     float64 `gorm:"not null;default:0"`
	BasePrice     float64 `gorm:"not null;default:0"`
	DecayAmount   int64   `gorm:"not null;default:0"`
	DecayInterval int64   `gorm:"not null;default:0"`
	DecayType     int8    `gorm:"not null;default:0"`
}

func (productV3) TableName() string { return "products" }

type ledgerV4 struct {
	ID             uint    `gorm:"primaryKey"`
	MoneyExchanged float64 `gorm:"not null;default:0"`
}

func (ledgerV4) TableName() string { return "ledger" }

type migrationBackend struct {
	db *gorm.DB
}

func (b migrationBackend) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.db.WithContext(ctx).Transaction(fn)
}

func (b migrationBackend) Version(_ context.Context, tx *gorm.DB) (int, error) {
	if !tx.Migrator().HasTable(&SchemaVersion{}) {
		return migrate.NoVersion, nil
	}

	var marker SchemaVersion
	result := tx.Where(&SchemaVersion{Key: schemaVersionKey}).Take(&marker)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return migrate.NoVersion, nil
		}

		return 0, result.Error
	}

	return marker.Value, nil
}

func (b migrationBackend) SetVersion(_ context.Context, tx *gorm.DB, version int) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&SchemaVersion{Key: schemaVersionKey, Value: version}).Error
}

// NewMigrator returns the migrator for the economy schema. decay fills the
// decay columns of rows that predate them.
func NewMigrator(db *gorm.DB, decay domain.DecayPolicy, logger *zap.Logger) (*migrate.Migrator[*gorm.DB], error) {
	return migrate.New[*gorm.DB](migrationBackend{db: db}, Steps(decay), migrate.WithLogger[*gorm.DB](logger))
}

// Steps is the ordered schema history.
func Steps(decay domain.DecayPolicy) []migrate.Step[*gorm.DB] {
	return []migrate.Step[*gorm.DB]{
		{
			From:        migrate.NoVersion,
			To:          0,
			Description: "create schema_version",
			IsApplied: func(_ context.Context, tx *gorm.DB) (bool, error) {
				return tx.Migrator().HasTable(&SchemaVersion{}), nil
			},
			Apply: func(_ context.Context, tx *gorm.DB) error {
				return tx.Migrator().CreateTable(&SchemaVersion{})
			},
		},
		{
			From:        0,
			To:          1,
			Description: "create products and ledger",
			IsApplied: func(_ context.Context, tx *gorm.DB) (bool, error) {
				m := tx.Migrator()
				return m.HasTable(&LegacyProduct{}) && m.HasTable(&ledgerV1{}), nil
			},
			Apply: func(_ context.Context, tx *gorm.DB) error {
				m := tx.Migrator()
				if !m.HasTable(&LegacyProduct{}) {
					if err := m.CreateTable(&LegacyProduct{}); err != nil {
						return fmt.Errorf("create products -> %w", err)
					}
				}
				if !m.HasTable(&ledgerV1{}) {
					if err := m.CreateTable(&ledgerV1{}); err != nil {
						return fmt.Errorf("create ledger -> %w", err)
					}
				}
				return nil
			},
		},
		{
			From:        1,
			To:          2,
			Description: "normalize aliases, index ledger by time",
			IsApplied: func(_ context.Context, tx *gorm.DB) (bool, error) {
				return tx.Migrator().HasIndex(&ledgerV2{}, "idx_ledger_created_at"), nil
			},
			Apply: func(_ context.Context, tx *gorm.DB) error {
				if err := normalizeAliases(tx); err != nil {
					return fmt.Errorf("normalizeAliases -> %w", err)
				}
				return tx.Migrator().CreateIndex(&ledgerV2{}, "idx_ledger_created_at")
			},
		},
		{
			From:        2,
			To:          3,
			Description: "split price into mod factor and base price, add decay policy",
			IsApplied: func(_ context.Context, tx *gorm.DB) (bool, error) {
				return tx.Migrator().HasColumn(&productV3{}, "decay_type"), nil
			},
			Apply: func(_ context.Context, tx *gorm.DB) error {
				return upgradeProductsV3(tx, decay)
			},
		},
		{
			From:        3,
			To:          4,
			Description: "move ledger actors into the actors table, record money exchanged",
			IsApplied: func(_ context.Context, tx *gorm.DB) (bool, error) {
				m := tx.Migrator()
				return m.HasTable(&Actor{}) && m.HasColumn(&LedgerEntry{}, "actor_id"), nil
			},
			Apply: func(_ context.Context, tx *gorm.DB) error {
				return upgradeLedgerV4(tx)
			},
		},
		{
			From:        4,
			To:          5,
			Description: "index ledger by actor and time",
			IsApplied: func(_ context.Context, tx *gorm.DB) (bool, error) {
				return tx.Migrator().HasIndex(&LedgerEntry{}, "idx_ledger_actor_created"), nil
			},
			Apply: func(_ context.Context, tx *gorm.DB) error {
				return tx.Migrator().CreateIndex(&LedgerEntry{}, "idx_ledger_actor_created")
			},
		},
	}
}

func normalizeAliases(tx *gorm.DB) error {
	var rows []LegacyProduct
	if err := tx.Select("id", "alias").Order("id").Find(&rows).Error; err != nil {
		return err
	}

	claimed := make(map[string]LegacyProduct, len(rows))
	for _, row := range rows {
		alias := domain.NormalizeAlias(row.Alias)
		if prev, ok := claimed[alias]; ok {
			return fmt.Errorf("%w: %q (id %d) and %q (id %d) both normalize to %q",
				ErrAliasCollision, prev.Alias, prev.ID, row.Alias, row.ID, alias)
		}
		claimed[alias] = row
	}

	for _, row := range rows {
		alias := domain.NormalizeAlias(row.Alias)
		if alias == row.Alias {
			continue
		}
		if err := tx.Model(&LegacyProduct{}).Where("id = ?", row.ID).Update("alias", alias).Error; err != nil {
			return fmt.Errorf("alias %q -> %w", row.Alias, err)
		}
	}

	return nil
}

// upgradeProductsV3 guards every sub-step so a partially applied upgrade
// (MySQL commits DDL implicitly) can be resumed.
func upgradeProductsV3(tx *gorm.DB, decay domain.DecayPolicy) error {
	m := tx.Migrator()

	var legacy []LegacyProduct
	if m.HasColumn(&LegacyProduct{}, "price") {
		if err := tx.Find(&legacy).Error; err != nil {
			return fmt.Errorf("read legacy products -> %w", err)
		}
		if err := m.RenameColumn(&productV3{}, "price", "base_price"); err != nil {
			return fmt.Errorf("rename price -> %w", err)
		}
	}

	for _, field := range []string{"ModFactor", "DecayAmount", "DecayInterval", "DecayType"} {
		if m.HasColumn(&productV3{}, field) {
			continue
		}
		if err := m.AddColumn(&productV3{}, field); err != nil {
			return fmt.Errorf("add column %s -> %w", field, err)
		}
	}

	for _, old := range legacy {
		cur := MapLegacyProduct(old, decay)
		err := tx.Model(&Product{}).Where("id = ?", old.ID).Updates(map[string]any{
			"mod_factor":     cur.ModFactor,
			"base_price":     cur.BasePrice,
			"supply":         cur.Supply,
			"demand":         cur.Demand,
			"decay_amount":   cur.DecayAmount,
			"decay_interval": cur.DecayInterval,
			"decay_type":     cur.DecayType,
		}).Error
		if err != nil {
			return fmt.Errorf("backfill product %d -> %w", old.ID, err)
		}
	}

	return nil
}

func upgradeLedgerV4(tx *gorm.DB) error {
	m := tx.Migrator()

	if !m.HasTable(&Actor{}) {
		if err := m.CreateTable(&Actor{}); err != nil {
			return fmt.Errorf("create actors -> %w", err)
		}
	}

	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Actor{ExternalID: domain.SystemActorID}).Error
	if err != nil {
		return fmt.Errorf("insert system actor -> %w", err)
	}

	hasUUID := m.HasColumn("ledger", "actor_uuid")
	if hasUUID {
		var ids []string
		if err = tx.Table("ledger").Distinct("actor_uuid").Pluck("actor_uuid", &ids).Error; err != nil {
			return fmt.Errorf("read ledger actors -> %w", err)
		}
		for _, id := range ids {
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Actor{ExternalID: id}).Error
			if err != nil {
				return fmt.Errorf("insert actor %s -> %w", id, err)
			}
		}
	}

	if !m.HasColumn(&LedgerEntry{}, "actor_id") {
		if err = tx.Exec(addActorColumnSQL(tx.Dialector.Name())).Error; err != nil {
			return fmt.Errorf("add ledger.actor_id -> %w", err)
		}
	}

	if !m.HasColumn(&ledgerV4{}, "money_exchanged") {
		if err = m.AddColumn(&ledgerV4{}, "MoneyExchanged"); err != nil {
			return fmt.Errorf("add ledger.money_exchanged -> %w", err)
		}
	}

	if hasUUID {
		err = tx.Exec("UPDATE ledger SET actor_id = " +
			"(SELECT actors.id FROM actors WHERE actors.external_id = ledger.actor_uuid) " +
			"WHERE actor_id IS NULL").Error
		if err != nil {
			return fmt.Errorf("backfill ledger.actor_id -> %w", err)
		}
		err = tx.Exec("ALTER TABLE ? DROP COLUMN ?", clause.Table{Name: "ledger"}, clause.Column{Name: "actor_uuid"}).Error
		if err != nil {
			return fmt.Errorf("drop ledger.actor_uuid -> %w", err)
		}
	}

	return nil
}

// addActorColumnSQL is the one piece of DDL gorm's migrator cannot express:
// adding a foreign key column to an existing table.
func addActorColumnSQL(dialect string) string {
	switch dialect {
	case "mysql":
		return "ALTER TABLE ledger ADD COLUMN actor_id BIGINT UNSIGNED NULL, " +
			"ADD CONSTRAINT fk_ledger_actor FOREIGN KEY (actor_id) REFERENCES actors(id)"
	case "postgres":
		return "ALTER TABLE ledger ADD COLUMN actor_id BIGINT CONSTRAINT fk_ledger_actor REFERENCES actors(id)"
	default:
		return "ALTER TABLE ledger ADD COLUMN actor_id INTEGER CONSTRAINT fk_ledger_actor REFERENCES actors(id)"
	}
}
