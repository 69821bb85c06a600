package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vietanh2810/sdeconomy/internal/domain"
)

const batchSize = 200

var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID            uint    `gorm:"primaryKey"`
	Alias         string  `gorm:"size:191;not null;uniqueIndex:uni_products_alias"`
	ItemType      string  `gorm:"size:191;not null"`
	VariantTag    int8    `gorm:"not null"`
	ModFactor     float64 `gorm:"not null"`
	BasePrice     float64 `gorm:"not null"`
	Supply        int64   `gorm:"not null"`
	Demand        int64   `gorm:"not null"`
	DecayAmount   int64   `gorm:"not null"`
	DecayInterval int64   `gorm:"not null"` // milliseconds
	DecayType     int8    `gorm:"not null"`
}

func (Product) TableName() string {
	return "products"
}

// LegacyProduct is the products row shape before schema version 3, when a
// single price factor drove the quote as price * demand / supply.
type LegacyProduct struct {
	ID         uint    `gorm:"primaryKey"`
	Alias      string  `gorm:"size:191;not null;uniqueIndex:uni_products_alias"`
	ItemType   string  `gorm:"size:191;not null"`
	VariantTag int8    `gorm:"not null;default:0"`
	Price      float64 `gorm:"not null"`
	Supply     int64   `gorm:"not null"`
	Demand     int64   `gorm:"not null"`
}

func (LegacyProduct) TableName() string {
	return "products"
}

// MapLegacyProduct converts a legacy row to the current shape. The legacy
// factor becomes the mod factor over a zero base price, so every quote the
// row produced before still comes out the same.
func MapLegacyProduct(old LegacyProduct, decay domain.DecayPolicy) Product {
	supply, demand := old.Supply, old.Demand
	if supply < 1 {
		supply = 1
	}
	if demand < 1 {
		demand = 1
	}

	return Product{
		ID:            old.ID,
		Alias:         domain.NormalizeAlias(old.Alias),
		ItemType:      old.ItemType,
		VariantTag:    old.VariantTag,
		ModFactor:     old.Price,
		BasePrice:     0,
		Supply:        supply,
		Demand:        demand,
		DecayAmount:   decay.Amount,
		DecayInterval: decay.Interval.Milliseconds(),
		DecayType:     int8(decay.Type),
	}
}

var productUpsertColumns = []string{
	"item_type", "variant_tag", "mod_factor", "base_price", "supply", "demand",
	"decay_amount", "decay_interval", "decay_type",
}

type ProductDAO struct {
	db *gorm.DB
}

func NewProductDAO(db *gorm.DB) *ProductDAO {
	return &ProductDAO{
		db: db,
	}
}

func (d *ProductDAO) FindAll(ctx context.Context) ([]Product, error) {
	var products []Product

	result := d.db.WithContext(ctx).Order("alias").Find(&products)
	if result.Error != nil {
		return nil, result.Error
	}

	return products, nil
}

func (d *ProductDAO) FindByAlias(ctx context.Context, alias string) (Product, error) {
	var product Product

	result := d.db.WithContext(ctx).Where("alias = ?", alias).Take(&product)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return Product{}, ErrProductNotFound
		}

		return Product{}, result.Error
	}

	return product, nil
}

// UpsertAll writes every product in one transaction, inserting new aliases
// and overwriting the fields of existing ones.
func (d *ProductDAO) UpsertAll(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertProducts(tx, products).Error
	})
}

func (d *ProductDAO) Upsert(ctx context.Context, product Product) error {
	return upsertProducts(d.db.WithContext(ctx), []Product{product}).Error
}

// upsertProducts keys rows by alias; ids are left to the database.
func upsertProducts(tx *gorm.DB, products []Product) *gorm.DB {
	rows := make([]Product, len(products))
	copy(rows, products)
	for i := range rows {
		rows[i].ID = 0
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "alias"}},
		DoUpdates: clause.AssignmentColumns(productUpsertColumns),
	}).CreateInBatches(&rows, batchSize)
}

// DeleteByAlias removes the product and, through the foreign key, every
// ledger row that references it.
func (d *ProductDAO) DeleteByAlias(ctx context.Context, alias string) error {
	result := d.db.WithContext(ctx).Where("alias = ?", alias).Delete(&Product{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}
