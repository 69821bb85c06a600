package dao

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
)

// PageSize is the number of ledger rows returned per page.
const PageSize = 20

type LedgerEntry struct {
	ID             uint      `gorm:"primaryKey"`
	ActorID        uint      `gorm:"index:idx_ledger_actor_created,priority:1"`
	Action         int8      `gorm:"not null"`
	ProductID      uint      `gorm:"not null;index"`
	Amount         float64   `gorm:"not null"`
	MoneyExchanged float64   `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;index:idx_ledger_created_at;index:idx_ledger_actor_created,priority:2"`
}

func (LedgerEntry) TableName() string {
	return "ledger"
}

// LedgerRow is a ledger entry addressed by external actor id and product
// alias rather than by internal ids.
type LedgerRow struct {
	ActorExternalID string
	Action          int8
	ProductAlias    string
	Amount          float64
	MoneyExchanged  float64
	CreatedAt       time.Time
}

type LedgerDAO struct {
	db  *gorm.DB
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewLedgerDAO(db *gorm.DB) *LedgerDAO {
	return &LedgerDAO{
		db:  db,
		now: time.Now,
	}
}

// WithClock replaces the time source used to stamp appended rows.
func (d *LedgerDAO) WithClock(now func() time.Time) *LedgerDAO {
	d.now = now
	return d
}

// stamp returns a timestamp that never goes backwards between calls.
func (d *LedgerDAO) stamp() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.now().UTC().Truncate(time.Microsecond)
	if t.Before(d.last) {
		t = d.last
	}
	d.last = t

	return t
}

// Append inserts rows in one transaction and returns how many were written.
// Actors are created on first use. Rows whose product no longer exists are
// skipped.
func (d *LedgerDAO) Append(ctx context.Context, rows []LedgerRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var written int
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actors := make(map[string]uint)
		products := make(map[string]uint)
		entries := make([]LedgerEntry, 0, len(rows))

		for _, row := range rows {
			actorID, ok := actors[row.ActorExternalID]
			if !ok {
				id, err := resolveActor(tx, row.ActorExternalID)
				if err != nil {
					return err
				}
				actorID = id
				actors[row.ActorExternalID] = id
			}

			productID, ok := products[row.ProductAlias]
			if !ok {
				id, err := productIDByAlias(tx, row.ProductAlias)
				if err != nil {
					return err
				}
				productID = id
				products[row.ProductAlias] = id
			}
			if productID == 0 {
				continue
			}

			entries = append(entries, LedgerEntry{
				ActorID:        actorID,
				Action:         row.Action,
				ProductID:      productID,
				Amount:         row.Amount,
				MoneyExchanged: row.MoneyExchanged,
				CreatedAt:      d.stamp(),
			})
		}

		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&entries, batchSize).Error; err != nil {
			return err
		}
		written = len(entries)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return written, nil
}

// productIDByAlias returns 0 when no product has the alias.
func productIDByAlias(tx *gorm.DB, alias string) (uint, error) {
	var product Product

	result := tx.Select("id").Where("alias = ?", alias).Take(&product)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}

		return 0, result.Error
	}

	return product.ID, nil
}

// FindByActor returns one page of the actor's ledger, newest first. Pages
// start at 0.
func (d *LedgerDAO) FindByActor(ctx context.Context, actorExternalID string, page int) ([]LedgerRow, error) {
	if page < 0 {
		page = 0
	}

	var rows []LedgerRow
	result := d.db.WithContext(ctx).
		Table("ledger").
		Select("actors.external_id AS actor_external_id, ledger.action, products.alias AS product_alias, " +
			"ledger.amount, ledger.money_exchanged, ledger.created_at").
		Joins("JOIN actors ON actors.id = ledger.actor_id").
		Joins("JOIN products ON products.id = ledger.product_id").
		Where("actors.external_id = ?", actorExternalID).
		Order("ledger.created_at DESC").
		Order("ledger.id DESC").
		Limit(PageSize).
		Offset(page * PageSize).
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	return rows, nil
}
