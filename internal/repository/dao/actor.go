package dao

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const mysqlDuplicateEntry = 1062

// Actor maps an external actor identity to a compact id used by the ledger.
type Actor struct {
	ID         uint   `gorm:"primaryKey"`
	ExternalID string `gorm:"size:36;not null;uniqueIndex:uni_actors_external_id"`
}

func (Actor) TableName() string {
	return "actors"
}

// resolveActor returns the id of externalID, creating the actor row when it
// does not exist yet. Must run inside a transaction: a concurrent insert of
// the same identity is rolled back to a savepoint and the winner's row read.
func resolveActor(tx *gorm.DB, externalID string) (uint, error) {
	var actor Actor

	result := tx.Where("external_id = ?", externalID).Take(&actor)
	if result.Error == nil {
		return actor.ID, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return 0, result.Error
	}

	if err := tx.SavePoint("resolve_actor").Error; err != nil {
		return 0, err
	}

	actor = Actor{ExternalID: externalID}
	if err := tx.Create(&actor).Error; err != nil {
		if !isUniqueViolation(err) {
			return 0, err
		}
		if err = tx.RollbackTo("resolve_actor").Error; err != nil {
			return 0, err
		}
		if err = tx.Where("external_id = ?", externalID).Take(&actor).Error; err != nil {
			return 0, err
		}
	}

	return actor.ID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
