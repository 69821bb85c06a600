package repository

import (
	"context"
	"fmt"

	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/repository/dao"
)

const PageSize = dao.PageSize

type LedgerDAO interface {
	Append(ctx context.Context, rows []dao.LedgerRow) (int, error)
	FindByActor(ctx context.Context, actorExternalID string, page int) ([]dao.LedgerRow, error)
}

type LedgerRepository struct {
	dao LedgerDAO
}

func NewLedgerRepository(dao LedgerDAO) *LedgerRepository {
	return &LedgerRepository{
		dao: dao,
	}
}

func (r *LedgerRepository) domainToDao(e domain.LedgerEntry) dao.LedgerRow {
	return dao.LedgerRow{
		ActorExternalID: e.ActorID,
		Action:          int8(e.Action),
		ProductAlias:    domain.NormalizeAlias(e.ProductAlias),
		Amount:          e.Amount,
		MoneyExchanged:  e.MoneyExchanged,
	}
}

func (r *LedgerRepository) daoToDomain(row dao.LedgerRow) domain.LedgerEntry {
	return domain.LedgerEntry{
		ActorID:        row.ActorExternalID,
		Action:         domain.Action(row.Action),
		ProductAlias:   row.ProductAlias,
		Amount:         row.Amount,
		MoneyExchanged: row.MoneyExchanged,
		Timestamp:      row.CreatedAt.UTC(),
	}
}

// Append records one entry. It fails with ErrProductNotFound when the
// product has no durable row.
func (r *LedgerRepository) Append(ctx context.Context, entry domain.LedgerEntry) error {
	n, err := r.dao.Append(ctx, []dao.LedgerRow{r.domainToDao(entry)})
	if err != nil {
		return fmt.Errorf("r.dao.Append -> %w", err)
	}
	if n == 0 {
		return ErrProductNotFound
	}

	return nil
}

// AppendBatch records entries in one transaction and returns how many were
// written; entries for products without a durable row are dropped.
func (r *LedgerRepository) AppendBatch(ctx context.Context, entries []domain.LedgerEntry) (int, error) {
	rows := make([]dao.LedgerRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, r.domainToDao(e))
	}

	n, err := r.dao.Append(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("r.dao.Append -> %w", err)
	}

	return n, nil
}

// Query returns up to PageSize entries of the actor, newest first. page is
// zero-based.
func (r *LedgerRepository) Query(ctx context.Context, actorID string, page int) ([]domain.LedgerEntry, error) {
	rows, err := r.dao.FindByActor(ctx, actorID, page)
	if err != nil {
		return nil, fmt.Errorf("r.dao.FindByActor -> %w", err)
	}

	entries := make([]domain.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, r.daoToDomain(row))
	}

	return entries, nil
}
