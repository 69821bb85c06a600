package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/repository/dao"
)

var (
	ErrProductNotFound = dao.ErrProductNotFound
)

type ProductDAO interface {
	FindAll(ctx context.Context) ([]dao.Product, error)
	FindByAlias(ctx context.Context, alias string) (dao.Product, error)
	UpsertAll(ctx context.Context, products []dao.Product) error
	Upsert(ctx context.Context, product dao.Product) error
	DeleteByAlias(ctx context.Context, alias string) error
}

type ProductRepository struct {
	dao ProductDAO
}

func NewProductRepository(dao ProductDAO) *ProductRepository {
	return &ProductRepository{
		dao: dao,
	}
}

func (r *ProductRepository) domainToDao(s domain.ProductState) dao.Product {
	return dao.Product{
		Alias:         s.Alias,
		ItemType:      s.ItemType,
		VariantTag:    s.VariantTag,
		ModFactor:     s.ModFactor,
		BasePrice:     s.BasePrice,
		Supply:        s.Supply,
		Demand:        s.Demand,
		DecayAmount:   s.DecayAmount,
		DecayInterval: s.DecayInterval.Milliseconds(),
		DecayType:     int8(s.DecayType),
	}
}

func (r *ProductRepository) daoToDomain(p dao.Product) domain.ProductState {
	return domain.ProductState{
		Alias:         p.Alias,
		ItemType:      p.ItemType,
		VariantTag:    p.VariantTag,
		ModFactor:     p.ModFactor,
		BasePrice:     p.BasePrice,
		Supply:        p.Supply,
		Demand:        p.Demand,
		DecayAmount:   p.DecayAmount,
		DecayInterval: time.Duration(p.DecayInterval) * time.Millisecond,
		DecayType:     domain.DecayType(p.DecayType),
	}
}

func (r *ProductRepository) LoadAll(ctx context.Context) ([]domain.ProductState, error) {
	products, err := r.dao.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("r.dao.FindAll -> %w", err)
	}

	states := make([]domain.ProductState, 0, len(products))
	for _, p := range products {
		states = append(states, r.daoToDomain(p))
	}

	return states, nil
}

func (r *ProductRepository) Find(ctx context.Context, alias string) (domain.ProductState, error) {
	product, err := r.dao.FindByAlias(ctx, domain.NormalizeAlias(alias))
	if err != nil {
		return domain.ProductState{}, fmt.Errorf("r.dao.FindByAlias -> %w", err)
	}

	return r.daoToDomain(product), nil
}

// SaveAll upserts every state in a single transaction.
func (r *ProductRepository) SaveAll(ctx context.Context, states []domain.ProductState) error {
	products := make([]dao.Product, 0, len(states))
	for _, s := range states {
		products = append(products, r.domainToDao(s))
	}

	if err := r.dao.UpsertAll(ctx, products); err != nil {
		return fmt.Errorf("r.dao.UpsertAll -> %w", err)
	}

	return nil
}

func (r *ProductRepository) SaveOne(ctx context.Context, state domain.ProductState) error {
	if err := r.dao.Upsert(ctx, r.domainToDao(state)); err != nil {
		return fmt.Errorf("r.dao.Upsert -> %w", err)
	}

	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, alias string) error {
	if err := r.dao.DeleteByAlias(ctx, domain.NormalizeAlias(alias)); err != nil {
		return fmt.Errorf("r.dao.DeleteByAlias -> %w", err)
	}

	return nil
}
