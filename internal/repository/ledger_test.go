package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/repository/dao"
)

type fakeLedgerDAO struct {
	known    map[string]bool
	appended []dao.LedgerRow
	rows     []dao.LedgerRow
	pages    []int
}

func (f *fakeLedgerDAO) Append(_ context.Context, rows []dao.LedgerRow) (int, error) {
	n := 0
	for _, r := range rows {
		if !f.known[r.ProductAlias] {
			continue
		}
		f.appended = append(f.appended, r)
		n++
	}
	return n, nil
}

func (f *fakeLedgerDAO) FindByActor(_ context.Context, _ string, page int) ([]dao.LedgerRow, error) {
	f.pages = append(f.pages, page)
	return f.rows, nil
}

func TestLedgerRepository_Append(t *testing.T) {
	d := &fakeLedgerDAO{known: map[string]bool{"stone": true}}
	r := NewLedgerRepository(d)
	actor := "9b2f8a5e-4e0b-4c1a-9d55-8e1f2b3c4d5e"

	err := r.Append(context.Background(), domain.LedgerEntry{
		ActorID:        actor,
		Action:         domain.ActionBuy,
		ProductAlias:   "Stone",
		Amount:         2,
		MoneyExchanged: 3.5,
	})
	require.NoError(t, err)
	require.Len(t, d.appended, 1)
	assert.Equal(t, dao.LedgerRow{
		ActorExternalID: actor,
		Action:          int8(domain.ActionBuy),
		ProductAlias:    "stone",
		Amount:          2,
		MoneyExchanged:  3.5,
	}, d.appended[0])

	err = r.Append(context.Background(), domain.LedgerEntry{ActorID: actor, ProductAlias: "iron"})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestLedgerRepository_AppendBatchCountsWritten(t *testing.T) {
	d := &fakeLedgerDAO{known: map[string]bool{"stone": true, "iron": true}}

	n, err := NewLedgerRepository(d).AppendBatch(context.Background(), []domain.LedgerEntry{
		{ActorID: domain.SystemActorID, Action: domain.ActionDecay, ProductAlias: "stone", Amount: 3},
		{ActorID: domain.SystemActorID, Action: domain.ActionDecay, ProductAlias: "gone", Amount: 3},
		{ActorID: domain.SystemActorID, Action: domain.ActionDecay, ProductAlias: "iron", Amount: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLedgerRepository_QueryMapsRows(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	d := &fakeLedgerDAO{rows: []dao.LedgerRow{{
		ActorExternalID: "a",
		Action:          int8(domain.ActionSell),
		ProductAlias:    "stone",
		Amount:          4,
		MoneyExchanged:  1.25,
		CreatedAt:       at,
	}}}

	entries, err := NewLedgerRepository(d).Query(context.Background(), "a", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, d.pages)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionSell, entries[0].Action)
	assert.Equal(t, time.UTC, entries[0].Timestamp.Location())
	assert.True(t, entries[0].Timestamp.Equal(at))
}
