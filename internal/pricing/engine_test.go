package pricing

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vietanh2810/sdeconomy/internal/domain"
)

type fakeLedger struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
	err     error
}

func (l *fakeLedger) AppendLedger(_ context.Context, entry domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, entry)
	return nil
}

const actor = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func TestEngine_ExecuteBuyAndSell(t *testing.T) {
	ledger := &fakeLedger{}
	e := NewEngine(ledger, zap.NewNop())
	p := domain.NewProduct(state(0.1, 1, 10, 10))

	quote, err := e.QuoteBuy(p, 4)
	require.NoError(t, err)

	trade, err := e.ExecuteBuy(context.Background(), actor, p, 4)
	require.NoError(t, err)
	assert.Equal(t, quote, trade.Money)
	assert.Equal(t, int64(6), trade.State.Supply)
	assert.Equal(t, int64(14), trade.State.Demand)

	sell, err := e.ExecuteSell(context.Background(), actor, p, 4)
	require.NoError(t, err)
	assert.LessOrEqual(t, sell.Money, trade.Money)

	require.Len(t, ledger.entries, 2)
	assert.Equal(t, domain.LedgerEntry{
		ActorID:        actor,
		Action:         domain.ActionBuy,
		ProductAlias:   "stone",
		Amount:         4,
		MoneyExchanged: trade.Money,
	}, ledger.entries[0])
	assert.Equal(t, domain.ActionSell, ledger.entries[1].Action)
	assert.Equal(t, sell.Money, ledger.entries[1].MoneyExchanged)
}

func TestEngine_RejectsInvalidAmount(t *testing.T) {
	ledger := &fakeLedger{}
	e := NewEngine(ledger, zap.NewNop())
	p := domain.NewProduct(state(0.1, 1, 10, 10))
	before := p.Snapshot()

	_, err := e.ExecuteBuy(context.Background(), actor, p, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.ExecuteSell(context.Background(), actor, p, -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.QuoteBuy(p, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.QuoteSell(p, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.DecayDemand(context.Background(), actor, p, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Equal(t, before, p.Snapshot())
	assert.Empty(t, ledger.entries)
}

func TestEngine_RejectsAmountAboveLimit(t *testing.T) {
	ledger := &fakeLedger{}
	e := NewEngine(ledger, zap.NewNop()).WithMaxAmount(5)
	p := domain.NewProduct(state(0.1, 1, 10, 10))
	before := p.Snapshot()

	for _, amount := range []int64{6, 1 << 62, math.MaxInt64} {
		_, err := e.ExecuteSell(context.Background(), actor, p, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = e.ExecuteBuy(context.Background(), actor, p, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = e.QuoteBuy(p, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = e.QuoteSell(p, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
	assert.Equal(t, before, p.Snapshot())
	assert.Empty(t, ledger.entries)

	_, err := e.ExecuteSell(context.Background(), actor, p, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), p.Snapshot().Supply)
}

func TestEngine_WithMaxAmount(t *testing.T) {
	assert.Equal(t, DefaultTradeAmount, NewEngine(nil, zap.NewNop()).MaxAmount())
	assert.Equal(t, DefaultTradeAmount, NewEngine(nil, zap.NewNop()).WithMaxAmount(0).MaxAmount())
	assert.Equal(t, MaxTradeAmount, NewEngine(nil, zap.NewNop()).WithMaxAmount(1<<40).MaxAmount())
	assert.Equal(t, int64(64), NewEngine(nil, zap.NewNop()).WithMaxAmount(64).MaxAmount())
}

func TestEngine_LedgerFailureKeepsTrade(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	ledger := &fakeLedger{err: errors.New("connection refused")}
	e := NewEngine(ledger, zap.New(core))
	p := domain.NewProduct(state(0.1, 1, 10, 10))

	trade, err := e.ExecuteBuy(context.Background(), actor, p, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(12), p.Snapshot().Demand)
	assert.Positive(t, trade.Money)
	assert.Equal(t, 1, logs.FilterMessage("failed to append ledger entry").Len())
}

func TestEngine_AdminSetters(t *testing.T) {
	ledger := &fakeLedger{}
	e := NewEngine(ledger, zap.NewNop())
	p := domain.NewProduct(state(0.1, 1, 10, 10))

	s, err := e.SetPrice(context.Background(), actor, p, 3.5)
	require.NoError(t, err)
	assert.Equal(t, 3.5, s.BasePrice)

	s, err = e.SetModFactor(context.Background(), actor, p, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 0.25, s.ModFactor)

	require.Len(t, ledger.entries, 2)
	assert.Equal(t, domain.ActionSetPrice, ledger.entries[0].Action)
	assert.Equal(t, 3.5, ledger.entries[0].Amount)
	assert.Zero(t, ledger.entries[0].MoneyExchanged)
	assert.Equal(t, domain.ActionSetModFactor, ledger.entries[1].Action)

	_, err = e.SetModFactor(context.Background(), actor, p, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, 0.25, p.Snapshot().ModFactor)
}

func TestEngine_DecayDemand(t *testing.T) {
	ledger := &fakeLedger{}
	e := NewEngine(ledger, zap.NewNop())
	p := domain.NewProduct(state(0.1, 1, 1, 50))

	removed, err := e.DecayDemand(context.Background(), domain.SystemActorID, p, 64)
	require.NoError(t, err)
	assert.Equal(t, int64(49), removed)
	assert.Equal(t, int64(1), p.Snapshot().Demand)

	removed, err = e.DecayDemand(context.Background(), domain.SystemActorID, p, 64)
	require.NoError(t, err)
	assert.Zero(t, removed)

	require.Len(t, ledger.entries, 1, "no entry when nothing was removed")
	assert.Equal(t, domain.ActionDecay, ledger.entries[0].Action)
	assert.Equal(t, float64(49), ledger.entries[0].Amount)
}

func TestEngine_DecayUsesPolicy(t *testing.T) {
	e := NewEngine(nil, zap.NewNop())
	s := state(0.1, 1, 1, 100)
	s.DecayAmount = 10
	s.DecayType = domain.DecayPercentage
	p := domain.NewProduct(s)

	removed, after := e.Decay(p)
	assert.Equal(t, int64(10), removed)
	assert.Equal(t, int64(90), after.Demand)
}

func TestEngine_ConcurrentTradesKeepInvariants(t *testing.T) {
	e := NewEngine(&fakeLedger{}, zap.NewNop())
	p := domain.NewProduct(state(0.1, 1, 50, 50))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = e.ExecuteBuy(context.Background(), actor, p, 1)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = e.ExecuteSell(context.Background(), actor, p, 1)
			}
		}()
	}
	wg.Wait()

	s := p.Snapshot()
	assert.GreaterOrEqual(t, s.Supply, int64(1))
	assert.GreaterOrEqual(t, s.Demand, int64(1))
}
