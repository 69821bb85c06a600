package pricing

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/vietanh2810/sdeconomy/internal/domain"
)

// Every unit of a trade is priced in turn under the product lock, so the
// amount of a single quote or trade is bounded.
const (
	MaxTradeAmount     int64 = 100_000
	DefaultTradeAmount int64 = 10_000
)

var (
	ErrInvalidAmount = errors.New("amount must be between 1 and the per-trade limit")
	ErrInvalidValue  = errors.New("value must be a finite number")
)

// Ledger receives the entries produced by executed operations.
type Ledger interface {
	AppendLedger(ctx context.Context, entry domain.LedgerEntry) error
}

// Trade is the outcome of an executed buy or sell.
type Trade struct {
	State  domain.ProductState
	Amount int64
	Money  float64
}

// Engine executes pricing operations on live products and records them in
// the ledger. Ledger failures are logged and never undo a mutation: state is
// memory-first and the next snapshot makes it durable.
type Engine struct {
	ledger    Ledger
	maxAmount int64
	logger    *zap.Logger
}

func NewEngine(ledger Ledger, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{
		ledger:    ledger,
		maxAmount: DefaultTradeAmount,
		logger:    logger,
	}
}

// WithMaxAmount sets the per-trade unit limit, clamped to MaxTradeAmount.
// Values below 1 keep DefaultTradeAmount. Call it before the engine is shared.
func (e *Engine) WithMaxAmount(n int64) *Engine {
	switch {
	case n < 1:
		n = DefaultTradeAmount
	case n > MaxTradeAmount:
		n = MaxTradeAmount
	}
	e.maxAmount = n
	return e
}

func (e *Engine) MaxAmount() int64 {
	return e.maxAmount
}

// CheckAmount rejects amounts a single quote or trade may not cover.
func (e *Engine) CheckAmount(amount int64) error {
	if amount < 1 || amount > e.maxAmount {
		return ErrInvalidAmount
	}
	return nil
}

func (e *Engine) QuoteBuy(p *domain.Product, amount int64) (float64, error) {
	if err := e.CheckAmount(amount); err != nil {
		return 0, err
	}
	return QuoteBuy(p.Snapshot(), amount), nil
}

func (e *Engine) QuoteSell(p *domain.Product, amount int64) (float64, error) {
	if err := e.CheckAmount(amount); err != nil {
		return 0, err
	}
	return QuoteSell(p.Snapshot(), amount), nil
}

func (e *Engine) ExecuteBuy(ctx context.Context, actorID string, p *domain.Product, amount int64) (Trade, error) {
	if err := e.CheckAmount(amount); err != nil {
		return Trade{}, err
	}

	var cost float64
	state := p.Update(func(s *domain.ProductState) {
		cost = ApplyBuy(s, amount)
	})

	e.append(ctx, domain.LedgerEntry{
		ActorID:        actorID,
		Action:         domain.ActionBuy,
		ProductAlias:   state.Alias,
		Amount:         float64(amount),
		MoneyExchanged: cost,
	})

	return Trade{State: state, Amount: amount, Money: cost}, nil
}

func (e *Engine) ExecuteSell(ctx context.Context, actorID string, p *domain.Product, amount int64) (Trade, error) {
	if err := e.CheckAmount(amount); err != nil {
		return Trade{}, err
	}

	var returns float64
	state := p.Update(func(s *domain.ProductState) {
		returns = ApplySell(s, amount)
	})

	e.append(ctx, domain.LedgerEntry{
		ActorID:        actorID,
		Action:         domain.ActionSell,
		ProductAlias:   state.Alias,
		Amount:         float64(amount),
		MoneyExchanged: returns,
	})

	return Trade{State: state, Amount: amount, Money: returns}, nil
}

func (e *Engine) SetPrice(ctx context.Context, actorID string, p *domain.Product, value float64) (domain.ProductState, error) {
	if !finite(value) {
		return domain.ProductState{}, ErrInvalidValue
	}

	state := p.Update(func(s *domain.ProductState) {
		s.BasePrice = value
	})

	e.append(ctx, domain.LedgerEntry{
		ActorID:      actorID,
		Action:       domain.ActionSetPrice,
		ProductAlias: state.Alias,
		Amount:       value,
	})

	return state, nil
}

func (e *Engine) SetModFactor(ctx context.Context, actorID string, p *domain.Product, value float64) (domain.ProductState, error) {
	if !finite(value) {
		return domain.ProductState{}, ErrInvalidValue
	}

	state := p.Update(func(s *domain.ProductState) {
		s.ModFactor = value
	})

	e.append(ctx, domain.LedgerEntry{
		ActorID:      actorID,
		Action:       domain.ActionSetModFactor,
		ProductAlias: state.Alias,
		Amount:       value,
	})

	return state, nil
}

// DecayDemand removes up to requested units of demand on behalf of actorID
// and records a DECAY entry when anything was removed.
func (e *Engine) DecayDemand(ctx context.Context, actorID string, p *domain.Product, requested int64) (int64, error) {
	if requested < 1 {
		return 0, ErrInvalidAmount
	}

	var removed int64
	state := p.Update(func(s *domain.ProductState) {
		removed = DecayDemand(s, requested)
	})

	if removed > 0 {
		e.append(ctx, domain.LedgerEntry{
			ActorID:      actorID,
			Action:       domain.ActionDecay,
			ProductAlias: state.Alias,
			Amount:       float64(removed),
		})
	}

	return removed, nil
}

// Decay applies the product's own decay policy once without writing to the
// ledger; scheduled decay batches its entries separately.
func (e *Engine) Decay(p *domain.Product) (int64, domain.ProductState) {
	var removed int64
	state := p.Update(func(s *domain.ProductState) {
		removed = DecayDemand(s, DecayRequest(*s))
	})
	return removed, state
}

func (e *Engine) append(ctx context.Context, entry domain.LedgerEntry) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.AppendLedger(ctx, entry); err != nil {
		e.logger.Error("failed to append ledger entry",
			zap.String("actor", entry.ActorID),
			zap.Stringer("action", entry.Action),
			zap.String("product", entry.ProductAlias),
			zap.Error(err),
		)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
