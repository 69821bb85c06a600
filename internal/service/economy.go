package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/pricing"
	"github.com/vietanh2810/sdeconomy/internal/repository"
	"github.com/vietanh2810/sdeconomy/internal/store"
)

var (
	ErrProductNotFound    = repository.ErrProductNotFound
	ErrPriceNotSet        = errors.New("price not set yet")
	ErrInvalidAmount      = pricing.ErrInvalidAmount
	ErrInvalidValue       = pricing.ErrInvalidValue
	ErrAmountExceedsLimit = errors.New("amount exceeds the maximum items per buy")
	ErrInvalidAlias       = errors.New("invalid product alias")
	ErrInvalidDecay       = errors.New("invalid decay policy")
	ErrInvalidActor       = errors.New("actor id must be a UUID")
)

const defaultStorageTimeout = 5 * time.Second

type ProductRepository interface {
	LoadAll(ctx context.Context) ([]domain.ProductState, error)
	SaveAll(ctx context.Context, states []domain.ProductState) error
	SaveOne(ctx context.Context, state domain.ProductState) error
	Delete(ctx context.Context, alias string) error
}

type LedgerRepository interface {
	Append(ctx context.Context, entry domain.LedgerEntry) error
	AppendBatch(ctx context.Context, entries []domain.LedgerEntry) (int, error)
	Query(ctx context.Context, actorID string, page int) ([]domain.LedgerEntry, error)
}

// PriceEvent describes a change to one product, published after the change
// is visible in memory.
type PriceEvent struct {
	Action domain.Action
	State  domain.ProductState
	Amount float64
	Money  float64
	At     time.Time
}

type Notifier interface {
	Publish(event PriceEvent)
}

type EconomyConfig struct {
	// StorageTimeout bounds every durable call made on behalf of a request.
	StorageTimeout time.Duration
	// Decay is applied to products created by SetPrice and Populate.
	Decay           domain.DecayPolicy
	MaxItemsEnabled bool
	MaxItemsPerBuy  int64
	// MaxTradeAmount caps the units of any quote, buy or sell. Zero means
	// pricing.DefaultTradeAmount.
	MaxTradeAmount int64
}

// Quote holds what a buyer would pay and a seller would receive for the same
// amount at the current state.
type Quote struct {
	Amount     int64
	BuyCost    float64
	SellReturn float64
}

type EconomyService struct {
	store     *store.Store
	engine    *pricing.Engine
	products  ProductRepository
	ledger    LedgerRepository
	notifier  Notifier
	scheduler *DecayScheduler
	logger    *zap.Logger

	timeout time.Duration
	decay   domain.DecayPolicy
	// maxItems is 0 when buys are unlimited.
	maxItems atomic.Int64

	// persistMu is held shared by durable product writes and exclusively by
	// Remove, so no write can land a removed product back in storage.
	persistMu sync.RWMutex
}

func NewEconomyService(
	st *store.Store,
	products ProductRepository,
	ledger LedgerRepository,
	notifier Notifier,
	cfg EconomyConfig,
	logger *zap.Logger,
) *EconomyService {
	if logger == nil {
		logger = zap.L()
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = defaultStorageTimeout
	}

	s := &EconomyService{
		store:    st,
		products: products,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
		timeout:  cfg.StorageTimeout,
		decay:    cfg.Decay,
	}
	s.engine = pricing.NewEngine(ledgerSink{ledger: ledger, timeout: cfg.StorageTimeout}, logger).
		WithMaxAmount(cfg.MaxTradeAmount)
	s.scheduler = NewDecayScheduler(st, s.engine, ledger, notifier, cfg.StorageTimeout, logger)
	s.SetTradeLimits(cfg.MaxItemsEnabled, cfg.MaxItemsPerBuy)

	return s
}

func (s *EconomyService) Scheduler() *DecayScheduler {
	return s.scheduler
}

// SetTradeLimits replaces the per-buy limit. It is safe to call while trades
// are running.
func (s *EconomyService) SetTradeLimits(enabled bool, maxItems int64) {
	if !enabled || maxItems < 1 {
		maxItems = 0
	}
	s.maxItems.Store(maxItems)
}

func (s *EconomyService) MaxItemsPerBuy() (int64, bool) {
	n := s.maxItems.Load()
	return n, n > 0
}

func (s *EconomyService) lookup(alias string) (*domain.Product, error) {
	p, ok := s.store.Get(alias)
	if !ok {
		return nil, ErrPriceNotSet
	}
	return p, nil
}

func (s *EconomyService) Info(alias string) (domain.ProductState, error) {
	p, err := s.lookup(alias)
	if err != nil {
		return domain.ProductState{}, err
	}
	return p.Snapshot(), nil
}

func (s *EconomyService) List() []domain.ProductState {
	products := s.store.Values()
	states := make([]domain.ProductState, 0, len(products))
	for _, p := range products {
		states = append(states, p.Snapshot())
	}
	return states
}

// FindByItem returns the product that trades the given item variant.
func (s *EconomyService) FindByItem(itemType string, variantTag int8) (domain.ProductState, error) {
	p, ok := s.store.FindByItem(itemType, variantTag)
	if !ok {
		return domain.ProductState{}, ErrPriceNotSet
	}
	return p.Snapshot(), nil
}

func (s *EconomyService) Quote(alias string, amount int64) (Quote, error) {
	if err := s.engine.CheckAmount(amount); err != nil {
		return Quote{}, err
	}
	p, err := s.lookup(alias)
	if err != nil {
		return Quote{}, err
	}

	state := p.Snapshot()
	return Quote{
		Amount:     amount,
		BuyCost:    pricing.QuoteBuy(state, amount),
		SellReturn: pricing.QuoteSell(state, amount),
	}, nil
}

func (s *EconomyService) Buy(ctx context.Context, actorID, alias string, amount int64) (pricing.Trade, error) {
	if err := s.engine.CheckAmount(amount); err != nil {
		return pricing.Trade{}, err
	}
	if limit := s.maxItems.Load(); limit > 0 && amount > limit {
		return pricing.Trade{}, ErrAmountExceedsLimit
	}
	p, err := s.lookup(alias)
	if err != nil {
		return pricing.Trade{}, err
	}

	trade, err := s.engine.ExecuteBuy(ctx, actorID, p, amount)
	if err != nil {
		return pricing.Trade{}, fmt.Errorf("s.engine.ExecuteBuy -> %w", err)
	}

	s.publish(domain.ActionBuy, trade.State, float64(amount), trade.Money)

	return trade, nil
}

func (s *EconomyService) Sell(ctx context.Context, actorID, alias string, amount int64) (pricing.Trade, error) {
	if err := s.engine.CheckAmount(amount); err != nil {
		return pricing.Trade{}, err
	}
	p, err := s.lookup(alias)
	if err != nil {
		return pricing.Trade{}, err
	}

	trade, err := s.engine.ExecuteSell(ctx, actorID, p, amount)
	if err != nil {
		return pricing.Trade{}, fmt.Errorf("s.engine.ExecuteSell -> %w", err)
	}

	s.publish(domain.ActionSell, trade.State, float64(amount), trade.Money)

	return trade, nil
}

// SetPrice sets the base price of alias, creating the product with the
// configured decay defaults when it does not exist yet. itemType and
// variantTag always overwrite the stored ones.
func (s *EconomyService) SetPrice(ctx context.Context, actorID, alias, itemType string, variantTag int8, price float64) (domain.ProductState, error) {
	alias = domain.NormalizeAlias(alias)
	if alias == "" {
		return domain.ProductState{}, ErrInvalidAlias
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return domain.ProductState{}, ErrInvalidValue
	}

	p, created := s.store.GetOrCreate(alias, func(alias string) *domain.Product {
		return domain.NewProduct(domain.DefaultState(alias, itemType, variantTag, s.decay))
	})
	if created {
		// The ledger references the durable row, so it has to exist first.
		s.saveOne(ctx, p.Snapshot())
	}

	p.Update(func(st *domain.ProductState) {
		st.ItemType = itemType
		st.VariantTag = variantTag
	})
	state, err := s.engine.SetPrice(ctx, actorID, p, price)
	if err != nil {
		return domain.ProductState{}, fmt.Errorf("s.engine.SetPrice -> %w", err)
	}
	s.saveOne(ctx, state)

	if created {
		s.scheduler.Reschedule()
	}
	s.publish(domain.ActionSetPrice, state, price, 0)

	return state, nil
}

func (s *EconomyService) SetModFactor(ctx context.Context, actorID, alias string, value float64) (domain.ProductState, error) {
	p, err := s.lookup(alias)
	if err != nil {
		return domain.ProductState{}, err
	}

	state, err := s.engine.SetModFactor(ctx, actorID, p, value)
	if err != nil {
		return domain.ProductState{}, fmt.Errorf("s.engine.SetModFactor -> %w", err)
	}
	s.saveOne(ctx, state)

	s.publish(domain.ActionSetModFactor, state, value, 0)

	return state, nil
}

// SetDecay replaces the decay policy of alias and regroups the scheduler.
func (s *EconomyService) SetDecay(ctx context.Context, alias string, policy domain.DecayPolicy) (domain.ProductState, error) {
	if policy.Amount < 0 || policy.Interval < 0 || !policy.Type.Valid() {
		return domain.ProductState{}, ErrInvalidDecay
	}
	p, err := s.lookup(alias)
	if err != nil {
		return domain.ProductState{}, err
	}

	state := p.Update(func(st *domain.ProductState) {
		st.SetDecayPolicy(policy)
	})
	s.saveOne(ctx, state)
	s.scheduler.Reschedule()

	return state, nil
}

// Remove deletes the durable row first; if that fails the product stays
// live and the error is returned. Ledger rows of the product go with it.
func (s *EconomyService) Remove(ctx context.Context, alias string) error {
	p, err := s.lookup(alias)
	if err != nil {
		return err
	}

	if err := s.remove(ctx, p.Alias()); err != nil {
		return err
	}
	s.scheduler.Reschedule()

	return nil
}

func (s *EconomyService) remove(ctx context.Context, alias string) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	dctx, cancel := s.storageContext(ctx)
	defer cancel()

	err := s.products.Delete(dctx, alias)
	if err != nil && !errors.Is(err, ErrProductNotFound) {
		return fmt.Errorf("s.products.Delete -> %w", err)
	}
	s.store.Remove(alias)

	return nil
}

// Transactions returns one page (zero-based) of the actor's ledger, newest
// first.
func (s *EconomyService) Transactions(ctx context.Context, actorID string, page int) ([]domain.LedgerEntry, error) {
	if !domain.ValidActorID(actorID) {
		return nil, ErrInvalidActor
	}
	if page < 0 {
		page = 0
	}

	qctx, cancel := s.storageContext(ctx)
	defer cancel()

	entries, err := s.ledger.Query(qctx, actorID, page)
	if err != nil {
		return nil, fmt.Errorf("s.ledger.Query -> %w", err)
	}

	return entries, nil
}

// Load inserts every durable product that is not live yet and returns how
// many were added. Live products are never overwritten.
func (s *EconomyService) Load(ctx context.Context) (int, error) {
	lctx, cancel := s.storageContext(ctx)
	defer cancel()

	states, err := s.products.LoadAll(lctx)
	if err != nil {
		return 0, fmt.Errorf("s.products.LoadAll -> %w", err)
	}

	added := 0
	for _, st := range states {
		_, created := s.store.GetOrCreate(st.Alias, func(string) *domain.Product {
			return domain.NewProduct(st)
		})
		if created {
			added++
		}
	}

	s.scheduler.Reschedule()
	s.logger.Info("Loaded products", zap.Int("durable", len(states)), zap.Int("added", added))

	return added, nil
}

// Populate creates a default product for every item type that has none yet
// and saves the new ones in one batch.
func (s *EconomyService) Populate(ctx context.Context, itemTypes []string) (int, error) {
	s.persistMu.RLock()
	defer s.persistMu.RUnlock()

	var created []domain.ProductState
	for _, itemType := range itemTypes {
		alias := domain.NormalizeAlias(itemType)
		if alias == "" {
			continue
		}
		p, ok := s.store.GetOrCreate(alias, func(alias string) *domain.Product {
			return domain.NewProduct(domain.DefaultState(alias, itemType, 0, s.decay))
		})
		if ok {
			created = append(created, p.Snapshot())
		}
	}
	if len(created) == 0 {
		return 0, nil
	}

	pctx, cancel := s.storageContext(ctx)
	defer cancel()

	if err := s.products.SaveAll(pctx, created); err != nil {
		return len(created), fmt.Errorf("s.products.SaveAll -> %w", err)
	}

	s.scheduler.Reschedule()
	s.logger.Info("Populated products", zap.Int("created", len(created)))

	return len(created), nil
}

// SaveAll writes a snapshot of every live product in one batch.
func (s *EconomyService) SaveAll(ctx context.Context) error {
	s.persistMu.RLock()
	defer s.persistMu.RUnlock()

	states := s.List()
	if len(states) == 0 {
		return nil
	}

	sctx, cancel := s.storageContext(ctx)
	defer cancel()

	if err := s.products.SaveAll(sctx, states); err != nil {
		return fmt.Errorf("s.products.SaveAll -> %w", err)
	}

	return nil
}

// saveOne skips products removed since state was taken.
func (s *EconomyService) saveOne(ctx context.Context, state domain.ProductState) {
	s.persistMu.RLock()
	defer s.persistMu.RUnlock()

	if _, ok := s.store.Get(state.Alias); !ok {
		return
	}

	sctx, cancel := s.storageContext(ctx)
	defer cancel()

	if err := s.products.SaveOne(sctx, state); err != nil {
		s.logger.Error("failed to save product",
			zap.String("product", state.Alias),
			zap.Error(err),
		)
	}
}

func (s *EconomyService) publish(action domain.Action, state domain.ProductState, amount, money float64) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(PriceEvent{
		Action: action,
		State:  state,
		Amount: amount,
		Money:  money,
		At:     time.Now().UTC(),
	})
}

// storageContext bounds a durable call and detaches it from request
// cancellation.
func (s *EconomyService) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

type ledgerSink struct {
	ledger  LedgerRepository
	timeout time.Duration
}

func (l ledgerSink) AppendLedger(ctx context.Context, entry domain.LedgerEntry) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	return l.ledger.Append(ctx, entry)
}
