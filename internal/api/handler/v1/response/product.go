package response

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/pricing"
	"github.com/vietanh2810/sdeconomy/internal/service"
)

const moneyPlaces = 4

// Money renders an amount truncated, not rounded, to four decimal places.
func Money(v float64) string {
	return decimal.NewFromFloat(v).Truncate(moneyPlaces).String()
}

type Decay struct {
	Amount   int64  `json:"amount"`
	Interval string `json:"interval"`
	Type     string `json:"type"`
}

type Product struct {
	Alias      string `json:"alias"`
	ItemType   string `json:"item_type"`
	VariantTag int8   `json:"variant_tag"`
	ModFactor  string `json:"mod_factor"`
	BasePrice  string `json:"base_price"`
	Supply     int64  `json:"supply"`
	Demand     int64  `json:"demand"`
	// BuyPrice and SellPrice are the quotes for a single unit.
	BuyPrice  string `json:"buy_price"`
	SellPrice string `json:"sell_price"`
	Decay     Decay  `json:"decay"`
}

func NewProduct(s domain.ProductState) Product {
	return Product{
		Alias:      s.Alias,
		ItemType:   s.ItemType,
		VariantTag: s.VariantTag,
		ModFactor:  Money(s.ModFactor),
		BasePrice:  Money(s.BasePrice),
		Supply:     s.Supply,
		Demand:     s.Demand,
		BuyPrice:   Money(pricing.QuoteBuy(s, 1)),
		SellPrice:  Money(pricing.QuoteSell(s, 1)),
		Decay: Decay{
			Amount:   s.DecayAmount,
			Interval: s.DecayInterval.String(),
			Type:     s.DecayType.String(),
		},
	}
}

func NewProducts(states []domain.ProductState) []Product {
	products := make([]Product, 0, len(states))
	for _, s := range states {
		products = append(products, NewProduct(s))
	}
	return products
}

type Quote struct {
	Alias      string `json:"alias"`
	Amount     int64  `json:"amount"`
	BuyCost    string `json:"buy_cost"`
	SellReturn string `json:"sell_return"`
}

func NewQuote(alias string, q service.Quote) Quote {
	return Quote{
		Alias:      alias,
		Amount:     q.Amount,
		BuyCost:    Money(q.BuyCost),
		SellReturn: Money(q.SellReturn),
	}
}

type Trade struct {
	Action  string  `json:"action"`
	Amount  int64   `json:"amount"`
	Money   string  `json:"money"`
	Product Product `json:"product"`
}

func NewTrade(action domain.Action, t pricing.Trade) Trade {
	return Trade{
		Action:  action.String(),
		Amount:  t.Amount,
		Money:   Money(t.Money),
		Product: NewProduct(t.State),
	}
}

type LedgerEntry struct {
	Action         string    `json:"action"`
	Product        string    `json:"product"`
	Amount         string    `json:"amount"`
	MoneyExchanged string    `json:"money_exchanged"`
	Timestamp      time.Time `json:"timestamp"`
}

type Transactions struct {
	ActorID string        `json:"actor_id"`
	Page    int           `json:"page"`
	Entries []LedgerEntry `json:"entries"`
}

func NewTransactions(actorID string, page int, entries []domain.LedgerEntry) Transactions {
	out := Transactions{
		ActorID: actorID,
		Page:    page,
		Entries: make([]LedgerEntry, 0, len(entries)),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, LedgerEntry{
			Action:         e.Action.String(),
			Product:        e.ProductAlias,
			Amount:         Money(e.Amount),
			MoneyExchanged: Money(e.MoneyExchanged),
			Timestamp:      e.Timestamp,
		})
	}
	return out
}

type PriceEvent struct {
	Action  string    `json:"action"`
	Amount  string    `json:"amount"`
	Money   string    `json:"money"`
	At      time.Time `json:"at"`
	Product Product   `json:"product"`
}

func NewPriceEvent(e service.PriceEvent) PriceEvent {
	return PriceEvent{
		Action:  e.Action.String(),
		Amount:  Money(e.Amount),
		Money:   Money(e.Money),
		At:      e.At,
		Product: NewProduct(e.State),
	}
}
