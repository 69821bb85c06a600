package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrUnknownDecayType = errors.New("unknown decay type")

type DecayType int8

const (
	DecayConstant DecayType = iota
	DecayPercentage
)

func (t DecayType) String() string {
	switch t {
	case DecayConstant:
		return "constant"
	case DecayPercentage:
		return "percentage"
	default:
		return fmt.Sprintf("DecayType(%d)", int8(t))
	}
}

func (t DecayType) Valid() bool {
	return t == DecayConstant || t == DecayPercentage
}

// ParseDecayType accepts the names returned by String, in any case.
func ParseDecayType(s string) (DecayType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "constant":
		return DecayConstant, nil
	case "percentage":
		return DecayPercentage, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDecayType, s)
	}
}

// DecayPolicy describes how demand cools down for a product.
type DecayPolicy struct {
	Amount   int64
	Interval time.Duration
	Type     DecayType
}

func DefaultDecayPolicy() DecayPolicy {
	return DecayPolicy{
		Amount:   64,
		Interval: 12 * time.Hour,
		Type:     DecayConstant,
	}
}

const (
	DefaultModFactor = 0.1
	DefaultBasePrice = 1.0
)

// ProductState is a value copy of a product's fields.
type ProductState struct {
	Alias         string        `json:"alias"`
	ItemType      string        `json:"item_type"`
	VariantTag    int8          `json:"variant_tag"`
	ModFactor     float64       `json:"mod_factor"`
	BasePrice     float64       `json:"base_price"`
	Supply        int64         `json:"supply"`
	Demand        int64         `json:"demand"`
	DecayAmount   int64         `json:"decay_amount"`
	DecayInterval time.Duration `json:"decay_interval"`
	DecayType     DecayType     `json:"decay_type"`
}

func (s ProductState) DecayPolicy() DecayPolicy {
	return DecayPolicy{Amount: s.DecayAmount, Interval: s.DecayInterval, Type: s.DecayType}
}

func (s *ProductState) SetDecayPolicy(p DecayPolicy) {
	s.DecayAmount = p.Amount
	s.DecayInterval = p.Interval
	s.DecayType = p.Type
}

// DefaultState returns the state of a product that has just been created by
// an admin or by first-run population.
func DefaultState(alias, itemType string, variantTag int8, decay DecayPolicy) ProductState {
	s := ProductState{
		Alias:      NormalizeAlias(alias),
		ItemType:   itemType,
		VariantTag: variantTag,
		ModFactor:  DefaultModFactor,
		BasePrice:  DefaultBasePrice,
		Supply:     1,
		Demand:     1,
	}
	s.SetDecayPolicy(decay)
	return s
}

// NormalizeAlias trims and lower-cases an alias. Aliases are compared only in
// their normalized form.
func NormalizeAlias(alias string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(alias))
}

// Product is the live, shared record of one tradeable item. All mutation goes
// through Update, which serializes writers on the record's mutex.
type Product struct {
	alias string

	mu    sync.Mutex
	state ProductState
}

func NewProduct(state ProductState) *Product {
	state.Alias = NormalizeAlias(state.Alias)
	clampCounters(&state)
	return &Product{
		alias: state.Alias,
		state: state,
	}
}

func (p *Product) Alias() string {
	return p.alias
}

func (p *Product) Snapshot() ProductState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Update runs fn with exclusive access to the record and returns the state
// left behind. The alias cannot be changed and the counters are kept at 1 or
// above whatever fn does.
func (p *Product) Update(fn func(s *ProductState)) ProductState {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(&p.state)
	p.state.Alias = p.alias
	clampCounters(&p.state)

	return p.state
}

func clampCounters(s *ProductState) {
	if s.Supply < 1 {
		s.Supply = 1
	}
	if s.Demand < 1 {
		s.Demand = 1
	}
}
