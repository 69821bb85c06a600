package request

import (
	"errors"
	"math"
	"time"

	"github.com/dlclark/regexp2"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/pricing"
)

// aliasPattern: letters, digits and _ . : - up to 64 runes, starting with a
// letter or digit, with no doubled separators.
const aliasPattern = `^(?![\s\S]*[_.:-]{2})[\p{L}\p{N}][\p{L}\p{N}_.:-]{0,63}$`

var aliasExp = regexp2.MustCompile(aliasPattern, regexp2.None)

var (
	errInvalidAlias    = errors.New("alias must start with a letter or digit and contain only letters, digits and _ . : -")
	errNotFinite       = errors.New("must be a finite number")
	errInvalidInterval = errors.New("must be a non-negative duration such as 30m or 12h")
)

// ValidateAlias checks the alias after normalization and returns the
// normalized form.
func ValidateAlias(alias string) (string, error) {
	alias = domain.NormalizeAlias(alias)
	ok, err := aliasExp.MatchString(alias)
	if err != nil || !ok {
		return "", errInvalidAlias
	}
	return alias, nil
}

func finite(value interface{}) error {
	v, ok := value.(*float64)
	if !ok || v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return errNotFinite
	}
	return nil
}

type TradeRequest struct {
	Amount int64 `json:"amount"`
}

func (req *TradeRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Amount, validation.Required, validation.Min(int64(1)), validation.Max(pricing.MaxTradeAmount)),
	)
}

type SetPriceRequest struct {
	ItemType   string   `json:"item_type"`
	VariantTag int8     `json:"variant_tag"`
	Price      *float64 `json:"price"`
}

func (req *SetPriceRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.ItemType, validation.Required, validation.Length(1, 191)),
		validation.Field(&req.VariantTag, validation.Min(int8(0))),
		validation.Field(&req.Price, validation.NotNil, validation.By(finite)),
	)
}

type SetModFactorRequest struct {
	ModFactor *float64 `json:"mod_factor"`
}

func (req *SetModFactorRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.ModFactor, validation.NotNil, validation.By(finite)),
	)
}

type SetDecayRequest struct {
	Amount   int64  `json:"amount"`
	Interval string `json:"interval"`
	Type     string `json:"type"`
}

func (req *SetDecayRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Amount, validation.Min(int64(0))),
		validation.Field(&req.Interval, validation.Required, validation.By(func(value interface{}) error {
			d, err := time.ParseDuration(value.(string))
			if err != nil || d < 0 {
				return errInvalidInterval
			}
			return nil
		})),
		validation.Field(&req.Type, validation.Required, validation.By(func(value interface{}) error {
			_, err := domain.ParseDecayType(value.(string))
			return err
		})),
	)
}

// Policy converts a validated request.
func (req *SetDecayRequest) Policy() domain.DecayPolicy {
	interval, _ := time.ParseDuration(req.Interval)
	typ, _ := domain.ParseDecayType(req.Type)
	return domain.DecayPolicy{
		Amount:   req.Amount,
		Interval: interval,
		Type:     typ,
	}
}
