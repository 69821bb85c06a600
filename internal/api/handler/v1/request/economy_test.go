package request

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/pricing"
)

func ptr(v float64) *float64 { return &v }

func TestValidateAlias(t *testing.T) {
	valid := map[string]string{
		"stone":         "stone",
		"  Gold_Ingot ": "gold_ingot",
		"minecraft:oak": "minecraft:oak",
		"épée":          "épée",
		"a":             "a",
	}
	for in, want := range valid {
		got, err := ValidateAlias(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "   ", "_stone", "sto__ne", "sto ne", "stone!", strings.Repeat("a", 65)} {
		_, err := ValidateAlias(in)
		assert.Error(t, err, "%q", in)
	}
}

func TestTradeRequest(t *testing.T) {
	assert.NoError(t, (&TradeRequest{Amount: 1}).Validate())
	assert.Error(t, (&TradeRequest{Amount: 0}).Validate())
	assert.Error(t, (&TradeRequest{Amount: -5}).Validate())
	assert.NoError(t, (&TradeRequest{Amount: pricing.MaxTradeAmount}).Validate())
	assert.Error(t, (&TradeRequest{Amount: pricing.MaxTradeAmount + 1}).Validate())
	assert.Error(t, (&TradeRequest{Amount: 1 << 62}).Validate())
}

func TestSetPriceRequest(t *testing.T) {
	assert.NoError(t, (&SetPriceRequest{ItemType: "STONE", Price: ptr(0)}).Validate())
	assert.Error(t, (&SetPriceRequest{ItemType: "STONE"}).Validate())
	assert.Error(t, (&SetPriceRequest{Price: ptr(1)}).Validate())
	assert.Error(t, (&SetPriceRequest{ItemType: "STONE", VariantTag: -1, Price: ptr(1)}).Validate())
	assert.Error(t, (&SetPriceRequest{ItemType: "STONE", Price: ptr(math.Inf(-1))}).Validate())
}

func TestSetModFactorRequest(t *testing.T) {
	assert.NoError(t, (&SetModFactorRequest{ModFactor: ptr(0.25)}).Validate())
	assert.Error(t, (&SetModFactorRequest{}).Validate())
	assert.Error(t, (&SetModFactorRequest{ModFactor: ptr(math.NaN())}).Validate())
}

func TestSetDecayRequest(t *testing.T) {
	req := &SetDecayRequest{Amount: 10, Interval: "90m", Type: "Percentage"}
	require.NoError(t, req.Validate())
	assert.Equal(t, domain.DecayPolicy{Amount: 10, Interval: 90 * time.Minute, Type: domain.DecayPercentage}, req.Policy())

	assert.NoError(t, (&SetDecayRequest{Amount: 0, Interval: "0s", Type: "constant"}).Validate())
	assert.Error(t, (&SetDecayRequest{Amount: -1, Interval: "1h", Type: "constant"}).Validate())
	assert.Error(t, (&SetDecayRequest{Amount: 1, Interval: "-1h", Type: "constant"}).Validate())
	assert.Error(t, (&SetDecayRequest{Amount: 1, Interval: "soon", Type: "constant"}).Validate())
	assert.Error(t, (&SetDecayRequest{Amount: 1, Interval: "1h", Type: "linear"}).Validate())
}
