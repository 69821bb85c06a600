package pricing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietanh2810/sdeconomy/internal/domain"
)

func state(modFactor, basePrice float64, supply, demand int64) domain.ProductState {
	return domain.ProductState{
		Alias:     "stone",
		ModFactor: modFactor,
		BasePrice: basePrice,
		Supply:    supply,
		Demand:    demand,
	}
}

func TestApplyBuy_SingleUnit(t *testing.T) {
	s := state(0.1, 1, 1, 1)

	cost := ApplyBuy(&s, 1)

	// supply stays at its floor, demand goes to 2: 0.1*2/1 + 1
	assert.InDelta(t, 1.2, cost, 1e-12)
	assert.Equal(t, int64(1), s.Supply)
	assert.Equal(t, int64(2), s.Demand)
}

func TestApplySell_SingleUnit(t *testing.T) {
	s := state(0.1, 1, 1, 1)

	returns := ApplySell(&s, 1)

	// supply goes to 2, demand stays at its floor: 0.1*1/2 + 1
	assert.InDelta(t, 1.05, returns, 1e-12)
	assert.Equal(t, int64(2), s.Supply)
	assert.Equal(t, int64(1), s.Demand)
}

func TestApplyBuy_IsIterative(t *testing.T) {
	s := state(1, 0, 10, 10)

	cost := ApplyBuy(&s, 3)

	want := 11.0/9 + 12.0/8 + 13.0/7
	assert.InDelta(t, want, cost, 1e-12)
	assert.Equal(t, int64(7), s.Supply)
	assert.Equal(t, int64(13), s.Demand)
}

func TestQuotesDoNotMutate(t *testing.T) {
	s := state(0.5, 2, 7, 9)
	before := s

	buy := QuoteBuy(s, 12)
	sell := QuoteSell(s, 12)
	assert.Equal(t, before, s)

	applied := s
	assert.Equal(t, buy, ApplyBuy(&applied, 12))
	applied = s
	assert.GreaterOrEqual(t, sell, ApplySell(&applied, 12))
}

func TestQuoteSell_KeepsDemand(t *testing.T) {
	s := state(1, 0, 1, 10)

	// supply 2 then 3, demand stays at 10
	assert.InDelta(t, 10.0/2+10.0/3, QuoteSell(s, 2), 1e-12)
}

func TestQuoteSell_SaturatesSupply(t *testing.T) {
	s := state(1, 0, math.MaxInt64, 10)

	want := 2 * (10 / float64(math.MaxInt64))
	assert.InDelta(t, want, QuoteSell(s, 2), 1e-30)
}

func TestZeroAmountIsNoop(t *testing.T) {
	s := state(0.5, 2, 7, 9)
	before := s

	assert.Zero(t, ApplyBuy(&s, 0))
	assert.Zero(t, ApplySell(&s, -3))
	assert.Equal(t, before, s)
}

func TestNoArbitrage_RestoredState(t *testing.T) {
	for i := 1; i <= 20; i++ {
		modFactor := float64(i) / 5
		for demand := int64(1); demand <= 100; demand += 7 {
			for supply := int64(1); supply <= 100; supply += 7 {
				for amount := int64(1); amount <= 100; amount++ {
					base := state(modFactor, 0, supply, demand)

					bought := base
					cost := ApplyBuy(&bought, amount)

					sold := base
					returns := ApplySell(&sold, amount)

					if returns > cost {
						t.Fatalf("arbitrage: mod=%v supply=%d demand=%d amount=%d buy=%v sell=%v",
							modFactor, supply, demand, amount, cost, returns)
					}
				}
			}
		}
	}
}

func TestNoArbitrage_BuyThenSell(t *testing.T) {
	for i := 1; i <= 20; i++ {
		modFactor := float64(i) / 5
		for demand := int64(1); demand <= 100; demand += 3 {
			for supply := int64(1); supply <= 100; supply += 3 {
				for amount := int64(1); amount <= 100; amount += 3 {
					s := state(modFactor, 1, supply, demand)

					cost := ApplyBuy(&s, amount)
					returns := ApplySell(&s, amount)

					if returns > cost {
						t.Fatalf("arbitrage: mod=%v supply=%d demand=%d amount=%d buy=%v sell=%v",
							modFactor, supply, demand, amount, cost, returns)
					}
				}
			}
		}
	}
}

func TestFloorInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := state(0.3, 1, 1, 1)

	for i := 0; i < 5000; i++ {
		n := rng.Int63n(40) + 1
		switch rng.Intn(3) {
		case 0:
			ApplyBuy(&s, n)
		case 1:
			ApplySell(&s, n)
		default:
			DecayDemand(&s, n*3)
		}
		require.GreaterOrEqual(t, s.Supply, int64(1))
		require.GreaterOrEqual(t, s.Demand, int64(1))
	}
}

func TestSaturation(t *testing.T) {
	s := state(0.1, 1, 5, math.MaxInt64)
	ApplyBuy(&s, 3)
	assert.Equal(t, int64(math.MaxInt64), s.Demand)
	assert.Equal(t, int64(2), s.Supply)

	s = state(0.1, 1, math.MaxInt64, 5)
	ApplySell(&s, 3)
	assert.Equal(t, int64(math.MaxInt64), s.Supply)
	assert.Equal(t, int64(2), s.Demand)
}

func TestDecayDemand(t *testing.T) {
	s := state(0.1, 1, 1, 50)
	assert.Equal(t, int64(49), DecayDemand(&s, 64))
	assert.Equal(t, int64(1), s.Demand)

	assert.Equal(t, int64(0), DecayDemand(&s, 10))
	assert.Equal(t, int64(1), s.Demand)

	s.Demand = 100
	assert.Equal(t, int64(30), DecayDemand(&s, 30))
	assert.Equal(t, int64(70), s.Demand)
}

func TestDecayRequest(t *testing.T) {
	s := state(0.1, 1, 1, 100)
	s.DecayAmount = 10
	s.DecayType = domain.DecayPercentage

	req := DecayRequest(s)
	assert.Equal(t, int64(10), req)
	DecayDemand(&s, req)
	assert.Equal(t, int64(90), s.Demand)

	s.Demand = 5
	assert.Equal(t, int64(1), DecayRequest(s), "rounds up")

	s.DecayType = domain.DecayConstant
	assert.Equal(t, int64(10), DecayRequest(s))
}
