// Package pricing implements the supply/demand price model.
//
// A trade of n units is priced one unit at a time: each unit mutates supply
// and demand first and is then priced from the resulting ratio, so the cost
// of n units depends on the state left by every previous unit.
package pricing

import (
	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/pkg/satmath"
)

// UnitPrice is modFactor * demand/supply + basePrice for the given counters.
func UnitPrice(s domain.ProductState, supply, demand int64) float64 {
	return s.ModFactor*(float64(demand)/float64(supply)) + s.BasePrice
}

// ApplyBuy buys amount units against s and returns the total cost. Per unit,
// supply drops by one (floor 1) and demand rises by one (saturating).
func ApplyBuy(s *domain.ProductState, amount int64) float64 {
	var total float64
	for i := int64(0); i < amount; i++ {
		s.Supply = satmath.DecFloor(s.Supply, 1)
		s.Demand = satmath.Inc(s.Demand)
		total += UnitPrice(*s, s.Supply, s.Demand)
	}
	return total
}

// ApplySell sells amount units against s and returns the total paid out. Per
// unit, supply rises by one (saturating) and demand drops by one (floor 1).
func ApplySell(s *domain.ProductState, amount int64) float64 {
	var total float64
	for i := int64(0); i < amount; i++ {
		s.Supply = satmath.Inc(s.Supply)
		s.Demand = satmath.DecFloor(s.Demand, 1)
		total += UnitPrice(*s, s.Supply, s.Demand)
	}
	return total
}

// QuoteBuy returns what ApplyBuy would charge without touching s.
func QuoteBuy(s domain.ProductState, amount int64) float64 {
	return ApplyBuy(&s, amount)
}

// QuoteSell previews a sale of amount units without touching s. Only the
// simulated supply moves; every unit is priced against the current demand.
func QuoteSell(s domain.ProductState, amount int64) float64 {
	var total float64
	supply := s.Supply
	for i := int64(0); i < amount; i++ {
		supply = satmath.Inc(supply)
		total += UnitPrice(s, supply, s.Demand)
	}
	return total
}

// DecayDemand removes up to requested units of demand, never going below 1,
// and returns how many were removed.
func DecayDemand(s *domain.ProductState, requested int64) int64 {
	var removed int64
	s.Demand, removed = satmath.SubFloor(s.Demand, requested, 1)
	return removed
}

// DecayRequest is the amount of demand the product's own policy asks to
// remove on one tick.
func DecayRequest(s domain.ProductState) int64 {
	switch s.DecayType {
	case domain.DecayPercentage:
		return satmath.CeilPercent(s.Demand, s.DecayAmount)
	default:
		return s.DecayAmount
	}
}
