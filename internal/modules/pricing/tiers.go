// README: Distance charge from ordered distance tiers, with a flat per-km fallback.
package pricing

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// ComputeDistanceCharge prices distanceKm. With no tiers the flat rate applies.
// Otherwise each tier charges for the part of the trip inside its band; a
// distance exactly on a boundary is priced entirely by the lower tier.
func ComputeDistanceCharge(distanceKm float64, tiers []DistanceTier, flatRatePerKm decimal.Decimal) (decimal.Decimal, error) {
	if distanceKm < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return decimal.Zero, fmt.Errorf("%w: distance_km must be a finite value >= 0", ErrInvalidInput)
	}
	distance := decimal.NewFromFloat(distanceKm)
	if len(tiers) == 0 {
		return distance.Mul(flatRatePerKm), nil
	}

	ordered := make([]DistanceTier, len(tiers))
	copy(ordered, tiers)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].UpToKm < ordered[j].UpToKm })

	charge := decimal.Zero
	remaining := distance
	lower := decimal.Zero
	for _, tier := range ordered {
		if !remaining.IsPositive() {
			break
		}
		used := remaining
		if !tier.Unbounded() {
			upper := decimal.NewFromFloat(tier.UpToKm)
			used = decimal.Min(remaining, upper.Sub(lower))
			lower = upper
		}
		if used.IsNegative() {
			used = decimal.Zero
		}
		charge = charge.Add(used.Mul(tier.Rate))
		remaining = remaining.Sub(used)
	}
	if remaining.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s km beyond last tier at %s km", ErrTierRangeExceeded, remaining.String(), lower.String())
	}
	return charge, nil
}

// ValidateTiers checks that bounds strictly increase, that only the last tier
// is unbounded and that no rate is negative. An empty set is valid.
func ValidateTiers(tiers []DistanceTier) error {
	prev := 0.0
	for i, t := range tiers {
		if math.IsNaN(t.UpToKm) {
			return fmt.Errorf("%w: tier %d: up_to_km is NaN", ErrInvalidConfig, i)
		}
		if t.Unbounded() && i != len(tiers)-1 {
			return fmt.Errorf("%w: tier %d: unbounded tier must be last", ErrInvalidConfig, i)
		}
		if t.UpToKm <= prev {
			return fmt.Errorf("%w: tier %d: up_to_km %g must exceed %g", ErrInvalidConfig, i, t.UpToKm, prev)
		}
		if t.Rate.IsNegative() {
			return fmt.Errorf("%w: tier %d: rate must be >= 0", ErrInvalidConfig, i)
		}
		prev = t.UpToKm
	}
	return nil
}
