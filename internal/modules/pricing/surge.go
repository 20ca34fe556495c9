// README: Surge rule selection, max-of-matches composition and guardrail clamp.
package pricing

import "github.com/shopspring/decimal"

// MatchSurgeRules returns the rules that apply to the trip at the given time of day.
func MatchSurgeRules(req FareRequest, at TimeOfDay, rules []SurgeRule) []SurgeRule {
	zones := req.zones()
	var matched []SurgeRule
	for _, r := range rules {
		if !r.Active || !r.appliesTo(req.LocationID) {
			continue
		}
		if len(r.VehicleTypes) > 0 && !contains(r.VehicleTypes, req.VehicleType) {
			continue
		}
		if len(r.ZoneIDs) > 0 && !intersects(r.ZoneIDs, zones) {
			continue
		}
		if !r.Window.Contains(at) {
			continue
		}
		matched = append(matched, r)
	}
	return matched
}

// ResolveSurgeMultiplier takes the highest multiplier among matching rules
// (1.0 when none match) and clamps it once to [0.1, safeguardCap]. A rule
// below 1.0 only counts when it is flagged as demand suppression.
func ResolveSurgeMultiplier(req FareRequest, at TimeOfDay, rules []SurgeRule, safeguardCap decimal.Decimal) decimal.Decimal {
	return composeSurge(MatchSurgeRules(req, at, rules), safeguardCap)
}

func composeSurge(matched []SurgeRule, safeguardCap decimal.Decimal) decimal.Decimal {
	m := one
	for i, r := range matched {
		v := r.Multiplier
		if v.LessThan(one) && !r.DemandSuppression {
			v = one
		}
		if i == 0 || v.GreaterThan(m) {
			m = v
		}
	}
	return decimal.Min(decimal.Max(m, surgeFloor), safeguardCap)
}

func intersects(set, values []string) bool {
	for _, v := range values {
		if contains(set, v) {
			return true
		}
	}
	return false
}
