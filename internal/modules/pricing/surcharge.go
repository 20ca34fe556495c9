// README: Night surcharge and zone fee evaluation for a trip's start time.
package pricing

import "github.com/shopspring/decimal"

type Surcharges struct {
	NightActive bool
	// NightAdd is the extra amount the night multiplier adds to the movement subtotal.
	NightAdd decimal.Decimal
	ZoneAdd  decimal.Decimal
}

// ComputeSurcharges evaluates the night window of the rate card and the zone
// fees active at the given time of day. movementSubtotal is base fare plus
// distance and time charges; wait charges and fixed fees are never scaled.
func ComputeSurcharges(req FareRequest, at TimeOfDay, card RateCard, movementSubtotal decimal.Decimal, zoneFees []ZoneFee) Surcharges {
	out := Surcharges{NightAdd: decimal.Zero, ZoneAdd: decimal.Zero}

	night := card.NightSurcharge
	if night.Active && night.Window.Contains(at) && night.Multiplier.GreaterThan(one) {
		out.NightActive = true
		out.NightAdd = movementSubtotal.Mul(night.Multiplier.Sub(one))
	}

	zones := req.zones()
	if len(zones) == 0 {
		return out
	}
	for _, fee := range zoneFees {
		if !fee.Active || !contains(zones, fee.ZoneID) {
			continue
		}
		if fee.LocationID != "" && fee.LocationID != req.LocationID {
			continue
		}
		if !fee.Window.Contains(at) {
			continue
		}
		out.ZoneAdd = out.ZoneAdd.Add(fee.Amount)
	}
	return out
}
