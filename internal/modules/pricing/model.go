// README: Pricing data model: locations, rate cards, tiers, zone fees, surge rules, requests and breakdowns.
package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"fleetfare/internal/types"
)

type VehicleType string

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	// surgeFloor keeps demand-suppression rules from zeroing a fare.
	surgeFloor = decimal.RequireFromString("0.1")
)

type Location struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Country  string   `json:"country"`
	Currency string   `json:"currency"`
	Timezone string   `json:"timezone,omitempty"`
	Active   bool     `json:"active"`

	tz *time.Location
}

// LocalTime converts t to the location's wall clock. Without a resolved
// timezone t is returned unchanged.
func (l Location) LocalTime(t time.Time) time.Time {
	if l.tz == nil {
		return t
	}
	return t.In(l.tz)
}

func (l *Location) resolveTimezone() error {
	if l.Timezone == "" {
		return nil
	}
	tz, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return fmt.Errorf("%w: location %s timezone %q: %v", ErrInvalidConfig, l.ID, l.Timezone, err)
	}
	l.tz = tz
	return nil
}

func (l Location) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("%w: location id is empty", ErrInvalidConfig)
	}
	if len(l.Currency) != 3 {
		return fmt.Errorf("%w: location %s currency %q is not an ISO 4217 code", ErrInvalidConfig, l.ID, l.Currency)
	}
	return nil
}

type NightSurcharge struct {
	// Multiplier is stored as a factor >= 1.0 (1.3 means +30%).
	Multiplier decimal.Decimal `json:"multiplier"`
	Active     bool            `json:"active"`
	Window     Window          `json:"window"`
}

// DistanceTier prices the band (previous UpToKm, UpToKm]. UpToKm is +Inf for
// the unbounded final tier.
type DistanceTier struct {
	UpToKm float64         `json:"up_to_km"`
	Rate   decimal.Decimal `json:"rate"`
}

func (t DistanceTier) Unbounded() bool {
	return math.IsInf(t.UpToKm, 1)
}

type RateCard struct {
	LocationID             types.ID        `json:"location_id"`
	VehicleType            VehicleType     `json:"vehicle_type"`
	BaseFare               decimal.Decimal `json:"base_fare"`
	RatePerKm              decimal.Decimal `json:"rate_per_km"`
	RatePerMinute          decimal.Decimal `json:"rate_per_minute"`
	MinFare                decimal.Decimal `json:"min_fare"`
	WaitRatePerMinute      decimal.Decimal `json:"wait_rate_per_minute"`
	GraceMinutes           float64         `json:"grace_minutes"`
	CancelFee              decimal.Decimal `json:"cancel_fee"`
	CommissionPct          decimal.Decimal `json:"commission_pct"`
	TaxPct                 decimal.Decimal `json:"tax_pct"`
	MarketplaceFee         decimal.Decimal `json:"marketplace_fee"`
	NightSurcharge         NightSurcharge  `json:"night_surcharge"`
	SafeguardMultiplierCap decimal.Decimal `json:"safeguard_multiplier_cap"`
	Tiers                  []DistanceTier  `json:"tiers,omitempty"`
}

func (c RateCard) Validate() error {
	key := fmt.Sprintf("rate card %s/%s", c.LocationID, c.VehicleType)
	if c.LocationID == "" || c.VehicleType == "" {
		return fmt.Errorf("%w: %s: location and vehicle type are required", ErrInvalidConfig, key)
	}
	for name, v := range map[string]decimal.Decimal{
		"base_fare":            c.BaseFare,
		"rate_per_km":          c.RatePerKm,
		"rate_per_minute":      c.RatePerMinute,
		"min_fare":             c.MinFare,
		"wait_rate_per_minute": c.WaitRatePerMinute,
		"cancel_fee":           c.CancelFee,
		"marketplace_fee":      c.MarketplaceFee,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s: %s must be >= 0", ErrInvalidConfig, key, name)
		}
	}
	if c.GraceMinutes < 0 || math.IsNaN(c.GraceMinutes) {
		return fmt.Errorf("%w: %s: grace_minutes must be >= 0", ErrInvalidConfig, key)
	}
	if !isPercent(c.CommissionPct) {
		return fmt.Errorf("%w: %s: commission_pct must be within [0,100]", ErrInvalidConfig, key)
	}
	if !isPercent(c.TaxPct) {
		return fmt.Errorf("%w: %s: tax_pct must be within [0,100]", ErrInvalidConfig, key)
	}
	if c.SafeguardMultiplierCap.LessThan(one) {
		return fmt.Errorf("%w: %s: safeguard_multiplier_cap must be >= 1.0", ErrInvalidConfig, key)
	}
	if c.NightSurcharge.Active && c.NightSurcharge.Multiplier.LessThan(one) {
		return fmt.Errorf("%w: %s: night surcharge multiplier must be >= 1.0", ErrInvalidConfig, key)
	}
	if !c.NightSurcharge.Window.Valid() {
		return fmt.Errorf("%w: %s: night surcharge window out of range", ErrInvalidConfig, key)
	}
	if err := ValidateTiers(c.Tiers); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func isPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}

type ZoneFee struct {
	ID         string          `json:"id"`
	LocationID types.ID        `json:"location_id"`
	ZoneID     string          `json:"zone_id"`
	Amount     decimal.Decimal `json:"amount"`
	Active     bool            `json:"active"`
	Window     Window          `json:"window"`
}

func (f ZoneFee) Validate() error {
	if f.ZoneID == "" {
		return fmt.Errorf("%w: zone fee %s: zone id is empty", ErrInvalidConfig, f.ID)
	}
	if f.Amount.IsNegative() {
		return fmt.Errorf("%w: zone fee %s: amount must be >= 0", ErrInvalidConfig, f.ID)
	}
	if !f.Window.Valid() {
		return fmt.Errorf("%w: zone fee %s: window out of range", ErrInvalidConfig, f.ID)
	}
	return nil
}

type SurgeRule struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	LocationIDs  []types.ID      `json:"location_ids,omitempty"`
	VehicleTypes []VehicleType   `json:"vehicle_types,omitempty"`
	ZoneIDs      []string        `json:"zone_ids,omitempty"`
	Window       Window          `json:"window"`
	Active       bool            `json:"active"`
	// DemandSuppression allows a multiplier below 1.0.
	DemandSuppression bool `json:"demand_suppression"`
}

func (r SurgeRule) Validate() error {
	if !r.Multiplier.IsPositive() {
		return fmt.Errorf("%w: surge rule %s: multiplier must be > 0", ErrInvalidConfig, r.ID)
	}
	if !r.Window.Valid() {
		return fmt.Errorf("%w: surge rule %s: window out of range", ErrInvalidConfig, r.ID)
	}
	return nil
}

// appliesTo reports whether the rule is scoped to the location (an empty
// set means every location).
func (r SurgeRule) appliesTo(locationID types.ID) bool {
	return len(r.LocationIDs) == 0 || contains(r.LocationIDs, locationID)
}

type FareRequest struct {
	LocationID    types.ID    `json:"location_id"`
	VehicleType   VehicleType `json:"vehicle_type"`
	DistanceKm    float64     `json:"distance_km"`
	DurationMin   float64     `json:"duration_min"`
	WaitMin       float64     `json:"wait_min"`
	RequestedAt   time.Time   `json:"requested_at"`
	PickupZoneID  string      `json:"pickup_zone_id,omitempty"`
	DropoffZoneID string      `json:"dropoff_zone_id,omitempty"`
}

func (r FareRequest) Validate() error {
	if r.LocationID == "" {
		return fmt.Errorf("%w: location_id is required", ErrInvalidInput)
	}
	if r.VehicleType == "" {
		return fmt.Errorf("%w: vehicle_type is required", ErrInvalidInput)
	}
	for name, v := range map[string]float64{
		"distance_km":  r.DistanceKm,
		"duration_min": r.DurationMin,
		"wait_min":     r.WaitMin,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be a finite value >= 0", ErrInvalidInput, name)
		}
	}
	if r.RequestedAt.IsZero() {
		return fmt.Errorf("%w: requested_at is required", ErrInvalidInput)
	}
	return nil
}

// zones returns the non-empty pickup/drop-off zones of the trip.
func (r FareRequest) zones() []string {
	out := make([]string, 0, 2)
	if r.PickupZoneID != "" {
		out = append(out, r.PickupZoneID)
	}
	if r.DropoffZoneID != "" && r.DropoffZoneID != r.PickupZoneID {
		out = append(out, r.DropoffZoneID)
	}
	return out
}

// FareBreakdown is the rounded engine output. All amounts are in Currency.
type FareBreakdown struct {
	Currency           string          `json:"currency"`
	BaseFare           decimal.Decimal `json:"base_fare"`
	DistanceCharge     decimal.Decimal `json:"distance_charge"`
	TimeCharge         decimal.Decimal `json:"time_charge"`
	WaitCharge         decimal.Decimal `json:"wait_charge"`
	NightAdd           decimal.Decimal `json:"night_add"`
	ZoneAdd            decimal.Decimal `json:"zone_add"`
	SurchargeTotal     decimal.Decimal `json:"surcharge_total"`
	SurgeMultiplier    decimal.Decimal `json:"surge_multiplier"`
	Fare               decimal.Decimal `json:"fare"`
	MinFareApplied     bool            `json:"min_fare_applied"`
	MarketplaceFee     decimal.Decimal `json:"marketplace_fee"`
	PreTaxFare         decimal.Decimal `json:"pre_tax_fare"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	TotalRiderPrice    decimal.Decimal `json:"total_rider_price"`
	CommissionAmount   decimal.Decimal `json:"commission_amount"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	DriverPayout       decimal.Decimal `json:"driver_payout"`
}

func (b FareBreakdown) Total() types.Money {
	return types.Money{Amount: b.TotalRiderPrice, Currency: b.Currency}
}

type CancellationRequest struct {
	LocationID  types.ID    `json:"location_id"`
	VehicleType VehicleType `json:"vehicle_type"`
}

type CancellationBreakdown struct {
	Currency           string          `json:"currency"`
	CancelFee          decimal.Decimal `json:"cancel_fee"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	TotalRiderPrice    decimal.Decimal `json:"total_rider_price"`
	PlatformCommission decimal.Decimal `json:"platform_commission"`
	DriverPayout       decimal.Decimal `json:"driver_payout"`
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
