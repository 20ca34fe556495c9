// README: Pricing service composes rate card, tiers, surcharges and surge into a fare breakdown.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fleetfare/internal/observability"
	"fleetfare/internal/types"
)

type Service struct {
	source ConfigSource
	logger *zap.Logger
}

func NewService(source ConfigSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, logger: logger}
}

// ComputeFare prices a trip. It has no side effects on configuration and
// returns either a complete breakdown or an error, never both.
func (s *Service) ComputeFare(req FareRequest) (FareBreakdown, error) {
	start := time.Now()
	b, err := s.computeFare(req)
	observability.FaresComputedTotal.WithLabelValues("fare", observability.Outcome(err)).Inc()
	observability.FareComputeDuration.WithLabelValues("fare").Observe(time.Since(start).Seconds())
	if err != nil {
		return FareBreakdown{}, err
	}
	observability.SurgeMultiplierApplied.Observe(b.SurgeMultiplier.InexactFloat64())
	return b, nil
}

// fareTerms holds the unrounded amounts of one computation.
type fareTerms struct {
	baseFare       decimal.Decimal
	distanceCharge decimal.Decimal
	timeCharge     decimal.Decimal
	waitCharge     decimal.Decimal
	surcharges     Surcharges
	surge          decimal.Decimal
	rawFare        decimal.Decimal
	fare           decimal.Decimal
	marketplaceFee decimal.Decimal
	preTaxFare     decimal.Decimal
	tax            decimal.Decimal
	total          decimal.Decimal
	commission     decimal.Decimal
}

func (s *Service) computeFare(req FareRequest) (FareBreakdown, error) {
	if err := req.Validate(); err != nil {
		return FareBreakdown{}, err
	}

	cfg := s.source.Current()
	loc, err := cfg.GetLocation(req.LocationID)
	if err != nil {
		return FareBreakdown{}, err
	}
	card, err := cfg.GetRateCard(req.LocationID, req.VehicleType)
	if err != nil {
		return FareBreakdown{}, err
	}
	zoneFees, err := cfg.ListActiveZoneFees(req.LocationID)
	if err != nil {
		return FareBreakdown{}, fmt.Errorf("list zone fees: %w", err)
	}
	rules, err := cfg.ListActiveSurgeRules(req.LocationID)
	if err != nil {
		return FareBreakdown{}, fmt.Errorf("list surge rules: %w", err)
	}

	var t fareTerms
	t.baseFare = card.BaseFare
	t.distanceCharge, err = ComputeDistanceCharge(req.DistanceKm, card.Tiers, card.RatePerKm)
	if err != nil {
		return FareBreakdown{}, fmt.Errorf("rate card %s/%s: %w", card.LocationID, card.VehicleType, err)
	}
	t.timeCharge = decimal.NewFromFloat(req.DurationMin).Mul(card.RatePerMinute)

	billableWait := decimal.NewFromFloat(req.WaitMin).Sub(decimal.NewFromFloat(card.GraceMinutes))
	t.waitCharge = decimal.Max(billableWait, decimal.Zero).Mul(card.WaitRatePerMinute)

	movement := t.baseFare.Add(t.distanceCharge).Add(t.timeCharge)

	at := TimeOfDayOf(loc.LocalTime(req.RequestedAt))
	t.surcharges = ComputeSurcharges(req, at, card, movement, zoneFees)
	movement = movement.Add(t.surcharges.NightAdd)

	t.surge = ResolveSurgeMultiplier(req, at, rules, card.SafeguardMultiplierCap)
	t.rawFare = movement.Mul(t.surge).Add(t.waitCharge)
	t.fare = decimal.Max(t.rawFare, card.MinFare)

	t.marketplaceFee = card.MarketplaceFee
	t.preTaxFare = t.fare.Add(t.surcharges.ZoneAdd).Add(t.marketplaceFee)
	t.tax = percentOf(t.preTaxFare, card.TaxPct)
	t.total = t.preTaxFare.Add(t.tax)
	t.commission = percentOf(t.fare, card.CommissionPct)

	s.logger.Debug("fare computed",
		zap.String("location_id", string(req.LocationID)),
		zap.String("vehicle_type", string(req.VehicleType)),
		zap.Stringer("time_of_day", at),
		zap.Bool("night", t.surcharges.NightActive),
		zap.String("surge", t.surge.String()),
		zap.String("fare", t.fare.String()),
	)
	return newBreakdown(loc.Currency, t), nil
}

// newBreakdown rounds every amount half-up to cents, each from its own
// unrounded value, so displayed parts need not sum to the totals. The driver
// payout is derived from the rounded fare and commission so the two always
// add up to the fare exactly.
func newBreakdown(currency string, t fareTerms) FareBreakdown {
	fare := types.RoundCents(t.fare)
	commission := types.RoundCents(t.commission)
	marketplace := types.RoundCents(t.marketplaceFee)
	return FareBreakdown{
		Currency:           currency,
		BaseFare:           types.RoundCents(t.baseFare),
		DistanceCharge:     types.RoundCents(t.distanceCharge),
		TimeCharge:         types.RoundCents(t.timeCharge),
		WaitCharge:         types.RoundCents(t.waitCharge),
		NightAdd:           types.RoundCents(t.surcharges.NightAdd),
		ZoneAdd:            types.RoundCents(t.surcharges.ZoneAdd),
		SurchargeTotal:     types.RoundCents(t.surcharges.NightAdd.Add(t.surcharges.ZoneAdd)),
		SurgeMultiplier:    t.surge,
		Fare:               fare,
		MinFareApplied:     t.fare.GreaterThan(t.rawFare),
		MarketplaceFee:     marketplace,
		PreTaxFare:         types.RoundCents(t.preTaxFare),
		TaxAmount:          types.RoundCents(t.tax),
		TotalRiderPrice:    types.RoundCents(t.total),
		CommissionAmount:   commission,
		PlatformCommission: commission.Add(marketplace),
		DriverPayout:       fare.Sub(commission),
	}
}

// ComputeCancellationFee prices a rider cancellation from the rate card's
// cancel fee. Tax and the commission split follow the same rules as a fare;
// no marketplace fee is charged.
func (s *Service) ComputeCancellationFee(req CancellationRequest) (CancellationBreakdown, error) {
	start := time.Now()
	b, err := s.computeCancellation(req)
	observability.FaresComputedTotal.WithLabelValues("cancellation", observability.Outcome(err)).Inc()
	observability.FareComputeDuration.WithLabelValues("cancellation").Observe(time.Since(start).Seconds())
	return b, err
}

func (s *Service) computeCancellation(req CancellationRequest) (CancellationBreakdown, error) {
	if req.LocationID == "" || req.VehicleType == "" {
		return CancellationBreakdown{}, fmt.Errorf("%w: location_id and vehicle_type are required", ErrInvalidInput)
	}
	cfg := s.source.Current()
	loc, err := cfg.GetLocation(req.LocationID)
	if err != nil {
		return CancellationBreakdown{}, err
	}
	card, err := cfg.GetRateCard(req.LocationID, req.VehicleType)
	if err != nil {
		return CancellationBreakdown{}, err
	}

	fee := types.RoundCents(card.CancelFee)
	commission := types.RoundCents(percentOf(card.CancelFee, card.CommissionPct))
	tax := percentOf(card.CancelFee, card.TaxPct)
	return CancellationBreakdown{
		Currency:           loc.Currency,
		CancelFee:          fee,
		TaxAmount:          types.RoundCents(tax),
		TotalRiderPrice:    types.RoundCents(card.CancelFee.Add(tax)),
		PlatformCommission: commission,
		DriverPayout:       fee.Sub(commission),
	}, nil
}

// RateCard resolves a card from the current snapshot.
func (s *Service) RateCard(locationID types.ID, vehicleType VehicleType) (RateCard, error) {
	cfg := s.source.Current()
	if _, err := cfg.GetLocation(locationID); err != nil {
		return RateCard{}, err
	}
	return cfg.GetRateCard(locationID, vehicleType)
}

func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}
