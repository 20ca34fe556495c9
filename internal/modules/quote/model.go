// README: Quote domain model: estimate/finalize commands, stored quotes and fare events.
package quote

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fleetfare/internal/modules/pricing"
	"fleetfare/internal/types"
)

var (
	ErrQuoteNotFound    = errors.New("quote not found")
	ErrRouteUnavailable = errors.New("route lookup unavailable")
)

const (
	EventFareQuoted    = "fare.quoted"
	EventFareFinalized = "fare.finalized"
)

// Quote is a priced estimate a rider can accept until ExpiresAt.
type Quote struct {
	ID        types.ID              `json:"id"`
	Request   pricing.FareRequest   `json:"request"`
	Breakdown pricing.FareBreakdown `json:"breakdown"`
	CreatedAt time.Time             `json:"created_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

type EstimateCommand struct {
	LocationID  types.ID
	VehicleType pricing.VehicleType
	// DistanceKm and DurationMin are looked up from Origin and Destination
	// when both are zero.
	DistanceKm    float64
	DurationMin   float64
	Origin        types.Point
	Destination   types.Point
	PickupZoneID  string
	DropoffZoneID string
	// RequestedAt defaults to now.
	RequestedAt time.Time
}

// FinalizeCommand prices a completed trip. With a QuoteID, fields left empty
// are taken from the quote.
type FinalizeCommand struct {
	QuoteID types.ID
	TripID  string
	Request pricing.FareRequest
}

type FinalFare struct {
	TripID    string                `json:"trip_id,omitempty"`
	QuoteID   types.ID              `json:"quote_id,omitempty"`
	Breakdown pricing.FareBreakdown `json:"breakdown"`
	// QuotedTotal is the rider total promised by the quote, if any.
	QuotedTotal *decimal.Decimal `json:"quoted_total,omitempty"`
}

// Event is published for every issued quote and finalized fare.
type Event struct {
	Type            string              `json:"type"`
	QuoteID         types.ID            `json:"quote_id,omitempty"`
	TripID          string              `json:"trip_id,omitempty"`
	LocationID      types.ID            `json:"location_id"`
	VehicleType     pricing.VehicleType `json:"vehicle_type"`
	Currency        string              `json:"currency"`
	Fare            decimal.Decimal     `json:"fare"`
	TotalRiderPrice decimal.Decimal     `json:"total_rider_price"`
	DriverPayout    decimal.Decimal     `json:"driver_payout"`
	SurgeMultiplier decimal.Decimal     `json:"surge_multiplier"`
	OccurredAt      time.Time           `json:"occurred_at"`
}

func newEvent(kind string, req pricing.FareRequest, b pricing.FareBreakdown, at time.Time) Event {
	return Event{
		Type:            kind,
		LocationID:      req.LocationID,
		VehicleType:     req.VehicleType,
		Currency:        b.Currency,
		Fare:            b.Fare,
		TotalRiderPrice: b.TotalRiderPrice,
		DriverPayout:    b.DriverPayout,
		SurgeMultiplier: b.SurgeMultiplier,
		OccurredAt:      at,
	}
}
