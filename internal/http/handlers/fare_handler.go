// README: Fare handlers for estimates, quotes, final fares and cancellation fees.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleetfare/internal/modules/pricing"
	"fleetfare/internal/modules/quote"
	"fleetfare/internal/types"
)

type FareHandler struct {
	pricing *pricing.Service
	quotes  *quote.Service
}

func NewFareHandler(pricingSvc *pricing.Service, quoteSvc *quote.Service) *FareHandler {
	return &FareHandler{pricing: pricingSvc, quotes: quoteSvc}
}

type pointReq struct {
	Lat float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng float64 `json:"lng" binding:"gte=-180,lte=180"`
}

func (p *pointReq) point() types.Point {
	if p == nil {
		return types.Point{}
	}
	return types.Point{Lat: p.Lat, Lng: p.Lng}
}

type estimateReq struct {
	LocationID    string     `json:"location_id" binding:"required"`
	VehicleType   string     `json:"vehicle_type" binding:"required"`
	DistanceKm    float64    `json:"distance_km"`
	DurationMin   float64    `json:"duration_min"`
	Origin        *pointReq  `json:"origin"`
	Destination   *pointReq  `json:"destination"`
	PickupZoneID  string     `json:"pickup_zone_id"`
	DropoffZoneID string     `json:"dropoff_zone_id"`
	RequestedAt   *time.Time `json:"requested_at"`
}

type quoteResp struct {
	QuoteID   types.ID  `json:"quote_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Fare      fareJSON  `json:"fare"`
}

func toQuoteResp(q quote.Quote) quoteResp {
	return quoteResp{QuoteID: q.ID, ExpiresAt: q.ExpiresAt, Fare: toFareJSON(q.Breakdown)}
}

func (h *FareHandler) Estimate(c *gin.Context) {
	var req estimateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	cmd := quote.EstimateCommand{
		LocationID:    types.ID(req.LocationID),
		VehicleType:   pricing.VehicleType(req.VehicleType),
		DistanceKm:    req.DistanceKm,
		DurationMin:   req.DurationMin,
		Origin:        req.Origin.point(),
		Destination:   req.Destination.point(),
		PickupZoneID:  req.PickupZoneID,
		DropoffZoneID: req.DropoffZoneID,
	}
	if req.RequestedAt != nil {
		cmd.RequestedAt = *req.RequestedAt
	}
	q, err := h.quotes.Estimate(c.Request.Context(), cmd)
	if err != nil {
		writeFareError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toQuoteResp(q))
}

func (h *FareHandler) GetQuote(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing quote id")
		return
	}
	q, err := h.quotes.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeFareError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toQuoteResp(q))
}

type finalReq struct {
	QuoteID       string     `json:"quote_id"`
	TripID        string     `json:"trip_id" binding:"required"`
	LocationID    string     `json:"location_id" binding:"required_without=QuoteID"`
	VehicleType   string     `json:"vehicle_type" binding:"required_without=QuoteID"`
	DistanceKm    float64    `json:"distance_km"`
	DurationMin   float64    `json:"duration_min"`
	WaitMin       float64    `json:"wait_min"`
	PickupZoneID  string     `json:"pickup_zone_id"`
	DropoffZoneID string     `json:"dropoff_zone_id"`
	RequestedAt   *time.Time `json:"requested_at"`
}

type finalResp struct {
	TripID      string   `json:"trip_id"`
	QuoteID     types.ID `json:"quote_id,omitempty"`
	QuotedTotal string   `json:"quoted_total,omitempty"`
	Fare        fareJSON `json:"fare"`
}

func (h *FareHandler) Final(c *gin.Context) {
	var req finalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	fareReq := pricing.FareRequest{
		LocationID:    types.ID(req.LocationID),
		VehicleType:   pricing.VehicleType(req.VehicleType),
		DistanceKm:    req.DistanceKm,
		DurationMin:   req.DurationMin,
		WaitMin:       req.WaitMin,
		PickupZoneID:  req.PickupZoneID,
		DropoffZoneID: req.DropoffZoneID,
	}
	if req.RequestedAt != nil {
		fareReq.RequestedAt = *req.RequestedAt
	}
	f, err := h.quotes.Finalize(c.Request.Context(), quote.FinalizeCommand{
		QuoteID: types.ID(req.QuoteID),
		TripID:  req.TripID,
		Request: fareReq,
	})
	if err != nil {
		writeFareError(c, err)
		return
	}
	resp := finalResp{TripID: f.TripID, QuoteID: f.QuoteID, Fare: toFareJSON(f.Breakdown)}
	if f.QuotedTotal != nil {
		resp.QuotedTotal = money(*f.QuotedTotal)
	}
	writeJSON(c, http.StatusOK, resp)
}

type cancellationReq struct {
	LocationID  string `json:"location_id" binding:"required"`
	VehicleType string `json:"vehicle_type" binding:"required"`
}

func (h *FareHandler) Cancellation(c *gin.Context) {
	var req cancellationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	b, err := h.pricing.ComputeCancellationFee(pricing.CancellationRequest{
		LocationID:  types.ID(req.LocationID),
		VehicleType: pricing.VehicleType(req.VehicleType),
	})
	if err != nil {
		writeFareError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"currency":            b.Currency,
		"cancel_fee":          money(b.CancelFee),
		"tax_amount":          money(b.TaxAmount),
		"total_rider_price":   money(b.TotalRiderPrice),
		"platform_commission": money(b.PlatformCommission),
		"driver_payout":       money(b.DriverPayout),
	})
}
