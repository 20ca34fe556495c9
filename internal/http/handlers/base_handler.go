// README: Base handler utilities (JSON helpers, error mapping, money formatting).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fleetfare/internal/modules/pricing"
	"fleetfare/internal/modules/quote"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeFareError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pricing.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, pricing.ErrConfigNotFound), errors.Is(err, quote.ErrQuoteNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, pricing.ErrTierRangeExceeded), errors.Is(err, pricing.ErrInvalidConfig):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, quote.ErrRouteUnavailable):
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// money renders an amount with exactly two decimals.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type fareJSON struct {
	Currency           string `json:"currency"`
	BaseFare           string `json:"base_fare"`
	DistanceCharge     string `json:"distance_charge"`
	TimeCharge         string `json:"time_charge"`
	WaitCharge         string `json:"wait_charge"`
	NightAdd           string `json:"night_add"`
	ZoneAdd            string `json:"zone_add"`
	SurchargeTotal     string `json:"surcharge_total"`
	SurgeMultiplier    string `json:"surge_multiplier"`
	Fare               string `json:"fare"`
	MinFareApplied     bool   `json:"min_fare_applied"`
	MarketplaceFee     string `json:"marketplace_fee"`
	PreTaxFare         string `json:"pre_tax_fare"`
	TaxAmount          string `json:"tax_amount"`
	TotalRiderPrice    string `json:"total_rider_price"`
	PlatformCommission string `json:"platform_commission"`
	DriverPayout       string `json:"driver_payout"`
}

func toFareJSON(b pricing.FareBreakdown) fareJSON {
	return fareJSON{
		Currency:           b.Currency,
		BaseFare:           money(b.BaseFare),
		DistanceCharge:     money(b.DistanceCharge),
		TimeCharge:         money(b.TimeCharge),
		WaitCharge:         money(b.WaitCharge),
		NightAdd:           money(b.NightAdd),
		ZoneAdd:            money(b.ZoneAdd),
		SurchargeTotal:     money(b.SurchargeTotal),
		SurgeMultiplier:    b.SurgeMultiplier.String(),
		Fare:               money(b.Fare),
		MinFareApplied:     b.MinFareApplied,
		MarketplaceFee:     money(b.MarketplaceFee),
		PreTaxFare:         money(b.PreTaxFare),
		TaxAmount:          money(b.TaxAmount),
		TotalRiderPrice:    money(b.TotalRiderPrice),
		PlatformCommission: money(b.PlatformCommission),
		DriverPayout:       money(b.DriverPayout),
	}
}
