// README: Read-only pricing configuration views and manual snapshot refresh for operators.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleetfare/internal/modules/pricing"
	"fleetfare/internal/types"
)

type PricingHandler struct {
	pricing   *pricing.Service
	snapshots *pricing.SnapshotHolder
	loader    pricing.Loader
}

func NewPricingHandler(svc *pricing.Service, snapshots *pricing.SnapshotHolder, loader pricing.Loader) *PricingHandler {
	return &PricingHandler{pricing: svc, snapshots: snapshots, loader: loader}
}

type tierJSON struct {
	// UpToKm is null for the unbounded final tier.
	UpToKm *float64 `json:"up_to_km"`
	Rate   string   `json:"rate"`
}

type rateCardJSON struct {
	LocationID             types.ID   `json:"location_id"`
	VehicleType            string     `json:"vehicle_type"`
	BaseFare               string     `json:"base_fare"`
	RatePerKm              string     `json:"rate_per_km"`
	RatePerMinute          string     `json:"rate_per_minute"`
	MinFare                string     `json:"min_fare"`
	WaitRatePerMinute      string     `json:"wait_rate_per_minute"`
	GraceMinutes           float64    `json:"grace_minutes"`
	CancelFee              string     `json:"cancel_fee"`
	CommissionPct          string     `json:"commission_pct"`
	TaxPct                 string     `json:"tax_pct"`
	MarketplaceFee         string     `json:"marketplace_fee"`
	NightMultiplier        string     `json:"night_multiplier"`
	NightActive            bool       `json:"night_active"`
	NightWindow            string     `json:"night_window"`
	SafeguardMultiplierCap string     `json:"safeguard_multiplier_cap"`
	Tiers                  []tierJSON `json:"tiers"`
}

func toRateCardJSON(c pricing.RateCard) rateCardJSON {
	out := rateCardJSON{
		LocationID:             c.LocationID,
		VehicleType:            string(c.VehicleType),
		BaseFare:               money(c.BaseFare),
		RatePerKm:              c.RatePerKm.String(),
		RatePerMinute:          c.RatePerMinute.String(),
		MinFare:                money(c.MinFare),
		WaitRatePerMinute:      c.WaitRatePerMinute.String(),
		GraceMinutes:           c.GraceMinutes,
		CancelFee:              money(c.CancelFee),
		CommissionPct:          c.CommissionPct.String(),
		TaxPct:                 c.TaxPct.String(),
		MarketplaceFee:         money(c.MarketplaceFee),
		NightMultiplier:        c.NightSurcharge.Multiplier.String(),
		NightActive:            c.NightSurcharge.Active,
		NightWindow:            c.NightSurcharge.Window.String(),
		SafeguardMultiplierCap: c.SafeguardMultiplierCap.String(),
		Tiers:                  make([]tierJSON, 0, len(c.Tiers)),
	}
	for _, t := range c.Tiers {
		tj := tierJSON{Rate: t.Rate.String()}
		if !t.Unbounded() {
			upTo := t.UpToKm
			tj.UpToKm = &upTo
		}
		out.Tiers = append(out.Tiers, tj)
	}
	return out
}

func (h *PricingHandler) GetRateCard(c *gin.Context) {
	card, err := h.pricing.RateCard(types.ID(c.Param("id")), pricing.VehicleType(c.Param("vehicle")))
	if err != nil {
		writeFareError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRateCardJSON(card))
}

func (h *PricingHandler) ListRateCards(c *gin.Context) {
	id := types.ID(c.Param("id"))
	snap := h.snapshots.Snapshot()
	if _, err := snap.GetLocation(id); err != nil {
		writeFareError(c, err)
		return
	}
	cards := snap.RateCards(id)
	out := make([]rateCardJSON, 0, len(cards))
	for _, card := range cards {
		out = append(out, toRateCardJSON(card))
	}
	writeJSON(c, http.StatusOK, gin.H{"location_id": id, "rate_cards": out})
}

func (h *PricingHandler) Refresh(c *gin.Context) {
	if err := h.snapshots.Refresh(c.Request.Context(), h.loader); err != nil {
		writeFareError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"loaded_at": h.snapshots.Snapshot().LoadedAt().UTC().Format(time.RFC3339)})
}
