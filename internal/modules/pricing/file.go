// README: YAML rate sheet loader for local runs, the farecalc CLI and tests.
package pricing

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"fleetfare/internal/types"
)

type rateSheet struct {
	Locations  []sheetLocation  `yaml:"locations" validate:"required,min=1,dive"`
	RateCards  []sheetRateCard  `yaml:"rate_cards" validate:"dive"`
	ZoneFees   []sheetZoneFee   `yaml:"zone_fees" validate:"dive"`
	SurgeRules []sheetSurgeRule `yaml:"surge_rules" validate:"dive"`
}

type sheetLocation struct {
	ID       string `yaml:"id" validate:"required"`
	Name     string `yaml:"name"`
	Country  string `yaml:"country"`
	Currency string `yaml:"currency" validate:"required,len=3,uppercase"`
	Timezone string `yaml:"timezone"`
	Active   *bool  `yaml:"active"`
}

type sheetNight struct {
	Multiplier string `yaml:"multiplier" validate:"omitempty,numeric"`
	Active     bool   `yaml:"active"`
	Start      string `yaml:"start"`
	End        string `yaml:"end"`
}

type sheetTier struct {
	// UpToKm is omitted for the unbounded final tier.
	UpToKm *float64 `yaml:"up_to_km" validate:"omitempty,gt=0"`
	Rate   string   `yaml:"rate" validate:"required,numeric"`
}

type sheetRateCard struct {
	LocationID             string      `yaml:"location_id" validate:"required"`
	VehicleType            string      `yaml:"vehicle_type" validate:"required"`
	BaseFare               string      `yaml:"base_fare" validate:"omitempty,numeric"`
	RatePerKm              string      `yaml:"rate_per_km" validate:"omitempty,numeric"`
	RatePerMinute          string      `yaml:"rate_per_minute" validate:"omitempty,numeric"`
	MinFare                string      `yaml:"min_fare" validate:"omitempty,numeric"`
	WaitRatePerMinute      string      `yaml:"wait_rate_per_minute" validate:"omitempty,numeric"`
	GraceMinutes           float64     `yaml:"grace_minutes" validate:"gte=0"`
	CancelFee              string      `yaml:"cancel_fee" validate:"omitempty,numeric"`
	CommissionPct          string      `yaml:"commission_pct" validate:"omitempty,numeric"`
	TaxPct                 string      `yaml:"tax_pct" validate:"omitempty,numeric"`
	MarketplaceFee         string      `yaml:"marketplace_fee" validate:"omitempty,numeric"`
	NightSurcharge         sheetNight  `yaml:"night_surcharge"`
	SafeguardMultiplierCap string      `yaml:"safeguard_multiplier_cap" validate:"omitempty,numeric"`
	Tiers                  []sheetTier `yaml:"tiers" validate:"dive"`
}

type sheetZoneFee struct {
	ID         string `yaml:"id" validate:"required"`
	LocationID string `yaml:"location_id" validate:"required"`
	ZoneID     string `yaml:"zone_id" validate:"required"`
	Amount     string `yaml:"amount" validate:"required,numeric"`
	Active     bool   `yaml:"active"`
	Start      string `yaml:"start"`
	End        string `yaml:"end"`
}

type sheetSurgeRule struct {
	ID                string   `yaml:"id" validate:"required"`
	Name              string   `yaml:"name"`
	Multiplier        string   `yaml:"multiplier" validate:"required,numeric"`
	LocationIDs       []string `yaml:"location_ids"`
	VehicleTypes      []string `yaml:"vehicle_types"`
	ZoneIDs           []string `yaml:"zone_ids"`
	Start             string   `yaml:"start"`
	End               string   `yaml:"end"`
	Active            bool     `yaml:"active"`
	DemandSuppression bool     `yaml:"demand_suppression"`
}

var sheetValidator = validator.New()

// FileLoader reloads a YAML rate sheet from disk on every Load.
type FileLoader struct {
	Path string
}

func (l FileLoader) Load(_ context.Context) (*Snapshot, error) {
	return LoadSnapshotFile(l.Path)
}

func LoadSnapshotFile(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate sheet: %w", err)
	}
	s, err := ParseSnapshotYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func ParseSnapshotYAML(raw []byte) (*Snapshot, error) {
	var sheet rateSheet
	if err := yaml.Unmarshal(raw, &sheet); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := sheetValidator.Struct(sheet); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	data, err := sheet.toSnapshotData()
	if err != nil {
		return nil, err
	}
	return NewSnapshot(data)
}

func (s rateSheet) toSnapshotData() (SnapshotData, error) {
	var data SnapshotData
	for _, l := range s.Locations {
		active := true
		if l.Active != nil {
			active = *l.Active
		}
		data.Locations = append(data.Locations, Location{
			ID:       types.ID(l.ID),
			Name:     l.Name,
			Country:  l.Country,
			Currency: l.Currency,
			Timezone: l.Timezone,
			Active:   active,
		})
	}
	for _, c := range s.RateCards {
		card, err := c.toRateCard()
		if err != nil {
			return data, err
		}
		data.RateCards = append(data.RateCards, card)
	}
	for _, f := range s.ZoneFees {
		w, err := parseSheetWindow(f.Start, f.End)
		if err != nil {
			return data, fmt.Errorf("zone fee %s: %w", f.ID, err)
		}
		var p decimalParser
		fee := ZoneFee{
			ID:         f.ID,
			LocationID: types.ID(f.LocationID),
			ZoneID:     f.ZoneID,
			Amount:     p.parse("amount", f.Amount, "0"),
			Active:     f.Active,
			Window:     w,
		}
		if p.err != nil {
			return data, fmt.Errorf("zone fee %s: %w", f.ID, p.err)
		}
		data.ZoneFees = append(data.ZoneFees, fee)
	}
	for _, r := range s.SurgeRules {
		w, err := parseSheetWindow(r.Start, r.End)
		if err != nil {
			return data, fmt.Errorf("surge rule %s: %w", r.ID, err)
		}
		var p decimalParser
		rule := SurgeRule{
			ID:                r.ID,
			Name:              r.Name,
			Multiplier:        p.parse("multiplier", r.Multiplier, "1"),
			ZoneIDs:           r.ZoneIDs,
			Window:            w,
			Active:            r.Active,
			DemandSuppression: r.DemandSuppression,
		}
		if p.err != nil {
			return data, fmt.Errorf("surge rule %s: %w", r.ID, p.err)
		}
		for _, id := range r.LocationIDs {
			rule.LocationIDs = append(rule.LocationIDs, types.ID(id))
		}
		for _, v := range r.VehicleTypes {
			rule.VehicleTypes = append(rule.VehicleTypes, VehicleType(v))
		}
		data.SurgeRules = append(data.SurgeRules, rule)
	}
	return data, nil
}

func (c sheetRateCard) toRateCard() (RateCard, error) {
	night, err := parseSheetWindow(c.NightSurcharge.Start, c.NightSurcharge.End)
	if err != nil {
		return RateCard{}, fmt.Errorf("rate card %s/%s: %w", c.LocationID, c.VehicleType, err)
	}
	var p decimalParser
	card := RateCard{
		LocationID:        types.ID(c.LocationID),
		VehicleType:       VehicleType(c.VehicleType),
		BaseFare:          p.parse("base_fare", c.BaseFare, "0"),
		RatePerKm:         p.parse("rate_per_km", c.RatePerKm, "0"),
		RatePerMinute:     p.parse("rate_per_minute", c.RatePerMinute, "0"),
		MinFare:           p.parse("min_fare", c.MinFare, "0"),
		WaitRatePerMinute: p.parse("wait_rate_per_minute", c.WaitRatePerMinute, "0"),
		GraceMinutes:      c.GraceMinutes,
		CancelFee:         p.parse("cancel_fee", c.CancelFee, "0"),
		CommissionPct:     p.parse("commission_pct", c.CommissionPct, "0"),
		TaxPct:            p.parse("tax_pct", c.TaxPct, "0"),
		MarketplaceFee:    p.parse("marketplace_fee", c.MarketplaceFee, "0"),
		NightSurcharge: NightSurcharge{
			Multiplier: p.parse("night_surcharge.multiplier", c.NightSurcharge.Multiplier, "1"),
			Active:     c.NightSurcharge.Active,
			Window:     night,
		},
		SafeguardMultiplierCap: p.parse("safeguard_multiplier_cap", c.SafeguardMultiplierCap, "1"),
	}
	for _, t := range c.Tiers {
		tier := DistanceTier{UpToKm: math.Inf(1), Rate: p.parse("tiers.rate", t.Rate, "0")}
		if t.UpToKm != nil {
			tier.UpToKm = *t.UpToKm
		}
		card.Tiers = append(card.Tiers, tier)
	}
	if p.err != nil {
		return RateCard{}, fmt.Errorf("rate card %s/%s: %w", c.LocationID, c.VehicleType, p.err)
	}
	return card, nil
}

// parseSheetWindow treats two empty bounds as the whole day.
func parseSheetWindow(start, end string) (Window, error) {
	if start == "" && end == "" {
		return Window{}, nil
	}
	return ParseWindow(start, end)
}

// decimalParser keeps the first parse failure so a sheet entry can be
// converted field by field and checked once.
type decimalParser struct {
	err error
}

func (p *decimalParser) parse(field, v, def string) decimal.Decimal {
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("%w: %s %q is not a decimal", ErrInvalidConfig, field, v)
		}
		return decimal.Zero
	}
	return d
}
