package pricing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleSheet = `
locations:
  - id: nyc
    name: New York
    country: US
    currency: USD
    timezone: America/New_York
  - id: closed
    currency: EUR
    active: false
rate_cards:
  - location_id: nyc
    vehicle_type: sedan
    base_fare: 2.50
    rate_per_km: 1.50
    rate_per_minute: 0.25
    min_fare: "7.00"
    wait_rate_per_minute: 0.40
    grace_minutes: 3
    cancel_fee: 5
    commission_pct: 25
    tax_pct: 5
    marketplace_fee: 1.50
    safeguard_multiplier_cap: 3
    night_surcharge:
      multiplier: 1.3
      active: true
      start: "23:00"
      end: "05:00"
    tiers:
      - up_to_km: 5
        rate: 2.00
      - rate: 1.20
zone_fees:
  - id: jfk
    location_id: nyc
    zone_id: airport-jfk
    amount: 5.00
    active: true
surge_rules:
  - id: rush
    name: Morning rush
    multiplier: 1.6
    location_ids: [nyc]
    start: "07:00"
    end: "10:00"
    active: true
`

func TestParseSnapshotYAML(t *testing.T) {
	s, err := ParseSnapshotYAML([]byte(sampleSheet))
	if err != nil {
		t.Fatalf("ParseSnapshotYAML: %v", err)
	}

	loc, err := s.GetLocation("nyc")
	if err != nil {
		t.Fatalf("GetLocation: %v", err)
	}
	if loc.Currency != "USD" || loc.tz == nil {
		t.Errorf("location = %+v", loc)
	}
	if _, err := s.GetLocation("closed"); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("inactive location: expected ErrConfigNotFound, got %v", err)
	}

	card, err := s.GetRateCard("nyc", "sedan")
	if err != nil {
		t.Fatalf("GetRateCard: %v", err)
	}
	assertDecimal(t, "BaseFare", card.BaseFare, "2.50")
	assertDecimal(t, "MinFare", card.MinFare, "7.00")
	assertDecimal(t, "night multiplier", card.NightSurcharge.Multiplier, "1.3")
	if card.NightSurcharge.Window.String() != "23:00-05:00" {
		t.Errorf("night window = %s", card.NightSurcharge.Window)
	}
	if len(card.Tiers) != 2 || card.Tiers[0].UpToKm != 5 || !card.Tiers[1].Unbounded() {
		t.Errorf("tiers = %+v", card.Tiers)
	}

	rules, _ := s.ListActiveSurgeRules("nyc")
	if len(rules) != 1 || rules[0].Window.String() != "07:00-10:00" {
		t.Errorf("surge rules = %+v", rules)
	}
	fees, _ := s.ListActiveZoneFees("nyc")
	if len(fees) != 1 || !fees[0].Window.Contains(MustTimeOfDay("03:00")) {
		t.Errorf("zone fees = %+v", fees)
	}
}

func TestParseSnapshotYAMLInvalid(t *testing.T) {
	tests := []struct {
		name  string
		sheet string
	}{
		{"malformed yaml", "locations: [:"},
		{"no locations", "rate_cards: []"},
		{"lowercase currency", "locations:\n  - id: a\n    currency: usd\n"},
		{"non-numeric rate", "locations:\n  - id: a\n    currency: USD\nrate_cards:\n  - location_id: a\n    vehicle_type: x\n    base_fare: cheap\n"},
		{"non-numeric night multiplier", "locations:\n  - id: a\n    currency: USD\nrate_cards:\n  - location_id: a\n    vehicle_type: x\n    night_surcharge:\n      multiplier: \"1.3x\"\n      active: true\n      start: \"23:00\"\n      end: \"05:00\"\n"},
		{"bad window", "locations:\n  - id: a\n    currency: USD\nsurge_rules:\n  - id: r\n    multiplier: 2\n    start: \"25:00\"\n    end: \"01:00\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSnapshotYAML([]byte(tt.sheet)); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSheetDecimalsNeverPanic(t *testing.T) {
	card := sheetRateCard{
		LocationID:     "a",
		VehicleType:    "x",
		BaseFare:       "2.50",
		NightSurcharge: sheetNight{Multiplier: "1.3x"},
	}
	if _, err := card.toRateCard(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("rate card: expected ErrInvalidConfig, got %v", err)
	}

	tiered := sheetRateCard{LocationID: "a", VehicleType: "x", Tiers: []sheetTier{{Rate: "one"}}}
	if _, err := tiered.toRateCard(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("tier: expected ErrInvalidConfig, got %v", err)
	}

	sheet := rateSheet{
		Locations:  []sheetLocation{{ID: "a", Currency: "USD"}},
		ZoneFees:   []sheetZoneFee{{ID: "z", LocationID: "a", ZoneID: "z1", Amount: "5 USD"}},
		SurgeRules: []sheetSurgeRule{{ID: "r", Multiplier: "2x"}},
	}
	if _, err := sheet.toSnapshotData(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zone fee: expected ErrInvalidConfig, got %v", err)
	}
	sheet.ZoneFees = nil
	if _, err := sheet.toSnapshotData(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("surge rule: expected ErrInvalidConfig, got %v", err)
	}
}

func TestFileLoaderBadSheetKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	if err := os.WriteFile(path, []byte(sampleSheet), 0o600); err != nil {
		t.Fatalf("write sheet: %v", err)
	}
	loader := FileLoader{Path: path}
	first, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	holder := NewSnapshotHolder(first)

	broken := strings.Replace(sampleSheet, "multiplier: 1.3", "multiplier: 1.3x", 1)
	if err := os.WriteFile(path, []byte(broken), 0o600); err != nil {
		t.Fatalf("write sheet: %v", err)
	}
	if err := holder.Refresh(context.Background(), loader); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if holder.Snapshot() != first {
		t.Error("failed refresh replaced the snapshot")
	}
}

func TestFileLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	if err := os.WriteFile(path, []byte(sampleSheet), 0o600); err != nil {
		t.Fatalf("write sheet: %v", err)
	}

	s, err := FileLoader{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	svc := NewService(NewSnapshotHolder(s), nil)
	b, err := svc.ComputeFare(exampleRequest(8, 10))
	if err != nil {
		t.Fatalf("ComputeFare: %v", err)
	}
	// 2.50 + (5*2.00 + 3*1.20) + 10*0.25 at noon UTC (08:00 in New York, rush hour x1.6)
	assertDecimal(t, "SurgeMultiplier", b.SurgeMultiplier, "1.6")
	assertDecimal(t, "Fare", b.Fare, "29.76")

	if _, err := (FileLoader{Path: filepath.Join(t.TempDir(), "missing.yaml")}).Load(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}
