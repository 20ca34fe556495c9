package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("%s = %s, want %s", name, got.String(), want)
	}
}

// exampleCard is the reference card: base 2.50, 1.50/km, 0.25/min,
// min fare 7.00, 25% commission, 5% tax, 1.50 marketplace fee.
func exampleCard() RateCard {
	return RateCard{
		LocationID:             "nyc",
		VehicleType:            "sedan",
		BaseFare:               d("2.50"),
		RatePerKm:              d("1.50"),
		RatePerMinute:          d("0.25"),
		MinFare:                d("7.00"),
		WaitRatePerMinute:      d("0.40"),
		GraceMinutes:           3,
		CancelFee:              d("5.00"),
		CommissionPct:          d("25"),
		TaxPct:                 d("5"),
		MarketplaceFee:         d("1.50"),
		NightSurcharge:         NightSurcharge{Multiplier: d("1"), Window: Window{}},
		SafeguardMultiplierCap: d("3"),
	}
}

func exampleLocation() Location {
	return Location{ID: "nyc", Name: "New York", Country: "US", Currency: "USD", Active: true}
}

func mustSnapshot(t *testing.T, data SnapshotData) *Snapshot {
	t.Helper()
	s, err := NewSnapshot(data)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return s
}

func newTestService(t *testing.T, data SnapshotData) *Service {
	t.Helper()
	return NewService(NewSnapshotHolder(mustSnapshot(t, data)), nil)
}

// noon is a request time outside any night window.
var noon = time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

func exampleRequest(distanceKm, durationMin float64) FareRequest {
	return FareRequest{
		LocationID:  "nyc",
		VehicleType: "sedan",
		DistanceKm:  distanceKm,
		DurationMin: durationMin,
		RequestedAt: noon,
	}
}

func unbounded(rate string) DistanceTier {
	return DistanceTier{UpToKm: math.Inf(1), Rate: d(rate)}
}
