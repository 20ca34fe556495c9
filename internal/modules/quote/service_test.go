// README: Quote service tests with in-memory store, stub routes and a recording publisher.
package quote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fleetfare/internal/config"
	"fleetfare/internal/maps"
	"fleetfare/internal/modules/pricing"
	"fleetfare/internal/types"
)

type memStore struct {
	mu     sync.Mutex
	quotes map[types.ID]Quote
}

func newMemStore() *memStore {
	return &memStore{quotes: make(map[types.ID]Quote)}
}

func (m *memStore) Save(_ context.Context, q Quote, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.ID] = q
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return Quote{}, ErrQuoteNotFound
	}
	return q, nil
}

func (m *memStore) Take(_ context.Context, id types.ID) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return Quote{}, ErrQuoteNotFound
	}
	delete(m.quotes, id)
	return q, nil
}

type stubRoutes struct {
	route maps.Route
	err   error
	calls int
}

func (s *stubRoutes) Route(context.Context, types.Point, types.Point) (maps.Route, error) {
	s.calls++
	return s.route, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newPricing(t *testing.T) *pricing.Service {
	t.Helper()
	snap, err := pricing.NewSnapshot(pricing.SnapshotData{
		Locations: []pricing.Location{{ID: "nyc", Currency: "USD", Active: true}},
		RateCards: []pricing.RateCard{{
			LocationID:             "nyc",
			VehicleType:            "sedan",
			BaseFare:               dec("2.50"),
			RatePerKm:              dec("1.50"),
			RatePerMinute:          dec("0.25"),
			MinFare:                dec("7.00"),
			WaitRatePerMinute:      dec("0.40"),
			GraceMinutes:           3,
			CommissionPct:          dec("25"),
			TaxPct:                 dec("5"),
			MarketplaceFee:         dec("1.50"),
			NightSurcharge:         pricing.NightSurcharge{Multiplier: dec("1")},
			SafeguardMultiplierCap: dec("3"),
		}},
	})
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return pricing.NewService(pricing.NewSnapshotHolder(snap), nil)
}

var clock = time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, routes RouteFinder, pub Publisher) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	svc := NewService(store, newPricing(t), routes, pub, config.QuoteConfig{TTL: 5 * time.Minute}, nil)
	svc.now = func() time.Time { return clock }
	return svc, store
}

func TestEstimateWithDistance(t *testing.T) {
	pub := &recordingPublisher{}
	svc, store := newTestService(t, nil, pub)
	ctx := context.Background()

	q, err := svc.Estimate(ctx, EstimateCommand{LocationID: "nyc", VehicleType: "sedan", DistanceKm: 5, DurationMin: 12})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if q.ID == "" || !q.ExpiresAt.Equal(clock.Add(5*time.Minute)) {
		t.Errorf("quote = %+v", q)
	}
	if !q.Breakdown.TotalRiderPrice.Equal(dec("15.23")) {
		t.Errorf("total = %s, want 15.23", q.Breakdown.TotalRiderPrice)
	}
	if !q.Request.RequestedAt.Equal(clock) {
		t.Errorf("requested_at defaulted to %v", q.Request.RequestedAt)
	}
	if _, err := store.Get(ctx, q.ID); err != nil {
		t.Errorf("quote not stored: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Type != EventFareQuoted || pub.events[0].QuoteID != q.ID {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestEstimateResolvesRoute(t *testing.T) {
	routes := &stubRoutes{route: maps.Route{DistanceKm: 5, DurationMin: 12}}
	svc, _ := newTestService(t, routes, nil)

	q, err := svc.Estimate(context.Background(), EstimateCommand{
		LocationID:  "nyc",
		VehicleType: "sedan",
		Origin:      types.Point{Lat: 40.7580, Lng: -73.9855},
		Destination: types.Point{Lat: 40.7128, Lng: -74.0060},
	})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if routes.calls != 1 || q.Request.DistanceKm != 5 || q.Request.DurationMin != 12 {
		t.Errorf("route not applied: calls=%d req=%+v", routes.calls, q.Request)
	}
}

func TestEstimateRouteErrors(t *testing.T) {
	cmd := EstimateCommand{
		LocationID:  "nyc",
		VehicleType: "sedan",
		Origin:      types.Point{Lat: 1, Lng: 1},
		Destination: types.Point{Lat: 2, Lng: 2},
	}

	svc, _ := newTestService(t, nil, nil)
	if _, err := svc.Estimate(context.Background(), cmd); !errors.Is(err, ErrRouteUnavailable) {
		t.Errorf("no route finder: expected ErrRouteUnavailable, got %v", err)
	}

	svc, _ = newTestService(t, &stubRoutes{err: maps.ErrNoRoute}, nil)
	if _, err := svc.Estimate(context.Background(), cmd); !errors.Is(err, ErrRouteUnavailable) {
		t.Errorf("route failure: expected ErrRouteUnavailable, got %v", err)
	}
}

func TestEstimatePricingErrors(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(t, nil, pub)

	_, err := svc.Estimate(context.Background(), EstimateCommand{LocationID: "nyc", VehicleType: "limo", DistanceKm: 3})
	if !errors.Is(err, pricing.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
	_, err = svc.Estimate(context.Background(), EstimateCommand{LocationID: "nyc", VehicleType: "sedan", DistanceKm: -3})
	if !errors.Is(err, pricing.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("events published for failed estimates: %+v", pub.events)
	}
}

func TestEstimateSurvivesPublishFailure(t *testing.T) {
	svc, _ := newTestService(t, nil, &recordingPublisher{err: errors.New("broker down")})
	if _, err := svc.Estimate(context.Background(), EstimateCommand{LocationID: "nyc", VehicleType: "sedan", DistanceKm: 2}); err != nil {
		t.Fatalf("Estimate: %v", err)
	}
}

func TestGetExpiredQuote(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()

	q, err := svc.Estimate(ctx, EstimateCommand{LocationID: "nyc", VehicleType: "sedan", DistanceKm: 2})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if _, err := svc.Get(ctx, q.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	svc.now = func() time.Time { return clock.Add(6 * time.Minute) }
	if _, err := svc.Get(ctx, q.ID); !errors.Is(err, ErrQuoteNotFound) {
		t.Errorf("expected ErrQuoteNotFound, got %v", err)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrQuoteNotFound) {
		t.Errorf("expected ErrQuoteNotFound, got %v", err)
	}
}

func TestFinalizeFromQuote(t *testing.T) {
	pub := &recordingPublisher{}
	svc, store := newTestService(t, nil, pub)
	ctx := context.Background()

	q, err := svc.Estimate(ctx, EstimateCommand{LocationID: "nyc", VehicleType: "sedan", DistanceKm: 5, DurationMin: 12})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	f, err := svc.Finalize(ctx, FinalizeCommand{
		QuoteID: q.ID,
		TripID:  "trip-1",
		Request: pricing.FareRequest{DistanceKm: 6, DurationMin: 12, WaitMin: 8},
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	// 2.50 + 9.00 + 3.00 + wait 5*0.40
	if !f.Breakdown.Fare.Equal(dec("16.50")) {
		t.Errorf("fare = %s, want 16.50", f.Breakdown.Fare)
	}
	if f.QuotedTotal == nil || !f.QuotedTotal.Equal(dec("15.23")) {
		t.Errorf("quoted total = %v", f.QuotedTotal)
	}
	if _, err := store.Get(ctx, q.ID); !errors.Is(err, ErrQuoteNotFound) {
		t.Errorf("quote not consumed: %v", err)
	}
	last := pub.events[len(pub.events)-1]
	if last.Type != EventFareFinalized || last.TripID != "trip-1" || !last.DriverPayout.Equal(f.Breakdown.DriverPayout) {
		t.Errorf("finalized event = %+v", last)
	}

	if _, err := svc.Finalize(ctx, FinalizeCommand{QuoteID: q.ID, Request: pricing.FareRequest{DistanceKm: 6}}); !errors.Is(err, ErrQuoteNotFound) {
		t.Errorf("second finalize: expected ErrQuoteNotFound, got %v", err)
	}
}

func TestFinalizeClaimsQuoteOnce(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(t, nil, pub)
	ctx := context.Background()

	q, err := svc.Estimate(ctx, EstimateCommand{LocationID: "nyc", VehicleType: "sedan", DistanceKm: 5, DurationMin: 12})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Finalize(ctx, FinalizeCommand{QuoteID: q.ID, TripID: "trip-race", Request: pricing.FareRequest{DistanceKm: 5}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrQuoteNotFound):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("finalize succeeded %d times, want 1", succeeded)
	}

	finalized := 0
	for _, e := range pub.events {
		if e.Type == EventFareFinalized {
			finalized++
		}
	}
	if finalized != 1 {
		t.Errorf("%d fare.finalized events, want 1", finalized)
	}
}

func TestFinalizeFailureReleasesQuote(t *testing.T) {
	svc, store := newTestService(t, nil, nil)
	ctx := context.Background()

	q, err := svc.Estimate(ctx, EstimateCommand{LocationID: "nyc", VehicleType: "sedan", DistanceKm: 5, DurationMin: 12})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	_, err = svc.Finalize(ctx, FinalizeCommand{QuoteID: q.ID, TripID: "trip-3", Request: pricing.FareRequest{DistanceKm: -1}})
	if !errors.Is(err, pricing.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := store.Get(ctx, q.ID); err != nil {
		t.Fatalf("quote not released after failed finalize: %v", err)
	}

	if _, err := svc.Finalize(ctx, FinalizeCommand{QuoteID: q.ID, TripID: "trip-3", Request: pricing.FareRequest{DistanceKm: 5}}); err != nil {
		t.Errorf("retry after release: %v", err)
	}
}

func TestFinalizeWithoutQuote(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	f, err := svc.Finalize(context.Background(), FinalizeCommand{
		TripID: "trip-2",
		Request: pricing.FareRequest{
			LocationID:  "nyc",
			VehicleType: "sedan",
			DistanceKm:  1,
			DurationMin: 1,
		},
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !f.Breakdown.Fare.Equal(dec("7.00")) || !f.Breakdown.MinFareApplied {
		t.Errorf("breakdown = %+v", f.Breakdown)
	}
	if f.QuotedTotal != nil {
		t.Errorf("unexpected quoted total %v", f.QuotedTotal)
	}
}
