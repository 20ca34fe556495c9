// README: Quote service: prices estimates, keeps them in Redis and emits fare events.
package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetfare/internal/config"
	"fleetfare/internal/maps"
	"fleetfare/internal/modules/pricing"
	"fleetfare/internal/observability"
	"fleetfare/internal/types"
)

type Store interface {
	Save(ctx context.Context, q Quote, ttl time.Duration) error
	Get(ctx context.Context, id types.ID) (Quote, error)
	// Take atomically removes and returns a quote.
	Take(ctx context.Context, id types.ID) (Quote, error)
}

type FareCalculator interface {
	ComputeFare(req pricing.FareRequest) (pricing.FareBreakdown, error)
}

type RouteFinder interface {
	Route(ctx context.Context, origin, destination types.Point) (maps.Route, error)
}

type Service struct {
	store  Store
	fares  FareCalculator
	routes RouteFinder
	events Publisher
	cfg    config.QuoteConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires the quote flow. routes may be nil, in which case estimates
// must carry distance and duration; events may be nil to drop events.
func NewService(store Store, fares FareCalculator, routes RouteFinder, events Publisher, cfg config.QuoteConfig, logger *zap.Logger) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		fares:  fares,
		routes: routes,
		events: events,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) Estimate(ctx context.Context, cmd EstimateCommand) (Quote, error) {
	q, err := s.estimate(ctx, cmd)
	observability.QuotesTotal.WithLabelValues("estimate", observability.Outcome(err)).Inc()
	return q, err
}

func (s *Service) estimate(ctx context.Context, cmd EstimateCommand) (Quote, error) {
	now := s.now()
	req := pricing.FareRequest{
		LocationID:    cmd.LocationID,
		VehicleType:   cmd.VehicleType,
		DistanceKm:    cmd.DistanceKm,
		DurationMin:   cmd.DurationMin,
		RequestedAt:   cmd.RequestedAt,
		PickupZoneID:  cmd.PickupZoneID,
		DropoffZoneID: cmd.DropoffZoneID,
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = now
	}

	if cmd.DistanceKm == 0 && cmd.DurationMin == 0 && !cmd.Origin.IsZero() && !cmd.Destination.IsZero() {
		if s.routes == nil {
			return Quote{}, ErrRouteUnavailable
		}
		route, err := s.routes.Route(ctx, cmd.Origin, cmd.Destination)
		if err != nil {
			return Quote{}, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
		}
		req.DistanceKm = route.DistanceKm
		req.DurationMin = route.DurationMin
	}

	b, err := s.fares.ComputeFare(req)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		ID:        types.ID(uuid.NewString()),
		Request:   req,
		Breakdown: b,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.store.Save(ctx, q, s.cfg.TTL); err != nil {
		return Quote{}, fmt.Errorf("save quote: %w", err)
	}

	e := newEvent(EventFareQuoted, req, b, now)
	e.QuoteID = q.ID
	s.publish(ctx, e)
	return q, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (Quote, error) {
	q, err := s.store.Get(ctx, id)
	observability.QuotesTotal.WithLabelValues("get", observability.Outcome(err)).Inc()
	if err != nil {
		return Quote{}, err
	}
	if !q.ExpiresAt.IsZero() && !s.now().Before(q.ExpiresAt) {
		return Quote{}, ErrQuoteNotFound
	}
	return q, nil
}

// Finalize prices the completed trip from its measured distance, duration
// and wait. A referenced quote is claimed before pricing, so concurrent
// finalizations of one quote succeed at most once.
func (s *Service) Finalize(ctx context.Context, cmd FinalizeCommand) (FinalFare, error) {
	f, err := s.finalize(ctx, cmd)
	observability.QuotesTotal.WithLabelValues("finalize", observability.Outcome(err)).Inc()
	return f, err
}

func (s *Service) finalize(ctx context.Context, cmd FinalizeCommand) (FinalFare, error) {
	req := cmd.Request
	out := FinalFare{TripID: cmd.TripID, QuoteID: cmd.QuoteID}

	var claimed *Quote
	if cmd.QuoteID != "" {
		q, err := s.store.Take(ctx, cmd.QuoteID)
		if err != nil {
			return FinalFare{}, err
		}
		if !q.ExpiresAt.IsZero() && !s.now().Before(q.ExpiresAt) {
			return FinalFare{}, ErrQuoteNotFound
		}
		claimed = &q
		req = mergeQuoteRequest(req, q.Request)
		quoted := q.Breakdown.TotalRiderPrice
		out.QuotedTotal = &quoted
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = s.now()
	}

	b, err := s.fares.ComputeFare(req)
	if err != nil {
		if claimed != nil {
			s.release(ctx, *claimed)
		}
		return FinalFare{}, err
	}
	out.Breakdown = b

	e := newEvent(EventFareFinalized, req, b, s.now())
	e.QuoteID = cmd.QuoteID
	e.TripID = cmd.TripID
	s.publish(ctx, e)
	return out, nil
}

// mergeQuoteRequest fills trip identity from the quote; measured values
// always come from the completed trip.
func mergeQuoteRequest(req, quoted pricing.FareRequest) pricing.FareRequest {
	if req.LocationID == "" {
		req.LocationID = quoted.LocationID
	}
	if req.VehicleType == "" {
		req.VehicleType = quoted.VehicleType
	}
	if req.PickupZoneID == "" {
		req.PickupZoneID = quoted.PickupZoneID
	}
	if req.DropoffZoneID == "" {
		req.DropoffZoneID = quoted.DropoffZoneID
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = quoted.RequestedAt
	}
	return req
}

// release puts back a claimed quote whose finalization failed, for the time
// it had left.
func (s *Service) release(ctx context.Context, q Quote) {
	ttl := q.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.store.Save(ctx, q, ttl); err != nil {
		s.logger.Warn("release quote", zap.String("quote_id", string(q.ID)), zap.Error(err))
	}
}

// publish is best effort: a fare that was priced is never failed because the
// event bus is down.
func (s *Service) publish(ctx context.Context, e Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		observability.QuotesTotal.WithLabelValues("publish", "error").Inc()
		s.logger.Warn("publish fare event",
			zap.String("type", e.Type),
			zap.String("quote_id", string(e.QuoteID)),
			zap.Error(err),
		)
	}
}
