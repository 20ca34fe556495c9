package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"fleetfare/internal/types"
)

// ErrNoRoute is returned when the Directions API finds no drivable route.
var ErrNoRoute = errors.New("no route found")

// Route is the driving distance and duration between two points.
type Route struct {
	DistanceKm  float64
	DurationMin float64
}

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client   *maps.Client
	language string
	region   string
}

// NewRouteService creates a new RouteService with the given API Key.
// language and region bias the Directions results and may be empty.
func NewRouteService(apiKey, language, region string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, language: language, region: region}, nil
}

// Route returns the driving distance and duration of the first leg between
// origin and destination.
func (s *RouteService) Route(ctx context.Context, origin, destination types.Point) (Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      formatPoint(origin),
		Destination: formatPoint(destination),
		Mode:        maps.TravelModeDriving,
		Language:    s.language,
		Region:      s.region,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Route{}, ErrNoRoute
	}

	leg := routes[0].Legs[0]
	return legRoute(leg.Distance.Meters, leg.Duration.Minutes()), nil
}

func legRoute(meters int, minutes float64) Route {
	return Route{DistanceKm: float64(meters) / 1000, DurationMin: minutes}
}

func formatPoint(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
