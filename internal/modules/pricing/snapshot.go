// README: Immutable pricing configuration snapshot and the copy-on-write holder the engine reads from.
package pricing

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fleetfare/internal/observability"
	"fleetfare/internal/types"
)

// ConfigReader is a read-only, point-in-time view of pricing configuration.
type ConfigReader interface {
	GetLocation(id types.ID) (Location, error)
	GetRateCard(locationID types.ID, vehicleType VehicleType) (RateCard, error)
	ListActiveZoneFees(locationID types.ID) ([]ZoneFee, error)
	ListActiveSurgeRules(locationID types.ID) ([]SurgeRule, error)
}

// ConfigSource hands out a consistent ConfigReader. Every read made while
// pricing one request goes through the reader returned by a single Current call.
type ConfigSource interface {
	Current() ConfigReader
}

// SnapshotData is the raw configuration a Snapshot is built from.
type SnapshotData struct {
	Locations  []Location
	RateCards  []RateCard
	ZoneFees   []ZoneFee
	SurgeRules []SurgeRule
}

type cardKey struct {
	location types.ID
	vehicle  VehicleType
}

// Snapshot is never mutated after NewSnapshot returns, so it is safe for
// concurrent readers. Values handed out must be treated as read-only.
type Snapshot struct {
	loadedAt  time.Time
	locations map[types.ID]Location
	cards     map[cardKey]RateCard
	zoneFees  map[types.ID][]ZoneFee
	surge     []SurgeRule
}

// NewSnapshot validates data and indexes it for lookups.
func NewSnapshot(data SnapshotData) (*Snapshot, error) {
	s := &Snapshot{
		loadedAt:  time.Now(),
		locations: make(map[types.ID]Location, len(data.Locations)),
		cards:     make(map[cardKey]RateCard, len(data.RateCards)),
		zoneFees:  make(map[types.ID][]ZoneFee),
	}

	for _, l := range data.Locations {
		if err := l.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.locations[l.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate location %s", ErrInvalidConfig, l.ID)
		}
		if err := l.resolveTimezone(); err != nil {
			return nil, err
		}
		s.locations[l.ID] = l
	}

	for _, c := range data.RateCards {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, ok := s.locations[c.LocationID]; !ok {
			return nil, fmt.Errorf("%w: rate card %s/%s references unknown location", ErrInvalidConfig, c.LocationID, c.VehicleType)
		}
		key := cardKey{location: c.LocationID, vehicle: c.VehicleType}
		if _, dup := s.cards[key]; dup {
			return nil, fmt.Errorf("%w: duplicate rate card %s/%s", ErrInvalidConfig, c.LocationID, c.VehicleType)
		}
		tiers := make([]DistanceTier, len(c.Tiers))
		copy(tiers, c.Tiers)
		sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].UpToKm < tiers[j].UpToKm })
		c.Tiers = tiers
		s.cards[key] = c
	}

	for _, f := range data.ZoneFees {
		if err := f.Validate(); err != nil {
			return nil, err
		}
		if _, ok := s.locations[f.LocationID]; !ok {
			return nil, fmt.Errorf("%w: zone fee %s references unknown location %s", ErrInvalidConfig, f.ID, f.LocationID)
		}
		if f.Active {
			s.zoneFees[f.LocationID] = append(s.zoneFees[f.LocationID], f)
		}
	}

	for _, r := range data.SurgeRules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if r.Active {
			s.surge = append(s.surge, r)
		}
	}
	return s, nil
}

func (s *Snapshot) Current() ConfigReader { return s }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

func (s *Snapshot) GetLocation(id types.ID) (Location, error) {
	l, ok := s.locations[id]
	if !ok {
		return Location{}, fmt.Errorf("%w: location %s", ErrConfigNotFound, id)
	}
	if !l.Active {
		return Location{}, fmt.Errorf("%w: location %s is inactive", ErrConfigNotFound, id)
	}
	return l, nil
}

func (s *Snapshot) GetRateCard(locationID types.ID, vehicleType VehicleType) (RateCard, error) {
	c, ok := s.cards[cardKey{location: locationID, vehicle: vehicleType}]
	if !ok {
		return RateCard{}, fmt.Errorf("%w: rate card %s/%s", ErrConfigNotFound, locationID, vehicleType)
	}
	return c, nil
}

func (s *Snapshot) ListActiveZoneFees(locationID types.ID) ([]ZoneFee, error) {
	return s.zoneFees[locationID], nil
}

func (s *Snapshot) ListActiveSurgeRules(locationID types.ID) ([]SurgeRule, error) {
	var out []SurgeRule
	for _, r := range s.surge {
		if r.appliesTo(locationID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// RateCards lists the cards of a location ordered by vehicle type.
func (s *Snapshot) RateCards(locationID types.ID) []RateCard {
	var out []RateCard
	for k, c := range s.cards {
		if k.location == locationID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleType < out[j].VehicleType })
	return out
}

// Loader produces a fresh snapshot, e.g. from PostgreSQL or a rate sheet file.
type Loader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// SnapshotHolder publishes whole snapshots atomically. Readers that already
// called Current keep their snapshot while a refresh swaps in a new one.
type SnapshotHolder struct {
	ptr atomic.Pointer[Snapshot]
}

func NewSnapshotHolder(initial *Snapshot) *SnapshotHolder {
	h := &SnapshotHolder{}
	h.ptr.Store(initial)
	return h
}

func (h *SnapshotHolder) Current() ConfigReader { return h.ptr.Load() }

func (h *SnapshotHolder) Snapshot() *Snapshot { return h.ptr.Load() }

func (h *SnapshotHolder) Swap(s *Snapshot) { h.ptr.Store(s) }

// Refresh loads a new snapshot and swaps it in. On error the current
// snapshot stays published.
func (h *SnapshotHolder) Refresh(ctx context.Context, loader Loader) error {
	next, err := loader.Load(ctx)
	if err != nil {
		observability.SnapshotRefreshTotal.WithLabelValues("error").Inc()
		return err
	}
	h.Swap(next)
	observability.SnapshotRefreshTotal.WithLabelValues("ok").Inc()
	return nil
}

func (h *SnapshotHolder) RunRefresher(ctx context.Context, interval time.Duration, loader Loader, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Refresh(ctx, loader); err != nil {
				logger.Warn("pricing snapshot refresh failed", zap.Error(err))
				continue
			}
			logger.Debug("pricing snapshot refreshed", zap.Time("loaded_at", h.Snapshot().LoadedAt()))
		}
	}
}
