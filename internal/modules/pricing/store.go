// README: Pricing store backed by PostgreSQL; loads a whole snapshot in one read-only transaction.
package pricing

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleetfare/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const (
	selectLocations = `
        SELECT id, name, country, currency, timezone, active
        FROM pricing_locations`
	selectRateCards = `
        SELECT location_id, vehicle_type, base_fare, rate_per_km, rate_per_minute,
               min_fare, wait_rate_per_minute, grace_minutes, cancel_fee,
               commission_pct, tax_pct, marketplace_fee,
               night_multiplier, night_active, night_start, night_end,
               safeguard_multiplier_cap
        FROM pricing_rate_cards`
	selectTiers = `
        SELECT location_id, vehicle_type, up_to_km, rate
        FROM pricing_distance_tiers
        ORDER BY location_id, vehicle_type, up_to_km ASC NULLS LAST`
	selectZoneFees = `
        SELECT id, location_id, zone_id, amount, active, start_time, end_time
        FROM pricing_zone_fees`
	selectSurgeRules = `
        SELECT id, name, multiplier, location_ids, vehicle_types, zone_ids,
               start_time, end_time, active, demand_suppression
        FROM pricing_surge_rules`
)

// Load reads every pricing table inside one repeatable-read transaction so
// the snapshot reflects a single point in time.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	batch.Queue(selectLocations)
	batch.Queue(selectRateCards)
	batch.Queue(selectTiers)
	batch.Queue(selectZoneFees)
	batch.Queue(selectSurgeRules)

	br := tx.SendBatch(ctx, batch)
	data, err := readSnapshot(br)
	if closeErr := br.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit snapshot tx: %w", err)
	}
	return NewSnapshot(data)
}

func readSnapshot(br pgx.BatchResults) (SnapshotData, error) {
	var data SnapshotData
	var err error

	if data.Locations, err = scanLocations(br); err != nil {
		return data, fmt.Errorf("load locations: %w", err)
	}
	if data.RateCards, err = scanRateCards(br); err != nil {
		return data, fmt.Errorf("load rate cards: %w", err)
	}
	tiers, err := scanTiers(br)
	if err != nil {
		return data, fmt.Errorf("load distance tiers: %w", err)
	}
	for i := range data.RateCards {
		c := &data.RateCards[i]
		c.Tiers = tiers[cardKey{location: c.LocationID, vehicle: c.VehicleType}]
	}
	if data.ZoneFees, err = scanZoneFees(br); err != nil {
		return data, fmt.Errorf("load zone fees: %w", err)
	}
	if data.SurgeRules, err = scanSurgeRules(br); err != nil {
		return data, fmt.Errorf("load surge rules: %w", err)
	}
	return data, nil
}

func scanLocations(br pgx.BatchResults) ([]Location, error) {
	rows, err := br.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Country, &l.Currency, &l.Timezone, &l.Active); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanRateCards(br pgx.BatchResults) ([]RateCard, error) {
	rows, err := br.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateCard
	for rows.Next() {
		var c RateCard
		var nightStart, nightEnd string
		if err := rows.Scan(
			&c.LocationID, &c.VehicleType, &c.BaseFare, &c.RatePerKm, &c.RatePerMinute,
			&c.MinFare, &c.WaitRatePerMinute, &c.GraceMinutes, &c.CancelFee,
			&c.CommissionPct, &c.TaxPct, &c.MarketplaceFee,
			&c.NightSurcharge.Multiplier, &c.NightSurcharge.Active, &nightStart, &nightEnd,
			&c.SafeguardMultiplierCap,
		); err != nil {
			return nil, err
		}
		w, err := ParseWindow(nightStart, nightEnd)
		if err != nil {
			return nil, fmt.Errorf("rate card %s/%s: %w", c.LocationID, c.VehicleType, err)
		}
		c.NightSurcharge.Window = w
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanTiers(br pgx.BatchResults) (map[cardKey][]DistanceTier, error) {
	rows, err := br.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[cardKey][]DistanceTier)
	for rows.Next() {
		var key cardKey
		var upTo *float64
		var t DistanceTier
		if err := rows.Scan(&key.location, &key.vehicle, &upTo, &t.Rate); err != nil {
			return nil, err
		}
		t.UpToKm = math.Inf(1)
		if upTo != nil {
			t.UpToKm = *upTo
		}
		out[key] = append(out[key], t)
	}
	return out, rows.Err()
}

func scanZoneFees(br pgx.BatchResults) ([]ZoneFee, error) {
	rows, err := br.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ZoneFee
	for rows.Next() {
		var f ZoneFee
		var start, end string
		if err := rows.Scan(&f.ID, &f.LocationID, &f.ZoneID, &f.Amount, &f.Active, &start, &end); err != nil {
			return nil, err
		}
		if f.Window, err = ParseWindow(start, end); err != nil {
			return nil, fmt.Errorf("zone fee %s: %w", f.ID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanSurgeRules(br pgx.BatchResults) ([]SurgeRule, error) {
	rows, err := br.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SurgeRule
	for rows.Next() {
		var r SurgeRule
		var locationIDs, vehicleTypes []string
		var start, end string
		if err := rows.Scan(
			&r.ID, &r.Name, &r.Multiplier, &locationIDs, &vehicleTypes, &r.ZoneIDs,
			&start, &end, &r.Active, &r.DemandSuppression,
		); err != nil {
			return nil, err
		}
		if r.Window, err = ParseWindow(start, end); err != nil {
			return nil, fmt.Errorf("surge rule %s: %w", r.ID, err)
		}
		for _, id := range locationIDs {
			r.LocationIDs = append(r.LocationIDs, types.ID(id))
		}
		for _, v := range vehicleTypes {
			r.VehicleTypes = append(r.VehicleTypes, VehicleType(v))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
