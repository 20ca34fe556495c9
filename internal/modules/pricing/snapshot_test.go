package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"fleetfare/internal/types"
)

func TestNewSnapshotRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SnapshotData)
	}{
		{"bad currency", func(sd *SnapshotData) { sd.Locations[0].Currency = "US" }},
		{"bad timezone", func(sd *SnapshotData) { sd.Locations[0].Timezone = "Mars/Olympus" }},
		{"duplicate location", func(sd *SnapshotData) { sd.Locations = append(sd.Locations, exampleLocation()) }},
		{"card for unknown location", func(sd *SnapshotData) { sd.RateCards[0].LocationID = "sfo" }},
		{"duplicate card", func(sd *SnapshotData) { sd.RateCards = append(sd.RateCards, exampleCard()) }},
		{"negative base fare", func(sd *SnapshotData) { sd.RateCards[0].BaseFare = d("-1") }},
		{"commission over 100", func(sd *SnapshotData) { sd.RateCards[0].CommissionPct = d("120") }},
		{"cap below one", func(sd *SnapshotData) { sd.RateCards[0].SafeguardMultiplierCap = d("0.9") }},
		{"unbounded tier first", func(sd *SnapshotData) {
			sd.RateCards[0].Tiers = []DistanceTier{unbounded("1"), {UpToKm: 5, Rate: d("2")}}
		}},
		{"zero surge multiplier", func(sd *SnapshotData) {
			sd.SurgeRules = []SurgeRule{{ID: "zero", Multiplier: d("0"), Active: true}}
		}},
		{"zone fee for unknown location", func(sd *SnapshotData) {
			sd.ZoneFees = []ZoneFee{{ID: "x", LocationID: "sfo", ZoneID: "z", Amount: d("1"), Active: true}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := exampleData()
			tt.mutate(&data)
			if _, err := NewSnapshot(data); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSnapshotLookups(t *testing.T) {
	data := exampleData()
	suv := exampleCard()
	suv.VehicleType = "suv"
	data.RateCards = append(data.RateCards, suv)
	data.ZoneFees = []ZoneFee{
		{ID: "on", LocationID: "nyc", ZoneID: "a", Amount: d("1"), Active: true},
		{ID: "off", LocationID: "nyc", ZoneID: "b", Amount: d("1"), Active: false},
	}
	data.SurgeRules = []SurgeRule{
		{ID: "global", Multiplier: d("1.1"), Active: true},
		{ID: "nyc", Multiplier: d("1.2"), Active: true, LocationIDs: []types.ID{"nyc"}},
		{ID: "sfo", Multiplier: d("1.3"), Active: true, LocationIDs: []types.ID{"sfo"}},
		{ID: "off", Multiplier: d("1.4"), Active: false},
	}
	s := mustSnapshot(t, data)

	fees, _ := s.ListActiveZoneFees("nyc")
	if len(fees) != 1 || fees[0].ID != "on" {
		t.Errorf("active zone fees = %+v", fees)
	}
	rules, _ := s.ListActiveSurgeRules("nyc")
	if len(rules) != 2 || rules[0].ID != "global" || rules[1].ID != "nyc" {
		t.Errorf("active surge rules = %+v", rules)
	}
	cards := s.RateCards("nyc")
	if len(cards) != 2 || cards[0].VehicleType != "sedan" || cards[1].VehicleType != "suv" {
		t.Errorf("rate cards = %+v", cards)
	}
	if _, err := s.GetRateCard("nyc", "bike"); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestSnapshotCopiesTiers(t *testing.T) {
	data := exampleData()
	data.RateCards[0].Tiers = []DistanceTier{{UpToKm: 5, Rate: d("2")}, unbounded("1")}
	s := mustSnapshot(t, data)

	data.RateCards[0].Tiers[0].Rate = d("99")
	c, _ := s.GetRateCard("nyc", "sedan")
	assertDecimal(t, "tier rate", c.Tiers[0].Rate, "2")
}

type stubLoader struct {
	snap *Snapshot
	err  error
}

func (l stubLoader) Load(context.Context) (*Snapshot, error) { return l.snap, l.err }

func TestSnapshotHolderRefresh(t *testing.T) {
	first := mustSnapshot(t, exampleData())
	h := NewSnapshotHolder(first)

	if err := h.Refresh(context.Background(), stubLoader{err: errors.New("db down")}); err == nil {
		t.Fatal("expected refresh error")
	}
	if h.Snapshot() != first {
		t.Fatal("failed refresh replaced the snapshot")
	}

	second := mustSnapshot(t, exampleData())
	if err := h.Refresh(context.Background(), stubLoader{snap: second}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if h.Snapshot() != second {
		t.Fatal("refresh did not publish the new snapshot")
	}
}

func TestSnapshotHolderRunRefresher(t *testing.T) {
	h := NewSnapshotHolder(mustSnapshot(t, exampleData()))
	next := mustSnapshot(t, exampleData())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.RunRefresher(ctx, 5*time.Millisecond, stubLoader{snap: next}, zap.NewNop())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for h.Snapshot() != next {
		select {
		case <-deadline:
			t.Fatal("refresher never swapped the snapshot")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
